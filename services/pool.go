package services

import (
	"fmt"
	"sort"

	"prize-allocation-system/models"
)

// ClaimTracker is the run-scoped one-prize-per-competitor state. It lives for
// exactly one scheduling run, is never persisted (committed decision rows are
// the source of truth at commit time), and is passed explicitly through the
// scheduling call — never a package-level singleton.
type ClaimTracker struct {
	claimed map[string]struct{}
}

func NewClaimTracker() *ClaimTracker {
	return &ClaimTracker{claimed: make(map[string]struct{})}
}

// IsClaimed reports whether the competitor already holds a prize in this run.
func (t *ClaimTracker) IsClaimed(competitorID string) bool {
	_, ok := t.claimed[competitorID]
	return ok
}

// Claim marks the competitor as awarded. Claiming the same id twice is a
// scheduler defect and surfaces as an error, never a silent no-op.
func (t *ClaimTracker) Claim(competitorID string) error {
	if t.IsClaimed(competitorID) {
		return fmt.Errorf("competitor %s claimed twice in one scheduling run", competitorID)
	}
	t.claimed[competitorID] = struct{}{}
	return nil
}

// CategoryPool is the eligibility pool for one category at one point in a
// scheduling run. BeforeCount ignores exclusivity; AfterCount and Candidates
// exclude competitors already claimed by a higher-priority prize.
type CategoryPool struct {
	CategoryID    string
	BeforeCount   int
	AfterCount    int
	Candidates    []models.Competitor // ordered by the category's winner comparator
	FailHistogram map[FailCode]int
}

// BuildPool evaluates all competitors against the category and orders the
// eligible ones:
//   - youngest_* categories: matching gender with a known birth date, ordered
//     latest birth date first (youngest wins), ties broken by rank ascending
//   - everything else: evaluator-pass competitors ordered by rank ascending
//
// The fail histogram aggregates codes from ineligible competitors and feeds
// diagnosis when a prize goes unfilled.
func BuildPool(cat *models.Category, competitors []models.Competitor, tracker *ClaimTracker, cfg EvalConfig) CategoryPool {
	pool := CategoryPool{
		CategoryID:    cat.ID,
		FailHistogram: make(map[FailCode]int),
	}

	var eligible []models.Competitor
	for i := range competitors {
		comp := &competitors[i]
		res := evaluateForCategory(comp, cat, cfg)
		if !res.Eligible {
			for _, code := range res.FailCodes {
				pool.FailHistogram[code]++
			}
			continue
		}
		eligible = append(eligible, *comp)
	}

	if cat.IsYoungest() {
		sort.Slice(eligible, func(i, j int) bool {
			bi, bj := *eligible[i].BirthDate, *eligible[j].BirthDate
			if !bi.Equal(bj) {
				return bi.After(bj) // later birth date = younger = wins
			}
			return eligible[i].Rank < eligible[j].Rank
		})
	} else {
		sort.Slice(eligible, func(i, j int) bool {
			return eligible[i].Rank < eligible[j].Rank
		})
	}

	pool.BeforeCount = len(eligible)
	for _, comp := range eligible {
		if tracker.IsClaimed(comp.ID) {
			continue
		}
		pool.Candidates = append(pool.Candidates, comp)
	}
	pool.AfterCount = len(pool.Candidates)
	return pool
}

// evaluateForCategory applies the category-type admission rules on top of the
// plain criteria evaluator.
func evaluateForCategory(comp *models.Competitor, cat *models.Category, cfg EvalConfig) EvalResult {
	if cat.IsYoungest() {
		var fails []FailCode
		want := cat.YoungestGender()
		if comp.Gender == nil {
			fails = append(fails, FailGenderMissing)
		} else if *comp.Gender != want {
			fails = append(fails, FailGenderMismatch)
		}
		if comp.BirthDate == nil {
			// No birth date means no position in the birth-date order.
			fails = append(fails, FailDOBMissing)
		}
		rest := EvaluateCriteria(comp, &cat.Criteria, cfg)
		fails = append(fails, filterCodes(rest.FailCodes, FailGenderMissing, FailGenderMismatch, FailDOBMissing)...)
		return EvalResult{Eligible: len(fails) == 0, FailCodes: fails}
	}
	return EvaluateCriteria(comp, &cat.Criteria, cfg)
}

func filterCodes(codes []FailCode, drop ...FailCode) []FailCode {
	var out []FailCode
	for _, c := range codes {
		skip := false
		for _, d := range drop {
			if c == d {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}
