package services

import (
	"log"
	"sort"

	"prize-allocation-system/models"
)

// DraftDecision is one (prize → competitor) assignment in a preview or an
// edited decision set. CompetitorID is empty for an unfilled prize.
type DraftDecision struct {
	PrizeID      string   `json:"prize_id"`
	CategoryID   string   `json:"category_id"`
	Place        int      `json:"place"`
	CompetitorID string   `json:"competitor_id,omitempty"`
	IsManual     bool     `json:"is_manual"`
	ReasonCodes  []string `json:"reason_codes,omitempty"`
}

// CoverageEntry explains one prize slot of one scheduling run: pool sizes
// before/after exclusivity, the automatic winner when there is one, and the
// reason code when there isn't. Ephemeral — recomputed on demand, never stored.
type CoverageEntry struct {
	CategoryID    string           `json:"category_id"`
	CategoryName  string           `json:"category_name"`
	PrizeID       string           `json:"prize_id"`
	Place         int              `json:"place"`
	BeforeCount   int              `json:"before_count"`
	AfterCount    int              `json:"after_count"`
	WinnerID      string           `json:"winner_id,omitempty"`
	WinnerName    string           `json:"winner_name,omitempty"`
	ReasonCode    ReasonCode       `json:"reason_code,omitempty"`
	ReasonLabel   string           `json:"reason_label,omitempty"`
	FailHistogram map[FailCode]int `json:"fail_histogram,omitempty"`
}

// ScheduleResult is the full output of one automatic allocation run.
type ScheduleResult struct {
	Decisions []DraftDecision `json:"decisions"`
	Coverage  []CoverageEntry `json:"coverage"`
}

// ScheduleAllocation runs the automatic preview allocation over an in-memory
// snapshot. It is synchronous, performs no I/O, and mutates only its own
// ClaimTracker, so two runs on the same snapshot always produce identical
// decisions and coverage.
//
// Order is explicit, never incidental: main categories first, then order_idx
// ascending (name as final tie-break), prizes by place ascending within a
// category. Each prize refilters its category pool live against the tracker
// and takes the first remaining candidate.
func ScheduleAllocation(tournament *models.Tournament, categories []models.Category, prizes []models.Prize, competitors []models.Competitor) ScheduleResult {
	cfg := EvalConfig{
		ReferenceDate:        tournament.ReferenceDate,
		AllowUnratedInRating: tournament.AllowUnratedInRatingCategories,
	}

	ordered := make([]models.Category, 0, len(categories))
	for _, cat := range categories {
		if cat.IsActive {
			ordered = append(ordered, cat)
		}
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].IsMain != ordered[j].IsMain {
			return ordered[i].IsMain
		}
		if ordered[i].OrderIdx != ordered[j].OrderIdx {
			return ordered[i].OrderIdx < ordered[j].OrderIdx
		}
		return ordered[i].Name < ordered[j].Name
	})

	prizesByCategory := make(map[string][]models.Prize)
	for _, p := range prizes {
		if !p.IsActive {
			continue
		}
		prizesByCategory[p.CategoryID] = append(prizesByCategory[p.CategoryID], p)
	}
	for id := range prizesByCategory {
		ps := prizesByCategory[id]
		sort.Slice(ps, func(i, j int) bool { return ps[i].Place < ps[j].Place })
		prizesByCategory[id] = ps
	}

	tracker := NewClaimTracker()
	result := ScheduleResult{}

	for i := range ordered {
		cat := &ordered[i]
		for _, prize := range prizesByCategory[cat.ID] {
			pool := BuildPool(cat, competitors, tracker, cfg)
			entry := CoverageEntry{
				CategoryID:   cat.ID,
				CategoryName: cat.Name,
				PrizeID:      prize.ID,
				Place:        prize.Place,
				BeforeCount:  pool.BeforeCount,
				AfterCount:   pool.AfterCount,
			}

			if len(pool.Candidates) > 0 {
				winner := pool.Candidates[0]
				if err := tracker.Claim(winner.ID); err != nil {
					// Invariant violation: surfaced, never swallowed.
					log.Printf("[ENGINE] ❌ claim defect on prize %s: %v", prize.ID, err)
					entry.ReasonCode = ReasonInternalError
					entry.ReasonLabel = ReasonCodeLabels[ReasonInternalError]
					result.Coverage = append(result.Coverage, entry)
					continue
				}
				entry.WinnerID = winner.ID
				entry.WinnerName = winner.Name
				result.Decisions = append(result.Decisions, DraftDecision{
					PrizeID:      prize.ID,
					CategoryID:   cat.ID,
					Place:        prize.Place,
					CompetitorID: winner.ID,
				})
			} else {
				entry.ReasonCode = Diagnose(pool.BeforeCount, pool.AfterCount, pool.FailHistogram)
				entry.ReasonLabel = ReasonCodeLabels[entry.ReasonCode]
				entry.FailHistogram = pool.FailHistogram
				if entry.ReasonCode == ReasonInternalError {
					log.Printf("[ENGINE] ❌ prize %s unfilled with %d candidates remaining", prize.ID, pool.AfterCount)
				}
			}
			result.Coverage = append(result.Coverage, entry)
		}
	}

	return result
}
