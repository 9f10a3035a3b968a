package services

import (
	"strings"
	"time"

	"prize-allocation-system/models"
)

// FailCode is a typed explanation for why one competitor failed one criteria
// axis. Missing data is informative — it gets its own code, never an error.
type FailCode string

const (
	FailGenderMissing  FailCode = "gender_missing"
	FailGenderMismatch FailCode = "gender_mismatch"

	FailDOBMissing  FailCode = "dob_missing"
	FailAgeAboveMax FailCode = "age_above_max"
	FailAgeBelowMin FailCode = "age_below_min"

	FailRatedExcluded   FailCode = "rated_excluded" // rated competitor in an unrated-only category
	FailUnratedExcluded FailCode = "unrated_excluded"
	FailRatingBelowMin  FailCode = "rating_below_min"
	FailRatingAboveMax  FailCode = "rating_above_max"

	FailDisabilityExcluded FailCode = "disability_excluded"
	FailStateExcluded      FailCode = "state_excluded"
	FailCityExcluded       FailCode = "city_excluded"
	FailClubExcluded       FailCode = "club_excluded"
	FailGroupExcluded      FailCode = "group_excluded"
	FailTypeExcluded       FailCode = "type_excluded"
)

// FailCodeLabels maps every fail code to its fixed organizer-facing tooltip.
// Presentation layers consume this map verbatim; labels are never computed.
var FailCodeLabels = map[FailCode]string{
	FailGenderMissing:      "Gender not recorded for this player",
	FailGenderMismatch:     "Gender does not match the category",
	FailDOBMissing:         "Date of birth not recorded for this player",
	FailAgeAboveMax:        "Older than the category allows",
	FailAgeBelowMin:        "Younger than the category allows",
	FailRatedExcluded:      "Category is for unrated players only",
	FailUnratedExcluded:    "Unrated players are excluded from rating categories",
	FailRatingBelowMin:     "Rating below the category minimum",
	FailRatingAboveMax:     "Rating above the category maximum",
	FailDisabilityExcluded: "Disability status not covered by the category",
	FailStateExcluded:      "State not covered by the category",
	FailCityExcluded:       "City not covered by the category",
	FailClubExcluded:       "Club not covered by the category",
	FailGroupExcluded:      "Group not covered by the category",
	FailTypeExcluded:       "Player type not covered by the category",
}

// EvalConfig carries the tournament-level switches the evaluator needs.
type EvalConfig struct {
	// ReferenceDate is the date ages are computed at.
	ReferenceDate time.Time
	// AllowUnratedInRating lets unrated competitors pass rating-bounded
	// categories instead of failing unrated_excluded.
	AllowUnratedInRating bool
}

// EvalResult is the outcome of testing one competitor against one criteria set.
// Multiple fail codes can co-occur (one per failed axis).
type EvalResult struct {
	Eligible  bool       `json:"eligible"`
	FailCodes []FailCode `json:"fail_codes,omitempty"`
}

// EvaluateCriteria tests one competitor against one category's criteria set.
// Every predicate is total: nil fields on the competitor produce fail codes,
// never panics. Axes are independent — a competitor missing four required
// fields collects four codes.
func EvaluateCriteria(comp *models.Competitor, cs *models.CriteriaSet, cfg EvalConfig) EvalResult {
	var fails []FailCode

	fails = append(fails, evalGender(comp, cs)...)
	fails = append(fails, evalAge(comp, cs, cfg)...)
	fails = append(fails, evalRating(comp, cs, cfg)...)
	fails = append(fails, evalAllowLists(comp, cs)...)

	return EvalResult{Eligible: len(fails) == 0, FailCodes: fails}
}

func evalGender(comp *models.Competitor, cs *models.CriteriaSet) []FailCode {
	if cs.Gender == nil {
		return nil
	}
	if comp.Gender == nil {
		return []FailCode{FailGenderMissing}
	}
	if *comp.Gender != *cs.Gender {
		return []FailCode{FailGenderMismatch}
	}
	return nil
}

func evalAge(comp *models.Competitor, cs *models.CriteriaSet, cfg EvalConfig) []FailCode {
	if !cs.HasAgeBounds() {
		return nil
	}
	if comp.BirthDate == nil {
		return []FailCode{FailDOBMissing}
	}
	if cs.RequireExactDOB && comp.BirthDateImputed {
		// Imputed Jan-1 dates count as missing when the category demands
		// exact birth dates.
		return []FailCode{FailDOBMissing}
	}
	age := AgeAt(*comp.BirthDate, cfg.ReferenceDate)
	var fails []FailCode
	if cs.MaxAge != nil && age > *cs.MaxAge {
		fails = append(fails, FailAgeAboveMax)
	}
	if cs.MinAge != nil && age < *cs.MinAge {
		fails = append(fails, FailAgeBelowMin)
	}
	return fails
}

func evalRating(comp *models.Competitor, cs *models.CriteriaSet, cfg EvalConfig) []FailCode {
	if cs.UnratedOnly {
		// Unconditional override: rating bounds and the tournament-level
		// unrated switch are ignored for unrated-only categories.
		if comp.IsRated() {
			return []FailCode{FailRatedExcluded}
		}
		return nil
	}
	if !cs.HasRatingBounds() {
		return nil
	}
	if !comp.IsRated() {
		if cfg.AllowUnratedInRating {
			return nil
		}
		return []FailCode{FailUnratedExcluded}
	}
	var fails []FailCode
	if cs.MinRating != nil && *comp.Rating < *cs.MinRating {
		fails = append(fails, FailRatingBelowMin)
	}
	if cs.MaxRating != nil && *comp.Rating > *cs.MaxRating {
		fails = append(fails, FailRatingAboveMax)
	}
	return fails
}

func evalAllowLists(comp *models.Competitor, cs *models.CriteriaSet) []FailCode {
	var fails []FailCode
	checks := []struct {
		list string
		val  *string
		code FailCode
	}{
		{cs.Disabilities, comp.Disability, FailDisabilityExcluded},
		{cs.States, comp.State, FailStateExcluded},
		{cs.Cities, comp.City, FailCityExcluded},
		{cs.Clubs, comp.Club, FailClubExcluded},
		{cs.GroupLabels, comp.GroupLabel, FailGroupExcluded},
		{cs.TypeLabels, comp.TypeLabel, FailTypeExcluded},
	}
	for _, chk := range checks {
		allowed := models.SplitList(chk.list)
		if len(allowed) == 0 {
			continue // empty list = unconstrained
		}
		if chk.val == nil || !containsFold(allowed, *chk.val) {
			fails = append(fails, chk.code)
		}
	}
	return fails
}

func containsFold(list []string, val string) bool {
	for _, v := range list {
		if strings.EqualFold(v, val) {
			return true
		}
	}
	return false
}

// AgeAt computes whole years between birth and ref, calendar-aware.
func AgeAt(birth, ref time.Time) int {
	years := ref.Year() - birth.Year()
	// Birthday not reached yet this year
	if ref.Month() < birth.Month() ||
		(ref.Month() == birth.Month() && ref.Day() < birth.Day()) {
		years--
	}
	return years
}
