package services

// ReasonCode is the fixed enumerated explanation for an unfilled prize.
type ReasonCode string

const (
	ReasonBlockedByOnePrizePolicy ReasonCode = "BLOCKED_BY_ONE_PRIZE_POLICY"
	ReasonTooStrictRating         ReasonCode = "TOO_STRICT_CRITERIA_RATING"
	ReasonTooStrictAge            ReasonCode = "TOO_STRICT_CRITERIA_AGE"
	ReasonTooStrictGender         ReasonCode = "TOO_STRICT_CRITERIA_GENDER"
	ReasonTooStrictLocation       ReasonCode = "TOO_STRICT_CRITERIA_LOCATION"
	ReasonTooStrictType           ReasonCode = "TOO_STRICT_CRITERIA_TYPE"
	ReasonNoEligiblePlayers       ReasonCode = "NO_ELIGIBLE_PLAYERS"
	ReasonInternalError           ReasonCode = "INTERNAL_ERROR"
)

// ReasonCodeLabels maps every reason code 1:1 to its fixed display label so
// organizer-facing text is stable across runs. Never computed dynamically.
var ReasonCodeLabels = map[ReasonCode]string{
	ReasonBlockedByOnePrizePolicy: "All eligible players already won a higher-priority prize",
	ReasonTooStrictRating:         "Rating criteria excluded every player",
	ReasonTooStrictAge:            "Age criteria excluded every player",
	ReasonTooStrictGender:         "Gender criteria excluded every player",
	ReasonTooStrictLocation:       "Location criteria excluded every player",
	ReasonTooStrictType:           "Type or group criteria excluded every player",
	ReasonNoEligiblePlayers:       "No eligible players for this category",
	ReasonInternalError:           "Internal allocation error — contact support",
}

// diagnosisAxes is the fixed axis precedence for empty-pool diagnosis:
// rating, then age, gender, location, type/group. First axis with any
// observed failures wins.
var diagnosisAxes = []struct {
	reason ReasonCode
	codes  []FailCode
}{
	{ReasonTooStrictRating, []FailCode{FailRatedExcluded, FailUnratedExcluded, FailRatingBelowMin, FailRatingAboveMax}},
	{ReasonTooStrictAge, []FailCode{FailDOBMissing, FailAgeAboveMax, FailAgeBelowMin}},
	{ReasonTooStrictGender, []FailCode{FailGenderMissing, FailGenderMismatch}},
	{ReasonTooStrictLocation, []FailCode{FailStateExcluded, FailCityExcluded, FailClubExcluded}},
	{ReasonTooStrictType, []FailCode{FailDisabilityExcluded, FailGroupExcluded, FailTypeExcluded}},
}

// Diagnose derives the one reason code for an unfilled prize from its pool
// statistics. Precedence, first match wins:
//  1. players existed but exclusivity consumed them all
//  2. nobody was ever eligible — blame the first criteria axis with failures,
//     or NO_ELIGIBLE_PLAYERS when the histogram is empty
//  3. candidates remained yet no winner was chosen — a scheduler defect
func Diagnose(beforeCount, afterCount int, hist map[FailCode]int) ReasonCode {
	if beforeCount > 0 && afterCount == 0 {
		return ReasonBlockedByOnePrizePolicy
	}
	if beforeCount == 0 {
		for _, axis := range diagnosisAxes {
			for _, code := range axis.codes {
				if hist[code] > 0 {
					return axis.reason
				}
			}
		}
		return ReasonNoEligiblePlayers
	}
	return ReasonInternalError
}
