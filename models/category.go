package models

// CategoryType switches how a category picks its winners
type CategoryType string

const (
	CategoryTypeCriteria       CategoryType = "criteria"        // rank-ordered, criteria-filtered
	CategoryTypeYoungestFemale CategoryType = "youngest_female" // birth-date-ordered, gender F
	CategoryTypeYoungestMale   CategoryType = "youngest_male"   // birth-date-ordered, gender M
)

// CriteriaSet is the open-ended eligibility rule document. Every field is
// optional; an absent field leaves that axis unconstrained. Unrecognized axes
// are rejected at the request-parsing boundary and never reach evaluation.
// Allow-lists are stored as comma-separated columns (see SplitList).
type CriteriaSet struct {
	Gender *Gender `json:"gender,omitempty" gorm:"type:varchar(8)"`

	MinAge *int `json:"min_age,omitempty"`
	MaxAge *int `json:"max_age,omitempty"`
	// RequireExactDOB makes imputed (year-only) birth dates count as missing
	// for age checks.
	RequireExactDOB bool `json:"require_exact_dob" gorm:"default:false"`

	MinRating *int `json:"min_rating,omitempty"`
	MaxRating *int `json:"max_rating,omitempty"`
	// UnratedOnly admits only competitors without a rating. Mutually exclusive
	// with rating bounds; the configuration boundary rejects both together.
	UnratedOnly bool `json:"unrated_only" gorm:"default:false"`

	Disabilities string `json:"disabilities,omitempty"`
	States       string `json:"states,omitempty"`
	Cities       string `json:"cities,omitempty"`
	Clubs        string `json:"clubs,omitempty"`
	GroupLabels  string `json:"group_labels,omitempty"`
	TypeLabels   string `json:"type_labels,omitempty"`
}

// HasRatingBounds reports whether a rating range is configured.
func (cs *CriteriaSet) HasRatingBounds() bool {
	return cs.MinRating != nil || cs.MaxRating != nil
}

// HasAgeBounds reports whether an age range is configured.
func (cs *CriteriaSet) HasAgeBounds() bool {
	return cs.MinAge != nil || cs.MaxAge != nil
}

// Category is a named group of prizes sharing one criteria set. Inactive
// categories contribute no prizes to scheduling.
type Category struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	TournamentID string       `json:"tournament_id" gorm:"index;not null"`
	Name         string       `json:"name" gorm:"not null"`
	IsMain       bool         `json:"is_main" gorm:"default:false"`
	IsActive     bool         `json:"is_active" gorm:"default:true"`
	OrderIdx     int          `json:"order_idx" gorm:"default:0"` // scheduling priority and tie-break
	Type         CategoryType `json:"type" gorm:"type:varchar(24);default:'criteria'"`

	Criteria CriteriaSet `json:"criteria" gorm:"embedded;embeddedPrefix:criteria_"`

	Timestamps

	Prizes []Prize `json:"prizes,omitempty" gorm:"foreignKey:CategoryID"`
}

// IsYoungest reports whether winner selection runs on birth-date order
// instead of rank order.
func (c *Category) IsYoungest() bool {
	return c.Type == CategoryTypeYoungestFemale || c.Type == CategoryTypeYoungestMale
}

// YoungestGender returns the gender a youngest-category restricts to.
func (c *Category) YoungestGender() Gender {
	if c.Type == CategoryTypeYoungestMale {
		return GenderMale
	}
	return GenderFemale
}
