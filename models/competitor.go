package models

import "time"

// Gender is the imported gender value; nil on the competitor means unknown.
type Gender string

const (
	GenderMale   Gender = "M"
	GenderFemale Gender = "F"
	GenderOther  Gender = "Other"
)

// Competitor is one imported, ranked participant. Rows are produced by the
// import/dedup service (see workers.CompetitorSyncWorker) and are read-only to
// the allocation engine. Every field except Rank and Name can legitimately be
// missing — eligibility evaluation must degrade to fail codes, never errors.
type Competitor struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"index;not null;uniqueIndex:idx_tournament_external_ref"`

	// ExternalRef is the import service's stable identifier; nil for
	// competitors entered by hand.
	ExternalRef *string `json:"external_ref,omitempty" gorm:"uniqueIndex:idx_tournament_external_ref"`

	Rank int    `json:"rank" gorm:"not null;index"` // ordering key from the rating list, 1 = best
	Name string `json:"name" gorm:"not null"`

	Rating *int `json:"rating,omitempty"` // nil = unrated, a distinct state from rating 0

	BirthDate *time.Time `json:"birth_date,omitempty"`
	// BirthDateImputed marks year-only imports normalized to Jan 1 by the import boundary.
	BirthDateImputed bool `json:"birth_date_imputed" gorm:"default:false"`

	Gender *Gender `json:"gender,omitempty" gorm:"type:varchar(8)"`

	State      *string `json:"state,omitempty"`
	City       *string `json:"city,omitempty"`
	Club       *string `json:"club,omitempty"`
	Disability *string `json:"disability,omitempty"`
	GroupLabel *string `json:"group_label,omitempty"`
	TypeLabel  *string `json:"type_label,omitempty"`

	Timestamps
}

// IsRated reports whether the competitor carries a rating at all.
func (c *Competitor) IsRated() bool {
	return c.Rating != nil
}
