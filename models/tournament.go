package models

import (
	"time"
)

// TournamentStatus tracks the result lifecycle of a tournament
type TournamentStatus string

const (
	TournamentStatusDraft     TournamentStatus = "draft"     // being configured, allocation can be previewed
	TournamentStatusFinalized TournamentStatus = "finalized" // at least one allocation version committed
	TournamentStatusPublished TournamentStatus = "published" // results visible to players
)

// Tournament is the allocation scope: one competitor table, one category/prize
// configuration, one append-only version log.
type Tournament struct {
	ID      string           `json:"id" gorm:"primaryKey"`
	Name    string           `json:"name" gorm:"not null"`
	Slug    string           `json:"slug" gorm:"uniqueIndex"`
	OwnerID string           `json:"owner_id" gorm:"index;not null"` // external organizer ID from the auth gateway
	Status  TournamentStatus `json:"status" gorm:"type:varchar(16);default:'draft'"`

	// ReferenceDate is the date ages are computed at (usually tournament start day).
	ReferenceDate time.Time `json:"reference_date" gorm:"not null"`

	// AllowUnratedInRatingCategories lets unrated competitors pass rating-bounded
	// categories instead of failing with unrated_excluded.
	AllowUnratedInRatingCategories bool `json:"allow_unrated_in_rating_categories" gorm:"default:false"`

	ResultsPublishAt *time.Time `json:"results_publish_at,omitempty"` // scheduler flips finalized → published
	FinalizedAt      *time.Time `json:"finalized_at,omitempty"`

	Timestamps

	// Relationships
	Competitors []Competitor `json:"competitors,omitempty" gorm:"foreignKey:TournamentID"`
	Categories  []Category   `json:"categories,omitempty" gorm:"foreignKey:TournamentID"`

	// Calculated fields (not stored in DB)
	CompetitorCount int64 `json:"competitor_count,omitempty" gorm:"-"`
	CurrentVersion  int   `json:"current_version,omitempty" gorm:"-"`
	OpenConflicts   int64 `json:"open_conflicts,omitempty" gorm:"-"`
}
