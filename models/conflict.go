package models

import "time"

// ConflictType classifies what a manual edit broke
type ConflictType string

const (
	// ConflictDuplicateAward — one competitor assigned to more than one prize
	ConflictDuplicateAward ConflictType = "duplicate_award"
	// ConflictIneligibleAward — competitor fails the category's criteria
	ConflictIneligibleAward ConflictType = "ineligible_award"
)

type ConflictStatus string

const (
	ConflictStatusOpen     ConflictStatus = "open"
	ConflictStatusResolved ConflictStatus = "resolved"
)

// AllocationConflict records a state a manual edit produced that the engine
// would not reach automatically. Conflicts transition open → resolved only,
// either by explicit organizer decision or as a side effect of finalize
// accepting the edited decision set.
type AllocationConflict struct {
	ID           string       `json:"id" gorm:"primaryKey"`
	TournamentID string       `json:"tournament_id" gorm:"index;not null"`
	Type         ConflictType `json:"type" gorm:"type:varchar(32);not null"`

	// Impacted entities and evaluator reasons, comma-separated (see SplitList).
	CompetitorIDs string `json:"competitor_ids"`
	PrizeIDs      string `json:"prize_ids"`
	Reasons       string `json:"reasons"`

	SuggestedResolution string `json:"suggested_resolution"`

	Status     ConflictStatus `json:"status" gorm:"type:varchar(16);default:'open';index"`
	ResolvedBy string         `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Resolution string         `json:"resolution,omitempty"` // organizer note recorded on resolve

	Timestamps
}
