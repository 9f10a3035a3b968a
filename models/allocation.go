package models

import "time"

// AllocationVersion is one committed allocation run. The (tournament_id,
// version) unique index is the serialization point for concurrent finalizes:
// the version row is inserted first inside the commit transaction, so two
// organizers committing at once can never mint the same version twice.
type AllocationVersion struct {
	ID           string    `json:"id" gorm:"primaryKey"`
	TournamentID string    `json:"tournament_id" gorm:"not null;uniqueIndex:idx_tournament_version"`
	Version      int       `json:"version" gorm:"not null;uniqueIndex:idx_tournament_version"`
	CommittedBy  string    `json:"committed_by" gorm:"not null"`
	DecisionCount int      `json:"decision_count" gorm:"default:0"`
	CommittedAt  time.Time `json:"committed_at" gorm:"autoCreateTime"`
}

// AllocationDecision is one awarded (prize, competitor) pair at one version.
// Rows are append-only: commits only insert, nothing ever mutates or deletes
// them. Unfilled prizes produce no row. "Current" decisions are the rows at
// the tournament's highest version.
type AllocationDecision struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"index;not null"`
	Version      int    `json:"version" gorm:"index;not null"`

	PrizeID      string `json:"prize_id" gorm:"not null"`
	CompetitorID string `json:"competitor_id" gorm:"not null"`

	// ReasonCodes carries the evaluator annotations attached to a manual
	// override, comma-separated. Empty for clean automatic decisions.
	ReasonCodes string `json:"reason_codes,omitempty"`
	IsManual    bool   `json:"is_manual" gorm:"default:false"`

	DecidedBy string    `json:"decided_by" gorm:"not null"`
	DecidedAt time.Time `json:"decided_at" gorm:"autoCreateTime"`
}
