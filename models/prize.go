package models

// Prize is a single ranked award slot within a category. Place 1 is the best
// slot and claims the best-ordered eligible competitor first.
type Prize struct {
	ID           string `json:"id" gorm:"primaryKey"`
	CategoryID   string `json:"category_id" gorm:"not null;uniqueIndex:idx_category_place"`
	TournamentID string `json:"tournament_id" gorm:"index;not null"`

	Place      int     `json:"place" gorm:"not null;uniqueIndex:idx_category_place"`
	CashAmount float64 `json:"cash_amount" gorm:"default:0"`
	Trophy     bool    `json:"trophy" gorm:"default:false"`
	Medal      bool    `json:"medal" gorm:"default:false"`
	IsActive   bool    `json:"is_active" gorm:"default:true"`

	Timestamps
}

// IsMeaningful reports whether the prize awards anything at all. Enforced at
// the configuration boundary; the allocation engine assumes it.
func (p *Prize) IsMeaningful() bool {
	return p.CashAmount > 0 || p.Trophy || p.Medal
}
