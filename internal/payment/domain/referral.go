package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type BonusType string

const (
	BonusFirstInvestment BonusType = "first_investment"
	BonusOngoing         BonusType = "ongoing"
)

type ReferralBonus struct {
	ID             string          `gorm:"primaryKey;size:36"`
	ReferrerID     string          `gorm:"size:64;not null;uniqueIndex:idx_bonus_once"`
	ReferredUserID string          `gorm:"size:64;not null;index"`
	InvestmentID   string          `gorm:"size:36;not null;uniqueIndex:idx_bonus_once"`
	Level          int             `gorm:"not null;uniqueIndex:idx_bonus_once"`
	BonusType      BonusType       `gorm:"size:24;not null;uniqueIndex:idx_bonus_once"`
	Amount         decimal.Decimal `gorm:"type:decimal(36,6);not null"`
	CreatedAt      time.Time
}

type ReferralRepo interface {
	// InsertBonus ignores a row that already exists for the unique key and
	// reports whether a new row was written.
	InsertBonus(ctx context.Context, b *ReferralBonus) (bool, error)
	ListBonusesByInvestment(ctx context.Context, investmentID string) ([]*ReferralBonus, error)
}
