package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type DepositStatus string

const (
	DepositPending    DepositStatus = "pending"
	DepositApproved   DepositStatus = "approved"
	DepositConflicted DepositStatus = "conflicted"
	DepositExpired    DepositStatus = "expired"
	DepositDuplicate  DepositStatus = "duplicate"
	DepositFailed     DepositStatus = "failed"
)

type Plan string

const (
	PlanMonthly    Plan = "monthly"
	PlanHalfYearly Plan = "half-yearly"
	PlanYearly     Plan = "yearly"
)

// ParsePlan maps unknown input to monthly.
func ParsePlan(s string) Plan {
	switch Plan(s) {
	case PlanHalfYearly, PlanYearly:
		return Plan(s)
	default:
		return PlanMonthly
	}
}

type DepositRequest struct {
	ID             string           `gorm:"primaryKey;size:36"`
	UserID         string           `gorm:"size:64;index;not null"`
	AmountUSDT     decimal.Decimal  `gorm:"column:amount_usdt;type:decimal(36,6);not null"`
	Status         DepositStatus    `gorm:"size:16;index;not null"`
	DetectedAmount *decimal.Decimal `gorm:"type:decimal(36,6)"`
	TxHash         *string          `gorm:"size:80;uniqueIndex"`
	PlanType       Plan             `gorm:"size:16;not null"`
	CreatedAt      time.Time        `gorm:"index"`
	ExpiresAt      time.Time        `gorm:"index"`
}

func (DepositRequest) TableName() string { return "token_requests" }

// Overdue reports whether a pending request has passed its expiry at now.
func (r *DepositRequest) Overdue(now time.Time) bool {
	return r.Status == DepositPending && now.After(r.ExpiresAt)
}

type InvestmentStatus string

const InvestmentActive InvestmentStatus = "active"

type Investment struct {
	ID             string           `gorm:"primaryKey;size:36"`
	UserID         string           `gorm:"size:64;index;not null"`
	AmountTokens   decimal.Decimal  `gorm:"type:decimal(36,6);not null"`
	InitialAmount  decimal.Decimal  `gorm:"type:decimal(36,6);not null"`
	PlanType       Plan             `gorm:"size:16;not null"`
	Status         InvestmentStatus `gorm:"size:16;index;not null"`
	StartDate      time.Time
	TokenRequestID *string `gorm:"size:36;uniqueIndex"`
	CreatedAt      time.Time
}

const TxTypeInvestmentDeposit = "investment_deposit"

// Transaction is the append-only audit trail of credits.
type Transaction struct {
	ID           string          `gorm:"primaryKey;size:36"`
	UserID       string          `gorm:"size:64;index;not null"`
	Type         string          `gorm:"size:32;not null"`
	Amount       decimal.Decimal `gorm:"type:decimal(36,6);not null"`
	PlanType     Plan            `gorm:"size:16"`
	InvestmentID string          `gorm:"size:36;index"`
	Description  string          `gorm:"size:255"`
	CreatedAt    time.Time
}

type DepositRepo interface {
	CreateDepositRequest(ctx context.Context, r *DepositRequest) error
	GetDepositRequest(ctx context.Context, id string) (*DepositRequest, error)
	// ListOpenRequests returns pending requests that have not expired at now.
	ListOpenRequests(ctx context.Context, now time.Time) ([]*DepositRequest, error)
	// RequestByTxHash finds the request that owns hash, if any.
	RequestByTxHash(ctx context.Context, hash string) (*DepositRequest, error)
	// ClaimedHashes returns hash -> owning request id for the hashes already stored.
	ClaimedHashes(ctx context.Context, hashes []string) (map[string]string, error)

	// The transition methods are compare-and-swap: false means the row was not
	// in the expected state.
	ApproveRequest(ctx context.Context, id, txHash string, detected decimal.Decimal) (bool, error)
	RevertApproval(ctx context.Context, id string) (bool, error)
	MarkConflicted(ctx context.Context, id, txHash string, detected decimal.Decimal) (bool, error)
	ExpireRequest(ctx context.Context, id string, now time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type InvestmentRepo interface {
	CreateInvestment(ctx context.Context, inv *Investment) error
	DeleteInvestment(ctx context.Context, id string) error
	GetInvestment(ctx context.Context, id string) (*Investment, error)
	ListActiveInvestments(ctx context.Context, userID string) ([]*Investment, error)
	CreateTransaction(ctx context.Context, tx *Transaction) error
}
