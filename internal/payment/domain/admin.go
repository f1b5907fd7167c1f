package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AdminCredit = "credit"
	AdminDebit  = "debit"
)

// AdminTransaction records a manual balance adjustment.
type AdminTransaction struct {
	ID              string          `gorm:"primaryKey;size:36"`
	UserID          string          `gorm:"size:64;index;not null"`
	AdminID         string          `gorm:"size:64;not null"`
	Amount          decimal.Decimal `gorm:"type:decimal(36,6);not null"`
	TransactionType string          `gorm:"size:16;not null"`
	Description     string          `gorm:"size:255"`
	CreatedAt       time.Time
}

// HistoryItem is one row of the merged per-user history.
type HistoryItem struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"` // deposit_request | admin_adjustment
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	PlanType  string          `json:"planType,omitempty"`
	TxHash    string          `json:"txHash,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Stats struct {
	TotalUsers       int64           `json:"totalUsers"`
	TotalTokens      decimal.Decimal `json:"totalTokens"`
	PendingRequests  int64           `json:"pendingRequests"`
	RecentRequests24 int64           `json:"recentRequests24h"`
}

type AdminRepo interface {
	ListUsers(ctx context.Context, page, size int) ([]*User, int64, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]*User, error)
	// SetBalance swaps expected for newBalance and writes its audit row atomically.
	// A balance that moved since it was read is a BalanceChanged conflict.
	SetBalance(ctx context.Context, userID string, expected, newBalance decimal.Decimal, audit *AdminTransaction) error
	SetActive(ctx context.Context, userID string, active bool) error
	ListUserDeposits(ctx context.Context, userID string) ([]*DepositRequest, error)
	ListAdminTransactions(ctx context.Context, userID string) ([]*AdminTransaction, error)
	Stats(ctx context.Context, since time.Time) (*Stats, error)
}
