package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

const (
	SubjectDepositApproved     = "deposit.approved"
	SubjectWithdrawalRequested = "withdrawal.requested"
	SubjectWithdrawalProcessed = "withdrawal.processed"
)

// Publisher emits best-effort notifications after state has been committed.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

type DepositApprovedEvent struct {
	RequestID    string          `json:"requestId"`
	UserID       string          `json:"userId"`
	InvestmentID string          `json:"investmentId"`
	Amount       decimal.Decimal `json:"amount"`
	Plan         Plan            `json:"plan"`
	TxHash       string          `json:"txHash"`
}

type WithdrawalEvent struct {
	WithdrawalID string           `json:"withdrawalId"`
	UserID       string           `json:"userId"`
	Amount       decimal.Decimal  `json:"amount"`
	Method       string           `json:"method"`
	Status       WithdrawalStatus `json:"status"`
	TxHash       string           `json:"txHash,omitempty"`
}
