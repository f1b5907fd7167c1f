package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending  WithdrawalStatus = "pending"
	WithdrawalSent     WithdrawalStatus = "sent"
	WithdrawalRejected WithdrawalStatus = "rejected"
	WithdrawalFailed   WithdrawalStatus = "failed"
)

// Decision is the admin verdict on a pending withdrawal.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

const (
	MethodTron   = "Tron Wallet"
	MethodMobile = "Mobile Money"
)

type Withdrawal struct {
	ID            string           `gorm:"primaryKey;size:36"`
	UserID        string           `gorm:"size:64;index;not null"`
	Amount        decimal.Decimal  `gorm:"type:decimal(36,6);not null"`
	WalletAddress *string          `gorm:"size:64"`
	PhoneNumber   *string          `gorm:"size:20"`
	Status        WithdrawalStatus `gorm:"size:16;index;not null"`
	TxHash        *string          `gorm:"size:80"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (w *Withdrawal) OnChain() bool { return w.WalletAddress != nil && *w.WalletAddress != "" }

func (w *Withdrawal) Method() string {
	if w.OnChain() {
		return MethodTron
	}
	return MethodMobile
}

// WithdrawalView is a withdrawal joined with its owner for the admin list.
type WithdrawalView struct {
	Withdrawal
	UserEmail string `gorm:"column:user_email"`
	FirstName string `gorm:"column:first_name"`
	LastName  string `gorm:"column:last_name"`
}

type PayoutWallet struct {
	ID         string          `gorm:"primaryKey;size:36"`
	Name       string          `gorm:"size:100;not null"`
	Address    string          `gorm:"size:64;uniqueIndex;not null"`
	PrivateKey string          `gorm:"type:text;not null" json:"-"`
	Balance    decimal.Decimal `gorm:"type:decimal(36,6);not null;default:0"`
	IsActive   bool            `gorm:"not null;default:true"`
	CreatedAt  time.Time
}

type WithdrawalRepo interface {
	CreateWithdrawal(ctx context.Context, w *Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*Withdrawal, error)
	// TransitionWithdrawal moves id from -> to, optionally stamping txHash.
	TransitionWithdrawal(ctx context.Context, id string, from, to WithdrawalStatus, txHash *string) (bool, error)
	ListWithdrawals(ctx context.Context, page, size int) ([]*WithdrawalView, int64, error)

	CreatePayoutWallet(ctx context.Context, w *PayoutWallet) error
	GetPayoutWallet(ctx context.Context, id string) (*PayoutWallet, error)
	ListPayoutWallets(ctx context.Context) ([]*PayoutWallet, error)
}
