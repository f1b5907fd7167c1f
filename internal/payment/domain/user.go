package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// User mirrors the identity provider profile plus the custodial balance.
type User struct {
	ID           string          `gorm:"primaryKey;size:64"`
	Email        string          `gorm:"size:255;index"`
	FirstName    string          `gorm:"size:100"`
	LastName     string          `gorm:"size:100"`
	TokenBalance decimal.Decimal `gorm:"type:decimal(36,6);not null;default:0"`
	IsAdmin      bool            `gorm:"not null;default:false"`
	IsActive     bool            `gorm:"not null;default:true"`
	ReferrerID   *string         `gorm:"size:64;index"`
	ReferralCode string          `gorm:"size:16;uniqueIndex"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

type UserRepo interface {
	GetUser(ctx context.Context, id string) (*User, error)
	// FindUserByCode resolves a referral code, falling back to the raw user id.
	FindUserByCode(ctx context.Context, code string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, id, email, firstName, lastName string) error
	DeleteUser(ctx context.Context, id string) error

	// CreditBalance adds amount unconditionally.
	CreditBalance(ctx context.Context, id string, amount decimal.Decimal) error
	// DebitBalance subtracts amount only if the balance covers it.
	DebitBalance(ctx context.Context, id string, amount decimal.Decimal) error
	// SetReferrer writes referrer_id once; false means it was already set.
	SetReferrer(ctx context.Context, userID, referrerID string) (bool, error)
	IsActiveAdmin(ctx context.Context, id string) (bool, error)
}
