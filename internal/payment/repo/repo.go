package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/xerr"
)

type txKey struct{}

type Repo struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

var (
	_ domain.UserRepo       = (*Repo)(nil)
	_ domain.DepositRepo    = (*Repo)(nil)
	_ domain.InvestmentRepo = (*Repo)(nil)
	_ domain.ReferralRepo   = (*Repo)(nil)
	_ domain.WithdrawalRepo = (*Repo)(nil)
	_ domain.AdminRepo      = (*Repo)(nil)
)

// Models lists every table owned by the service, in migration order.
func Models() []any {
	return []any{
		&domain.User{},
		&domain.DepositRequest{},
		&domain.Investment{},
		&domain.Transaction{},
		&domain.ReferralBonus{},
		&domain.Withdrawal{},
		&domain.PayoutWallet{},
		&domain.AdminTransaction{},
	}
}

func (r *Repo) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(Models()...)
}

// Transaction runs fn with a tx-bound context; repo calls made with that
// context join the transaction.
func (r *Repo) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func (r *Repo) getDb(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func dbErr(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return xerr.Wrap(err, xerr.KindNotFound, msg+": not found")
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return xerr.Wrap(err, xerr.KindConflict, msg+": already exists")
	}
	return xerr.Wrap(err, xerr.KindInternal, msg)
}
