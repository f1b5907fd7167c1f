package repo

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/xerr"
)

func (r *Repo) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	if err := r.getDb(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, dbErr(err, "get user")
	}
	return &u, nil
}

func (r *Repo) FindUserByCode(ctx context.Context, code string) (*domain.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, xerr.NewKind(xerr.KindNotFound, "empty referral code")
	}
	var u domain.User
	err := r.getDb(ctx).
		Where("referral_code = ? OR id = ?", strings.ToUpper(code), code).
		First(&u).Error
	if err != nil {
		return nil, dbErr(err, "find user by code")
	}
	return &u, nil
}

func (r *Repo) CreateUser(ctx context.Context, u *domain.User) error {
	if err := r.getDb(ctx).Create(u).Error; err != nil {
		return dbErr(err, "create user")
	}
	return nil
}

func (r *Repo) UpdateProfile(ctx context.Context, id, email, firstName, lastName string) error {
	res := r.getDb(ctx).Model(&domain.User{}).Where("id = ?", id).Updates(map[string]any{
		"email":      email,
		"first_name": firstName,
		"last_name":  lastName,
	})
	if res.Error != nil {
		return dbErr(res.Error, "update profile")
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "user not found")
	}
	return nil
}

func (r *Repo) DeleteUser(ctx context.Context, id string) error {
	if err := r.getDb(ctx).Where("id = ?", id).Delete(&domain.User{}).Error; err != nil {
		return dbErr(err, "delete user")
	}
	return nil
}

// CreditBalance
// SQL: UPDATE users SET token_balance = token_balance + ? WHERE id = ?
func (r *Repo) CreditBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	res := r.getDb(ctx).Model(&domain.User{}).Where("id = ?", id).
		Update("token_balance", gorm.Expr("token_balance + ?", amount))
	if res.Error != nil {
		return dbErr(res.Error, "credit balance")
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "user not found")
	}
	return nil
}

// DebitBalance is the only path that lowers a balance outside admin tooling.
// SQL: UPDATE users SET token_balance = token_balance - ? WHERE id = ? AND token_balance >= ?
func (r *Repo) DebitBalance(ctx context.Context, id string, amount decimal.Decimal) error {
	res := r.getDb(ctx).Model(&domain.User{}).
		Where("id = ? AND token_balance >= ?", id, amount).
		Update("token_balance", gorm.Expr("token_balance - ?", amount))
	if res.Error != nil {
		return dbErr(res.Error, "debit balance")
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.InsufficientBalance, "insufficient balance")
	}
	return nil
}

func (r *Repo) SetReferrer(ctx context.Context, userID, referrerID string) (bool, error) {
	res := r.getDb(ctx).Model(&domain.User{}).
		Where("id = ? AND referrer_id IS NULL", userID).
		Update("referrer_id", referrerID)
	if res.Error != nil {
		return false, dbErr(res.Error, "set referrer")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) IsActiveAdmin(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.getDb(ctx).Model(&domain.User{}).
		Where("id = ? AND is_admin = ? AND is_active = ?", id, true, true).
		Count(&n).Error
	if err != nil {
		return false, dbErr(err, "check admin")
	}
	return n > 0, nil
}
