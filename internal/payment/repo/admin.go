package repo

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/orm"
	"bullrush.com/pkg/xerr"
)

func (r *Repo) ListUsers(ctx context.Context, page, size int) ([]*domain.User, int64, error) {
	var total int64
	if err := r.getDb(ctx).Model(&domain.User{}).Count(&total).Error; err != nil {
		return nil, 0, dbErr(err, "count users")
	}
	users := make([]*domain.User, 0)
	q := r.getDb(ctx).Order("token_balance DESC").Order("created_at")
	if err := orm.ApplyPagination(q, page, size).Find(&users).Error; err != nil {
		return nil, 0, dbErr(err, "list users")
	}
	return users, total, nil
}

// SearchUsers matches email or either name, case-insensitively.
func (r *Repo) SearchUsers(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	like := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
	users := make([]*domain.User, 0)
	err := r.getDb(ctx).
		Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like).
		Order("token_balance DESC").
		Limit(limit).
		Find(&users).Error
	if err != nil {
		return nil, dbErr(err, "search users")
	}
	return users, nil
}

// SetBalance is a compare-and-swap on token_balance.
// SQL: UPDATE users SET token_balance = ? WHERE id = ? AND token_balance = ?
func (r *Repo) SetBalance(ctx context.Context, userID string, expected, newBalance decimal.Decimal, audit *domain.AdminTransaction) error {
	return r.Transaction(ctx, func(txCtx context.Context) error {
		res := r.getDb(txCtx).Model(&domain.User{}).
			Where("id = ? AND token_balance = ?", userID, expected).
			Update("token_balance", newBalance)
		if res.Error != nil {
			return dbErr(res.Error, "set balance")
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := r.getDb(txCtx).Model(&domain.User{}).Where("id = ?", userID).Count(&n).Error; err != nil {
				return dbErr(err, "set balance")
			}
			if n == 0 {
				return xerr.New(xerr.RecordNotFound, "user not found")
			}
			return xerr.New(xerr.BalanceChanged, "balance changed while it was being adjusted")
		}
		if audit.ID == "" {
			audit.ID = uuid.NewString()
		}
		if err := r.getDb(txCtx).Create(audit).Error; err != nil {
			return dbErr(err, "insert admin transaction")
		}
		return nil
	})
}

func (r *Repo) SetActive(ctx context.Context, userID string, active bool) error {
	res := r.getDb(ctx).Model(&domain.User{}).Where("id = ?", userID).Update("is_active", active)
	if res.Error != nil {
		return dbErr(res.Error, "set active")
	}
	if res.RowsAffected == 0 {
		return xerr.New(xerr.RecordNotFound, "user not found")
	}
	return nil
}

func (r *Repo) ListUserDeposits(ctx context.Context, userID string) ([]*domain.DepositRequest, error) {
	list := make([]*domain.DepositRequest, 0)
	err := r.getDb(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list user deposits")
	}
	return list, nil
}

func (r *Repo) ListAdminTransactions(ctx context.Context, userID string) ([]*domain.AdminTransaction, error) {
	list := make([]*domain.AdminTransaction, 0)
	err := r.getDb(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list admin transactions")
	}
	return list, nil
}

func (r *Repo) Stats(ctx context.Context, since time.Time) (*domain.Stats, error) {
	st := &domain.Stats{}
	db := r.getDb(ctx)
	if err := db.Model(&domain.User{}).Count(&st.TotalUsers).Error; err != nil {
		return nil, dbErr(err, "count users")
	}
	var sum decimal.NullDecimal
	if err := db.Model(&domain.User{}).Select("SUM(token_balance)").Row().Scan(&sum); err != nil {
		return nil, dbErr(err, "sum balances")
	}
	st.TotalTokens = decimal.Zero
	if sum.Valid {
		st.TotalTokens = sum.Decimal
	}
	if err := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("status = ?", domain.DepositPending).
		Count(&st.PendingRequests).Error; err != nil {
		return nil, dbErr(err, "count pending requests")
	}
	if err := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("created_at >= ?", since).
		Count(&st.RecentRequests24).Error; err != nil {
		return nil, dbErr(err, "count recent requests")
	}
	return st, nil
}
