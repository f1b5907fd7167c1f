package repo

import (
	"context"

	"github.com/google/uuid"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/orm"
)

func (r *Repo) CreateWithdrawal(ctx context.Context, w *domain.Withdrawal) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if err := r.getDb(ctx).Create(w).Error; err != nil {
		return dbErr(err, "create withdrawal")
	}
	return nil
}

func (r *Repo) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	var w domain.Withdrawal
	if err := r.getDb(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, dbErr(err, "get withdrawal")
	}
	return &w, nil
}

func (r *Repo) TransitionWithdrawal(ctx context.Context, id string, from, to domain.WithdrawalStatus, txHash *string) (bool, error) {
	updates := map[string]any{"status": to}
	if txHash != nil {
		updates["tx_hash"] = *txHash
	}
	res := r.getDb(ctx).Model(&domain.Withdrawal{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, dbErr(res.Error, "transition withdrawal")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListWithdrawals(ctx context.Context, page, size int) ([]*domain.WithdrawalView, int64, error) {
	var total int64
	if err := r.getDb(ctx).Model(&domain.Withdrawal{}).Count(&total).Error; err != nil {
		return nil, 0, dbErr(err, "count withdrawals")
	}

	views := make([]*domain.WithdrawalView, 0)
	q := r.getDb(ctx).Table("withdrawals AS w").
		Select("w.*, u.email AS user_email, u.first_name AS first_name, u.last_name AS last_name").
		Joins("LEFT JOIN users u ON u.id = w.user_id").
		Order("w.created_at DESC")
	if err := orm.ApplyPagination(q, page, size).Scan(&views).Error; err != nil {
		return nil, 0, dbErr(err, "list withdrawals")
	}
	return views, total, nil
}

func (r *Repo) CreatePayoutWallet(ctx context.Context, w *domain.PayoutWallet) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	if err := r.getDb(ctx).Create(w).Error; err != nil {
		return dbErr(err, "create payout wallet")
	}
	return nil
}

func (r *Repo) GetPayoutWallet(ctx context.Context, id string) (*domain.PayoutWallet, error) {
	var w domain.PayoutWallet
	if err := r.getDb(ctx).Where("id = ?", id).First(&w).Error; err != nil {
		return nil, dbErr(err, "get payout wallet")
	}
	return &w, nil
}

func (r *Repo) ListPayoutWallets(ctx context.Context) ([]*domain.PayoutWallet, error) {
	list := make([]*domain.PayoutWallet, 0)
	err := r.getDb(ctx).Where("is_active = ?", true).Order("created_at").Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list payout wallets")
	}
	return list, nil
}
