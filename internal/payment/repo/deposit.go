package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bullrush.com/internal/payment/domain"
)

func (r *Repo) CreateDepositRequest(ctx context.Context, req *domain.DepositRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if err := r.getDb(ctx).Create(req).Error; err != nil {
		return dbErr(err, "create deposit request")
	}
	return nil
}

func (r *Repo) GetDepositRequest(ctx context.Context, id string) (*domain.DepositRequest, error) {
	var req domain.DepositRequest
	if err := r.getDb(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, dbErr(err, "get deposit request")
	}
	return &req, nil
}

func (r *Repo) ListOpenRequests(ctx context.Context, now time.Time) ([]*domain.DepositRequest, error) {
	reqs := make([]*domain.DepositRequest, 0)
	err := r.getDb(ctx).
		Where("status = ? AND expires_at >= ?", domain.DepositPending, now).
		Order("created_at").
		Find(&reqs).Error
	if err != nil {
		return nil, dbErr(err, "list open requests")
	}
	return reqs, nil
}

func (r *Repo) RequestByTxHash(ctx context.Context, hash string) (*domain.DepositRequest, error) {
	var req domain.DepositRequest
	if err := r.getDb(ctx).Where("tx_hash = ?", hash).First(&req).Error; err != nil {
		return nil, dbErr(err, "find request by hash")
	}
	return &req, nil
}

func (r *Repo) ClaimedHashes(ctx context.Context, hashes []string) (map[string]string, error) {
	out := make(map[string]string, len(hashes))
	if len(hashes) == 0 {
		return out, nil
	}
	var rows []struct {
		ID     string
		TxHash string
	}
	err := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Select("id, tx_hash").
		Where("tx_hash IN ?", hashes).
		Scan(&rows).Error
	if err != nil {
		return nil, dbErr(err, "load claimed hashes")
	}
	for _, row := range rows {
		out[row.TxHash] = row.ID
	}
	return out, nil
}

// ApproveRequest: pending -> approved. This CAS is the settlement linearization point.
func (r *Repo) ApproveRequest(ctx context.Context, id, txHash string, detected decimal.Decimal) (bool, error) {
	res := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("id = ? AND status = ?", id, domain.DepositPending).
		Updates(map[string]any{
			"status":          domain.DepositApproved,
			"tx_hash":         txHash,
			"detected_amount": detected,
		})
	if res.Error != nil {
		return false, dbErr(res.Error, "approve request")
	}
	return res.RowsAffected == 1, nil
}

// RevertApproval: approved -> pending, releasing the hash and detected amount.
func (r *Repo) RevertApproval(ctx context.Context, id string) (bool, error) {
	res := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("id = ? AND status = ?", id, domain.DepositApproved).
		Updates(map[string]any{
			"status":          domain.DepositPending,
			"tx_hash":         nil,
			"detected_amount": nil,
		})
	if res.Error != nil {
		return false, dbErr(res.Error, "revert approval")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) MarkConflicted(ctx context.Context, id, txHash string, detected decimal.Decimal) (bool, error) {
	res := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("id = ? AND status = ?", id, domain.DepositPending).
		Updates(map[string]any{
			"status":          domain.DepositConflicted,
			"tx_hash":         txHash,
			"detected_amount": detected,
		})
	if res.Error != nil {
		return false, dbErr(res.Error, "mark conflicted")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ExpireRequest(ctx context.Context, id string, now time.Time) (bool, error) {
	res := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("id = ? AND status = ? AND expires_at < ?", id, domain.DepositPending, now).
		Update("status", domain.DepositExpired)
	if res.Error != nil {
		return false, dbErr(res.Error, "expire request")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.getDb(ctx).Model(&domain.DepositRequest{}).
		Where("status = ? AND expires_at < ?", domain.DepositPending, now).
		Update("status", domain.DepositExpired)
	if res.Error != nil {
		return 0, dbErr(res.Error, "expire overdue requests")
	}
	return res.RowsAffected, nil
}

func (r *Repo) CreateInvestment(ctx context.Context, inv *domain.Investment) error {
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	if err := r.getDb(ctx).Create(inv).Error; err != nil {
		return dbErr(err, "create investment")
	}
	return nil
}

func (r *Repo) DeleteInvestment(ctx context.Context, id string) error {
	if err := r.getDb(ctx).Where("id = ?", id).Delete(&domain.Investment{}).Error; err != nil {
		return dbErr(err, "delete investment")
	}
	return nil
}

func (r *Repo) GetInvestment(ctx context.Context, id string) (*domain.Investment, error) {
	var inv domain.Investment
	if err := r.getDb(ctx).Where("id = ?", id).First(&inv).Error; err != nil {
		return nil, dbErr(err, "get investment")
	}
	return &inv, nil
}

func (r *Repo) ListActiveInvestments(ctx context.Context, userID string) ([]*domain.Investment, error) {
	list := make([]*domain.Investment, 0)
	err := r.getDb(ctx).
		Where("user_id = ? AND status = ?", userID, domain.InvestmentActive).
		Order("start_date").
		Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list investments")
	}
	return list, nil
}

func (r *Repo) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if err := r.getDb(ctx).Create(tx).Error; err != nil {
		return dbErr(err, "create transaction")
	}
	return nil
}
