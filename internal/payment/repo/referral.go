package repo

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"

	"bullrush.com/internal/payment/domain"
)

// InsertBonus relies on idx_bonus_once so a re-walk of the same investment is a no-op.
func (r *Repo) InsertBonus(ctx context.Context, b *domain.ReferralBonus) (bool, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	res := r.getDb(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "referrer_id"}, {Name: "investment_id"}, {Name: "level"}, {Name: "bonus_type"},
		},
		DoNothing: true,
	}).Create(b)
	if res.Error != nil {
		return false, dbErr(res.Error, "insert referral bonus")
	}
	return res.RowsAffected == 1, nil
}

func (r *Repo) ListBonusesByInvestment(ctx context.Context, investmentID string) ([]*domain.ReferralBonus, error) {
	list := make([]*domain.ReferralBonus, 0)
	err := r.getDb(ctx).
		Where("investment_id = ?", investmentID).
		Order("level, bonus_type").
		Find(&list).Error
	if err != nil {
		return nil, dbErr(err, "list referral bonuses")
	}
	return list, nil
}
