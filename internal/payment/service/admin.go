package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/orm"
	"bullrush.com/pkg/xerr"
)

const (
	HistoryDeposit    = "deposit_request"
	HistoryAdjustment = "admin_adjustment"

	adjustAttempts = 3

	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

type AdminService struct {
	users domain.UserRepo
	admin domain.AdminRepo
	now   func() time.Time
}

func NewAdminService(users domain.UserRepo, admin domain.AdminRepo) *AdminService {
	return &AdminService{users: users, admin: admin, now: utcNow}
}

func (s *AdminService) ListUsers(ctx context.Context, page, size int) ([]*domain.User, int64, error) {
	page, size = orm.NormalizePage(page, size)
	return s.admin.ListUsers(ctx, page, size)
}

func (s *AdminService) SearchUsers(ctx context.Context, query string, limit int) ([]*domain.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, xerr.New(xerr.RequestParamsError, "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	return s.admin.SearchUsers(ctx, query, limit)
}

// AdjustBalance sets the balance and records the difference as a credit or
// debit. Setting the current balance again writes nothing. The write only
// lands on the balance that was read; a credit or debit racing in between
// forces a re-read so the audit delta stays exact.
func (s *AdminService) AdjustBalance(ctx context.Context, adminID, userID string, newBalance decimal.Decimal) (*domain.User, error) {
	if newBalance.IsNegative() {
		return nil, xerr.New(xerr.RequestParamsError, "balance cannot be negative")
	}
	var err error
	for attempt := 0; attempt < adjustAttempts; attempt++ {
		var user *domain.User
		user, err = s.adjustOnce(ctx, adminID, userID, newBalance)
		if xerr.CodeOf(err) == xerr.BalanceChanged {
			logger.Warn(ctx, "balance moved during admin adjustment, retrying",
				zap.String("user_id", userID), zap.Int("attempt", attempt+1))
			continue
		}
		return user, err
	}
	return nil, err
}

func (s *AdminService) adjustOnce(ctx context.Context, adminID, userID string, newBalance decimal.Decimal) (*domain.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	old := user.TokenBalance
	diff := newBalance.Sub(old)
	if diff.IsZero() {
		return user, nil
	}

	kind := domain.AdminCredit
	if diff.IsNegative() {
		kind = domain.AdminDebit
	}
	audit := &domain.AdminTransaction{
		UserID:          userID,
		AdminID:         adminID,
		Amount:          diff.Abs(),
		TransactionType: kind,
		Description:     fmt.Sprintf("Admin %s of %s tokens", kind, diff.Abs().String()),
		CreatedAt:       s.now(),
	}
	if err := s.admin.SetBalance(ctx, userID, old, newBalance, audit); err != nil {
		return nil, err
	}
	logger.Info(ctx, "balance adjusted by admin",
		zap.String("admin_id", adminID),
		zap.String("user_id", userID),
		zap.String("old", old.String()),
		zap.String("new", newBalance.String()),
	)
	user.TokenBalance = newBalance
	return user, nil
}

func (s *AdminService) ToggleActive(ctx context.Context, userID string, active bool) error {
	if err := s.admin.SetActive(ctx, userID, active); err != nil {
		return err
	}
	logger.Info(ctx, "user active flag changed", zap.String("user_id", userID), zap.Bool("active", active))
	return nil
}

// History merges deposit requests and admin adjustments newest first and pages the result.
func (s *AdminService) History(ctx context.Context, userID string, page, size int) ([]domain.HistoryItem, int64, error) {
	page, size = orm.NormalizePage(page, size)

	deposits, err := s.admin.ListUserDeposits(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	adjustments, err := s.admin.ListAdminTransactions(ctx, userID)
	if err != nil {
		return nil, 0, err
	}

	items := make([]domain.HistoryItem, 0, len(deposits)+len(adjustments))
	for _, d := range deposits {
		it := domain.HistoryItem{
			ID:        d.ID,
			Kind:      HistoryDeposit,
			Amount:    d.AmountUSDT,
			Status:    string(d.Status),
			PlanType:  string(d.PlanType),
			CreatedAt: d.CreatedAt,
		}
		if d.TxHash != nil {
			it.TxHash = *d.TxHash
		}
		items = append(items, it)
	}
	for _, a := range adjustments {
		items = append(items, domain.HistoryItem{
			ID:        a.ID,
			Kind:      HistoryAdjustment,
			Amount:    a.Amount,
			Status:    a.TransactionType,
			CreatedAt: a.CreatedAt,
		})
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := int64(len(items))
	start := (page - 1) * size
	if start >= len(items) {
		return []domain.HistoryItem{}, total, nil
	}
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], total, nil
}

func (s *AdminService) Stats(ctx context.Context) (*domain.Stats, error) {
	return s.admin.Stats(ctx, s.now().Add(-24*time.Hour))
}
