package service

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/xerr"
)

// maxChainDepth bounds the cycle check when a referrer is assigned.
const maxChainDepth = 64

type ReferralConfig struct {
	Rates          []decimal.Decimal
	OngoingRate    decimal.Decimal
	Window         time.Duration
	ProfileRetries int
	RetryDelay     time.Duration
	Backfill       bool
}

func DefaultReferralConfig() ReferralConfig {
	return ReferralConfig{
		Rates: []decimal.Decimal{
			decimal.RequireFromString("0.05"),
			decimal.RequireFromString("0.02"),
			decimal.RequireFromString("0.01"),
			decimal.RequireFromString("0.005"),
			decimal.RequireFromString("0.0025"),
		},
		OngoingRate:    decimal.RequireFromString("0.02"),
		Window:         24 * time.Hour,
		ProfileRetries: 4,
		RetryDelay:     500 * time.Millisecond,
		Backfill:       true,
	}
}

type ReferralEngine struct {
	cfg         ReferralConfig
	users       domain.UserRepo
	investments domain.InvestmentRepo
	bonuses     domain.ReferralRepo
	now         func() time.Time
}

func NewReferralEngine(cfg ReferralConfig, users domain.UserRepo, investments domain.InvestmentRepo, bonuses domain.ReferralRepo) *ReferralEngine {
	def := DefaultReferralConfig()
	if len(cfg.Rates) == 0 {
		cfg.Rates = def.Rates
	}
	if len(cfg.Rates) > 5 {
		cfg.Rates = cfg.Rates[:5]
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.ProfileRetries <= 0 {
		cfg.ProfileRetries = def.ProfileRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = def.RetryDelay
	}
	return &ReferralEngine{cfg: cfg, users: users, investments: investments, bonuses: bonuses, now: utcNow}
}

// ApplyReferralCode links userID to the owner of code and backfills bonuses
// for the user's active investments. It returns how many investments were walked.
func (e *ReferralEngine) ApplyReferralCode(ctx context.Context, userID, code string) (int, error) {
	user, err := e.loadProfile(ctx, userID)
	if err != nil {
		return 0, err
	}
	if user.ReferrerID != nil {
		return 0, xerr.New(xerr.AlreadyReferred, "referral code already applied")
	}
	if e.now().Sub(user.CreatedAt) > e.cfg.Window {
		return 0, xerr.New(xerr.WindowClosed, "referral codes can only be applied within 24 hours of sign-up")
	}

	referrer, err := e.users.FindUserByCode(ctx, code)
	if err != nil {
		if xerr.IsKind(err, xerr.KindNotFound) {
			return 0, xerr.New(xerr.InvalidCode, "invalid referral code")
		}
		return 0, err
	}
	if referrer.ID == user.ID {
		return 0, xerr.New(xerr.InvalidCode, "you cannot refer yourself")
	}
	if err := e.checkCycle(ctx, user.ID, referrer); err != nil {
		return 0, err
	}

	ok, err := e.users.SetReferrer(ctx, user.ID, referrer.ID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, xerr.New(xerr.AlreadyReferred, "referral code already applied")
	}
	logger.Info(ctx, "🤝 referral linked", zap.String("user_id", user.ID), zap.String("referrer_id", referrer.ID))

	if !e.cfg.Backfill {
		return 0, nil
	}
	invs, err := e.investments.ListActiveInvestments(ctx, user.ID)
	if err != nil {
		logger.Warn(ctx, "list investments for referral backfill failed", zap.Error(err))
		return 0, nil
	}
	processed := 0
	for _, inv := range invs {
		if _, err := e.DistributeBonuses(ctx, inv); err != nil {
			logger.Warn(ctx, "referral backfill failed", zap.String("investment_id", inv.ID), zap.Error(err))
			continue
		}
		processed++
	}
	return processed, nil
}

// loadProfile retries because the identity webhook may still be writing the row.
func (e *ReferralEngine) loadProfile(ctx context.Context, userID string) (*domain.User, error) {
	for attempt := 1; ; attempt++ {
		user, err := e.users.GetUser(ctx, userID)
		if err == nil {
			return user, nil
		}
		if !xerr.IsKind(err, xerr.KindNotFound) {
			return nil, err
		}
		if attempt >= e.cfg.ProfileRetries {
			return nil, xerr.New(xerr.ProfileNotFound, "user profile not found")
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(e.cfg.RetryDelay):
		}
	}
}

// checkCycle refuses a referrer whose own chain already contains userID.
func (e *ReferralEngine) checkCycle(ctx context.Context, userID string, referrer *domain.User) error {
	seen := map[string]bool{referrer.ID: true}
	next := referrer.ReferrerID
	for depth := 0; next != nil && depth < maxChainDepth; depth++ {
		if *next == userID {
			return xerr.New(xerr.InvalidCode, "referral would create a cycle")
		}
		if seen[*next] {
			return nil
		}
		seen[*next] = true
		u, err := e.users.GetUser(ctx, *next)
		if err != nil {
			if xerr.IsKind(err, xerr.KindNotFound) {
				return nil
			}
			return err
		}
		next = u.ReferrerID
	}
	return nil
}

// DistributeBonuses walks up to five sponsors above the investor and writes
// one bonus row per level, plus the ongoing bonus at level 1. Reruns are no-ops.
func (e *ReferralEngine) DistributeBonuses(ctx context.Context, inv *domain.Investment) (int, error) {
	investor, err := e.users.GetUser(ctx, inv.UserID)
	if err != nil {
		return 0, err
	}
	written := 0
	visited := map[string]bool{investor.ID: true}
	current := investor.ReferrerID

	for i, rate := range e.cfg.Rates {
		if current == nil || visited[*current] {
			break
		}
		visited[*current] = true
		sponsor, err := e.users.GetUser(ctx, *current)
		if err != nil {
			if xerr.IsKind(err, xerr.KindNotFound) {
				break
			}
			return written, err
		}
		level := i + 1

		n, err := e.insert(ctx, sponsor.ID, investor.ID, inv, level, domain.BonusFirstInvestment, rate)
		written += n
		if err != nil {
			return written, err
		}
		if level == 1 && e.cfg.OngoingRate.IsPositive() {
			n, err := e.insert(ctx, sponsor.ID, investor.ID, inv, level, domain.BonusOngoing, e.cfg.OngoingRate)
			written += n
			if err != nil {
				return written, err
			}
		}
		current = sponsor.ReferrerID
	}
	return written, nil
}

func (e *ReferralEngine) insert(ctx context.Context, referrerID, investorID string, inv *domain.Investment,
	level int, kind domain.BonusType, rate decimal.Decimal) (int, error) {
	ok, err := e.bonuses.InsertBonus(ctx, &domain.ReferralBonus{
		ReferrerID:     referrerID,
		ReferredUserID: investorID,
		InvestmentID:   inv.ID,
		Level:          level,
		BonusType:      kind,
		Amount:         inv.AmountTokens.Mul(rate),
		CreatedAt:      e.now(),
	})
	if err != nil || !ok {
		return 0, err
	}
	metrics.ReferralBonuses.WithLabelValues(strconv.Itoa(level), string(kind)).Inc()
	return 1, nil
}
