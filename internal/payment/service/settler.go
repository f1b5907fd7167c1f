package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/xerr"
)

// BonusDistributor is the referral hook run after a settlement commits.
type BonusDistributor interface {
	DistributeBonuses(ctx context.Context, inv *domain.Investment) (int, error)
}

// Settler turns an approved deposit into an investment and a balance credit.
type Settler struct {
	users       domain.UserRepo
	deposits    domain.DepositRepo
	investments domain.InvestmentRepo
	bonuses     BonusDistributor
	pub         domain.Publisher
	now         func() time.Time
}

func NewSettler(users domain.UserRepo, deposits domain.DepositRepo, investments domain.InvestmentRepo,
	bonuses BonusDistributor, pub domain.Publisher) *Settler {
	return &Settler{
		users:       users,
		deposits:    deposits,
		investments: investments,
		bonuses:     bonuses,
		pub:         pub,
		now:         utcNow,
	}
}

// Settle approves req with txHash and credits amount. A request that is no
// longer pending yields a conflict error and nothing is written.
func (s *Settler) Settle(ctx context.Context, req *domain.DepositRequest, txHash string, amount decimal.Decimal) (*domain.Investment, error) {
	now := s.now()
	reqID := req.ID
	inv := &domain.Investment{
		UserID:         req.UserID,
		AmountTokens:   amount,
		InitialAmount:  amount,
		PlanType:       req.PlanType,
		Status:         domain.InvestmentActive,
		StartDate:      now,
		TokenRequestID: &reqID,
		CreatedAt:      now,
	}

	revertRequest := func(ctx context.Context) error {
		ok, err := s.deposits.RevertApproval(ctx, req.ID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("request %s is no longer approved", req.ID)
		}
		return nil
	}

	err := NewSaga("settle_deposit").
		Step("approve_request", func(ctx context.Context) error {
			ok, err := s.deposits.ApproveRequest(ctx, req.ID, txHash, amount)
			if xerr.IsKind(err, xerr.KindConflict) {
				// unique tx_hash index: another request already holds this transfer
				return xerr.WrapCode(err, xerr.TxHashUsed, "transaction already used for another deposit")
			}
			if err != nil {
				return err
			}
			if !ok {
				return xerr.New(xerr.Conflict, "deposit request already processed")
			}
			return nil
		}, revertRequest).
		Step("insert_investment", func(ctx context.Context) error {
			return s.investments.CreateInvestment(ctx, inv)
		}, func(ctx context.Context) error {
			return s.investments.DeleteInvestment(ctx, inv.ID)
		}).
		Step("credit_balance", func(ctx context.Context) error {
			return s.users.CreditBalance(ctx, req.UserID, amount)
		}, nil).
		Run(ctx)
	if err != nil {
		return nil, err
	}

	req.Status = domain.DepositApproved
	req.TxHash = &txHash
	req.DetectedAmount = &amount

	logger.Info(ctx, "💰 deposit settled",
		zap.String("request_id", req.ID),
		zap.String("user_id", req.UserID),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash),
	)

	audit := &domain.Transaction{
		UserID:       req.UserID,
		Type:         domain.TxTypeInvestmentDeposit,
		Amount:       amount,
		PlanType:     req.PlanType,
		InvestmentID: inv.ID,
		Description:  fmt.Sprintf("Invested %s USDT in %s plan", amount.String(), req.PlanType),
		CreatedAt:    now,
	}
	if err := s.investments.CreateTransaction(ctx, audit); err != nil {
		logger.Error(ctx, "audit transaction insert failed", zap.String("investment_id", inv.ID), zap.Error(err))
	}

	s.afterCommit(ctx, req, inv, txHash)
	return inv, nil
}

// afterCommit runs best-effort side effects; none of them roll back the settlement.
func (s *Settler) afterCommit(ctx context.Context, req *domain.DepositRequest, inv *domain.Investment, txHash string) {
	ctx = context.WithoutCancel(ctx)

	if s.bonuses != nil {
		user, err := s.users.GetUser(ctx, req.UserID)
		switch {
		case err != nil:
			logger.Warn(ctx, "load user for referral bonuses failed", zap.Error(err))
		case user.ReferrerID != nil:
			if n, err := s.bonuses.DistributeBonuses(ctx, inv); err != nil {
				logger.Warn(ctx, "referral bonus distribution failed",
					zap.String("investment_id", inv.ID), zap.Int("written", n), zap.Error(err))
			}
		}
	}

	if s.pub != nil {
		ev := domain.DepositApprovedEvent{
			RequestID:    req.ID,
			UserID:       req.UserID,
			InvestmentID: inv.ID,
			Amount:       inv.AmountTokens,
			Plan:         req.PlanType,
			TxHash:       txHash,
		}
		if err := s.pub.Publish(ctx, domain.SubjectDepositApproved, ev); err != nil {
			logger.Warn(ctx, "publish deposit.approved failed", zap.Error(err))
		}
	}
}

func utcNow() time.Time { return time.Now().UTC() }
