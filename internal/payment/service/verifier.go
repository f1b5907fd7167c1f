package service

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bullrush.com/internal/chain/tron"
	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/xerr"
)

type DepositConfig struct {
	MinAmount         decimal.Decimal
	Window            time.Duration
	PollInterval      time.Duration
	OracleTimeout     time.Duration
	Tolerance         decimal.Decimal
	CollectionAddress string
}

func (c *DepositConfig) withDefaults() {
	if c.MinAmount.IsZero() {
		c.MinAmount = decimal.NewFromInt(10)
	}
	if c.Window <= 0 {
		c.Window = time.Hour
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Second
	}
	if c.OracleTimeout <= 0 {
		c.OracleTimeout = 10 * time.Second
	}
	if c.Tolerance.IsZero() {
		c.Tolerance = decimal.RequireFromString("0.01")
	}
}

// Verifier moves deposit requests out of pending, either by polling the
// collection address or by checking a hash the user submitted.
type Verifier struct {
	cfg      DepositConfig
	deposits domain.DepositRepo
	oracle   domain.ChainOracle
	settler  *Settler
	now      func() time.Time

	polls *pollRegistry
}

func NewVerifier(cfg DepositConfig, deposits domain.DepositRepo, oracle domain.ChainOracle, settler *Settler) *Verifier {
	cfg.withDefaults()
	return &Verifier{
		cfg:      cfg,
		deposits: deposits,
		oracle:   oracle,
		settler:  settler,
		now:      utcNow,
		polls:    newPollRegistry(),
	}
}

func (v *Verifier) CollectionAddress() string { return v.cfg.CollectionAddress }

// RequestDeposit opens a pending request and starts polling for its payment.
func (v *Verifier) RequestDeposit(ctx context.Context, userID string, amount decimal.Decimal, plan string) (*domain.DepositRequest, error) {
	if amount.LessThan(v.cfg.MinAmount) {
		return nil, xerr.Newf(xerr.RequestParamsError, "minimum deposit is %s USDT", v.cfg.MinAmount.String())
	}
	now := v.now()
	req := &domain.DepositRequest{
		UserID:     userID,
		AmountUSDT: amount,
		Status:     domain.DepositPending,
		PlanType:   domain.ParsePlan(plan),
		CreatedAt:  now,
		ExpiresAt:  now.Add(v.cfg.Window),
	}
	if err := v.deposits.CreateDepositRequest(ctx, req); err != nil {
		return nil, err
	}
	logger.Info(ctx, "deposit request created",
		zap.String("request_id", req.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("plan", string(req.PlanType)),
	)
	v.StartPolling(req.ID)
	return req, nil
}

// SubmitTxHash verifies a user supplied hash against the request.
func (v *Verifier) SubmitTxHash(ctx context.Context, userID, requestID, txHash string) (domain.VerifyResult, error) {
	res, err := v.submitTxHash(ctx, userID, requestID, txHash)
	metrics.DepositResults.WithLabelValues("hash", string(res.Kind)).Inc()
	return res, err
}

func (v *Verifier) submitTxHash(ctx context.Context, userID, requestID, txHash string) (domain.VerifyResult, error) {
	req, err := v.loadOwned(ctx, userID, requestID)
	if err != nil {
		return domain.VerifyResult{Kind: domain.ResultNotFound, RequestID: requestID}, err
	}
	txHash = tron.NormalizeTxHash(txHash)
	if txHash == "" {
		return domain.VerifyResult{Kind: domain.ResultFailed, RequestID: requestID, Reason: "transaction hash is required"},
			xerr.New(xerr.RequestParamsError, "transaction hash is required")
	}

	owner, err := v.deposits.RequestByTxHash(ctx, txHash)
	switch {
	case err == nil && owner.ID != req.ID:
		return domain.VerifyResult{
			Kind: domain.ResultDuplicate, RequestID: req.ID, TxHash: txHash,
			Reason: "transaction already used for another deposit",
		}, nil
	case err != nil && !xerr.IsKind(err, xerr.KindNotFound):
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID}, err
	}

	if req.Status != domain.DepositPending {
		res := domain.StatusResult(req)
		res.Reason = "already processed"
		return res, nil
	}

	octx, cancel := context.WithTimeout(ctx, v.cfg.OracleTimeout)
	transfer, err := v.oracle.TransferByHash(octx, txHash)
	cancel()
	if err != nil {
		if xerr.IsKind(err, xerr.KindNotFound) {
			return domain.VerifyResult{Kind: domain.ResultNotFound, RequestID: req.ID, TxHash: txHash,
				Reason: "transaction not found on chain"}, nil
		}
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID, TxHash: txHash},
			xerr.Wrap(err, xerr.KindExternal, "chain lookup failed")
	}

	if reason := v.rejectReason(req, transfer); reason != "" {
		logger.Warn(ctx, "submitted transfer rejected",
			zap.String("request_id", req.ID),
			zap.String("tx_hash", txHash),
			zap.String("reason", reason),
		)
		return domain.VerifyResult{Kind: domain.ResultFailed, RequestID: req.ID, TxHash: txHash,
			Detected: transfer.Amount, Expected: req.AmountUSDT, Reason: reason}, nil
	}

	return v.resolve(ctx, req, *transfer)
}

// rejectReason returns why t cannot fund req, or "" when it can be matched.
func (v *Verifier) rejectReason(req *domain.DepositRequest, t *domain.Transfer) string {
	switch {
	case !t.Success:
		return "transaction failed on chain"
	case t.Contract != v.oracle.TokenContract():
		return "not a USDT transfer"
	case t.To != v.cfg.CollectionAddress:
		return "transfer was not sent to the deposit address"
	case !t.Amount.IsPositive():
		return "transfer amount must be greater than zero"
	case t.BlockTime.Before(req.CreatedAt):
		return "transfer predates the deposit request"
	}
	return ""
}

func (v *Verifier) matches(req *domain.DepositRequest, amount decimal.Decimal) bool {
	return amount.Sub(req.AmountUSDT).Abs().LessThan(v.cfg.Tolerance)
}

// resolve settles or conflicts req with a transfer that passed rejectReason.
func (v *Verifier) resolve(ctx context.Context, req *domain.DepositRequest, t domain.Transfer) (domain.VerifyResult, error) {
	if !v.matches(req, t.Amount) {
		return v.conflict(ctx, req, t)
	}

	_, err := v.settler.Settle(ctx, req, t.TxHash, t.Amount)
	if err != nil {
		if xerr.CodeOf(err) == xerr.TxHashUsed {
			return domain.VerifyResult{Kind: domain.ResultDuplicate, RequestID: req.ID, TxHash: t.TxHash,
				Reason: "transaction already used for another deposit"}, nil
		}
		if xerr.IsKind(err, xerr.KindConflict) {
			return v.currentStatus(ctx, req.ID)
		}
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID, TxHash: t.TxHash}, err
	}
	v.polls.stop(req.ID)
	return domain.VerifyResult{
		Kind:      domain.ResultApproved,
		RequestID: req.ID,
		Status:    domain.DepositApproved,
		TxHash:    t.TxHash,
		Amount:    t.Amount,
		Plan:      req.PlanType,
		Detected:  t.Amount,
		Expected:  req.AmountUSDT,
	}, nil
}

func (v *Verifier) conflict(ctx context.Context, req *domain.DepositRequest, t domain.Transfer) (domain.VerifyResult, error) {
	ok, err := v.deposits.MarkConflicted(ctx, req.ID, t.TxHash, t.Amount)
	if err != nil {
		if xerr.IsKind(err, xerr.KindConflict) {
			return domain.VerifyResult{Kind: domain.ResultDuplicate, RequestID: req.ID, TxHash: t.TxHash,
				Reason: "transaction already used for another deposit"}, nil
		}
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID}, err
	}
	if !ok {
		return v.currentStatus(ctx, req.ID)
	}
	v.polls.stop(req.ID)
	logger.Warn(ctx, "deposit amount mismatch",
		zap.String("request_id", req.ID),
		zap.String("expected", req.AmountUSDT.String()),
		zap.String("detected", t.Amount.String()),
		zap.String("tx_hash", t.TxHash),
	)
	return domain.VerifyResult{
		Kind:      domain.ResultConflicted,
		RequestID: req.ID,
		Status:    domain.DepositConflicted,
		TxHash:    t.TxHash,
		Detected:  t.Amount,
		Expected:  req.AmountUSDT,
	}, nil
}

// CheckStatus reports the request state, running one poll when it is still pending.
func (v *Verifier) CheckStatus(ctx context.Context, userID, requestID string) (domain.VerifyResult, error) {
	if _, err := v.loadOwned(ctx, userID, requestID); err != nil {
		return domain.VerifyResult{Kind: domain.ResultNotFound, RequestID: requestID}, err
	}
	res, err := v.checkPayment(ctx, requestID)
	metrics.DepositResults.WithLabelValues("status", string(res.Kind)).Inc()
	return res, err
}

// checkPayment is one polling pass over the collection address for requestID.
func (v *Verifier) checkPayment(ctx context.Context, requestID string) (domain.VerifyResult, error) {
	req, err := v.deposits.GetDepositRequest(ctx, requestID)
	if err != nil {
		if xerr.IsKind(err, xerr.KindNotFound) {
			return domain.VerifyResult{Kind: domain.ResultNotFound, RequestID: requestID}, nil
		}
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: requestID}, err
	}
	if err := v.expireIfOverdue(ctx, req); err != nil {
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: requestID}, err
	}
	if req.Status != domain.DepositPending {
		return domain.StatusResult(req), nil
	}

	octx, cancel := context.WithTimeout(ctx, v.cfg.OracleTimeout)
	transfers, err := v.oracle.TransfersTo(octx, v.cfg.CollectionAddress, req.CreatedAt)
	cancel()
	if err != nil {
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID},
			xerr.Wrap(err, xerr.KindExternal, "chain lookup failed")
	}

	candidates := make([]domain.Transfer, 0, len(transfers))
	hashes := make([]string, 0, len(transfers))
	for i := range transfers {
		if v.rejectReason(req, &transfers[i]) != "" {
			continue
		}
		candidates = append(candidates, transfers[i])
		hashes = append(hashes, transfers[i].TxHash)
	}
	if len(candidates) == 0 {
		return domain.StatusResult(req), nil
	}

	claimed, err := v.deposits.ClaimedHashes(ctx, hashes)
	if err != nil {
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: req.ID}, err
	}
	unclaimed := candidates[:0]
	for _, t := range candidates {
		if _, taken := claimed[t.TxHash]; !taken {
			unclaimed = append(unclaimed, t)
		}
	}
	if len(unclaimed) == 0 {
		return domain.StatusResult(req), nil
	}
	// oldest first, so the earliest payment funds the request
	sort.SliceStable(unclaimed, func(i, j int) bool {
		return unclaimed[i].BlockTime.Before(unclaimed[j].BlockTime)
	})

	for _, t := range unclaimed {
		if v.matches(req, t.Amount) {
			return v.resolve(ctx, req, t)
		}
	}
	return v.conflict(ctx, req, unclaimed[0])
}

func (v *Verifier) loadOwned(ctx context.Context, userID, requestID string) (*domain.DepositRequest, error) {
	req, err := v.deposits.GetDepositRequest(ctx, requestID)
	if err != nil {
		if xerr.IsKind(err, xerr.KindNotFound) {
			return nil, xerr.New(xerr.RecordNotFound, "deposit request not found")
		}
		return nil, err
	}
	if req.UserID != userID {
		return nil, xerr.New(xerr.RecordNotFound, "deposit request not found")
	}
	if err := v.expireIfOverdue(ctx, req); err != nil {
		return nil, err
	}
	return req, nil
}

// expireIfOverdue flips an overdue pending request to expired and updates req in place.
func (v *Verifier) expireIfOverdue(ctx context.Context, req *domain.DepositRequest) error {
	now := v.now()
	if !req.Overdue(now) {
		return nil
	}
	ok, err := v.deposits.ExpireRequest(ctx, req.ID, now)
	if err != nil {
		return err
	}
	if ok {
		req.Status = domain.DepositExpired
		v.polls.stop(req.ID)
		logger.Info(ctx, "deposit request expired", zap.String("request_id", req.ID))
		return nil
	}
	// lost the race; reload whatever won
	fresh, err := v.deposits.GetDepositRequest(ctx, req.ID)
	if err != nil {
		return err
	}
	*req = *fresh
	return nil
}

func (v *Verifier) currentStatus(ctx context.Context, requestID string) (domain.VerifyResult, error) {
	req, err := v.deposits.GetDepositRequest(ctx, requestID)
	if err != nil {
		return domain.VerifyResult{Kind: domain.ResultError, RequestID: requestID}, err
	}
	res := domain.StatusResult(req)
	res.Reason = "already processed"
	return res, nil
}
