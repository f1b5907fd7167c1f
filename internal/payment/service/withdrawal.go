package service

import (
	"context"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"bullrush.com/internal/chain/tron"
	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/hdwallet"
	"bullrush.com/pkg/logger"
	"bullrush.com/pkg/metrics"
	"bullrush.com/pkg/orm"
	"bullrush.com/pkg/xerr"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// KeyBox encrypts payout keys at rest.
type KeyBox interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// KeyDeriver derives (address, private key) pairs from a seed.
type KeyDeriver interface {
	DeriveAddress(coinType, index uint32) (string, string, error)
}

type WithdrawalConfig struct {
	// MinFeeBalance is the native balance a payout wallet must hold before sending.
	MinFeeBalance decimal.Decimal
}

type WithdrawalService struct {
	cfg         WithdrawalConfig
	users       domain.UserRepo
	withdrawals domain.WithdrawalRepo
	oracle      domain.ChainOracle
	box         KeyBox
	deriver     KeyDeriver
	locker      Locker
	pub         domain.Publisher
}

// NewWithdrawalService wires the settler. deriver may be nil when no mnemonic is configured.
func NewWithdrawalService(cfg WithdrawalConfig, users domain.UserRepo, withdrawals domain.WithdrawalRepo,
	oracle domain.ChainOracle, box KeyBox, deriver KeyDeriver, locker Locker, pub domain.Publisher) *WithdrawalService {
	if cfg.MinFeeBalance.IsZero() {
		cfg.MinFeeBalance = decimal.NewFromInt(5)
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &WithdrawalService{
		cfg:         cfg,
		users:       users,
		withdrawals: withdrawals,
		oracle:      oracle,
		box:         box,
		deriver:     deriver,
		locker:      locker,
		pub:         pub,
	}
}

// ProcessResult is what an admin sees after deciding a withdrawal.
type ProcessResult struct {
	Withdrawal  *domain.Withdrawal `json:"withdrawal"`
	TxHash      string             `json:"txHash,omitempty"`
	ExplorerURL string             `json:"explorerUrl,omitempty"`
}

func normalizePhone(p string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(p))
}

func validateDestination(walletAddress, phoneNumber string) error {
	switch {
	case walletAddress == "" && phoneNumber == "":
		return xerr.New(xerr.RequestParamsError, "wallet address or phone number is required")
	case walletAddress != "" && phoneNumber != "":
		return xerr.New(xerr.RequestParamsError, "provide either a wallet address or a phone number, not both")
	case walletAddress != "":
		return tron.ValidateAddress(walletAddress)
	case !phonePattern.MatchString(phoneNumber):
		return xerr.New(xerr.RequestParamsError, "invalid phone number")
	}
	return nil
}

// RequestWithdrawal debits the user and records a pending withdrawal.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal, walletAddress, phoneNumber string) (*domain.Withdrawal, error) {
	if !amount.IsPositive() {
		return nil, xerr.New(xerr.RequestParamsError, "amount must be greater than zero")
	}
	walletAddress = strings.TrimSpace(walletAddress)
	phoneNumber = normalizePhone(phoneNumber)
	if err := validateDestination(walletAddress, phoneNumber); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Acquire(ctx, "withdraw:user:"+userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w := &domain.Withdrawal{
		UserID: userID,
		Amount: amount,
		Status: domain.WithdrawalPending,
	}
	if walletAddress != "" {
		w.WalletAddress = &walletAddress
	} else {
		w.PhoneNumber = &phoneNumber
	}

	err = NewSaga("request_withdrawal").
		Step("debit_balance", func(ctx context.Context) error {
			return s.users.DebitBalance(ctx, userID, amount)
		}, func(ctx context.Context) error {
			return s.users.CreditBalance(ctx, userID, amount)
		}).
		Step("insert_withdrawal", func(ctx context.Context) error {
			return s.withdrawals.CreateWithdrawal(ctx, w)
		}, nil).
		Run(ctx)
	if err != nil {
		return nil, err
	}

	metrics.Withdrawals.WithLabelValues(w.Method(), string(w.Status)).Inc()
	logger.Info(ctx, "withdrawal requested",
		zap.String("withdrawal_id", w.ID),
		zap.String("user_id", userID),
		zap.String("amount", amount.String()),
		zap.String("method", w.Method()),
	)
	s.publish(ctx, domain.SubjectWithdrawalRequested, w)
	return w, nil
}

// ProcessWithdrawal applies an admin decision to a pending withdrawal.
func (s *WithdrawalService) ProcessWithdrawal(ctx context.Context, adminID, withdrawalID string, decision domain.Decision, payoutWalletID string) (*ProcessResult, error) {
	if decision != domain.DecisionApproved && decision != domain.DecisionRejected {
		return nil, xerr.New(xerr.RequestParamsError, "status must be approved or rejected")
	}

	unlock, err := s.locker.Acquire(ctx, "withdraw:process:"+withdrawalID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	w, err := s.withdrawals.GetWithdrawal(ctx, withdrawalID)
	if err != nil {
		if xerr.IsKind(err, xerr.KindNotFound) {
			return nil, errPendingNotFound()
		}
		return nil, err
	}
	if w.Status != domain.WithdrawalPending {
		return nil, errPendingNotFound()
	}

	logger.Info(ctx, "processing withdrawal",
		zap.String("withdrawal_id", w.ID),
		zap.String("admin_id", adminID),
		zap.String("decision", string(decision)),
		zap.String("method", w.Method()),
	)

	res := &ProcessResult{Withdrawal: w}
	switch {
	case decision == domain.DecisionRejected:
		err = s.closeWithRefund(ctx, w, domain.WithdrawalRejected)
	case !w.OnChain():
		err = s.transition(ctx, w, domain.WithdrawalSent, nil)
	default:
		err = s.sendOnChain(ctx, w, payoutWalletID, res)
	}
	if err != nil {
		return nil, err
	}

	metrics.Withdrawals.WithLabelValues(w.Method(), string(w.Status)).Inc()
	s.publish(ctx, domain.SubjectWithdrawalProcessed, w)
	return res, nil
}

func errPendingNotFound() error {
	return xerr.New(xerr.RecordNotFound, "pending withdrawal not found")
}

func (s *WithdrawalService) transition(ctx context.Context, w *domain.Withdrawal, to domain.WithdrawalStatus, txHash *string) error {
	ok, err := s.withdrawals.TransitionWithdrawal(ctx, w.ID, domain.WithdrawalPending, to, txHash)
	if err != nil {
		return err
	}
	if !ok {
		return errPendingNotFound()
	}
	w.Status = to
	if txHash != nil {
		w.TxHash = txHash
	}
	return nil
}

// closeWithRefund moves w to a non-sent terminal status and returns the
// debited amount. A refund that cannot be written puts w back to pending.
func (s *WithdrawalService) closeWithRefund(ctx context.Context, w *domain.Withdrawal, to domain.WithdrawalStatus) error {
	err := NewSaga("refund_withdrawal").
		Step("mark_"+string(to), func(ctx context.Context) error {
			return s.transition(ctx, w, to, nil)
		}, func(ctx context.Context) error {
			ok, err := s.withdrawals.TransitionWithdrawal(ctx, w.ID, to, domain.WithdrawalPending, nil)
			if err != nil {
				return err
			}
			if !ok {
				return xerr.Newf(xerr.Conflict, "withdrawal %s left %s", w.ID, to)
			}
			w.Status = domain.WithdrawalPending
			return nil
		}).
		Step("refund", func(ctx context.Context) error {
			return s.users.CreditBalance(ctx, w.UserID, w.Amount)
		}, nil).
		Run(ctx)
	if err == nil {
		logger.Info(ctx, "withdrawal refunded",
			zap.String("withdrawal_id", w.ID),
			zap.String("status", string(to)),
			zap.String("amount", w.Amount.String()),
		)
	}
	return err
}

func (s *WithdrawalService) sendOnChain(ctx context.Context, w *domain.Withdrawal, payoutWalletID string, res *ProcessResult) error {
	if payoutWalletID == "" {
		return xerr.New(xerr.RequestParamsError, "a payout wallet is required for on-chain withdrawals")
	}
	wallet, err := s.withdrawals.GetPayoutWallet(ctx, payoutWalletID)
	if err != nil {
		return err
	}
	if !wallet.IsActive {
		return xerr.New(xerr.RequestParamsError, "payout wallet is not active")
	}

	native, token, err := s.oracle.Balances(ctx, wallet.Address)
	if err != nil {
		return xerr.Wrap(err, xerr.KindExternal, "read payout wallet balance")
	}
	if native.LessThan(s.cfg.MinFeeBalance) {
		return xerr.Newf(xerr.RequestParamsError, "payout wallet needs at least %s TRX for fees", s.cfg.MinFeeBalance.String())
	}
	if token.LessThan(w.Amount) {
		return xerr.New(xerr.RequestParamsError, "payout wallet has insufficient USDT")
	}

	key, err := s.box.Decrypt(wallet.PrivateKey)
	if err != nil {
		return xerr.Wrap(err, xerr.KindInternal, "decrypt payout key")
	}
	txHash, sendErr := s.oracle.SendToken(ctx, key, *w.WalletAddress, w.Amount)
	key = ""

	ctx = context.WithoutCancel(ctx)
	if sendErr != nil {
		logger.Error(ctx, "withdrawal broadcast failed",
			zap.String("withdrawal_id", w.ID),
			zap.String("payout_wallet", wallet.Address),
			zap.Error(sendErr),
		)
		if err := s.closeWithRefund(ctx, w, domain.WithdrawalFailed); err != nil {
			return err
		}
		metrics.Withdrawals.WithLabelValues(w.Method(), string(w.Status)).Inc()
		s.publish(ctx, domain.SubjectWithdrawalProcessed, w)
		return xerr.Wrap(sendErr, xerr.KindExternal, "broadcast failed, withdrawal refunded")
	}

	if err := s.transition(ctx, w, domain.WithdrawalSent, &txHash); err != nil {
		logger.Error(ctx, "🚨 withdrawal broadcast but not recorded, manual repair required",
			zap.String("withdrawal_id", w.ID),
			zap.String("tx_hash", txHash),
			zap.Error(err),
		)
		return xerr.Wrap(err, xerr.KindIntegrity, "transfer sent but withdrawal not updated")
	}
	res.TxHash = txHash
	res.ExplorerURL = s.oracle.ExplorerURL(txHash)
	return nil
}

func (s *WithdrawalService) ListWithdrawals(ctx context.Context, page, size int) ([]*domain.WithdrawalView, int64, error) {
	page, size = orm.NormalizePage(page, size)
	return s.withdrawals.ListWithdrawals(ctx, page, size)
}

// AddPayoutWallet stores an encrypted key after checking that it controls address.
func (s *WithdrawalService) AddPayoutWallet(ctx context.Context, name, address, privateKey string) (*domain.PayoutWallet, error) {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	privateKey = strings.TrimPrefix(strings.TrimSpace(privateKey), "0x")
	if name == "" || address == "" || privateKey == "" {
		return nil, xerr.New(xerr.RequestParamsError, "name, address and private key are required")
	}
	if err := tron.ValidateAddress(address); err != nil {
		return nil, err
	}
	owner, err := tron.AddressFromPrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	if owner != address {
		return nil, xerr.New(xerr.RequestParamsError, "private key does not match address")
	}

	sealed, err := s.box.Encrypt(privateKey)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.KindInternal, "encrypt payout key")
	}
	w := &domain.PayoutWallet{
		Name:       name,
		Address:    address,
		PrivateKey: sealed,
		Balance:    decimal.Zero,
		IsActive:   true,
	}
	if err := s.withdrawals.CreatePayoutWallet(ctx, w); err != nil {
		return nil, err
	}
	logger.Info(ctx, "payout wallet added", zap.String("wallet_id", w.ID), zap.String("address", address))
	return w, nil
}

func (s *WithdrawalService) ListPayoutWallets(ctx context.Context) ([]*domain.PayoutWallet, error) {
	return s.withdrawals.ListPayoutWallets(ctx)
}

// DerivePayoutWallet derives m/44'/195'/0'/0/index and stores it as a payout wallet.
func (s *WithdrawalService) DerivePayoutWallet(ctx context.Context, name string, index uint32) (*domain.PayoutWallet, error) {
	if s.deriver == nil {
		return nil, xerr.New(xerr.RequestParamsError, "wallet derivation is not configured")
	}
	address, key, err := s.deriver.DeriveAddress(hdwallet.CoinTron, index)
	if err != nil {
		return nil, xerr.Wrap(err, xerr.KindInternal, "derive payout wallet")
	}
	return s.AddPayoutWallet(ctx, name, address, key)
}

func (s *WithdrawalService) publish(ctx context.Context, subject string, w *domain.Withdrawal) {
	if s.pub == nil {
		return
	}
	ev := domain.WithdrawalEvent{
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		Amount:       w.Amount,
		Method:       w.Method(),
		Status:       w.Status,
	}
	if w.TxHash != nil {
		ev.TxHash = *w.TxHash
	}
	if err := s.pub.Publish(context.WithoutCancel(ctx), subject, ev); err != nil {
		logger.Warn(ctx, "publish "+subject+" failed", zap.Error(err))
	}
}
