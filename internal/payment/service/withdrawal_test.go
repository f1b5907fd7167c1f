package service

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bullrush.com/internal/chain/tron"
	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/hdwallet"
	"bullrush.com/pkg/secret"
	"bullrush.com/pkg/xerr"
)

const destination = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"

func newWithdrawals(t *testing.T, e *env, users domain.UserRepo, deriver KeyDeriver) *WithdrawalService {
	t.Helper()
	key, err := secret.GenerateMasterKey()
	require.NoError(t, err)
	box, err := secret.NewBox(key)
	require.NoError(t, err)
	return NewWithdrawalService(WithdrawalConfig{}, users, e.repo, e.oracle, box, deriver, NewLocalLocker(), e.pub)
}

func payoutKey(t *testing.T) (string, string) {
	t.Helper()
	k, err := crypto.GenerateKey()
	require.NoError(t, err)
	priv := hex.EncodeToString(crypto.FromECDSA(k))
	addr, err := tron.AddressFromPrivateKey(priv)
	require.NoError(t, err)
	return priv, addr
}

func TestRequestWithdrawal_Validation(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)

	tests := []struct {
		name   string
		amount string
		wallet string
		phone  string
		code   int
	}{
		{name: "zero amount", amount: "0", wallet: destination, code: xerr.RequestParamsError},
		{name: "no destination", amount: "10", code: xerr.RequestParamsError},
		{name: "both destinations", amount: "10", wallet: destination, phone: "+254700000000", code: xerr.RequestParamsError},
		{name: "bad address", amount: "10", wallet: "0x52908400098527886E0F7030069857D2E4169EE7", code: xerr.RequestParamsError},
		{name: "bad checksum", amount: "10", wallet: destination[:33] + "u", code: xerr.RequestParamsError},
		{name: "short phone", amount: "10", phone: "12345", code: xerr.RequestParamsError},
		{name: "letters in phone", amount: "10", phone: "+2547000abc00", code: xerr.RequestParamsError},
		{name: "overdraw", amount: "100.01", wallet: destination, code: xerr.InsufficientBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.RequestWithdrawal(e.ctx, "u1", dec(tt.amount), tt.wallet, tt.phone)
			require.Error(t, err)
			assert.Equal(t, tt.code, xerr.CodeOf(err))
		})
	}
	assert.True(t, e.balance(t, "u1").Equal(dec("100")))
	assert.Zero(t, e.pub.published(domain.SubjectWithdrawalRequested))
}

func TestRequestWithdrawal_DebitsOnce(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)

	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("60"), "", "+254 700-000-000")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, w.Status)
	assert.Equal(t, "+254700000000", *w.PhoneNumber)
	assert.Equal(t, domain.MethodMobile, w.Method())
	assert.True(t, e.balance(t, "u1").Equal(dec("40")))

	_, err = s.RequestWithdrawal(e.ctx, "u1", dec("60"), destination, "")
	assert.Equal(t, xerr.InsufficientBalance, xerr.CodeOf(err))
	assert.True(t, e.balance(t, "u1").Equal(dec("40")))
	assert.Equal(t, 1, e.pub.published(domain.SubjectWithdrawalRequested))
}

func TestProcessWithdrawal_RejectRefunds(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("30"), destination, "")
	require.NoError(t, err)

	res, err := s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionRejected, "")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalRejected, res.Withdrawal.Status)
	assert.True(t, e.balance(t, "u1").Equal(dec("100")))

	// a decided withdrawal is no longer pending
	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionRejected, "")
	assert.True(t, xerr.IsKind(err, xerr.KindNotFound))
	assert.True(t, e.balance(t, "u1").Equal(dec("100")), "refund happens once")

	_, err = s.ProcessWithdrawal(e.ctx, "admin", "missing", domain.DecisionApproved, "")
	assert.True(t, xerr.IsKind(err, xerr.KindNotFound))

	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.Decision("maybe"), "")
	assert.True(t, xerr.IsKind(err, xerr.KindValidation))
}

// failingInsert refuses every new withdrawal row.
type failingInsert struct {
	domain.WithdrawalRepo
}

func (failingInsert) CreateWithdrawal(context.Context, *domain.Withdrawal) error {
	return xerr.NewKind(xerr.KindInternal, "insert refused")
}

func TestRequestWithdrawal_InsertFailureRefundsDebit(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	key, err := secret.GenerateMasterKey()
	require.NoError(t, err)
	box, err := secret.NewBox(key)
	require.NoError(t, err)
	s := NewWithdrawalService(WithdrawalConfig{}, e.repo, failingInsert{e.repo}, e.oracle, box, nil, NewLocalLocker(), e.pub)

	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("40"), destination, "")
	require.Error(t, err)
	assert.Nil(t, w)
	assert.True(t, xerr.IsKind(err, xerr.KindIntegrity))

	assert.True(t, e.balance(t, "u1").Equal(dec("100")), "debit is refunded")
	assert.Zero(t, e.pub.published(domain.SubjectWithdrawalRequested))
	views, total, err := e.repo.ListWithdrawals(e.ctx, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, views)
}

func TestProcessWithdrawal_RefundFailureIsIntegrity(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("30"), destination, "")
	require.NoError(t, err)

	broken := newWithdrawals(t, e, failingCredit{e.repo}, nil)
	_, err = broken.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionRejected, "")
	require.Error(t, err)
	assert.True(t, xerr.IsKind(err, xerr.KindIntegrity))

	stored, err := e.repo.GetWithdrawal(e.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalPending, stored.Status, "status is rolled back when the refund fails")
	assert.True(t, e.balance(t, "u1").Equal(dec("70")))
}

func TestProcessWithdrawal_MobileMoney(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("25"), "", "0700000000")
	require.NoError(t, err)

	res, err := s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, "")
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalSent, res.Withdrawal.Status)
	assert.Empty(t, res.TxHash)
	assert.True(t, e.balance(t, "u1").Equal(dec("75")))
	assert.Empty(t, e.oracle.sent)
	assert.Equal(t, 1, e.pub.published(domain.SubjectWithdrawalProcessed))
}

func TestProcessWithdrawal_OnChain(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	priv, addr := payoutKey(t)
	wallet, err := s.AddPayoutWallet(e.ctx, "hot", addr, "0x"+priv)
	require.NoError(t, err)
	assert.NotEqual(t, priv, wallet.PrivateKey)

	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("40"), destination, "")
	require.NoError(t, err)

	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, "")
	assert.True(t, xerr.IsKind(err, xerr.KindValidation), "payout wallet required")

	e.oracle.native, e.oracle.token = dec("4.99"), dec("1000")
	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, wallet.ID)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation), "not enough TRX for fees")

	e.oracle.native, e.oracle.token = dec("20"), dec("39")
	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, wallet.ID)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation), "not enough USDT")

	e.oracle.token = dec("1000")
	e.oracle.sendHash = "abc123"
	res, err := s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, wallet.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalSent, res.Withdrawal.Status)
	assert.Equal(t, "abc123", res.TxHash)
	assert.Equal(t, "https://explorer.test/tx/abc123", res.ExplorerURL)

	require.Len(t, e.oracle.sent, 1)
	assert.Equal(t, priv, e.oracle.sent[0].key)
	assert.Equal(t, destination, e.oracle.sent[0].to)
	assert.True(t, e.oracle.sent[0].amount.Equal(dec("40")))
	assert.True(t, e.balance(t, "u1").Equal(dec("60")))

	stored, err := e.repo.GetWithdrawal(e.ctx, w.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.TxHash)
	assert.Equal(t, "abc123", *stored.TxHash)
}

func TestProcessWithdrawal_BroadcastFailureRefunds(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	priv, addr := payoutKey(t)
	wallet, err := s.AddPayoutWallet(e.ctx, "hot", addr, priv)
	require.NoError(t, err)
	w, err := s.RequestWithdrawal(e.ctx, "u1", dec("40"), destination, "")
	require.NoError(t, err)

	e.oracle.native, e.oracle.token = dec("20"), dec("1000")
	e.oracle.sendErr = xerr.NewKind(xerr.KindExternal, "node unavailable")
	_, err = s.ProcessWithdrawal(e.ctx, "admin", w.ID, domain.DecisionApproved, wallet.ID)
	require.Error(t, err)
	assert.True(t, xerr.IsKind(err, xerr.KindExternal))

	stored, err := e.repo.GetWithdrawal(e.ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.WithdrawalFailed, stored.Status)
	assert.True(t, e.balance(t, "u1").Equal(dec("100")))
}

func TestPayoutWallets(t *testing.T) {
	e := newEnv(t)
	hd, err := hdwallet.New("test test test test test test test test test test test junk")
	require.NoError(t, err)
	s := newWithdrawals(t, e, e.repo, hd)

	_, addr := payoutKey(t)
	other, _ := payoutKey(t)
	_, err = s.AddPayoutWallet(e.ctx, "mismatch", addr, other)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation))

	_, err = s.AddPayoutWallet(e.ctx, "", addr, other)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation))

	derived, err := s.DerivePayoutWallet(e.ctx, "derived-0", 0)
	require.NoError(t, err)
	want, _, err := hd.DeriveAddress(hdwallet.CoinTron, 0)
	require.NoError(t, err)
	assert.Equal(t, want, derived.Address)

	list, err := s.ListPayoutWallets(e.ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "derived-0", list[0].Name)

	noSeed := newWithdrawals(t, e, e.repo, nil)
	_, err = noSeed.DerivePayoutWallet(e.ctx, "x", 1)
	assert.True(t, xerr.IsKind(err, xerr.KindValidation))
}

func TestListWithdrawals_Enriched(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "u1", "100", nil)
	s := newWithdrawals(t, e, e.repo, nil)
	for i := 0; i < 3; i++ {
		_, err := s.RequestWithdrawal(e.ctx, "u1", decimal.NewFromInt(10), destination, "")
		require.NoError(t, err)
	}

	views, total, err := s.ListWithdrawals(e.ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, views, 2)
	assert.Equal(t, "u1@example.com", views[0].UserEmail)
	assert.Equal(t, domain.MethodTron, views[0].Method())
}
