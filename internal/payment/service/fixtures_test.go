package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/internal/payment/repo"
	"bullrush.com/internal/payment/testutil"
	"bullrush.com/pkg/xerr"
)

const (
	testContract   = "TTestUSDTContract"
	testCollection = "TTestCollectionAddress"
)

type sentTransfer struct {
	key    string
	to     string
	amount decimal.Decimal
}

type fakeOracle struct {
	mu        sync.Mutex
	transfers []domain.Transfer
	byHash    map[string]*domain.Transfer
	listErr   error
	native    decimal.Decimal
	token     decimal.Decimal
	sendHash  string
	sendErr   error
	sent      []sentTransfer
}

func newFakeOracle() *fakeOracle {
	return &fakeOracle{byHash: make(map[string]*domain.Transfer)}
}

func (f *fakeOracle) add(t domain.Transfer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t.Contract == "" {
		t.Contract = testContract
	}
	if t.To == "" {
		t.To = testCollection
	}
	t.Success = true
	f.transfers = append(f.transfers, t)
	cp := t
	f.byHash[t.TxHash] = &cp
}

func (f *fakeOracle) TransfersTo(_ context.Context, addr string, since time.Time) ([]domain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]domain.Transfer, 0, len(f.transfers))
	for _, t := range f.transfers {
		if t.To == addr && !t.BlockTime.Before(since) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeOracle) TransferByHash(_ context.Context, txHash string) (*domain.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.byHash[txHash]
	if !ok {
		return nil, xerr.NewKind(xerr.KindNotFound, "transaction not found")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeOracle) SendToken(_ context.Context, key, to string, amount decimal.Decimal) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentTransfer{key: key, to: to, amount: amount})
	return f.sendHash, nil
}

func (f *fakeOracle) Balances(context.Context, string) (decimal.Decimal, decimal.Decimal, error) {
	return f.native, f.token, nil
}

func (f *fakeOracle) TokenContract() string { return testContract }

func (f *fakeOracle) ExplorerURL(tx string) string { return "https://explorer.test/tx/" + tx }

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
}

func (p *fakePublisher) Publish(_ context.Context, subject string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	return nil
}

func (p *fakePublisher) published(subject string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

// failingCredit makes every CreditBalance fail.
type failingCredit struct {
	domain.UserRepo
}

func (failingCredit) CreditBalance(context.Context, string, decimal.Decimal) error {
	return xerr.NewKind(xerr.KindInternal, "credit refused")
}

type env struct {
	ctx      context.Context
	repo     *repo.Repo
	oracle   *fakeOracle
	pub      *fakePublisher
	referral *ReferralEngine
	settler  *Settler
	verifier *Verifier

	mu    sync.Mutex
	clock time.Time
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		ctx:    context.Background(),
		repo:   repo.New(testutil.NewDB(t)),
		oracle: newFakeOracle(),
		pub:    &fakePublisher{},
		clock:  time.Now().UTC().Truncate(time.Second),
	}
	cfg := DefaultReferralConfig()
	cfg.ProfileRetries = 1
	e.referral = NewReferralEngine(cfg, e.repo, e.repo, e.repo)
	e.settler = NewSettler(e.repo, e.repo, e.repo, e.referral, e.pub)
	e.settler.now = e.now
	e.verifier = NewVerifier(DepositConfig{
		CollectionAddress: testCollection,
		PollInterval:      time.Hour,
	}, e.repo, e.oracle, e.settler)
	e.verifier.now = e.now
	t.Cleanup(e.verifier.Shutdown)
	return e
}

func (e *env) now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock
}

func (e *env) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.clock = e.clock.Add(d)
}

func (e *env) seedUser(t *testing.T, id, balance string, referrer *string) *domain.User {
	t.Helper()
	u := &domain.User{
		ID:           id,
		Email:        id + "@example.com",
		FirstName:    "Test",
		LastName:     id,
		TokenBalance: decimal.RequireFromString(balance),
		IsActive:     true,
		ReferrerID:   referrer,
		ReferralCode: "R" + strings.ToUpper(id),
		CreatedAt:    time.Now().UTC(),
	}
	require.NoError(t, e.repo.CreateUser(e.ctx, u))
	return u
}

func (e *env) balance(t *testing.T, id string) decimal.Decimal {
	t.Helper()
	u, err := e.repo.GetUser(e.ctx, id)
	require.NoError(t, err)
	return u.TokenBalance
}

func ptr(s string) *string { return &s }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
