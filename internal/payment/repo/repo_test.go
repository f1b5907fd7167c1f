package repo_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/internal/payment/repo"
	"bullrush.com/internal/payment/testutil"
	"bullrush.com/pkg/xerr"
)

func newRepo(t *testing.T) *repo.Repo {
	return repo.New(testutil.NewDB(t))
}

func seedUser(t *testing.T, r *repo.Repo, id string, balance string) {
	t.Helper()
	require.NoError(t, r.CreateUser(context.Background(), &domain.User{
		ID:           id,
		Email:        id + "@example.com",
		FirstName:    "Test",
		LastName:     id,
		TokenBalance: decimal.RequireFromString(balance),
		IsActive:     true,
		ReferralCode: "C" + strings.ToUpper(id),
		CreatedAt:    time.Now().UTC(),
	}))
}

func TestDebitBalance_Conditional(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "100")

	tests := []struct {
		name    string
		amount  string
		wantErr int
		want    string
	}{
		{name: "debit within balance", amount: "60", want: "40"},
		{name: "overdraw is refused", amount: "40.01", wantErr: xerr.InsufficientBalance, want: "40"},
		{name: "exact balance", amount: "40", want: "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.DebitBalance(ctx, "u1", decimal.RequireFromString(tt.amount))
			if tt.wantErr != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantErr, xerr.CodeOf(err))
			} else {
				require.NoError(t, err)
			}
			u, err := r.GetUser(ctx, "u1")
			require.NoError(t, err)
			assert.True(t, u.TokenBalance.Equal(decimal.RequireFromString(tt.want)), "balance %s", u.TokenBalance)
		})
	}
}

func TestApproveRequest_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "0")
	now := time.Now().UTC()
	req := &domain.DepositRequest{
		UserID: "u1", AmountUSDT: decimal.NewFromInt(100), Status: domain.DepositPending,
		PlanType: domain.PlanMonthly, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, r.CreateDepositRequest(ctx, req))

	ok, err := r.ApproveRequest(ctx, req.ID, "hash-1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = r.ApproveRequest(ctx, req.ID, "hash-2", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.False(t, ok, "second approval must not win")

	got, err := r.RequestByTxHash(ctx, "hash-1")
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	ok, err = r.RevertApproval(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = r.GetDepositRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DepositPending, got.Status)
	assert.Nil(t, got.TxHash)
}

func TestTxHashIsUnique(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "0")
	now := time.Now().UTC()
	ids := make([]string, 2)
	for i := range ids {
		req := &domain.DepositRequest{
			UserID: "u1", AmountUSDT: decimal.NewFromInt(10), Status: domain.DepositPending,
			PlanType: domain.PlanMonthly, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
		}
		require.NoError(t, r.CreateDepositRequest(ctx, req))
		ids[i] = req.ID
	}

	_, err := r.ApproveRequest(ctx, ids[0], "same", decimal.NewFromInt(10))
	require.NoError(t, err)
	_, err = r.ApproveRequest(ctx, ids[1], "same", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.True(t, xerr.IsKind(err, xerr.KindConflict))

	claimed, err := r.ClaimedHashes(ctx, []string{"same", "other"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"same": ids[0]}, claimed)
}

func TestExpireOverdue(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "0")
	now := time.Now().UTC()

	old := &domain.DepositRequest{
		UserID: "u1", AmountUSDT: decimal.NewFromInt(10), Status: domain.DepositPending,
		PlanType: domain.PlanMonthly, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
	}
	fresh := &domain.DepositRequest{
		UserID: "u1", AmountUSDT: decimal.NewFromInt(10), Status: domain.DepositPending,
		PlanType: domain.PlanMonthly, CreatedAt: now, ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, r.CreateDepositRequest(ctx, old))
	require.NoError(t, r.CreateDepositRequest(ctx, fresh))

	n, err := r.ExpireOverdue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err := r.ListOpenRequests(ctx, now)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, fresh.ID, open[0].ID)
}

func TestInsertBonus_Idempotent(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	b := func() *domain.ReferralBonus {
		return &domain.ReferralBonus{
			ReferrerID: "a", ReferredUserID: "b", InvestmentID: "inv-1",
			Level: 1, BonusType: domain.BonusFirstInvestment, Amount: decimal.NewFromInt(50),
		}
	}
	ok, err := r.InsertBonus(ctx, b())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.InsertBonus(ctx, b())
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := r.ListBonusesByInvestment(ctx, "inv-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestSetReferrer_Once(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "a", "0")
	seedUser(t, r, "b", "0")
	seedUser(t, r, "c", "0")

	ok, err := r.SetReferrer(ctx, "c", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = r.SetReferrer(ctx, "c", "b")
	require.NoError(t, err)
	assert.False(t, ok)

	u, err := r.FindUserByCode(ctx, "cb")
	require.NoError(t, err, "codes are matched upper-cased")
	assert.Equal(t, "b", u.ID)
	u, err = r.FindUserByCode(ctx, "a")
	require.NoError(t, err, "raw ids resolve too")
	assert.Equal(t, "a", u.ID)
}

func TestSetBalanceWritesAudit(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "10")

	err := r.SetBalance(ctx, "u1", decimal.NewFromInt(10), decimal.NewFromInt(25), &domain.AdminTransaction{
		UserID: "u1", AdminID: "admin", Amount: decimal.NewFromInt(15), TransactionType: domain.AdminCredit,
	})
	require.NoError(t, err)

	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.TokenBalance.Equal(decimal.NewFromInt(25)))
	audits, err := r.ListAdminTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, audits, 1)

	err = r.SetBalance(ctx, "ghost", decimal.Zero, decimal.NewFromInt(1), &domain.AdminTransaction{UserID: "ghost"})
	assert.True(t, xerr.IsKind(err, xerr.KindNotFound))
}

func TestSetBalanceRejectsStaleRead(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "100")
	require.NoError(t, r.CreditBalance(ctx, "u1", decimal.NewFromInt(50)))

	err := r.SetBalance(ctx, "u1", decimal.NewFromInt(100), decimal.NewFromInt(200), &domain.AdminTransaction{
		UserID: "u1", AdminID: "admin", Amount: decimal.NewFromInt(100), TransactionType: domain.AdminCredit,
	})
	require.Error(t, err)
	assert.Equal(t, xerr.BalanceChanged, xerr.CodeOf(err))
	assert.True(t, xerr.IsKind(err, xerr.KindConflict))

	u, err := r.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, u.TokenBalance.Equal(decimal.NewFromInt(150)), "concurrent credit survives")
	audits, err := r.ListAdminTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, audits, "no audit row without a balance write")
}

func TestListWithdrawalsJoinsUser(t *testing.T) {
	ctx := context.Background()
	r := newRepo(t)
	seedUser(t, r, "u1", "0")
	phone := "+255700000001"
	require.NoError(t, r.CreateWithdrawal(ctx, &domain.Withdrawal{
		UserID: "u1", Amount: decimal.NewFromInt(5), PhoneNumber: &phone, Status: domain.WithdrawalPending,
	}))

	list, total, err := r.ListWithdrawals(ctx, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	assert.Equal(t, "u1@example.com", list[0].UserEmail)
	assert.Equal(t, domain.MethodMobile, list[0].Method())
}
