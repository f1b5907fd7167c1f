package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bullrush.com/internal/payment/domain"
	"bullrush.com/pkg/xerr"
)

// seedChain creates investor -> l1 -> ... -> l6 and returns the investor id.
func seedChain(t *testing.T, e *env) string {
	t.Helper()
	var up *string
	for _, id := range []string{"l6", "l5", "l4", "l3", "l2", "l1"} {
		e.seedUser(t, id, "0", up)
		up = ptr(id)
	}
	e.seedUser(t, "investor", "0", up)
	return "investor"
}

func TestDistributeBonuses_FiveLevels(t *testing.T) {
	e := newEnv(t)
	investor := seedChain(t, e)
	inv := &domain.Investment{
		UserID: investor, AmountTokens: dec("1000"), InitialAmount: dec("1000"),
		PlanType: domain.PlanMonthly, Status: domain.InvestmentActive, StartDate: e.now(),
	}
	require.NoError(t, e.repo.CreateInvestment(e.ctx, inv))

	n, err := e.referral.DistributeBonuses(e.ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	bonuses, err := e.repo.ListBonusesByInvestment(e.ctx, inv.ID)
	require.NoError(t, err)
	got := map[string]string{}
	for _, b := range bonuses {
		got[b.ReferrerID+"/"+string(b.BonusType)] = b.Amount.String()
	}
	assert.Equal(t, map[string]string{
		"l1/first_investment": "50",
		"l1/ongoing":          "20",
		"l2/first_investment": "20",
		"l3/first_investment": "10",
		"l4/first_investment": "5",
		"l5/first_investment": "2.5",
	}, got)

	// rerun writes nothing
	n, err = e.referral.DistributeBonuses(e.ctx, inv)
	require.NoError(t, err)
	assert.Zero(t, n)

	// bonuses are recorded, not credited
	assert.True(t, e.balance(t, "l1").IsZero())
}

func TestDistributeBonuses_StopsAtBrokenChain(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "top", "0", ptr("ghost"))
	e.seedUser(t, "investor", "0", ptr("top"))
	inv := &domain.Investment{UserID: "investor", AmountTokens: dec("200"), Status: domain.InvestmentActive, StartDate: e.now()}
	require.NoError(t, e.repo.CreateInvestment(e.ctx, inv))

	n, err := e.referral.DistributeBonuses(e.ctx, inv)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestApplyReferralCode(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "sponsor", "0", nil)
	e.seedUser(t, "newbie", "0", nil)
	old := &domain.User{ID: "veteran", ReferralCode: "RVETERAN", IsActive: true, CreatedAt: time.Now().UTC().Add(-25 * time.Hour)}
	require.NoError(t, e.repo.CreateUser(e.ctx, old))

	inv := &domain.Investment{UserID: "newbie", AmountTokens: dec("100"), Status: domain.InvestmentActive, StartDate: e.now()}
	require.NoError(t, e.repo.CreateInvestment(e.ctx, inv))

	tests := []struct {
		name string
		user string
		code string
		want int
	}{
		{"missing profile", "nobody", "RSPONSOR", xerr.ProfileNotFound},
		{"unknown code", "newbie", "NOPE42", xerr.InvalidCode},
		{"self referral", "newbie", "rnewbie", xerr.InvalidCode},
		{"window closed", "veteran", "RSPONSOR", xerr.WindowClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.referral.ApplyReferralCode(e.ctx, tt.user, tt.code)
			require.Error(t, err)
			assert.Equal(t, tt.want, xerr.CodeOf(err))
		})
	}

	// lower case code is accepted and the existing investment is backfilled
	n, err := e.referral.ApplyReferralCode(e.ctx, "newbie", "rsponsor")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	bonuses, err := e.repo.ListBonusesByInvestment(e.ctx, inv.ID)
	require.NoError(t, err)
	assert.Len(t, bonuses, 2)

	_, err = e.referral.ApplyReferralCode(e.ctx, "newbie", "RSPONSOR")
	assert.Equal(t, xerr.AlreadyReferred, xerr.CodeOf(err))

	// sponsor -> newbie would close a loop
	_, err = e.referral.ApplyReferralCode(e.ctx, "sponsor", "RNEWBIE")
	assert.Equal(t, xerr.InvalidCode, xerr.CodeOf(err))
}

func TestSettlementTriggersReferralBonuses(t *testing.T) {
	e := newEnv(t)
	e.seedUser(t, "sponsor", "0", nil)
	e.seedUser(t, "u1", "0", ptr("sponsor"))
	req, err := e.verifier.RequestDeposit(e.ctx, "u1", dec("1000"), "yearly")
	require.NoError(t, err)
	e.oracle.add(domain.Transfer{TxHash: "h", Amount: dec("1000"), BlockTime: e.now().Add(time.Second)})

	res, err := e.verifier.SubmitTxHash(e.ctx, "u1", req.ID, "h")
	require.NoError(t, err)
	require.Equal(t, domain.ResultApproved, res.Kind)

	invs, err := e.repo.ListActiveInvestments(e.ctx, "u1")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	bonuses, err := e.repo.ListBonusesByInvestment(e.ctx, invs[0].ID)
	require.NoError(t, err)
	assert.Len(t, bonuses, 2)
}
