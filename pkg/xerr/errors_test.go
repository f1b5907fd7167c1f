package xerr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusByKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", New(RequestParamsError, "bad amount"), http.StatusBadRequest},
		{"auth", NewKind(KindAuth, "missing token"), http.StatusUnauthorized},
		{"forbidden", NewErrCode(Forbidden), http.StatusForbidden},
		{"not found", New(RecordNotFound, "withdrawal not found"), http.StatusNotFound},
		{"conflict", NewKind(KindConflict, "amount mismatch"), http.StatusConflict},
		{"expired", New(Gone, "request expired"), http.StatusGone},
		{"external", Wrap(errors.New("dial tcp"), KindExternal, "oracle down"), http.StatusBadGateway},
		{"integrity", NewKind(KindIntegrity, "refund failed"), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
		{"referral window", New(WindowClosed, "window closed"), http.StatusBadRequest},
		{"profile missing", New(ProfileNotFound, "profile missing"), http.StatusNotFound},
		{"hash reused", WrapCode(errors.New("duplicated key"), TxHashUsed, "hash used"), http.StatusConflict},
		{"balance moved", New(BalanceChanged, "balance changed"), http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestWrapKeepsCauseAndHidesIt(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, KindExternal, "oracle unavailable")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "oracle unavailable", MessageOf(err))
	assert.True(t, IsKind(fmt.Errorf("outer: %w", err), KindExternal))
	assert.Nil(t, Wrap(nil, KindExternal, "unused"))
	assert.Nil(t, WrapCode(nil, TxHashUsed, "unused"))

	coded := WrapCode(cause, TxHashUsed, "transaction already used")
	assert.ErrorIs(t, coded, cause)
	assert.Equal(t, TxHashUsed, CodeOf(coded))
	assert.True(t, IsKind(coded, KindConflict))
}

func TestSentinelMatchesByCode(t *testing.T) {
	sentinel := New(AlreadyReferred, "a referrer is already linked")
	got := fmt.Errorf("apply: %w", New(AlreadyReferred, "a referrer is already linked to this account"))

	assert.ErrorIs(t, got, sentinel)
	assert.NotErrorIs(t, got, New(InvalidCode, "x"))
	assert.Equal(t, AlreadyReferred, CodeOf(got))
}
