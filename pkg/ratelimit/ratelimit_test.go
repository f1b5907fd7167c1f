package ratelimit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"bullrush.com/pkg/xerr"
)

func TestStore_AllowPerKey(t *testing.T) {
	s := NewStore(rate.Every(time.Hour), 2, time.Minute)

	assert.True(t, s.Allow("a"))
	assert.True(t, s.Allow("a"))
	assert.False(t, s.Allow("a"), "burst exhausted")
	assert.True(t, s.Allow("b"), "keys are independent")
}

func TestStore_CleanupDropsIdle(t *testing.T) {
	s := NewStore(rate.Inf, 1, time.Nanosecond)
	s.Allow("x")
	time.Sleep(time.Millisecond)
	s.cleanup()

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Empty(t, s.entries)
}

func TestIsSuccessfulForBreaker(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, true},
		{"validation", xerr.NewKind(xerr.KindValidation, "bad"), true},
		{"not found", xerr.NewKind(xerr.KindNotFound, "missing"), true},
		{"external", xerr.NewKind(xerr.KindExternal, "down"), false},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSuccessfulForBreaker(tt.err))
		})
	}
}

func TestExecute_OpensAfterConsecutiveFailures(t *testing.T) {
	m := NewManager(Rule{TripConsecutiveFailures: 2, Timeout: time.Minute}, nil)
	boom := errors.New("boom")

	for i := 0; i < 2; i++ {
		_, err := Execute(m, "tron.tx", func() (int, error) { return 0, boom })
		require.ErrorIs(t, err, boom)
	}

	called := false
	_, err := Execute(m, "tron.tx", func() (int, error) { called = true; return 1, nil })
	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, xerr.IsKind(err, xerr.KindExternal))

	v, err := Execute(m, "tron.balance", func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}
