package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verepo/internal/store"
)

func newTestLedger(at time.Time) *Ledger {
	l := NewLedger(store.NewMemoryStore(), 5, 3)
	l.Now = func() time.Time { return at }
	return l
}

func TestCheckAndCommitIPOnly(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	for n := 1; n <= 5; n++ {
		check, err := l.Check(ctx, "1.2.3.4", "")
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 5-n+1, check.Remaining)
		require.NoError(t, l.Commit(ctx, "1.2.3.4", ""))

		usage, err := l.Peek(ctx, "1.2.3.4", "")
		require.NoError(t, err)
		assert.Equal(t, 5-n, usage.IPRemaining)
	}

	check, err := l.Check(ctx, "1.2.3.4", "")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "IP daily limit")

	// A different IP is unaffected.
	check, err = l.Check(ctx, "5.6.7.8", "")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
}

func TestCheckWalletCeilingIsTighter(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	for n := 0; n < 3; n++ {
		check, err := l.Check(ctx, "1.2.3.4", "walletA")
		require.NoError(t, err)
		assert.True(t, check.Allowed)
		assert.Equal(t, 3-n, check.Remaining, "remaining is the min of both budgets")
		require.NoError(t, l.Commit(ctx, "1.2.3.4", "walletA"))
	}

	check, err := l.Check(ctx, "1.2.3.4", "walletA")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Contains(t, check.Reason, "Wallet daily limit")

	// The IP still has budget when used without the exhausted wallet.
	check, err = l.Check(ctx, "1.2.3.4", "")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 2, check.Remaining)
}

func TestUTCMidnightReset(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	l := NewLedger(s, 5, 3)
	l.Now = func() time.Time { return time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC) }

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Commit(ctx, "1.2.3.4", ""))
	}
	check, err := l.Check(ctx, "1.2.3.4", "")
	require.NoError(t, err)
	assert.False(t, check.Allowed)
	assert.Equal(t, time.Minute, check.ResetIn)

	// One minute later the date rolled over; the counter is fresh.
	l.Now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) }
	check, err = l.Check(ctx, "1.2.3.4", "")
	require.NoError(t, err)
	assert.True(t, check.Allowed)
	assert.Equal(t, 5, check.Remaining)
	assert.Equal(t, 24*time.Hour, check.ResetIn)
}

func TestPeekReportsWalletRemaining(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	usage, err := l.Peek(ctx, "1.2.3.4", "")
	require.NoError(t, err)
	assert.Equal(t, 5, usage.IPRemaining)
	assert.Nil(t, usage.WalletRemaining)

	require.NoError(t, l.Commit(ctx, "1.2.3.4", "walletA"))
	usage, err = l.Peek(ctx, "1.2.3.4", "walletA")
	require.NoError(t, err)
	assert.Equal(t, 4, usage.IPRemaining)
	require.NotNil(t, usage.WalletRemaining)
	assert.Equal(t, 2, *usage.WalletRemaining)
}

func TestCheckNeverIncrements(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))

	for i := 0; i < 10; i++ {
		_, err := l.Check(ctx, "1.2.3.4", "walletA")
		require.NoError(t, err)
	}
	usage, err := l.Peek(ctx, "1.2.3.4", "walletA")
	require.NoError(t, err)
	assert.Equal(t, 5, usage.IPRemaining)
	assert.Equal(t, 3, *usage.WalletRemaining)
}
