package wallet

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/require"
)

func signedClaim(t *testing.T, ts int64) (walletAddr, signature string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	sig := ed25519.Sign(priv, []byte(BuildSignMessage(ts)))
	return base58.Encode(pub), base58.Encode(sig)
}

func TestVerifyValidSignature(t *testing.T) {
	now := time.Now()
	ts := now.UnixMilli()
	addr, sig := signedClaim(t, ts)

	v := Verifier{Now: func() time.Time { return now }}
	require.True(t, v.Verify(addr, sig, ts))
}

func TestVerifyTTLBoundary(t *testing.T) {
	signedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ts := signedAt.UnixMilli()
	addr, sig := signedClaim(t, ts)

	accept := Verifier{Now: func() time.Time { return signedAt.Add(4*time.Minute + 59*time.Second) }}
	require.True(t, accept.Verify(addr, sig, ts))

	reject := Verifier{Now: func() time.Time { return signedAt.Add(5*time.Minute + 1*time.Second) }}
	require.False(t, reject.Verify(addr, sig, ts))

	// Future-dated claims are rejected symmetrically.
	future := Verifier{Now: func() time.Time { return signedAt.Add(-5*time.Minute - 1*time.Second) }}
	require.False(t, future.Verify(addr, sig, ts))
}

func TestVerifyRejectsWrongTimestamp(t *testing.T) {
	now := time.Now()
	ts := now.UnixMilli()
	addr, sig := signedClaim(t, ts)

	// A captured signature cannot be replayed against a different timestamp.
	v := Verifier{Now: func() time.Time { return now }}
	require.False(t, v.Verify(addr, sig, ts+1))
}

func TestVerifyMalformedInput(t *testing.T) {
	now := time.Now()
	ts := now.UnixMilli()
	addr, sig := signedClaim(t, ts)
	v := Verifier{Now: func() time.Time { return now }}

	require.False(t, v.Verify("not-base58-0OIl", sig, ts))
	require.False(t, v.Verify(addr, "not-base58-0OIl", ts))
	require.False(t, v.Verify("", "", ts))
	// Valid base58 but wrong length.
	require.False(t, v.Verify(base58.Encode([]byte("short")), sig, ts))
}
