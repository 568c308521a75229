package wallet

import (
	"crypto/ed25519"
	"strconv"
	"time"

	"github.com/mr-tron/base58"
)

// SignMessagePrefix is the fixed prefix of the message wallets sign. The
// timestamp suffix binds each signature to a narrow validity window.
const SignMessagePrefix = "Parity Verepo: verify wallet ownership\n\nTimestamp: "

// MaxClockSkew bounds how far (either direction) a claim timestamp may sit
// from verification time. Five minutes trades replay risk against wallets
// with slightly wrong clocks.
const MaxClockSkew = 5 * time.Minute

// BuildSignMessage returns the exact message a wallet must sign for the
// given Unix-millisecond timestamp.
func BuildSignMessage(timestampMs int64) string {
	return SignMessagePrefix + strconv.FormatInt(timestampMs, 10)
}

// Verifier checks that a caller controls a claimed wallet. The zero value
// verifies against the real clock.
type Verifier struct {
	// Now lets tests pin the verification clock. Nil means time.Now.
	Now func() time.Time
}

// Verify reports whether signature is a valid detached ed25519 signature by
// wallet over the timestamped sign message, and the timestamp is fresh.
// Malformed encodings and cryptographic failures all report false; nothing
// here panics or returns an error for bad input.
func (v Verifier) Verify(walletAddr, signature string, timestampMs int64) bool {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}
	claimed := time.UnixMilli(timestampMs)
	skew := now().Sub(claimed)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return false
	}

	pubKey, err := base58.Decode(walletAddr)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		return false
	}
	sig, err := base58.Decode(signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(pubKey), []byte(BuildSignMessage(timestampMs)), sig)
}
