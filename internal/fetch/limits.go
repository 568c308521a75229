package fetch

import (
	"errors"
	"fmt"
)

// Limits are the independent resource ceilings a fetch must stay under.
// Lines and tokens are separate ceilings because they diverge on
// long-line-heavy code such as minified bundles.
type Limits struct {
	MaxArchiveBytes int64
	MaxFileBytes    int64
	MaxTotalLines   int
	MaxTokens       int
	MaxLineChars    int
}

func DefaultLimits() Limits {
	return Limits{
		MaxArchiveBytes: 50 * 1024 * 1024,
		MaxFileBytes:    100 * 1024,
		MaxTotalLines:   25000,
		MaxTokens:       128000,
		MaxLineChars:    500,
	}
}

// charsPerToken is the fixed ratio used to estimate prompt cost from
// extracted text.
const charsPerToken = 4

// TruncatedLineMarker replaces any line longer than MaxLineChars. Inlined
// binary, base64, and minified blobs inflate token cost without adding
// signal.
const TruncatedLineMarker = "[line truncated: too long]"

// LimitKind identifies which ceiling a fetch breached.
type LimitKind string

const (
	LimitBytes  LimitKind = "bytes"
	LimitLines  LimitKind = "lines"
	LimitTokens LimitKind = "tokens"
)

// LimitError reports a breached ceiling with the observed magnitude as
// structured fields, so callers never parse numbers back out of a message.
type LimitError struct {
	Kind     LimitKind
	Observed int64
	Ceiling  int64

	// ObservedLines accompanies token-ceiling breaches, where the line
	// ceiling held but the token estimate did not.
	ObservedLines int
}

func (e *LimitError) Error() string {
	switch e.Kind {
	case LimitBytes:
		return fmt.Sprintf("archive exceeds %dMB download limit (observed %dMB+)", e.Ceiling/(1024*1024), e.Observed/(1024*1024))
	case LimitLines:
		return fmt.Sprintf("repository exceeds %d line limit (observed %d+ lines)", e.Ceiling, e.Observed)
	case LimitTokens:
		return fmt.Sprintf("repository exceeds %dK token limit (estimated %dK tokens over %d lines)", e.Ceiling/1000, e.Observed/1000, e.ObservedLines)
	}
	return "resource ceiling exceeded"
}

// AsLimitError unwraps err into a *LimitError if one is in its chain.
func AsLimitError(err error) (*LimitError, bool) {
	var le *LimitError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// ErrNoSourceFiles is returned when the walk retains nothing at all.
var ErrNoSourceFiles = errors.New("no source files found in repository")

// ProviderError wraps hosting-provider failures (network, non-2xx) so the
// boundary layer can map them to CLONE_FAILED without string matching.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string { return "provider request failed: " + e.Err.Error() }
func (e *ProviderError) Unwrap() error { return e.Err }
