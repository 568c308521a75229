package llm

import (
	"context"
	"errors"
)

// ErrNoText is returned when the model reply carries no usable text part.
var ErrNoText = errors.New("no text in model response")

// ErrMissingAPIKey indicates a configuration error, not a runtime one.
var ErrMissingAPIKey = errors.New("model API key is not configured")

// Client is the minimal surface the analyzer needs from a reasoning model:
// one system+user exchange returning the raw completion text.
type Client interface {
	Name() string
	Generate(ctx context.Context, system, user string) (string, error)
	Close() error
}
