package store

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a cached analysis.
type Status string

const (
	StatusAnalyzing Status = "analyzing"
	StatusDone      Status = "done"
	StatusError     Status = "error"
)

// ResultRecord is the persistent cached-analysis row, at most one per
// repository key.
type ResultRecord struct {
	RepoKey    string
	RepoURL    string
	RepoOwner  string
	RepoName   string
	Status     Status
	Result     json.RawMessage // present only when done
	CommitSha  string          // present only when done
	FilesCount int
	TotalLines int
	TokenCount int
	ErrorKind  string // present only when error
	AnalyzedBy string
	UpdatedAt  time.Time
}

// DoneUpdate carries the terminal success payload for a record.
type DoneUpdate struct {
	Result     json.RawMessage
	CommitSha  string
	FilesCount int
	TotalLines int
	TokenCount int
}

// UsageKind distinguishes the two quota identity classes.
type UsageKind string

const (
	UsageIP     UsageKind = "ip"
	UsageWallet UsageKind = "wallet"
)

// Store is the persistence collaborator. All mutation is via upsert and
// increment primitives that are atomic at single-record granularity; the
// coordinator relies on that for cross-instance mutual exclusion.
type Store interface {
	// GetResult returns the record for repoKey, or nil when absent.
	GetResult(ctx context.Context, repoKey string) (*ResultRecord, error)

	// UpsertAnalyzing creates or overwrites the record for rec.RepoKey
	// with status=analyzing, clearing any prior error and refreshing
	// UpdatedAt. Concurrent callers collapse onto the one row.
	UpsertAnalyzing(ctx context.Context, rec ResultRecord) error

	// MarkDone atomically writes the terminal success state.
	MarkDone(ctx context.Context, repoKey string, update DoneUpdate) error

	// MarkError atomically writes the terminal error state. observedLines
	// records how far extraction got for line-ceiling failures.
	MarkError(ctx context.Context, repoKey, errorKind string, observedLines int) error

	// IncrementUsage atomically increments-or-creates the usage counter
	// for (key, kind, date).
	IncrementUsage(ctx context.Context, key string, kind UsageKind, date string) error

	// GetUsage returns the counter for (key, kind, date); zero when absent.
	GetUsage(ctx context.Context, key string, kind UsageKind, date string) (int, error)

	// ResetUsage deletes all usage counters, returning how many rows went.
	ResetUsage(ctx context.Context) (int64, error)

	// PruneErrors deletes all error-status result rows.
	PruneErrors(ctx context.Context) (int64, error)

	Close()
}
