package verepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"verepo/internal/analysis"
	"verepo/internal/fetch"
	"verepo/internal/quota"
	"verepo/internal/repourl"
	"verepo/internal/store"
	"verepo/internal/transcript"
)

// DefaultStaleAnalyzing is how long an analyzing record stays authoritative.
// Past this age it is treated as an abandoned attempt (crashed process) and
// the next caller may re-trigger; the record is never auto-deleted.
const DefaultStaleAnalyzing = 10 * time.Minute

// Fetcher is the archive fetch/extract stage.
type Fetcher interface {
	Fetch(ctx context.Context, key string) (*fetch.Result, error)
}

// Analyzer is the model invocation stage.
type Analyzer interface {
	Analyze(ctx context.Context, files []fetch.SourceFile, repoName string, policy analysis.Policy) (*analysis.Result, *analysis.Exchange, error)
}

// CommitResolver answers "what is the latest commit", or "" when unknown.
type CommitResolver interface {
	ResolveLatestCommit(ctx context.Context, key string) string
}

// Coordinator drives the fetch+analyze pipeline at most once per stale or
// missing repository key. Mutual exclusion across requests and across
// process instances is carried entirely by the store's atomic upsert on the
// unique repo key plus the staleness clock; there is no in-memory lock.
type Coordinator struct {
	store       store.Store
	quota       *quota.Ledger
	fetcher     Fetcher
	analyzer    Analyzer
	commits     CommitResolver
	transcripts transcript.Store

	affiliatedOwners []string
	staleAfter       time.Duration

	// Now lets tests pin the staleness clock. Nil means time.Now.
	Now func() time.Time
}

type Options struct {
	AffiliatedOwners []string
	StaleAnalyzing   time.Duration
	Transcripts      transcript.Store
}

func NewCoordinator(s store.Store, ledger *quota.Ledger, fetcher Fetcher, analyzer Analyzer, commits CommitResolver, opts Options) *Coordinator {
	stale := opts.StaleAnalyzing
	if stale <= 0 {
		stale = DefaultStaleAnalyzing
	}
	return &Coordinator{
		store:            s,
		quota:            ledger,
		fetcher:          fetcher,
		analyzer:         analyzer,
		commits:          commits,
		transcripts:      opts.Transcripts,
		affiliatedOwners: opts.AffiliatedOwners,
		staleAfter:       stale,
	}
}

// Request identifies one analyze call: the validated reference and the
// caller identities that passed verification.
type Request struct {
	RepoURL string
	RepoKey string
	IP      string
	Wallet  string
}

// Outcome is the non-error result of an analyze call.
type Outcome struct {
	RepoKey string
	// Analyzing means another attempt holds the key; poll instead.
	Analyzing bool
	// Cached means the payload was served from a fresh done record with
	// no quota consumed and no pipeline run.
	Cached  bool
	Payload json.RawMessage
}

// Meta accompanies every fresh analysis payload.
type Meta struct {
	RepoName      string    `json:"repoName"`
	FilesAnalyzed int       `json:"filesAnalyzed"`
	TotalLines    int       `json:"totalLines"`
	AnalyzedAt    time.Time `json:"analyzedAt"`
	Remaining     int       `json:"remaining"`
}

type payload struct {
	analysis.Result
	Meta Meta `json:"meta"`
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Analyze runs the full decision ladder for one request: serve from cache,
// defer to an in-flight attempt, or trigger the pipeline. All failures are
// returned as *Failure values carrying a public code.
func (c *Coordinator) Analyze(ctx context.Context, req Request) (*Outcome, error) {
	rec, err := c.store.GetResult(ctx, req.RepoKey)
	if err != nil {
		return nil, internalFailure(err)
	}

	if rec != nil {
		switch {
		case rec.Status == store.StatusDone && len(rec.Result) > 0:
			latest := c.commits.ResolveLatestCommit(ctx, req.RepoKey)
			if latest == "" || (rec.CommitSha != "" && latest == rec.CommitSha) {
				// Unknown freshness never forces re-analysis; the cached
				// verdict is far cheaper than a redundant model call.
				return &Outcome{RepoKey: req.RepoKey, Cached: true, Payload: rec.Result}, nil
			}
			log.Printf("[verepo] commit changed for %s: %.7s -> %.7s, re-analyzing", req.RepoKey, rec.CommitSha, latest)

		case rec.Status == store.StatusAnalyzing:
			age := c.now().Sub(rec.UpdatedAt)
			if age < c.staleAfter {
				return &Outcome{RepoKey: req.RepoKey, Analyzing: true}, nil
			}
			log.Printf("[verepo] stale analyzing record for %s (%s old), re-analyzing", req.RepoKey, age.Round(time.Second))
		}
		// status == error always falls through: a prior error never blocks
		// a retry.
	}

	check, err := c.quota.Check(ctx, req.IP, req.Wallet)
	if err != nil {
		return nil, internalFailure(err)
	}
	if !check.Allowed {
		return nil, rateLimited(check)
	}

	owner, name := repourl.Split(req.RepoKey)
	analyzedBy := req.Wallet
	if analyzedBy == "" {
		analyzedBy = "ip:" + req.IP
	}
	if err := c.store.UpsertAnalyzing(ctx, store.ResultRecord{
		RepoKey:    req.RepoKey,
		RepoURL:    req.RepoURL,
		RepoOwner:  owner,
		RepoName:   name,
		AnalyzedBy: analyzedBy,
	}); err != nil {
		return nil, internalFailure(err)
	}

	// Quota is consumed the moment the attempt starts, not on completion.
	// A failed analysis still costs a unit; refunds would make unlimited
	// retries free.
	if err := c.quota.Commit(ctx, req.IP, req.Wallet); err != nil {
		return nil, internalFailure(err)
	}

	fetched, err := c.fetcher.Fetch(ctx, req.RepoKey)
	if err != nil {
		return nil, c.failFetch(ctx, req.RepoKey, err)
	}

	policy := analysis.PolicyFor(owner, c.affiliatedOwners)
	result, exchange, err := c.analyzer.Analyze(ctx, fetched.Files, fetched.RepoName, policy)
	if err != nil {
		log.Printf("[verepo] analysis failed for %s: %v", req.RepoKey, err)
		_ = c.store.MarkError(ctx, req.RepoKey, CodeAnalysisFailed, 0)
		return nil, &Failure{
			Code:       CodeAnalysisFailed,
			HTTPStatus: 500,
			Message:    "Analysis failed. Please try again later.",
		}
	}

	body, err := json.Marshal(payload{
		Result: *result,
		Meta: Meta{
			RepoName:      fetched.RepoName,
			FilesAnalyzed: len(fetched.Files),
			TotalLines:    fetched.TotalLines,
			AnalyzedAt:    c.now().UTC(),
			Remaining:     check.Remaining - 1,
		},
	})
	if err != nil {
		return nil, internalFailure(err)
	}

	if err := c.store.MarkDone(ctx, req.RepoKey, store.DoneUpdate{
		Result:     body,
		CommitSha:  fetched.CommitSha,
		FilesCount: len(fetched.Files),
		TotalLines: fetched.TotalLines,
		TokenCount: fetched.TokenCount,
	}); err != nil {
		return nil, internalFailure(err)
	}

	c.archive(ctx, req.RepoKey, fetched.CommitSha, policy, exchange)

	return &Outcome{RepoKey: req.RepoKey, Payload: body}, nil
}

// failFetch persists the fetch failure and maps it to a public code.
func (c *Coordinator) failFetch(ctx context.Context, repoKey string, err error) error {
	if le, ok := fetch.AsLimitError(err); ok {
		switch le.Kind {
		case fetch.LimitBytes:
			_ = c.store.MarkError(ctx, repoKey, "TOO_HEAVY", 0)
			return &Failure{
				Code:       CodeTooLarge,
				HTTPStatus: 413,
				Message: fmt.Sprintf("Repository download is %dMB+, exceeding the %dMB limit. This usually means the repo contains large binary files. Verepo only analyzes source code repositories.",
					le.Observed/(1024*1024), le.Ceiling/(1024*1024)),
			}
		case fetch.LimitLines:
			_ = c.store.MarkError(ctx, repoKey, "TOO_LARGE", int(le.Observed))
			return &Failure{
				Code:       CodeTooLarge,
				HTTPStatus: 413,
				Message: fmt.Sprintf("Repository has %d+ lines of source code, exceeding the %d line limit. Try a smaller repository.",
					le.Observed, le.Ceiling),
			}
		case fetch.LimitTokens:
			_ = c.store.MarkError(ctx, repoKey, "TOO_LARGE", le.ObservedLines)
			return &Failure{
				Code:       CodeTooLarge,
				HTTPStatus: 413,
				Message: fmt.Sprintf("Repository is estimated at %dK tokens over %d lines, exceeding the %dK token limit. Try a smaller repository.",
					le.Observed/1000, le.ObservedLines, le.Ceiling/1000),
			}
		}
	}
	if errors.Is(err, fetch.ErrNoSourceFiles) {
		_ = c.store.MarkError(ctx, repoKey, CodeNoSource, 0)
		return &Failure{
			Code:       CodeNoSource,
			HTTPStatus: 422,
			Message:    "No source files found in this repository.",
		}
	}
	log.Printf("[verepo] fetch failed for %s: %v", repoKey, err)
	_ = c.store.MarkError(ctx, repoKey, CodeCloneFailed, 0)
	return &Failure{
		Code:       CodeCloneFailed,
		HTTPStatus: 422,
		Message:    "Failed to fetch repository. Make sure the repo exists and is public.",
	}
}

// archive stores the model exchange best-effort; archival never fails a
// request.
func (c *Coordinator) archive(ctx context.Context, repoKey, commitSha string, policy analysis.Policy, exchange *analysis.Exchange) {
	if c.transcripts == nil || exchange == nil {
		return
	}
	err := c.transcripts.Put(ctx, transcript.Record{
		RepoKey:   repoKey,
		CommitSha: commitSha,
		Policy:    string(policy),
		System:    exchange.System,
		User:      exchange.User,
		Response:  exchange.Response,
	})
	if err != nil {
		log.Printf("[verepo] transcript archive failed for %s: %v", repoKey, err)
	}
}

// StatusView is the polling answer for one repository key.
type StatusView struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Status reports the current record state without triggering anything.
func (c *Coordinator) Status(ctx context.Context, repoKey string) (StatusView, error) {
	rec, err := c.store.GetResult(ctx, repoKey)
	if err != nil {
		return StatusView{}, err
	}
	if rec == nil {
		return StatusView{Status: "not_found"}, nil
	}
	switch {
	case rec.Status == store.StatusDone && len(rec.Result) > 0:
		return StatusView{Status: "done", Data: rec.Result}, nil
	case rec.Status == store.StatusError:
		return StatusView{Status: "error", Error: rec.ErrorKind}, nil
	default:
		return StatusView{Status: "analyzing", Message: "Analysis in progress. Please wait..."}, nil
	}
}
