package store

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and database-less local
// runs. Single-instance only; production uses Postgres.
type MemoryStore struct {
	mu      sync.Mutex
	results map[string]*ResultRecord
	usage   map[usageKey]int

	// NowFunc lets tests control record timestamps.
	NowFunc func() time.Time
}

type usageKey struct {
	key  string
	kind UsageKind
	date string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*ResultRecord),
		usage:   make(map[usageKey]int),
	}
}

func (s *MemoryStore) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc()
	}
	return time.Now().UTC()
}

func (s *MemoryStore) GetResult(_ context.Context, repoKey string) (*ResultRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[repoKey]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) UpsertAnalyzing(_ context.Context, rec ResultRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.results[rec.RepoKey]
	if !ok {
		existing = &ResultRecord{
			RepoKey:   rec.RepoKey,
			RepoURL:   rec.RepoURL,
			RepoOwner: rec.RepoOwner,
			RepoName:  rec.RepoName,
		}
		s.results[rec.RepoKey] = existing
	}
	existing.Status = StatusAnalyzing
	existing.ErrorKind = ""
	existing.AnalyzedBy = rec.AnalyzedBy
	existing.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkDone(_ context.Context, repoKey string, update DoneUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[repoKey]
	if !ok {
		return nil
	}
	rec.Status = StatusDone
	rec.Result = update.Result
	rec.CommitSha = update.CommitSha
	rec.FilesCount = update.FilesCount
	rec.TotalLines = update.TotalLines
	rec.TokenCount = update.TokenCount
	rec.ErrorKind = ""
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) MarkError(_ context.Context, repoKey, errorKind string, observedLines int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.results[repoKey]
	if !ok {
		return nil
	}
	rec.Status = StatusError
	rec.ErrorKind = errorKind
	if observedLines > 0 {
		rec.TotalLines = observedLines
	}
	rec.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) IncrementUsage(_ context.Context, key string, kind UsageKind, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[usageKey{key, kind, date}]++
	return nil
}

func (s *MemoryStore) GetUsage(_ context.Context, key string, kind UsageKind, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[usageKey{key, kind, date}], nil
}

func (s *MemoryStore) ResetUsage(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := int64(len(s.usage))
	s.usage = make(map[usageKey]int)
	return n, nil
}

func (s *MemoryStore) PruneErrors(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, rec := range s.results {
		if rec.Status == StatusError {
			delete(s.results, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() {}

// SetUpdatedAt rewinds a record's clock; tests use it to simulate
// abandoned analyzing attempts.
func (s *MemoryStore) SetUpdatedAt(repoKey string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.results[repoKey]; ok {
		rec.UpdatedAt = at
	}
}
