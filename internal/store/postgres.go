package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over a pgx connection pool. Every mutation
// is a single atomic statement; the unique key on repo_key and the compound
// key on (key, type, date) carry the multi-writer guarantees.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) GetResult(ctx context.Context, repoKey string) (*ResultRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT repo_key, repo_url, repo_owner, repo_name, status,
		       COALESCE(result, 'null'::jsonb), COALESCE(commit_sha, ''),
		       files_count, total_lines, token_count,
		       COALESCE(error, ''), analyzed_by, updated_at
		FROM verepo_results WHERE repo_key = $1`, repoKey)

	var rec ResultRecord
	var status string
	err := row.Scan(&rec.RepoKey, &rec.RepoURL, &rec.RepoOwner, &rec.RepoName, &status,
		&rec.Result, &rec.CommitSha,
		&rec.FilesCount, &rec.TotalLines, &rec.TokenCount,
		&rec.ErrorKind, &rec.AnalyzedBy, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Status = Status(status)
	if string(rec.Result) == "null" {
		rec.Result = nil
	}
	return &rec, nil
}

func (s *PostgresStore) UpsertAnalyzing(ctx context.Context, rec ResultRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verepo_results (repo_key, repo_url, repo_owner, repo_name, status, analyzed_by, updated_at)
		VALUES ($1, $2, $3, $4, 'analyzing', $5, now())
		ON CONFLICT (repo_key) DO UPDATE
		SET status = 'analyzing', error = NULL, analyzed_by = EXCLUDED.analyzed_by, updated_at = now()`,
		rec.RepoKey, rec.RepoURL, rec.RepoOwner, rec.RepoName, rec.AnalyzedBy)
	return err
}

func (s *PostgresStore) MarkDone(ctx context.Context, repoKey string, update DoneUpdate) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verepo_results
		SET status = 'done', result = $2, commit_sha = $3,
		    files_count = $4, total_lines = $5, token_count = $6,
		    error = NULL, updated_at = now()
		WHERE repo_key = $1`,
		repoKey, update.Result, nullable(update.CommitSha),
		update.FilesCount, update.TotalLines, update.TokenCount)
	return err
}

func (s *PostgresStore) MarkError(ctx context.Context, repoKey, errorKind string, observedLines int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE verepo_results
		SET status = 'error', error = $2,
		    total_lines = CASE WHEN $3 > 0 THEN $3 ELSE total_lines END,
		    updated_at = now()
		WHERE repo_key = $1`,
		repoKey, errorKind, observedLines)
	return err
}

func (s *PostgresStore) IncrementUsage(ctx context.Context, key string, kind UsageKind, date string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO verepo_usage (key, type, date, count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (key, type, date) DO UPDATE
		SET count = verepo_usage.count + 1`,
		key, string(kind), date)
	return err
}

func (s *PostgresStore) GetUsage(ctx context.Context, key string, kind UsageKind, date string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count FROM verepo_usage WHERE key = $1 AND type = $2 AND date = $3`,
		key, string(kind), date).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (s *PostgresStore) ResetUsage(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verepo_usage`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) PruneErrors(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM verepo_results WHERE status = 'error'`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
