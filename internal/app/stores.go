package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"verepo/internal/cache"
	"verepo/internal/config"
	"verepo/internal/store"
	"verepo/internal/transcript"
)

func initStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if dsn := strings.TrimSpace(cfg.DatabaseURL); dsn != "" {
		if err := store.Migrate(dsn); err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		pg, err := store.NewPostgresStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open result store: %w", err)
		}
		log.Printf("result store: postgres")
		return cache.NewCachedStore(pg, cache.DefaultConfig()), nil
	}
	log.Printf("result store: in-memory (results are lost on restart)")
	return store.NewMemoryStore(), nil
}

func initTranscripts(cfg *config.Config) transcript.Store {
	if !cfg.Transcript.Enabled {
		return nil
	}
	s3Store, err := transcript.NewS3Store(transcript.S3Config{
		Endpoint:  cfg.Transcript.Endpoint,
		Region:    cfg.Transcript.Region,
		AccessKey: cfg.Transcript.AccessKey,
		SecretKey: cfg.Transcript.SecretKey,
		Bucket:    cfg.Transcript.Bucket,
		UseSSL:    cfg.Transcript.UseSSL,
	})
	if err != nil {
		log.Printf("transcript store disabled: %v", err)
		return nil
	}
	log.Printf("transcript store: s3 bucket=%s endpoint=%s", cfg.Transcript.Bucket, cfg.Transcript.Endpoint)
	return s3Store
}
