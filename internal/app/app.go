package app

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"verepo/internal/analysis"
	"verepo/internal/config"
	"verepo/internal/fetch"
	"verepo/internal/github"
	"verepo/internal/handler"
	"verepo/internal/llm"
	"verepo/internal/middleware"
	"verepo/internal/quota"
	"verepo/internal/server"
	"verepo/internal/verepo"
	"verepo/internal/wallet"
)

type App struct {
	server *server.Server

	llmClient llm.Client
	closers   []func()
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Dependencies
	resultStore, err := initStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ledger := quota.NewLedger(resultStore, cfg.Quota.IPLimit, cfg.Quota.WalletLimit)

	hub := github.New(cfg.GitHub.Token, cfg.GitHub.UserAgent)
	fetcher := fetch.New(hub, fetch.Limits{
		MaxArchiveBytes: cfg.Fetch.MaxArchiveBytes,
		MaxFileBytes:    cfg.Fetch.MaxFileBytes,
		MaxTotalLines:   cfg.Fetch.MaxTotalLines,
		MaxTokens:       cfg.Fetch.MaxTokens,
		MaxLineChars:    cfg.Fetch.MaxLineChars,
	})

	llmClient, err := initLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	coord := verepo.NewCoordinator(resultStore, ledger, fetcher, analysis.New(llmClient), hub, verepo.Options{
		AffiliatedOwners: cfg.AffiliatedOwners,
		StaleAnalyzing:   cfg.StaleAnalyzing,
		Transcripts:      initTranscripts(cfg),
	})

	// Routing & Server
	h := handler.New(coord, ledger, wallet.Verifier{}, cfg.Quota.IPLimit, cfg.AnalyzeTimeout)
	mux := handler.BuildMux(h)
	var root http.Handler = middleware.CORS(mux)
	srv := server.New(cfg.Port, root)

	return &App{
		server:    srv,
		llmClient: llmClient,
		closers:   []func(){resultStore.Close},
	}, nil
}

func initLLM(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	if cfg.LLM.APIKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	client, err := llm.NewGeminiClient(ctx, cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.MaxOutputTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize llm client: %w", err)
	}
	log.Printf("llm client: %s model=%s", client.Name(), cfg.LLM.Model)
	return client, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	if a.llmClient != nil {
		_ = a.llmClient.Close()
	}
	for _, close := range a.closers {
		close()
	}
	return err
}
