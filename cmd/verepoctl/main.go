package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"verepo/internal/store"
)

var dsn string

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "verepoctl",
		Short:         "Administrative commands for the Verepo service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dsn, "database-url", "", "Postgres DSN (defaults to DATABASE_URL)")

	root.AddCommand(migrateCmd(), resetCmd())

	if err := root.Execute(); err != nil {
		log.Fatalf("verepoctl: %v", err)
	}
}

func resolveDSN() (string, error) {
	if v := strings.TrimSpace(dsn); v != "" {
		return v, nil
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("no database configured: set DATABASE_URL or pass --database-url")
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDSN()
			if err != nil {
				return err
			}
			if err := store.Migrate(url); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("migrations applied")
			return nil
		},
	}
}

func resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clear all usage counters and delete error result rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, err := resolveDSN()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pg, err := store.NewPostgresStore(ctx, url)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer pg.Close()

			usage, err := pg.ResetUsage(ctx)
			if err != nil {
				return fmt.Errorf("reset usage: %w", err)
			}
			errors, err := pg.PruneErrors(ctx)
			if err != nil {
				return fmt.Errorf("prune errors: %w", err)
			}
			fmt.Printf("cleared %d usage records, %d error results\n", usage, errors)
			return nil
		},
	}
}
