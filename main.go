package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"qbeAdmin/internal/logging"
	"qbeAdmin/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "qbeadmin",
		Short:        "Admin service for saved QBE queries",
		SilenceUsage: true,
	}

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newUserCmd())
	cmd.AddCommand(newGroupCmd())
	cmd.AddCommand(newGrantCmd())

	return cmd
}

// setup loads the configuration, installs the logger and opens the migrated
// database. Callers close the database.
func setup() (*Config, *sql.DB, error) {
	config, err := LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}

	logging.Initialize(config.LogLevel, config.Environment)

	db, err := store.Open(config.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := store.RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return config, db, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			if err := config.Validate(); err != nil {
				return err
			}

			app, err := NewApp(config, db)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app.UserCache.Cache().StartSweeper(time.Minute, ctx.Done())
			for _, limiter := range app.Limiters {
				limiter.StartCleanupRoutine(5*time.Minute, ctx.Done())
			}

			return app.ListenAndServe(ctx)
		},
	}
}

// ListenAndServe serves until ctx is done, then drains in-flight requests.
func (app *App) ListenAndServe(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + app.Config.Port,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().
			Str("port", app.Config.Port).
			Str("environment", app.Config.Environment).
			Str("session_store", app.Config.SessionStore).
			Msg("Server starting")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logging.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, db, err := setup()
			if err != nil {
				return err
			}
			defer db.Close()

			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}
