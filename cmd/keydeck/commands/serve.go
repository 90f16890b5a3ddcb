package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/config"
	"github.com/keydeck/keydeck/internal/console"
	"github.com/keydeck/keydeck/internal/metrics"
	"github.com/keydeck/keydeck/internal/session"
	"github.com/keydeck/keydeck/internal/telemetry"
)

func newServeCmd() *cobra.Command {
	var port int
	var bind, backendURL string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keydeck web console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			if port != 0 {
				cfg.Server.Port = port
			}
			if bind != "" {
				cfg.Server.Bind = bind
			}
			if backendURL != "" {
				cfg.Backend.URL = backendURL
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := newLogger(cfg.Server.LogLevel, os.Stderr)

			// Graceful shutdown on SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.Tracing, os.Stderr)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = shutdownTracing(sctx)
			}()

			deps := console.Deps{}
			if cfg.Telemetry.Metrics {
				deps.Metrics = metrics.New()
			}

			sessions, err := openSessionStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer sessions.Close() //nolint:errcheck // best-effort cleanup
			deps.Sessions = sessions

			if cfg.Audit.Enabled {
				store, err := audit.NewStore(cfg.Audit.Driver, cfg.Audit.DSN, logger)
				if err != nil {
					return fmt.Errorf("opening action log: %w", err)
				}
				defer store.Close() //nolint:errcheck // best-effort cleanup
				deps.Actions = store
				if cfg.Audit.RetentionDays > 0 {
					go purgeLoop(ctx, store, cfg.Audit.RetentionDays, logger)
				}
			}

			srv := console.NewServer(cfg, deps, logger)

			if _, err := os.Stat(cfgFile); err == nil {
				w, err := config.Watch(cfgFile, func(c *config.Config) {
					srv.SetUI(c.UI)
					logger.Info("ui settings reloaded", "config", cfgFile)
				}, logger)
				if err != nil {
					logger.Warn("config watch unavailable", "error", err)
				} else {
					defer w.Close() //nolint:errcheck // best-effort cleanup
				}
			} else if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("config stat failed", "error", err)
			}

			printBanner(cfg)

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			}
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override server port")
	cmd.Flags().StringVar(&bind, "bind", "", "address to bind (default: 127.0.0.1)")
	cmd.Flags().StringVar(&backendURL, "backend", "", "override backend URL")
	return cmd
}

func openSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Session.Store {
	case "redis":
		return session.NewRedisStore(ctx, cfg.Session.RedisAddr, cfg.SessionTTL())
	default:
		return session.NewMemoryStore(cfg.SessionTTL()), nil
	}
}

// purgeLoop trims the action log once at startup and then daily.
func purgeLoop(ctx context.Context, store *audit.Store, days int, logger *slog.Logger) {
	retention := time.Duration(days) * 24 * time.Hour
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if n, err := store.Purge(retention); err != nil {
			logger.Warn("action log purge failed", "error", err)
		} else if n > 0 {
			logger.Info("action log purged", "entries", n, "retention_days", days)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func printBanner(cfg *config.Config) {
	bindAddr := cfg.Server.Bind
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}

	fmt.Println()
	fmt.Println("  keydeck console")
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Console:  http://%s:%d/\n", bindAddr, cfg.Server.Port)
	fmt.Printf("  Health:   http://%s:%d/health\n", bindAddr, cfg.Server.Port)
	if cfg.Telemetry.Metrics {
		fmt.Printf("  Metrics:  http://%s:%d/metrics\n", bindAddr, cfg.Server.Port)
	}
	fmt.Println("  ────────────────────────────────────────")
	fmt.Printf("  Backend:  %s\n", cfg.Backend.URL)
	fmt.Printf("  Sessions: %s\n", cfg.Session.Store)
	fmt.Println()
	fmt.Println("  Log in with the backend's admin password.")
	fmt.Println("  Press Ctrl+C to stop.")
	fmt.Println()
}
