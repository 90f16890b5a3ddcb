package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/config"
	"github.com/keydeck/keydeck/internal/console"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend health and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			client, err := backend.NewClient(cfg.Backend.URL, backend.WithTimeout(5*time.Second))
			if err != nil {
				return err
			}

			// Health needs no login; the controller only reads it.
			ctl := console.NewController(console.Options{Backend: client, Logger: newLogger("error", cmd.ErrOrStderr())})
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			st := ctl.CheckServiceStatus(ctx)

			printStatus(cmd.OutOrStdout(), cfg, st)

			if cfg.Audit.Enabled {
				store, err := audit.NewStore(cfg.Audit.Driver, cfg.Audit.DSN, newLogger("error", cmd.ErrOrStderr()))
				if err == nil {
					defer func() { _ = store.Close() }()
					if stats, err := store.Stats(); err == nil {
						printActionTotals(cmd.OutOrStdout(), stats)
					}
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

var badgeColors = map[string]*color.Color{
	"success": color.New(color.FgGreen, color.Bold),
	"warning": color.New(color.FgYellow, color.Bold),
	"danger":  color.New(color.FgRed, color.Bold),
}

func printStatus(w io.Writer, cfg *config.Config, st console.StatusView) {
	badge := st.Text
	if c, ok := badgeColors[st.Color]; ok {
		badge = c.Sprint(st.Text)
	}
	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "  keydeck status")
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Backend:       %s\n", cfg.Backend.URL)
	fmt.Fprintf(w, "  Service:       %s\n", badge)
	fmt.Fprintf(w, "  Console:       http://%s:%d/\n", bind, cfg.Server.Port)
	fmt.Fprintf(w, "  Sessions:      %s (%dh)\n", cfg.Session.Store, cfg.Session.TTLHours)
	if cfg.Audit.Enabled {
		fmt.Fprintf(w, "  Action log:    %s\n", cfg.Audit.Driver)
	} else {
		fmt.Fprintf(w, "  Action log:    disabled\n")
	}
	fmt.Fprintf(w, "  Config:        %s\n", cfgFile)
}

func printActionTotals(w io.Writer, stats []audit.ActionStat) {
	var total, failed int
	for _, s := range stats {
		total += s.Total
		failed += s.Failed
	}
	fmt.Fprintln(w, "  ────────────────────────────────────────")
	fmt.Fprintf(w, "  Actions:       %d\n", total)
	if failed > 0 {
		fmt.Fprintf(w, "  Failed:        %s\n", color.New(color.FgRed).Sprint(failed))
	} else {
		fmt.Fprintf(w, "  Failed:        0\n")
	}
}
