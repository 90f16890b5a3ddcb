package commands

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/audit"
)

func newAuditCmd() *cobra.Command {
	var action, outcome, since string
	var limit int
	var stats bool
	var purgeDays int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Query the console action log",
		Example: `  keydeck audit
  keydeck audit --action key.delete
  keydeck audit --outcome failed --since 24h
  keydeck audit --stats
  keydeck audit --purge 30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Audit.Enabled {
				return fmt.Errorf("the action log is disabled (audit.enabled in %s)", cfgFile)
			}
			logger := newLogger("error", cmd.ErrOrStderr())
			store, err := audit.NewStore(cfg.Audit.Driver, cfg.Audit.DSN, logger)
			if err != nil {
				return fmt.Errorf("opening action log: %w", err)
			}
			defer store.Close() //nolint:errcheck // best-effort cleanup

			out := cmd.OutOrStdout()
			switch {
			case purgeDays > 0:
				n, err := store.Purge(time.Duration(purgeDays) * 24 * time.Hour)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Purged %d entries older than %d days.\n", n, purgeDays)
				return nil
			case stats:
				st, err := store.Stats()
				if err != nil {
					return err
				}
				return printStats(out, st)
			}

			var sinceTime string
			if since != "" {
				dur, err := time.ParseDuration(since)
				if err != nil {
					return fmt.Errorf("invalid duration %q: %w", since, err)
				}
				sinceTime = time.Now().Add(-dur).UTC().Format(time.RFC3339)
			}
			entries, err := store.Query(audit.QueryOpts{
				Action:  action,
				Outcome: outcome,
				Since:   sinceTime,
				Limit:   limit,
			})
			if err != nil {
				return err
			}
			return printEntries(out, entries)
		},
	}

	cmd.Flags().StringVar(&action, "action", "", "filter by action (key.create, model.delete, chat.send, ...)")
	cmd.Flags().StringVar(&outcome, "outcome", "", "filter by outcome (ok, failed, unauthorized, rejected)")
	cmd.Flags().StringVar(&since, "since", "", "show entries since duration (e.g. 1h, 30m)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max entries to return")
	cmd.Flags().BoolVar(&stats, "stats", false, "show per-action totals")
	cmd.Flags().IntVar(&purgeDays, "purge", 0, "delete entries older than this many days")
	return cmd
}

func printEntries(w io.Writer, entries []audit.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No actions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "TIME\tSESSION\tACTION\tTARGET\tOUTCOME\tLATENCY\tMESSAGE\n") //nolint:errcheck // CLI output
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%dms\t%s\n", //nolint:errcheck // CLI output
			e.Timestamp, shortSession(e.Session), e.Action, dash(e.Target), e.Outcome, e.LatencyMs, e.Message)
	}
	return tw.Flush()
}

func printStats(w io.Writer, stats []audit.ActionStat) error {
	if len(stats) == 0 {
		fmt.Fprintln(w, "No actions recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ACTION\tTOTAL\tFAILED\tLAST\n") //nolint:errcheck // CLI output
	for _, s := range stats {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.Action, s.Total, s.Failed, s.LastAt) //nolint:errcheck // CLI output
	}
	return tw.Flush()
}

func shortSession(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return dash(s)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
