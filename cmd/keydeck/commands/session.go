package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keydeck/keydeck/internal/audit"
	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/config"
	"github.com/keydeck/keydeck/internal/console"
)

// cliToken is the console session token the CLI holds.
const cliToken = "cli"

// loadConfig reads cfgFile. A missing file means defaults.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = config.Defaults()
	}
	return cfg, nil
}

func newLogger(level string, w io.Writer) *slog.Logger {
	lvl := slog.LevelInfo
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// readPassword returns the backend password from the environment or config,
// prompting on the terminal when neither is set.
func readPassword(cfg *config.Config, in *os.File, out io.Writer) (string, error) {
	if pw := cfg.BackendPassword(); pw != "" {
		return pw, nil
	}
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no backend password: set %s or backend.password", config.PasswordEnv)
	}
	fmt.Fprint(out, "Backend password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

// backendSession is a logged-in backend session driven through the console
// controller, so the CLI validates and reports exactly like the web console.
type backendSession struct {
	cfg     *config.Config
	client  *backend.Client
	ctl     *console.Controller
	actions *audit.Store
	logger  *slog.Logger
}

func openSession(ctx context.Context, cmd *cobra.Command) (*backendSession, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger("error", cmd.ErrOrStderr())

	client, err := backend.NewClient(cfg.Backend.URL, backend.WithTimeout(cfg.BackendTimeout()))
	if err != nil {
		return nil, err
	}
	pw, err := readPassword(cfg, os.Stdin, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if err := client.Login(ctx, pw); err != nil {
		if errors.Is(err, backend.ErrInvalidPassword) {
			return nil, errors.New("invalid backend password")
		}
		return nil, fmt.Errorf("logging in to %s: %w", cfg.Backend.URL, err)
	}

	s := &backendSession{cfg: cfg, client: client, logger: logger}
	opts := console.Options{
		Session: cliToken,
		Backend: client,
		Logger:  logger,
		Settings: func() console.Settings {
			return console.Settings{
				ToastMillis:  cfg.UI.ToastMillis,
				HistoryLimit: cfg.UI.HistoryLimit,
				ChartWidth:   cfg.UI.ChartWidth,
				ChartHeight:  cfg.UI.ChartHeight,
			}
		},
	}
	if cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit.Driver, cfg.Audit.DSN, logger)
		if err != nil {
			logger.Warn("action log unavailable", "error", err)
		} else {
			s.actions = store
			opts.Actions = store
			store.Record(cliToken, "login", cfg.Backend.URL, audit.OutcomeOK, "", time.Since(start))
		}
	}
	s.ctl = console.NewController(opts)
	return s, nil
}

// Close logs out of the backend and flushes the action log.
func (s *backendSession) Close(ctx context.Context) {
	s.ctl.Logout(ctx)
	if s.actions != nil {
		s.actions.Flush()
		_ = s.actions.Close()
	}
}

// report prints an action's toast. Warnings and failures become the
// command's error.
func report(w io.Writer, fb console.Feedback) error {
	if fb.Toast == nil {
		return nil
	}
	msg := fb.Toast.Message
	switch fb.Toast.Level {
	case console.LevelSuccess:
		_, _ = color.New(color.FgGreen).Fprintln(w, msg)
	case console.LevelInfo:
		_, _ = color.New(color.FgCyan).Fprintln(w, msg)
	default:
		return errors.New(msg)
	}
	return nil
}

// expired rewrites ErrUnauthorized for the terminal.
func expired(err error) error {
	if errors.Is(err, backend.ErrUnauthorized) {
		return errors.New("backend session expired or was rejected; log in again")
	}
	return err
}
