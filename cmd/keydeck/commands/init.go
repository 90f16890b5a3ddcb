package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/config"
)

func newInitCmd() *cobra.Command {
	var backendURL string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Example: `  keydeck init
  keydeck init --backend http://10.0.0.5:5000 --config /etc/keydeck.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(cfgFile); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgFile)
			}
			cfg := config.Defaults()
			if backendURL != "" {
				cfg.Backend.URL = backendURL
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := cfg.Save(cfgFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", cfgFile)
			fmt.Fprintf(cmd.OutOrStdout(), "  Backend: %s\n", cfg.Backend.URL)
			fmt.Fprintf(cmd.OutOrStdout(), "  Set %s for the CLI commands.\n", config.PasswordEnv)
			return nil
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend", "", "backend URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
