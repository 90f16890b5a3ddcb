package commands

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/console"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage the models the backend routes",
	}
	cmd.AddCommand(newModelsListCmd(), newModelsRefreshCmd())
	return cmd
}

func newModelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured models",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			v, err := s.ctl.LoadModels(cmd.Context())
			if err != nil {
				return expired(err)
			}
			if v.Err != "" {
				return fmt.Errorf("%s", v.Err)
			}
			return printModels(cmd.OutOrStdout(), v)
		},
	}
}

func printModels(w io.Writer, v *console.ModelsView) error {
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No models yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "NAME\tDESCRIPTION\tCREATED\tUPDATED\n") //nolint:errcheck // CLI output
	for _, r := range v.Rows {
		desc := r.Description
		if desc == "" {
			desc = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Name, desc, r.Created, r.Updated) //nolint:errcheck // CLI output
	}
	return tw.Flush()
}

func newModelsRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-fetch the model list from upstream",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			fb, err := s.ctl.RefreshModels(cmd.Context())
			if err != nil {
				return expired(err)
			}
			return report(cmd.OutOrStdout(), fb)
		},
	}
}
