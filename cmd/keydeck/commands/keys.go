package commands

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/console"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage the backend's upstream API keys",
	}
	cmd.AddCommand(newKeysListCmd(), newKeysAddCmd(), newKeysDeleteCmd(), newKeysTestCmd())
	return cmd
}

func newKeysListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List keys with masked values",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			v, err := s.ctl.LoadKeys(cmd.Context())
			if err != nil {
				return expired(err)
			}
			if v.Err != "" {
				return fmt.Errorf("%s", v.Err)
			}
			return printKeys(cmd.OutOrStdout(), v)
		},
	}
}

var statusColors = map[string]*color.Color{
	"success":   color.New(color.FgGreen),
	"secondary": color.New(color.FgHiBlack),
	"danger":    color.New(color.FgRed),
}

func printKeys(w io.Writer, v *console.KeysView) error {
	if len(v.Rows) == 0 {
		fmt.Fprintln(w, "No keys yet.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tNAME\tKEY\tSTATUS\tUSAGE\tLAST USED\n") //nolint:errcheck // CLI output
	for _, r := range v.Rows {
		status := r.Status
		if c, ok := statusColors[r.StatusColor]; ok {
			status = c.Sprint(r.Status)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\n", //nolint:errcheck // CLI output
			r.ID, r.Name, r.Masked, status, r.UsageCount, r.LastUsed)
	}
	return tw.Flush()
}

func newKeysAddCmd() *cobra.Command {
	var name, value, status string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a key",
		Example: `  keydeck keys add --name primary --value sk-...
  keydeck keys add --name spare --value sk-... --status inactive`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			fb, err := s.ctl.SaveKey(cmd.Context(), console.KeyForm{Name: name, Value: value, Status: status})
			if err != nil {
				return expired(err)
			}
			return report(cmd.OutOrStdout(), fb)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "key name")
	cmd.Flags().StringVar(&value, "value", "", "key value")
	cmd.Flags().StringVar(&status, "status", "active", "key status (active, inactive, error)")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid key id %q", arg)
	}
	return id, nil
}

// confirm asks a yes/no question on in. Anything but y or yes is no.
func confirm(in io.Reader, out io.Writer, question string) bool {
	fmt.Fprintf(out, "%s [y/N] ", question)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func newKeysDeleteCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ok := yes || confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Delete key %d?", id))
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}

			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			fb, err := s.ctl.DeleteKey(cmd.Context(), id, true)
			if err != nil {
				return expired(err)
			}
			return report(cmd.OutOrStdout(), fb)
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newKeysTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Validate a key against upstream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())

			fb, err := s.ctl.TestKey(cmd.Context(), id)
			if err != nil {
				return expired(err)
			}
			return report(cmd.OutOrStdout(), fb)
		},
	}
}
