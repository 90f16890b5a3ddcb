package commands

import (
	"github.com/spf13/cobra"

	"github.com/keydeck/keydeck/internal/tui"
)

func newChatCmd() *cobra.Command {
	var model string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Test chat completions through the backend in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close(cmd.Context())
			return tui.Run(cmd.Context(), s.ctl, model)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model to preselect")
	return cmd
}
