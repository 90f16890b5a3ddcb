package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "keydeck",
		Short:         "Admin console for an OpenAI-compatible key-rotation proxy",
		Long:          "keydeck manages the API keys and models of a key-rotation proxy, shows its usage and lets you test chat completions through it. Web console and CLI in one binary.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "keydeck.yaml", "config file path")

	root.AddCommand(
		newInitCmd(),
		newServeCmd(),
		newStatusCmd(),
		newKeysCmd(),
		newModelsCmd(),
		newChatCmd(),
		newAuditCmd(),
		newVersionCmd(),
	)

	return root
}
