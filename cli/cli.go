// Package cli is the operator command line for a running relayer.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/catalogfi/hermes/cli/commands"
	"github.com/catalogfi/hermes/restclient"
)

func Run(version string) error {
	var serverURL string
	var cmd = &cobra.Command{
		Use:   "hermes",
		Short: "Client for the hermes swap relayer",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		Version:           version,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVar(&serverURL, "url", "http://localhost:8080", "relayer URL")

	client := restclient.NewClient(serverURL)
	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		client.SetURL(serverURL)
	}
	cmd.AddCommand(commands.Publish(client))
	cmd.AddCommand(commands.Status(client))
	cmd.AddCommand(commands.Withdraw(client))

	return cmd.Execute()
}
