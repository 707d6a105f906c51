package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/catalogfi/hermes/restclient"
)

func Status(client restclient.Client) *cobra.Command {
	var orderHash string

	var cmd = &cobra.Command{
		Use:   "status",
		Short: "Show the swap status of an order",
		Run: func(c *cobra.Command, args []string) {
			status, err := client.Order(orderHash)
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to fetch status: %w", err))
			}

			switch status.Phase {
			case "completed":
				color.Green("phase: %v", status.Phase)
			case "cancelled":
				color.Red("phase: %v", status.Phase)
			default:
				color.Yellow("phase: %v", status.Phase)
			}
			fmt.Printf("order:       %v\n", status.OrderHash)
			fmt.Printf("counter:     %v\n", status.CounterOrderHash)
			fmt.Printf("secret hash: %v\n", status.SecretHash)
			fmt.Printf("source:      %v  deployed=%v withdrawn=%v cancelled=%v\n",
				status.SrcChain, status.SrcDeployed, status.SrcWithdrawn, status.SrcCancelled)
			fmt.Printf("destination: %v  deployed=%v withdrawn=%v cancelled=%v\n",
				status.DstChain, status.DstDeployed, status.DstWithdrawn, status.DstCancelled)
		},
	}

	cmd.Flags().StringVar(&orderHash, "order", "", "order hash to look up")
	cmd.MarkFlagRequired("order")
	return cmd
}
