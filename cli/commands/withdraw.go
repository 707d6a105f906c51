package commands

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/catalogfi/hermes/restclient"
)

func Withdraw(client restclient.Client) *cobra.Command {
	var orderHash string

	var cmd = &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw an order from the book",
		Run: func(c *cobra.Command, args []string) {
			key, err := loadKey()
			if err != nil {
				cobra.CheckErr(err)
			}
			if err := client.Login(key); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to sign in: %w", err))
			}

			if err := client.WithdrawOrder(orderHash); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to withdraw order: %w", err))
			}
			color.Green("withdrew order %v", orderHash)
		},
	}

	cmd.Flags().StringVar(&orderHash, "order", "", "order hash to withdraw")
	cmd.MarkFlagRequired("order")
	return cmd
}
