package commands

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/catalogfi/hermes/rest"
	"github.com/catalogfi/hermes/restclient"
)

func Publish(client restclient.Client) *cobra.Command {
	var (
		maker     string
		receiver  string
		srcChain  string
		dstChain  string
		srcToken  string
		dstToken  string
		srcAmount string
		dstAmount string
	)

	var cmd = &cobra.Command{
		Use:   "publish",
		Short: "Publish a new swap order",
		Run: func(c *cobra.Command, args []string) {
			key, err := loadKey()
			if err != nil {
				cobra.CheckErr(err)
			}
			if err := client.Login(key); err != nil {
				cobra.CheckErr(fmt.Errorf("failed to sign in: %w", err))
			}
			if maker == "" {
				maker = crypto.PubkeyToAddress(key.PublicKey).Hex()
			}

			orderHash, err := client.PublishOrder(rest.CreateOrder{
				Maker:     maker,
				Receiver:  receiver,
				SrcChain:  srcChain,
				DstChain:  dstChain,
				SrcToken:  srcToken,
				DstToken:  dstToken,
				SrcAmount: srcAmount,
				DstAmount: dstAmount,
			})
			if err != nil {
				cobra.CheckErr(fmt.Errorf("failed to publish order: %w", err))
			}

			color.Green("published order %v", orderHash)
		},
	}

	cmd.Flags().StringVar(&maker, "maker", "", "maker address on the source chain (default: the signing wallet)")
	cmd.Flags().StringVar(&receiver, "receiver", "", "receive address on the destination chain")
	cmd.MarkFlagRequired("receiver")
	cmd.Flags().StringVar(&srcChain, "src-chain", "", "source chain")
	cmd.MarkFlagRequired("src-chain")
	cmd.Flags().StringVar(&dstChain, "dst-chain", "", "destination chain")
	cmd.MarkFlagRequired("dst-chain")
	cmd.Flags().StringVar(&srcToken, "src-token", "", "token offered on the source chain")
	cmd.MarkFlagRequired("src-token")
	cmd.Flags().StringVar(&dstToken, "dst-token", "", "token wanted on the destination chain")
	cmd.MarkFlagRequired("dst-token")
	cmd.Flags().StringVar(&srcAmount, "src-amount", "", "amount offered, in base units")
	cmd.MarkFlagRequired("src-amount")
	cmd.Flags().StringVar(&dstAmount, "dst-amount", "", "amount wanted, in base units")
	cmd.MarkFlagRequired("dst-amount")
	return cmd
}

func loadKey() (*ecdsa.PrivateKey, error) {
	keyHex := os.Getenv("PRIVATE_KEY")
	if keyHex == "" {
		return nil, fmt.Errorf("PRIVATE_KEY is not set")
	}
	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return crypto.ToECDSA(keyBytes)
}
