package model

import "fmt"

// Chain is a supported chain identifier. Each chain hosts its own escrow
// registry and supplies its own timestamp oracle and event log.
type Chain string

const (
	Ethereum         Chain = "ethereum"
	EthereumSepolia  Chain = "ethereum_sepolia"
	EthereumLocalnet Chain = "ethereum_localnet"
	Sui              Chain = "sui"
	SuiTestnet       Chain = "sui_testnet"
	SuiLocalnet      Chain = "sui_localnet"
)

func (c Chain) IsEVM() bool {
	return c == Ethereum || c == EthereumSepolia || c == EthereumLocalnet
}

func (c Chain) IsSui() bool {
	return c == Sui || c == SuiTestnet || c == SuiLocalnet
}

func (c Chain) IsValid() bool {
	return c.IsEVM() || c.IsSui()
}

// ParseChain returns the Chain for the given name or an error if the chain
// is not supported.
func ParseChain(name string) (Chain, error) {
	chain := Chain(name)
	if !chain.IsValid() {
		return "", fmt.Errorf("unsupported chain %q", name)
	}
	return chain, nil
}
