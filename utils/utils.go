package utils

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"time"
)

var HomeDir string

func init() {
	var err error
	HomeDir, err = os.UserHomeDir()
	if err != nil {
		log.Fatal("failed to get $HOME value")
	}
}

func DefaultHermesDirectory() string {
	return filepath.Join(HomeDir, ".hermes")
}

func DefaultConfigPath() string {
	return filepath.Join(HomeDir, ".hermes", "config.json")
}

func DefaultStorePath() string {
	return filepath.Join(HomeDir, ".hermes", "data.db")
}

// ChainConfig is the per-chain relayer settings.
type ChainConfig struct {
	// RelayerAddr is the relayer's funded address on the chain.
	RelayerAddr string `json:"relayerAddr"`

	// ProtocolFee and IntegratorFee are flat fee amounts charged on
	// destination escrows, in the chain's base unit.
	ProtocolFee         string `json:"protocolFee,omitempty"`
	ProtocolRecipient   string `json:"protocolRecipient,omitempty"`
	IntegratorFee       string `json:"integratorFee,omitempty"`
	IntegratorRecipient string `json:"integratorRecipient,omitempty"`
}

// DelayConfig is the timelock schedule for relayer-created escrows, all
// offsets from escrow deployment.
type DelayConfig struct {
	Withdrawal         time.Duration `json:"withdrawal"`
	PublicWithdrawal   time.Duration `json:"publicWithdrawal"`
	Cancellation       time.Duration `json:"cancellation"`
	PublicCancelBuffer time.Duration `json:"publicCancelBuffer"`
	Rescue             time.Duration `json:"rescue"`
}

type Config struct {
	// Addr is the listen address of the HTTP ingress.
	Addr string `json:"addr"`

	// DB is a postgres DSN, or empty to use the default sqlite file.
	DB string `json:"db,omitempty"`

	// RedisURL enables the redis action store, in-memory dedup is used
	// when empty.
	RedisURL string `json:"redisUrl,omitempty"`

	// JWTSecret signs session tokens, generated on first run if empty.
	JWTSecret string `json:"jwtSecret,omitempty"`

	Sentry string `json:"sentry,omitempty"`

	DiscordToken   string `json:"discordToken,omitempty"`
	DiscordChannel string `json:"discordChannel,omitempty"`

	// Chains lists every chain the relayer operates on.
	Chains map[string]ChainConfig `json:"chains"`

	SafetyDeposit string `json:"safetyDeposit,omitempty"`

	ClaimPolicy string `json:"claimPolicy,omitempty"`

	SwapTimeout   time.Duration `json:"swapTimeout,omitempty"`
	StallTimeout  time.Duration `json:"stallTimeout,omitempty"`
	SweepInterval time.Duration `json:"sweepInterval,omitempty"`

	Delays DelayConfig `json:"delays"`
}

// LoadConfig reads the config file, generating and persisting a fresh
// JWT secret on first run.
func LoadConfig(path string) (Config, error) {
	config := Config{}
	configFile, err := os.ReadFile(path)
	if err == nil {
		if err := json.Unmarshal(configFile, &config); err != nil {
			return config, err
		}
	}

	if config.JWTSecret == "" {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return config, err
		}
		config.JWTSecret = hex.EncodeToString(secret)
		data, err := json.MarshalIndent(config, "", "  ")
		if err != nil {
			return config, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return config, err
		}
		// The file holds the signing secret, keep it owner-only.
		if err := os.WriteFile(path, data, 0600); err != nil {
			return config, err
		}
	}
	return config, nil
}
