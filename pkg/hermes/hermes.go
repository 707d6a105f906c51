// Package hermes assembles the relayer daemon: storage, action dedup,
// alerting, chain bridges, the swap coordinator and the HTTP ingress.
package hermes

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	glogger "gorm.io/gorm/logger"

	"github.com/catalogfi/hermes/pkg/alert"
	"github.com/catalogfi/hermes/pkg/bridge"
	"github.com/catalogfi/hermes/pkg/bridge/sim"
	"github.com/catalogfi/hermes/pkg/coordinator"
	"github.com/catalogfi/hermes/pkg/escrow"
	"github.com/catalogfi/hermes/pkg/htlc"
	"github.com/catalogfi/hermes/pkg/model"
	"github.com/catalogfi/hermes/pkg/orderbook"
	"github.com/catalogfi/hermes/pkg/store"
	"github.com/catalogfi/hermes/rest"
	"github.com/catalogfi/hermes/utils"
)

type Hermes struct {
	logger *zap.Logger
	coord  *coordinator.Coordinator
	server *rest.Server
	addr   string

	cancel context.CancelFunc
}

func New(config utils.Config, logger *zap.Logger) (*Hermes, error) {
	db, err := openDB(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	storage, err := store.NewStore(db)
	if err != nil {
		return nil, fmt.Errorf("failed to init store: %w", err)
	}

	actions := coordinator.NewInMemStore()
	if config.RedisURL != "" {
		actions, err = coordinator.NewRedisStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	notifier := alert.NewLogNotifier(logger)
	if config.DiscordToken != "" {
		notifier, err = alert.NewDiscordNotifier(config.DiscordToken, config.DiscordChannel)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to discord: %w", err)
		}
	}

	bridges, relayers, fees, err := buildChains(config, logger)
	if err != nil {
		return nil, err
	}

	safetyDeposit := big.NewInt(0)
	if config.SafetyDeposit != "" {
		deposit, ok := new(big.Int).SetString(config.SafetyDeposit, 10)
		if !ok {
			return nil, fmt.Errorf("invalid safety deposit: %v", config.SafetyDeposit)
		}
		safetyDeposit = deposit
	}

	delays := buildDelays(config.Delays)
	if err := delays.Validate(); err != nil {
		return nil, fmt.Errorf("invalid timelock schedule: %w", err)
	}

	book := orderbook.New(logger)
	coord := coordinator.New(coordinator.Config{
		ClaimPolicy:   coordinator.Policy(config.ClaimPolicy),
		SwapTimeout:   config.SwapTimeout,
		StallTimeout:  config.StallTimeout,
		SweepInterval: config.SweepInterval,
		RelayerAddr:   relayers,
		SafetyDeposit: safetyDeposit,
		DstDelays:     delays,
		Fees:          fees,
	}, book, bridges, storage, actions, notifier, logger)

	addr := config.Addr
	if addr == "" {
		addr = ":8080"
	}

	return &Hermes{
		logger: logger,
		coord:  coord,
		server: rest.NewServer(coord, config.JWTSecret, logger),
		addr:   addr,
	}, nil
}

func (h *Hermes) Start() error {
	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())

	if err := h.coord.Start(); err != nil {
		return err
	}
	go func() {
		if err := h.server.Run(ctx, h.addr); err != nil {
			h.logger.Error("ingress stopped", zap.Error(err))
		}
	}()
	return nil
}

func (h *Hermes) Stop() {
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	h.coord.Stop()
}

func openDB(config utils.Config) (*gorm.DB, error) {
	gormConfig := &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  glogger.Default.LogMode(glogger.Silent),
	}
	if strings.HasPrefix(config.DB, "postgres") {
		return gorm.Open(postgres.Open(config.DB), gormConfig)
	}
	path := config.DB
	if path == "" {
		path = utils.DefaultStorePath()
	}
	return gorm.Open(sqlite.Open(path), gormConfig)
}

// buildChains instantiates one bridge per configured chain. Localnet
// chains run on the in-memory simulator, the relayer address doubles as
// the escrow admin there.
func buildChains(config utils.Config, logger *zap.Logger) (map[model.Chain]bridge.Bridge, map[model.Chain]string, map[model.Chain]escrow.Fees, error) {
	bridges := map[model.Chain]bridge.Bridge{}
	relayers := map[model.Chain]string{}
	fees := map[model.Chain]escrow.Fees{}

	for name, chainConfig := range config.Chains {
		chain, err := model.ParseChain(name)
		if err != nil {
			return nil, nil, nil, err
		}
		if chainConfig.RelayerAddr == "" {
			return nil, nil, nil, fmt.Errorf("missing relayer address for chain %v", chain)
		}

		switch chain {
		case model.EthereumLocalnet, model.SuiLocalnet:
			bridges[chain] = sim.NewChain(chain, chainConfig.RelayerAddr, time.Now(), logger)
		default:
			return nil, nil, nil, fmt.Errorf("no chain adapter for %v", chain)
		}
		relayers[chain] = chainConfig.RelayerAddr

		chainFees := escrow.Fees{
			ProtocolRecipient:   chainConfig.ProtocolRecipient,
			IntegratorRecipient: chainConfig.IntegratorRecipient,
		}
		if chainConfig.ProtocolFee != "" {
			amount, ok := new(big.Int).SetString(chainConfig.ProtocolFee, 10)
			if !ok {
				return nil, nil, nil, fmt.Errorf("invalid protocol fee for chain %v", chain)
			}
			chainFees.ProtocolAmount = amount
		}
		if chainConfig.IntegratorFee != "" {
			amount, ok := new(big.Int).SetString(chainConfig.IntegratorFee, 10)
			if !ok {
				return nil, nil, nil, fmt.Errorf("invalid integrator fee for chain %v", chain)
			}
			chainFees.IntegratorAmount = amount
		}
		fees[chain] = chainFees
	}
	return bridges, relayers, fees, nil
}

func buildDelays(config utils.DelayConfig) htlc.Delays {
	delays := htlc.Delays{
		Withdrawal:         config.Withdrawal,
		PublicWithdrawal:   config.PublicWithdrawal,
		Cancellation:       config.Cancellation,
		PublicCancelBuffer: config.PublicCancelBuffer,
		Rescue:             config.Rescue,
	}
	if delays.Withdrawal == 0 {
		delays.Withdrawal = 10 * time.Minute
	}
	if delays.PublicWithdrawal == 0 {
		delays.PublicWithdrawal = 20 * time.Minute
	}
	if delays.Cancellation == 0 {
		delays.Cancellation = time.Hour
	}
	if delays.PublicCancelBuffer == 0 {
		delays.PublicCancelBuffer = 10 * time.Minute
	}
	if delays.Rescue == 0 {
		delays.Rescue = 3 * time.Hour
	}
	return delays
}
