package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/TheZeroSlave/zapsentry"
	"github.com/fatih/color"
	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/catalogfi/hermes/pkg/hermes"
	"github.com/catalogfi/hermes/utils"
)

var BinaryVersion = "undefined"

func main() {
	if err := run(BinaryVersion); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(version string) error {
	var configPath string
	var cmd = &cobra.Command{
		Use:   "hermesd",
		Short: "Cross-chain atomic swap relayer",
		Run: func(c *cobra.Command, args []string) {
			c.HelpFunc()(c, args)
		},
		Version:           version,
		DisableAutoGenTag: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", utils.DefaultConfigPath(), "path to the config file")

	start := &cobra.Command{
		Use:   "start",
		Short: "Start the relayer daemon",
		RunE: func(c *cobra.Command, args []string) error {
			config, err := utils.LoadConfig(configPath)
			if err != nil {
				return err
			}

			logger, err := zap.NewProduction()
			if err != nil {
				return err
			}
			if config.Sentry != "" {
				client, err := sentry.NewClient(sentry.ClientOptions{Dsn: config.Sentry})
				if err != nil {
					return err
				}
				core, err := zapsentry.NewCore(zapsentry.Configuration{
					Level: zapcore.ErrorLevel,
				}, zapsentry.NewSentryClientFromClient(client))
				if err != nil {
					return err
				}
				logger = zapsentry.AttachCoreToLogger(core, logger)
				defer logger.Sync()
			}

			daemon, err := hermes.New(config, logger)
			if err != nil {
				return err
			}
			if err := daemon.Start(); err != nil {
				return err
			}
			defer daemon.Stop()
			color.Green("hermesd started, serving on %v", config.Addr)

			sigs := make(chan os.Signal, 1)
			signal.Notify(sigs, syscall.SIGQUIT, syscall.SIGINT, syscall.SIGTERM)
			<-sigs
			color.Yellow("shutting down")
			return nil
		},
	}
	cmd.AddCommand(start)

	return cmd.Execute()
}
