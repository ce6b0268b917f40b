package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zerobudget/internal/amqp"
	"zerobudget/internal/cli"
	"zerobudget/internal/log"
	"zerobudget/internal/worker"
)

func main() {
	var configFile string
	cmd := &cobra.Command{
		Use:          "ledger-worker",
		Short:        "Consume ledger events into the audit trail",
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return run(configFile)
		},
	}
	cmd.Flags().StringVar(&configFile, "config", "", "config file (env vars override its values)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	cfg, err := cli.LoadAndValidateConfig(configFile)
	if err != nil {
		return err
	}
	if !cfg.AMQPEnabled() {
		return errors.New("ledger-worker requires AMQP_URL")
	}
	logger := cli.SetupLogger(cfg)
	logger.Info("Starting ledger-worker")
	if cfg.DataBackend == "memory" {
		logger.Warn("Audit trail is kept in memory and is lost on exit")
	}

	ctx, cancel := cli.GracefulShutdown(context.Background(), logger)
	defer cancel()

	res, err := cli.InitBackend(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer res.Cleanup()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return fmt.Errorf("initialize AMQP client: %w", err)
	}
	defer amqpClient.Close()

	auditWorker := worker.NewAuditWorker(res.Backend, logger)
	if err := auditWorker.Run(ctx, amqpClient); err != nil {
		logger.Error("Message consumption failed", log.FieldError, err)
		return err
	}
	logger.Info("ledger-worker stopped")
	return nil
}
