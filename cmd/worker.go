/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/learnhub/apiserver/config"
	"github.com/learnhub/apiserver/internal/logger"
	"github.com/learnhub/apiserver/internal/mailer"
	"github.com/learnhub/apiserver/internal/mq"
	"github.com/learnhub/apiserver/internal/worker"
	"github.com/spf13/cobra"
)

// workerCmd represents the worker command
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consumes domain events and sends welcome email",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		log := newLogger(cfg)
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		broker, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer func() {
			if err := broker.Close(); err != nil {
				log.Warn("close message queue", "error", err)
			}
		}()

		return worker.New(broker, cfg.MQ.EventsChannel, newWelcomeSender(cfg, log), log).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

// newWelcomeSender returns nil when SendGrid is not configured.
func newWelcomeSender(cfg config.Config, log *logger.Logger) worker.WelcomeSender {
	m, err := mailer.New(cfg.SendGrid)
	if err != nil {
		log.Warn("welcome email disabled", "reason", err)
		return nil
	}
	return m
}
