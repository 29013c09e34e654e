/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vitrine-app/apiserver/config"
	"github.com/vitrine-app/apiserver/internal/logging"
	"github.com/vitrine-app/apiserver/internal/mq"
	"github.com/vitrine-app/apiserver/types"
	"go.uber.org/zap"
)

// eventsCmd groups account event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect account events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log account events as they are published",
	Long: `Subscribes to the configured MQ channel and logs each account event.
Requires MQ_BACKEND to be rabbitmq or pubsub.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		logger, err := logging.New(cfg.LogDev)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backend, err := mq.New(ctx, cfg.MQ)
		if err != nil {
			return fmt.Errorf("open mq: %w", err)
		}
		defer backend.Close()

		events := mq.NewAccountEvents(backend, cfg.MQ.Channel)
		logger.Info("tailing account events", zap.String("channel", events.Channel()))

		err = events.Consume(ctx, func(_ context.Context, event types.AccountEvent) error {
			logger.Info("account event",
				zap.String("type", event.Type),
				zap.String("user_id", event.UserID),
				zap.String("username", event.Username),
				zap.Int64("occurred_at", event.OccurredAt),
			)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
