package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"example.com/hybridtracker/internal/config"
	"example.com/hybridtracker/internal/events"
)

var watchGroup string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow sync events published by every device",
	Long: `Follow the sync event topic on KAFKA_BROKERS and print one line per
push, failed push, pull or merge until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		if len(cfg.KafkaBrokers) == 0 {
			return errors.New("KAFKA_BROKERS is not set")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		reader := events.NewKafkaReader(cfg.KafkaBrokers, cfg.SyncEventsTopic, watchGroup)
		watcher := events.NewWatcher(reader, func(_ context.Context, e events.SyncEvent) error {
			fmt.Fprintln(cmd.OutOrStdout(), formatEvent(e))
			return nil
		})
		defer watcher.Close()

		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchGroup, "group", "synccli-watch", "Kafka consumer group")
	rootCmd.AddCommand(watchCmd)
}

func formatEvent(e events.SyncEvent) string {
	line := fmt.Sprintf("%s  %-16s %s  records=%d", e.OccurredAt.Local().Format(time.DateTime), e.Type, e.DeviceID, e.Records)
	if e.Type == events.TypeMerged {
		line += fmt.Sprintf(" local_wins=%d remote_wins=%d", e.LocalWins, e.RemoteWins)
	}
	if e.Error != "" {
		line += "  error=" + e.Error
	}
	return line
}
