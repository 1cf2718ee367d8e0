package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"kanban-api/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create tables and queues for the configured backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		store, err := storage.Open(ctx, storageOptions(cfg))
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer store.Close()

		if err := store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate storage: %w", err)
		}
		logger.WithField("backend", cfg.Storage.Backend).Info("storage ready")

		if cfg.Queue.Reminders != "" {
			q, err := storage.NewReminderQueue(cfg.Queue.ConnectionString, cfg.Queue.Reminders)
			if err != nil {
				return fmt.Errorf("reminder queue: %w", err)
			}
			if err := q.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate queue: %w", err)
			}
			logger.WithField("queue", cfg.Queue.Reminders).Info("queue ready")
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}
