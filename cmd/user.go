package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kanban-api/domain"
	"kanban-api/storage"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage known users",
}

var userAddFlags struct {
	role     string
	inactive bool
	banned   bool
}

var userAddCmd = &cobra.Command{
	Use:   "add <id>",
	Short: "Create or update a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := strings.TrimSpace(args[0])
		if id == "" {
			return fmt.Errorf("user id must not be empty")
		}
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

		u := domain.User{
			ID:       id,
			Role:     userAddFlags.role,
			IsActive: !userAddFlags.inactive,
			IsBanned: userAddFlags.banned,
		}
		if err := store.UpsertUser(ctx, u); err != nil {
			return fmt.Errorf("upsert user: %w", err)
		}
		logger.WithField("user", id).Debug("user stored")
		fmt.Fprintf(cmd.OutOrStdout(), "user %s saved\n", id)
		return nil
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userAddFlags.role, "role", "member", "user role")
	userAddCmd.Flags().BoolVar(&userAddFlags.inactive, "inactive", false, "mark the user inactive")
	userAddCmd.Flags().BoolVar(&userAddFlags.banned, "banned", false, "mark the user banned")
	userCmd.AddCommand(userAddCmd)
}
