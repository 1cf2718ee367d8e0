package cmd

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanban-api/config"
	"kanban-api/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "kanban-api",
	Short: "Kanban board HTTP API",
	Long: `Serves boards, lists, tasks and subtasks over HTTP.

Configuration is read from an optional YAML file and from KANBAN_*
environment variables.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the configuration and applies its log settings to the
// standard logger, which the domain and storage packages log through. The
// same logger is returned for injection into the HTTP layer.
func loadConfig() (*config.Config, *log.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	logger := log.StandardLogger()
	cfg.ConfigureLogger(logger)
	return cfg, logger, nil
}

func storageOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		Backend:          cfg.Storage.Backend,
		DSN:              cfg.Storage.DSN,
		ConnectionString: cfg.Storage.ConnectionString,
		TablePrefix:      cfg.Storage.TablePrefix,
	}
}
