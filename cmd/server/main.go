// NeuroOS - agentic assistant server
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/loayabdalslam/NeuroOS-sub000/internal/config"
)

var (
	portFlag      string
	dbFlag        string
	workspaceFlag string
)

var rootCmd = &cobra.Command{
	Use:           "neuro",
	Short:         "NeuroOS agent server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "", "workspace directory (overrides WORKSPACE_DIR)")
	serveCmd.Flags().StringVar(&portFlag, "port", "", "listen port (overrides PORT)")
	chatCmd.Flags().StringVar(&sessionFlag, "session", "", "session id (defaults to the current session)")

	rootCmd.AddCommand(serveCmd, chatCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads .env and the environment, then applies flag overrides.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if portFlag != "" {
		cfg.Port = portFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	if workspaceFlag != "" {
		cfg.WorkspaceDir = workspaceFlag
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
