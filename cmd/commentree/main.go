package main

import (
	"fmt"
	"os"

	"github.com/VitaminP8/commentree/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	storageType string
	logLevel    string
	userID      uint

	cfg    *config.App
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "commentree",
	Short: "Nested comment sections with lazy loading",
	Long: `commentree keeps the comment tree of a post in memory, loads root pages
and replies on demand, and applies replies and votes to exactly the
affected comment.

Backends (STORAGE or --storage):
  memory   - in-process store, posts from SEED_POSTS
  postgres - SQL store (DB_* variables)
  rest     - remote comment API at API_BASE_URL`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()

		loaded, err := config.Load()
		if err != nil {
			return err
		}
		if storageType != "" {
			loaded.Storage = storageType
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
		}
		cfg = loaded
		logger = config.NewZap(cfg.LogLevel)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storageType, "storage", "", "Backend: memory, postgres or rest (default from STORAGE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (default from LOG_LEVEL)")
	rootCmd.PersistentFlags().UintVar(&userID, "user", 1, "Acting user id for the memory and postgres backends (0 = anonymous)")

	rootCmd.AddCommand(serveCmd, treeCmd, replyCmd, voteCmd, unvoteCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
