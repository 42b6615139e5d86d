package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sheetwise/sheetwise/internal/config"
	"github.com/sheetwise/sheetwise/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "sheetwise",
	Short: "Conversational assistant for spreadsheet workspaces",
	Long: `sheetwise chats with a language-model agent that inspects and mutates
spreadsheet state through tools, with sessions persisted per workspace.

Examples:
  sheetwise chat                         # start or resume a conversation
  sheetwise sessions                     # list sessions
  sheetwise sessions export <id> out.md  # export a transcript
  sheetwise config                       # view configuration`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var (
	workspaceFlag string
	verboseFlag   bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceFlag, "workspace", "default", "Workspace identifier")
	rootCmd.PersistentFlags().BoolVar(&verboseFlag, "verbose", false, "Enable debug logging")
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verboseFlag {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore builds the session store from configuration. A nil store means
// persistence is disabled.
func openStore(cfg config.Config) (session.Store, error) {
	if !cfg.Storage.Enabled {
		return session.NewMemoryStore(), nil
	}
	store, err := session.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return store, nil
}
