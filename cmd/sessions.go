package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/sheetwise/sheetwise/internal/config"
	"github.com/sheetwise/sheetwise/internal/session"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage chat sessions",
	Long: `List, filter, delete, and export chat sessions.

Examples:
  sheetwise sessions                        # list sessions
  sheetwise sessions --filter budget        # fuzzy-filter by name
  sheetwise sessions delete <id>
  sheetwise sessions export <id> out.md`,
	RunE: runSessionsList,
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsDelete,
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id> [path]",
	Short: "Export a session transcript (markdown, json, or yaml by extension)",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSessionsExport,
}

var sessionsFilter string

func init() {
	sessionsCmd.Flags().StringVar(&sessionsFilter, "filter", "", "Fuzzy-filter sessions by name")
	sessionsCmd.AddCommand(sessionsDeleteCmd)
	sessionsCmd.AddCommand(sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func withStore(fn func(store session.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	return withStore(func(store session.Store) error {
		sessions, err := store.ListSessions(cmd.Context(), workspaceFlag)
		if err != nil {
			return err
		}
		sessions = filterSessions(sessions, sessionsFilter)
		if len(sessions) == 0 {
			fmt.Println("no sessions")
			return nil
		}
		for _, sess := range sessions {
			fmt.Printf("%s  %-40s  %s  %d turns\n",
				sess.ID, sess.Name, sess.UpdatedAt.Format("2006-01-02 15:04"), sess.Stats.CompletedTurns)
		}
		return nil
	})
}

// filterSessions narrows the list with a fuzzy match on names, keeping match
// order (best first).
func filterSessions(sessions []session.Session, query string) []session.Session {
	if query == "" {
		return sessions
	}
	names := make([]string, len(sessions))
	for i, sess := range sessions {
		names[i] = sess.Name
	}
	matches := fuzzy.Find(query, names)
	out := make([]session.Session, 0, len(matches))
	for _, m := range matches {
		out = append(out, sessions[m.Index])
	}
	return out
}

func runSessionsDelete(cmd *cobra.Command, args []string) error {
	return withStore(func(store session.Store) error {
		if _, err := store.GetSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		if err := store.DeleteSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Println("deleted", args[0])
		return nil
	})
}

func runSessionsExport(cmd *cobra.Command, args []string) error {
	return withStore(func(store session.Store) error {
		sess, err := store.GetSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		snap, err := store.LoadSnapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		path := sess.ID + ".md"
		if len(args) > 1 {
			path = args[1]
		}

		var data []byte
		switch {
		case strings.HasSuffix(path, ".json"):
			data, err = session.ExportJSON(sess, snap)
		case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
			data, err = session.ExportYAML(sess, snap)
		default:
			data = session.ExportMarkdown(sess, snap)
		}
		if err != nil {
			return fmt.Errorf("render export: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Println("exported to", path)
		return nil
	})
}
