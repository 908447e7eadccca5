// File: cmd/sessions.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/observability"
	"github.com/voyantlabs/pagepilot/internal/store"
)

// newSessionsCmd creates the `sessions` command group for managing stored
// recordings.
func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List, inspect and delete stored recording sessions",
	}
	sessionsCmd.AddCommand(newSessionsListCmd())
	sessionsCmd.AddCommand(newSessionsShowCmd())
	sessionsCmd.AddCommand(newSessionsDeleteCmd())
	return sessionsCmd
}

func newSessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sessions, err := store.Open(ctx, cfg.Store, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer sessions.Close()

			summaries, err := sessions.ListSessions(ctx)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No sessions recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tURL\tACTIONS\tDURATION\tCREATED")
			for _, s := range summaries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.Name, s.URL, s.ActionCount,
					(time.Duration(s.Duration) * time.Millisecond).Round(time.Second),
					s.CreatedAt.Local().Format("2006-01-02 15:04"))
			}
			return w.Flush()
		},
	}
}

func newSessionsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a stored session as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sessions, err := store.Open(ctx, cfg.Store, observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer sessions.Close()

			session, err := sessions.GetSession(ctx, args[0])
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(session, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to encode session: %w", err)
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

// removeSessionArtifacts deletes the video file and snapshot directory
// referenced by a session. Failures are logged, not fatal: the database row
// is already gone and a retry cannot restore it.
func removeSessionArtifacts(session *schemas.RecordingSession, logger *zap.Logger) {
	if session.VideoPath != "" {
		if err := os.Remove(session.VideoPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("Failed to remove session video",
				zap.String("path", session.VideoPath), zap.Error(err))
		}
	}
	if session.SnapshotDir != "" {
		if err := os.RemoveAll(session.SnapshotDir); err != nil {
			logger.Warn("Failed to remove session snapshots",
				zap.String("path", session.SnapshotDir), zap.Error(err))
		}
	}
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			logger := observability.GetLogger()
			sessions, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer sessions.Close()

			// Deleting a session cascades to its on-disk artifacts, so the
			// paths must be read before the row disappears.
			session, err := sessions.GetSession(ctx, args[0])
			if err != nil {
				return err
			}

			if err := sessions.DeleteSession(ctx, args[0]); err != nil {
				return err
			}
			removeSessionArtifacts(session, logger)
			fmt.Printf("Deleted session %s\n", args[0])
			return nil
		},
	}
}
