// File: cmd/record.go
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/internal/browser"
	"github.com/voyantlabs/pagepilot/internal/observability"
	"github.com/voyantlabs/pagepilot/internal/recorder"
	"github.com/voyantlabs/pagepilot/internal/store"
)

// newRecordCmd creates the `record` command: open a page, capture the user's
// interactions until interrupted, then persist the verified session.
func newRecordCmd() *cobra.Command {
	var (
		name        string
		description string
	)

	recordCmd := &cobra.Command{
		Use:   "record <url>",
		Short: "Record a browser workflow into a reusable session",
		Long: `Opens the URL in an instrumented browser and records every meaningful
interaction (clicks, typing, form changes, navigation) together with its
observed side effects. Stop with Ctrl-C; the session is verified and saved.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			startURL := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sessions, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer sessions.Close()

			page, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer page.Close()

			rec := recorder.New(logger, cfg.Recorder)
			if err := page.AttachRecorder(ctx, rec, browser.DefaultScriptOptions()); err != nil {
				return err
			}

			// Log finalized actions live so the user sees what is captured.
			go func() {
				for action := range rec.Actions() {
					logger.Info("Action recorded",
						zap.String("type", string(action.Type)),
						zap.Int64("timestamp_ms", action.Timestamp),
						zap.String("summary", effectSummary(action)))
				}
			}()

			if err := page.Navigate(ctx, startURL, true); err != nil {
				return err
			}
			rec.Start(startURL, page.CurrentTab(ctx))

			logger.Info("Recording started. Interact with the page; press Ctrl-C to stop and save.",
				zap.String("url", startURL))

			<-ctx.Done()

			page.DetachRecorder()
			session := rec.Stop(name, description)
			if session == nil {
				return fmt.Errorf("recording produced no session")
			}

			// Saving must survive the cancelled signal context.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if err := sessions.SaveSession(saveCtx, session); err != nil {
				return fmt.Errorf("failed to save session: %w", err)
			}

			logger.Info("Recording saved",
				zap.String("session_id", session.ID),
				zap.String("name", session.Name),
				zap.Int("actions", session.ActionCount),
				zap.Int64("duration_ms", session.Duration))
			fmt.Printf("Saved session %s (%d actions)\n", session.ID, session.ActionCount)
			return nil
		},
	}

	recordCmd.Flags().StringVarP(&name, "name", "n", "Untitled recording", "Name for the saved session")
	recordCmd.Flags().StringVarP(&description, "description", "d", "", "Description for the saved session")
	recordCmd.Flags().Bool("headless", false, "Run the browser headless (recording usually wants a visible window)")
	return recordCmd
}
