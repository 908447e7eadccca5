// File: cmd/replay.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/browser"
	"github.com/voyantlabs/pagepilot/internal/llmclient"
	"github.com/voyantlabs/pagepilot/internal/observability"
	"github.com/voyantlabs/pagepilot/internal/store"
)

// newReplayCmd creates the `replay` command: re-execute a recorded session
// step by step, with retries but no model in the loop.
func newReplayCmd() *cobra.Command {
	replayCmd := &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay a recorded session deterministically",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			sessionID := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			sessions, err := store.Open(ctx, cfg.Store, logger)
			if err != nil {
				return fmt.Errorf("failed to open session store: %w", err)
			}
			defer sessions.Close()

			recording, err := sessions.GetSession(ctx, sessionID)
			if err != nil {
				return err
			}

			page, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer page.Close()

			registry := agent.NewToolRegistry(logger)
			agent.RegisterBrowserTools(registry, page, page, logger)

			plan := agent.PlanFromRecording(recording)
			logger.Info("Replaying session",
				zap.String("session_id", sessionID),
				zap.String("name", recording.Name),
				zap.Int("steps", len(plan.Steps)))

			var replanner agent.Replanner
			if replan, _ := cmd.Flags().GetBool("replan"); replan {
				llm, err := llmclient.New(cfg.LLM, logger)
				if err != nil {
					return fmt.Errorf("failed to create model client for replanning: %w", err)
				}
				replanner = agent.NewLLMReplanner(logger, cfg.LLM, llm, page, registry)
			}

			executor := agent.NewExecutor(logger, cfg.Executor, registry, replanner)
			result, err := executor.Execute(ctx, plan)
			if err != nil {
				return err
			}

			if result.Success {
				fmt.Printf("Replay complete: %s\n", result.Summary)
				return nil
			}
			return fmt.Errorf("replay failed: %s", result.Error)
		},
	}

	replayCmd.Flags().Bool("headless", true, "Run the browser headless")
	replayCmd.Flags().Bool("replan", false, "Ask the model to repair the plan when a step exhausts its retries")
	return replayCmd
}
