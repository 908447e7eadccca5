// File: cmd/automate.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/browser"
	"github.com/voyantlabs/pagepilot/internal/llmclient"
	"github.com/voyantlabs/pagepilot/internal/observability"
	"github.com/voyantlabs/pagepilot/internal/store"
)

// newAutomateCmd creates the `automate` command: run the agent loop against a
// natural-language goal, optionally grounded on a recorded session.
func newAutomateCmd() *cobra.Command {
	var (
		recordingID string
		startURL    string
	)

	automateCmd := &cobra.Command{
		Use:   "automate <goal>",
		Short: "Let the agent drive the browser toward a natural-language goal",
		Long: `Runs the iterative agent loop: the model observes the page, picks a
browser tool, the tool executes, and the observation is fed back until the
model declares the task complete or a safety budget stops the run. A recorded
session can be supplied as a worked example of the workflow.`,
		Args: cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("agent.max_iterations", cmd.Flags().Lookup("max-iterations")); err != nil {
				return err
			}
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			goal := args[0]

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			llm, err := llmclient.New(cfg.LLM, logger)
			if err != nil {
				return fmt.Errorf("failed to create LLM client: %w", err)
			}

			var sessions schemas.SessionStore
			if recordingID != "" {
				sessions, err = store.Open(ctx, cfg.Store, logger)
				if err != nil {
					return fmt.Errorf("failed to open session store: %w", err)
				}
				defer sessions.Close()
			}

			page, err := browser.NewSession(ctx, cfg.Browser, logger)
			if err != nil {
				return fmt.Errorf("failed to start browser: %w", err)
			}
			defer page.Close()

			registry := agent.NewToolRegistry(logger)
			agent.RegisterBrowserTools(registry, page, page, logger)

			orchestrator := agent.NewOrchestrator(
				logger, cfg.Agent, cfg.LLM, llm, page, page, sessions, registry)

			// Ctrl-C cancels the run cooperatively; partial progress is reported.
			go func() {
				<-ctx.Done()
				orchestrator.Cancel()
			}()

			result, err := orchestrator.Run(ctx, &schemas.AutomationRequest{
				Goal:        goal,
				RecordingID: recordingID,
				StartURL:    startURL,
			})
			if err != nil {
				return err
			}

			logger.Info("Run finished",
				zap.Bool("success", result.Success),
				zap.Int("iterations", result.Iterations),
				zap.Int64("input_tokens", result.Usage.InputTokens),
				zap.Int64("output_tokens", result.Usage.OutputTokens),
				zap.Float64("estimated_cost_usd", result.EstimatedCost))

			if result.Success {
				fmt.Printf("Success: %s\n", result.Summary)
				fmt.Printf("Iterations: %d, estimated cost: $%.4f\n", result.Iterations, result.EstimatedCost)
				return nil
			}
			return fmt.Errorf("automation failed: %s", result.Error)
		},
	}

	automateCmd.Flags().StringVarP(&recordingID, "recording", "r", "", "ID of a recorded session to use as a worked example")
	automateCmd.Flags().StringVarP(&startURL, "url", "u", "", "URL to open before the run starts")
	automateCmd.Flags().Int("max-iterations", 0, "Override the iteration budget")
	automateCmd.Flags().Bool("headless", true, "Run the browser headless")
	return automateCmd
}
