package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leadgen-cli/internal/model"
)

var (
	runCreateUser    string
	runCreateQueries []string
	runCreateTarget  int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Manage discovery runs",
}

var runCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a run and kick off lead discovery",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		queries, err := parseQueries(runCreateQueries)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		run, err := e.Controller.CreateRun(ctx, runCreateUser, queries, runCreateTarget)
		if err != nil {
			return eris.Wrap(err, "create run")
		}

		zap.L().Info("run created",
			zap.String("run_id", run.ID),
			zap.Int("target", run.TargetCount),
			zap.Int("queries", len(run.Queries)))
		return printJSON(run)
	},
}

// parseQueries splits each "business type|location" flag value.
func parseQueries(raw []string) ([]model.SearchQuery, error) {
	queries := make([]model.SearchQuery, 0, len(raw))
	for _, q := range raw {
		parts := strings.SplitN(q, "|", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
			return nil, eris.Errorf("invalid query %q, want \"business type|location\"", q)
		}
		queries = append(queries, model.SearchQuery{
			BusinessType: strings.TrimSpace(parts[0]),
			Location:     strings.TrimSpace(parts[1]),
		})
	}
	return queries, nil
}

// runAction builds a subcommand that takes a run ID and calls one
// controller operation.
func runAction(use, short string, fn func(cmd *cobra.Command, e *env, runID string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := initEnv(cmd.Context())
			if err != nil {
				return err
			}
			defer e.Close()
			return fn(cmd, e, args[0])
		},
	}
}

var runStatusCmd = runAction("status", "Show a run with its grade counts and progress",
	func(cmd *cobra.Command, e *env, runID string) error {
		run, err := e.Store.GetRun(cmd.Context(), runID)
		if err != nil {
			return eris.Wrap(err, "get run")
		}
		return printJSON(run)
	})

var runStartCmd = runAction("start-research", "Start researching a ready run",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.StartResearch(cmd.Context(), runID)
	})

var runPauseCmd = runAction("pause", "Pause research fan-out for a run",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.Pause(cmd.Context(), runID)
	})

var runResumeCmd = runAction("resume", "Resume a paused run, re-queueing pending leads",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.Resume(cmd.Context(), runID)
	})

var runRestartPrescreenCmd = runAction("restart-prescreen", "Re-trigger prescreen for leads still unclassified",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.RestartPrescreen(cmd.Context(), runID)
	})

var runForceRestartCmd = runAction("force-restart", "Reset leads stuck in scraping/analyzing and re-queue them",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.ForceRestart(cmd.Context(), runID)
	})

var runMarkCompleteCmd = runAction("mark-complete", "Force a run to completed regardless of lead states",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.MarkComplete(cmd.Context(), runID)
	})

var runClearResearchCmd = runAction("clear-research", "Wipe research results and return the run to ready",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.ClearResearch(cmd.Context(), runID)
	})

var runResetPrescreenCmd = runAction("reset-prescreen", "Wipe prescreen results and reclassify from scratch",
	func(cmd *cobra.Command, e *env, runID string) error {
		return e.Controller.ResetPrescreen(cmd.Context(), runID)
	})

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	runCreateCmd.Flags().StringVar(&runCreateUser, "user", "", "requesting user ID (required)")
	runCreateCmd.Flags().StringArrayVar(&runCreateQueries, "query", nil, `search query as "business type|location" (repeatable, required)`)
	runCreateCmd.Flags().IntVar(&runCreateTarget, "target", 0, "target lead count (required)")
	_ = runCreateCmd.MarkFlagRequired("user")
	_ = runCreateCmd.MarkFlagRequired("query")
	_ = runCreateCmd.MarkFlagRequired("target")

	runCmd.AddCommand(runCreateCmd, runStatusCmd, runStartCmd, runPauseCmd, runResumeCmd,
		runRestartPrescreenCmd, runForceRestartCmd, runMarkCompleteCmd,
		runClearResearchCmd, runResetPrescreenCmd)
	rootCmd.AddCommand(runCmd)
}
