package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/suppress"
	"github.com/sells-group/leadgen-cli/pkg/sendgrid"
)

var suppressionCmd = &cobra.Command{
	Use:   "suppression",
	Short: "Manage the do-not-contact list",
}

var suppressionSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror SendGrid bounces, unsubscribes, and group suppressions locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		sg := sendgrid.NewClient(cfg.SendGrid.Key, sendgrid.WithBaseURL(cfg.SendGrid.BaseURL))
		result, err := suppress.NewSyncer(sg, st).Sync(ctx)
		if err != nil {
			return eris.Wrap(err, "suppression sync")
		}
		return printJSON(result)
	},
}

var eligibilityCmd = &cobra.Command{
	Use:   "check-eligibility <email>",
	Short: "Check whether an address may be contacted right now",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		result, err := e.Controller.CheckEligibility(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "check eligibility")
		}
		return printJSON(result)
	},
}

func init() {
	suppressionCmd.AddCommand(suppressionSyncCmd)
	rootCmd.AddCommand(suppressionCmd, eligibilityCmd)
}
