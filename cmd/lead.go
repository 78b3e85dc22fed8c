package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/dispatch"
	"github.com/sells-group/leadgen-cli/internal/model"
)

var leadCmd = &cobra.Command{
	Use:   "lead",
	Short: "Operate on individual leads",
}

var leadShowCmd = &cobra.Command{
	Use:   "show <lead-id>",
	Short: "Show a lead with its research results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		lead, err := st.GetLead(cmd.Context(), args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}
		return printJSON(lead)
	},
}

var leadResearchCmd = &cobra.Command{
	Use:   "research <lead-id>",
	Short: "Trigger research for one pending lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		lead, err := e.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}

		evt := dispatch.NewEvent(dispatch.EventResearchTriggered, lead.RunID)
		evt.LeadID = lead.ID
		return e.Dispatcher.Send(ctx, evt)
	},
}

var leadDeepResearchCmd = &cobra.Command{
	Use:   "deep-research <lead-id>",
	Short: "Trigger deep research for one completed lead",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		lead, err := e.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}

		evt := dispatch.NewEvent(dispatch.EventDeepResearch, lead.RunID)
		evt.LeadID = lead.ID
		return e.Dispatcher.Send(ctx, evt)
	},
}

var deepMultiGrade string

var leadDeepMultiCmd = &cobra.Command{
	Use:   "deep-research-all <run-id>",
	Short: "Trigger deep research for every completed lead of a grade",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		evt := dispatch.NewEvent(dispatch.EventDeepResearchMultiple, args[0])
		evt.Payload = map[string]any{"filterGrade": deepMultiGrade}
		return e.Dispatcher.Send(ctx, evt)
	},
}

var leadOverrideGradeCmd = &cobra.Command{
	Use:   "override-grade <lead-id> <grade>",
	Short: "Manually override a lead's compatibility grade",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Controller.OverrideGrade(ctx, args[0], model.Grade(args[1]))
	},
}

var leadEmailsCmd = &cobra.Command{
	Use:   "emails <lead-id>",
	Short: "Enrich and list contact emails for a lead",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		lead, err := e.Store.GetLead(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get lead")
		}
		if err := e.Controller.EnrichLeadEmails(ctx, lead); err != nil {
			return eris.Wrap(err, "enrich emails")
		}

		records, err := e.Store.ListEmailRecords(ctx, lead.ID)
		if err != nil {
			return eris.Wrap(err, "list emails")
		}
		return printJSON(records)
	},
}

func init() {
	leadEmailsCmd.Args = cobra.ExactArgs(1)
	leadDeepMultiCmd.Flags().StringVar(&deepMultiGrade, "grade", "A", "grade filter (A-F)")

	leadCmd.AddCommand(leadShowCmd, leadResearchCmd, leadDeepResearchCmd,
		leadDeepMultiCmd, leadOverrideGradeCmd, leadEmailsCmd)
	rootCmd.AddCommand(leadCmd)
}
