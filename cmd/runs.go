package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadgen-cli/internal/model"
	"github.com/sells-group/leadgen-cli/internal/store"
)

var (
	runsStatus string
	runsUser   string
	runsJSON   bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List discovery runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		runs, err := st.ListRuns(ctx, store.RunFilter{
			Status: model.RunStatus(runsStatus),
			UserID: runsUser,
		})
		if err != nil {
			return eris.Wrap(err, "list runs")
		}

		if runsJSON {
			return printJSON(runs)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tPAUSED\tTARGET\tPROGRESS\tA\tB\tC\tD\tF\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%v\t%d\t%d%%\t%d\t%d\t%d\t%d\t%d\t%s\n",
				r.ID, r.Status, r.IsPaused, r.TargetCount, r.Progress,
				r.GradeACount, r.GradeBCount, r.GradeCCount, r.GradeDCount, r.GradeFCount,
				r.CreatedAt.Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

func init() {
	runsCmd.Flags().StringVar(&runsStatus, "status", "", "filter by run status")
	runsCmd.Flags().StringVar(&runsUser, "user", "", "filter by user ID")
	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "output JSON instead of a table")
	rootCmd.AddCommand(runsCmd)
}
