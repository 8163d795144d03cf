package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/forgo/hiretrack/api/internal/model"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "history <applicationId>",
		Short: "Print the stage history of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.openStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			applicationID := args[0]
			app, err := store.Applications.GetByID(cmd.Context(), applicationID)
			if err != nil {
				return errors.Wrapf(err, "application %s", applicationID)
			}
			entries, err := store.History.ListByApplication(cmd.Context(), app.ID)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd, entries)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Application %s is in stage %s\n", app.ID, app.Stage)
			fmt.Fprintln(out, renderTable(
				[]string{"#", "From", "To", "Changed By", "Changed On"},
				historyRows(entries),
				[]columnAlignment{alignRight},
			))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func historyRows(entries []*model.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		from := "-"
		if e.OldStage != nil {
			from = string(*e.OldStage)
		}
		rows = append(rows, []string{
			strconv.Itoa(e.Seq),
			from,
			string(e.NewStage),
			e.ChangedByID,
			e.ChangedOn.Format(time.RFC3339),
		})
	}
	return rows
}
