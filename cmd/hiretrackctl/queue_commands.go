package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgo/hiretrack/api/internal/notify"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the notification queue",
	}
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	return queueCmd
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth by state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q notify.Queue) error {
				stats, err := q.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, stats)
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"State", "Tasks"},
					[][]string{
						{"Ready", strconv.FormatInt(stats.Ready, 10)},
						{"Pending", strconv.FormatInt(stats.Pending, 10)},
						{"Delayed", strconv.FormatInt(stats.Delayed, 10)},
						{"Dead", strconv.FormatInt(stats.Dead, 10)},
					},
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func newDeadLetterCommand(ctx *commandContext) *cobra.Command {
	dlCmd := &cobra.Command{
		Use:     "deadletter",
		Aliases: []string{"dlq"},
		Short:   "Inspect and recover dead-lettered notifications",
	}
	dlCmd.AddCommand(newDeadLetterListCommand(ctx))
	dlCmd.AddCommand(newDeadLetterRequeueCommand(ctx))
	dlCmd.AddCommand(newDeadLetterPurgeCommand(ctx))
	return dlCmd
}

func newDeadLetterListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q notify.Queue) error {
				letters, err := q.ListDeadLetters(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, letters)
				}
				out := cmd.OutOrStdout()
				if len(letters) == 0 {
					fmt.Fprintln(out, "No dead letters")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Task", "Email", "Application", "Stage", "Attempts", "Reason", "Failed At"},
					deadLetterRows(letters),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of letters to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}

func deadLetterRows(letters []*notify.DeadLetter) [][]string {
	rows := make([][]string, 0, len(letters))
	for _, l := range letters {
		row := []string{"(malformed)", "", "", "", strconv.Itoa(l.Attempts), l.Reason, l.FailedAt.Format(time.RFC3339)}
		if l.Task != nil {
			row[0] = l.Task.ID
			row[1] = l.Task.Recipient
			row[2] = l.Task.ApplicationID
			row[3] = l.Task.Stage
		}
		rows = append(rows, row)
	}
	return rows
}

func newDeadLetterRequeueCommand(ctx *commandContext) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Push dead letters back onto the queue with a fresh attempt count",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q notify.Queue) error {
				n := count
				if n <= 0 {
					stats, err := q.Stats(cmd.Context())
					if err != nil {
						return err
					}
					n = int(stats.Dead)
				}
				n, err := q.RequeueDeadLetters(cmd.Context(), n)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d dead letter(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&count, "count", 0, "Number of letters to requeue (0 for all)")
	return cmd
}

func newDeadLetterPurgeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every dead letter",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(q notify.Queue) error {
				n, err := q.PurgeDeadLetters(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d dead letter(s)\n", n)
				return nil
			})
		},
	}
}
