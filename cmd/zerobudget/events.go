package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zerobudget/internal/cli"
	"zerobudget/internal/storage"
	"zerobudget/internal/worker"
)

func eventsCmd() *cobra.Command {
	var (
		owner string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List the audit trail recorded by ledger-worker",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := cli.LoadAndValidateConfig(cfgFile)
			if err != nil {
				return err
			}
			if owner == "" {
				owner = cfg.DefaultOwner
			}
			logger := cli.SetupLogger(cfg)

			res, err := cli.InitBackend(cmd.Context(), logger, cfg)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			events, err := worker.NewAuditWorker(res.Backend, logger).RecentEvents(cmd.Context(), owner, limit)
			if err != nil {
				return err
			}
			return printEvents(cmd.OutOrStdout(), events)
		},
	}
	cmd.Flags().StringVar(&owner, "owner", "", "ledger owner (DEFAULT_OWNER when empty)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum number of events, newest first")
	return cmd
}

func printEvents(out io.Writer, events []storage.EventRecord) error {
	if len(events) == 0 {
		_, err := fmt.Fprintln(out, "no events recorded")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OCCURRED\tTYPE\tENTITY\tAMOUNT\tID")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime), e.Type, e.EntityID, e.Amount, e.ID)
	}
	return w.Flush()
}
