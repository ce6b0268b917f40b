package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"zerobudget/internal/client"
	"zerobudget/internal/core"
)

func summaryCmd() *cobra.Command {
	var (
		server  string
		owner   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print an owner's budget summary from a running server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			remote, err := client.New(server, owner)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			return runSummary(ctx, cmd.OutOrStdout(), client.NewCached(remote))
		},
	}
	cmd.Flags().StringVar(&server, "server", "http://localhost:8081", "base URL of the zerobudget server")
	cmd.Flags().StringVar(&owner, "owner", "", "ledger owner (server default when empty)")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	return cmd
}

// runSummary prints the account list followed by the budget summary.
func runSummary(ctx context.Context, out io.Writer, api client.API) error {
	accounts, err := api.ListAccounts(ctx)
	if err != nil {
		return fmt.Errorf("fetch accounts: %w", err)
	}
	s, err := api.Summary(ctx)
	if err != nil {
		return fmt.Errorf("fetch summary: %w", err)
	}
	if err := printAccounts(out, accounts); err != nil {
		return err
	}
	return printSummary(out, s)
}

func printAccounts(out io.Writer, accounts []core.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACCOUNT\tBALANCE")
	for _, a := range accounts {
		fmt.Fprintf(w, "%s\t%s\n", a.Name, a.Balance)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(out)
	return err
}

func printSummary(out io.Writer, s core.Summary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "Balance\t%s\t\n", s.TotalBalance)
	fmt.Fprintf(w, "Allocated\t%s\t\n", s.TotalAllocated)
	fmt.Fprintf(w, "Spent\t%s\t\n", s.TotalSpent)
	fmt.Fprintf(w, "Available to budget\t%s\t\n", s.AvailableToBudget)
	if err := w.Flush(); err != nil {
		return err
	}
	if len(s.Categories) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tALLOCATED\tSPENT\tAVAILABLE\tUSED\tHEALTH")
	for _, c := range s.Categories {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f%%\t%s\n",
			c.CategoryName, c.Allocated, c.Spent, c.Available, c.SpentPercentage, c.Health)
	}
	return w.Flush()
}
