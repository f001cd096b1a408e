package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expensetracker/internal/core"
	"expensetracker/internal/export"
)

func newApplyRecurringCmd(a *app) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "apply-recurring",
		Short: "Insert due recurring expenses for one owner, or all owners",
		RunE: func(cmd *cobra.Command, _ []string) error {
			today := a.today()
			if date != "" {
				d, err := core.ParseDate(date)
				if err != nil {
					return &core.ValidationError{Field: "date", Err: err}
				}
				today = d
			}

			var (
				n   int
				err error
			)
			if a.flagOwner != "" {
				n, err = a.svc.Recurrence.ApplyDue(cmd.Context(), a.flagOwner, today)
			} else {
				n, err = a.svc.Recurrence.ApplyAll(cmd.Context(), today)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d recurring expenses as of %s\n", n, today)
			return err
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "Catch up as of this date (YYYY-MM-DD, default today)")
	return cmd
}

func newReportCmd(a *app) *cobra.Command {
	var year, month int
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Month total and category breakdown",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			today := a.today()
			if year == 0 {
				year = today.Year()
			}
			if month == 0 {
				month = today.Month()
			}
			if month < 1 || month > 12 {
				return &core.ValidationError{Field: "month", Err: fmt.Errorf("month %d out of range", month)}
			}

			overview, err := a.svc.Analytics.MonthOverview(cmd.Context(), owner, year, month)
			if err != nil {
				return err
			}
			count, err := a.svc.Analytics.ExpenseCountForMonth(cmd.Context(), owner, year, month)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %04d-%02d\n", owner, year, month)
			fmt.Fprintf(out, "Total: %s (%d expenses)\n\n", overview.Total, count)
			tw := newTable(out)
			fmt.Fprintln(tw, "CATEGORY\tAMOUNT")
			for _, c := range overview.ByCategory {
				fmt.Fprintf(tw, "%s\t%s\n", c.Name, c.Amount)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "Year (default current)")
	cmd.Flags().IntVar(&month, "month", 0, "Month 1-12 (default current)")
	return cmd
}

func newPredictCmd(a *app) *cobra.Command {
	var months int
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Per-category spend predictions from past full months",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			if months == 0 {
				months = a.cfg.PredictionLookbackMonths
			}
			if months < 1 || months > 24 {
				return &core.ValidationError{Field: "months", Err: fmt.Errorf("must be between 1 and 24")}
			}

			preds, err := a.svc.Analytics.Predictions(cmd.Context(), owner, months, a.today())
			if err != nil {
				return err
			}
			if len(preds) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No spending in the last %d months.\n", months)
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "CATEGORY\tPREDICTED\tTOTAL\tACTIVE MONTHS")
			for _, p := range preds {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", p.Category, p.Average, p.Total, p.ActiveMonths)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&months, "months", 0, "Lookback window in months (default PREDICTION_LOOKBACK_MONTHS)")
	return cmd
}

func newBudgetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "budgets",
		Short: "Budget usage for the current month",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			statuses, err := a.svc.Budgets.BudgetStatus(cmd.Context(), owner, a.today())
			if err != nil {
				return err
			}
			if len(statuses) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No budgets set.")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "CATEGORY\tSPENT\tLIMIT\tUSED")
			for _, s := range statuses {
				marker := ""
				if s.PercentUsed() >= int64(a.cfg.BudgetAlertPercent) {
					marker = " !"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%%s\n", s.Category, s.Spent, s.Limit, s.PercentUsed(), marker)
			}
			return tw.Flush()
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the owner's expenses as CSV, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			owner, err := a.owner()
			if err != nil {
				return err
			}
			recs, err := a.svc.Analytics.SearchExpenses(cmd.Context(), owner, core.ExpenseFilter{})
			if err != nil {
				return err
			}

			if outPath == "" || outPath == "-" {
				return export.WriteCSV(cmd.OutOrStdout(), recs)
			}
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			if err := export.WriteCSV(f, recs); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d expenses to %s\n", len(recs), outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "Output file (default stdout)")
	return cmd
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
