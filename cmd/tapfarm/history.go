package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"jordanella.com/tapfarm/internal/database"
)

// printHistory writes recent cycles, per-account totals for the last week and recent errors
func printHistory(w io.Writer, db *database.DB, limit int) error {
	cycles, err := db.ListRecentCycles(limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CYCLE\tSTATUS\tPASSES\tPROCESSED\tSTARTED\tERROR")
	for _, c := range cycles {
		errText := ""
		if c.ErrorMessage != nil {
			errText = *c.ErrorMessage
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d/%d\t%s\t%s\n",
			c.ID, c.Status, c.Passes, c.ProcessedAccounts, c.ActiveAccounts,
			c.StartedAt.Local().Format(time.DateTime), errText)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	summaries, err := db.GetAccountSummaries(time.Now().AddDate(0, 0, -7))
	if err != nil {
		return err
	}
	fmt.Fprintln(w)
	fmt.Fprintln(tw, "ACCOUNT\tPROCESSED\tFAILED\tLAST PROCESSED")
	for _, s := range summaries {
		last := "-"
		if s.LastProcessed != nil {
			last = s.LastProcessed.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", s.AccountID, s.Processed, s.Failed, last)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	errs, err := db.GetRecentErrors(limit)
	if err != nil {
		return err
	}
	if len(errs) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	fmt.Fprintln(tw, "WHEN\tSEVERITY\tCATEGORY\tCOMPONENT\tMESSAGE")
	for _, e := range errs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format(time.DateTime), e.Severity, e.Category, e.Component, e.Message)
	}
	return tw.Flush()
}
