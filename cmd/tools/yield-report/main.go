// Command yield-report renders an HTML summary of the records stored by
// the sqlite sink: decodes per downlink format, the integrity mix and the
// signal-level distribution.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/modes1090/internal/monitoring"
	"github.com/banshee-data/modes1090/internal/sink/sqlitestore"
)

func newRootCommand() *cobra.Command {
	var dbPath, runID, out, png string

	cmd := &cobra.Command{
		Use:           "yield-report",
		Short:         "Summarise decoder yield from a modes1090 sqlite store",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), dbPath, runID, out, png)
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "modes.db", "sqlite store written by the receiver")
	cmd.Flags().StringVar(&runID, "run", "", "Restrict the report to one run id")
	cmd.Flags().StringVarP(&out, "out", "o", "yield.html", "HTML output path")
	cmd.Flags().StringVar(&png, "png", "", "Also write a signal-level histogram PNG here")
	return cmd
}

func run(ctx context.Context, dbPath, runID, out, png string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	store, err := sqlitestore.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := buildReport(ctx, store, runID)
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := renderHTML(f, report); err != nil {
		f.Close()
		return fmt.Errorf("render report: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	monitoring.Logf("[Report] %d runs, %d valid, %d corrected, %d levels -> %s",
		len(report.Runs), report.Valid, report.Corrected, report.Summary.Count, out)

	if png != "" {
		if err := writeLevelPlot(png, report); err != nil {
			return err
		}
		monitoring.Logf("[Report] wrote %s", png)
	}
	return nil
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
