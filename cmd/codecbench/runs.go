package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gwlsn/codecbench/internal/results"
)

func newRunsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List sweep runs recorded in the catalog, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.CatalogFile == "" {
				return fmt.Errorf("catalog_file is not configured")
			}

			catalog, err := results.OpenCatalog(cfg.CatalogFile)
			if err != nil {
				return err
			}
			defer catalog.Close()

			if len(args) == 1 {
				return showRun(os.Stdout, catalog, args[0])
			}
			return listRuns(os.Stdout, catalog)
		},
	}
}

func runDuration(r *results.Run) string {
	if r.FinishedAt.IsZero() {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
}

func listRuns(w io.Writer, catalog *results.Catalog) error {
	runs, err := catalog.Runs()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tSTATUS\tPOINTS\tWRITTEN\tSKIPPED\tDURATION\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.ID, humanize.Time(r.StartedAt), r.Status, r.Points, r.Written, r.Skipped, runDuration(r), r.Error)
	}
	return tw.Flush()
}

func showRun(w io.Writer, catalog *results.Catalog, id string) error {
	r, err := catalog.GetRun(id)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("run %s not found", id)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", r.ID)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "Reference:\t%s\n", r.Reference)
	fmt.Fprintf(tw, "Output dir:\t%s\n", r.OutputDir)
	fmt.Fprintf(tw, "Points:\t%d (%d written, %d skipped)\n", r.Points, r.Written, r.Skipped)
	fmt.Fprintf(tw, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Duration:\t%s\n", runDuration(r))
	if r.Error != "" {
		fmt.Fprintf(tw, "Error:\t%s\n", r.Error)
	}
	return tw.Flush()
}
