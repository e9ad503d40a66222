package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/gwlsn/codecbench/internal/config"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/results"
)

func newMergeCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Join measurements with frame counts on filename",
		Long: `Imports the results and frames tables into the catalog and writes their left join
on filename: every measurement row, with frame counts where the frame pass recorded
them and empty cells otherwise.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output") {
				cfg.MergedFile = output
			}
			return runMerge(cfg)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Merged CSV path (overrides config)")
	return cmd
}

func runMerge(cfg *config.Config) error {
	measurements, err := results.ReadMeasurements(cfg.ResultsFile)
	if err != nil {
		return fmt.Errorf("read measurements: %w", err)
	}

	frames, err := results.ReadFrameCounts(cfg.FramesFile)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("No frames table, frame columns will be empty", "path", cfg.FramesFile)
		frames, err = nil, nil
	}
	if err != nil {
		return fmt.Errorf("read frame counts: %w", err)
	}

	catalogPath := cfg.CatalogFile
	if catalogPath == "" {
		dir, err := os.MkdirTemp(cfg.TempPath, "codecbench_merge_")
		if err != nil {
			return err
		}
		defer os.RemoveAll(dir)
		catalogPath = filepath.Join(dir, "merge.db")
	}

	catalog, err := results.OpenCatalog(catalogPath)
	if err != nil {
		return err
	}
	defer catalog.Close()

	if err := catalog.ImportMeasurements(measurements); err != nil {
		return err
	}
	if err := catalog.ImportFrameCounts(frames); err != nil {
		return err
	}

	rows, err := catalog.Joined()
	if err != nil {
		return fmt.Errorf("join tables: %w", err)
	}
	if err := results.WriteJoined(cfg.MergedFile, rows); err != nil {
		return fmt.Errorf("write merged table: %w", err)
	}

	matched := 0
	for _, r := range rows {
		if r.Frames != nil {
			matched++
		}
	}
	logger.Info("Tables merged",
		"measurements", len(measurements),
		"frame_rows", len(frames),
		"with_frames", matched,
		"output", cfg.MergedFile)
	fmt.Printf("Merged %d rows (%d with frame counts) into %s\n", len(rows), matched, cfg.MergedFile)
	return nil
}
