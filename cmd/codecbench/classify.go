package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gwlsn/codecbench/internal/classify"
	"github.com/gwlsn/codecbench/internal/config"
	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/metrics"
	"github.com/gwlsn/codecbench/internal/results"
)

func newClassifyCmd() *cobra.Command {
	var outputDir string

	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Count I/P/B frames of the classified codecs' artifacts",
		Long: `Scans the output directory for artifacts of profiles marked classify, probes each
with ffprobe and appends its I/P/B frame counts to the frames table. Artifacts that
fail to probe are logged and skipped.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			return runClassify(cmd.Context(), cfg, metrics.New())
		},
	}

	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Artifact directory (overrides config)")
	return cmd
}

func runClassify(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) error {
	w, err := results.OpenFrameCounts(cfg.FramesFile)
	if err != nil {
		return err
	}
	defer w.Close()

	pass := classify.NewPass(ffmpeg.NewProber(cfg.FFprobePath), w)
	pass.Observer = rec

	summary, err := pass.Run(ctx, cfg.OutputDir, cfg.Codecs)
	if cfg.MetricsFile != "" {
		if werr := rec.WriteTextfile(cfg.MetricsFile); werr != nil {
			logger.Warn("Could not write metrics", "path", cfg.MetricsFile, "error", werr)
		}
	}
	if err != nil {
		return err
	}

	fmt.Printf("Frame pass complete: %d candidates, %d written, %d failed\n",
		summary.Candidates, summary.Written, summary.Failed)
	return nil
}
