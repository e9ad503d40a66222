package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/gwlsn/codecbench/internal/config"
	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/ffmpeg/psnr"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/metrics"
	"github.com/gwlsn/codecbench/internal/results"
	"github.com/gwlsn/codecbench/internal/sweep"
)

func newSweepCmd() *cobra.Command {
	var (
		reference string
		outputDir string
		workers   int
		resume    bool
		frames    bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Encode the reference at every grid point and record measurements",
		Long: `Encodes the reference video with every configured codec, resolution and bitrate,
measures PSNR against the reference resampled to the same resolution, and appends
one row per point to the results table. The first encode or quality failure
aborts the sweep; rows already written are kept.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("reference") {
				cfg.Reference = reference
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.OutputDir = outputDir
			}
			if cmd.Flags().Changed("workers") {
				cfg.Workers = workers
			}
			if cmd.Flags().Changed("resume") {
				cfg.Resume = resume
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			printBanner(cfg, cfgPath)
			rec := metrics.New()
			if err := runSweep(cmd.Context(), cfg, rec); err != nil {
				return err
			}
			if frames {
				return runClassify(cmd.Context(), cfg, rec)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&reference, "reference", "r", "", "Reference video (overrides config)")
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "", "Artifact directory (overrides config)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 1, "Points measured concurrently")
	cmd.Flags().BoolVar(&resume, "resume", false, "Skip points that already have a row")
	cmd.Flags().BoolVar(&frames, "frames", false, "Run the frame pass after a successful sweep")
	return cmd
}

// runSweep checks the reference before touching the results table or the
// catalog, so a missing input leaves nothing behind.
func runSweep(ctx context.Context, cfg *config.Config, rec *metrics.Recorder) error {
	if _, err := sweep.CheckReference(cfg.Reference); err != nil {
		return err
	}

	psnr.DetectPSNR(cfg.FFmpegPath)
	if !psnr.IsAvailable() {
		return fmt.Errorf("%w: ffmpeg at %s has no psnr filter", psnr.ErrQualityComputation, cfg.FFmpegPath)
	}

	if available, err := ffmpeg.ListEncoders(ctx, cfg.FFmpegPath); err != nil {
		logger.Warn("Could not list ffmpeg encoders", "error", err)
	} else {
		for _, p := range ffmpeg.MissingEncoders(available, cfg.Codecs) {
			logger.Warn("Encoder not provided by ffmpeg, its points will fail", "codec", p.Label, "encoder", p.Encoder)
		}
	}

	plan := sweep.Plan{
		Reference:   cfg.Reference,
		Profiles:    cfg.Codecs,
		Resolutions: cfg.Resolutions,
		Bitrates:    cfg.Bitrates,
		OutputDir:   cfg.OutputDir,
	}
	points, err := sweep.Enumerate(plan.Profiles, plan.Resolutions, plan.Bitrates)
	if err != nil {
		return err
	}

	if probe, err := ffmpeg.NewProber(cfg.FFprobePath).Probe(ctx, cfg.Reference); err != nil {
		logger.Warn("Could not probe reference", "path", cfg.Reference, "error", err)
	} else {
		logger.Info("Reference",
			"path", cfg.Reference,
			"resolution", probe.Resolution().String(),
			"codec", probe.VideoCodec,
			"frame_rate", fmt.Sprintf("%.3f", probe.FrameRate),
			"duration", probe.Duration.Round(time.Millisecond).String(),
			"size", humanize.Bytes(uint64(probe.Size)))
	}

	w, err := results.OpenMeasurements(cfg.ResultsFile)
	if err != nil {
		return err
	}
	defer w.Close()

	ctrl := sweep.NewController(
		ffmpeg.NewEncoder(cfg.FFmpegPath),
		psnr.NewComparator(cfg.FFmpegPath, cfg.TempPath),
		w,
	)
	ctrl.Workers = cfg.Workers
	ctrl.Timeout = cfg.EncodeTimeout

	if cfg.Resume {
		done, err := completedArtifacts(cfg.ResultsFile)
		if err != nil {
			return err
		}
		ctrl.Completed = done
		logger.Info("Resuming sweep", "completed_rows", len(done))
	}

	ctrl.Observer = rec

	var catalog *results.Catalog
	var run *results.Run
	if cfg.CatalogFile != "" {
		catalog, err = results.OpenCatalog(cfg.CatalogFile)
		if err != nil {
			return err
		}
		defer catalog.Close()
		run, err = catalog.BeginRun(cfg.Reference, cfg.OutputDir, len(points))
		if err != nil {
			return err
		}
		logger.Info("Run recorded", "run_id", run.ID)
	}

	summary, runErr := ctrl.Run(ctx, plan)

	if run != nil {
		var written, skipped int
		if summary != nil {
			written, skipped = summary.Written, summary.Skipped
		}
		if err := catalog.FinishRun(run, written, skipped, runErr); err != nil {
			logger.Warn("Could not record run outcome", "run_id", run.ID, "error", err)
		}
	}
	if cfg.MetricsFile != "" {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.Warn("Could not write metrics", "path", cfg.MetricsFile, "error", err)
		}
	}

	if runErr != nil {
		var encErr *ffmpeg.EncodeError
		if errors.As(runErr, &encErr) {
			logger.Error("Encoder failed", "output", encErr.Output, "args", encErr.Args)
		}
		return runErr
	}

	fmt.Printf("Sweep complete: %d points, %d written, %d skipped in %s\n",
		summary.Points, summary.Written, summary.Skipped, summary.Elapsed.Round(time.Second))
	return nil
}

// completedArtifacts returns the filenames already present in the results
// table.
func completedArtifacts(path string) (map[string]bool, error) {
	rows, err := results.ReadMeasurements(path)
	if err != nil {
		return nil, fmt.Errorf("read existing results: %w", err)
	}
	done := make(map[string]bool, len(rows))
	for _, r := range rows {
		done[r.Filename] = true
	}
	return done, nil
}
