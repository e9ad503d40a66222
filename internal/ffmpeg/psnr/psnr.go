// Package psnr measures objective quality of an encoded artifact against
// its reference using ffmpeg's psnr filter.
package psnr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/media"
	"github.com/gwlsn/codecbench/internal/results"
)

// ErrQualityComputation wraps every comparison failure.
var ErrQualityComputation = errors.New("quality computation failed")

// Result is the outcome of one comparison.
type Result struct {
	PSNR float64 // Average PSNR in dB from the log summary line

	// ReferenceSize is the size of the reference after resampling to the
	// artifact's resolution. Compression ratios are computed against it so
	// downscaled artifacts are compared with an equally downscaled source.
	ReferenceSize int64

	Summary *Summary
}

// Comparator runs resample + psnr comparisons.
type Comparator struct {
	FFmpegPath string
	TempDir    string // Parent for per-comparison work dirs; "" = os.TempDir()
}

// NewComparator creates a new PSNR comparator
func NewComparator(ffmpegPath, tempDir string) *Comparator {
	return &Comparator{
		FFmpegPath: ffmpegPath,
		TempDir:    tempDir,
	}
}

// Compare resamples referencePath to res, runs the psnr filter against
// artifactPath and returns the summary average. Each call works in its own
// temp dir, removed before returning whether or not parsing succeeded, so
// concurrent comparisons never share files.
func (c *Comparator) Compare(ctx context.Context, referencePath, artifactPath string, res media.Resolution) (*Result, error) {
	workDir, err := os.MkdirTemp(c.TempDir, "psnr_")
	if err != nil {
		return nil, fmt.Errorf("%w: creating work dir: %v", ErrQualityComputation, err)
	}
	defer os.RemoveAll(workDir)

	resampled := filepath.Join(workDir, "reference.y4m")
	if err := c.resample(ctx, referencePath, resampled, res); err != nil {
		return nil, err
	}

	refSize, err := results.FileSize(resampled)
	if err != nil {
		return nil, fmt.Errorf("%w: resampled reference missing: %v", ErrQualityComputation, err)
	}

	logPath := filepath.Join(workDir, "psnr.log")
	if err := c.measure(ctx, resampled, artifactPath, logPath); err != nil {
		return nil, err
	}

	summary, err := ParseSummaryFile(logPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrQualityComputation, artifactPath, err)
	}

	logger.Info("PSNR computed",
		"artifact", filepath.Base(artifactPath),
		"psnr", fmt.Sprintf("%.2f", summary.PSNRAvg),
		"reference_size", refSize)

	return &Result{
		PSNR:          summary.PSNRAvg,
		ReferenceSize: refSize,
		Summary:       summary,
	}, nil
}

// ResampleArgs returns the ffmpeg arguments that scale the reference into a
// raw Y4M file at res.
func ResampleArgs(referencePath, outputPath string, res media.Resolution) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", referencePath,
		"-vf", res.ScaleFilter(),
		"-y",
		outputPath,
	}
}

// MeasureArgs returns the ffmpeg arguments that compare the resampled
// reference with the artifact, writing per-frame stats to logPath and
// discarding the decoded output.
func MeasureArgs(resampledPath, artifactPath, logPath string) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", resampledPath,
		"-i", artifactPath,
		"-lavfi", "psnr=stats_file=" + filterPath(logPath),
		"-f", "null", "-",
	}
}

func (c *Comparator) resample(ctx context.Context, referencePath, outputPath string, res media.Resolution) error {
	args := ResampleArgs(referencePath, outputPath, res)
	logger.Debug("FFmpeg resample command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("FFmpeg resample failed", "reference", referencePath, "resolution", res.String(),
			"error", err, "stderr", lastLines(string(output), 5))
		return fmt.Errorf("%w: resampling %s to %s: %v (%s)",
			ErrQualityComputation, referencePath, res, err, lastLines(string(output), 3))
	}
	return nil
}

func (c *Comparator) measure(ctx context.Context, resampledPath, artifactPath, logPath string) error {
	args := MeasureArgs(resampledPath, artifactPath, logPath)
	logger.Debug("FFmpeg psnr command", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, c.FFmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		logger.Error("FFmpeg psnr failed", "artifact", artifactPath, "error", err, "stderr", lastLines(string(output), 5))
		return fmt.Errorf("%w: comparing %s: %v (%s)",
			ErrQualityComputation, artifactPath, err, lastLines(string(output), 3))
	}
	return nil
}

// filterPath quotes a path for use as a filter option value.
func filterPath(path string) string {
	return "'" + strings.ReplaceAll(path, "'", `'\''`) + "'"
}

// lastLines returns the last n non-empty lines from output
func lastLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
