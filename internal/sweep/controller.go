package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/ffmpeg/psnr"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/media"
	"github.com/gwlsn/codecbench/internal/results"
)

// Encoder produces an artifact for one encode request.
type Encoder interface {
	Encode(ctx context.Context, req ffmpeg.EncodeRequest) (*ffmpeg.Artifact, error)
}

// Comparator measures an artifact against the reference at res.
type Comparator interface {
	Compare(ctx context.Context, referencePath, artifactPath string, res media.Resolution) (*psnr.Result, error)
}

// RowWriter persists one measurement.
type RowWriter interface {
	Write(m results.Measurement) error
}

// Observer is told about every point once its outcome is final, in grid
// order.
type Observer interface {
	PointMeasured(p Point, m results.Measurement)
	PointSkipped(p Point)
}

// Plan describes one sweep.
type Plan struct {
	Reference   string
	Profiles    []ffmpeg.Profile
	Resolutions []media.Resolution
	Bitrates    []int
	OutputDir   string
}

// Summary reports what a sweep did.
type Summary struct {
	Points  int           `json:"points"`
	Written int           `json:"written"`
	Skipped int           `json:"skipped"`
	Elapsed time.Duration `json:"elapsed"`
}

// Controller runs plans. Encoder, Comparator and Writer are required.
type Controller struct {
	Encoder    Encoder
	Comparator Comparator
	Writer     RowWriter

	// Workers is how many points are measured at once. Rows are written in
	// grid order regardless.
	Workers int

	// Timeout bounds each encode and each comparison. Zero means no limit.
	Timeout time.Duration

	// Completed holds artifact filenames that already have a row. Matching
	// points are skipped without invoking anything.
	Completed map[string]bool

	Observer Observer
}

// NewController creates a sequential controller.
func NewController(enc Encoder, cmp Comparator, w RowWriter) *Controller {
	return &Controller{
		Encoder:    enc,
		Comparator: cmp,
		Writer:     w,
		Workers:    MinWorkers,
	}
}

type outcome struct {
	seq   int // Position in the work list
	point Point
	row   results.Measurement
	err   error
}

// CheckReference returns the size of the reference video, or an error
// wrapping ErrReferenceMissing when it is absent or not a regular file.
func CheckReference(path string) (int64, error) {
	size, err := results.FileSize(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrReferenceMissing, err)
	}
	return size, nil
}

// Run measures every point of plan and appends one row per point. The first
// encode or quality failure aborts the sweep; rows already written stay,
// and no row is written for any later point.
func (c *Controller) Run(ctx context.Context, plan Plan) (*Summary, error) {
	start := time.Now()

	refSize, err := CheckReference(plan.Reference)
	if err != nil {
		return nil, err
	}

	points, err := Enumerate(plan.Profiles, plan.Resolutions, plan.Bitrates)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(plan.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	summary := &Summary{Points: len(points)}
	todo := make([]Point, 0, len(points))
	for _, p := range points {
		name := filepath.Base(p.Request(plan.Reference, plan.OutputDir).OutputPath())
		if c.Completed[name] {
			logger.Debug("Skipping measured point", "point", p.String(), "artifact", name)
			summary.Skipped++
			if c.Observer != nil {
				c.Observer.PointSkipped(p)
			}
			continue
		}
		todo = append(todo, p)
	}

	workers := ClampWorkerCount(c.Workers)
	logger.Info("Sweep planned",
		"reference", plan.Reference,
		"reference_size", humanize.Bytes(uint64(refSize)),
		"points", len(points),
		"skipped", summary.Skipped,
		"workers", workers)

	err = c.process(ctx, plan, todo, workers, summary)
	summary.Elapsed = time.Since(start)

	if err != nil {
		logger.Error("Sweep aborted", "written", summary.Written, "error", err)
		return summary, err
	}
	logger.Info("Sweep complete",
		"written", summary.Written,
		"skipped", summary.Skipped,
		"elapsed", summary.Elapsed.Round(time.Millisecond).String())
	return summary, nil
}

// process measures todo with up to workers points in flight. A single
// goroutine writes rows, holding back out-of-order completions until every
// earlier point is written. A failed point stops new launches, but points
// before it run to completion; the writer cancels the rest once it reaches
// the failure.
func (c *Controller) process(ctx context.Context, plan Plan, todo []Point, workers int, summary *Summary) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var g errgroup.Group
	g.SetLimit(workers)

	// Lowest work-list position that has failed. Points after it are not
	// started; points before it always are.
	var failedAt atomic.Int64
	failedAt.Store(int64(len(todo)))

	done := make(chan outcome, len(todo))
	emitErr := make(chan error, 1)
	go func() {
		emitErr <- c.emit(done, summary, cancel)
	}()

	for i, p := range todo {
		if ctx.Err() != nil || int64(i) > failedAt.Load() {
			break
		}
		i, p := i, p
		g.Go(func() error {
			// Go may have blocked on the limit while a point failed. The
			// writer cancels only after every earlier point is drained.
			if ctx.Err() != nil || int64(i) > failedAt.Load() {
				return nil
			}
			row, err := c.measure(ctx, plan, p)
			if err != nil {
				for cur := failedAt.Load(); int64(i) < cur; cur = failedAt.Load() {
					if failedAt.CompareAndSwap(cur, int64(i)) {
						break
					}
				}
			}
			done <- outcome{seq: i, point: p, row: row, err: err}
			return nil
		})
	}

	g.Wait()
	close(done)

	if err := <-emitErr; err != nil {
		return err
	}
	// Cancelled before any point failed
	return ctx.Err()
}

// emit writes rows in work-list order until the first failed point, then
// cancels whatever is still running. It returns that point's error, or the
// write error that stopped it.
func (c *Controller) emit(done <-chan outcome, summary *Summary, cancel context.CancelFunc) error {
	pending := make(map[int]outcome)
	next := 0
	var stopErr error

	for o := range done {
		if stopErr != nil {
			continue
		}
		pending[o.seq] = o

		for stopErr == nil {
			cur, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++

			if cur.err != nil {
				stopErr = cur.err
				cancel()
				break
			}
			if err := c.Writer.Write(cur.row); err != nil {
				stopErr = pointError(cur.point, fmt.Errorf("write row: %w", err))
				cancel()
				break
			}
			summary.Written++
			if c.Observer != nil {
				c.Observer.PointMeasured(cur.point, cur.row)
			}
		}
	}
	return stopErr
}

// measure encodes and compares one point.
func (c *Controller) measure(ctx context.Context, plan Plan, p Point) (results.Measurement, error) {
	req := p.Request(plan.Reference, plan.OutputDir)

	encCtx, cancel := c.withTimeout(ctx)
	start := time.Now()
	artifact, err := c.Encoder.Encode(encCtx, req)
	elapsed := time.Since(start)
	cancel()
	if err != nil {
		if !errors.Is(err, ffmpeg.ErrEncodeFailure) {
			err = fmt.Errorf("%w: %w", ffmpeg.ErrEncodeFailure, err)
		}
		return results.Measurement{}, pointError(p, err)
	}

	cmpCtx, cancel := c.withTimeout(ctx)
	quality, err := c.Comparator.Compare(cmpCtx, plan.Reference, artifact.Path, p.Resolution)
	cancel()
	if err != nil {
		if !errors.Is(err, psnr.ErrQualityComputation) {
			err = fmt.Errorf("%w: %w", psnr.ErrQualityComputation, err)
		}
		return results.Measurement{}, pointError(p, err)
	}

	ratio, err := results.CompressionRatio(quality.ReferenceSize, artifact.Size)
	if err != nil {
		return results.Measurement{}, pointError(p, err)
	}

	row := results.Measurement{
		Filename:         artifact.Name(),
		FileSize:         artifact.Size,
		Codec:            p.Profile.Label,
		CompressionTime:  elapsed,
		CompressionRatio: ratio,
		Resolution:       p.Resolution,
		BitrateKbps:      p.BitrateKbps,
		PSNR:             quality.PSNR,
	}

	logger.Info("Point measured",
		"point", p.String(),
		"size", humanize.Bytes(uint64(artifact.Size)),
		"encode_time", elapsed.Round(time.Millisecond).String(),
		"ratio", fmt.Sprintf("%.2f", ratio),
		"psnr", fmt.Sprintf("%.2f", quality.PSNR))

	return row, nil
}

func (c *Controller) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout > 0 {
		return context.WithTimeout(ctx, c.Timeout)
	}
	return context.WithCancel(ctx)
}
