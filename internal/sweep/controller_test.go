package sweep

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/ffmpeg/psnr"
	"github.com/gwlsn/codecbench/internal/media"
	"github.com/gwlsn/codecbench/internal/results"
)

// fakeEncoder writes BitrateKbps bytes to the request's output path.
type fakeEncoder struct {
	mu     sync.Mutex
	calls  []string
	failAt string // artifact name that fails
	delay  func(req ffmpeg.EncodeRequest) time.Duration
	block  bool // wait for ctx instead of encoding
}

func (e *fakeEncoder) Encode(ctx context.Context, req ffmpeg.EncodeRequest) (*ffmpeg.Artifact, error) {
	out := req.OutputPath()
	name := filepath.Base(out)

	e.mu.Lock()
	e.calls = append(e.calls, name)
	e.mu.Unlock()

	if e.block {
		<-ctx.Done()
		return nil, &ffmpeg.EncodeError{Output: out, Err: ctx.Err()}
	}
	if e.delay != nil {
		select {
		case <-time.After(e.delay(req)):
		case <-ctx.Done():
			return nil, &ffmpeg.EncodeError{Output: out, Err: ctx.Err()}
		}
	}
	if name == e.failAt {
		return nil, &ffmpeg.EncodeError{Output: out, Args: []string{"-c:v", req.Profile.Encoder}, Stderr: "Unknown encoder", Err: errors.New("exit status 1")}
	}

	if err := os.WriteFile(out, make([]byte, req.BitrateKbps), 0644); err != nil {
		return nil, err
	}
	return &ffmpeg.Artifact{
		Path:        out,
		Size:        int64(req.BitrateKbps),
		Reference:   req.Input,
		Codec:       req.Profile.Label,
		Resolution:  req.Resolution,
		BitrateKbps: req.BitrateKbps,
	}, nil
}

func (e *fakeEncoder) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// fakeComparator reports a reference of 100 bytes per pixel row and a PSNR
// that grows with artifact size.
type fakeComparator struct {
	failAt string
}

func (c *fakeComparator) Compare(ctx context.Context, ref, artifact string, res media.Resolution) (*psnr.Result, error) {
	if filepath.Base(artifact) == c.failAt {
		return nil, fmt.Errorf("%w: comparing %s: %w", psnr.ErrQualityComputation, artifact, psnr.ErrMalformedLog)
	}
	info, err := os.Stat(artifact)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", psnr.ErrQualityComputation, err)
	}
	return &psnr.Result{
		PSNR:          30 + float64(info.Size())/100,
		ReferenceSize: int64(res.Height) * 100,
	}, nil
}

type memWriter struct {
	rows []results.Measurement
}

func (w *memWriter) Write(m results.Measurement) error {
	w.rows = append(w.rows, m)
	return nil
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(m results.Measurement) error {
	if w.after == 0 {
		return errors.New("disk full")
	}
	w.after--
	return nil
}

type recordingObserver struct {
	measured []string
	skipped  []string
}

func (o *recordingObserver) PointMeasured(p Point, m results.Measurement) {
	o.measured = append(o.measured, m.Filename)
}

func (o *recordingObserver) PointSkipped(p Point) {
	o.skipped = append(o.skipped, p.String())
}

func writeReference(t *testing.T, dir string) string {
	t.Helper()
	ref := filepath.Join(dir, "clip.y4m")
	if err := os.WriteFile(ref, []byte("YUV4MPEG2 W352 H288 F25:1\n"), 0644); err != nil {
		t.Fatal(err)
	}
	return ref
}

func TestRunSinglePoint(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)
	outDir := filepath.Join(dir, "output")

	enc := &fakeEncoder{}
	w := &memWriter{}
	c := NewController(enc, &fakeComparator{}, w)

	summary, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{500},
		OutputDir:   outDir,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Points != 1 || summary.Written != 1 || summary.Skipped != 0 {
		t.Errorf("summary = %+v", summary)
	}
	if len(w.rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(w.rows))
	}

	row := w.rows[0]
	if row.Filename != "clip_h264_352x288_500k.mp4" {
		t.Errorf("Filename = %s", row.Filename)
	}
	if row.Codec != "h264" || row.Resolution != resCIF || row.BitrateKbps != 500 {
		t.Errorf("row identity = %s %s %d", row.Codec, row.Resolution, row.BitrateKbps)
	}
	if row.FileSize != 500 {
		t.Errorf("FileSize = %d, want 500", row.FileSize)
	}
	if row.CompressionRatio != 288*100/500.0 {
		t.Errorf("CompressionRatio = %v, want %v", row.CompressionRatio, 288*100/500.0)
	}
	if row.PSNR != 35 {
		t.Errorf("PSNR = %v, want 35", row.PSNR)
	}
	if row.CompressionTime < 0 {
		t.Errorf("CompressionTime = %v", row.CompressionTime)
	}
	if _, err := os.Stat(filepath.Join(outDir, row.Filename)); err != nil {
		t.Errorf("artifact not in output dir: %v", err)
	}
}

func TestRunRestrictedCombinationNeverInvoked(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	enc := &fakeEncoder{}
	w := &memWriter{}
	c := NewController(enc, &fakeComparator{}, w)

	summary, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h261()},
		Resolutions: []media.Resolution{res1080},
		Bitrates:    []int{500},
		OutputDir:   filepath.Join(dir, "out"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if enc.callCount() != 0 {
		t.Errorf("encoder invoked %d times: %v", enc.callCount(), enc.calls)
	}
	if summary.Points != 0 || len(w.rows) != 0 {
		t.Errorf("summary = %+v, rows = %d", summary, len(w.rows))
	}
}

func TestRunReferenceMissing(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{}
	c := NewController(enc, &fakeComparator{}, &memWriter{})

	tests := []struct {
		name string
		ref  string
	}{
		{"missing file", filepath.Join(dir, "nope.y4m")},
		{"directory", dir},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outDir := filepath.Join(dir, "out-"+strings.ReplaceAll(tt.name, " ", "-"))
			_, err := c.Run(context.Background(), Plan{
				Reference:   tt.ref,
				Profiles:    []ffmpeg.Profile{h264()},
				Resolutions: []media.Resolution{resCIF},
				Bitrates:    []int{500},
				OutputDir:   outDir,
			})
			if !errors.Is(err, ErrReferenceMissing) {
				t.Fatalf("expected ErrReferenceMissing, got %v", err)
			}
			if _, err := os.Stat(outDir); !os.IsNotExist(err) {
				t.Error("output dir should not be created when the reference is missing")
			}
		})
	}
	if enc.callCount() != 0 {
		t.Errorf("encoder invoked %d times", enc.callCount())
	}
}

func TestRunEncodeFailureAbortsAfterNRows(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)
	tablePath := filepath.Join(dir, "compression_results.csv")

	w, err := results.OpenMeasurements(tablePath)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	enc := &fakeEncoder{failAt: "clip_h264_352x288_300k.mp4"}
	c := NewController(enc, &fakeComparator{}, w)

	summary, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300, 400, 500},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if !errors.Is(err, ffmpeg.ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	var encErr *ffmpeg.EncodeError
	if !errors.As(err, &encErr) {
		t.Fatalf("expected *EncodeError in chain, got %T", err)
	}
	if !strings.Contains(err.Error(), "h264 352x288 300k") {
		t.Errorf("error should name the failing point: %v", err)
	}

	if summary.Written != 2 {
		t.Errorf("Written = %d, want 2", summary.Written)
	}
	if enc.callCount() != 3 {
		t.Errorf("encoder invoked %d times, want 3 (no point after the failure)", enc.callCount())
	}

	rows, err := results.ReadMeasurements(tablePath)
	if err != nil {
		t.Fatalf("ReadMeasurements: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("table has %d rows, want 2", len(rows))
	}
	if rows[0].BitrateKbps != 100 || rows[1].BitrateKbps != 200 {
		t.Errorf("unexpected rows %+v", rows)
	}
}

func TestRunQualityFailureIsFatal(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	w := &memWriter{}
	c := NewController(&fakeEncoder{}, &fakeComparator{failAt: "clip_h264_352x288_200k.mp4"}, w)

	_, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if !errors.Is(err, psnr.ErrQualityComputation) {
		t.Fatalf("expected ErrQualityComputation, got %v", err)
	}
	if !errors.Is(err, psnr.ErrMalformedLog) {
		t.Errorf("expected ErrMalformedLog in chain, got %v", err)
	}
	if errors.Is(err, ffmpeg.ErrEncodeFailure) {
		t.Error("quality failure must not be reported as an encode failure")
	}
	if len(w.rows) != 1 {
		t.Errorf("got %d rows, want 1", len(w.rows))
	}
}

func TestRunParallelKeepsGridOrder(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	plan := Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h261(), h264()},
		Resolutions: []media.Resolution{resCIF, resQCIF},
		Bitrates:    []int{100, 200, 300},
		OutputDir:   filepath.Join(dir, "output"),
	}

	seqWriter := &memWriter{}
	seq := NewController(&fakeEncoder{}, &fakeComparator{}, seqWriter)
	if _, err := seq.Run(context.Background(), plan); err != nil {
		t.Fatalf("sequential Run: %v", err)
	}

	// Later bitrates finish first
	enc := &fakeEncoder{delay: func(req ffmpeg.EncodeRequest) time.Duration {
		return time.Duration(400-req.BitrateKbps) * 50 * time.Microsecond
	}}
	parWriter := &memWriter{}
	obs := &recordingObserver{}
	par := NewController(enc, &fakeComparator{}, parWriter)
	par.Workers = 4
	par.Observer = obs

	summary, err := par.Run(context.Background(), plan)
	if err != nil {
		t.Fatalf("parallel Run: %v", err)
	}
	if summary.Written != len(seqWriter.rows) {
		t.Fatalf("parallel wrote %d rows, sequential %d", summary.Written, len(seqWriter.rows))
	}
	for i := range seqWriter.rows {
		if parWriter.rows[i].Filename != seqWriter.rows[i].Filename {
			t.Errorf("row %d: parallel %s, sequential %s", i, parWriter.rows[i].Filename, seqWriter.rows[i].Filename)
		}
		if obs.measured[i] != seqWriter.rows[i].Filename {
			t.Errorf("observer %d: got %s, want %s", i, obs.measured[i], seqWriter.rows[i].Filename)
		}
	}
}

func TestRunParallelFailureWritesNothingAfterIt(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	enc := &fakeEncoder{failAt: "clip_h264_352x288_300k.mp4"}
	w := &memWriter{}
	c := NewController(enc, &fakeComparator{}, w)
	c.Workers = 3

	_, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300, 400, 500, 600},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if !errors.Is(err, ffmpeg.ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	for _, row := range w.rows {
		if row.BitrateKbps >= 300 {
			t.Errorf("row written for point at or after the failure: %s", row.Filename)
		}
	}
	for i, row := range w.rows {
		if row.BitrateKbps != 100*(i+1) {
			t.Errorf("row %d out of order: %s", i, row.Filename)
		}
	}
}

func TestRunParallelFailureKeepsEarlierRows(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	plan := Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300},
		OutputDir:   filepath.Join(dir, "output"),
	}
	failAt := "clip_h264_352x288_200k.mp4"

	seqWriter := &memWriter{}
	_, seqErr := NewController(&fakeEncoder{failAt: failAt}, &fakeComparator{}, seqWriter).Run(context.Background(), plan)
	if !errors.Is(seqErr, ffmpeg.ErrEncodeFailure) {
		t.Fatalf("sequential: expected ErrEncodeFailure, got %v", seqErr)
	}

	// The first point is still encoding when the second fails
	enc := &fakeEncoder{failAt: failAt, delay: func(req ffmpeg.EncodeRequest) time.Duration {
		if req.BitrateKbps == 100 {
			return 200 * time.Millisecond
		}
		return 0
	}}
	parWriter := &memWriter{}
	par := NewController(enc, &fakeComparator{}, parWriter)
	par.Workers = 3

	summary, err := par.Run(context.Background(), plan)
	if !errors.Is(err, ffmpeg.ErrEncodeFailure) {
		t.Fatalf("parallel: expected ErrEncodeFailure, got %v", err)
	}
	if !strings.Contains(err.Error(), "h264 352x288 200k") {
		t.Errorf("error should name the failing point: %v", err)
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("earlier point was cancelled: %v", err)
	}

	if len(parWriter.rows) != len(seqWriter.rows) || summary.Written != len(seqWriter.rows) {
		t.Fatalf("parallel kept %d rows, sequential kept %d", len(parWriter.rows), len(seqWriter.rows))
	}
	if len(parWriter.rows) != 1 || parWriter.rows[0].Filename != "clip_h264_352x288_100k.mp4" {
		t.Errorf("rows = %+v", parWriter.rows)
	}
}

func TestRunResumeSkipsMeasuredPoints(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	enc := &fakeEncoder{}
	w := &memWriter{}
	obs := &recordingObserver{}
	c := NewController(enc, &fakeComparator{}, w)
	c.Observer = obs
	c.Completed = map[string]bool{
		"clip_h264_352x288_100k.mp4": true,
		"clip_h264_352x288_200k.mp4": true,
	}

	summary, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Points != 3 || summary.Skipped != 2 || summary.Written != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if enc.callCount() != 1 || enc.calls[0] != "clip_h264_352x288_300k.mp4" {
		t.Errorf("encoder calls = %v", enc.calls)
	}
	if len(obs.skipped) != 2 || len(obs.measured) != 1 {
		t.Errorf("observer saw %v skipped, %v measured", obs.skipped, obs.measured)
	}
}

func TestRunTimeoutIsEncodeFailure(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	c := NewController(&fakeEncoder{block: true}, &fakeComparator{}, &memWriter{})
	c.Timeout = 20 * time.Millisecond

	_, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if !errors.Is(err, ffmpeg.ErrEncodeFailure) {
		t.Fatalf("expected ErrEncodeFailure, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded in chain, got %v", err)
	}
}

func TestRunWriterFailureStopsSweep(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	c := NewController(&fakeEncoder{}, &fakeComparator{}, &failingWriter{after: 1})
	summary, err := c.Run(context.Background(), Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200, 300},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected write error, got %v", err)
	}
	if summary.Written != 1 {
		t.Errorf("Written = %d, want 1", summary.Written)
	}
}

func TestRunCancelledContext(t *testing.T) {
	dir := t.TempDir()
	ref := writeReference(t, dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	enc := &fakeEncoder{}
	c := NewController(enc, &fakeComparator{}, &memWriter{})
	_, err := c.Run(ctx, Plan{
		Reference:   ref,
		Profiles:    []ffmpeg.Profile{h264()},
		Resolutions: []media.Resolution{resCIF},
		Bitrates:    []int{100, 200},
		OutputDir:   filepath.Join(dir, "output"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if enc.callCount() != 0 {
		t.Errorf("encoder invoked %d times after cancel", enc.callCount())
	}
}
