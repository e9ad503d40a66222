// Package metrics records sweep and frame-pass outcomes as Prometheus
// metrics and writes them out as a node-exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gwlsn/codecbench/internal/results"
	"github.com/gwlsn/codecbench/internal/sweep"
)

const namespace = "codecbench"

// Recorder holds one run's metrics in its own registry. It satisfies both
// sweep.Observer and classify.Observer.
type Recorder struct {
	reg *prometheus.Registry

	points        *prometheus.CounterVec
	skipped       *prometheus.CounterVec
	encodeSeconds *prometheus.HistogramVec
	psnr          *prometheus.GaugeVec
	ratio         *prometheus.GaugeVec
	artifactBytes *prometheus.GaugeVec
	framesCounted prometheus.Counter
	probeFailures prometheus.Counter
	intraFrames   *prometheus.GaugeVec
}

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	pointLabels := []string{"codec", "resolution", "bitrate_kbps"}

	return &Recorder{
		reg: reg,
		points: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Sweep points measured and written",
		}, []string{"codec"}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_skipped_total",
			Help:      "Sweep points skipped because a row already existed",
		}, []string{"codec"}),
		encodeSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "encode_seconds",
			Help:      "Encoder wall-clock time per point",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"codec"}),
		psnr: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "psnr_db",
			Help:      "Average PSNR of the artifact against the resampled reference",
		}, pointLabels),
		ratio: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Resampled reference size divided by artifact size",
		}, pointLabels),
		artifactBytes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "artifact_bytes",
			Help:      "Encoded artifact size",
		}, pointLabels),
		framesCounted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_classified_total",
			Help:      "Artifacts whose picture types were counted",
		}),
		probeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "probe_failures_total",
			Help:      "Artifacts skipped by the frame pass because ffprobe failed",
		}),
		intraFrames: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "intra_frames",
			Help:      "I frames in a classified artifact",
		}, []string{"artifact"}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// PointMeasured records a written sweep row.
func (r *Recorder) PointMeasured(p sweep.Point, m results.Measurement) {
	labels := prometheus.Labels{
		"codec":        m.Codec,
		"resolution":   m.Resolution.String(),
		"bitrate_kbps": strconv.Itoa(m.BitrateKbps),
	}
	r.points.WithLabelValues(m.Codec).Inc()
	r.encodeSeconds.WithLabelValues(m.Codec).Observe(m.CompressionTime.Seconds())
	r.psnr.With(labels).Set(m.PSNR)
	r.ratio.With(labels).Set(m.CompressionRatio)
	r.artifactBytes.With(labels).Set(float64(m.FileSize))
}

// PointSkipped records a resumed point.
func (r *Recorder) PointSkipped(p sweep.Point) {
	r.skipped.WithLabelValues(p.Profile.Label).Inc()
}

// FramesCounted records a frame-pass row.
func (r *Recorder) FramesCounted(c results.FrameCount) {
	r.framesCounted.Inc()
	r.intraFrames.WithLabelValues(c.Filename).Set(float64(c.Intra))
}

// ProbeFailed records an artifact the frame pass had to skip.
func (r *Recorder) ProbeFailed(name string, err error) {
	r.probeFailures.Inc()
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
