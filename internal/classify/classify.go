// Package classify runs the frame-composition pass over a sweep's output
// directory.
package classify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/naming"
	"github.com/gwlsn/codecbench/internal/results"
)

// Prober counts picture types in one artifact.
type Prober interface {
	Classify(ctx context.Context, path string) (*ffmpeg.FrameComposition, error)
}

// RowWriter persists one frame-composition row.
type RowWriter interface {
	Write(c results.FrameCount) error
}

// Observer is told about each artifact the pass handles.
type Observer interface {
	FramesCounted(c results.FrameCount)
	ProbeFailed(name string, err error)
}

// PassSummary reports what a pass did.
type PassSummary struct {
	Candidates int `json:"candidates"`
	Written    int `json:"written"`
	Failed     int `json:"failed"`
}

// Pass classifies artifacts and appends one row per success.
type Pass struct {
	Prober   Prober
	Writer   RowWriter
	Observer Observer
}

// NewPass creates a pass writing to w.
func NewPass(p Prober, w RowWriter) *Pass {
	return &Pass{Prober: p, Writer: w}
}

// Select returns the names of files in outputDir that the naming scheme
// recognizes as artifacts of a classified profile, in its container, sorted
// by name.
func Select(outputDir string, profiles []ffmpeg.Profile) ([]string, error) {
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return nil, fmt.Errorf("list output dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		id, err := naming.Parse(e.Name())
		if err != nil {
			continue
		}
		prof, ok := ffmpeg.FindProfile(profiles, id.Codec)
		if !ok || !prof.Classify {
			continue
		}
		if id.Container != prof.ContainerExt() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Run classifies every selected artifact in outputDir. A failing probe is
// logged and counted; the pass moves on without a row for that file. A
// failing write or a cancelled context stops the pass.
func (p *Pass) Run(ctx context.Context, outputDir string, profiles []ffmpeg.Profile) (*PassSummary, error) {
	names, err := Select(outputDir, profiles)
	if err != nil {
		return nil, err
	}

	summary := &PassSummary{Candidates: len(names)}
	logger.Info("Frame pass started", "output_dir", outputDir, "candidates", len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		comp, err := p.Prober.Classify(ctx, filepath.Join(outputDir, name))
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			logger.Warn("Skipping artifact, probe failed", "artifact", name, "error", err)
			summary.Failed++
			if p.Observer != nil {
				p.Observer.ProbeFailed(name, err)
			}
			continue
		}
		if comp.Ignored > 0 {
			logger.Debug("Ignored picture types", "artifact", name, "count", comp.Ignored)
		}

		row := results.FrameCount{
			Filename:      name,
			Bidirectional: comp.Bidirectional,
			Intra:         comp.Intra,
			Predicted:     comp.Predicted,
		}
		if err := p.Writer.Write(row); err != nil {
			return summary, fmt.Errorf("write frame row for %s: %w", name, err)
		}
		summary.Written++
		if p.Observer != nil {
			p.Observer.FramesCounted(row)
		}

		logger.Info("Frames counted",
			"artifact", name,
			"i_frames", comp.Intra,
			"p_frames", comp.Predicted,
			"b_frames", comp.Bidirectional)
	}

	logger.Info("Frame pass complete", "written", summary.Written, "failed", summary.Failed)
	return summary, nil
}
