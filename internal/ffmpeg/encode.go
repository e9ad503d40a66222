package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/media"
	"github.com/gwlsn/codecbench/internal/naming"
	"github.com/gwlsn/codecbench/internal/results"
)

// EncodeRequest fully specifies one encode.
type EncodeRequest struct {
	Input       string
	Profile     Profile
	Resolution  media.Resolution
	BitrateKbps int
	OutputDir   string
}

// OutputPath returns the deterministic artifact path for the request.
func (r EncodeRequest) OutputPath() string {
	return naming.ArtifactPath(r.OutputDir, r.Input, r.Profile.Label, r.Resolution, r.BitrateKbps, r.Profile.ContainerExt())
}

// Artifact is an encoded file produced by Encode. It is not modified after
// it is returned.
type Artifact struct {
	Path        string           `json:"path"`
	Size        int64            `json:"size"`
	Reference   string           `json:"reference"`
	Codec       string           `json:"codec"`
	Resolution  media.Resolution `json:"resolution"`
	BitrateKbps int              `json:"bitrate_kbps"`
	Elapsed     time.Duration    `json:"elapsed"`             // Wall clock around the ffmpeg process
	Container   *ContainerInfo   `json:"container,omitempty"` // MP4 structure, nil when not inspected
}

// Name returns the artifact filename, which is also its identity in the
// result tables.
func (a *Artifact) Name() string {
	return filepath.Base(a.Path)
}

// Encoder runs ffmpeg encodes for sweep points.
type Encoder struct {
	ffmpegPath string
}

// NewEncoder creates a new Encoder with the given ffmpeg path
func NewEncoder(ffmpegPath string) *Encoder {
	return &Encoder{ffmpegPath: ffmpegPath}
}

// BuildEncodeArgs returns the ffmpeg arguments for req writing to outputPath.
// Audio is always stream-copied.
func BuildEncodeArgs(req EncodeRequest, outputPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y", // Overwrite output without asking
		"-i", req.Input,
		"-vf", req.Resolution.ScaleFilter(),
		"-c:v", req.Profile.Encoder,
		"-b:v", strconv.Itoa(req.BitrateKbps) + "k",
		"-c:a", "copy",
		outputPath,
	}
}

// Encode runs ffmpeg for req and returns the artifact. Any existing file at
// the artifact path is overwritten. A non-zero exit, or an exit that leaves
// no usable file, returns an *EncodeError.
func (e *Encoder) Encode(ctx context.Context, req EncodeRequest) (*Artifact, error) {
	if req.BitrateKbps <= 0 {
		return nil, fmt.Errorf("invalid bitrate %d kbps", req.BitrateKbps)
	}
	if !req.Resolution.Valid() {
		return nil, fmt.Errorf("invalid resolution %s", req.Resolution)
	}
	if !req.Profile.Allows(req.Resolution) {
		return nil, fmt.Errorf("profile %s does not support %s", req.Profile.Label, req.Resolution)
	}

	outputPath := req.OutputPath()
	args := BuildEncodeArgs(req, outputPath)

	logger.Info("Encoding",
		"input", req.Input,
		"codec", req.Profile.Label,
		"resolution", req.Resolution.String(),
		"bitrate_kbps", req.BitrateKbps)
	logger.Debug("FFmpeg command", "args", strings.Join(args, " "))

	start := time.Now()
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)
	if err != nil {
		// Clean up partial output file
		os.Remove(outputPath)
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		logger.Error("FFmpeg encode failed", "output", outputPath, "error", err, "stderr", lastLines(string(output), 5))
		return nil, &EncodeError{Output: outputPath, Args: args, Stderr: string(output), Err: err}
	}

	size, err := results.FileSize(outputPath)
	if err != nil {
		return nil, &EncodeError{Output: outputPath, Args: args, Stderr: string(output),
			Err: fmt.Errorf("stat artifact: %w", err)}
	}
	if size == 0 {
		return nil, &EncodeError{Output: outputPath, Args: args, Stderr: string(output),
			Err: errors.New("artifact is empty")}
	}

	artifact := &Artifact{
		Path:        outputPath,
		Size:        size,
		Reference:   req.Input,
		Codec:       req.Profile.Label,
		Resolution:  req.Resolution,
		BitrateKbps: req.BitrateKbps,
		Elapsed:     elapsed,
	}

	if req.Profile.ContainerExt() == "mp4" {
		ci, err := InspectMP4(outputPath)
		if err != nil {
			logger.Warn("Could not inspect MP4 artifact", "path", outputPath, "error", err)
		} else {
			artifact.Container = ci
			logger.Debug("MP4 artifact structure",
				"path", outputPath,
				"sample_entry", ci.SampleEntry,
				"video_samples", ci.VideoSamples)
		}
	}

	logger.Info("Saved artifact",
		"path", outputPath,
		"size", humanize.Bytes(uint64(size)),
		"elapsed", elapsed.Round(time.Millisecond).String())

	return artifact, nil
}
