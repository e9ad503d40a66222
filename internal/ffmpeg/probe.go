package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/gwlsn/codecbench/internal/media"
)

// ProbeResult describes the reference or an artifact as ffprobe sees it.
// Only the first video stream is reported.
type ProbeResult struct {
	Path       string        `json:"path"`
	Size       int64         `json:"size"`
	Duration   time.Duration `json:"duration"`
	Format     string        `json:"format"`
	VideoCodec string        `json:"video_codec"`
	AudioCodec string        `json:"audio_codec,omitempty"`
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FrameRate  float64       `json:"frame_rate"`
	Frames     int           `json:"frames,omitempty"` // nb_frames when the container records it
}

// Resolution returns the video frame size.
func (r *ProbeResult) Resolution() media.Resolution {
	return media.Resolution{Width: r.Width, Height: r.Height}
}

type probeDocument struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
		NbFrames     string `json:"nb_frames"`
	} `json:"streams"`
}

// Prober runs ffprobe against references and artifacts.
type Prober struct {
	ffprobePath string
}

// NewProber creates a Prober using the ffprobe binary at ffprobePath.
func NewProber(ffprobePath string) *Prober {
	return &Prober{ffprobePath: ffprobePath}
}

// run invokes ffprobe on path and returns its stdout. Failures are
// *ProbeError.
func (p *Prober) run(ctx context.Context, path string, args ...string) ([]byte, error) {
	args = append(args, path)
	output, err := exec.CommandContext(ctx, p.ffprobePath, args...).Output()
	if err != nil {
		stderr := ""
		if exitErr, ok := err.(*exec.ExitError); ok {
			stderr = string(exitErr.Stderr)
		}
		return nil, &ProbeError{Path: path, Stderr: stderr, Err: err}
	}
	return output, nil
}

// Probe reports container and video stream metadata for path.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	output, err := p.run(ctx, path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
	)
	if err != nil {
		return nil, err
	}
	result, err := parseProbeOutput(path, output)
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	return result, nil
}

func parseProbeOutput(path string, output []byte) (*ProbeResult, error) {
	var doc probeDocument
	if err := json.Unmarshal(output, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedProbeOutput, err)
	}

	result := &ProbeResult{Path: path, Format: doc.Format.FormatName}
	result.Size, _ = strconv.ParseInt(doc.Format.Size, 10, 64)
	if secs, err := strconv.ParseFloat(doc.Format.Duration, 64); err == nil {
		result.Duration = time.Duration(secs * float64(time.Second))
	}

	for _, s := range doc.Streams {
		switch {
		case s.CodecType == "video" && result.VideoCodec == "":
			result.VideoCodec = s.CodecName
			result.Width, result.Height = s.Width, s.Height
			result.Frames, _ = strconv.Atoi(s.NbFrames)
			if result.FrameRate = parseFrameRate(s.RFrameRate); result.FrameRate == 0 {
				result.FrameRate = parseFrameRate(s.AvgFrameRate)
			}
		case s.CodecType == "audio" && result.AudioCodec == "":
			result.AudioCodec = s.CodecName
		}
	}

	if result.VideoCodec == "" {
		return nil, fmt.Errorf("%w: no video stream", ErrMalformedProbeOutput)
	}
	return result, nil
}

// parseFrameRate accepts a rational like "30000/1001" or a plain number.
// Unparseable or zero-denominator rates are 0.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
