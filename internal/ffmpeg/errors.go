package ffmpeg

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for external tool invocations.
// These can be checked with errors.Is().
var (
	ErrEncodeFailure        = errors.New("encode failed")
	ErrProbeFailure         = errors.New("frame probe failed")
	ErrMalformedProbeOutput = errors.New("malformed probe output")
)

// EncodeError describes a failed encoder invocation. It is never retried:
// a failing encoder means the environment or profile is misconfigured.
type EncodeError struct {
	Output string   // Artifact path the encode was writing
	Args   []string // Full argument list passed to ffmpeg
	Stderr string   // Combined output of the failed process
	Err    error
}

func (e *EncodeError) Error() string {
	msg := fmt.Sprintf("%v: %s: %v", ErrEncodeFailure, e.Output, e.Err)
	if tail := lastLines(e.Stderr, 3); tail != "" {
		msg += " (" + tail + ")"
	}
	return msg
}

func (e *EncodeError) Unwrap() []error {
	return []error{ErrEncodeFailure, e.Err}
}

// ProbeError describes a failed ffprobe invocation.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("%v: %s: %v", ErrProbeFailure, e.Path, e.Err)
	if tail := lastLines(e.Stderr, 3); tail != "" {
		msg += " (" + tail + ")"
	}
	return msg
}

func (e *ProbeError) Unwrap() []error {
	return []error{ErrProbeFailure, e.Err}
}

// lastLines returns the last n non-empty lines from output
func lastLines(output string, n int) string {
	output = strings.TrimSpace(output)
	if output == "" {
		return ""
	}
	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
