// Package media holds small value types shared across the benchmark
// pipeline.
package media

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Resolution is a frame size in pixels.
type Resolution struct {
	Width  int
	Height int
}

// String returns the WxH form used in artifact names and result tables.
func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ScaleFilter returns the ffmpeg scale filter for this resolution.
func (r Resolution) ScaleFilter() string {
	return fmt.Sprintf("scale=%d:%d", r.Width, r.Height)
}

// Valid reports whether both dimensions are positive.
func (r Resolution) Valid() bool {
	return r.Width > 0 && r.Height > 0
}

// ParseResolution parses "1920x1080". Both dimensions must be positive and
// written in canonical form (digits only, no sign or leading zero), so that
// a parsed resolution always renders back to the same text.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(s), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: expected WxH", s)
	}
	width, err := parseDimension(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: bad width: %w", s, err)
	}
	height, err := parseDimension(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution %q: bad height: %w", s, err)
	}
	r := Resolution{Width: width, Height: height}
	if !r.Valid() {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	return r, nil
}

func parseDimension(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty")
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%q is not a decimal number", s)
		}
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, fmt.Errorf("%q has a leading zero", s)
	}
	return strconv.Atoi(s)
}

// MustParseResolution is ParseResolution for constant tables. It panics on error.
func MustParseResolution(s string) Resolution {
	r, err := ParseResolution(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseResolutions parses a list, stopping at the first invalid entry.
func ParseResolutions(list []string) ([]Resolution, error) {
	out := make([]Resolution, 0, len(list))
	for _, s := range list {
		r, err := ParseResolution(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// MarshalYAML renders the resolution as WxH.
func (r Resolution) MarshalYAML() (any, error) {
	return r.String(), nil
}

// UnmarshalYAML accepts the WxH form.
func (r *Resolution) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseResolution(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
