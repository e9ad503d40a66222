// Package sweep enumerates the codec × resolution × bitrate grid and drives
// encode and quality measurement for every point of it.
package sweep

import (
	"errors"
	"fmt"

	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/media"
)

// Point is one cell of the sweep grid. Index is its position in grid order.
type Point struct {
	Index       int
	Profile     ffmpeg.Profile
	Resolution  media.Resolution
	BitrateKbps int
}

func (p Point) String() string {
	return fmt.Sprintf("%s %s %dk", p.Profile.Label, p.Resolution, p.BitrateKbps)
}

// Request returns the encode request for p.
func (p Point) Request(reference, outputDir string) ffmpeg.EncodeRequest {
	return ffmpeg.EncodeRequest{
		Input:       reference,
		Profile:     p.Profile,
		Resolution:  p.Resolution,
		BitrateKbps: p.BitrateKbps,
		OutputDir:   outputDir,
	}
}

// Enumerate lists the grid codec-major, then resolution, then bitrate, each
// in the order given. A restricted profile only gets the requested
// resolutions it allows; the rest of its combinations are left out.
func Enumerate(profiles []ffmpeg.Profile, resolutions []media.Resolution, bitrates []int) ([]Point, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no codec profiles given")
	}
	if len(resolutions) == 0 {
		return nil, errors.New("no resolutions given")
	}
	if len(bitrates) == 0 {
		return nil, errors.New("no bitrates given")
	}

	labels := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if labels[p.Label] {
			return nil, fmt.Errorf("duplicate codec label %q", p.Label)
		}
		labels[p.Label] = true
	}

	seenRes := make(map[media.Resolution]bool, len(resolutions))
	for _, r := range resolutions {
		if !r.Valid() {
			return nil, fmt.Errorf("invalid resolution %s", r)
		}
		if seenRes[r] {
			return nil, fmt.Errorf("duplicate resolution %s", r)
		}
		seenRes[r] = true
	}

	seenRate := make(map[int]bool, len(bitrates))
	for _, b := range bitrates {
		if b <= 0 {
			return nil, fmt.Errorf("bitrate must be positive, got %d", b)
		}
		if seenRate[b] {
			return nil, fmt.Errorf("duplicate bitrate %d", b)
		}
		seenRate[b] = true
	}

	var points []Point
	for _, prof := range profiles {
		for _, res := range resolutions {
			if !prof.Allows(res) {
				continue
			}
			for _, kbps := range bitrates {
				points = append(points, Point{
					Index:       len(points),
					Profile:     prof,
					Resolution:  res,
					BitrateKbps: kbps,
				})
			}
		}
	}
	return points, nil
}
