package ffmpeg

import (
	"context"
	"strings"
	"unicode"
)

// FrameComposition counts the picture types of an artifact's first video
// stream. Symbols other than I, P and B land in Ignored only.
type FrameComposition struct {
	Intra         int `json:"i_frames"`
	Predicted     int `json:"p_frames"`
	Bidirectional int `json:"b_frames"`
	Ignored       int `json:"ignored"`
}

// Tracked returns I + P + B.
func (c FrameComposition) Tracked() int {
	return c.Intra + c.Predicted + c.Bidirectional
}

// Classify counts the I/P/B pictures in the first video stream of path.
// A stream with no decodable frames counts as all zeros. Only a failing
// ffprobe yields a *ProbeError, which callers treat as recoverable.
func (p *Prober) Classify(ctx context.Context, path string) (*FrameComposition, error) {
	output, err := p.run(ctx, path,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "frame=pict_type",
		"-of", "csv=p=0",
	)
	if err != nil {
		return nil, err
	}

	comp := ParsePictureTypes(string(output))
	return &comp, nil
}

// ParsePictureTypes tallies a picture-type listing. Tokens may be separated
// by any mix of whitespace and commas.
func ParsePictureTypes(output string) FrameComposition {
	var comp FrameComposition
	tokens := strings.FieldsFunc(output, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, tok := range tokens {
		switch tok {
		case "I":
			comp.Intra++
		case "P":
			comp.Predicted++
		case "B":
			comp.Bidirectional++
		default:
			comp.Ignored++
		}
	}
	return comp
}
