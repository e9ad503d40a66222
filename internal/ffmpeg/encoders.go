package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ListEncoders returns the video encoders the ffmpeg build provides, keyed
// by codec id.
func ListEncoders(ctx context.Context, ffmpegPath string) (map[string]bool, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, "-encoders", "-hide_banner")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	return parseEncoderList(string(output)), nil
}

// parseEncoderList reads the table printed by ffmpeg -encoders. Rows follow
// a dashed separator line; the first column is a flag string whose leading
// V marks a video encoder.
func parseEncoderList(output string) map[string]bool {
	encoders := make(map[string]bool)
	inTable := false
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if !inTable {
			if len(fields) == 1 && strings.HasPrefix(fields[0], "---") {
				inTable = true
			}
			continue
		}
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		encoders[fields[1]] = true
	}
	return encoders
}

// MissingEncoders returns the profiles whose encoder is not in available.
func MissingEncoders(available map[string]bool, profiles []Profile) []Profile {
	var missing []Profile
	for _, p := range profiles {
		if !available[p.Encoder] {
			missing = append(missing, p)
		}
	}
	return missing
}
