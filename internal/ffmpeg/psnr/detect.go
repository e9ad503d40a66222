package psnr

import (
	"os/exec"
	"strings"
)

var psnrAvailable bool

// DetectPSNR probes FFmpeg for the psnr filter.
// Must be called at startup after FFmpeg path is known.
func DetectPSNR(ffmpegPath string) {
	psnrAvailable = false

	cmd := exec.Command(ffmpegPath, "-hide_banner", "-filters")
	output, err := cmd.Output()
	if err != nil {
		return
	}

	psnrAvailable = hasFilter(string(output), "psnr")
}

// IsAvailable returns true if the psnr filter is available
func IsAvailable() bool {
	return psnrAvailable
}

// hasFilter scans `ffmpeg -filters` output, whose rows are
// "<flags> <name> <in->out> <description>".
func hasFilter(output, name string) bool {
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}
