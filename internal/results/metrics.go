package results

import (
	"fmt"
	"os"
)

// CompressionRatio returns referenceSize / artifactSize. The reference size
// must be that of the reference resampled to the artifact's resolution.
func CompressionRatio(referenceSize, artifactSize int64) (float64, error) {
	if artifactSize <= 0 {
		return 0, fmt.Errorf("artifact size must be positive, got %d", artifactSize)
	}
	if referenceSize <= 0 {
		return 0, fmt.Errorf("reference size must be positive, got %d", referenceSize)
	}
	return float64(referenceSize) / float64(artifactSize), nil
}

// FileSize returns the size in bytes of the regular file at path.
func FileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}
