// Package naming owns the artifact filename scheme. The encoder uses it to
// decide where an artifact is written and the frame pass uses it to
// recognize artifacts in the output directory, so both agree on one format.
package naming

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gwlsn/codecbench/internal/media"
)

// SchemeVersion identifies the current filename layout. Bump it when the
// layout changes; Parse only understands the current version.
const SchemeVersion = 1

// separator joins the fields of an artifact name. Codec labels may not
// contain it.
const separator = "_"

// ErrUnrecognizedName is returned by Parse for names outside the scheme.
var ErrUnrecognizedName = errors.New("unrecognized artifact name")

// Identity is everything encoded in an artifact filename.
type Identity struct {
	Reference   string // reference basename without extension
	Codec       string // codec label
	Resolution  media.Resolution
	BitrateKbps int
	Container   string // extension without dot
}

// ReferenceStem returns the reference basename without directory or extension.
func ReferenceStem(referencePath string) string {
	base := filepath.Base(referencePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ValidateLabel checks that a codec label can round-trip through the scheme.
func ValidateLabel(label string) error {
	if label == "" {
		return fmt.Errorf("codec label is empty")
	}
	if strings.Contains(label, separator) {
		return fmt.Errorf("codec label %q must not contain %q", label, separator)
	}
	if strings.ContainsAny(label, `/\.`) {
		return fmt.Errorf("codec label %q must not contain path or extension characters", label)
	}
	return nil
}

// Name returns the artifact filename for id:
//
//	{reference}_{codec}_{WxH}_{kbps}k.{container}
func (id Identity) Name() string {
	return fmt.Sprintf("%s_%s_%s_%dk.%s",
		id.Reference, id.Codec, id.Resolution, id.BitrateKbps, id.Container)
}

// ArtifactName builds the identity for an encode and returns its filename.
func ArtifactName(referencePath, codec string, res media.Resolution, bitrateKbps int, container string) string {
	return Identity{
		Reference:   ReferenceStem(referencePath),
		Codec:       codec,
		Resolution:  res,
		BitrateKbps: bitrateKbps,
		Container:   container,
	}.Name()
}

// ArtifactPath joins ArtifactName onto outputDir.
func ArtifactPath(outputDir, referencePath, codec string, res media.Resolution, bitrateKbps int, container string) string {
	return filepath.Join(outputDir, ArtifactName(referencePath, codec, res, bitrateKbps, container))
}

// Parse recovers the identity from an artifact filename (directory is
// ignored). Fields are split from the right so reference names may contain
// underscores.
func Parse(name string) (Identity, error) {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if len(ext) < 2 {
		return Identity{}, fmt.Errorf("%w: %s: missing extension", ErrUnrecognizedName, base)
	}
	stem := strings.TrimSuffix(base, ext)

	parts := strings.Split(stem, separator)
	if len(parts) < 4 {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnrecognizedName, base)
	}
	n := len(parts)

	rate, ok := strings.CutSuffix(parts[n-1], "k")
	if !ok {
		return Identity{}, fmt.Errorf("%w: %s: bitrate field %q lacks k suffix", ErrUnrecognizedName, base, parts[n-1])
	}
	kbps, err := strconv.Atoi(rate)
	if err != nil || kbps <= 0 {
		return Identity{}, fmt.Errorf("%w: %s: bad bitrate %q", ErrUnrecognizedName, base, parts[n-1])
	}

	res, err := media.ParseResolution(parts[n-2])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %s: %v", ErrUnrecognizedName, base, err)
	}

	codec := parts[n-3]
	reference := strings.Join(parts[:n-3], separator)
	if codec == "" || reference == "" {
		return Identity{}, fmt.Errorf("%w: %s", ErrUnrecognizedName, base)
	}

	id := Identity{
		Reference:   reference,
		Codec:       codec,
		Resolution:  res,
		BitrateKbps: kbps,
		Container:   ext[1:],
	}
	// Only canonical names are artifacts: "+500k" or "0500k" would name a
	// different file than the one this identity produces.
	if id.Name() != base {
		return Identity{}, fmt.Errorf("%w: %s: not in canonical form", ErrUnrecognizedName, base)
	}
	return id, nil
}
