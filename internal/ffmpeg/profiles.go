package ffmpeg

import (
	"fmt"
	"slices"

	"github.com/gwlsn/codecbench/internal/media"
	"github.com/gwlsn/codecbench/internal/naming"
)

// Profile is a named encoder configuration in the sweep.
type Profile struct {
	Label       string             `yaml:"label"`                 // Display name, used in artifact names (e.g. "h264")
	Encoder     string             `yaml:"encoder"`               // FFmpeg codec id (e.g. "libx264")
	Container   string             `yaml:"container,omitempty"`   // Output extension; derived from Encoder when empty
	Resolutions []media.Resolution `yaml:"resolutions,omitempty"` // Allowed subset; empty = any
	Classify    bool               `yaml:"classify,omitempty"`    // Include in the frame-composition pass
}

// legacyAVIEncoders cannot be muxed into MP4 and are written to AVI instead.
var legacyAVIEncoders = []string{"h261"}

// DefaultContainer returns the container used for an encoder when a
// profile does not name one.
func DefaultContainer(encoder string) string {
	if slices.Contains(legacyAVIEncoders, encoder) {
		return "avi"
	}
	return "mp4"
}

// ContainerExt returns the profile's container, falling back to the
// encoder default.
func (p Profile) ContainerExt() string {
	if p.Container != "" {
		return p.Container
	}
	return DefaultContainer(p.Encoder)
}

// Restricted reports whether the profile only supports some resolutions.
func (p Profile) Restricted() bool {
	return len(p.Resolutions) > 0
}

// Allows reports whether the profile may be encoded at res.
func (p Profile) Allows(res media.Resolution) bool {
	if !p.Restricted() {
		return true
	}
	return slices.Contains(p.Resolutions, res)
}

// Validate checks that the profile is usable for encoding and naming.
func (p Profile) Validate() error {
	if err := naming.ValidateLabel(p.Label); err != nil {
		return err
	}
	if p.Encoder == "" {
		return fmt.Errorf("profile %s: encoder is empty", p.Label)
	}
	for _, r := range p.Resolutions {
		if !r.Valid() {
			return fmt.Errorf("profile %s: invalid resolution %s", p.Label, r)
		}
	}
	return nil
}

// DefaultProfiles returns the standard benchmark codec set. h261 is limited
// to CIF and QCIF, the only sizes the format defines.
func DefaultProfiles() []Profile {
	return []Profile{
		{
			Label:   "h261",
			Encoder: "h261",
			Resolutions: []media.Resolution{
				media.MustParseResolution("352x288"),
				media.MustParseResolution("176x144"),
			},
			Classify: true,
		},
		{Label: "mpeg1", Encoder: "mpeg1video", Classify: true},
		{Label: "mpeg4", Encoder: "mpeg4", Classify: true},
		{Label: "h264", Encoder: "libx264"},
		{Label: "h265", Encoder: "libx265"},
	}
}

// DefaultResolutions returns the standard sweep resolutions, largest first.
func DefaultResolutions() []media.Resolution {
	return []media.Resolution{
		media.MustParseResolution("1920x1080"),
		media.MustParseResolution("1280x720"),
		media.MustParseResolution("720x480"),
		media.MustParseResolution("352x288"),
		media.MustParseResolution("176x144"),
	}
}

// DefaultBitrates returns the standard sweep bitrates in kbps.
func DefaultBitrates() []int {
	return []int{100, 200, 300, 400, 500, 750, 1000, 1250, 1500, 2000, 2500, 3000, 3500, 4000, 5000, 7500, 10000, 15000}
}

// FindProfile returns the profile with the given label.
func FindProfile(profiles []Profile, label string) (Profile, bool) {
	for _, p := range profiles {
		if p.Label == label {
			return p, true
		}
	}
	return Profile{}, false
}
