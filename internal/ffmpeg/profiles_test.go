package ffmpeg

import (
	"testing"

	"github.com/gwlsn/codecbench/internal/media"
)

func TestDefaultContainer(t *testing.T) {
	tests := []struct {
		encoder string
		want    string
	}{
		{"h261", "avi"},
		{"mpeg1video", "mp4"},
		{"mpeg4", "mp4"},
		{"libx264", "mp4"},
		{"libx265", "mp4"},
	}
	for _, tt := range tests {
		if got := DefaultContainer(tt.encoder); got != tt.want {
			t.Errorf("DefaultContainer(%s) = %s, want %s", tt.encoder, got, tt.want)
		}
	}
}

func TestProfileContainerOverride(t *testing.T) {
	p := Profile{Label: "h264", Encoder: "libx264", Container: "mkv"}
	if p.ContainerExt() != "mkv" {
		t.Errorf("ContainerExt() = %s, want mkv", p.ContainerExt())
	}
}

func TestProfileAllows(t *testing.T) {
	h261, ok := FindProfile(DefaultProfiles(), "h261")
	if !ok {
		t.Fatal("h261 profile missing")
	}
	h264, _ := FindProfile(DefaultProfiles(), "h264")

	for _, res := range DefaultResolutions() {
		wantH261 := res.String() == "352x288" || res.String() == "176x144"
		if h261.Allows(res) != wantH261 {
			t.Errorf("h261.Allows(%s) = %v, want %v", res, h261.Allows(res), wantH261)
		}
		if !h264.Allows(res) {
			t.Errorf("h264 should allow %s", res)
		}
	}
}

func TestDefaultProfilesValidate(t *testing.T) {
	for _, p := range DefaultProfiles() {
		if err := p.Validate(); err != nil {
			t.Errorf("profile %s invalid: %v", p.Label, err)
		}
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
	}{
		{"empty label", Profile{Encoder: "libx264"}},
		{"underscore label", Profile{Label: "h264_fast", Encoder: "libx264"}},
		{"empty encoder", Profile{Label: "h264"}},
		{"bad resolution", Profile{Label: "h261", Encoder: "h261", Resolutions: []media.Resolution{{Width: 0, Height: 144}}}},
	}
	for _, tt := range tests {
		if err := tt.profile.Validate(); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}
}

func TestClassifiedProfiles(t *testing.T) {
	var labels []string
	for _, p := range DefaultProfiles() {
		if p.Classify {
			labels = append(labels, p.Label)
		}
	}
	want := []string{"h261", "mpeg1", "mpeg4"}
	if len(labels) != len(want) {
		t.Fatalf("classified = %v, want %v", labels, want)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("classified = %v, want %v", labels, want)
		}
	}
}
