package ffmpeg

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ContainerInfo summarizes the MP4 box structure of an artifact.
type ContainerInfo struct {
	MajorBrand   string        `json:"major_brand"`
	Fragmented   bool          `json:"fragmented"`
	SampleEntry  string        `json:"sample_entry"` // e.g. avc1, hvc1, mp4v
	VideoSamples int           `json:"video_samples"`
	Duration     time.Duration `json:"duration"`
}

// InspectMP4 parses an MP4 artifact and reports its video track. It fails
// when the file has no moov box or no video track, which is what a
// truncated or unflushed encode looks like.
func InspectMP4(path string) (*ContainerInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	return inspectMP4(f)
}

func inspectMP4(r io.Reader) (*ContainerInfo, error) {
	mp4File, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("decode mp4: %w", err)
	}

	info := &ContainerInfo{Fragmented: mp4File.IsFragmented()}
	if mp4File.Ftyp != nil {
		info.MajorBrand = mp4File.Ftyp.MajorBrand()
	}

	moov := mp4File.Moov
	if moov == nil && mp4File.Init != nil {
		moov = mp4File.Init.Moov
	}
	if moov == nil {
		return nil, fmt.Errorf("no moov box")
	}

	for _, trak := range moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Hdlr.HandlerType != "vide" {
			continue
		}
		if mdhd := trak.Mdia.Mdhd; mdhd != nil && mdhd.Timescale > 0 {
			info.Duration = time.Duration(float64(mdhd.Duration) / float64(mdhd.Timescale) * float64(time.Second))
		}
		if minf := trak.Mdia.Minf; minf != nil && minf.Stbl != nil {
			if stsd := minf.Stbl.Stsd; stsd != nil && len(stsd.Children) > 0 {
				info.SampleEntry = stsd.Children[0].Type()
			}
			if stsz := minf.Stbl.Stsz; stsz != nil {
				info.VideoSamples = int(stsz.SampleNumber)
			}
		}
		return info, nil
	}

	return nil, fmt.Errorf("no video track found")
}
