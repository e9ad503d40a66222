package results

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gwlsn/codecbench/internal/media"
)

// MeasurementHeader is the column layout of the measurement table.
var MeasurementHeader = []string{
	"filename", "filesize", "codec", "compression_time",
	"compression_ratio", "resolution", "bitrate_kbps", "PSNR",
}

// FrameHeader is the column layout of the frame-composition table.
var FrameHeader = []string{"filename", "B_frames", "I_frames", "P_frames"}

// Measurement is one row of the measurement table: the outcome of one
// sweep point.
type Measurement struct {
	Filename         string
	FileSize         int64
	Codec            string
	CompressionTime  time.Duration // Encoder wall clock, stored as seconds
	CompressionRatio float64
	Resolution       media.Resolution
	BitrateKbps      int
	PSNR             float64
}

// Record returns the CSV fields in MeasurementHeader order.
func (m Measurement) Record() []string {
	return []string{
		m.Filename,
		strconv.FormatInt(m.FileSize, 10),
		m.Codec,
		formatFloat(m.CompressionTime.Seconds()),
		formatFloat(m.CompressionRatio),
		m.Resolution.String(),
		strconv.Itoa(m.BitrateKbps),
		formatFloat(m.PSNR),
	}
}

func parseMeasurement(rec []string) (Measurement, error) {
	var m Measurement
	var err error

	m.Filename = rec[0]
	if m.FileSize, err = strconv.ParseInt(rec[1], 10, 64); err != nil {
		return m, fmt.Errorf("filesize %q: %w", rec[1], err)
	}
	m.Codec = rec[2]
	secs, err := strconv.ParseFloat(rec[3], 64)
	if err != nil {
		return m, fmt.Errorf("compression_time %q: %w", rec[3], err)
	}
	m.CompressionTime = time.Duration(secs * float64(time.Second))
	if m.CompressionRatio, err = strconv.ParseFloat(rec[4], 64); err != nil {
		return m, fmt.Errorf("compression_ratio %q: %w", rec[4], err)
	}
	if m.Resolution, err = media.ParseResolution(rec[5]); err != nil {
		return m, err
	}
	if m.BitrateKbps, err = strconv.Atoi(rec[6]); err != nil {
		return m, fmt.Errorf("bitrate_kbps %q: %w", rec[6], err)
	}
	if m.PSNR, err = strconv.ParseFloat(rec[7], 64); err != nil {
		return m, fmt.Errorf("PSNR %q: %w", rec[7], err)
	}
	return m, nil
}

// FrameCount is one row of the frame-composition table.
type FrameCount struct {
	Filename      string
	Bidirectional int
	Intra         int
	Predicted     int
}

// Record returns the CSV fields in FrameHeader order.
func (c FrameCount) Record() []string {
	return []string{
		c.Filename,
		strconv.Itoa(c.Bidirectional),
		strconv.Itoa(c.Intra),
		strconv.Itoa(c.Predicted),
	}
}

func parseFrameCount(rec []string) (FrameCount, error) {
	c := FrameCount{Filename: rec[0]}
	counts := []*int{&c.Bidirectional, &c.Intra, &c.Predicted}
	for i, dst := range counts {
		n, err := strconv.Atoi(rec[i+1])
		if err != nil {
			return c, fmt.Errorf("%s %q: %w", FrameHeader[i+1], rec[i+1], err)
		}
		*dst = n
	}
	return c, nil
}

// MeasurementWriter appends measurements to a Table.
type MeasurementWriter struct {
	table *Table
}

// OpenMeasurements opens (or creates) the measurement table at path.
func OpenMeasurements(path string) (*MeasurementWriter, error) {
	t, err := Open(path, MeasurementHeader)
	if err != nil {
		return nil, err
	}
	return &MeasurementWriter{table: t}, nil
}

// Write appends one measurement row.
func (w *MeasurementWriter) Write(m Measurement) error {
	return w.table.Append(m.Record())
}

func (w *MeasurementWriter) Path() string { return w.table.Path() }

func (w *MeasurementWriter) Close() error { return w.table.Close() }

// FrameWriter appends frame compositions to a Table.
type FrameWriter struct {
	table *Table
}

// OpenFrameCounts opens (or creates) the frame-composition table at path.
func OpenFrameCounts(path string) (*FrameWriter, error) {
	t, err := Open(path, FrameHeader)
	if err != nil {
		return nil, err
	}
	return &FrameWriter{table: t}, nil
}

// Write appends one frame-composition row.
func (w *FrameWriter) Write(c FrameCount) error {
	return w.table.Append(c.Record())
}

func (w *FrameWriter) Path() string { return w.table.Path() }

func (w *FrameWriter) Close() error { return w.table.Close() }

// ReadMeasurements loads the measurement table at path in file order.
func ReadMeasurements(path string) ([]Measurement, error) {
	rows, err := readTable(path, MeasurementHeader)
	if err != nil {
		return nil, err
	}
	out := make([]Measurement, 0, len(rows))
	for i, rec := range rows {
		m, err := parseMeasurement(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ReadFrameCounts loads the frame-composition table at path in file order.
func ReadFrameCounts(path string) ([]FrameCount, error) {
	rows, err := readTable(path, FrameHeader)
	if err != nil {
		return nil, err
	}
	out := make([]FrameCount, 0, len(rows))
	for i, rec := range rows {
		c, err := parseFrameCount(rec)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", path, i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// formatFloat writes the shortest exact decimal, with inf/nan spelled the
// way strconv.ParseFloat reads them back.
func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	case math.IsNaN(f):
		return "nan"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
