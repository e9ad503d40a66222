package psnr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrMalformedLog is returned when the stats log has no usable summary line.
var ErrMalformedLog = errors.New("malformed psnr log")

// Summary is the parsed final line of a psnr stats log.
type Summary struct {
	Frame   int               // Frame number, -1 when the line carries none
	MSEAvg  float64           // mse_avg, NaN when absent
	PSNRAvg float64           // psnr_avg; +Inf for identical frames
	Fields  map[string]string // Every key:value pair on the line
}

// ParseSummary reads a psnr stats log and parses its last non-empty line.
// Per-frame lines before it are skipped.
func ParseSummary(r io.Reader) (*Summary, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var last string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading psnr log: %w", err)
	}
	if last == "" {
		return nil, fmt.Errorf("%w: log is empty", ErrMalformedLog)
	}

	return ParseSummaryLine(last)
}

// ParseSummaryFile parses the summary line of the log at path.
func ParseSummaryFile(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	defer f.Close()

	return ParseSummary(f)
}

// ParseSummaryLine parses one "key:value key:value" stats line. The line
// must carry a numeric psnr_avg field.
func ParseSummaryLine(line string) (*Summary, error) {
	s := &Summary{Frame: -1, Fields: make(map[string]string)}
	for _, tok := range strings.Fields(line) {
		key, value, ok := strings.Cut(tok, ":")
		if !ok || key == "" {
			continue
		}
		s.Fields[key] = value
	}

	raw, ok := s.Fields["psnr_avg"]
	if !ok {
		return nil, fmt.Errorf("%w: no psnr_avg field in %q", ErrMalformedLog, line)
	}
	score, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: psnr_avg %q is not a number", ErrMalformedLog, raw)
	}
	s.PSNRAvg = score

	s.MSEAvg = math.NaN()
	if v, ok := s.Fields["mse_avg"]; ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			s.MSEAvg = f
		}
	}

	// ffmpeg writes "n:"; some builds and older logs use "frame:".
	for _, key := range []string{"n", "frame"} {
		if v, ok := s.Fields[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				s.Frame = n
				break
			}
		}
	}

	return s, nil
}
