package psnr

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestParseSummarySpecExample(t *testing.T) {
	log := "frame:42 mse_avg:10.2 psnr_avg:38.50 psnr_y:39.01\n"
	s, err := ParseSummary(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}
	if s.PSNRAvg != 38.50 {
		t.Errorf("PSNRAvg = %v, want 38.50", s.PSNRAvg)
	}
	if s.Frame != 42 {
		t.Errorf("Frame = %d, want 42", s.Frame)
	}
	if s.MSEAvg != 10.2 {
		t.Errorf("MSEAvg = %v, want 10.2", s.MSEAvg)
	}
}

func TestParseSummaryUsesLastLine(t *testing.T) {
	log := strings.Join([]string{
		"n:1 mse_avg:165.137 mse_y:180.44 psnr_avg:25.95 psnr_y:25.57",
		"n:2 mse_avg:150.001 mse_y:170.01 psnr_avg:26.37 psnr_y:25.83",
		"n:3 mse_avg:12.000 mse_y:13.50 psnr_avg:37.97 psnr_y:36.83",
		"",
		"",
	}, "\n")

	s, err := ParseSummary(strings.NewReader(log))
	if err != nil {
		t.Fatalf("ParseSummary failed: %v", err)
	}
	if s.PSNRAvg != 37.97 {
		t.Errorf("PSNRAvg = %v, want 37.97 from the last line", s.PSNRAvg)
	}
	if s.Frame != 3 {
		t.Errorf("Frame = %d, want 3", s.Frame)
	}
	if s.Fields["psnr_y"] != "36.83" {
		t.Errorf("Fields[psnr_y] = %q", s.Fields["psnr_y"])
	}
}

func TestParseSummaryLineInfinite(t *testing.T) {
	s, err := ParseSummaryLine("n:7 mse_avg:0.00 psnr_avg:inf")
	if err != nil {
		t.Fatalf("ParseSummaryLine failed: %v", err)
	}
	if !math.IsInf(s.PSNRAvg, 1) {
		t.Errorf("PSNRAvg = %v, want +Inf", s.PSNRAvg)
	}
}

func TestParseSummaryLineWithoutMSE(t *testing.T) {
	s, err := ParseSummaryLine("psnr_avg:41.2")
	if err != nil {
		t.Fatalf("ParseSummaryLine failed: %v", err)
	}
	if !math.IsNaN(s.MSEAvg) {
		t.Errorf("MSEAvg = %v, want NaN", s.MSEAvg)
	}
	if s.Frame != -1 {
		t.Errorf("Frame = %d, want -1", s.Frame)
	}
}

func TestParseSummaryMalformed(t *testing.T) {
	tests := []struct {
		name string
		log  string
	}{
		{"empty", ""},
		{"blank lines", "\n\n  \n"},
		{"missing field", "n:1 mse_avg:10.2 psnr_y:38.0\n"},
		{"non numeric", "n:1 psnr_avg:abc\n"},
		{"summary only in earlier line", "n:1 psnr_avg:30.0\nn:2 mse_avg:3.0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSummary(strings.NewReader(tt.log))
			if !errors.Is(err, ErrMalformedLog) {
				t.Errorf("expected ErrMalformedLog, got %v", err)
			}
		})
	}
}

func TestParseSummaryFileMissing(t *testing.T) {
	_, err := ParseSummaryFile("/nonexistent/psnr.log")
	if !errors.Is(err, ErrMalformedLog) {
		t.Errorf("expected ErrMalformedLog, got %v", err)
	}
}
