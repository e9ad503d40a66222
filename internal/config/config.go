package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gwlsn/codecbench/internal/ffmpeg"
	"github.com/gwlsn/codecbench/internal/logger"
	"github.com/gwlsn/codecbench/internal/media"
)

type Config struct {
	// Reference is the source video every artifact is encoded from and compared against
	Reference string `yaml:"reference"`

	// OutputDir receives the encoded artifacts (created if missing)
	OutputDir string `yaml:"output_dir"`

	// ResultsFile is the measurement table written by the sweep
	ResultsFile string `yaml:"results_file"`

	// FramesFile is the frame-composition table written by the classify pass
	FramesFile string `yaml:"frames_file"`

	// MergedFile is where the merge command writes the joined table
	MergedFile string `yaml:"merged_file"`

	// CatalogFile is the SQLite catalog of runs and imported tables.
	// Empty disables run bookkeeping.
	CatalogFile string `yaml:"catalog_file"`

	// MetricsFile, if set, receives a Prometheus textfile after each run
	MetricsFile string `yaml:"metrics_file"`

	// TempPath is where per-comparison work dirs are created
	// If empty, the system temp dir is used
	TempPath string `yaml:"temp_path"`

	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// LogLevel is one of debug, info, warn, error (default info)
	LogLevel string `yaml:"log_level"`

	// LogFormat is text, json or auto (default auto)
	LogFormat string `yaml:"log_format"`

	// Workers is the number of sweep points processed concurrently (default 1)
	Workers int `yaml:"workers"`

	// EncodeTimeout bounds each ffmpeg invocation. Zero means no limit.
	EncodeTimeout time.Duration `yaml:"encode_timeout"`

	// Resume skips points that already have a row in ResultsFile
	Resume bool `yaml:"resume"`

	// Codecs are the encoder profiles to sweep, in sweep order
	Codecs []ffmpeg.Profile `yaml:"codecs"`

	// Resolutions to encode at, in sweep order
	Resolutions []media.Resolution `yaml:"resolutions"`

	// Bitrates are the target video bitrates in kbps, in sweep order
	Bitrates []int `yaml:"bitrates_kbps"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Reference:   "videos/BigBuckBunny.y4m",
		OutputDir:   "output",
		ResultsFile: "compression_results.csv",
		FramesFile:  "b_i_p_frames.csv",
		MergedFile:  "merged_results.csv",
		CatalogFile: "codecbench.db",
		TempPath:    "", // system temp dir
		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",
		LogLevel:    "info",
		LogFormat:   logger.FormatAuto,
		Workers:     1,
		Codecs:      ffmpeg.DefaultProfiles(),
		Resolutions: ffmpeg.DefaultResolutions(),
		Bitrates:    ffmpeg.DefaultBitrates(),
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Apply defaults for empty values
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = logger.FormatAuto
	}
	if cfg.ResultsFile == "" {
		cfg.ResultsFile = "compression_results.csv"
	}
	if cfg.FramesFile == "" {
		cfg.FramesFile = "b_i_p_frames.csv"
	}
	if cfg.MergedFile == "" {
		cfg.MergedFile = "merged_results.csv"
	}

	return cfg, nil
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate reports the first problem that would make a sweep impossible
func (c *Config) Validate() error {
	if c.Reference == "" {
		return fmt.Errorf("reference is not set")
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir is not set")
	}
	if len(c.Codecs) == 0 {
		return fmt.Errorf("no codecs configured")
	}
	seen := make(map[string]bool, len(c.Codecs))
	for _, p := range c.Codecs {
		if err := p.Validate(); err != nil {
			return err
		}
		if seen[p.Label] {
			return fmt.Errorf("duplicate codec label %q", p.Label)
		}
		seen[p.Label] = true
	}
	if len(c.Resolutions) == 0 {
		return fmt.Errorf("no resolutions configured")
	}
	for _, r := range c.Resolutions {
		if !r.Valid() {
			return fmt.Errorf("invalid resolution %s", r)
		}
	}
	if len(c.Bitrates) == 0 {
		return fmt.Errorf("no bitrates configured")
	}
	for _, b := range c.Bitrates {
		if b <= 0 {
			return fmt.Errorf("bitrate must be positive, got %d", b)
		}
	}
	if c.EncodeTimeout < 0 {
		return fmt.Errorf("encode_timeout must not be negative")
	}
	switch c.LogFormat {
	case logger.FormatAuto, logger.FormatText, logger.FormatJSON:
	default:
		return fmt.Errorf("unknown log_format %q", c.LogFormat)
	}
	return nil
}

// GetTempDir returns the parent directory for comparison work dirs
func (c *Config) GetTempDir() string {
	if c.TempPath != "" {
		return c.TempPath
	}
	return os.TempDir()
}
