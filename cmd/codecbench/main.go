package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	codecbench "github.com/gwlsn/codecbench"
	"github.com/gwlsn/codecbench/internal/config"
	"github.com/gwlsn/codecbench/internal/logger"
)

const defaultConfigPath = "codecbench.yaml"

// Persistent flags shared by every command
var (
	configPath string
	logLevel   string
	logFormat  string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logger.Error("codecbench failed", "error", err)
		stop()
		os.Exit(1) //nolint:gocritic // stop called explicitly above
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "codecbench",
		Short:         "Benchmark video codecs across resolutions and bitrates",
		Long:          `codecbench encodes a reference video with every configured codec, resolution and bitrate, then records encode time, size, compression ratio, PSNR and I/P/B frame composition.`,
		Version:       codecbench.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./"+defaultConfigPath+")")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "", "Override log format (text, json, auto)")

	root.AddCommand(
		newSweepCmd(),
		newClassifyCmd(),
		newMergeCmd(),
		newProfilesCmd(),
		newRunsCmd(),
		newInitCmd(),
	)
	return root
}

// resolveConfigPath picks the config file: flag, then CODECBENCH_CONFIG,
// then the default in the working directory.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("CODECBENCH_CONFIG"); envPath != "" {
		return envPath
	}
	return defaultConfigPath
}

// loadConfig loads the config, applies environment and flag overrides and
// initializes the logger.
func loadConfig() (*config.Config, string, error) {
	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Init("info", logger.FormatAuto)
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Override with environment variables
	if envFFmpeg := os.Getenv("FFMPEG_PATH"); envFFmpeg != "" {
		cfg.FFmpegPath = envFFmpeg
	}
	if envFFprobe := os.Getenv("FFPROBE_PATH"); envFFprobe != "" {
		cfg.FFprobePath = envFFprobe
	}
	if envTemp := os.Getenv("TEMP_PATH"); envTemp != "" {
		cfg.TempPath = envTemp
	}

	// Flags win over both
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	logger.Init(cfg.LogLevel, cfg.LogFormat)
	return cfg, cfgPath, nil
}

func printBanner(cfg *config.Config, cfgPath string) {
	fmt.Fprintln(os.Stderr, "╔═══════════════════════════════════════════════════════════╗")
	fmt.Fprintln(os.Stderr, "║                        CODECBENCH                         ║")
	fmt.Fprintln(os.Stderr, "║         Codec × resolution × bitrate benchmarking         ║")
	versionLine := fmt.Sprintf("v%s", codecbench.Version)
	padding := 59 - len(versionLine)
	fmt.Fprintf(os.Stderr, "║%*s%s%*s║\n", padding/2, "", versionLine, (padding+1)/2, "")
	fmt.Fprintln(os.Stderr, "╚═══════════════════════════════════════════════════════════╝")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintf(os.Stderr, "  Reference:    %s\n", cfg.Reference)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.OutputDir)
	fmt.Fprintf(os.Stderr, "  Config:       %s\n", cfgPath)
	fmt.Fprintf(os.Stderr, "  Results:      %s\n", cfg.ResultsFile)
	fmt.Fprintf(os.Stderr, "  Frames:       %s\n", cfg.FramesFile)
	if cfg.CatalogFile != "" {
		fmt.Fprintf(os.Stderr, "  Catalog:      %s\n", cfg.CatalogFile)
	}
	fmt.Fprintf(os.Stderr, "  Temp path:    %s\n", cfg.GetTempDir())
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Workers)
	fmt.Fprintf(os.Stderr, "  FFmpeg:       %s\n", cfg.FFmpegPath)
	fmt.Fprintf(os.Stderr, "  FFprobe:      %s\n", cfg.FFprobePath)
	fmt.Fprintln(os.Stderr)
}
