// Package config loads the daemon configuration: defaults, then an optional
// YAML file, then environment variables, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full daemon configuration.
type Config struct {
	Port         int    `yaml:"port"`
	DataDir      string `yaml:"dataDir"`
	DatabasePath string `yaml:"databasePath"`
	LogLevel     string `yaml:"logLevel"`

	Encoder EncoderConfig `yaml:"encoder"`
	Watcher WatcherConfig `yaml:"watcher"`
	Storage StorageConfig `yaml:"storage"`
}

// EncoderConfig configures the ffmpeg subprocess.
type EncoderConfig struct {
	BinaryPath     string        `yaml:"binaryPath"`
	InputFormat    string        `yaml:"inputFormat"`
	Input          string        `yaml:"input"`
	Bitrate        string        `yaml:"bitrate"`
	SegmentSeconds int           `yaml:"segmentSeconds"`
	LiveWindow     int           `yaml:"liveWindow"`
	Format         string        `yaml:"format"` // mpegts | fmp4 | cmaf
	StopGrace      time.Duration `yaml:"stopGrace"`
}

// WatcherConfig configures the output directory watcher.
type WatcherConfig struct {
	StabilityInterval time.Duration `yaml:"stabilityInterval"`
}

// StorageConfig configures the remote object store. Uploads are disabled
// when Endpoint is empty.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"accessKeyId"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	QueueSize       int    `yaml:"queueSize"`
}

func defaults() Config {
	return Config{
		Port:         8080,
		DataDir:      "./data",
		DatabasePath: "./data/aircast.db",
		LogLevel:     "info",
		Encoder: EncoderConfig{
			BinaryPath:     "ffmpeg",
			InputFormat:    "avfoundation",
			Input:          ":0",
			Bitrate:        "192k",
			SegmentSeconds: 4,
			LiveWindow:     15,
			Format:         "cmaf",
			StopGrace:      10 * time.Second,
		},
		Watcher: WatcherConfig{
			StabilityInterval: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Region:    "auto",
			Bucket:    "aircast-hls",
			QueueSize: 256,
		},
	}
}

// Load builds the configuration. path may be empty (no file).
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 -- operator-provided path
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	c.Port = ParseInt("PORT", c.Port)
	c.DataDir = ParseString("DATA_DIR", c.DataDir)
	c.DatabasePath = ParseString("DATABASE_PATH", c.DatabasePath)
	c.LogLevel = ParseString("LOG_LEVEL", c.LogLevel)

	c.Encoder.BinaryPath = ParseString("FFMPEG_BIN", c.Encoder.BinaryPath)
	c.Encoder.InputFormat = ParseString("FFMPEG_INPUT_FMT", c.Encoder.InputFormat)
	c.Encoder.Input = ParseString("FFMPEG_INPUT", c.Encoder.Input)
	c.Encoder.Bitrate = ParseString("FFMPEG_BITRATE", c.Encoder.Bitrate)
	c.Encoder.SegmentSeconds = ParseInt("HLS_TIME", c.Encoder.SegmentSeconds)
	c.Encoder.LiveWindow = ParseInt("HLS_LIST_SIZE", c.Encoder.LiveWindow)
	c.Encoder.Format = ParseString("HLS_FORMAT", c.Encoder.Format)
	c.Encoder.StopGrace = ParseDuration("STOP_GRACE", c.Encoder.StopGrace)

	c.Watcher.StabilityInterval = ParseDuration("STABILITY_INTERVAL", c.Watcher.StabilityInterval)

	c.Storage.Endpoint = ParseString("S3_ENDPOINT", c.Storage.Endpoint)
	c.Storage.Region = ParseString("S3_REGION", c.Storage.Region)
	c.Storage.Bucket = ParseString("S3_BUCKET", c.Storage.Bucket)
	c.Storage.AccessKeyID = ParseString("S3_ACCESS_KEY_ID", c.Storage.AccessKeyID)
	c.Storage.SecretAccessKey = ParseString("S3_SECRET_ACCESS_KEY", c.Storage.SecretAccessKey)
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	switch c.Encoder.Format {
	case "mpegts", "fmp4", "cmaf":
	default:
		return fmt.Errorf("invalid HLS_FORMAT %q: must be mpegts, fmp4 or cmaf", c.Encoder.Format)
	}
	if c.Encoder.SegmentSeconds <= 0 {
		return fmt.Errorf("HLS_TIME must be positive, got %d", c.Encoder.SegmentSeconds)
	}
	if c.Encoder.LiveWindow <= 0 {
		return fmt.Errorf("HLS_LIST_SIZE must be positive, got %d", c.Encoder.LiveWindow)
	}
	if c.Encoder.StopGrace <= 0 {
		return fmt.Errorf("STOP_GRACE must be positive, got %s", c.Encoder.StopGrace)
	}
	if c.Watcher.StabilityInterval <= 0 {
		return fmt.Errorf("STABILITY_INTERVAL must be positive, got %s", c.Watcher.StabilityInterval)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// UploadsEnabled reports whether a remote object store is configured.
func (c *Config) UploadsEnabled() bool {
	return c.Storage.Endpoint != ""
}
