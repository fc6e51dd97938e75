package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "cmaf", cfg.Encoder.Format)
	require.Equal(t, 4, cfg.Encoder.SegmentSeconds)
	require.Equal(t, 15, cfg.Encoder.LiveWindow)
	require.Equal(t, 500*time.Millisecond, cfg.Watcher.StabilityInterval)
	require.Equal(t, 10*time.Second, cfg.Encoder.StopGrace)
	require.False(t, cfg.UploadsEnabled())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("HLS_FORMAT", "mpegts")
	t.Setenv("HLS_LIST_SIZE", "30")
	t.Setenv("STABILITY_INTERVAL", "2s")
	t.Setenv("S3_ENDPOINT", "https://account.r2.cloudflarestorage.com")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Port)
	require.Equal(t, "mpegts", cfg.Encoder.Format)
	require.Equal(t, 30, cfg.Encoder.LiveWindow)
	require.Equal(t, 2*time.Second, cfg.Watcher.StabilityInterval)
	require.True(t, cfg.UploadsEnabled())
}

func TestInvalidEnvValueFallsBack(t *testing.T) {
	t.Setenv("HLS_TIME", "not-a-number")
	t.Setenv("STOP_GRACE", "soon")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, 4, cfg.Encoder.SegmentSeconds)
	require.Equal(t, 10*time.Second, cfg.Encoder.StopGrace)
}

func TestInvalidFormatRejected(t *testing.T) {
	t.Setenv("HLS_FORMAT", "webm")

	_, err := Load("")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HLS_FORMAT")
}

func TestYAMLFileAndEnvPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "aircast.yaml")
	content := `
port: 7000
encoder:
  format: fmp4
  bitrate: 256k
storage:
  bucket: my-bucket
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Environment wins over the file.
	t.Setenv("PORT", "7070")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 7070, cfg.Port)
	require.Equal(t, "fmp4", cfg.Encoder.Format)
	require.Equal(t, "256k", cfg.Encoder.Bitrate)
	require.Equal(t, "my-bucket", cfg.Storage.Bucket)
	// Untouched fields keep defaults.
	require.Equal(t, 15, cfg.Encoder.LiveWindow)
}

func TestMissingFileFails(t *testing.T) {
	_, err := Load("/nonexistent/aircast.yaml")
	require.Error(t, err)
}
