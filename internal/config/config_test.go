package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ghostrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
output:
  directory: /srv/recordings
  format: .mkv
capture:
  frame_rate: 30
  audio_device: "Stereo Mix (Realtek Audio)"
control:
  endpoint: /tmp/test-ghostrec.sock
  poll_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/recordings", cfg.Output.Directory)
	assert.Equal(t, filepath.Join("/srv/recordings", ".inprogress"), cfg.Output.StagingDirectory)
	assert.Equal(t, "mkv", cfg.Output.Format)
	assert.Equal(t, 30, cfg.Capture.FrameRate)
	assert.Equal(t, "Stereo Mix (Realtek Audio)", cfg.Capture.AudioDevice)
	assert.Equal(t, "/tmp/test-ghostrec.sock", cfg.Control.Endpoint)
	assert.Equal(t, 250*time.Millisecond, cfg.Control.PollInterval)

	// untouched keys keep their defaults
	assert.Equal(t, "libx264", cfg.Capture.VideoCodec)
	assert.Equal(t, "aac", cfg.Capture.AudioCodec)
	assert.Equal(t, "yuv420p", cfg.Capture.PixelFormat)
	assert.Equal(t, "ultrafast", cfg.Capture.Preset)
	assert.Equal(t, time.Second, cfg.Control.RetryBackoff)
	assert.Equal(t, 10*time.Second, cfg.Control.StopTimeout)
	assert.Equal(t, "log.txt", cfg.Log.File)
}

func TestLoad_MissingDefaultFileUsesDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 15, cfg.Capture.FrameRate)
	assert.Equal(t, "mp4", cfg.Output.Format)
	assert.Equal(t, time.Second, cfg.Control.PollInterval)
	assert.NotEmpty(t, cfg.Control.Endpoint)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error reading config file")
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	path := writeConfig(t, "capture:\n  frame_rate: 30\n")
	t.Setenv("GHOSTREC_CAPTURE_FRAME_RATE", "5")
	t.Setenv("GHOSTREC_OUTPUT_FORMAT", "mkv")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Capture.FrameRate)
	assert.Equal(t, "mkv", cfg.Output.Format)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errMsg  string
	}{
		{"zero frame rate", "capture:\n  frame_rate: 0\n", "capture.frame_rate"},
		{"negative poll interval", "control:\n  poll_interval: -1s\n", "control.poll_interval"},
		{"unknown provider", "capture:\n  device_provider: wasapi\n", "unknown provider"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, test.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), test.errMsg)
		})
	}
}

func TestValidate_RequiresEndpoint(t *testing.T) {
	cfg, err := Load(writeConfig(t, "output:\n  directory: /tmp/rec\n"))
	require.NoError(t, err)

	cfg.Control.Endpoint = ""
	require.Error(t, cfg.Validate())
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/Videos/GhostRec", filepath.Join(homeDir, "Videos", "GhostRec")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"~", "~"}, // bare tilde is left alone
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, expandPath(test.input), "expandPath(%q)", test.input)
	}
}
