package capture

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/audiolibrelab/ghostrec/internal/config"
)

// ResolveFFmpeg returns the configured ffmpeg, else a copy bundled next to
// the agent executable under ffmpeg/bin, else "ffmpeg" from PATH.
func ResolveFFmpeg(cfg *config.Config) string {
	if cfg.Capture.FFmpegPath != "" {
		return cfg.Capture.FFmpegPath
	}

	binary := "ffmpeg"
	if runtime.GOOS == "windows" {
		binary = "ffmpeg.exe"
	}
	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "ffmpeg", "bin", binary)
		if _, err := os.Stat(bundled); err == nil {
			return bundled
		}
	}
	return "ffmpeg"
}

// BuildArgs assembles the screen+audio capture command line writing to outputFile.
func BuildArgs(ffmpeg string, c config.CaptureConfig, audioDevice, outputFile string) []string {
	args := []string{
		ffmpeg,
		"-hide_banner",
		"-f", c.VideoFormat,
		"-framerate", strconv.Itoa(c.FrameRate),
		"-i", c.VideoInput,
		"-f", c.AudioFormat,
		"-i", audioInput(c.AudioFormat, audioDevice),
		"-vcodec", c.VideoCodec,
		"-acodec", c.AudioCodec,
		"-pix_fmt", c.PixelFormat,
		"-preset", c.Preset,
		"-y",
		outputFile,
	}
	return args
}

func audioInput(format, device string) string {
	switch format {
	case "dshow":
		return "audio=" + device
	case "avfoundation":
		return ":" + device
	default:
		return device
	}
}
