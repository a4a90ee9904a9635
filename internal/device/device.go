package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/audiolibrelab/ghostrec/internal/config"
)

var ErrNoDefaultDevice = errors.New("no default audio device found")

// ProviderType names a device discovery backend.
type ProviderType string

const (
	ProviderTypeAuto   ProviderType = "auto"
	ProviderTypeStatic ProviderType = "static"
	ProviderTypeDShow  ProviderType = "dshow"
	ProviderTypePulse  ProviderType = "pulse"
)

// Provider resolves the audio capture device handed to ffmpeg.
type Provider interface {
	DefaultAudioDevice(ctx context.Context) (string, error)
	GetType() ProviderType
}

// Lister is implemented by providers that can enumerate capture devices.
type Lister interface {
	ListAudioDevices(ctx context.Context) ([]string, error)
}

// NewProvider picks the provider from configuration. A configured
// capture.audio_device always wins over discovery. ffmpegPath is the binary
// the agent records with, so discovery sees the same devices.
func NewProvider(cfg *config.Config, ffmpegPath string) Provider {
	if cfg.Capture.AudioDevice != "" {
		return &Static{Name: cfg.Capture.AudioDevice}
	}

	switch determineProvider(cfg) {
	case ProviderTypeDShow:
		return &DShow{FFmpegPath: ffmpegPath}
	case ProviderTypePulse:
		return &Pulse{}
	default:
		return &Static{}
	}
}

func determineProvider(cfg *config.Config) ProviderType {
	switch ProviderType(strings.ToLower(cfg.Capture.DeviceProvider)) {
	case ProviderTypeDShow:
		return ProviderTypeDShow
	case ProviderTypePulse:
		return ProviderTypePulse
	case ProviderTypeStatic:
		return ProviderTypeStatic
	}

	switch runtime.GOOS {
	case "windows":
		return ProviderTypeDShow
	case "linux":
		return ProviderTypePulse
	default:
		return ProviderTypeStatic
	}
}

// Static returns a fixed device name.
type Static struct {
	Name string
}

func (s *Static) DefaultAudioDevice(ctx context.Context) (string, error) {
	if strings.TrimSpace(s.Name) == "" {
		return "", fmt.Errorf("%w: set capture.audio_device", ErrNoDefaultDevice)
	}
	return s.Name, nil
}

func (s *Static) GetType() ProviderType {
	return ProviderTypeStatic
}
