package device

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
)

// DShow lists DirectShow devices through ffmpeg and picks the first audio
// device, which is the system default capture endpoint.
type DShow struct {
	FFmpegPath string
}

var quotedName = regexp.MustCompile(`"([^"]+)"`)

func (d *DShow) DefaultAudioDevice(ctx context.Context) (string, error) {
	devices, err := d.ListAudioDevices(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDefaultDevice, err)
	}
	if len(devices) == 0 {
		return "", fmt.Errorf("%w: ffmpeg reported no DirectShow audio devices", ErrNoDefaultDevice)
	}
	slog.Debug("DirectShow audio devices", "devices", devices)
	return devices[0], nil
}

func (d *DShow) ListAudioDevices(ctx context.Context) ([]string, error) {
	ffmpeg := d.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}

	cmd := exec.CommandContext(ctx, ffmpeg, "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	// ffmpeg exits non-zero because "dummy" is not a real input
	output, err := cmd.CombinedOutput()
	if len(output) == 0 && err != nil {
		return nil, fmt.Errorf("failed to list DirectShow devices: %w", err)
	}

	return parseDShowAudioDevices(string(output)), nil
}

func (d *DShow) GetType() ProviderType {
	return ProviderTypeDShow
}

// parseDShowAudioDevices handles both the sectioned listing of older ffmpeg
// builds and the "(audio)" suffix of newer ones.
func parseDShowAudioDevices(output string) []string {
	var devices []string
	inAudioSection := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.Contains(line, "DirectShow audio devices"):
			inAudioSection = true
			continue
		case strings.Contains(line, "DirectShow video devices"):
			inAudioSection = false
			continue
		case strings.Contains(line, "Alternative name"):
			continue
		}

		match := quotedName.FindStringSubmatch(line)
		if match == nil {
			continue
		}

		if strings.HasSuffix(line, "(audio)") || (inAudioSection && !strings.HasSuffix(line, "(video)")) {
			devices = append(devices, match[1])
		}
	}

	return devices
}

// Pulse asks the PulseAudio/PipeWire server for its default source.
type Pulse struct{}

func (p *Pulse) DefaultAudioDevice(ctx context.Context) (string, error) {
	output, err := exec.CommandContext(ctx, "pactl", "get-default-source").Output()
	if err != nil {
		return "", fmt.Errorf("%w: pactl get-default-source: %v", ErrNoDefaultDevice, err)
	}

	name := strings.TrimSpace(string(output))
	if name == "" {
		return "", ErrNoDefaultDevice
	}
	return name, nil
}

// ListAudioDevices returns the server's capture sources. Monitor sources of
// output sinks are skipped.
func (p *Pulse) ListAudioDevices(ctx context.Context) ([]string, error) {
	output, err := exec.CommandContext(ctx, "pactl", "list", "short", "sources").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list PulseAudio sources: %w", err)
	}
	return parsePulseSources(string(output)), nil
}

func parsePulseSources(output string) []string {
	var sources []string
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 || strings.HasSuffix(fields[1], ".monitor") {
			continue
		}
		sources = append(sources, fields[1])
	}
	return sources
}

func (p *Pulse) GetType() ProviderType {
	return ProviderTypePulse
}
