package cmd

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiolibrelab/ghostrec/internal/capture"
	"github.com/audiolibrelab/ghostrec/internal/device"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio capture devices",
	Long: `Show the audio device the agent would record from and, where ffmpeg can
enumerate them (DirectShow, PulseAudio), every audio capture device available.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
		defer cancel()
		return listDevices(ctx)
	},
}

func listDevices(ctx context.Context) error {
	provider := newDeviceProvider(capture.ResolveFFmpeg(cfg))

	fmt.Printf("🎙  Audio Devices (%s, provider: %s)\n", runtime.GOOS, provider.GetType())
	fmt.Printf("═══════════════════════════════════════\n\n")

	if lister, ok := provider.(device.Lister); ok {
		devices, err := lister.ListAudioDevices(ctx)
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		fmt.Printf("📋 %s AUDIO DEVICES (%d found):\n", strings.ToUpper(string(provider.GetType())), len(devices))
		for i, name := range devices {
			fmt.Printf("  %d. %s\n", i+1, name)
		}
		fmt.Println()
	}

	name, err := provider.DefaultAudioDevice(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("✅ Recording device: %s\n", name)
	fmt.Printf("\n💡 Override with capture.audio_device in the config file\n")
	return nil
}

// newDeviceProvider discovers devices with the ffmpeg binary used for capture
func newDeviceProvider(ffmpeg string) device.Provider {
	return device.NewProvider(cfg, ffmpeg)
}
