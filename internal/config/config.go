package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Control ControlConfig `mapstructure:"control" yaml:"control"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

type OutputConfig struct {
	Directory        string `mapstructure:"directory" yaml:"directory"`
	StagingDirectory string `mapstructure:"staging_directory" yaml:"staging_directory"` // in-progress recordings, defaults to <directory>/.inprogress
	Format           string `mapstructure:"format" yaml:"format"`
}

type CaptureConfig struct {
	FFmpegPath     string `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	FrameRate      int    `mapstructure:"frame_rate" yaml:"frame_rate"`
	VideoFormat    string `mapstructure:"video_format" yaml:"video_format"` // gdigrab, x11grab, avfoundation
	VideoInput     string `mapstructure:"video_input" yaml:"video_input"`
	AudioFormat    string `mapstructure:"audio_format" yaml:"audio_format"` // dshow, pulse, avfoundation
	AudioDevice    string `mapstructure:"audio_device" yaml:"audio_device"` // overrides device discovery when set
	DeviceProvider string `mapstructure:"device_provider" yaml:"device_provider"`
	VideoCodec     string `mapstructure:"video_codec" yaml:"video_codec"`
	AudioCodec     string `mapstructure:"audio_codec" yaml:"audio_codec"`
	PixelFormat    string `mapstructure:"pixel_format" yaml:"pixel_format"`
	Preset         string `mapstructure:"preset" yaml:"preset"`
}

type ControlConfig struct {
	Endpoint     string        `mapstructure:"endpoint" yaml:"endpoint"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff" yaml:"retry_backoff"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	StopTimeout  time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
	HTTPAddr     string        `mapstructure:"http_addr" yaml:"http_addr"`
}

type LogConfig struct {
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
}

// DefaultConfigPath is used when --config is not given. A missing file at
// this location is not an error.
func DefaultConfigPath() string {
	return os.ExpandEnv("$HOME/.config/ghostrec.yaml")
}

// Load resolves the configuration from defaults, the optional YAML file and
// GHOSTREC_* environment variables, in increasing order of precedence.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GHOSTREC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = DefaultConfigPath()
	}
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !(errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)
	if cfg.Output.StagingDirectory == "" {
		cfg.Output.StagingDirectory = filepath.Join(cfg.Output.Directory, ".inprogress")
	}
	cfg.Output.StagingDirectory = expandPath(cfg.Output.StagingDirectory)
	cfg.Output.Format = strings.TrimPrefix(cfg.Output.Format, ".")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()

	v.SetDefault("output.directory", filepath.Join(home, "Videos", "GhostRec"))
	v.SetDefault("output.staging_directory", "")
	v.SetDefault("output.format", "mp4")

	v.SetDefault("capture.ffmpeg_path", "")
	v.SetDefault("capture.frame_rate", 15)
	v.SetDefault("capture.audio_device", "")
	v.SetDefault("capture.device_provider", "auto")
	v.SetDefault("capture.video_codec", "libx264")
	v.SetDefault("capture.audio_codec", "aac")
	v.SetDefault("capture.pixel_format", "yuv420p")
	v.SetDefault("capture.preset", "ultrafast")

	switch runtime.GOOS {
	case "windows":
		v.SetDefault("capture.video_format", "gdigrab")
		v.SetDefault("capture.video_input", "desktop")
		v.SetDefault("capture.audio_format", "dshow")
		v.SetDefault("control.endpoint", `\\.\pipe\GhostRecPipe`)
	case "darwin":
		v.SetDefault("capture.video_format", "avfoundation")
		v.SetDefault("capture.video_input", "1")
		v.SetDefault("capture.audio_format", "avfoundation")
		v.SetDefault("control.endpoint", filepath.Join(os.TempDir(), "ghostrec.sock"))
	default:
		v.SetDefault("capture.video_format", "x11grab")
		v.SetDefault("capture.video_input", ":0.0")
		v.SetDefault("capture.audio_format", "pulse")
		v.SetDefault("control.endpoint", filepath.Join(os.TempDir(), "ghostrec.sock"))
	}

	v.SetDefault("control.retry_backoff", time.Second)
	v.SetDefault("control.poll_interval", time.Second)
	v.SetDefault("control.stop_timeout", 10*time.Second)
	v.SetDefault("control.http_addr", "")

	v.SetDefault("log.file", "log.txt")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
}

// Validate checks the settings every component relies on.
func (c *Config) Validate() error {
	if c.Output.Directory == "" {
		return fmt.Errorf("output.directory is required")
	}
	if c.Output.Format == "" {
		return fmt.Errorf("output.format is required")
	}
	if c.Capture.FrameRate <= 0 {
		return fmt.Errorf("capture.frame_rate must be positive, got %d", c.Capture.FrameRate)
	}
	if c.Capture.VideoFormat == "" || c.Capture.AudioFormat == "" {
		return fmt.Errorf("capture.video_format and capture.audio_format are required")
	}
	switch strings.ToLower(c.Capture.DeviceProvider) {
	case "", "auto", "static", "dshow", "pulse":
	default:
		return fmt.Errorf("capture.device_provider: unknown provider '%s'", c.Capture.DeviceProvider)
	}
	if c.Control.Endpoint == "" {
		return fmt.Errorf("control.endpoint is required")
	}
	if c.Control.RetryBackoff <= 0 {
		return fmt.Errorf("control.retry_backoff must be positive")
	}
	if c.Control.PollInterval <= 0 {
		return fmt.Errorf("control.poll_interval must be positive")
	}
	if c.Control.StopTimeout <= 0 {
		return fmt.Errorf("control.stop_timeout must be positive")
	}
	return nil
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
