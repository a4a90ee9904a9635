package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/audiolibrelab/ghostrec/internal/capture"
	"github.com/audiolibrelab/ghostrec/internal/config"
	"github.com/audiolibrelab/ghostrec/internal/control"
	"github.com/audiolibrelab/ghostrec/internal/dispatcher"
	"github.com/audiolibrelab/ghostrec/internal/naming"
	"github.com/audiolibrelab/ghostrec/internal/server"
	"github.com/audiolibrelab/ghostrec/internal/supervisor"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int

	projectName   string
	sampleID      string
	interviewerID string

	logFile io.Closer
)

var rootCmd = &cobra.Command{
	Use:   "ghostrec",
	Short: "Background screen and audio recording agent",
	Long: `GhostRec runs in the background and records the screen and the default
audio device with ffmpeg when told to over its control channel.

Commands are sent with 'ghostrec send <start|pause|resume|stop|exit>' or by
writing the token to the control pipe. Recordings are named
{project}_{interviewer}_{sid}_{YYMMDD-HHMMSS}_{host}.mp4.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			setupLogging(verboseLevel, nil)
			return fmt.Errorf("failed to load config: %w", err)
		}

		// only the agent appends to the log file
		if cmd == cmd.Root() {
			setupLogging(verboseLevel, &cfg.Log)
		} else {
			setupLogging(verboseLevel, nil)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logFile != nil {
			logFile.Close()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(cmd.Context())
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/ghostrec.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=ffmpeg output")

	rootCmd.Flags().StringVar(&projectName, "Project", "UNKNOWN_PROJECT", "project name")
	rootCmd.Flags().StringVar(&sampleID, "SID", "UNKNOWN_SID", "sample ID")
	rootCmd.Flags().StringVar(&interviewerID, "InterviewerID", "", "interviewer ID (current user if not provided)")

	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(configCmd)
}

// runAgent wires the control front-ends to the dispatcher and blocks until
// the dispatcher has processed Exit.
func runAgent(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}

	userName := currentUser()
	slog.Info("GhostRec agent starting", "user", userName)
	if interviewerID == "" {
		interviewerID = userName
	}

	layout := naming.NewLayout(cfg.Output.Directory, cfg.Output.StagingDirectory)
	if err := layout.EnsureDirs(); err != nil {
		return err
	}

	ffmpeg := capture.ResolveFFmpeg(cfg)
	slog.Debug("Using ffmpeg", "path", ffmpeg)

	deviceCtx, cancelDevice := context.WithTimeout(parent, 15*time.Second)
	audioDevice, err := newDeviceProvider(ffmpeg).DefaultAudioDevice(deviceCtx)
	cancelDevice()
	if err != nil {
		return fmt.Errorf("cannot record without a capture device: %w", err)
	}
	slog.Info("Default audio device", "device", audioDevice)

	mailbox := control.NewMailbox()
	registry := prometheus.NewRegistry()

	d := dispatcher.New(dispatcher.Options{
		Identity: dispatcher.Identity{
			Project:       projectName,
			InterviewerID: interviewerID,
			SID:           sampleID,
		},
		Host:     naming.HostIdentity(),
		Format:   cfg.Output.Format,
		Mailbox:  mailbox,
		Launcher: supervisor.New(cfg.Control.StopTimeout),
		Layout:   layout,
		BuildCommand: func(outputFile string) []string {
			return capture.BuildArgs(ffmpeg, cfg.Capture, audioDevice, outputFile)
		},
		Env:          ffmpegEnv(verboseLevel),
		PollInterval: cfg.Control.PollInterval,
		Registerer:   registry,
	})

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// front-ends stop accepting commands once the dispatcher terminates
	go func() {
		select {
		case <-d.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	// Ctrl+C and service stop requests behave like an exit command
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("Received signal, exiting", "signal", sig.String())
			mailbox.Set(control.Exit)
		case <-ctx.Done():
		}
	}()

	listener := control.NewListener(cfg.Control.Endpoint, cfg.Control.RetryBackoff, mailbox)
	go listener.Run(ctx)

	if cfg.Control.HTTPAddr != "" {
		srv := server.New(cfg.Control.HTTPAddr, mailbox, d, registry)
		go func() {
			if err := srv.Start(ctx); err != nil {
				slog.Error("HTTP control server failed", "error", err)
			}
		}()
	}

	slog.Info("Waiting for commands", "endpoint", cfg.Control.Endpoint,
		"project", projectName, "interviewer", interviewerID, "sid", sampleID)

	// Run returns only after Exit, so the capture process is already reaped
	d.Run(context.WithoutCancel(ctx))
	slog.Info("GhostRec agent stopped", "status", d.State())
	return nil
}

// currentUser returns the login name without a Windows domain prefix
func currentUser() string {
	u, err := user.Current()
	if err != nil || u.Username == "" {
		if name := os.Getenv("USERNAME"); name != "" {
			return name
		}
		return os.Getenv("USER")
	}
	name := u.Username
	if i := strings.LastIndex(name, `\`); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// setupLogging configures slog based on the verbose level. When logCfg is
// set, records are also appended to the log file.
func setupLogging(level int, logCfg *config.LogConfig) {
	var slogLevel slog.Level
	switch level {
	case 0:
		slogLevel = slog.LevelInfo
	case 1, 2:
		slogLevel = slog.LevelDebug
	default:
		slogLevel = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if logCfg != nil && logCfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   logCfg.File,
			MaxSize:    logCfg.MaxSizeMB,
			MaxBackups: logCfg.MaxBackups,
		}
		logFile = lj
		w = io.MultiWriter(os.Stderr, lj)
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, opts)))
}

// ffmpegEnv raises ffmpeg's own log level at verbose level 2
func ffmpegEnv(level int) []string {
	if level >= 2 {
		return []string{"FFREPORT=level=40"}
	}
	return nil
}
