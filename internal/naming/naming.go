package naming

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// TimestampLayout renders timestamps as YYMMDD-HHMMSS.
const TimestampLayout = "060102-150405"

var ErrFinalize = errors.New("failed to finalize recording")

// BuildFileName returns {project}_{interviewer}_{sid}_{YYMMDD-HHMMSS}_{host}.{ext}.
// Characters that are not valid in file names are replaced with '-'.
func BuildFileName(project, interviewer, sid string, ts time.Time, host, ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%s_%s_%s_%s_%s.%s",
		cleanFileName(project),
		cleanFileName(interviewer),
		cleanFileName(sid),
		ts.Format(TimestampLayout),
		cleanFileName(host),
		cleanFileName(ext))
}

// cleanFileName replaces path separators, reserved characters and control
// characters so that every part stays inside its directory.
func cleanFileName(name string) string {
	var result strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < 0x20 || r == 0x7f:
			result.WriteRune('-')
		case strings.ContainsRune(`/\:*?"<>|`, r):
			result.WriteRune('-')
		default:
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "UNKNOWN"
	}
	return result.String()
}

// HostIdentity names this machine in recording file names.
func HostIdentity() string {
	if name := os.Getenv("COMPUTERNAME"); name != "" {
		return name
	}
	if name, err := os.Hostname(); err == nil && name != "" {
		return name
	}
	return "Unknown"
}

// Layout places recordings in a staging directory while they are captured
// and moves them into the output directory once complete. Both directories
// should live on the same volume so the move is a rename.
type Layout struct {
	OutputDir  string
	StagingDir string
}

func NewLayout(outputDir, stagingDir string) *Layout {
	if stagingDir == "" {
		stagingDir = outputDir
	}
	return &Layout{
		OutputDir:  outputDir,
		StagingDir: stagingDir,
	}
}

// EnsureDirs creates the output and staging directories if absent.
func (l *Layout) EnsureDirs() error {
	for _, dir := range []string{l.OutputDir, l.StagingDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (l *Layout) InProgressPath(fileName string) string {
	return filepath.Join(l.StagingDir, fileName)
}

func (l *Layout) CommittedPath(fileName string) string {
	return filepath.Join(l.OutputDir, fileName)
}

// Finalize moves a completed recording from the staging directory into the
// output directory and returns its committed path. A missing source is an
// error, and an existing committed file is never overwritten.
func (l *Layout) Finalize(inProgress string) (string, error) {
	info, err := os.Stat(inProgress)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFinalize, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrFinalize, inProgress)
	}

	committed := l.CommittedPath(filepath.Base(inProgress))
	if filepath.Clean(committed) == filepath.Clean(inProgress) {
		return committed, nil
	}

	if _, err := os.Lstat(committed); err == nil {
		return "", fmt.Errorf("%w: %s already exists", ErrFinalize, committed)
	}

	if err := os.Rename(inProgress, committed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrFinalize, err)
	}

	if info.Size() == 0 {
		slog.Warn("Finalized recording is empty", "file", committed)
	}
	slog.Debug("Recording moved to output directory", "from", inProgress, "to", committed, "size", info.Size())
	return committed, nil
}
