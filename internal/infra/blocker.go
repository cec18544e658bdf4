// Package infra implements infrastructure concerns (screen, OCR, windows,
// blocker, persistence).
package infra

import (
	"os"
	"os/exec"
	"strconv"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// CommandRunner abstracts command execution for testing.
type CommandRunner interface {
	// Run executes a command and waits for it to complete.
	Run(name string, args ...string) error

	// Start spawns a command without waiting.
	Start(name string, args ...string) error
}

// RealCommandRunner executes real system commands.
type RealCommandRunner struct{}

// Run executes a command and waits for it to complete.
func (r *RealCommandRunner) Run(name string, args ...string) error {
	return exec.Command(name, args...).Run()
}

// Start spawns a command without waiting for it.
func (r *RealCommandRunner) Start(name string, args ...string) error {
	return exec.Command(name, args...).Start()
}

// FileChecker abstracts file system checks for testing.
type FileChecker interface {
	Exists(path string) bool
}

// RealFileChecker checks the real filesystem.
type RealFileChecker struct{}

// Exists checks if a file/directory exists.
func (r *RealFileChecker) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ColdTurkeyBlocker implements domain.Blocker against the Cold Turkey
// Blocker command line. Invocations are fire-and-forget: the CLI prints
// nothing useful and its exit code does not reflect whether the block took,
// which is exactly why the verification gate exists.
type ColdTurkeyBlocker struct {
	path        string
	cmdRunner   CommandRunner
	fileChecker FileChecker
	logger      *zap.Logger
}

// NewColdTurkeyBlocker creates a blocker for the executable at path.
func NewColdTurkeyBlocker(path string, logger *zap.Logger) *ColdTurkeyBlocker {
	return &ColdTurkeyBlocker{
		path:        path,
		cmdRunner:   &RealCommandRunner{},
		fileChecker: &RealFileChecker{},
		logger:      logger,
	}
}

// NewColdTurkeyBlockerWithDeps creates a blocker with injectable dependencies (for testing).
func NewColdTurkeyBlockerWithDeps(path string, logger *zap.Logger, cmdRunner CommandRunner, fileChecker FileChecker) *ColdTurkeyBlocker {
	return &ColdTurkeyBlocker{
		path:        path,
		cmdRunner:   cmdRunner,
		fileChecker: fileChecker,
		logger:      logger,
	}
}

// StartBlock issues `<path> -start <blockName> -lock <minutes>`.
func (b *ColdTurkeyBlocker) StartBlock(blockName string, minutes int) error {
	if !b.fileChecker.Exists(b.path) {
		return &domain.LaunchError{Executable: b.path, Inner: os.ErrNotExist}
	}

	b.logger.Info("invoking blocker",
		zap.String("block", blockName),
		zap.Int("minutes", minutes))

	args := []string{"-start", blockName, "-lock", strconv.Itoa(minutes)}
	if err := b.cmdRunner.Start(b.path, args...); err != nil {
		return &domain.LaunchError{Executable: b.path, Inner: err}
	}
	return nil
}

// Launch starts the blocker's own UI without any block arguments.
func (b *ColdTurkeyBlocker) Launch() error {
	if !b.fileChecker.Exists(b.path) {
		return &domain.LaunchError{Executable: b.path, Inner: os.ErrNotExist}
	}
	if err := b.cmdRunner.Start(b.path); err != nil {
		return &domain.LaunchError{Executable: b.path, Inner: err}
	}
	return nil
}

// Path returns the configured blocker executable path.
func (b *ColdTurkeyBlocker) Path() string {
	return b.path
}

// Ensure ColdTurkeyBlocker implements domain.Blocker.
var _ domain.Blocker = (*ColdTurkeyBlocker)(nil)
