// Package verify proves that the external blocker actually blocks before any
// lockout is allowed to depend on it. A block name that was never observed
// locking is worthless at the worst possible moment, so verification runs a
// short real block and scans the blocker's own window for evidence.
package verify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// blockerWindowTitle is the title substring of the external blocker's UI.
const blockerWindowTitle = "Cold Turkey"

// verificationMinutes is the duration of the probe block. Short enough to be
// harmless, long enough to observe.
const verificationMinutes = 1

// blockingIndicators are phrases the blocker UI shows while a block is live.
// Matching any of them counts as proof.
var blockingIndicators = []string{
	"for a few seconds",
	"for a minute",
	"seconds left",
	"minutes left",
	"locked",
	"blocked",
}

// Config tunes the verification polling.
type Config struct {
	PollInterval time.Duration
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 20 * time.Second
	}
	return c
}

// Gate runs blocker verification and maintains the verified allow-list.
type Gate struct {
	cfg     Config
	blocker domain.Blocker
	windows domain.WindowController
	repo    domain.ConfigRepository
	logger  *zap.Logger
}

// NewGate creates a verification gate.
func NewGate(cfg Config, blocker domain.Blocker, windows domain.WindowController,
	repo domain.ConfigRepository, logger *zap.Logger) *Gate {
	return &Gate{
		cfg:     cfg.withDefaults(),
		blocker: blocker,
		windows: windows,
		repo:    repo,
		logger:  logger,
	}
}

// Verified reports whether the block name is already on the allow-list.
func (g *Gate) Verified(blockName string) (bool, error) {
	blocks, err := g.repo.VerifiedBlocks()
	if err != nil {
		return false, err
	}
	for _, b := range blocks {
		if b.BlockName == blockName {
			return true, nil
		}
	}
	return false, nil
}

// Verify starts a probe block and watches the blocker UI for proof that it
// took effect. On success the block name is appended to the allow-list. An
// already verified name is a no-op.
func (g *Gate) Verify(ctx context.Context, blockName string) error {
	ok, err := g.Verified(blockName)
	if err != nil {
		return err
	}
	if ok {
		g.logger.Info("block already verified", zap.String("block", blockName))
		return nil
	}

	g.logger.Info("verifying blocker",
		zap.String("block", blockName),
		zap.String("path", g.blocker.Path()))

	if err := g.blocker.Launch(); err != nil {
		return fmt.Errorf("launching blocker UI: %w", err)
	}

	if err := g.blocker.StartBlock(blockName, verificationMinutes); err != nil {
		return fmt.Errorf("starting probe block: %w", err)
	}

	if err := g.awaitEvidence(ctx, blockName); err != nil {
		return err
	}

	if err := g.repo.AppendVerifiedBlock(domain.VerifiedBlock{
		BlockName:  blockName,
		VerifiedAt: time.Now(),
	}); err != nil {
		return fmt.Errorf("persisting verified block: %w", err)
	}

	g.logger.Info("blocker verified", zap.String("block", blockName))
	return nil
}

// awaitEvidence polls the blocker window text until a blocking indicator
// appears or the timeout expires.
func (g *Gate) awaitEvidence(ctx context.Context, blockName string) error {
	deadline := time.Now().Add(g.cfg.Timeout)
	ticker := time.NewTicker(g.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if h, ok := g.windows.FindWindowByTitle(blockerWindowTitle); ok {
			if err := g.windows.BringToFront(h); err != nil {
				g.logger.Debug("could not focus blocker window", zap.Error(err))
			}
			text, err := g.windows.WindowText(h)
			if err != nil {
				g.logger.Debug("reading blocker window text", zap.Error(err))
			} else if indicator, found := matchIndicator(text); found {
				g.logger.Info("blocking evidence found",
					zap.String("block", blockName),
					zap.String("indicator", indicator))
				return nil
			}
		}

		if time.Now().After(deadline) {
			return domain.ErrVerificationFailed
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func matchIndicator(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, indicator := range blockingIndicators {
		if strings.Contains(lower, indicator) {
			return indicator, true
		}
	}
	return "", false
}
