// Package overlay blocks mouse input over the whole screen except for a
// whitelist of pass-through regions. During the flatten window the trader can
// reach the close-position controls and nothing else.
package overlay

import (
	"sync"

	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

// Gate owns the lifetime of at most one overlay surface. Open replaces any
// surface already showing; Close is idempotent.
type Gate struct {
	factory domain.OverlayFactory
	logger  *zap.Logger

	mu      sync.Mutex
	surface domain.OverlaySurface
}

// NewGate creates a gate over the given surface factory.
func NewGate(factory domain.OverlayFactory, logger *zap.Logger) *Gate {
	return &Gate{factory: factory, logger: logger}
}

// Open shows the overlay with click-through holes over the pass-through
// regions. An empty or nil list blocks the entire screen.
func (g *Gate) Open(passThrough []domain.Region) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.surface != nil {
		if err := g.surface.Close(); err != nil {
			g.logger.Warn("closing previous overlay", zap.Error(err))
		}
		g.surface = nil
	}

	s, err := g.factory.Show(passThrough)
	if err != nil {
		return err
	}
	g.surface = s

	g.logger.Info("overlay opened", zap.Int("pass_through_regions", len(passThrough)))
	return nil
}

// Close tears the overlay down. Safe to call when nothing is showing.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.surface == nil {
		return nil
	}
	err := g.surface.Close()
	g.surface = nil
	if err != nil {
		return err
	}
	g.logger.Info("overlay closed")
	return nil
}

// Active reports whether an overlay surface is currently showing.
func (g *Gate) Active() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.surface != nil
}

// HitTest decides what happens to a click at screen point (x, y): true means
// the click passes through to the application beneath, false means the
// overlay swallows it. Region edges are pass-through.
func HitTest(passThrough []domain.Region, x, y int) bool {
	for _, r := range passThrough {
		if r.Contains(x, y) {
			return true
		}
	}
	return false
}
