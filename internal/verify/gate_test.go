package verify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

type fakeBlocker struct {
	launched  int
	started   []string
	minutes   []int
	launchErr error
	startErr  error
}

func (b *fakeBlocker) StartBlock(blockName string, minutes int) error {
	b.started = append(b.started, blockName)
	b.minutes = append(b.minutes, minutes)
	return b.startErr
}

func (b *fakeBlocker) Launch() error {
	b.launched++
	return b.launchErr
}

func (b *fakeBlocker) Path() string { return `C:\blocker.exe` }

// fakeWindows serves scripted window texts, one per WindowText call.
type fakeWindows struct {
	mu      sync.Mutex
	present bool
	texts   []string
	calls   int
}

func (w *fakeWindows) FindPlatformWindow(platform string) (domain.WindowHandle, bool) {
	return 0, false
}

func (w *fakeWindows) FindWindowByTitle(titlePart string) (domain.WindowHandle, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.present {
		return 0, false
	}
	return 9, true
}

func (w *fakeWindows) IsForeground(h domain.WindowHandle) bool { return true }
func (w *fakeWindows) IsMinimized(h domain.WindowHandle) bool  { return false }
func (w *fakeWindows) BringToFront(h domain.WindowHandle) error { return nil }

func (w *fakeWindows) WindowText(h domain.WindowHandle) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.calls
	w.calls++
	if i >= len(w.texts) {
		i = len(w.texts) - 1
	}
	if len(w.texts) == 0 {
		return "", nil
	}
	return w.texts[i], nil
}

type fakeRepo struct {
	blocks    []domain.VerifiedBlock
	appendErr error
}

func (r *fakeRepo) Load() (*domain.AppConfig, error) { return &domain.AppConfig{}, nil }
func (r *fakeRepo) Save(cfg *domain.AppConfig) error { return nil }

func (r *fakeRepo) VerifiedBlocks() ([]domain.VerifiedBlock, error) {
	return r.blocks, nil
}

func (r *fakeRepo) AppendVerifiedBlock(b domain.VerifiedBlock) error {
	if r.appendErr != nil {
		return r.appendErr
	}
	r.blocks = append(r.blocks, b)
	return nil
}

func newGate(blocker *fakeBlocker, windows *fakeWindows, repo *fakeRepo) *Gate {
	cfg := Config{PollInterval: 10 * time.Millisecond, Timeout: 200 * time.Millisecond}
	return NewGate(cfg, blocker, windows, repo, zap.NewNop())
}

func TestVerifySuccess(t *testing.T) {
	blocker := &fakeBlocker{}
	windows := &fakeWindows{present: true, texts: []string{
		"Cold Turkey Blocker",
		"Quantower is blocked for a minute",
	}}
	repo := &fakeRepo{}

	err := newGate(blocker, windows, repo).Verify(context.Background(), "Quantower")
	require.NoError(t, err)

	assert.Equal(t, 1, blocker.launched)
	require.Equal(t, []string{"Quantower"}, blocker.started)
	assert.Equal(t, []int{1}, blocker.minutes, "probe block runs for one minute")

	require.Len(t, repo.blocks, 1)
	assert.Equal(t, "Quantower", repo.blocks[0].BlockName)
	assert.False(t, repo.blocks[0].VerifiedAt.IsZero())
}

func TestVerifyIndicatorsCaseInsensitive(t *testing.T) {
	for _, text := range []string{
		"Ninja is LOCKED",
		"blocked until 14:30",
		"42 seconds left",
		"3 minutes left",
		"stay focused for a few seconds",
	} {
		windows := &fakeWindows{present: true, texts: []string{text}}
		repo := &fakeRepo{}
		err := newGate(&fakeBlocker{}, windows, repo).Verify(context.Background(), "Ninja")
		assert.NoError(t, err, "text %q should verify", text)
	}
}

func TestVerifyTimeoutWithoutEvidence(t *testing.T) {
	windows := &fakeWindows{present: true, texts: []string{"Cold Turkey settings"}}
	repo := &fakeRepo{}

	err := newGate(&fakeBlocker{}, windows, repo).Verify(context.Background(), "Quantower")
	assert.ErrorIs(t, err, domain.ErrVerificationFailed)
	assert.Empty(t, repo.blocks, "allow-list untouched on failure")
}

func TestVerifyNoBlockerWindow(t *testing.T) {
	windows := &fakeWindows{present: false}
	repo := &fakeRepo{}

	err := newGate(&fakeBlocker{}, windows, repo).Verify(context.Background(), "Quantower")
	assert.ErrorIs(t, err, domain.ErrVerificationFailed)
}

func TestVerifyAlreadyVerifiedSkipsProbe(t *testing.T) {
	blocker := &fakeBlocker{}
	repo := &fakeRepo{blocks: []domain.VerifiedBlock{{BlockName: "Quantower"}}}

	err := newGate(blocker, &fakeWindows{}, repo).Verify(context.Background(), "Quantower")
	require.NoError(t, err)
	assert.Zero(t, blocker.launched, "no probe for an already verified block")
	assert.Empty(t, blocker.started)
}

func TestVerifyLaunchFailure(t *testing.T) {
	blocker := &fakeBlocker{launchErr: errors.New("executable missing")}
	repo := &fakeRepo{}

	err := newGate(blocker, &fakeWindows{present: true}, repo).Verify(context.Background(), "Quantower")
	assert.Error(t, err)
	assert.Empty(t, repo.blocks)
}

func TestVerifyCancellation(t *testing.T) {
	windows := &fakeWindows{present: true, texts: []string{"nothing yet"}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := newGate(&fakeBlocker{}, windows, &fakeRepo{}).Verify(ctx, "Quantower")
	assert.ErrorIs(t, err, context.Canceled)
}
