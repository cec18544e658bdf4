//go:build integration

package integration

import (
	"context"
	"image"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/extract"
	"github.com/gabework/tradeguard/internal/infra"
	"github.com/gabework/tradeguard/internal/monitor"
	"github.com/gabework/tradeguard/internal/overlay"
	"github.com/gabework/tradeguard/internal/platform"
	"github.com/gabework/tradeguard/internal/sequence"
	"github.com/gabework/tradeguard/internal/usecase"
	"github.com/gabework/tradeguard/internal/worker"
)

// scriptedOCR replays one text per sample, repeating the last.
type scriptedOCR struct {
	mu    sync.Mutex
	texts []string
	calls int
}

func (o *scriptedOCR) Recognize(img image.Image) (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.calls
	o.calls++
	if i >= len(o.texts) {
		i = len(o.texts) - 1
	}
	return o.texts[i], nil
}

type stubCapturer struct{}

func (stubCapturer) CaptureRegion(r domain.Region) (image.Image, error) {
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

func (stubCapturer) VirtualBounds() (domain.Region, error) {
	return domain.Region{X: 0, Y: 0, Width: 1920, Height: 1080}, nil
}

type stubWindows struct{}

func (stubWindows) FindPlatformWindow(platform string) (domain.WindowHandle, bool) { return 1, true }
func (stubWindows) FindWindowByTitle(titlePart string) (domain.WindowHandle, bool) { return 0, false }
func (stubWindows) IsForeground(h domain.WindowHandle) bool                        { return true }
func (stubWindows) IsMinimized(h domain.WindowHandle) bool                         { return false }
func (stubWindows) BringToFront(h domain.WindowHandle) error                       { return nil }
func (stubWindows) WindowText(h domain.WindowHandle) (string, error)               { return "", nil }

// spyRunner records blocker invocations instead of spawning processes.
type spyRunner struct {
	mu    sync.Mutex
	calls [][]string
}

func (r *spyRunner) Run(name string, args ...string) error { return nil }

func (r *spyRunner) Start(name string, args ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	return nil
}

func (r *spyRunner) invocations() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.calls))
	copy(out, r.calls)
	return out
}

type alwaysExists struct{}

func (alwaysExists) Exists(path string) bool { return true }

type stubOverlayFactory struct{}

type stubSurface struct{}

func (stubSurface) Close() error { return nil }

func (stubOverlayFactory) Show(passThrough []domain.Region) (domain.OverlaySurface, error) {
	return stubSurface{}, nil
}

type instantAck struct{}

func (instantAck) AwaitAcknowledgment(ctx context.Context, sessionID string) error { return nil }

type eventLog struct {
	mu     sync.Mutex
	events []domain.Event
}

func (l *eventLog) Notify(e domain.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofKind(kind domain.EventKind) []domain.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) states() []domain.SequenceState {
	var out []domain.SequenceState
	for _, e := range l.ofKind(domain.EventSequenceStateChanged) {
		out = append(out, e.State)
	}
	return out
}

const blockerPath = `C:\Program Files\Cold Turkey\Cold Turkey Blocker.exe`

type harness struct {
	sup        *usecase.Supervisor
	runner     *spyRunner
	events     *eventLog
	store      *infra.SQLSessionStore
	dispatcher *worker.Dispatcher
	loop       *monitor.Loop
}

func newHarness(dir string, verifiedBlocks []string, ocrTexts []string) *harness {
	logger := zap.NewNop()

	cfgRepo := infra.NewJSONConfigRepository(filepath.Join(dir, "config.json"), logger)
	for _, name := range verifiedBlocks {
		Expect(cfgRepo.AppendVerifiedBlock(domain.VerifiedBlock{
			BlockName: name, VerifiedAt: time.Now(),
		})).To(Succeed())
	}

	key, err := infra.GenerateKey()
	Expect(err).NotTo(HaveOccurred())
	store, err := infra.NewSQLSessionStore(dir, key)
	Expect(err).NotTo(HaveOccurred())

	runner := &spyRunner{}
	blocker := infra.NewColdTurkeyBlockerWithDeps(blockerPath, logger, runner, alwaysExists{})

	events := &eventLog{}
	gate := overlay.NewGate(stubOverlayFactory{}, logger)

	seqCfg := sequence.Config{FlattenDuration: 90 * time.Millisecond, TickInterval: 30 * time.Millisecond}
	seq := sequence.New(seqCfg, stubWindows{}, gate, blocker, instantAck{}, cfgRepo, store, events, logger)

	sup := usecase.NewSupervisor(platform.NewRegistry(), seq, store, logger)

	dispatcher := worker.NewDispatcher()
	loopRunner := worker.NewRunner(dispatcher, nil, logger)
	extractor := extract.New(&scriptedOCR{texts: ocrTexts}, logger)
	loop := monitor.NewLoop(stubCapturer{}, extractor, stubWindows{}, store,
		loopRunner, dispatcher, events, sup.HandleBreach, logger)
	sup.SetLoop(loop)

	return &harness{sup: sup, runner: runner, events: events, store: store, dispatcher: dispatcher, loop: loop}
}

func (h *harness) close() {
	h.loop.Stop()
	h.dispatcher.Close()
	Expect(h.store.Close()).To(Succeed())
}

func monitoringConfig() domain.MonitoringConfig {
	return domain.MonitoringConfig{
		Platform:       "Quantower",
		Region:         domain.Region{X: 10, Y: 10, Width: 200, Height: 40},
		Threshold:      decimal.RequireFromString("-500"),
		LockoutMinutes: 15,
		FlattenRegions: []domain.Region{{X: 800, Y: 600, Width: 120, Height: 40}},
		Interval:       15 * time.Millisecond,
	}
}

var _ = Describe("Breach to lockout", func() {
	var (
		dir string
		h   *harness
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
	})

	AfterEach(func() {
		h.close()
	})

	Context("with a verified block and a deteriorating P&L", func() {
		BeforeEach(func() {
			h = newHarness(dir, []string{"Quantower"}, []string{"-100", "-300", "-520"})
			Expect(h.sup.StartMonitoring(monitoringConfig())).To(Succeed())
		})

		It("reports the non-breaching samples, then locks the platform", func() {
			Eventually(h.sup.SessionDone, "5s", "20ms").ShouldNot(BeNil())
			Eventually(h.sup.SessionDone(), "5s").Should(BeClosed())

			samples := h.events.ofKind(domain.EventSampleTaken)
			Expect(len(samples)).To(BeNumerically(">=", 3))

			breaches := h.events.ofKind(domain.EventThresholdBreached)
			Expect(breaches).To(HaveLen(1))
			Expect(breaches[0].Reading.Parsed.Equal(decimal.RequireFromString("-520"))).To(BeTrue())

			Expect(h.events.states()).To(Equal([]domain.SequenceState{
				domain.StateForegrounding,
				domain.StateWarning,
				domain.StateFlattening,
				domain.StateInvoking,
				domain.StateLocked,
			}))
			Expect(h.events.ofKind(domain.EventFlattenTick)).NotTo(BeEmpty())
			Expect(h.events.ofKind(domain.EventLockoutCompleted)).To(HaveLen(1))

			Expect(h.runner.invocations()).To(Equal([][]string{
				{blockerPath, "-start", "Quantower", "-lock", "15"},
			}))

			recent, err := h.store.RecentSessions(1)
			Expect(err).NotTo(HaveOccurred())
			Expect(recent).To(HaveLen(1))
			Expect(recent[0].State).To(Equal(domain.StateLocked))
		})
	})

	Context("with no verified blocks", func() {
		BeforeEach(func() {
			h = newHarness(dir, nil, []string{"-900"})
			Expect(h.sup.StartMonitoring(monitoringConfig())).To(Succeed())
		})

		It("aborts the lockout and never touches the blocker", func() {
			Eventually(h.sup.SessionDone, "5s", "20ms").ShouldNot(BeNil())
			Eventually(h.sup.SessionDone(), "5s").Should(BeClosed())

			Expect(h.events.ofKind(domain.EventLockoutFailed)).To(HaveLen(1))
			Expect(h.events.states()).To(ContainElement(domain.StateAborted))
			Expect(h.runner.invocations()).To(BeEmpty())
		})
	})
})
