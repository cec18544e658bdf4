// Package main is the CLI entry point for tradeguard.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/gabework/tradeguard/internal/domain"
	"github.com/gabework/tradeguard/internal/extract"
	"github.com/gabework/tradeguard/internal/infra"
	"github.com/gabework/tradeguard/internal/monitor"
	"github.com/gabework/tradeguard/internal/overlay"
	"github.com/gabework/tradeguard/internal/platform"
	"github.com/gabework/tradeguard/internal/sequence"
	"github.com/gabework/tradeguard/internal/usecase"
	"github.com/gabework/tradeguard/internal/verify"
	"github.com/gabework/tradeguard/internal/worker"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradeguard",
	Short: "Trading discipline enforcement - hard stop-loss via screen monitoring",
	Long: `tradeguard watches the P&L readout of your trading platform on screen.
When your loss crosses the configured threshold it brings the platform
forward, gives you a short window to flatten positions under a blocking
overlay, then locks the platform with Cold Turkey Blocker.

Once the sequence starts, there is no way to talk yourself out of it.`,
	Version: Version,
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Start monitoring the configured P&L region",
	Long: `Starts the sampling loop: captures the configured screen region on an
interval, reads the P&L via OCR, and engages the lockout sequence when the
loss threshold is breached. Interrupted lockout sessions from a previous
run are recovered and completed first.`,
	RunE: runMonitor,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Take a single sample and print the reading",
	Long: `Captures the monitor region once, runs OCR, and prints the raw text and
the parsed value. Useful for tuning the region and OCR settings without
arming the lockout.`,
	RunE: runCheck,
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a blocker block actually locks",
	Long: `Runs a one-minute probe block and watches the Cold Turkey window for
evidence that it took effect. Lockouts refuse to fire for block names that
have not passed verification.`,
	RunE: runVerify,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configuration and any active lockout session",
	RunE:  runStatus,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent lockout sessions",
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	flagPlatform  string
	flagThreshold string
	flagLockout   int
	flagInterval  time.Duration
	flagBlock     string
	flagLimit     int
	jsonOutput    bool
)

func init() {
	monitorCmd.Flags().StringVar(&flagPlatform, "platform", "", "Trading platform (quantower, ninjatrader, tradingview, tradovate)")
	monitorCmd.Flags().StringVar(&flagThreshold, "threshold", "", "Loss threshold, e.g. -500.00")
	monitorCmd.Flags().IntVar(&flagLockout, "lockout", 0, "Lockout duration in minutes (5-720)")
	monitorCmd.Flags().DurationVar(&flagInterval, "interval", 0, "Sample interval (default 5s)")
	checkCmd.Flags().StringVar(&flagPlatform, "platform", "", "Trading platform to sample")
	verifyCmd.Flags().StringVar(&flagBlock, "block", "", "Block name to verify (required)")
	historyCmd.Flags().IntVar(&flagLimit, "limit", 10, "Number of sessions to show")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// app bundles the wired components a command needs.
type app struct {
	logger   *zap.Logger
	cfgRepo  *infra.JSONConfigRepository
	appCfg   *domain.AppConfig
	registry *platform.Registry
	store    *infra.SQLSessionStore
	capturer *infra.DisplayCapturer
	windows  *infra.Win32WindowController
	blocker  domain.Blocker
	dataDir  string
}

func buildApp(withStore bool) (*app, error) {
	logger := createLogger()

	cfgPath, err := infra.DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	cfgRepo := infra.NewJSONConfigRepository(cfgPath, logger)
	appCfg, err := cfgRepo.Load()
	if err != nil {
		return nil, err
	}

	a := &app{
		logger:   logger,
		cfgRepo:  cfgRepo,
		appCfg:   appCfg,
		registry: platform.NewRegistry(),
		capturer: infra.NewDisplayCapturer(),
		dataDir:  filepath.Dir(cfgPath),
	}
	a.windows = infra.NewWindowController(a.registry, logger)
	a.blocker = infra.NewColdTurkeyBlocker(appCfg.BlockerPath, logger)

	if withStore {
		key, err := infra.EnsureKey(infra.NewFileKeyProvider(a.dataDir))
		if err != nil {
			return nil, fmt.Errorf("preparing session store key: %w", err)
		}
		a.store, err = infra.NewSQLSessionStore(a.dataDir, key)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
	}
	return a, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.cfgRepo.CloseWatch()
	_ = a.logger.Sync()
}

// monitoringConfig assembles the session config from the stored config plus
// command-line overrides.
func (a *app) monitoringConfig() (domain.MonitoringConfig, error) {
	platformName := a.appCfg.CurrentPlatform
	if flagPlatform != "" {
		platformName = flagPlatform
	}
	profile, err := a.registry.Get(platformName)
	if err != nil {
		return domain.MonitoringConfig{}, err
	}

	cfg := a.appCfg.Monitoring
	cfg.Platform = profile.Name()

	if region, ok := a.appCfg.MonitorRegions[profile.Name()]; ok {
		cfg.Region = region
	}
	if flatten, ok := a.appCfg.FlattenRegions[profile.Name()]; ok {
		cfg.FlattenRegions = flatten
	}
	if flagThreshold != "" {
		threshold, err := decimal.NewFromString(flagThreshold)
		if err != nil {
			return domain.MonitoringConfig{}, domain.NewConfigurationError("invalid threshold", err)
		}
		cfg.Threshold = threshold
	}
	if flagLockout != 0 {
		cfg.LockoutMinutes = flagLockout
	}
	if flagInterval != 0 {
		cfg.Interval = flagInterval
	}
	return cfg, nil
}

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.monitoringConfig()
	if err != nil {
		return err
	}
	profile, err := a.registry.Get(cfg.Platform)
	if err != nil {
		return err
	}

	overlayFactory, err := overlay.NewPlatformFactory(a.capturer, a.logger)
	if err != nil {
		return err
	}
	gate := overlay.NewGate(overlayFactory, a.logger)
	acker := infra.NewConsoleAcknowledger(os.Stdin, os.Stdout, 0, a.logger)
	observer := consoleObserver()

	seq := sequence.New(sequence.Config{}, a.windows, gate, a.blocker, acker,
		a.cfgRepo, a.store, observer, a.logger)
	sup := usecase.NewSupervisor(a.registry, seq, a.store, a.logger)

	dispatcher := worker.NewDispatcher()
	defer dispatcher.Close()
	runner := worker.NewRunner(dispatcher, nil, a.logger)

	ocr := infra.NewTesseractEngine(profile.OCR(), a.logger)
	extractor := extract.New(ocr, a.logger)
	loop := monitor.NewLoop(a.capturer, extractor, a.windows, a.store,
		runner, dispatcher, observer, sup.HandleBreach, a.logger)
	sup.SetLoop(loop)

	// Interrupted sessions first: a lockout owed from the last run is paid
	// before any new monitoring starts.
	if err := sup.Recover(); err != nil {
		return fmt.Errorf("recovering interrupted sessions: %w", err)
	}

	if err := sup.StartMonitoring(cfg); err != nil {
		return err
	}
	fmt.Printf("Monitoring %s. Threshold %s, lockout %d minutes.\n",
		cfg.Platform, cfg.Normalized().Threshold.StringFixed(2), cfg.LockoutMinutes)

	// Reload logging only; an in-flight session keeps its config snapshot.
	_ = a.cfgRepo.Watch(func(updated *domain.AppConfig) {
		a.logger.Info("configuration changed, will apply on next start")
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-sigChan:
			fmt.Println("\nStopping monitor.")
			sup.StopMonitoring()
			// A session opened before the signal still runs to its end.
			if done := sup.SessionDone(); done != nil {
				<-done
			}
			return nil
		case <-ticker.C:
			if done := sup.SessionDone(); done != nil {
				<-done
				fmt.Println("Lockout session finished. Monitoring stopped.")
				return nil
			}
		}
	}
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.monitoringConfig()
	if err != nil {
		return err
	}
	profile, err := a.registry.Get(cfg.Platform)
	if err != nil {
		return err
	}
	if err := cfg.Region.Validate(); err != nil {
		return err
	}

	img, err := a.capturer.CaptureRegion(cfg.Region)
	if err != nil {
		return err
	}

	ocr := infra.NewTesseractEngine(profile.OCR(), a.logger)
	reading, err := extract.New(ocr, a.logger).Extract(img)
	if err != nil {
		return err
	}

	fmt.Printf("Raw OCR text: %q\n", reading.RawText)
	if !reading.Conclusive() {
		fmt.Println("No parseable P&L value found. Adjust the monitor region or OCR settings.")
		return nil
	}
	fmt.Printf("Parsed value: %s (from %d candidates)\n",
		reading.Parsed.StringFixed(2), len(reading.Values))

	normalized := cfg.Normalized()
	if reading.Breaches(normalized.Threshold) {
		fmt.Printf("This reading WOULD breach the %s threshold.\n", normalized.Threshold.StringFixed(2))
	} else {
		fmt.Printf("Within the %s threshold.\n", normalized.Threshold.StringFixed(2))
	}
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	if flagBlock == "" {
		return fmt.Errorf("--block is required")
	}

	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("Verifying block %q via %s...\n", flagBlock, a.blocker.Path())
	gate := verify.NewGate(verify.Config{}, a.blocker, a.windows, a.cfgRepo, a.logger)
	if err := gate.Verify(ctx, flagBlock); err != nil {
		return err
	}
	fmt.Printf("Block %q verified and added to the allow-list.\n", flagBlock)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	fmt.Println("=== tradeguard status ===")
	fmt.Printf("Platform:     %s\n", a.appCfg.CurrentPlatform)
	fmt.Printf("Blocker path: %s\n", a.appCfg.BlockerPath)
	fmt.Printf("Threshold:    %s\n", a.appCfg.Monitoring.Normalized().Threshold.StringFixed(2))
	fmt.Printf("Lockout:      %d minutes\n", a.appCfg.Monitoring.LockoutMinutes)

	blocks, err := a.cfgRepo.VerifiedBlocks()
	if err != nil {
		return err
	}
	if len(blocks) == 0 {
		fmt.Println("Verified blocks: none (run 'tradeguard verify' before monitoring)")
	} else {
		fmt.Println("Verified blocks:")
		for _, b := range blocks {
			fmt.Printf("  - %s (verified %s)\n", b.BlockName, b.VerifiedAt.Format("2006-01-02"))
		}
	}

	active, err := a.store.ActiveSessions()
	if err != nil {
		return err
	}
	if len(active) == 0 {
		fmt.Println("Active sessions: none")
	} else {
		fmt.Println("Active sessions (will be recovered on next monitor run):")
		for _, s := range active {
			fmt.Printf("  - %s  %s  state=%s  started=%s\n",
				s.ID, s.Platform, s.State, s.StartedAt.Format(time.RFC3339))
		}
	}
	fmt.Println("=========================")
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	sessions, err := a.store.RecentSessions(flagLimit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Println("No lockout sessions recorded.")
		return nil
	}

	fmt.Println("=== Recent lockout sessions ===")
	for _, s := range sessions {
		value := "n/a"
		if s.BreachReading.Parsed != nil {
			value = s.BreachReading.Parsed.StringFixed(2)
		}
		fmt.Printf("%s  %-12s  %-10s  breach=%s  lockout=%dm\n",
			s.StartedAt.Format("2006-01-02 15:04"), s.Platform, s.State, value, s.LockoutMinutes)
	}
	return nil
}

// consoleObserver prints status updates for the trader watching the terminal.
func consoleObserver() domain.Observer {
	return domain.ObserverFunc(func(e domain.Event) {
		switch e.Kind {
		case domain.EventSampleTaken:
			if e.Reading != nil && e.Reading.Conclusive() {
				fmt.Printf("[%s] P&L %s\n", e.At.Format("15:04:05"), e.Reading.Parsed.StringFixed(2))
			} else {
				fmt.Printf("[%s] sample inconclusive\n", e.At.Format("15:04:05"))
			}
		case domain.EventTargetUnavailable:
			fmt.Printf("[%s] %s window not visible, skipping\n", e.At.Format("15:04:05"), e.Platform)
		case domain.EventThresholdBreached:
			fmt.Printf("\n!!! LOSS LIMIT BREACHED: %s !!!\n", e.Reading.Parsed.StringFixed(2))
		case domain.EventFlattenTick:
			fmt.Printf("Flatten your positions: %ds remaining\n", int(e.Remaining.Seconds()))
		case domain.EventSequenceStateChanged:
			fmt.Printf("Lockout sequence: %s\n", e.State)
		case domain.EventLockoutCompleted:
			fmt.Println("Platform locked. See you tomorrow.")
		case domain.EventLockoutFailed:
			fmt.Printf("LOCKOUT FAILED: %v - lock the platform manually NOW.\n", e.Err)
		}
	})
}

func createLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	if base, err := os.UserConfigDir(); err == nil {
		logPath := filepath.Join(base, "tradeguard", "tradeguard.log")
		_ = os.MkdirAll(filepath.Dir(logPath), 0700)
		config.OutputPaths = []string{logPath}
		config.ErrorOutputPaths = []string{logPath}
	}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("tradeguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
