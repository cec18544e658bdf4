package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

const configFileName = "config.json"

// JSONConfigRepository implements domain.ConfigRepository with a JSON file.
// Writes are atomic (temp file + rename) so a crash mid-save never leaves a
// torn config behind.
type JSONConfigRepository struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// DefaultConfigPath returns the per-user config file location.
func DefaultConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config directory: %w", err)
	}
	return filepath.Join(base, "tradeguard", configFileName), nil
}

// NewJSONConfigRepository creates a repository at the given path.
func NewJSONConfigRepository(path string, logger *zap.Logger) *JSONConfigRepository {
	return &JSONConfigRepository{path: path, logger: logger}
}

// Path returns the config file path.
func (r *JSONConfigRepository) Path() string {
	return r.path
}

// Load reads the configuration, returning first-run defaults when no file
// exists yet.
func (r *JSONConfigRepository) Load() (*domain.AppConfig, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg domain.AppConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, domain.NewConfigurationError("config file is not valid JSON", err)
	}
	return &cfg, nil
}

// Save writes the configuration atomically.
func (r *JSONConfigRepository) Save(cfg *domain.AppConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.atomicWrite(cfg)
}

// VerifiedBlocks returns the persisted allow-list.
func (r *JSONConfigRepository) VerifiedBlocks() ([]domain.VerifiedBlock, error) {
	cfg, err := r.Load()
	if err != nil {
		return nil, err
	}
	return cfg.VerifiedBlocks, nil
}

// AppendVerifiedBlock adds a block to the allow-list. Appending a name
// already on the list is a no-op.
func (r *JSONConfigRepository) AppendVerifiedBlock(b domain.VerifiedBlock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cfg, err := r.Load()
	if err != nil {
		return err
	}
	for _, existing := range cfg.VerifiedBlocks {
		if existing.BlockName == b.BlockName {
			return nil
		}
	}
	cfg.VerifiedBlocks = append(cfg.VerifiedBlocks, b)
	return r.atomicWrite(cfg)
}

// Watch reloads the config whenever the file changes on disk and hands the
// result to onChange. Changes never affect a monitoring session already in
// flight; the next Start picks them up.
func (r *JSONConfigRepository) Watch(onChange func(*domain.AppConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	// Watch the directory: editors and the atomic rename replace the file
	// node, which silently drops a watch on the file itself.
	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watching config directory: %w", err)
	}

	r.mu.Lock()
	r.watcher = watcher
	r.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != r.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				cfg, err := r.Load()
				if err != nil {
					r.logger.Warn("ignoring config change", zap.Error(err))
					continue
				}
				r.logger.Info("configuration reloaded")
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()
	return nil
}

// CloseWatch stops the file watcher, if one is running.
func (r *JSONConfigRepository) CloseWatch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	r.watcher = nil
	return err
}

// atomicWrite marshals and replaces the config file atomically.
func (r *JSONConfigRepository) atomicWrite(cfg *domain.AppConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing config: %w", err)
	}
	return nil
}

func defaultConfig() *domain.AppConfig {
	return &domain.AppConfig{
		CurrentPlatform: "quantower",
		BlockerPath:     `C:\Program Files\Cold Turkey\Cold Turkey Blocker.exe`,
		Monitoring: domain.MonitoringConfig{
			LockoutMinutes: 30,
		},
		FlattenRegions: make(map[string][]domain.Region),
		MonitorRegions: make(map[string]domain.Region),
		FirstRun:       true,
	}
}

// Ensure JSONConfigRepository implements domain.ConfigRepository.
var _ domain.ConfigRepository = (*JSONConfigRepository)(nil)
