package infra

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gabework/tradeguard/internal/domain"
)

func tempConfigRepo(t *testing.T) *JSONConfigRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	return NewJSONConfigRepository(path, zap.NewNop())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	repo := tempConfigRepo(t)

	cfg, err := repo.Load()
	require.NoError(t, err)
	assert.True(t, cfg.FirstRun)
	assert.Equal(t, "quantower", cfg.CurrentPlatform)
	assert.Contains(t, cfg.BlockerPath, "Cold Turkey")
	assert.Equal(t, 30, cfg.Monitoring.LockoutMinutes)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	repo := tempConfigRepo(t)

	cfg := &domain.AppConfig{
		CurrentPlatform: "ninjatrader",
		BlockerPath:     `D:\blocker.exe`,
		Monitoring: domain.MonitoringConfig{
			Platform:       "NinjaTrader",
			Region:         domain.Region{X: 40, Y: 80, Width: 300, Height: 50},
			Threshold:      decimal.RequireFromString("-750.25"),
			LockoutMinutes: 120,
		},
		FlattenRegions: map[string][]domain.Region{
			"NinjaTrader": {{X: 900, Y: 500, Width: 100, Height: 30}},
		},
		MonitorRegions: map[string]domain.Region{
			"NinjaTrader": {X: 40, Y: 80, Width: 300, Height: 50},
		},
	}
	require.NoError(t, repo.Save(cfg))

	loaded, err := repo.Load()
	require.NoError(t, err)
	assert.Equal(t, "ninjatrader", loaded.CurrentPlatform)
	assert.True(t, loaded.Monitoring.Threshold.Equal(decimal.RequireFromString("-750.25")),
		"threshold survives persistence without drift")
	assert.Equal(t, cfg.FlattenRegions, loaded.FlattenRegions)
	assert.False(t, loaded.FirstRun)
}

func TestLoadCorruptFile(t *testing.T) {
	repo := tempConfigRepo(t)
	require.NoError(t, os.WriteFile(repo.Path(), []byte("{not json"), 0600))

	_, err := repo.Load()
	var cfgErr *domain.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestAppendVerifiedBlockDeduplicates(t *testing.T) {
	repo := tempConfigRepo(t)

	require.NoError(t, repo.AppendVerifiedBlock(domain.VerifiedBlock{
		BlockName: "Quantower", VerifiedAt: time.Now(),
	}))
	require.NoError(t, repo.AppendVerifiedBlock(domain.VerifiedBlock{
		BlockName: "Ninja", VerifiedAt: time.Now(),
	}))
	require.NoError(t, repo.AppendVerifiedBlock(domain.VerifiedBlock{
		BlockName: "Quantower", VerifiedAt: time.Now(),
	}))

	blocks, err := repo.VerifiedBlocks()
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, "Quantower", blocks[0].BlockName)
	assert.Equal(t, "Ninja", blocks[1].BlockName)
}

func TestWatchFiresOnChange(t *testing.T) {
	repo := tempConfigRepo(t)
	require.NoError(t, repo.Save(defaultConfig()))

	changed := make(chan *domain.AppConfig, 4)
	require.NoError(t, repo.Watch(func(cfg *domain.AppConfig) { changed <- cfg }))
	defer repo.CloseWatch()

	cfg := defaultConfig()
	cfg.CurrentPlatform = "tradovate"
	require.NoError(t, repo.Save(cfg))

	select {
	case got := <-changed:
		assert.Equal(t, "tradovate", got.CurrentPlatform)
	case <-time.After(3 * time.Second):
		t.Fatal("config change never observed")
	}
}
