package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRegionContainsInclusiveBounds(t *testing.T) {
	r := Region{X: 10, Y: 20, Width: 100, Height: 50}

	assert.True(t, r.Contains(10, 20), "top-left corner is inclusive")
	assert.True(t, r.Contains(110, 70), "bottom-right corner is inclusive")
	assert.True(t, r.Contains(60, 45), "interior point")

	assert.False(t, r.Contains(9, 20))
	assert.False(t, r.Contains(111, 70))
	assert.False(t, r.Contains(60, 71))
}

func TestRegionValidate(t *testing.T) {
	assert.NoError(t, Region{X: 0, Y: 0, Width: 1, Height: 1}.Validate())

	err := Region{X: 0, Y: 0, Width: 0, Height: 10}.Validate()
	require.Error(t, err)
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)

	assert.Error(t, Region{X: 5, Y: 5, Width: 10, Height: -1}.Validate())
}

func TestMonitoringConfigNormalized(t *testing.T) {
	cfg := MonitoringConfig{Threshold: dec("500")}.Normalized()
	assert.True(t, cfg.Threshold.Equal(dec("-500")), "positive threshold flips negative")
	assert.Equal(t, DefaultSampleInterval, cfg.Interval)

	cfg = MonitoringConfig{Threshold: dec("-250.75")}.Normalized()
	assert.True(t, cfg.Threshold.Equal(dec("-250.75")), "negative threshold unchanged")
}

func TestMonitoringConfigValidate(t *testing.T) {
	bounds := Region{X: 0, Y: 0, Width: 1920, Height: 1080}
	valid := MonitoringConfig{
		Platform:       "Quantower",
		Region:         Region{X: 100, Y: 100, Width: 200, Height: 40},
		Threshold:      dec("-500"),
		LockoutMinutes: 15,
		FlattenRegions: []Region{{X: 300, Y: 300, Width: 80, Height: 30}},
	}

	assert.NoError(t, valid.Validate(bounds))

	empty := valid
	empty.Platform = ""
	assert.Error(t, empty.Validate(bounds))

	offscreen := valid
	offscreen.Region = Region{X: 1900, Y: 100, Width: 200, Height: 40}
	assert.Error(t, offscreen.Validate(bounds), "region outside virtual screen")

	tooShort := valid
	tooShort.LockoutMinutes = 4
	assert.Error(t, tooShort.Validate(bounds))

	tooLong := valid
	tooLong.LockoutMinutes = 721
	assert.Error(t, tooLong.Validate(bounds))

	badFlatten := valid
	badFlatten.FlattenRegions = []Region{{X: 0, Y: 0, Width: 0, Height: 0}}
	assert.Error(t, badFlatten.Validate(bounds))
}

func TestReadingBreachesInclusive(t *testing.T) {
	threshold := dec("-500")

	at := dec("-500.00")
	r := Reading{Parsed: &at}
	assert.True(t, r.Breaches(threshold), "reading exactly at threshold breaches")

	above := dec("-499.99")
	r = Reading{Parsed: &above}
	assert.False(t, r.Breaches(threshold))

	below := dec("-520")
	r = Reading{Parsed: &below}
	assert.True(t, r.Breaches(threshold))

	r = Reading{Parsed: nil}
	assert.False(t, r.Breaches(threshold), "inconclusive reading never breaches")
}

func TestSequenceStateTerminal(t *testing.T) {
	assert.True(t, StateLocked.Terminal())
	assert.True(t, StateAborted.Terminal())
	for _, s := range []SequenceState{StateArmed, StateForegrounding, StateWarning, StateFlattening, StateInvoking} {
		assert.False(t, s.Terminal(), string(s))
	}
}
