package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ir-scraper/pkg/utils"
)

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := &AppConfig{}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.NotEmpty(t, warnings, "a zero config should produce default warnings")

	assert.Equal(t, 2, cfg.MaxConcurrency)
	assert.Equal(t, 5, cfg.BatchSize)
	assert.Equal(t, 3*time.Second, cfg.InterBatchDelay)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 2*time.Second, cfg.RetryDelay)
	assert.Equal(t, 30*time.Second, cfg.NavigationTimeout)
	assert.Equal(t, 5*time.Second, cfg.RobotsTimeout)
	assert.Equal(t, 10*time.Second, cfg.ProbeTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.RescheduleAfter)
	assert.NotEmpty(t, cfg.UserAgent)
	assert.NotEmpty(t, cfg.StateDir)
	assert.NotEmpty(t, cfg.StatsDir)
}

func TestValidate_StrategyDefaults(t *testing.T) {
	cfg := &AppConfig{}
	_, err := cfg.Validate()
	require.NoError(t, err)

	s := cfg.Strategy
	assert.NotEmpty(t, s.NavigationKeywords)
	assert.NotEmpty(t, s.NoiseTitles)
	assert.Equal(t, 4, s.CutoffQuarters)
	assert.Equal(t, 3, s.MaxNavigationPages)
	assert.Equal(t, 5, s.MinTitleLength)
	assert.Equal(t, UndatedToday, s.UndatedPolicy)
}

func TestValidate_KeepsExplicitValues(t *testing.T) {
	cfg := &AppConfig{
		UserAgent:      "custom-agent/2.0",
		MaxConcurrency: 8,
		BatchSize:      20,
		MaxRetries:     1,
		Strategy: Strategy{
			UndatedPolicy:  UndatedSkip,
			CutoffQuarters: 8,
		},
	}
	_, err := cfg.Validate()
	require.NoError(t, err)

	assert.Equal(t, "custom-agent/2.0", cfg.UserAgent)
	assert.Equal(t, 8, cfg.MaxConcurrency)
	assert.Equal(t, 20, cfg.BatchSize)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, UndatedSkip, cfg.Strategy.UndatedPolicy)
	assert.Equal(t, 8, cfg.Strategy.CutoffQuarters)
}

func TestValidate_RejectsUnknownUndatedPolicy(t *testing.T) {
	cfg := &AppConfig{Strategy: Strategy{UndatedPolicy: "yesterday"}}
	_, err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrConfigValidation)
}

func TestValidate_NegativeValuesClampedWithWarning(t *testing.T) {
	cfg := &AppConfig{InterBatchDelay: -time.Second, MaxRetries: -2}
	warnings, err := cfg.Validate()
	require.NoError(t, err)
	assert.NotEmpty(t, warnings, "negative values should be reported")
	assert.GreaterOrEqual(t, cfg.InterBatchDelay, time.Duration(0))
	assert.GreaterOrEqual(t, cfg.MaxRetries, 0)
}
