package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_NoFilePresentReturnsDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Monitor.RiskApproveThreshold, cfg.Monitor.RiskApproveThreshold)
	assert.Equal(t, defaultListenAddr, cfg.Server.ListenAddr)
	assert.Equal(t, dir, cfg.ConfigDir())
}

func TestLoad_OverridesAppliedOnTopOfDefaults(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, `
risk_approve_threshold: 0.25
coherence_critical_threshold: 0.70
stale_lock_threshold_seconds: 120
dialectic_max_rounds: 3
knowledge_store_rate_per_hour: 50
server:
  listen_addr: ":9090"
`)

	cfg, err := load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0.25, cfg.Monitor.RiskApproveThreshold)
	assert.Equal(t, 0.70, cfg.Monitor.CoherenceCriticalThreshold)
	assert.Equal(t, int64(120), int64(cfg.Lock.StaleLockThreshold.Seconds()))
	assert.Equal(t, 3, cfg.Dialectic.MaxSynthesisRounds)
	assert.Equal(t, 50, cfg.KnowledgeStoreRatePerHour)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)

	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().Monitor.RiskReviseThreshold, cfg.Monitor.RiskReviseThreshold)
}

func TestLoad_ZeroValueOverrideIsHonored(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, `risk_revise_threshold: 0.0`)

	cfg, err := load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.Monitor.RiskReviseThreshold)
}

func TestLoad_UnknownKeyIsLoadError(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, `not_a_real_key: true`)

	_, err := load(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestLoad_MalformedYAMLIsLoadError(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "risk_approve_threshold: [unterminated")

	_, err := load(context.Background(), dir)
	require.Error(t, err)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOVCORE_LISTEN_ADDR", ":7070")
	writeYAML(t, dir, `
server:
  listen_addr: "${GOVCORE_LISTEN_ADDR}"
`)

	cfg, err := load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.ListenAddr)
}

func TestInitialize_ValidatesLoadedConfig(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, `dialectic_max_rounds: 0`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
}

func writeYAML(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "govcore.yaml"), []byte(contents), 0o644))
}
