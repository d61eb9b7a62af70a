package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "comprl.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const minimalConfig = `
[comprl]
game_class = "demo"
database_path = "comprl.db"
data_dir = "data"
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, minimalConfig)

	cfg, loader, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1.0, cfg.ServerUpdateInterval)
	assert.Equal(t, 10, cfg.Timeout)
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Empty(t, cfg.RegistrationKey)

	mm := loader.Matchmaking()
	assert.Equal(t, 0.3, mm.MatchQualityThreshold)
	assert.Equal(t, 0.1, mm.PercentageMinPlayersWaiting)
	assert.Equal(t, 0.1, mm.PercentalTimeBonus)
	assert.Equal(t, 100, mm.MaxParallelGames)

	sd := loader.ScoreDecay()
	assert.Equal(t, 0, sd.IntervalMinutes, "score decay defaults to disabled")
	assert.Equal(t, 0.5, sd.Delta)
}

func TestLoadResolvesRelativePaths(t *testing.T) {
	path := writeConfig(t, minimalConfig)
	dir := filepath.Dir(path)

	cfg, _, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "comprl.db"), cfg.DatabasePath)
	assert.Equal(t, filepath.Join(dir, "data"), cfg.DataDir)
	assert.Empty(t, cfg.MonitorLogPath, "unset path keys stay empty, not resolved")
}

func TestLoadKeepsAbsolutePaths(t *testing.T) {
	path := writeConfig(t, `
[comprl]
game_class = "demo"
database_path = "/var/lib/comprl/comprl.db"
data_dir = "/var/lib/comprl/data"
`)

	cfg, _, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/comprl/comprl.db", cfg.DatabasePath)
	assert.Equal(t, "/var/lib/comprl/data", cfg.DataDir)
}

func TestLoadReadsExplicitValues(t *testing.T) {
	path := writeConfig(t, `
[comprl]
port = 9000
server_update_interval = 0.5
timeout = 3
game_class = "demo"
database_path = "comprl.db"
data_dir = "data"
registration_key = "sekrit"

[comprl.matchmaking]
match_quality_threshold = 0.5
max_parallel_games = 7

[comprl.score_decay]
interval_minutes = 60
delta = 0.25
`)

	cfg, loader, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 0.5, cfg.ServerUpdateInterval)
	assert.Equal(t, 3, cfg.Timeout)
	assert.Equal(t, "sekrit", cfg.RegistrationKey)

	mm := loader.Matchmaking()
	assert.Equal(t, 0.5, mm.MatchQualityThreshold)
	assert.Equal(t, 7, mm.MaxParallelGames)
	assert.Equal(t, 0.1, mm.PercentalTimeBonus, "unset subtable keys keep their defaults")

	sd := loader.ScoreDecay()
	assert.Equal(t, 60, sd.IntervalMinutes)
	assert.Equal(t, 0.25, sd.Delta)
}

func TestLoadRejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing game_class", "[comprl]\ndatabase_path = \"db\"\ndata_dir = \"data\"\n"},
		{"missing database_path", "[comprl]\ngame_class = \"demo\"\ndata_dir = \"data\"\n"},
		{"missing data_dir", "[comprl]\ngame_class = \"demo\"\ndatabase_path = \"db\"\n"},
		{"bad port", "[comprl]\nport = 99999\ngame_class = \"demo\"\ndatabase_path = \"db\"\ndata_dir = \"data\"\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, _, err := Load(writeConfig(t, c.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
