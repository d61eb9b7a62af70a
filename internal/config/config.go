// Package config loads the TOML `[comprl]` configuration table with
// github.com/spf13/viper. The static fields (port, timeout, paths, ...)
// are read once at startup; the `matchmaking.*` and `score_decay.*`
// subtables are hot-reloaded via viper.WatchConfig so they can be tuned
// without a restart.
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/comprl/server/internal/matchmaking"
)

// ScoreDecay holds the periodic sigma-increment job's tunables.
type ScoreDecay struct {
	IntervalMinutes int
	Delta           float64
}

// Config is the restart-required portion of the `[comprl]` table.
type Config struct {
	Port                 int
	ServerUpdateInterval float64
	Timeout              int
	LogLevel             string
	GamePath             string
	GameClass            string
	DatabasePath         string
	DataDir              string
	MonitorLogPath       string
	RegistrationKey      string
	ServerURL            string

	// DashboardPort serves the read-only dashboard API on its own
	// port, separate from the agent websocket port. 0 disables it.
	DashboardPort int

	// JWTSecret signs the dashboard's admin session tokens. Empty
	// disables admin login entirely.
	JWTSecret string

	// RedisURL configures the optional lifecycle-event pub/sub bus
	// (internal/events). Empty disables it.
	RedisURL string
}

// Loader owns the viper instance backing the config file and the
// hot-reloadable matchmaking/score_decay subtables.
type Loader struct {
	v   *viper.Viper
	dir string

	mu          sync.RWMutex
	matchmaking matchmaking.Config
	scoreDecay  ScoreDecay
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("comprl.port", 8080)
	v.SetDefault("comprl.server_update_interval", 1.0)
	v.SetDefault("comprl.timeout", 10)
	v.SetDefault("comprl.log_level", "INFO")
	v.SetDefault("comprl.registration_key", "")
	v.SetDefault("comprl.server_url", "")
	v.SetDefault("comprl.dashboard_port", 8081)
	v.SetDefault("comprl.jwt_secret", "")
	v.SetDefault("comprl.redis_url", "")
	v.SetDefault("comprl.matchmaking.match_quality_threshold", 0.3)
	v.SetDefault("comprl.matchmaking.percentage_min_players_waiting", 0.1)
	v.SetDefault("comprl.matchmaking.percental_time_bonus", 0.1)
	v.SetDefault("comprl.matchmaking.max_parallel_games", 100)
	v.SetDefault("comprl.score_decay.interval_minutes", 0)
	v.SetDefault("comprl.score_decay.delta", 0.5)
}

// Load reads the TOML config file at path, resolves its path-valued
// keys against the file's own directory, validates the
// required fields, and returns the static Config plus a Loader for the
// hot-reloadable subtables. A bad or incomplete config is a fatal
// ConfigError — the caller is expected to abort startup.
func Load(path string) (*Config, *Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	setDefaults(v)
	// COMPRL_REGISTRATION_KEY in the process environment (e.g. from a
	// .env file loaded by the caller) overrides comprl.registration_key.
	_ = v.BindEnv("comprl.registration_key", "COMPRL_REGISTRATION_KEY")

	if err := v.ReadInConfig(); err != nil {
		return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	dir := filepath.Dir(path)

	cfg := &Config{
		Port:                 v.GetInt("comprl.port"),
		ServerUpdateInterval: v.GetFloat64("comprl.server_update_interval"),
		Timeout:              v.GetInt("comprl.timeout"),
		LogLevel:             v.GetString("comprl.log_level"),
		GamePath:             resolvePath(dir, v.GetString("comprl.game_path")),
		GameClass:            v.GetString("comprl.game_class"),
		DatabasePath:         resolvePath(dir, v.GetString("comprl.database_path")),
		DataDir:              resolvePath(dir, v.GetString("comprl.data_dir")),
		MonitorLogPath:       resolvePath(dir, v.GetString("comprl.monitor_log_path")),
		RegistrationKey:      v.GetString("comprl.registration_key"),
		ServerURL:            v.GetString("comprl.server_url"),
		DashboardPort:        v.GetInt("comprl.dashboard_port"),
		JWTSecret:            v.GetString("comprl.jwt_secret"),
		RedisURL:             v.GetString("comprl.redis_url"),
	}

	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	l := &Loader{v: v, dir: dir}
	l.refreshHot()

	v.OnConfigChange(func(e fsnotify.Event) {
		log.Printf("[config] %s changed, reloading matchmaking/score_decay", e.Name)
		l.refreshHot()
	})
	v.WatchConfig()

	return cfg, l, nil
}

// validate checks the required fields (game_class, database_path,
// data_dir); a config error at startup is fatal.
func (c *Config) validate() error {
	if c.GameClass == "" {
		return fmt.Errorf("config: comprl.game_class is required")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("config: comprl.database_path is required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: comprl.data_dir is required")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: comprl.port out of range: %d", c.Port)
	}
	return nil
}

func resolvePath(dir, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

func (l *Loader) refreshHot() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.matchmaking = matchmaking.Config{
		MatchQualityThreshold:       l.v.GetFloat64("comprl.matchmaking.match_quality_threshold"),
		PercentageMinPlayersWaiting: l.v.GetFloat64("comprl.matchmaking.percentage_min_players_waiting"),
		PercentalTimeBonus:          l.v.GetFloat64("comprl.matchmaking.percental_time_bonus"),
		MaxParallelGames:            l.v.GetInt("comprl.matchmaking.max_parallel_games"),
	}
	l.scoreDecay = ScoreDecay{
		IntervalMinutes: l.v.GetInt("comprl.score_decay.interval_minutes"),
		Delta:           l.v.GetFloat64("comprl.score_decay.delta"),
	}
}

// Matchmaking returns the matchmaking tunables currently in effect.
func (l *Loader) Matchmaking() matchmaking.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.matchmaking
}

// ScoreDecay returns the score-decay tunables currently in effect.
func (l *Loader) ScoreDecay() ScoreDecay {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.scoreDecay
}
