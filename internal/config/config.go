// Package config provides Viper-based configuration loading for the
// skirmish engine.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EncounterConfig holds the pacing and capacity knobs of the encounter
// engine. Every field maps onto an arena tunable.
type EncounterConfig struct {
	// TurnTimeout bounds how long a turn may sit unresolved.
	TurnTimeout time.Duration `mapstructure:"turn_timeout"`
	// AutoActDelay is the pause before an auto-mode combatant acts.
	AutoActDelay time.Duration `mapstructure:"auto_act_delay"`
	// MinTurnGap is the minimum pause between an action and the next turn.
	MinTurnGap time.Duration `mapstructure:"min_turn_gap"`
	// RoundCooldown is the extra pause when a new round begins.
	RoundCooldown time.Duration `mapstructure:"round_cooldown"`
	// MaxRounds ends any encounter whose round counter exceeds it.
	MaxRounds int `mapstructure:"max_rounds"`
	// IdleAfter ends an encounter with no hostile action for this long.
	IdleAfter time.Duration `mapstructure:"idle_after"`
	// GroupCapacity bounds live encounters per group.
	GroupCapacity int `mapstructure:"group_capacity"`
	// StaleAfter is the age past which the sweep reclaims an encounter.
	StaleAfter time.Duration `mapstructure:"stale_after"`
	// RateLimitWindow and RateLimitMax shape the per-actor throttle.
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	// MediaWaitTimeout bounds how long an advance waits for blockers.
	MediaWaitTimeout time.Duration `mapstructure:"media_wait_timeout"`
	// StatsTimeout bounds the parallel stats fetch during initiative.
	StatsTimeout time.Duration `mapstructure:"stats_timeout"`
	// KnockoutCooldown keeps a downed actor out of combat.
	KnockoutCooldown time.Duration `mapstructure:"knockout_cooldown"`
	// WatchdogInterval is the period of the sweep-and-nudge loop.
	WatchdogInterval time.Duration `mapstructure:"watchdog_interval"`
	// FleeDestination is where a successful escape relocates the runner.
	FleeDestination string `mapstructure:"flee_destination"`
}

// DatabaseConfig holds PostgreSQL connection settings for the summary
// audit trail.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// NarratorConfig selects and shapes the narration pipeline.
type NarratorConfig struct {
	// Mode is the narration sink: "log" or "claude".
	Mode string `mapstructure:"mode"`
	// FeedBuffer is the capacity of the narration feed channel.
	FeedBuffer int `mapstructure:"feed_buffer"`
	// APIKey authenticates the Claude narrator. Empty defers to the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string `mapstructure:"api_key"`
	// Model is the Claude model id used for styling.
	Model string `mapstructure:"model"`
	// MaxTokens bounds each styled line.
	MaxTokens int64 `mapstructure:"max_tokens"`
	// Timeout bounds each styling request.
	Timeout time.Duration `mapstructure:"timeout"`
}

// ContentConfig points at the YAML and Lua content directories.
type ContentConfig struct {
	// ConditionsDir holds condition definition YAML files.
	ConditionsDir string `mapstructure:"conditions_dir"`
	// ArchetypesDir holds fighter archetype YAML files.
	ArchetypesDir string `mapstructure:"archetypes_dir"`
	// ScriptsDir holds group hook scripts, one subdirectory per group.
	ScriptsDir string `mapstructure:"scripts_dir"`
}

// Config is the top-level application configuration.
type Config struct {
	Encounter EncounterConfig `mapstructure:"encounter"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Narrator  NarratorConfig  `mapstructure:"narrator"`
	Content   ContentConfig   `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateEncounter(c.Encounter); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateDatabase(c.Database); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateNarrator(c.Narrator); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEncounter(e EncounterConfig) error {
	var errs []string
	if e.TurnTimeout <= 0 {
		errs = append(errs, "encounter.turn_timeout must be positive")
	}
	if e.AutoActDelay <= 0 {
		errs = append(errs, "encounter.auto_act_delay must be positive")
	}
	if e.AutoActDelay >= e.TurnTimeout && e.TurnTimeout > 0 {
		errs = append(errs, "encounter.auto_act_delay must be shorter than encounter.turn_timeout")
	}
	if e.MinTurnGap < 0 {
		errs = append(errs, "encounter.min_turn_gap must not be negative")
	}
	if e.RoundCooldown < 0 {
		errs = append(errs, "encounter.round_cooldown must not be negative")
	}
	if e.MaxRounds < 1 {
		errs = append(errs, fmt.Sprintf("encounter.max_rounds must be >= 1, got %d", e.MaxRounds))
	}
	if e.IdleAfter <= 0 {
		errs = append(errs, "encounter.idle_after must be positive")
	}
	if e.GroupCapacity < 1 {
		errs = append(errs, fmt.Sprintf("encounter.group_capacity must be >= 1, got %d", e.GroupCapacity))
	}
	if e.StaleAfter <= 0 {
		errs = append(errs, "encounter.stale_after must be positive")
	}
	if e.RateLimitWindow <= 0 {
		errs = append(errs, "encounter.rate_limit_window must be positive")
	}
	if e.RateLimitMax < 1 {
		errs = append(errs, fmt.Sprintf("encounter.rate_limit_max must be >= 1, got %d", e.RateLimitMax))
	}
	if e.MediaWaitTimeout <= 0 {
		errs = append(errs, "encounter.media_wait_timeout must be positive")
	}
	if e.StatsTimeout <= 0 {
		errs = append(errs, "encounter.stats_timeout must be positive")
	}
	if e.KnockoutCooldown < 0 {
		errs = append(errs, "encounter.knockout_cooldown must not be negative")
	}
	if e.WatchdogInterval <= 0 {
		errs = append(errs, "encounter.watchdog_interval must be positive")
	}
	if e.FleeDestination == "" {
		errs = append(errs, "encounter.flee_destination must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateNarrator(n NarratorConfig) error {
	var errs []string
	validModes := map[string]bool{"log": true, "claude": true}
	if !validModes[n.Mode] {
		errs = append(errs, fmt.Sprintf("narrator.mode must be one of [log, claude], got %q", n.Mode))
	}
	if n.FeedBuffer < 1 {
		errs = append(errs, fmt.Sprintf("narrator.feed_buffer must be >= 1, got %d", n.FeedBuffer))
	}
	if n.MaxTokens < 1 {
		errs = append(errs, fmt.Sprintf("narrator.max_tokens must be >= 1, got %d", n.MaxTokens))
	}
	if n.Timeout <= 0 {
		errs = append(errs, "narrator.timeout must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.ConditionsDir == "" {
		errs = append(errs, "content.conditions_dir must not be empty")
	}
	if c.ArchetypesDir == "" {
		errs = append(errs, "content.archetypes_dir must not be empty")
	}
	if c.ScriptsDir == "" {
		errs = append(errs, "content.scripts_dir must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with SKIRMISH_ prefix
	v.SetEnvPrefix("SKIRMISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("encounter.turn_timeout", "30s")
	v.SetDefault("encounter.auto_act_delay", "2s")
	v.SetDefault("encounter.min_turn_gap", "1500ms")
	v.SetDefault("encounter.round_cooldown", "5s")
	v.SetDefault("encounter.max_rounds", 30)
	v.SetDefault("encounter.idle_after", "2m")
	v.SetDefault("encounter.group_capacity", 4)
	v.SetDefault("encounter.stale_after", "30m")
	v.SetDefault("encounter.rate_limit_window", "10s")
	v.SetDefault("encounter.rate_limit_max", 5)
	v.SetDefault("encounter.media_wait_timeout", "8s")
	v.SetDefault("encounter.stats_timeout", "5s")
	v.SetDefault("encounter.knockout_cooldown", "5m")
	v.SetDefault("encounter.watchdog_interval", "15s")
	v.SetDefault("encounter.flee_destination", "outskirts")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "skirmish")
	v.SetDefault("database.password", "skirmish")
	v.SetDefault("database.name", "skirmish")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("narrator.mode", "log")
	v.SetDefault("narrator.feed_buffer", 64)
	v.SetDefault("narrator.model", "claude-3-5-haiku-latest")
	v.SetDefault("narrator.max_tokens", 200)
	v.SetDefault("narrator.timeout", "4s")

	v.SetDefault("content.conditions_dir", "content/conditions")
	v.SetDefault("content.archetypes_dir", "content/archetypes")
	v.SetDefault("content.scripts_dir", "content/scripts")
}
