package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Provider names for the AI text stages
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	Agent    AgentConfig    `toml:"agent"`
	Schedule ScheduleConfig `toml:"schedule"`
	AI       AIConfig       `toml:"ai"`
	Storage  StorageConfig  `toml:"storage"`
	Server   ServerConfig   `toml:"server"`
	Email    EmailConfig    `toml:"email"`
	Log      LogConfig      `toml:"log"`
}

type AgentConfig struct {
	Timezone              string `toml:"timezone"`
	StartupDelaySeconds   int    `toml:"startup_delay_seconds"`
	CheckIntervalSeconds  int    `toml:"check_interval_seconds"`
	StatusIntervalSeconds int    `toml:"status_interval_seconds"`
	LedgerRetentionDays   int    `toml:"ledger_retention_days"`
}

// ScheduleConfig is the static slot table. Locales are checked in the
// order they appear in Order.
type ScheduleConfig struct {
	Order   []string                  `toml:"order"`
	Locales map[string]LocaleSchedule `toml:"locales"`
}

type LocaleSchedule struct {
	LongHour     int   `toml:"long_hour"`
	ShortHours   []int `toml:"short_hours"`
	MinuteOffset int   `toml:"minute_offset"`
}

type AIConfig struct {
	TextProvider      string `toml:"text_provider"`
	APIKey            string `toml:"api_key"`
	AnthropicAPIKey   string `toml:"anthropic_api_key"`
	TextModel         string `toml:"text_model"`
	ThumbnailModel    string `toml:"thumbnail_model"`
	AnthropicModel    string `toml:"anthropic_model"`
	SpeechModel       string `toml:"speech_model"`
	ImageModel        string `toml:"image_model"`
	RequestsPerMinute int    `toml:"requests_per_minute"`
	CacheExchanges    bool   `toml:"cache_exchanges"`
}

type StorageConfig struct {
	DBPath string `toml:"db_path"`
}

type ServerConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type EmailConfig struct {
	Provider string `toml:"provider"`
	SMTPHost string `toml:"smtp_host"`
	SMTPPort int    `toml:"smtp_port"`
	SMTPUser string `toml:"smtp_user"`
	SMTPPass string `toml:"smtp_pass"`
	FromAddr string `toml:"from_address"`
	ToAddr   string `toml:"to_address"`
}

type LogConfig struct {
	JSON  bool `toml:"json"`
	Debug bool `toml:"debug"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		Agent: AgentConfig{
			Timezone:              "Local",
			StartupDelaySeconds:   10,
			CheckIntervalSeconds:  30,
			StatusIntervalSeconds: 60,
			LedgerRetentionDays:   2,
		},
		Schedule: ScheduleConfig{
			Order: []string{"pt", "en", "es"},
			Locales: map[string]LocaleSchedule{
				"pt": {LongHour: 6, ShortHours: []int{9, 12, 18}, MinuteOffset: 0},
				"en": {LongHour: 7, ShortHours: []int{9, 12, 18}, MinuteOffset: 20},
				"es": {LongHour: 8, ShortHours: []int{9, 12, 18}, MinuteOffset: 40},
			},
		},
		AI: AIConfig{
			TextProvider:      ProviderGemini,
			TextModel:         "gemini-2.5-flash",
			ThumbnailModel:    "gemini-2.5-pro",
			AnthropicModel:    "claude-sonnet-4-20250514",
			SpeechModel:       "gemini-2.5-flash-preview-tts",
			ImageModel:        "imagen-4.0-generate-001",
			RequestsPerMinute: 10,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8787",
		},
		Email: EmailConfig{
			SMTPPort: 587,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "prayerkit"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// CacheDir returns the platform-appropriate cache directory.
// On macOS this is ~/Library/Caches/prayerkit/
func CacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "prayerkit"), nil
}

// ExchangesDir is where model exchanges are written when
// ai.cache_exchanges is set.
func ExchangesDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "exchanges"), nil
}

// DBPath returns the configured database path, defaulting to the cache dir.
func (c *Config) DBPath() (string, error) {
	if c.Storage.DBPath != "" {
		return c.Storage.DBPath, nil
	}
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "prayerkit.db"), nil
}

// Load reads config from the default path
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile reads config from path. Keys missing from the file keep their
// default values.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes config to the default path
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes config to path, creating parent directories.
func (c *Config) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
