package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Override keys. Each maps to PRAYERKIT_<KEY> in the environment, with
// dots replaced by underscores, and may also be bound to a CLI flag.
const (
	KeyAPIKey          = "ai.api_key"
	KeyAnthropicAPIKey = "ai.anthropic_api_key"
	KeyTextProvider    = "ai.text_provider"
	KeyDBPath          = "storage.db_path"
	KeyServerAddr      = "server.addr"
	KeyTimezone        = "agent.timezone"
	KeyLogJSON         = "log.json"
	KeyLogDebug        = "log.debug"
)

// NewOverrides returns a viper instance wired to the environment. Callers
// may bind additional flags to the same keys before ApplyOverrides.
func NewOverrides() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("PRAYERKIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Provider-native variable names are honoured as fallbacks.
	_ = v.BindEnv(KeyAPIKey, "PRAYERKIT_AI_API_KEY", "GEMINI_API_KEY", "API_KEY")
	_ = v.BindEnv(KeyAnthropicAPIKey, "PRAYERKIT_AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

// ApplyOverrides copies every explicitly set override onto cfg.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	if v.IsSet(KeyAPIKey) {
		cfg.AI.APIKey = v.GetString(KeyAPIKey)
	}
	if v.IsSet(KeyAnthropicAPIKey) {
		cfg.AI.AnthropicAPIKey = v.GetString(KeyAnthropicAPIKey)
	}
	if v.IsSet(KeyTextProvider) {
		cfg.AI.TextProvider = v.GetString(KeyTextProvider)
	}
	if v.IsSet(KeyDBPath) {
		cfg.Storage.DBPath = v.GetString(KeyDBPath)
	}
	if v.IsSet(KeyServerAddr) {
		cfg.Server.Addr = v.GetString(KeyServerAddr)
	}
	if v.IsSet(KeyTimezone) {
		cfg.Agent.Timezone = v.GetString(KeyTimezone)
	}
	if v.IsSet(KeyLogJSON) {
		cfg.Log.JSON = v.GetBool(KeyLogJSON)
	}
	if v.IsSet(KeyLogDebug) {
		cfg.Log.Debug = v.GetBool(KeyLogDebug)
	}
}
