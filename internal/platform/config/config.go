package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config is the service configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Decision DecisionConfig `koanf:"decision"`
	Session  SessionConfig  `koanf:"session"`
}

type ServerConfig struct {
	Port          string   `koanf:"port"`
	PublicBaseURL string   `koanf:"public_base_url"`
	CORSOrigins   []string `koanf:"cors_origins"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DecisionConfig selects the ad-decisioning backend. When URL is empty the service
// stitches streams itself from the fixtures at FixturesPath.
type DecisionConfig struct {
	URL          string        `koanf:"url"`
	Timeout      time.Duration `koanf:"timeout"`
	FixturesPath string        `koanf:"fixtures_path"`
}

// SessionConfig holds the stream manager settings applied to every session.
type SessionConfig struct {
	RequestTimeout         time.Duration `koanf:"request_timeout"`
	RefreshInterval        time.Duration `koanf:"refresh_interval"`
	DebugMode              bool          `koanf:"debug_mode"`
	Countdown              bool          `koanf:"countdown"`
	SkipPlayedBreaks       bool          `koanf:"skip_played_breaks"`
	Snapback               bool          `koanf:"snapback"`
	DisablePersonalizedAds bool          `koanf:"disable_personalized_ads"`
	EnableAgeRestriction   bool          `koanf:"enable_age_restriction"`
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:          "8080",
			PublicBaseURL: "http://localhost:8080",
			CORSOrigins:   []string{"*"},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Decision: DecisionConfig{
			Timeout:      10 * time.Second,
			FixturesPath: "fixtures.yaml",
		},
		Session: SessionConfig{
			RequestTimeout:  8 * time.Second,
			RefreshInterval: 5 * time.Second,
			Countdown:       true,
		},
	}
}

// envKeys maps environment variables to config paths. Variables not listed are ignored.
var envKeys = map[string]string{
	"PORT":                     "server.port",
	"PUBLIC_BASE_URL":          "server.public_base_url",
	"CORS_ORIGINS":             "server.cors_origins",
	"LOG_LEVEL":                "log.level",
	"LOG_FORMAT":               "log.format",
	"DECISION_URL":             "decision.url",
	"DECISION_TIMEOUT":         "decision.timeout",
	"FIXTURES_PATH":            "decision.fixtures_path",
	"REQUEST_TIMEOUT":          "session.request_timeout",
	"REFRESH_INTERVAL":         "session.refresh_interval",
	"DEBUG_MODE":               "session.debug_mode",
	"COUNTDOWN":                "session.countdown",
	"SKIP_PLAYED_BREAKS":       "session.skip_played_breaks",
	"SNAPBACK":                 "session.snapback",
	"DISABLE_PERSONALIZED_ADS": "session.disable_personalized_ads",
	"ENABLE_AGE_RESTRICTION":   "session.enable_age_restriction",
}

// LoadDotEnv reads the .env file from the current working directory and sets
// environment variables. If .env does not exist, LoadDotEnv returns an error but
// callers can ignore it and use system env or defaults. Pass one or more paths
// to load from specific files; with no paths, ".env" is used.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// Load builds the configuration from defaults overridden by environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if err := k.Load(env.Provider("", ".", func(key string) string { return envKeys[key] }), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if origins, ok := k.Get("server.cors_origins").(string); ok {
		if err := k.Set("server.cors_origins", splitList(origins)); err != nil {
			return nil, fmt.Errorf("parse cors origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if cfg.Server.Port == "" {
		return nil, fmt.Errorf("server port must not be empty")
	}
	return cfg, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
