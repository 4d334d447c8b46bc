// Package config loads the service's configuration from a YAML file
// layered with environment variable overrides, tracking where each
// effective value came from.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ValueSource records where a configuration value's effective value came
// from, for startup diagnostics.
type ValueSource string

const (
	SourceDefault     ValueSource = "default"
	SourceFile        ValueSource = "file"
	SourceEnvironment ValueSource = "environment"
	SourceOverride    ValueSource = "override"
)

// Provenance tracks the ValueSource of each top-level config field by name.
type Provenance map[string]ValueSource

// ServerConfig controls the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig controls token issuance.
type AuthConfig struct {
	JWTSecret       string        `yaml:"jwt_secret"`
	Issuer          string        `yaml:"issuer"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl"`
}

// MemoryConfig controls the tiered memory subsystem's capacities.
type MemoryConfig struct {
	ShortTermMaxItems     int           `yaml:"short_term_max_items"`
	ShortTermTTL          time.Duration `yaml:"short_term_ttl"`
	MidTermTTL            time.Duration `yaml:"mid_term_ttl"`
	MidTermWorkingSetSize int           `yaml:"mid_term_working_set_size"`
	ConversationBufferCap int           `yaml:"conversation_buffer_cap"`
	HotCacheHorizon       time.Duration `yaml:"hot_cache_horizon"`
}

// QuotaConfig controls the default daily quota granted to new accounts.
type QuotaConfig struct {
	DefaultLimit int64 `yaml:"default_limit"`
}

// RetryConfig controls the dispatch core's provider retry envelope.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// PersonaConfig names the configured personas and their routing tokens.
type PersonaConfig struct {
	Default            string   `yaml:"default"`
	SearchPersona      string   `yaml:"search_persona"`
	SearchTokens       []string `yaml:"search_tokens"`
	ExplainPersona     string   `yaml:"explain_persona"`
	ExplainTokens      []string `yaml:"explain_tokens"`
	FallbackUtterances map[string]string `yaml:"fallback_utterances"`
}

// Config is the top-level configuration object.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Auth    AuthConfig    `yaml:"auth"`
	Memory  MemoryConfig  `yaml:"memory"`
	Quota   QuotaConfig   `yaml:"quota"`
	Retry   RetryConfig   `yaml:"retry"`
	Persona PersonaConfig `yaml:"persona"`

	provenance Provenance
}

// Provenance returns the source of each top-level field populated by Load.
func (c *Config) Provenance() Provenance {
	if c.provenance == nil {
		return Provenance{}
	}
	return c.provenance
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 15 * time.Second,
		},
		Auth: AuthConfig{
			Issuer:          "alex",
			AccessTokenTTL:  time.Hour,
			RefreshTokenTTL: 30 * 24 * time.Hour,
		},
		Memory: MemoryConfig{
			ShortTermMaxItems:     10_000,
			ShortTermTTL:          time.Hour,
			MidTermTTL:            30 * 24 * time.Hour,
			MidTermWorkingSetSize: 2_000,
			ConversationBufferCap: 12,
			HotCacheHorizon:       24 * time.Hour,
		},
		Quota: QuotaConfig{DefaultLimit: 100},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
		},
		Persona: PersonaConfig{
			Default:        "host",
			SearchPersona:  "searcher",
			SearchTokens:   []string{"search", "look up", "find"},
			ExplainPersona: "explainer",
			ExplainTokens:  []string{"explain", "why", "how does"},
			FallbackUtterances: map[string]string{
				"host":      "I'm having trouble reaching my backend right now, but I'm still here — could you try again in a moment?",
				"searcher":  "I couldn't complete that search just now. Mind trying again shortly?",
				"explainer": "I'm unable to work through an explanation right now. Please retry in a bit.",
			},
		},
	}
}

// Load builds a Config starting from hardcoded defaults, layering path's
// YAML contents (if it exists) over them, then layering ALEX_-prefixed
// environment variables over the result. Each field's Provenance reflects
// the last layer that touched it.
func Load(path string) (*Config, error) {
	cfg := defaults()
	prov := Provenance{
		"server": SourceDefault, "auth": SourceDefault, "memory": SourceDefault,
		"quota": SourceDefault, "retry": SourceDefault, "persona": SourceDefault,
	}

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else {
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			var present map[string]any
			_ = yaml.Unmarshal(raw, &present)
			for k := range present {
				if _, known := prov[k]; known {
					prov[k] = SourceFile
				}
			}
		}
	}

	applyEnvOverrides(&cfg, prov)
	cfg.provenance = prov
	return &cfg, nil
}

func applyEnvOverrides(cfg *Config, prov Provenance) {
	if v, ok := os.LookupEnv("ALEX_SERVER_ADDR"); ok {
		cfg.Server.Addr = v
		prov["server"] = SourceEnvironment
	}
	if v, ok := os.LookupEnv("ALEX_JWT_SECRET"); ok {
		cfg.Auth.JWTSecret = v
		prov["auth"] = SourceEnvironment
	}
	if v, ok := os.LookupEnv("ALEX_QUOTA_DEFAULT_LIMIT"); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Quota.DefaultLimit = n
			prov["quota"] = SourceEnvironment
		}
	}
	if v, ok := os.LookupEnv("ALEX_PERSONA_DEFAULT"); ok {
		cfg.Persona.Default = v
		prov["persona"] = SourceEnvironment
	}
}

// LoadDotEnv loads KEY=VALUE pairs from a .env file in the working
// directory into the process environment, skipping keys already set.
// Absence of the file is not an error.
func LoadDotEnv() error {
	raw, err := os.ReadFile(".env")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, set := os.LookupEnv(key); !set {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}
