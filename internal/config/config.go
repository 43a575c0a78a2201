// Package config loads outreach settings from defaults, the platform config
// backend, a .env file, OUTREACH_* environment variables and the secret
// store, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const secretService = "outreach"

type Config struct {
	Server     ServerConfig
	Storage    StorageConfig
	Log        LogConfig
	Engine     EngineConfig
	Email      EmailConfig
	Automation AutomationConfig
	Generation GenerationConfig
	Scoring    ScoringConfig
	Google     GoogleConfig
	Calendly   CalendlyConfig
}

type ServerConfig struct {
	Port    int
	MCPPort int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

// EngineConfig selects and tunes the generative text service.
type EngineConfig struct {
	Provider         string // "gemini" or "openrouter"
	GeminiAPIKey     string
	GeminiModel      string
	OpenRouterAPIKey string
	OpenRouterModel  string
	MaxTokens        int
	Temperature      float64
	Timeout          time.Duration
}

type EmailConfig struct {
	MaxPerDay          int
	FollowUpDelayHours int
	MaxFollowUps       int
	BusinessHoursStart int
	BusinessHoursEnd   int
	FromName           string
	FromAddress        string
}

type AutomationConfig struct {
	BatchSize                 int
	ProcessingIntervalMinutes int
	MaxConcurrentCampaigns    int
	LeadScoreThreshold        float64
	MaxQueryResults           int
}

type GenerationConfig struct {
	DailyCap                int
	MinInterval             time.Duration
	RequestCacheTTL         time.Duration
	PersonalizationCacheTTL time.Duration
}

type ScoringConfig struct {
	MLWeight         float64
	AIWeight         float64
	AuthorityWeight  float64
	RelevanceWeight  float64
	AIBase           float64
	CompanyRelevance float64
	ModelPath        string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type CalendlyConfig struct {
	APIKey  string
	BaseURL string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{Port: 4100, MCPPort: 4101},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
		Engine: EngineConfig{
			Provider:        "gemini",
			GeminiModel:     "gemini-2.5-flash-lite",
			OpenRouterModel: "google/gemini-2.5-flash-lite",
			MaxTokens:       2048,
			Temperature:     0.7,
			Timeout:         60 * time.Second,
		},
		Email: EmailConfig{
			MaxPerDay:          100,
			FollowUpDelayHours: 48,
			MaxFollowUps:       3,
			BusinessHoursStart: 9,
			BusinessHoursEnd:   17,
		},
		Automation: AutomationConfig{
			BatchSize:                 50,
			ProcessingIntervalMinutes: 15,
			MaxConcurrentCampaigns:    10,
			LeadScoreThreshold:        0.7,
			MaxQueryResults:           1000,
		},
		Generation: GenerationConfig{
			DailyCap:                1000,
			MinInterval:             time.Second,
			RequestCacheTTL:         30 * time.Minute,
			PersonalizationCacheTTL: time.Hour,
		},
		Scoring: ScoringConfig{
			MLWeight:         0.6,
			AIWeight:         0.4,
			AuthorityWeight:  0.4,
			RelevanceWeight:  0.3,
			AIBase:           0.3,
			CompanyRelevance: 0.7,
		},
		Calendly: CalendlyConfig{BaseURL: "https://api.calendly.com"},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the secret store.
//
// On macOS the backend is UserDefaults (domain: com.outreach.app) and
// secrets live in the Keychain (service: outreach). Elsewhere the backend is
// a YAML file at $XDG_CONFIG_HOME/outreach/config.yaml and secrets live in
// $XDG_DATA_HOME/outreach/secrets.json.
//
// Environment variables (OUTREACH_*) override backend values on all
// platforms. Load does not validate; call Validate before starting services
// that need credentials.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), NewKeychain(), ".env")
}

func loadWith(b Backend, kc Keychain, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	if envFile != "" {
		// Existing environment variables win over .env entries.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read %s: %v\n", envFile, err)
		}
	}
	applyEnvOverrides(&cfg)
	applySecrets(&cfg, kc)

	return cfg, nil
}

// Validate reports missing settings required to run the server.
func (c Config) Validate() error {
	switch strings.ToLower(c.Engine.Provider) {
	case "gemini":
		if c.Engine.GeminiAPIKey == "" {
			return missing("Gemini API key", "engine.gemini_api_key")
		}
	case "openrouter":
		if c.Engine.OpenRouterAPIKey == "" {
			return missing("OpenRouter API key", "engine.openrouter_api_key")
		}
	default:
		return fmt.Errorf("unknown engine.provider %q (want gemini or openrouter)", c.Engine.Provider)
	}
	if c.Scoring.MLWeight < 0 || c.Scoring.AIWeight < 0 || c.Scoring.MLWeight+c.Scoring.AIWeight == 0 {
		return errors.New("scoring.ml_weight and scoring.ai_weight must be non-negative and not both zero")
	}
	if c.Email.BusinessHoursStart >= c.Email.BusinessHoursEnd {
		return errors.New("email.business_hours_start must be before email.business_hours_end")
	}
	return nil
}

func missing(what, key string) error {
	s := specByKey(key)
	return fmt.Errorf("missing required config: %s. Set it via environment variable %s or `outreach config set-secret %s <value>`%s",
		what, s.env, key, secretHint())
}
