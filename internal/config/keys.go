package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "OUTREACH_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_port", typ: kInt, env: "OUTREACH_SERVER_MCP_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPPort = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MCPPort },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OUTREACH_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "OUTREACH_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "engine.provider", typ: kString, env: "OUTREACH_ENGINE_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.Engine.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.Provider },
	},
	{
		key: "engine.gemini_api_key", typ: kString, env: "OUTREACH_GEMINI_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.GeminiAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.GeminiAPIKey },
	},
	{
		key: "engine.gemini_model", typ: kString, env: "OUTREACH_ENGINE_GEMINI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.GeminiModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.GeminiModel },
	},
	{
		key: "engine.openrouter_api_key", typ: kString, env: "OUTREACH_OPENROUTER_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Engine.OpenRouterAPIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OpenRouterAPIKey },
	},
	{
		key: "engine.openrouter_model", typ: kString, env: "OUTREACH_ENGINE_OPENROUTER_MODEL",
		apply:   func(cfg *Config, v any) { cfg.Engine.OpenRouterModel = v.(string) },
		extract: func(cfg Config) any { return cfg.Engine.OpenRouterModel },
	},
	{
		key: "engine.max_tokens", typ: kInt, env: "OUTREACH_ENGINE_MAX_TOKENS",
		apply:   func(cfg *Config, v any) { cfg.Engine.MaxTokens = v.(int) },
		extract: func(cfg Config) any { return cfg.Engine.MaxTokens },
	},
	{
		key: "engine.temperature", typ: kFloat, env: "OUTREACH_ENGINE_TEMPERATURE",
		apply:   func(cfg *Config, v any) { cfg.Engine.Temperature = v.(float64) },
		extract: func(cfg Config) any { return cfg.Engine.Temperature },
	},
	{
		key: "engine.timeout", typ: kDuration, env: "OUTREACH_ENGINE_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Engine.Timeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Engine.Timeout },
	},
	{
		key: "email.max_per_day", typ: kInt, env: "OUTREACH_EMAIL_MAX_PER_DAY",
		apply:   func(cfg *Config, v any) { cfg.Email.MaxPerDay = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.MaxPerDay },
	},
	{
		key: "email.follow_up_delay_hours", typ: kInt, env: "OUTREACH_EMAIL_FOLLOW_UP_DELAY_HOURS",
		apply:   func(cfg *Config, v any) { cfg.Email.FollowUpDelayHours = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.FollowUpDelayHours },
	},
	{
		key: "email.max_follow_ups", typ: kInt, env: "OUTREACH_EMAIL_MAX_FOLLOW_UPS",
		apply:   func(cfg *Config, v any) { cfg.Email.MaxFollowUps = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.MaxFollowUps },
	},
	{
		key: "email.business_hours_start", typ: kInt, env: "OUTREACH_EMAIL_BUSINESS_HOURS_START",
		apply:   func(cfg *Config, v any) { cfg.Email.BusinessHoursStart = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.BusinessHoursStart },
	},
	{
		key: "email.business_hours_end", typ: kInt, env: "OUTREACH_EMAIL_BUSINESS_HOURS_END",
		apply:   func(cfg *Config, v any) { cfg.Email.BusinessHoursEnd = v.(int) },
		extract: func(cfg Config) any { return cfg.Email.BusinessHoursEnd },
	},
	{
		key: "email.from_name", typ: kString, env: "OUTREACH_EMAIL_FROM_NAME",
		apply:   func(cfg *Config, v any) { cfg.Email.FromName = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.FromName },
	},
	{
		key: "email.from_address", typ: kString, env: "OUTREACH_EMAIL_FROM_ADDRESS",
		apply:   func(cfg *Config, v any) { cfg.Email.FromAddress = v.(string) },
		extract: func(cfg Config) any { return cfg.Email.FromAddress },
	},
	{
		key: "automation.batch_size", typ: kInt, env: "OUTREACH_AUTOMATION_BATCH_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Automation.BatchSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Automation.BatchSize },
	},
	{
		key: "automation.processing_interval_minutes", typ: kInt, env: "OUTREACH_AUTOMATION_PROCESSING_INTERVAL_MINUTES",
		apply:   func(cfg *Config, v any) { cfg.Automation.ProcessingIntervalMinutes = v.(int) },
		extract: func(cfg Config) any { return cfg.Automation.ProcessingIntervalMinutes },
	},
	{
		key: "automation.max_concurrent_campaigns", typ: kInt, env: "OUTREACH_AUTOMATION_MAX_CONCURRENT_CAMPAIGNS",
		apply:   func(cfg *Config, v any) { cfg.Automation.MaxConcurrentCampaigns = v.(int) },
		extract: func(cfg Config) any { return cfg.Automation.MaxConcurrentCampaigns },
	},
	{
		key: "automation.lead_score_threshold", typ: kFloat, env: "OUTREACH_AUTOMATION_LEAD_SCORE_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Automation.LeadScoreThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Automation.LeadScoreThreshold },
	},
	{
		key: "automation.max_query_results", typ: kInt, env: "OUTREACH_AUTOMATION_MAX_QUERY_RESULTS",
		apply:   func(cfg *Config, v any) { cfg.Automation.MaxQueryResults = v.(int) },
		extract: func(cfg Config) any { return cfg.Automation.MaxQueryResults },
	},
	{
		key: "generation.daily_cap", typ: kInt, env: "OUTREACH_GENERATION_DAILY_CAP",
		apply:   func(cfg *Config, v any) { cfg.Generation.DailyCap = v.(int) },
		extract: func(cfg Config) any { return cfg.Generation.DailyCap },
	},
	{
		key: "generation.min_interval", typ: kDuration, env: "OUTREACH_GENERATION_MIN_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Generation.MinInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.MinInterval },
	},
	{
		key: "generation.request_cache_ttl", typ: kDuration, env: "OUTREACH_GENERATION_REQUEST_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Generation.RequestCacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.RequestCacheTTL },
	},
	{
		key: "generation.personalization_cache_ttl", typ: kDuration, env: "OUTREACH_GENERATION_PERSONALIZATION_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Generation.PersonalizationCacheTTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Generation.PersonalizationCacheTTL },
	},
	{
		key: "scoring.ml_weight", typ: kFloat, env: "OUTREACH_SCORING_ML_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Scoring.MLWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.MLWeight },
	},
	{
		key: "scoring.ai_weight", typ: kFloat, env: "OUTREACH_SCORING_AI_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Scoring.AIWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.AIWeight },
	},
	{
		key: "scoring.authority_weight", typ: kFloat, env: "OUTREACH_SCORING_AUTHORITY_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Scoring.AuthorityWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.AuthorityWeight },
	},
	{
		key: "scoring.relevance_weight", typ: kFloat, env: "OUTREACH_SCORING_RELEVANCE_WEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Scoring.RelevanceWeight = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.RelevanceWeight },
	},
	{
		key: "scoring.ai_base", typ: kFloat, env: "OUTREACH_SCORING_AI_BASE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.AIBase = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.AIBase },
	},
	{
		key: "scoring.company_relevance", typ: kFloat, env: "OUTREACH_SCORING_COMPANY_RELEVANCE",
		apply:   func(cfg *Config, v any) { cfg.Scoring.CompanyRelevance = v.(float64) },
		extract: func(cfg Config) any { return cfg.Scoring.CompanyRelevance },
	},
	{
		key: "scoring.model_path", typ: kString, env: "OUTREACH_SCORING_MODEL_PATH",
		apply:   func(cfg *Config, v any) { cfg.Scoring.ModelPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Scoring.ModelPath },
	},
	{
		key: "google.client_id", typ: kString, env: "OUTREACH_GOOGLE_CLIENT_ID",
		apply:   func(cfg *Config, v any) { cfg.Google.ClientID = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientID },
	},
	{
		key: "google.client_secret", typ: kString, env: "OUTREACH_GOOGLE_CLIENT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Google.ClientSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.ClientSecret },
	},
	{
		key: "google.redirect_url", typ: kString, env: "OUTREACH_GOOGLE_REDIRECT_URL",
		apply:   func(cfg *Config, v any) { cfg.Google.RedirectURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Google.RedirectURL },
	},
	{
		key: "calendly.api_key", typ: kString, env: "OUTREACH_CALENDLY_API_KEY",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Calendly.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendly.APIKey },
	},
	{
		key: "calendly.base_url", typ: kString, env: "OUTREACH_CALENDLY_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Calendly.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Calendly.BaseURL },
	},
}

func specByKey(key string) keySpec {
	for _, s := range specs {
		if s.key == key {
			return s
		}
	}
	return keySpec{key: key}
}

// parse converts raw to the key's declared type.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(raw)
	case kBool:
		return strconv.ParseBool(raw)
	case kFloat:
		return strconv.ParseFloat(raw, 64)
	case kDuration:
		return time.ParseDuration(raw)
	}
	return raw, nil
}

func applyBackend(cfg *Config, b Backend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}

		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (raw == "" && s.typ != kString) {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse config key %s=%q: %v. Using default value.\n", s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}

// applySecrets fills still-empty secret keys from the secret store.
func applySecrets(cfg *Config, kc Keychain) {
	if kc == nil {
		return
	}
	for _, s := range specs {
		if !s.secret || s.extract(*cfg).(string) != "" {
			continue
		}
		if v, err := kc.Get(secretService, s.key); err == nil && v != "" {
			s.apply(cfg, v)
		}
	}
}
