package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string            `toml:"environment" validate:"omitempty,oneof=development production prod"` // "development" or "production"
	Server      ServerConfig      `toml:"server"`
	Logging     LoggingConfig     `toml:"logging"`
	Database    DatabaseConfig    `toml:"database"`
	VectorStore VectorStoreConfig `toml:"vectorstore"`
	Storage     StorageConfig     `toml:"storage"`
	LLM         LLMConfig         `toml:"llm"`
	Claude      ClaudeConfig      `toml:"claude"`
	Gemini      GeminiConfig      `toml:"gemini"`
	Embeddings  EmbeddingsConfig  `toml:"embeddings"`
	Index       IndexConfig       `toml:"index"`
	Sync        SyncConfig        `toml:"sync"`
	Notify      NotifyConfig      `toml:"notify"`
	Seed        SeedConfig        `toml:"seed"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"min=1,max=65535"`
	Host string `toml:"host"`
}

type LoggingConfig struct {
	Level      string   `toml:"level" validate:"oneof=debug info warn error"` // "debug", "info", "warn", "error"
	Format     string   `toml:"format" validate:"oneof=json text"`            // "json" or "text"
	Output     []string `toml:"output"`                                       // "stdout", "file"
	TimeFormat string   `toml:"time_format"`                                  // Time format for logs (default: "15:04:05.000")
}

// DatabaseConfig contains PostgREST connection settings for the portfolio
// database. Schema is managed by migrations outside this service.
type DatabaseConfig struct {
	URL            string `toml:"url"`             // Base URL, e.g. "https://xyz.supabase.co"
	APIKey         string `toml:"api_key"`         // Service role key sent as apikey + bearer token
	OrganizationID string `toml:"organization_id"` // Org scope applied to every query
	Timeout        string `toml:"timeout"`         // HTTP request timeout as duration string (default: "30s")
}

// VectorStoreConfig selects and tunes the embedding index backend
type VectorStoreConfig struct {
	Backend        string  `toml:"backend" validate:"oneof=postgrest chroma"` // "postgrest" (pgvector RPC) or "chroma"
	MatchThreshold float64 `toml:"match_threshold" validate:"gte=0,lte=1"`    // Minimum similarity for search hits (default: 0.3)
	DefaultResults int     `toml:"default_results" validate:"gt=0"`           // Result count when the caller does not specify one
	ChromaURL      string  `toml:"chroma_url"`                                // Chroma server URL (chroma backend only)
	Collection     string  `toml:"collection"`                                // Chroma collection name (chroma backend only)
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the answer-generation provider
type LLMConfig struct {
	Provider LLMProvider `toml:"provider" validate:"oneof=claude gemini"` // "claude" or "gemini" (default: "claude")
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`    // Anthropic API key (ANTHROPIC_API_KEY or config)
	Model     string `toml:"model"`      // Model for AI operations (default: "claude-haiku-3-5-20241022")
	MaxTokens int    `toml:"max_tokens"` // Maximum tokens in response (default: 4096)
	Timeout   string `toml:"timeout"`    // Operation timeout as duration string (default: "2m")
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey  string `toml:"api_key"` // Google Gemini API key
	Model   string `toml:"model"`   // Model for AI operations (default: "gemini-3-flash-preview")
	Timeout string `toml:"timeout"` // Operation timeout as duration string (default: "2m")
}

// EmbeddingsConfig contains embedding model configuration. Dimension must
// match the vector column in the database; a mismatch fails at startup
// rather than corrupting the index.
type EmbeddingsConfig struct {
	Model     string `toml:"model" validate:"required"`    // Embedding model (default: "gemini-embedding-001")
	Dimension int    `toml:"dimension" validate:"gt=0"`    // Output dimensionality (default: 768)
	BatchSize int    `toml:"batch_size" validate:"gt=0"`   // Texts per embedding request (default: 100)
}

// IndexConfig controls the vector index lifecycle
type IndexConfig struct {
	RebuildOnStartup bool   `toml:"rebuild_on_startup"` // Rebuild the index in the background at startup (default: true)
	StartupWait      string `toml:"startup_wait"`       // Max time to wait for index readiness before serving degraded (default: "30s")
}

// SyncConfig contains external tracker sync settings
type SyncConfig struct {
	Enabled  bool             `toml:"enabled"`  // Enable scheduled tracker sync (default: false)
	Schedule string           `toml:"schedule"` // Cron schedule for sync runs (default: "0 */6 * * *")
	Linear   LinearSyncConfig `toml:"linear"`
}

// LinearSyncConfig contains Linear GraphQL API settings
type LinearSyncConfig struct {
	APIKey    string `toml:"api_key"`    // Linear API key (LINEAR_API_KEY or config)
	RateLimit string `toml:"rate_limit"` // Minimum interval between API requests (default: "500ms")
	PageSize  int    `toml:"page_size"`  // Projects per GraphQL page (default: 50)
}

// NotifyConfig contains Slack briefing delivery settings
type NotifyConfig struct {
	Enabled    bool   `toml:"enabled"`     // Enable scheduled briefings (default: false)
	WebhookURL string `toml:"webhook_url"` // Slack incoming webhook URL (SLACK_WEBHOOK_URL or config)
	Schedule   string `toml:"schedule"`    // Cron schedule for the weekly briefing (default: "0 9 * * MON")
	Timeout    string `toml:"timeout"`     // Webhook request timeout as duration string (default: "10s")
}

// SeedConfig points at an optional YAML fixture loaded at startup
type SeedConfig struct {
	File string `toml:"file"` // Path to a portfolio seed file; empty skips seeding
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in conspectus.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development", // Default to development mode
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Logging: LoggingConfig{
			Level:      "info",                     // Info level for production (debug|info|warn|error)
			Format:     "text",                     // Human-readable text format (text|json)
			Output:     []string{"stdout", "file"}, // Log to both console and file
			TimeFormat: "15:04:05.000",
		},
		Database: DatabaseConfig{
			URL:            "", // User must provide (SUPABASE_URL or config)
			APIKey:         "", // User must provide (SUPABASE_SERVICE_ROLE_KEY or config)
			OrganizationID: "a0000000-0000-0000-0000-000000000001", // Demo org until auth scoping lands
			Timeout:        "30s",
		},
		VectorStore: VectorStoreConfig{
			Backend:        "postgrest", // pgvector via the match_embeddings RPC
			MatchThreshold: 0.3,         // Similarity cutoff for search hits
			DefaultResults: 5,
			ChromaURL:      "http://localhost:8000",
			Collection:     "conspectus_portfolio",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		LLM: LLMConfig{
			Provider: LLMProviderClaude, // Default to Claude
		},
		Claude: ClaudeConfig{
			APIKey:    "",                          // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:     "claude-haiku-3-5-20241022", // Model for AI operations
			MaxTokens: 4096,                        // Default max tokens
			Timeout:   "2m",
		},
		Gemini: GeminiConfig{
			APIKey:  "",                       // User must provide API key (no fallback)
			Model:   "gemini-3-flash-preview", // Model for AI operations
			Timeout: "2m",
		},
		Embeddings: EmbeddingsConfig{
			Model:     "gemini-embedding-001",
			Dimension: 768, // Must match the database vector column
			BatchSize: 100, // Insert batch size for index rebuilds
		},
		Index: IndexConfig{
			RebuildOnStartup: true,
			StartupWait:      "30s",
		},
		Sync: SyncConfig{
			Enabled:  false,         // Disabled by default - user must explicitly opt-in
			Schedule: "0 */6 * * *", // Every 6 hours
			Linear: LinearSyncConfig{
				APIKey:    "",
				RateLimit: "500ms", // Stays well under Linear's request budget
				PageSize:  50,
			},
		},
		Notify: NotifyConfig{
			Enabled:    false, // Disabled by default - user must explicitly opt-in
			WebhookURL: "",
			Schedule:   "0 9 * * MON", // Monday morning briefing
			Timeout:    "10s",
		},
		Seed: SeedConfig{
			File: "",
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env -> CLI
// Priority system: CLI flags > Environment variables > Config file > Defaults
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority: default -> file1 -> file2 -> ... -> env -> CLI
// Later files override earlier files.
// Example: LoadFromFiles("base.toml", "override.toml") - override.toml settings take precedence over base.toml
func LoadFromFiles(paths ...string) (*Config, error) {
	// Start with defaults
	config := NewDefaultConfig()

	// Load and merge each config file in order (later files override earlier files)
	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		// Unmarshal into config (merges with existing values, later values override)
		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// Apply environment variables (overrides all file configs)
	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: CONSPECTUS_ENV, fallback: GO_ENV)
	if env := os.Getenv("CONSPECTUS_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("CONSPECTUS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CONSPECTUS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Logging configuration
	if level := os.Getenv("CONSPECTUS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("CONSPECTUS_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("CONSPECTUS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Database configuration
	// Standard Supabase env vars first, CONSPECTUS_ prefix takes priority
	if url := os.Getenv("SUPABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if url := os.Getenv("CONSPECTUS_DATABASE_URL"); url != "" {
		config.Database.URL = url
	}
	if key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); key != "" {
		config.Database.APIKey = key
	}
	if key := os.Getenv("CONSPECTUS_DATABASE_API_KEY"); key != "" {
		config.Database.APIKey = key
	}
	if orgID := os.Getenv("CONSPECTUS_DATABASE_ORG_ID"); orgID != "" {
		config.Database.OrganizationID = orgID
	}
	if timeout := os.Getenv("CONSPECTUS_DATABASE_TIMEOUT"); timeout != "" {
		if _, err := time.ParseDuration(timeout); err == nil {
			config.Database.Timeout = timeout
		}
	}

	// Vector store configuration
	if backend := os.Getenv("CONSPECTUS_VECTORSTORE_BACKEND"); backend != "" {
		config.VectorStore.Backend = backend
	}
	if threshold := os.Getenv("CONSPECTUS_VECTORSTORE_MATCH_THRESHOLD"); threshold != "" {
		if t, err := strconv.ParseFloat(threshold, 64); err == nil {
			config.VectorStore.MatchThreshold = t
		}
	}
	if results := os.Getenv("CONSPECTUS_VECTORSTORE_DEFAULT_RESULTS"); results != "" {
		if r, err := strconv.Atoi(results); err == nil && r > 0 {
			config.VectorStore.DefaultResults = r
		}
	}
	if url := os.Getenv("CONSPECTUS_CHROMA_URL"); url != "" {
		config.VectorStore.ChromaURL = url
	}
	if collection := os.Getenv("CONSPECTUS_CHROMA_COLLECTION"); collection != "" {
		config.VectorStore.Collection = collection
	}

	// Storage configuration
	if badgerPath := os.Getenv("CONSPECTUS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// LLM provider configuration (CONSPECTUS_ prefix first, bare name for compatibility)
	if provider := os.Getenv("CONSPECTUS_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	} else if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	}

	// Claude configuration
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if apiKey := os.Getenv("CONSPECTUS_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey // CONSPECTUS_ prefix takes priority
	}
	if model := os.Getenv("CONSPECTUS_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}
	if maxTokens := os.Getenv("CONSPECTUS_CLAUDE_MAX_TOKENS"); maxTokens != "" {
		if mt, err := strconv.Atoi(maxTokens); err == nil {
			config.Claude.MaxTokens = mt
		}
	}
	if timeout := os.Getenv("CONSPECTUS_CLAUDE_TIMEOUT"); timeout != "" {
		config.Claude.Timeout = timeout
	}

	// Gemini configuration
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if apiKey := os.Getenv("CONSPECTUS_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey // CONSPECTUS_ prefix takes priority
	}
	if model := os.Getenv("CONSPECTUS_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}
	if timeout := os.Getenv("CONSPECTUS_GEMINI_TIMEOUT"); timeout != "" {
		config.Gemini.Timeout = timeout
	}

	// Embeddings configuration
	if model := os.Getenv("CONSPECTUS_EMBEDDINGS_MODEL"); model != "" {
		config.Embeddings.Model = model
	}
	if dimension := os.Getenv("CONSPECTUS_EMBEDDINGS_DIMENSION"); dimension != "" {
		if d, err := strconv.Atoi(dimension); err == nil && d > 0 {
			config.Embeddings.Dimension = d
		}
	}
	if batchSize := os.Getenv("CONSPECTUS_EMBEDDINGS_BATCH_SIZE"); batchSize != "" {
		if b, err := strconv.Atoi(batchSize); err == nil && b > 0 {
			config.Embeddings.BatchSize = b
		}
	}

	// Index configuration
	if rebuild := os.Getenv("CONSPECTUS_INDEX_REBUILD_ON_STARTUP"); rebuild != "" {
		if r, err := strconv.ParseBool(rebuild); err == nil {
			config.Index.RebuildOnStartup = r
		}
	}
	if wait := os.Getenv("CONSPECTUS_INDEX_STARTUP_WAIT"); wait != "" {
		if _, err := time.ParseDuration(wait); err == nil {
			config.Index.StartupWait = wait
		}
	}

	// Sync configuration
	if enabled := os.Getenv("CONSPECTUS_SYNC_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Sync.Enabled = e
		}
	}
	if schedule := os.Getenv("CONSPECTUS_SYNC_SCHEDULE"); schedule != "" {
		config.Sync.Schedule = schedule
	}
	if apiKey := os.Getenv("LINEAR_API_KEY"); apiKey != "" {
		config.Sync.Linear.APIKey = apiKey
	}
	if apiKey := os.Getenv("CONSPECTUS_LINEAR_API_KEY"); apiKey != "" {
		config.Sync.Linear.APIKey = apiKey // CONSPECTUS_ prefix takes priority
	}
	if rateLimit := os.Getenv("CONSPECTUS_LINEAR_RATE_LIMIT"); rateLimit != "" {
		if _, err := time.ParseDuration(rateLimit); err == nil {
			config.Sync.Linear.RateLimit = rateLimit
		}
	}
	if pageSize := os.Getenv("CONSPECTUS_LINEAR_PAGE_SIZE"); pageSize != "" {
		if p, err := strconv.Atoi(pageSize); err == nil && p > 0 {
			config.Sync.Linear.PageSize = p
		}
	}

	// Notify configuration
	if enabled := os.Getenv("CONSPECTUS_NOTIFY_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Notify.Enabled = e
		}
	}
	if webhook := os.Getenv("SLACK_WEBHOOK_URL"); webhook != "" {
		config.Notify.WebhookURL = webhook
	}
	if webhook := os.Getenv("CONSPECTUS_NOTIFY_WEBHOOK_URL"); webhook != "" {
		config.Notify.WebhookURL = webhook // CONSPECTUS_ prefix takes priority
	}
	if schedule := os.Getenv("CONSPECTUS_NOTIFY_SCHEDULE"); schedule != "" {
		config.Notify.Schedule = schedule
	}

	// Seed configuration
	if seedFile := os.Getenv("CONSPECTUS_SEED_FILE"); seedFile != "" {
		config.Seed.File = seedFile
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks the configuration using go-playground/validator tags plus
// the cross-field rules the tags cannot express.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The selected provider must have credentials
	switch c.LLM.Provider {
	case LLMProviderClaude:
		if c.Claude.APIKey == "" {
			return fmt.Errorf("llm provider is claude but no API key is set (ANTHROPIC_API_KEY or claude.api_key)")
		}
	case LLMProviderGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("llm provider is gemini but no API key is set (GEMINI_API_KEY or gemini.api_key)")
		}
	}

	// Embeddings always run on Gemini regardless of the answer provider
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("embeddings require a Gemini API key (GEMINI_API_KEY or gemini.api_key)")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required (SUPABASE_URL or database.url)")
	}
	if c.Database.APIKey == "" {
		return fmt.Errorf("database API key is required (SUPABASE_SERVICE_ROLE_KEY or database.api_key)")
	}

	if _, err := time.ParseDuration(c.Index.StartupWait); err != nil {
		return fmt.Errorf("invalid index.startup_wait %q: %w", c.Index.StartupWait, err)
	}

	if c.Sync.Enabled {
		if c.Sync.Linear.APIKey == "" {
			return fmt.Errorf("sync is enabled but no Linear API key is set (LINEAR_API_KEY or sync.linear.api_key)")
		}
		if err := ValidateSchedule(c.Sync.Schedule); err != nil {
			return fmt.Errorf("invalid sync.schedule: %w", err)
		}
	}
	if c.Notify.Enabled {
		if c.Notify.WebhookURL == "" {
			return fmt.Errorf("notify is enabled but no webhook URL is set (SLACK_WEBHOOK_URL or notify.webhook_url)")
		}
		if err := ValidateSchedule(c.Notify.Schedule); err != nil {
			return fmt.Errorf("invalid notify.schedule: %w", err)
		}
	}

	return nil
}

// ValidateSchedule validates a cron schedule expression and ensures minimum 5-minute interval
func ValidateSchedule(schedule string) error {
	// Parse the cron expression
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// Check for minimum 5-minute interval
	// Validate minute field (first field in standard cron)
	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]

	// Check for patterns that violate 5-minute minimum
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}

	// Check for */n patterns where n < 5
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// DatabaseTimeout returns the parsed database request timeout
func (c *Config) DatabaseTimeout() time.Duration {
	d, err := time.ParseDuration(c.Database.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// IndexStartupWait returns the parsed startup readiness window
func (c *Config) IndexStartupWait() time.Duration {
	d, err := time.ParseDuration(c.Index.StartupWait)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// LinearRateLimit returns the parsed minimum interval between Linear requests
func (c *Config) LinearRateLimit() time.Duration {
	d, err := time.ParseDuration(c.Sync.Linear.RateLimit)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}

// NotifyTimeout returns the parsed Slack webhook request timeout
func (c *Config) NotifyTimeout() time.Duration {
	d, err := time.ParseDuration(c.Notify.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
