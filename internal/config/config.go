package config

import (
	"fmt"
	"os"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Facebook  FacebookConfig  `mapstructure:"facebook"`
	AI        AIConfig        `mapstructure:"ai"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Tracker   TrackerConfig   `mapstructure:"tracker"`
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite
	DSN    string `mapstructure:"dsn"`    // Connection string
}

// FacebookConfig holds Graph API settings
type FacebookConfig struct {
	AppID        string   `mapstructure:"app_id"`
	AppSecret    string   `mapstructure:"app_secret"`
	RedirectURI  string   `mapstructure:"redirect_uri"`
	Scopes       []string `mapstructure:"scopes"`
	GraphVersion string   `mapstructure:"graph_version"`
	PageID       string   `mapstructure:"page_id"` // default destination page
	// Token injection from environment (for headless deployment)
	AccessToken    string `mapstructure:"access_token"`
	TokenExpiresAt string `mapstructure:"token_expires_at"`
}

// AIConfig selects the generative caption provider
type AIConfig struct {
	Provider string `mapstructure:"provider"` // gemini or anthropic
	Language string `mapstructure:"language"` // caption language, e.g. "English"
}

// GeminiConfig holds Gemini API settings
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// AnthropicConfig holds Claude API settings
type AnthropicConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ScheduleConfig holds the defaults for bulk scheduling runs
type ScheduleConfig struct {
	Window          string `mapstructure:"window"` // "HH:MM-HH:MM"
	IntervalMinutes int    `mapstructure:"interval_minutes"`
	Smart           bool   `mapstructure:"smart"`
	Timezone        string `mapstructure:"timezone"`
	CaptionMode     string `mapstructure:"caption_mode"` // demo, filename, image_analysis
	DemoCaption     string `mapstructure:"demo_caption"`
	PlaceID         string `mapstructure:"place_id"`
}

// SchedulerConfig holds daemon settings
type SchedulerConfig struct {
	InsightsCron string `mapstructure:"insights_cron"`
	NewsCron     string `mapstructure:"news_cron"`
	NewsPerRun   int    `mapstructure:"news_per_run"`
	ControlAddr  string `mapstructure:"control_addr"`
}

// SourcesConfig holds news source configurations
type SourcesConfig struct {
	RSS    RSSConfig    `mapstructure:"rss"`
	Custom CustomConfig `mapstructure:"custom"`
}

// RSSConfig holds RSS feed settings
type RSSConfig struct {
	Enabled    bool      `mapstructure:"enabled"`
	Feeds      []RSSFeed `mapstructure:"feeds"`
	MaxAgeDays int       `mapstructure:"max_age_days"`
}

// RSSFeed represents a single RSS feed
type RSSFeed struct {
	Name string `mapstructure:"name"`
	URL  string `mapstructure:"url"`
}

// CustomConfig holds hand-written facts for fact cards
type CustomConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Facts   []CustomFact `mapstructure:"facts"`
}

// CustomFact is one fact card seed
type CustomFact struct {
	Title   string `mapstructure:"title"`
	Summary string `mapstructure:"summary"`
	URL     string `mapstructure:"url"`
}

// RateLimitConfig holds rate limiting settings
type RateLimitConfig struct {
	GraphRequestsPerHour       int `mapstructure:"graph_requests_per_hour"`
	GeminiRequestsPerMinute    int `mapstructure:"gemini_requests_per_minute"`
	AnthropicRequestsPerMinute int `mapstructure:"anthropic_requests_per_minute"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json or console
	Output string `mapstructure:"output"` // stdout or file path
}

// TrackerConfig holds Google Sheets tracker settings
type TrackerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	SpreadsheetID      string `mapstructure:"spreadsheet_id"`
	SheetName          string `mapstructure:"sheet_name"`
	CredentialsFile    string `mapstructure:"credentials_file"`
	ServiceAccountJSON string `mapstructure:"service_account_json"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Load .env file if present (ignore errors if not found)
	_ = godotenv.Load()
	_ = godotenv.Load(".env.local")

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".fbpage-agent"))
		}
	}

	v.SetEnvPrefix("FBPAGE")
	v.AutomaticEnv()

	// Explicit bindings for nested keys (Viper doesn't auto-bind underscored nested keys)
	v.BindEnv("facebook.app_id", "FBPAGE_FACEBOOK_APP_ID")
	v.BindEnv("facebook.app_secret", "FBPAGE_FACEBOOK_APP_SECRET")
	v.BindEnv("facebook.page_id", "FBPAGE_FACEBOOK_PAGE_ID")
	v.BindEnv("facebook.access_token", "FBPAGE_FACEBOOK_ACCESS_TOKEN")
	v.BindEnv("facebook.token_expires_at", "FBPAGE_FACEBOOK_TOKEN_EXPIRES_AT")
	v.BindEnv("ai.provider", "FBPAGE_AI_PROVIDER")
	v.BindEnv("gemini.api_key", "FBPAGE_GEMINI_API_KEY")
	v.BindEnv("anthropic.api_key", "FBPAGE_ANTHROPIC_API_KEY")
	v.BindEnv("database.dsn", "FBPAGE_DATABASE_DSN")
	v.BindEnv("tracker.enabled", "FBPAGE_TRACKER_ENABLED")
	v.BindEnv("tracker.spreadsheet_id", "FBPAGE_TRACKER_SPREADSHEET_ID")
	v.BindEnv("tracker.credentials_file", "FBPAGE_TRACKER_CREDENTIALS_FILE")
	v.BindEnv("tracker.service_account_json", "FBPAGE_TRACKER_SERVICE_ACCOUNT_JSON")
	v.BindEnv("scheduler.control_addr", "FBPAGE_SCHEDULER_CONTROL_ADDR")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/fbpage.db")

	v.SetDefault("facebook.redirect_uri", "http://localhost:8080/callback")
	v.SetDefault("facebook.scopes", []string{
		"pages_show_list",
		"pages_read_engagement",
		"pages_manage_posts",
		"read_insights",
	})
	v.SetDefault("facebook.graph_version", "v19.0")

	v.SetDefault("ai.provider", "gemini")
	v.SetDefault("ai.language", "English")

	v.SetDefault("gemini.model", "gemini-2.5-flash")
	v.SetDefault("gemini.temperature", 0.8)

	v.SetDefault("anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.7)

	v.SetDefault("schedule.window", "09:00-21:00")
	v.SetDefault("schedule.interval_minutes", 60)
	v.SetDefault("schedule.smart", false)
	v.SetDefault("schedule.timezone", "Local")
	v.SetDefault("schedule.caption_mode", "filename")
	v.SetDefault("schedule.demo_caption", "A moment worth sharing with everyone who follows our page.")

	v.SetDefault("scheduler.insights_cron", "0 3 * * *") // 3am daily, before the morning window
	v.SetDefault("scheduler.news_cron", "0 7 * * *")
	v.SetDefault("scheduler.news_per_run", 3)
	v.SetDefault("scheduler.control_addr", ":10000")

	v.SetDefault("sources.rss.enabled", false)
	v.SetDefault("sources.rss.max_age_days", 2)
	v.SetDefault("sources.custom.enabled", false)

	v.SetDefault("rate_limit.graph_requests_per_hour", 200)
	v.SetDefault("rate_limit.gemini_requests_per_minute", 15)
	v.SetDefault("rate_limit.anthropic_requests_per_minute", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("tracker.enabled", false)
	v.SetDefault("tracker.sheet_name", "Published")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.AI,
		validation.Field(&c.AI.Provider, validation.Required, validation.In("gemini", "anthropic")),
		validation.Field(&c.AI.Language, validation.Required),
	); err != nil {
		return fmt.Errorf("ai: %w", err)
	}

	if err := validation.ValidateStruct(&c.Gemini,
		validation.Field(&c.Gemini.APIKey, validation.When(c.AI.Provider == "gemini", validation.Required)),
		validation.Field(&c.Gemini.Model, validation.When(c.AI.Provider == "gemini", validation.Required)),
	); err != nil {
		return fmt.Errorf("gemini: %w", err)
	}

	if err := validation.ValidateStruct(&c.Anthropic,
		validation.Field(&c.Anthropic.APIKey, validation.When(c.AI.Provider == "anthropic", validation.Required)),
		validation.Field(&c.Anthropic.Model, validation.When(c.AI.Provider == "anthropic", validation.Required)),
	); err != nil {
		return fmt.Errorf("anthropic: %w", err)
	}

	if err := validation.ValidateStruct(&c.Schedule,
		validation.Field(&c.Schedule.Window, validation.Required),
		validation.Field(&c.Schedule.IntervalMinutes, validation.Min(1)),
		validation.Field(&c.Schedule.CaptionMode, validation.In("demo", "filename", "image_analysis")),
	); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}

	if c.Tracker.Enabled {
		if err := validation.ValidateStruct(&c.Tracker,
			validation.Field(&c.Tracker.SpreadsheetID, validation.Required),
		); err != nil {
			return fmt.Errorf("tracker: %w", err)
		}
	}

	return nil
}

// ValidateFacebookApp checks the settings required for the OAuth login flow
func (c *Config) ValidateFacebookApp() error {
	return validation.ValidateStruct(&c.Facebook,
		validation.Field(&c.Facebook.AppID, validation.Required),
		validation.Field(&c.Facebook.AppSecret, validation.Required),
		validation.Field(&c.Facebook.RedirectURI, validation.Required),
	)
}
