package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultURL is the VK Teams Bot API server used when none is configured.
	DefaultURL = "https://api.internal.myteam.mail.ru"
	// DefaultBasePath prefixes every Bot API endpoint.
	DefaultBasePath = "/bot/v1/"

	defaultTimeoutSeconds      = 30
	defaultPollTimeSeconds     = 15
	defaultRetries             = 2
	defaultErrorBackoffMS      = 1000
	defaultSweepSeconds        = 60
	defaultExpireSeconds       = 300
	defaultUpdateExpireSeconds = 15
	defaultSenderQueue         = 256
	defaultSenderWorkers       = 4

	// DefaultExpiredText is sent to a user whose session was swept when notify_on_expiry is on.
	DefaultExpiredText = "the session has expired, you have been transferred to the main menu"
)

const (
	// EventMessage identifies new/edited/pinned message events for rate limit exclusions.
	EventMessage = "message"
	// EventCallback identifies callbackQuery events for rate limit exclusions.
	EventCallback = "callback"
	// EventMembers identifies chat membership events for rate limit exclusions.
	EventMembers = "members"
)

// VKTeamsConfig holds Bot API connection and polling settings.
type VKTeamsConfig struct {
	Token    string `yaml:"token" envconfig:"VKTEAMS_BOT_TOKEN"`
	URL      string `yaml:"url" envconfig:"VKTEAMS_URL"`
	BasePath string `yaml:"base_path" envconfig:"VKTEAMS_BASE_PATH"`
	// TimeoutSeconds bounds a single HTTP call end to end.
	TimeoutSeconds int `yaml:"timeout_seconds" envconfig:"VKTEAMS_TIMEOUT_SECONDS"`
	// PollTimeSeconds is how long the server may hold events/get open.
	PollTimeSeconds int   `yaml:"poll_time_seconds" envconfig:"VKTEAMS_POLL_TIME_SECONDS"`
	LastEventID     int64 `yaml:"last_event_id" envconfig:"VKTEAMS_LAST_EVENT_ID"`
	PollRetries     int   `yaml:"poll_retries" envconfig:"VKTEAMS_POLL_RETRIES"`
	RequestRetries  int   `yaml:"request_retries" envconfig:"VKTEAMS_REQUEST_RETRIES"`
	RetryDelayMS    int   `yaml:"retry_delay_ms" envconfig:"VKTEAMS_RETRY_DELAY_MS"`
	ErrorBackoffMS  int   `yaml:"error_backoff_ms" envconfig:"VKTEAMS_ERROR_BACKOFF_MS"`
	// MaxConcurrency caps in-flight dispatches; 0 means unbounded.
	MaxConcurrency int `yaml:"max_concurrency" envconfig:"VKTEAMS_MAX_CONCURRENCY"`
}

// StateConfig controls the in-memory user state store.
type StateConfig struct {
	SweepIntervalSeconds int    `yaml:"sweep_interval_seconds" envconfig:"STATE_SWEEP_INTERVAL_SECONDS"`
	NotifyOnExpiry       bool   `yaml:"notify_on_expiry" envconfig:"STATE_NOTIFY_ON_EXPIRY"`
	ExpireSeconds        int    `yaml:"expire_seconds" envconfig:"STATE_EXPIRE_SECONDS"`
	UpdateExpireSeconds  int    `yaml:"update_expire_seconds" envconfig:"STATE_UPDATE_EXPIRE_SECONDS"`
	ExpiredText          string `yaml:"expired_text" envconfig:"STATE_EXPIRED_TEXT"`
}

// AccessConfig restricts which chats may use the bot. Empty means everyone.
type AccessConfig struct {
	AllowedChats []string `yaml:"allowed_chats" envconfig:"ACCESS_ALLOWED_CHATS"`
	RejectText   string   `yaml:"reject_text" envconfig:"ACCESS_REJECT_TEXT"`
	AdminChats   []string `yaml:"admin_chats" envconfig:"ACCESS_ADMIN_CHATS"`
}

// RateLimitConfig holds settings for rate limiting.
// ExcludeEvents accepts event groups that bypass limiting:
// - "message": new, edited and pinned messages
// - "callback": button presses
// - "members": chat membership changes
type RateLimitConfig struct {
	IntervalMS    int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeEvents []string `yaml:"exclude_events" envconfig:"RATE_LIMIT_EXCLUDE_EVENTS"`
}

// SenderConfig sizes the asynchronous outbox.
type SenderConfig struct {
	QueueSize int `yaml:"queue_size" envconfig:"SENDER_QUEUE_SIZE"`
	Workers   int `yaml:"workers" envconfig:"SENDER_WORKERS"`
}

// DatabaseConfig enables the Postgres cursor checkpoint.
type DatabaseConfig struct {
	Enabled        bool   `yaml:"enabled" envconfig:"DB_ENABLED"`
	Host           string `yaml:"host" envconfig:"DB_HOST"`
	Port           string `yaml:"port" envconfig:"DB_PORT"`
	User           string `yaml:"user" envconfig:"DB_USER"`
	Password       string `yaml:"password" envconfig:"DB_PASSWORD"`
	Name           string `yaml:"name" envconfig:"DB_NAME"`
	SSLMode        string `yaml:"sslmode" envconfig:"DB_SSLMODE"`
	MaxConnections int    `yaml:"max_connections" envconfig:"DB_MAX_CONNECTIONS"`
	// MigrationsDir defaults to ./migrations relative to the working directory.
	MigrationsDir string `yaml:"migrations_dir" envconfig:"DB_MIGRATIONS_DIR"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// Config aggregates the configuration of a VK Teams bot process.
type Config struct {
	VKTeams   VKTeamsConfig   `yaml:"vkteams"`
	State     StateConfig     `yaml:"state"`
	Access    AccessConfig    `yaml:"access"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Sender    SenderConfig    `yaml:"sender"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates required fields and fills in defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	vk := &cfg.VKTeams
	vk.Token = strings.TrimSpace(vk.Token)
	if vk.Token == "" {
		return fmt.Errorf("vkteams token is required")
	}
	vk.URL = strings.TrimRight(strings.TrimSpace(vk.URL), "/")
	if vk.URL == "" {
		vk.URL = DefaultURL
	}
	if !strings.HasPrefix(vk.URL, "http://") && !strings.HasPrefix(vk.URL, "https://") {
		return fmt.Errorf("vkteams.url must start with http:// or https://, got %q", vk.URL)
	}
	vk.BasePath = normalizeBasePath(vk.BasePath)

	if vk.TimeoutSeconds < 0 || vk.PollTimeSeconds < 0 {
		return fmt.Errorf("vkteams.timeout_seconds and vkteams.poll_time_seconds must be >= 0")
	}
	if vk.TimeoutSeconds == 0 {
		vk.TimeoutSeconds = defaultTimeoutSeconds
	}
	if vk.PollTimeSeconds == 0 {
		vk.PollTimeSeconds = defaultPollTimeSeconds
	}
	if vk.PollTimeSeconds >= vk.TimeoutSeconds {
		return fmt.Errorf("vkteams.poll_time_seconds (%d) must be lower than vkteams.timeout_seconds (%d)",
			vk.PollTimeSeconds, vk.TimeoutSeconds)
	}
	if vk.LastEventID < 0 {
		return fmt.Errorf("vkteams.last_event_id must be >= 0")
	}
	if vk.PollRetries < 0 || vk.RequestRetries < 0 {
		return fmt.Errorf("vkteams retries must be >= 0")
	}
	if vk.PollRetries == 0 {
		vk.PollRetries = defaultRetries
	}
	if vk.RequestRetries == 0 {
		vk.RequestRetries = defaultRetries
	}
	if vk.RetryDelayMS < 0 {
		return fmt.Errorf("vkteams.retry_delay_ms must be >= 0")
	}
	if vk.ErrorBackoffMS <= 0 {
		vk.ErrorBackoffMS = defaultErrorBackoffMS
	}
	if vk.MaxConcurrency < 0 {
		return fmt.Errorf("vkteams.max_concurrency must be >= 0")
	}

	st := &cfg.State
	if st.SweepIntervalSeconds <= 0 {
		st.SweepIntervalSeconds = defaultSweepSeconds
	}
	if st.ExpireSeconds <= 0 {
		st.ExpireSeconds = defaultExpireSeconds
	}
	if st.UpdateExpireSeconds <= 0 {
		st.UpdateExpireSeconds = defaultUpdateExpireSeconds
	}
	if strings.TrimSpace(st.ExpiredText) == "" {
		st.ExpiredText = DefaultExpiredText
	}

	if cfg.Sender.QueueSize <= 0 {
		cfg.Sender.QueueSize = defaultSenderQueue
	}
	if cfg.Sender.Workers <= 0 {
		cfg.Sender.Workers = defaultSenderWorkers
	}

	allowed := map[string]struct{}{
		EventMessage:  {},
		EventCallback: {},
		EventMembers:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeEvents {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_events value %q; allowed: message, callback, members", v)
		}
		cfg.RateLimit.ExcludeEvents[i] = key
	}

	cfg.Access.AllowedChats = trimAll(cfg.Access.AllowedChats)
	cfg.Access.AdminChats = trimAll(cfg.Access.AdminChats)

	if cfg.Database.Enabled {
		if strings.TrimSpace(cfg.Database.Host) == "" || strings.TrimSpace(cfg.Database.Name) == "" {
			return fmt.Errorf("database.host and database.name are required when database.enabled is true")
		}
		if cfg.Database.SSLMode == "" {
			cfg.Database.SSLMode = "disable"
		}
		if cfg.Database.Port == "" {
			cfg.Database.Port = "5432"
		}
		if cfg.Database.MaxConnections <= 0 {
			cfg.Database.MaxConnections = 2
		}
	}
	return nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

func trimAll(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
