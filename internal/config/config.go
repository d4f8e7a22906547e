package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	AI       AIConfig       `yaml:"ai"`
	Worker   WorkerConfig   `yaml:"worker"`
	Parser   ParserConfig   `yaml:"parser"`
	Logging  LoggingConfig  `yaml:"logging"`
	Client   ClientConfig   `yaml:"client"`
}

type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes"`
}

// DatabaseConfig selects the driver. "postgres" builds its DSN from the
// host/port/user fields unless DSN is set; the sqlite drivers use DSN as a path.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres | sqlite | sqlite3
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	TokenTTL  string `yaml:"token_ttl"`
}

type AIConfig struct {
	Provider     string `yaml:"provider"` // heuristic | openai | gemini
	OpenAIKey    string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	AssistantID  string `yaml:"openai_assistant_id"`
	GeminiKey    string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	Timeout      string `yaml:"timeout"`
	PollInterval string `yaml:"poll_interval"`
}

type WorkerConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	EntryParallel  int    `yaml:"entry_parallelism"`
	RescanInterval string `yaml:"rescan_interval"`
}

type ParserConfig struct {
	Timezone               string `yaml:"timezone"`
	DefaultDurationMinutes int    `yaml:"default_duration_minutes"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// ClientConfig is injected into the API client at bootstrap. BaseURL wins
// over the per-environment defaults.
type ClientConfig struct {
	Environment string            `yaml:"environment"`
	BaseURL     string            `yaml:"base_url"`
	BaseURLs    map[string]string `yaml:"base_urls"`
	TokenFile   string            `yaml:"token_file"`
	Timeout     string            `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 5 << 20,
		},
		Database: DatabaseConfig{
			Driver:  "postgres",
			Port:    5432,
			SSLMode: "disable",
		},
		Auth: AuthConfig{
			TokenTTL: "720h",
		},
		AI: AIConfig{
			Provider:     "heuristic",
			OpenAIModel:  "gpt-4o-mini",
			GeminiModel:  "gemini-2.0-flash",
			Timeout:      "60s",
			PollInterval: "700ms",
		},
		Worker: WorkerConfig{
			Workers:        2,
			QueueSize:      64,
			EntryParallel:  4,
			RescanInterval: "30s",
		},
		Parser: ParserConfig{
			Timezone:               "Asia/Ho_Chi_Minh",
			DefaultDurationMinutes: 90,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Client: ClientConfig{
			Environment: "development",
			BaseURLs: map[string]string{
				"development": "http://localhost:8080",
				"staging":     "https://staging-api.schedule.local",
				"production":  "https://api.schedule.local",
			},
			Timeout: "30s",
		},
	}
}

// Load reads path (if non-empty and present) over the defaults and then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv("DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database.Name = v
	}

	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.Auth.JWTSecret = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.AI.OpenAIKey = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.AI.OpenAIModel = v
	}
	if v := os.Getenv("OPENAI_ASSISTANT_ID"); v != "" {
		c.AI.AssistantID = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.AI.GeminiKey = v
	}
	if v := os.Getenv("AI_PROVIDER"); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}

	if v := os.Getenv("API_BASE_URL"); v != "" {
		c.Client.BaseURL = v
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Client.Environment = v
	}
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case "postgres":
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, errors.New("database: host or dsn is required for postgres"))
		}
	case "sqlite", "sqlite3":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database: dsn is required for sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("database: unknown driver %q", c.Database.Driver))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth: jwt_secret is required"))
	}

	switch c.AI.Provider {
	case "heuristic":
	case "openai":
		if c.AI.OpenAIKey == "" || c.AI.AssistantID == "" {
			errs = append(errs, errors.New("ai: openai provider needs api key and assistant id"))
		}
	case "gemini":
		if c.AI.GeminiKey == "" {
			errs = append(errs, errors.New("ai: gemini provider needs api key"))
		}
	default:
		errs = append(errs, fmt.Errorf("ai: unknown provider %q", c.AI.Provider))
	}

	if c.Worker.Workers < 1 {
		errs = append(errs, errors.New("worker: workers must be >= 1"))
	}
	if _, err := time.LoadLocation(c.Parser.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("parser: timezone: %w", err))
	}

	return errors.Join(errs...)
}

func (c *Config) ConnString() string {
	if c.Database.DSN != "" {
		return c.Database.DSN
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User, c.Database.Password, c.Database.Name, c.Database.SSLMode,
	)
}

// ResolveBaseURL returns the API endpoint for the configured environment.
func (c ClientConfig) ResolveBaseURL() (string, error) {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/"), nil
	}
	if u, ok := c.BaseURLs[c.Environment]; ok && u != "" {
		return strings.TrimRight(u, "/"), nil
	}
	return "", fmt.Errorf("no base url for environment %q", c.Environment)
}

// Duration parses a config duration string, falling back to def when empty or invalid.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
