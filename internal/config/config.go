package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	FileName  = "flashgate.config.yaml"
	EnvPrefix = "FLASHGATE"
)

type Config struct {
	Service  Service  `json:"service" yaml:"service" mapstructure:"service"`
	Server   Server   `json:"server" yaml:"server" mapstructure:"server"`
	Database Database `json:"database" yaml:"database" mapstructure:"database"`
	Auth     Auth     `json:"auth" yaml:"auth" mapstructure:"auth"`
	Gateway  Gateway  `json:"gateway" yaml:"gateway" mapstructure:"gateway"`
	Logging  Logging  `json:"logging" yaml:"logging" mapstructure:"logging"`
}

type Service struct {
	Name    string `json:"name" yaml:"name" mapstructure:"name"`
	Version string `json:"version" yaml:"version" mapstructure:"version"`
}

type Server struct {
	Host        string        `json:"host" yaml:"host" mapstructure:"host"`
	Port        int           `json:"port" yaml:"port" mapstructure:"port"`
	ReadTimeout time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	BodyLimit   int           `json:"body_limit" yaml:"body_limit" mapstructure:"body_limit"`
}

type Database struct {
	Provider string `json:"provider" yaml:"provider" mapstructure:"provider"`
	URLEnv   string `json:"url_env" yaml:"url_env" mapstructure:"url_env"`
}

type Auth struct {
	TokenEnv string `json:"token_env" yaml:"token_env" mapstructure:"token_env"`
}

type Gateway struct {
	// RequireWipeConfirm makes delete without filters demand "confirm": true.
	RequireWipeConfirm bool `json:"require_wipe_confirm" yaml:"require_wipe_confirm" mapstructure:"require_wipe_confirm"`
}

type Logging struct {
	Level  string `json:"level" yaml:"level" mapstructure:"level"`
	Format string `json:"format" yaml:"format" mapstructure:"format"`
	Sink   Sink   `json:"sink" yaml:"sink" mapstructure:"sink"`
}

// Sink configures where error events are forwarded. Kind is "none", "http"
// or "redis".
type Sink struct {
	Kind     string        `json:"kind" yaml:"kind" mapstructure:"kind"`
	URL      string        `json:"url,omitempty" yaml:"url,omitempty" mapstructure:"url"`
	TokenEnv string        `json:"token_env,omitempty" yaml:"token_env,omitempty" mapstructure:"token_env"`
	RedisURL string        `json:"redis_url,omitempty" yaml:"redis_url,omitempty" mapstructure:"redis_url"`
	RedisKey string        `json:"redis_key,omitempty" yaml:"redis_key,omitempty" mapstructure:"redis_key"`
	Buffer   int           `json:"buffer" yaml:"buffer" mapstructure:"buffer"`
	Timeout  time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
}

// Default returns the configuration written by `flashgate init`.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// SetDefaults registers every default on v so environment overrides such as
// FLASHGATE_SERVER_PORT resolve through AutomaticEnv.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("service.name", d.Service.Name)
	v.SetDefault("service.version", d.Service.Version)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.body_limit", d.Server.BodyLimit)
	v.SetDefault("database.provider", d.Database.Provider)
	v.SetDefault("database.url_env", d.Database.URLEnv)
	v.SetDefault("auth.token_env", d.Auth.TokenEnv)
	v.SetDefault("gateway.require_wipe_confirm", d.Gateway.RequireWipeConfirm)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.sink.kind", d.Logging.Sink.Kind)
	v.SetDefault("logging.sink.url", d.Logging.Sink.URL)
	v.SetDefault("logging.sink.token_env", d.Logging.Sink.TokenEnv)
	v.SetDefault("logging.sink.redis_url", d.Logging.Sink.RedisURL)
	v.SetDefault("logging.sink.redis_key", d.Logging.Sink.RedisKey)
	v.SetDefault("logging.sink.buffer", d.Logging.Sink.Buffer)
	v.SetDefault("logging.sink.timeout", d.Logging.Sink.Timeout)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Service.Name == "" {
		c.Service.Name = "flashgate"
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8787
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.BodyLimit == 0 {
		c.Server.BodyLimit = 4 * 1024 * 1024
	}
	if c.Database.Provider == "" {
		c.Database.Provider = "sqlite"
	}
	if c.Database.URLEnv == "" {
		c.Database.URLEnv = "DATABASE_URL"
	}
	if c.Auth.TokenEnv == "" {
		c.Auth.TokenEnv = "FLASHGATE_TOKEN"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Sink.Kind == "" {
		c.Logging.Sink.Kind = "none"
	}
	if c.Logging.Sink.Buffer == 0 {
		c.Logging.Sink.Buffer = 256
	}
	if c.Logging.Sink.Timeout == 0 {
		c.Logging.Sink.Timeout = 2 * time.Second
	}
}

func (c *Config) GetDatabaseURL() (string, error) {
	dbURL := os.Getenv(c.Database.URLEnv)
	if dbURL == "" {
		return "", fmt.Errorf("database URL not found in environment variable %s", c.Database.URLEnv)
	}
	return dbURL, nil
}

// GetToken returns the shared bearer secret.
func (c *Config) GetToken() (string, error) {
	token := strings.TrimSpace(os.Getenv(c.Auth.TokenEnv))
	if token == "" {
		return "", fmt.Errorf("auth token not found in environment variable %s", c.Auth.TokenEnv)
	}
	return token, nil
}

// GetSinkToken returns the optional bearer token for the HTTP sink.
func (c *Config) GetSinkToken() string {
	if c.Logging.Sink.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.Logging.Sink.TokenEnv)
}

func (c *Config) Validate() error {
	supportedProviders := []string{"postgresql", "postgres", "sqlite", "sqlite3"}
	supported := false
	for _, provider := range supportedProviders {
		if c.Database.Provider == provider {
			supported = true
			break
		}
	}
	if !supported {
		return fmt.Errorf("unsupported database provider: %s. Supported providers: %v", c.Database.Provider, supportedProviders)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch c.Logging.Sink.Kind {
	case "none":
	case "http":
		if c.Logging.Sink.URL == "" {
			return fmt.Errorf("logging.sink.url is required for the http sink")
		}
	case "redis":
		if c.Logging.Sink.RedisURL == "" {
			return fmt.Errorf("logging.sink.redis_url is required for the redis sink")
		}
	default:
		return fmt.Errorf("unsupported log sink: %s. Supported sinks: [none http redis]", c.Logging.Sink.Kind)
	}

	return nil
}
