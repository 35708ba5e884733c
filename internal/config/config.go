package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the application.
type Config struct {
	Environment   string `mapstructure:"environment"`
	DevModeBypass bool   `mapstructure:"dev_mode_bypass"`

	Server struct {
		Addr            string        `mapstructure:"addr"`
		ReadTimeout     time.Duration `mapstructure:"read_timeout"`
		WriteTimeout    time.Duration `mapstructure:"write_timeout"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	DB struct {
		Driver   string `mapstructure:"driver"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
		// Elevated credentials bypass row-level policies; used only for
		// counter writes. Empty means reuse the primary credentials.
		Elevated struct {
			User     string `mapstructure:"user"`
			Password string `mapstructure:"password"`
		} `mapstructure:"elevated"`
	} `mapstructure:"db"`
	Auth struct {
		OktaDomain      string `mapstructure:"okta_domain"`
		ClientID        string `mapstructure:"client_id"`
		ClientSecret    string `mapstructure:"client_secret"`
		RedirectURL     string `mapstructure:"redirect_url"`
		SwaggerClientID string `mapstructure:"swagger_client_id"`
	} `mapstructure:"auth"`
	Engine EngineConfig `mapstructure:"engine"`
	Log    struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	MCP struct {
		Enabled  bool   `mapstructure:"enabled"`
		BasePath string `mapstructure:"base_path"`
	} `mapstructure:"mcp"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// TelemetryConfig selects the OpenTelemetry exporters. With Enabled false
// no-op providers are installed.
type TelemetryConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ServiceName    string        `mapstructure:"service_name"`
	Stdout         bool          `mapstructure:"stdout"`
	OTLPEndpoint   string        `mapstructure:"otlp_endpoint"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// EngineConfig tunes the content consistency rules.
type EngineConfig struct {
	SlugAttempts        int  `mapstructure:"slug_attempts"`
	SlugSuffixLen       int  `mapstructure:"slug_suffix_len"`
	AtomicCounters      bool `mapstructure:"atomic_counters"`
	MaxTags             int  `mapstructure:"max_tags"`
	RejectNestedReplies bool `mapstructure:"reject_nested_replies"`
	AllowSelfPin        bool `mapstructure:"allow_self_pin"`
}

// DefaultEngine returns the engine settings used when nothing is configured.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		SlugAttempts:        10,
		SlugSuffixLen:       4,
		AtomicCounters:      true,
		MaxTags:             10,
		RejectNestedReplies: true,
	}
}

const envPrefix = "PROMPTFLOWS"

// LoadConfig loads the configuration from a file and the environment. An
// empty path searches for config.yaml in . and ./config; a missing file is
// not an error, since every key can come from the environment.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// normalize OKTA issuer url (strip trailing slash if any)
	config.Auth.OktaDomain = normalizeOktaIssuer(config.Auth.OktaDomain)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	engine := DefaultEngine()

	v.SetDefault("environment", "PROD")
	v.SetDefault("dev_mode_bypass", false)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.max_conns", 10)
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.name", "promptflows")
	v.SetDefault("db.elevated.user", "")
	v.SetDefault("db.elevated.password", "")
	v.SetDefault("auth.okta_domain", "")
	v.SetDefault("auth.client_id", "")
	v.SetDefault("auth.client_secret", "")
	v.SetDefault("auth.redirect_url", "")
	v.SetDefault("auth.swagger_client_id", "")
	v.SetDefault("engine.slug_attempts", engine.SlugAttempts)
	v.SetDefault("engine.slug_suffix_len", engine.SlugSuffixLen)
	v.SetDefault("engine.atomic_counters", engine.AtomicCounters)
	v.SetDefault("engine.max_tags", engine.MaxTags)
	v.SetDefault("engine.reject_nested_replies", engine.RejectNestedReplies)
	v.SetDefault("engine.allow_self_pin", engine.AllowSelfPin)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("mcp.enabled", true)
	v.SetDefault("mcp.base_path", "/mcp")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "promptflows")
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.export_interval", 30*time.Second)
}

// Validate checks settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	switch c.DB.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("config: unknown db.driver %q", c.DB.Driver)
	}
	if c.Engine.SlugAttempts < 1 {
		return fmt.Errorf("config: engine.slug_attempts must be positive, got %d", c.Engine.SlugAttempts)
	}
	if c.Engine.SlugSuffixLen < 1 {
		return fmt.Errorf("config: engine.slug_suffix_len must be positive, got %d", c.Engine.SlugSuffixLen)
	}
	if c.Telemetry.Enabled && c.Telemetry.ExportInterval <= 0 {
		return fmt.Errorf("config: telemetry.export_interval must be positive, got %s", c.Telemetry.ExportInterval)
	}
	if c.Engine.MaxTags < 0 {
		return fmt.Errorf("config: engine.max_tags must not be negative, got %d", c.Engine.MaxTags)
	}
	return nil
}

// IsDev reports whether the service runs in the DEV environment.
func (c *Config) IsDev() bool {
	return strings.EqualFold(c.Environment, "DEV")
}

// ConnString builds a pgx connection string for the primary credentials.
func (c *Config) ConnString() string {
	return c.connString(c.DB.User, c.DB.Password)
}

// ElevatedConnString builds the connection string for counter writes.
func (c *Config) ElevatedConnString() string {
	if c.DB.Elevated.User == "" {
		return c.ConnString()
	}
	return c.connString(c.DB.Elevated.User, c.DB.Elevated.Password)
}

func (c *Config) connString(user, password string) string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=%d",
		c.DB.Host, c.DB.Port, user, password, c.DB.Name, c.DB.SSLMode, c.DB.MaxConns,
	)
}

// normalizeOktaIssuer ensures the provided Okta issuer string is in a
// predictable form. It removes any trailing slash and leaves the scheme and
// path intact.
func normalizeOktaIssuer(input string) string {
	return strings.TrimRight(strings.TrimSpace(input), "/")
}
