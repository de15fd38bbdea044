package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
)

// Config represents the application configuration
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Server      ServerConfig      `mapstructure:"server"`
	Gmail       GmailConfig       `mapstructure:"gmail"`
	Backend     BackendConfig     `mapstructure:"backend"`
	Scanner     ScannerConfig     `mapstructure:"scanner"`
	Dedup       DedupConfig       `mapstructure:"dedup"`
	TicketCache TicketCacheConfig `mapstructure:"ticket_cache"`
	SMTP        SMTPConfig        `mapstructure:"smtp"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

type AppConfig struct {
	Name  string `mapstructure:"name"`
	Env   string `mapstructure:"env"`
	Debug bool   `mapstructure:"debug"`
}

// ServerConfig covers the HTTP surface that accepts reply-send requests.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	APIKey          string        `mapstructure:"api_key"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// GmailConfig describes the mailbox provider account being bridged.
type GmailConfig struct {
	UserID          string `mapstructure:"user_id"`
	Query           string `mapstructure:"query"`
	MaxResults      int64  `mapstructure:"max_results"`
	CredentialsFile string `mapstructure:"credentials_file"`
	TokenFile       string `mapstructure:"token_file"`
}

// BackendConfig points at the ticketing backend REST API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ScannerConfig struct {
	Interval     time.Duration `mapstructure:"interval"`
	Workers      int           `mapstructure:"workers"`
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type DedupConfig struct {
	RefreshInterval   time.Duration `mapstructure:"refresh_interval"`
	BootstrapAttempts int           `mapstructure:"bootstrap_attempts"`
	BootstrapDelay    time.Duration `mapstructure:"bootstrap_delay"`
}

type TicketCacheConfig struct {
	InvalidateInterval time.Duration `mapstructure:"invalidate_interval"`
}

// SMTPConfig is used for outbound reply delivery.
type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	AuthType   string `mapstructure:"auth_type"` // plain|login
	TLSMode    string `mapstructure:"tls_mode"`  // none|starttls|smtps
	SkipVerify bool   `mapstructure:"skip_verify"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// Load initializes the configuration with hot reload support
func Load(configPath string) error {
	var err error
	once.Do(func() {
		v := viper.New()
		v.SetConfigType("yaml")
		setDefaults(v)

		v.SetConfigName("default")
		v.AddConfigPath(configPath)
		if err = v.ReadInConfig(); err != nil {
			err = fmt.Errorf("failed to read default config: %w", err)
			return
		}

		// Environment-specific overrides are optional
		v.SetConfigName("config")
		if err = v.MergeInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				err = fmt.Errorf("failed to merge config: %w", err)
				return
			}
			err = nil
		}

		v.SetEnvPrefix("MAILBRIDGE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			err = fmt.Errorf("failed to unmarshal config: %w", err)
			return
		}
		if err = cfg.Validate(); err != nil {
			return
		}

		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			mu.Lock()
			defer mu.Unlock()

			newCfg := &Config{}
			if err := v.Unmarshal(newCfg); err != nil {
				fmt.Printf("Failed to reload config: %v\n", err)
				return
			}
			if err := newCfg.Validate(); err != nil {
				fmt.Printf("Rejected reloaded config: %v\n", err)
				return
			}
			cfg = newCfg
		})
	})

	return err
}

// Get returns the current configuration (thread-safe)
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// LoadFromFile loads configuration from a specific file (useful for testing)
func LoadFromFile(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configFile)
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "mailbridge")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.query", "in:inbox")
	v.SetDefault("gmail.max_results", 50)
	v.SetDefault("gmail.credentials_file", "credentials.json")
	v.SetDefault("gmail.token_file", "token.json")

	v.SetDefault("backend.timeout", 30*time.Second)

	v.SetDefault("scanner.interval", time.Minute)
	v.SetDefault("scanner.workers", 3)
	v.SetDefault("scanner.drain_timeout", 60*time.Second)

	v.SetDefault("dedup.refresh_interval", 10*time.Minute)
	v.SetDefault("dedup.bootstrap_attempts", 3)
	v.SetDefault("dedup.bootstrap_delay", 5*time.Second)

	v.SetDefault("ticket_cache.invalidate_interval", time.Hour)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.auth_type", "plain")
	v.SetDefault("smtp.tls_mode", "starttls")

	v.SetDefault("metrics.enabled", true)
}

// Validate checks the fields without which the bridge cannot run.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.Scanner.Workers <= 0 {
		return fmt.Errorf("scanner.workers must be positive")
	}
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive")
	}
	if c.Dedup.BootstrapAttempts <= 0 {
		return fmt.Errorf("dedup.bootstrap_attempts must be positive")
	}
	return nil
}

// GetServerAddr returns the server listen address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
