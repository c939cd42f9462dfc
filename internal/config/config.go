package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/iconidentify/wadh/pkg/curse"
)

// Config holds all application configuration.
type Config struct {
	Download DownloadConfig `yaml:"download"`
	Browser  BrowserConfig  `yaml:"browser"`
	Server   ServerConfig   `yaml:"server"`
	Events   EventsConfig   `yaml:"events"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

// DownloadConfig holds the addon list and where archives go.
type DownloadConfig struct {
	Folder       string   `yaml:"folder" envconfig:"WADH_DOWNLOAD_FOLDER" validate:"required"`
	URLs         []string `yaml:"urls" envconfig:"WADH_ADDON_URLS"`
	CleanFolder  bool     `yaml:"clean_folder" envconfig:"WADH_CLEAN_FOLDER"`
	MinFreeBytes uint64   `yaml:"min_free_bytes" envconfig:"WADH_MIN_FREE_BYTES"`
}

// BrowserConfig holds the embedded Chrome configuration.
type BrowserConfig struct {
	ExecPath       string        `yaml:"exec_path" envconfig:"WADH_CHROME_PATH"`
	UserDataDir    string        `yaml:"user_data_dir" envconfig:"WADH_CHROME_USER_DATA_DIR"`
	UserAgent      string        `yaml:"user_agent" envconfig:"WADH_USER_AGENT"`
	Headless       bool          `yaml:"headless" envconfig:"WADH_HEADLESS"`
	NoSandbox      bool          `yaml:"no_sandbox" envconfig:"WADH_NO_SANDBOX"`
	StartupTimeout time.Duration `yaml:"startup_timeout" envconfig:"WADH_CHROME_STARTUP_TIMEOUT"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Enabled      bool          `yaml:"enabled" envconfig:"WADH_SERVER_ENABLED"`
	Host         string        `yaml:"host" envconfig:"WADH_SERVER_HOST"`
	Port         int           `yaml:"port" envconfig:"WADH_SERVER_PORT" validate:"min=1,max=65535"`
	APIKey       string        `yaml:"api_key" envconfig:"WADH_API_KEY"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"WADH_SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"WADH_SERVER_WRITE_TIMEOUT"`
}

// EventsConfig holds activity log configuration.
type EventsConfig struct {
	BufferSize    int    `yaml:"buffer_size" envconfig:"WADH_EVENTS_BUFFER_SIZE" validate:"min=1"`
	SQLitePath    string `yaml:"sqlite_path" envconfig:"WADH_EVENTS_SQLITE_PATH"`
	RetentionDays int    `yaml:"retention_days" envconfig:"WADH_EVENTS_RETENTION_DAYS" validate:"min=0"`
}

// ScheduleConfig holds the unattended run schedule.
type ScheduleConfig struct {
	Cron string `yaml:"cron" envconfig:"WADH_SCHEDULE"`
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level  string `yaml:"level" envconfig:"WADH_LOG_LEVEL" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"WADH_LOG_FORMAT" validate:"oneof=json text auto"`
}

// Default returns the configuration used for unset values.
func Default() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:       true,
			StartupTimeout: 30 * time.Second,
		},
		Server: ServerConfig{
			Host:         "127.0.0.1",
			Port:         9848,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		Events: EventsConfig{
			BufferSize:    1000,
			RetentionDays: 30,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load reads configuration from defaults, the YAML file, a .env file in the
// working directory and the environment, in that order.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.Download.URLs = curse.NormalizeURLs(cfg.Download.URLs)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

var validate = validator.New()

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}

	if len(c.Download.URLs) == 0 && !c.Server.Enabled {
		return fmt.Errorf("no valid addon urls configured")
	}
	if c.Server.Enabled && c.Server.APIKey == "" {
		return fmt.Errorf("WADH_API_KEY is required when the server is enabled")
	}
	if c.Schedule.Cron != "" {
		if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", c.Schedule.Cron, err)
		}
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
