package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nhle/quality-escalation/internal/logger"
)

// envPrefix is prepended to every environment override,
// e.g. ESCALATION_ESCALATION_COOLDOWN=5m.
const envPrefix = "ESCALATION"

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" or "mongo".
	Driver string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite mongo"`

	// Path is the SQLite database file.
	Path string `mapstructure:"path" yaml:"path" validate:"required_if=Driver sqlite"`

	MongoURI      string `mapstructure:"mongo_uri" yaml:"mongo_uri" validate:"required_if=Driver mongo"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database" validate:"required_if=Driver mongo"`
}

// ScheduleConfig holds the cadence of each job lane.
type ScheduleConfig struct {
	OverdueScan  time.Duration `mapstructure:"overdue_scan" yaml:"overdue_scan" validate:"gt=0"`
	FormScan     time.Duration `mapstructure:"form_scan" yaml:"form_scan" validate:"gt=0"`
	DeadlineScan time.Duration `mapstructure:"deadline_scan" yaml:"deadline_scan" validate:"gt=0"`
	Digest       time.Duration `mapstructure:"digest" yaml:"digest" validate:"gt=0"`
}

// EscalationConfig holds the reminder tuning knobs.
type EscalationConfig struct {
	// Cooldown is the minimum time between two reminder emails for the
	// same unacknowledged notification.
	Cooldown time.Duration `mapstructure:"cooldown" yaml:"cooldown" validate:"gt=0"`

	// DeadlineWindow is how far ahead the deadline scan looks.
	DeadlineWindow time.Duration `mapstructure:"deadline_window" yaml:"deadline_window" validate:"gt=0"`

	// Location names the time zone used to compute "today".
	Location string `mapstructure:"location" yaml:"location"`
}

// MailConfig configures the mail dispatcher.
type MailConfig struct {
	// Transport is "smtp" or "outbox".
	Transport string `mapstructure:"transport" yaml:"transport" validate:"oneof=smtp outbox"`

	Host     string `mapstructure:"host" yaml:"host" validate:"required_if=Transport smtp"`
	Port     int    `mapstructure:"port" yaml:"port" validate:"required_if=Transport smtp"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// PasswordKey names a keyring item holding the SMTP password when
	// Password is empty.
	PasswordKey string `mapstructure:"password_key" yaml:"password_key"`

	From string `mapstructure:"from" yaml:"from" validate:"required,email"`

	// SSL selects implicit TLS instead of STARTTLS.
	SSL bool `mapstructure:"ssl" yaml:"ssl"`

	// SendTimeout bounds a single send attempt.
	SendTimeout time.Duration `mapstructure:"send_timeout" yaml:"send_timeout" validate:"gt=0"`

	OutboxDir string `mapstructure:"outbox_dir" yaml:"outbox_dir" validate:"required_if=Transport outbox"`
}

// AdminConfig configures the operator HTTP surface.
type AdminConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" yaml:"address" validate:"required_if=Enabled true"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Store      StoreConfig      `mapstructure:"store" yaml:"store"`
	Schedule   ScheduleConfig   `mapstructure:"schedule" yaml:"schedule"`
	Escalation EscalationConfig `mapstructure:"escalation" yaml:"escalation"`
	Mail       MailConfig       `mapstructure:"mail" yaml:"mail"`
	Admin      AdminConfig      `mapstructure:"admin" yaml:"admin"`
	Log        logger.Config    `mapstructure:"log" yaml:"log"`
}

// TimeLocation resolves Escalation.Location, defaulting to time.Local.
func (c *AppConfig) TimeLocation() (*time.Location, error) {
	if c.Escalation.Location == "" || c.Escalation.Location == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Escalation.Location)
	if err != nil {
		return nil, fmt.Errorf("loading location %q: %w", c.Escalation.Location, err)
	}
	return loc, nil
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/quality-escalation/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "quality-escalation", "config.yaml")
}

// setDefaults registers every key so that env overrides resolve even
// without a config file.
func setDefaults(v *viper.Viper) {
	lc := logger.DefaultConfig()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "escalation.db")
	v.SetDefault("store.mongo_uri", "")
	v.SetDefault("store.mongo_database", "")

	v.SetDefault("schedule.overdue_scan", 2*time.Minute)
	v.SetDefault("schedule.form_scan", time.Hour)
	v.SetDefault("schedule.deadline_scan", 6*time.Hour)
	v.SetDefault("schedule.digest", 15*time.Minute)

	v.SetDefault("escalation.cooldown", 3*time.Minute)
	v.SetDefault("escalation.deadline_window", 24*time.Hour)
	v.SetDefault("escalation.location", "Local")

	v.SetDefault("mail.transport", "smtp")
	v.SetDefault("mail.host", "localhost")
	v.SetDefault("mail.port", 587)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.password_key", "")
	v.SetDefault("mail.from", "quality@example.com")
	v.SetDefault("mail.ssl", false)
	v.SetDefault("mail.send_timeout", 30*time.Second)
	v.SetDefault("mail.outbox_dir", "outbox")

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.address", ":8080")

	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.file", lc.File)
	v.SetDefault("log.max_size_mb", lc.MaxSizeMB)
	v.SetDefault("log.max_backups", lc.MaxBackups)
	v.SetDefault("log.max_age_days", lc.MaxAgeDays)
	v.SetDefault("log.compress", lc.Compress)
	v.SetDefault("log.report_caller", lc.ReportCaller)
}

// LoadConfig reads configuration from the given YAML file path using Viper,
// applying ESCALATION_* environment overrides (a .env file in the working
// directory is loaded first when present). A missing file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks field constraints declared in the struct tags.
func (c *AppConfig) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.TimeLocation(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
