package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Config struct {
	Addr        string // API bind address, e.g., "127.0.0.1:8080" or ":8080" in a container
	LogDir      string // logs directory
	LogLevel    string
	DatabaseURL string // empty means use the in-memory store
	TargetsFile string // optional YAML target registry, watched for changes

	ProbeTimeout        time.Duration
	RetryAttempts       int           // attempts per probe, 1 disables retries
	RetryBackoff        time.Duration // backoff between attempts
	SchedulerResolution time.Duration
	RegistryResync      time.Duration

	PublicAPIKeys  []string
	AdminAPIKeys   []string
	PublicRPM      int
	PublicBurst    int
	AdminRPM       int
	AdminBurst     int
	AllowedOrigins []string

	SlackWebhookURL string
	TelegramAPIURL  string
	NATSURL         string
	NATSSubject     string

	AlertOnRecovery bool
	NotifyQueueSize int
	NotifyAttempts  int
	NotifyTimeout   time.Duration
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("api_addr", "127.0.0.1:8080")
	v.SetDefault("log_dir", "logs")
	v.SetDefault("log_level", "info")
	v.SetDefault("database_url", "")
	v.SetDefault("targets_file", "")
	v.SetDefault("probe_timeout_ms", 10000)
	v.SetDefault("retry_attempts", 1)
	v.SetDefault("retry_backoff_ms", 300)
	v.SetDefault("scheduler_resolution_ms", 1000)
	v.SetDefault("registry_resync_ms", 5000)
	v.SetDefault("public_api_keys", "")
	v.SetDefault("admin_api_keys", "")
	v.SetDefault("public_rpm", 120)
	v.SetDefault("public_burst", 60)
	v.SetDefault("admin_rpm", 600)
	v.SetDefault("admin_burst", 120)
	v.SetDefault("allowed_origins", "*")
	v.SetDefault("slack_webhook_url", "")
	v.SetDefault("telegram_api_url", "https://api.telegram.org")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject", "pingwatch.state")
	v.SetDefault("alert_on_recovery", true)
	v.SetDefault("notify_queue_size", 256)
	v.SetDefault("notify_attempts", 3)
	v.SetDefault("notify_timeout_ms", 10000)

	v.AutomaticEnv()
	// ADDR is the older name for the bind address
	_ = v.BindEnv("api_addr", "API_ADDR", "ADDR")
	return v
}

// FromEnv reads the configuration from the environment only.
func FromEnv() Config {
	return decode(newViper())
}

// Load reads an optional config file (YAML, TOML or JSON, keyed like the
// environment variables in lower case) and overlays the environment on it.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := decode(v)
	return cfg, cfg.Validate()
}

func decode(v *viper.Viper) Config {
	ms := func(key string) time.Duration {
		return time.Duration(v.GetInt(key)) * time.Millisecond
	}
	return Config{
		Addr:        v.GetString("api_addr"),
		LogDir:      v.GetString("log_dir"),
		LogLevel:    v.GetString("log_level"),
		DatabaseURL: v.GetString("database_url"),
		TargetsFile: v.GetString("targets_file"),

		ProbeTimeout:        ms("probe_timeout_ms"),
		RetryAttempts:       v.GetInt("retry_attempts"),
		RetryBackoff:        ms("retry_backoff_ms"),
		SchedulerResolution: ms("scheduler_resolution_ms"),
		RegistryResync:      ms("registry_resync_ms"),

		PublicAPIKeys:  list(v, "public_api_keys"),
		AdminAPIKeys:   list(v, "admin_api_keys"),
		PublicRPM:      v.GetInt("public_rpm"),
		PublicBurst:    v.GetInt("public_burst"),
		AdminRPM:       v.GetInt("admin_rpm"),
		AdminBurst:     v.GetInt("admin_burst"),
		AllowedOrigins: list(v, "allowed_origins"),

		SlackWebhookURL: v.GetString("slack_webhook_url"),
		TelegramAPIURL:  v.GetString("telegram_api_url"),
		NATSURL:         v.GetString("nats_url"),
		NATSSubject:     v.GetString("nats_subject"),

		AlertOnRecovery: v.GetBool("alert_on_recovery"),
		NotifyQueueSize: v.GetInt("notify_queue_size"),
		NotifyAttempts:  v.GetInt("notify_attempts"),
		NotifyTimeout:   ms("notify_timeout_ms"),
	}
}

// list accepts either a real list (config file) or a comma separated string.
func list(v *viper.Viper, key string) []string {
	var raw []string
	switch val := v.Get(key).(type) {
	case []any, []string:
		raw = v.GetStringSlice(key)
	default:
		raw = strings.Split(fmt.Sprint(val), ",")
	}
	var out []string
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var err error
	if c.Addr == "" {
		err = multierr.Append(err, errors.New("api_addr must not be empty"))
	}
	if c.ProbeTimeout <= 0 {
		err = multierr.Append(err, errors.New("probe_timeout_ms must be positive"))
	}
	if c.RetryAttempts < 1 {
		err = multierr.Append(err, errors.New("retry_attempts must be at least 1"))
	}
	if c.RetryBackoff < 0 {
		err = multierr.Append(err, errors.New("retry_backoff_ms must not be negative"))
	}
	if c.SchedulerResolution <= 0 {
		err = multierr.Append(err, errors.New("scheduler_resolution_ms must be positive"))
	}
	if c.NotifyQueueSize < 1 {
		err = multierr.Append(err, errors.New("notify_queue_size must be at least 1"))
	}
	if c.NotifyAttempts < 1 {
		err = multierr.Append(err, errors.New("notify_attempts must be at least 1"))
	}
	return err
}
