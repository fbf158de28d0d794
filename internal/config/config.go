package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaults []byte

const minQueueInterval = time.Second

// ---- Root ----

type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Log        LogConfig        `mapstructure:"log"`
	SMS        SMSConfig        `mapstructure:"sms"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Status     StatusConfig     `mapstructure:"status"`
	Retention  RetentionConfig  `mapstructure:"retention"`
	Inbox      InboxConfig      `mapstructure:"inbox"`
	JustRemote JustRemoteConfig `mapstructure:"justremotephone"`
	ETxt       VendorConfig     `mapstructure:"etxt"`
	Diafaan    VendorConfig     `mapstructure:"diafaan"`
	Webhook    WebhookConfig    `mapstructure:"webhook"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	Testing    TestingConfig    `mapstructure:"testing"`
}

// ---- Leaf structs ----

type HTTPConfig struct {
	Addr   string `mapstructure:"addr"`
	APIKey string `mapstructure:"api_key"`
}

type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
	File     string `mapstructure:"file"`
}

type SMSConfig struct {
	Provider        string `mapstructure:"provider"` // justremotephone|etxt|diafaan
	CallbackBaseURL string `mapstructure:"callback_base_url"`
	CountryCode     string `mapstructure:"country_code"` // applied to national numbers, e.g. "64"
}

type QueueConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	BatchSize   int           `mapstructure:"batch_size"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
}

type StatusConfig struct {
	Timeout     time.Duration `mapstructure:"timeout"`
	EventBuffer int           `mapstructure:"event_buffer"`
	MaxOrphans  int           `mapstructure:"max_orphans"`
}

type RetentionConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Days     int           `mapstructure:"days"`
}

// Window is the age after which status records are swept.
func (r RetentionConfig) Window() time.Duration {
	return time.Duration(r.Days) * 24 * time.Hour
}

type InboxConfig struct {
	Dir  string `mapstructure:"dir"`
	File string `mapstructure:"file"`
}

// Path resolves the snapshot file; the default name is per host so several
// bridges can share one directory.
func (c InboxConfig) Path() string {
	name := c.File
	if name == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		name = host + "_received_sms.json"
	}
	return filepath.Join(c.Dir, name)
}

type JustRemoteConfig struct {
	URL              string        `mapstructure:"url"`
	AppName          string        `mapstructure:"app_name"`
	ReconnectWindow  time.Duration `mapstructure:"reconnect_window"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`
}

type BreakerConfig struct {
	FailThreshold int `mapstructure:"fail_threshold" yaml:"fail_threshold"`
	OpenForMs     int `mapstructure:"open_for_ms"    yaml:"open_for_ms"`
}

type VendorConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	SenderID    string        `mapstructure:"sender_id"`
	CallbackKey string        `mapstructure:"callback_key"`
	TimeoutMs   int           `mapstructure:"timeout_ms"`
	Breaker     BreakerConfig `mapstructure:"breaker"`
}

type WebhookConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Method         string            `mapstructure:"method"`
	Encoding       string            `mapstructure:"encoding"`
	Events         []string          `mapstructure:"events"`
	Headers        map[string]string `mapstructure:"headers"`
	Template       string            `mapstructure:"template"`
	ConnectTimeout int               `mapstructure:"connect_timeout"`
	ReadTimeout    int               `mapstructure:"read_timeout"`
	RetryCount     int               `mapstructure:"retries"`
	StartupTimeout time.Duration     `mapstructure:"startup_timeout"`
}

type RedisConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

type RateLimitConfig struct {
	RPS int `mapstructure:"rps"`
}

type KafkaConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	GroupID        string   `mapstructure:"group_id"`
	MinBytes       int      `mapstructure:"min_bytes"`
	MaxBytes       int      `mapstructure:"max_bytes"`
	CommitInterval int      `mapstructure:"commit_interval_ms"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idletime"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout"`
}

type ArchiveConfig struct {
	Driver         string `mapstructure:"driver"` // ""|mysql|clickhouse
	DatabaseConfig `mapstructure:",squash"`
}

type TestingConfig struct {
	Debug          bool     `mapstructure:"debug"`
	PhoneNumber    string   `mapstructure:"phone_number"`
	AllowedNumbers []string `mapstructure:"allowed_numbers"`
}

// Load reads embedded defaults, merges user YAML (if provided), and applies env overrides (SMSBRIDGE_*).
func Load(path string) (Config, error) {
	v := viper.New()

	// embedded defaults
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return Config{}, err
	}

	// a missing user file is fine (defaults + env); a broken one is not
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.MergeInConfig(); err != nil {
				return Config{}, fmt.Errorf("read %s: %w", path, err)
			}
		}
	}

	// env override (SMSBRIDGE_*), nested keys use "_" (queue.interval -> SMSBRIDGE_QUEUE_INTERVAL)
	v.SetEnvPrefix("SMSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.SMS.Provider = strings.ToLower(strings.TrimSpace(c.SMS.Provider))
	c.SMS.CallbackBaseURL = strings.TrimRight(c.SMS.CallbackBaseURL, "/")
	c.Archive.Driver = strings.ToLower(strings.TrimSpace(c.Archive.Driver))

	if c.Queue.Interval < minQueueInterval {
		c.Queue.Interval = minQueueInterval
	}
	if c.Queue.BatchSize <= 0 {
		c.Queue.BatchSize = 1
	}
}

// Validate checks values that cannot be defaulted.
func (c Config) Validate() error {
	switch c.SMS.Provider {
	case "justremotephone", "etxt", "diafaan":
	default:
		return fmt.Errorf("unsupported sms provider: %q", c.SMS.Provider)
	}
	switch c.Archive.Driver {
	case "", "mysql", "clickhouse":
	default:
		return fmt.Errorf("unsupported archive driver: %q", c.Archive.Driver)
	}
	if c.Status.Timeout <= 0 {
		return fmt.Errorf("status.timeout must be positive")
	}
	return nil
}
