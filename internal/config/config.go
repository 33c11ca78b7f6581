package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver is sqlite, postgres or mysql. The default is an in-memory
	// sqlite database recreated at every boot.
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	// Addr empty means run an embedded instance in-process.
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type ObservabilityConfig struct {
	LogLevel       string `mapstructure:"log_level"`
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
}

// Identity maps API keys to a tenant. Keys are matched exactly or, with a
// trailing *, by prefix. Secret keys grant admin; publishable keys are
// read-only.
type Identity struct {
	Name           string `mapstructure:"name"`
	SecretKey      string `mapstructure:"secret_key"`
	PublishableKey string `mapstructure:"publishable_key"`
}

// PlanSeed and CouponSeed let a config file install a catalog per identity
// at startup, the way client test suites expect fixtures to already exist.
type PlanSeed struct {
	Identity        string `mapstructure:"identity"`
	ID              string `mapstructure:"id"`
	Name            string `mapstructure:"name"`
	Amount          int64  `mapstructure:"amount"`
	Currency        string `mapstructure:"currency"`
	Interval        string `mapstructure:"interval"`
	IntervalCount   int64  `mapstructure:"interval_count"`
	TrialPeriodDays int64  `mapstructure:"trial_period_days"`
}

type CouponSeed struct {
	Identity         string `mapstructure:"identity"`
	ID               string `mapstructure:"id"`
	Duration         string `mapstructure:"duration"`
	DurationInMonths int64  `mapstructure:"duration_in_months"`
	AmountOff        int64  `mapstructure:"amount_off"`
	PercentOff       int64  `mapstructure:"percent_off"`
	Currency         string `mapstructure:"currency"`
	MaxRedemptions   int64  `mapstructure:"max_redemptions"`
	RedeemBy         int64  `mapstructure:"redeem_by"`
}

type WebhookSeed struct {
	Identity     string   `mapstructure:"identity"`
	URL          string   `mapstructure:"url"`
	SharedSecret string   `mapstructure:"shared_secret"`
	Events       []string `mapstructure:"events"`
}

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	APIVersion    string              `mapstructure:"api_version"`
	Identities    []Identity          `mapstructure:"identities"`
	Plans         []PlanSeed          `mapstructure:"plans"`
	Coupons       []CouponSeed        `mapstructure:"coupons"`
	Webhooks      []WebhookSeed       `mapstructure:"webhooks"`
}

// Load reads paymock.yaml (cwd or /etc/paymock) with PAYMOCK_* env
// overrides. A missing file is fine; everything has a default. The viper
// handle is returned so Watch can keep the config live.
func Load() (Config, *viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("paymock")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/paymock")
	v.SetEnvPrefix("PAYMOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8420)
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "file:paymock?mode=memory&cache=shared")
	v.SetDefault("observability.log_level", "info")
	v.SetDefault("api_version", "2017-08-15")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, v, nil
}

// Watch re-reads the file on change and hands the result to onChange.
// Identity and seed changes only affect future requests.
func Watch(v *viper.Viper, onChange func(Config)) {
	v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := v.Unmarshal(&cfg); err == nil {
			onChange(cfg)
		}
	})
	v.WatchConfig()
}
