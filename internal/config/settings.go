package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PROXY_UNIVERSE"

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

type Config struct {
	Sources   SourcesConfig   `mapstructure:"sources" json:"sources"`
	Validator ValidatorConfig `mapstructure:"validator" json:"validator"`

	GeoLite struct {
		CountryDB  string `mapstructure:"country_db" json:"country_db"`
		LicenseKey string `mapstructure:"license_key" json:"-"`
	} `mapstructure:"geolite" json:"geolite"`

	WebsiteBlocklist []string `mapstructure:"website_blocklist" json:"website_blocklist"`
	LogLevel         string   `mapstructure:"log_level" json:"log_level"`
}

type SourcesConfig struct {
	APITimeout     time.Duration `mapstructure:"api_timeout" json:"api_timeout"`
	ScraperTimeout time.Duration `mapstructure:"scraper_timeout" json:"scraper_timeout"`
	MaxPerRequest  int           `mapstructure:"max_per_request" json:"max_per_request"`
	PubProxyLimit  int           `mapstructure:"pubproxy_limit" json:"pubproxy_limit"`
	UserAgent      string        `mapstructure:"user_agent" json:"user_agent"`
	RespectRobots  bool          `mapstructure:"respect_robots" json:"respect_robots"`
	UseBrowser     bool          `mapstructure:"use_browser" json:"use_browser"`
	Disabled       []string      `mapstructure:"disabled" json:"disabled"`
}

type ValidatorConfig struct {
	Timeout     time.Duration `mapstructure:"timeout" json:"timeout"`
	Concurrency int           `mapstructure:"concurrency" json:"concurrency"`
	Retries     int           `mapstructure:"retries" json:"retries"`
}

var (
	configValue atomic.Value
	configMu    sync.Mutex
)

func init() {
	configValue.Store(Default())
}

// Default returns the built-in settings.
func Default() Config {
	var cfg Config
	cfg.Sources = SourcesConfig{
		APITimeout:     15 * time.Second,
		ScraperTimeout: 10 * time.Second,
		MaxPerRequest:  500,
		PubProxyLimit:  20,
		UserAgent:      DefaultUserAgent,
	}
	cfg.Validator = ValidatorConfig{
		Timeout:     5 * time.Second,
		Concurrency: 15,
	}
	cfg.LogLevel = "info"
	return cfg
}

func setDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("sources.api_timeout", def.Sources.APITimeout)
	v.SetDefault("sources.scraper_timeout", def.Sources.ScraperTimeout)
	v.SetDefault("sources.max_per_request", def.Sources.MaxPerRequest)
	v.SetDefault("sources.pubproxy_limit", def.Sources.PubProxyLimit)
	v.SetDefault("sources.user_agent", def.Sources.UserAgent)
	v.SetDefault("sources.respect_robots", def.Sources.RespectRobots)
	v.SetDefault("sources.use_browser", def.Sources.UseBrowser)
	v.SetDefault("sources.disabled", []string{})
	v.SetDefault("validator.timeout", def.Validator.Timeout)
	v.SetDefault("validator.concurrency", def.Validator.Concurrency)
	v.SetDefault("validator.retries", def.Validator.Retries)
	v.SetDefault("geolite.country_db", "")
	v.SetDefault("geolite.license_key", "")
	v.SetDefault("website_blocklist", []string{})
	v.SetDefault("log_level", def.LogLevel)
}

// NewViper builds the viper instance Load reads from. Callers may bind CLI
// flags to it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads .env, the optional settings file and the environment into a
// validated Config and makes it the active one.
func Load(v *viper.Viper, settingsFile string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found. Falling back to system environment variables.")
	}

	if v == nil {
		v = NewViper()
	}

	if settingsFile != "" {
		v.SetConfigFile(settingsFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read settings file %s: %w", settingsFile, err)
		}
		log.Debug("Settings file loaded", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode settings: %w", err)
	}

	if err := SetConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every setting that would make the pipeline unusable.
func (cfg Config) Validate() error {
	var errs []error
	if cfg.Sources.APITimeout <= 0 {
		errs = append(errs, errors.New("sources.api_timeout must be positive"))
	}
	if cfg.Sources.ScraperTimeout <= 0 {
		errs = append(errs, errors.New("sources.scraper_timeout must be positive"))
	}
	if cfg.Sources.MaxPerRequest <= 0 {
		errs = append(errs, errors.New("sources.max_per_request must be positive"))
	}
	if cfg.Sources.PubProxyLimit <= 0 {
		errs = append(errs, errors.New("sources.pubproxy_limit must be positive"))
	}
	if cfg.Validator.Timeout <= 0 {
		errs = append(errs, errors.New("validator.timeout must be positive"))
	}
	if cfg.Validator.Concurrency <= 0 {
		errs = append(errs, errors.New("validator.concurrency must be positive"))
	}
	if cfg.Validator.Retries < 0 {
		errs = append(errs, errors.New("validator.retries must not be negative"))
	}
	if _, err := log.ParseLevel(cfg.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	return errors.Join(errs...)
}

// IsSourceDisabled reports whether name was listed in sources.disabled.
func (cfg Config) IsSourceDisabled(name string) bool {
	for _, disabled := range cfg.Sources.Disabled {
		if strings.EqualFold(strings.TrimSpace(disabled), name) {
			return true
		}
	}
	return false
}

func SetConfig(newConfig Config) error {
	if err := newConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configMu.Lock()
	defer configMu.Unlock()

	configValue.Store(newConfig)
	updateWebsiteBlocklist(newConfig.WebsiteBlocklist)

	log.Debug("Configuration applied")
	return nil
}

func GetConfig() Config {
	return configValue.Load().(Config)
}
