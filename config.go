package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	structValidator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DEFAULT_CONFIG_PATH = "twitoff.yaml"
	DEFAULT_DATABASE    = "sqlite:///tmp/twitoff.db"
	DEFAULT_ADDR        = ":5000"
	DEFAULT_TWEET_LIMIT = 200
	DEFAULT_TWITTER_API = "https://api.twitter.com"
)

// Config holds everything the application reads at startup.
type Config struct {
	ServiceName    string        `yaml:"service_name" validate:"required,metricname"`
	Addr           string        `yaml:"addr" validate:"required"`
	DatabaseURL    string        `yaml:"database_url" validate:"required"`
	LogLevel       string        `yaml:"log_level" validate:"oneof=debug info warn error"`
	SessionSecret  string        `yaml:"session_secret"`
	ResetTokenHash string        `yaml:"reset_token_hash"`
	TweetLimit     int           `yaml:"tweet_limit" validate:"min=1,max=3200"`
	Twitter        TwitterConfig `yaml:"twitter"`
}

// TwitterConfig configures the Twitter API client.
type TwitterConfig struct {
	APIURL            string        `yaml:"api_url" validate:"required,url"`
	BearerToken       string        `yaml:"bearer_token"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
}

func DefaultConfig() *Config {
	return &Config{
		ServiceName: "twitoff",
		Addr:        DEFAULT_ADDR,
		DatabaseURL: DEFAULT_DATABASE,
		LogLevel:    "info",
		TweetLimit:  DEFAULT_TWEET_LIMIT,
		Twitter: TwitterConfig{
			APIURL:            DEFAULT_TWITTER_API,
			Timeout:           10 * time.Second,
			RequestsPerSecond: 1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file at path,
// a .env file in the working directory and finally the process environment.
// The .env file is read first, so an empty path resolves through configPath
// with TWITOFF_CONFIG from either source.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = configPath()
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := newValidator().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// configPath returns the config file to load: TWITOFF_CONFIG if set,
// otherwise twitoff.yaml when it exists.
func configPath() string {
	if p := os.Getenv("TWITOFF_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(DEFAULT_CONFIG_PATH); err == nil {
		return DEFAULT_CONFIG_PATH
	}
	return ""
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.SessionSecret, "SESSION_SECRET")
	setString(&c.ResetTokenHash, "RESET_TOKEN_HASH")
	setString(&c.Twitter.BearerToken, "TWITTER_BEARER_TOKEN")
	setString(&c.Twitter.APIURL, "TWITTER_API_URL")

	if port := getenv("PORT"); port != "" {
		c.Addr = ":" + port
	}
	setString(&c.Addr, "ADDR")

	if v := getenv("TWEET_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TWEET_LIMIT: %w", err)
		}
		c.TweetLimit = n
	}
	if v := getenv("TWITTER_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("TWITTER_TIMEOUT: %w", err)
		}
		c.Twitter.Timeout = d
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	return nil
}

var (
	handlePattern     = regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`)
	metricNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// newValidator returns a validator that also knows the "handle" tag and
// the "metricname" tag for values used as a Prometheus namespace.
func newValidator() *structValidator.Validate {
	v := structValidator.New()
	_ = v.RegisterValidation("handle", func(fl structValidator.FieldLevel) bool {
		return handlePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("metricname", func(fl structValidator.FieldLevel) bool {
		return metricNamePattern.MatchString(fl.Field().String())
	})
	return v
}
