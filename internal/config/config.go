// Package config loads server settings from an optional YAML file, then
// applies STREAKFORGE_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/streakforge/internal/datekey"
	"github.com/dukerupert/streakforge/internal/media"
	"github.com/dukerupert/streakforge/internal/social"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		BaseURL        string   `yaml:"base_url"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		SecureCookies  bool     `yaml:"secure_cookies"`
	} `yaml:"server"`

	Database struct {
		Driver     string `yaml:"driver"`
		Path       string `yaml:"path"`
		MongoURI   string `yaml:"mongo_uri"`
		MongoWatch bool   `yaml:"mongo_watch"`
	} `yaml:"database"`

	// Timezone decides which calendar day "today" is for every user.
	Timezone string `yaml:"timezone"`

	Leaderboard struct {
		Metric string `yaml:"metric"`
	} `yaml:"leaderboard"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		TokenTTL       time.Duration `yaml:"token_ttl"`
		GoogleClientID string        `yaml:"google_client_id"`
		LoginPerMinute int           `yaml:"login_per_minute"`
	} `yaml:"auth"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
		JSON  bool   `yaml:"json"`
	} `yaml:"log"`

	Push struct {
		VAPIDPublicKey  string `yaml:"vapid_public_key"`
		VAPIDPrivateKey string `yaml:"vapid_private_key"`
		Subscriber      string `yaml:"subscriber"`
	} `yaml:"push"`

	Email struct {
		PostmarkToken string `yaml:"postmark_token"`
		From          string `yaml:"from"`
	} `yaml:"email"`

	Media media.Config `yaml:"media"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var c Config
	c.Server.Addr = ":8080"
	c.Server.BaseURL = "http://localhost:8080"
	c.Database.Driver = DriverSQLite
	c.Database.Path = "streakforge.db"
	c.Timezone = "UTC"
	c.Leaderboard.Metric = string(social.MetricHighestMaxStreak)
	c.Auth.TokenTTL = 24 * time.Hour
	c.Auth.LoginPerMinute = 10
	c.Log.Level = "info"
	c.Media.Region = "us-east-1"
	return &c
}

// Load reads path (if non-empty) over the defaults, then applies the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup("STREAKFORGE_" + key); ok {
			*dst = v
		}
	}
	var errs []error
	boolean := func(key string, dst *bool) {
		if v, ok := lookup("STREAKFORGE_" + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("STREAKFORGE_%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("ADDR", &c.Server.Addr)
	str("BASE_URL", &c.Server.BaseURL)
	if v, ok := lookup("STREAKFORGE_ALLOWED_ORIGINS"); ok {
		c.Server.AllowedOrigins = splitList(v)
	}
	boolean("SECURE_COOKIES", &c.Server.SecureCookies)

	str("DB_DRIVER", &c.Database.Driver)
	str("DB_PATH", &c.Database.Path)
	str("MONGO_URI", &c.Database.MongoURI)
	boolean("MONGO_WATCH", &c.Database.MongoWatch)

	str("TIMEZONE", &c.Timezone)
	str("LEADERBOARD_METRIC", &c.Leaderboard.Metric)

	str("JWT_SECRET", &c.Auth.JWTSecret)
	if v, ok := lookup("STREAKFORGE_TOKEN_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STREAKFORGE_TOKEN_TTL: %w", err))
		} else {
			c.Auth.TokenTTL = d
		}
	}
	str("GOOGLE_CLIENT_ID", &c.Auth.GoogleClientID)
	if v, ok := lookup("STREAKFORGE_LOGIN_PER_MINUTE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STREAKFORGE_LOGIN_PER_MINUTE: %w", err))
		} else {
			c.Auth.LoginPerMinute = n
		}
	}

	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)
	boolean("LOG_JSON", &c.Log.JSON)

	str("VAPID_PUBLIC_KEY", &c.Push.VAPIDPublicKey)
	str("VAPID_PRIVATE_KEY", &c.Push.VAPIDPrivateKey)
	str("VAPID_SUBSCRIBER", &c.Push.Subscriber)

	str("POSTMARK_TOKEN", &c.Email.PostmarkToken)
	str("EMAIL_FROM", &c.Email.From)

	str("S3_ENDPOINT", &c.Media.Endpoint)
	str("S3_BUCKET", &c.Media.Bucket)
	str("S3_REGION", &c.Media.Region)
	str("S3_ACCESS_KEY", &c.Media.AccessKey)
	str("S3_SECRET_KEY", &c.Media.SecretKey)
	str("S3_PUBLIC_URL", &c.Media.PublicURL)

	return errors.Join(errs...)
}

// Validate reports every setting that would stop the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case DriverMongo:
		if c.Database.MongoURI == "" {
			errs = append(errs, errors.New("database.mongo_uri is required for the mongo driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be %q or %q", c.Database.Driver, DriverSQLite, DriverMongo))
	}
	if _, err := datekey.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if _, err := social.ParseMetric(c.Leaderboard.Metric); err != nil {
		errs = append(errs, fmt.Errorf("leaderboard.metric: %w", err))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Auth.LoginPerMinute <= 0 {
		errs = append(errs, errors.New("auth.login_per_minute must be positive"))
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("push.vapid_public_key and push.vapid_private_key must be set together"))
	}
	return errors.Join(errs...)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
