package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Storage struct {
		Driver string `yaml:"driver"`
	} `yaml:"storage"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	RabbitMQ struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"rabbitmq"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		TokenTTL               string `yaml:"token_ttl"`
		BcryptCost             int    `yaml:"bcrypt_cost"`
		AllowAdminRegistration *bool  `yaml:"allow_admin_registration"`
	} `yaml:"auth"`
	Quiz struct {
		RandomSize int    `yaml:"random_size"`
		Policy     string `yaml:"policy"`
		DailyLimit int    `yaml:"daily_limit"`
		Duration   string `yaml:"duration"`
		Timezone   string `yaml:"timezone"`
	} `yaml:"quiz"`
}

const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"

	PolicySingle = "single"
	PolicyDaily  = "daily"
)

// Load reads YAML config from path and applies environment overrides.
// A missing file is not an error; defaults and environment still apply.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return cfg, err
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	overrides := map[string]*string{
		"JWT_SECRET":        &c.Auth.JWTSecret,
		"MONGO_URI":         &c.Mongo.URI,
		"MONGO_DATABASE":    &c.Mongo.Database,
		"POSTGRES_URL":      &c.Postgres.URL,
		"REDIS_ADDR":        &c.Redis.Addr,
		"REDIS_PASSWORD":    &c.Redis.Password,
		"RABBITMQ_URL":      &c.RabbitMQ.URL,
		"STORAGE_DRIVER":    &c.Storage.Driver,
		"QUIZ_POLICY":       &c.Quiz.Policy,
		"SERVER_PORT":       &c.Server.Port,
		"QUIZ_TIMEZONE":     &c.Quiz.Timezone,
		"TOKEN_TTL":         &c.Auth.TokenTTL,
		"RABBITMQ_EXCHANGE": &c.RabbitMQ.Exchange,
	}
	for key, target := range overrides {
		if v := os.Getenv(key); v != "" {
			*target = v
		}
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = db
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverMemory
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "quiz"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "quiz.events"
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Auth.AllowAdminRegistration == nil {
		allow := true
		c.Auth.AllowAdminRegistration = &allow
	}
	if c.Quiz.RandomSize <= 0 {
		c.Quiz.RandomSize = 35
	}
	if c.Quiz.Policy == "" {
		c.Quiz.Policy = PolicySingle
	}
	if c.Quiz.DailyLimit <= 0 {
		c.Quiz.DailyLimit = 3
	}
}

// AdminRegistrationAllowed reports whether registration may request the admin role.
func (c Config) AdminRegistrationAllowed() bool {
	return c.Auth.AllowAdminRegistration == nil || *c.Auth.AllowAdminRegistration
}

// Location resolves the configured timezone used for calendar-day boundaries.
func (c Config) Location() *time.Location {
	if c.Quiz.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Quiz.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
