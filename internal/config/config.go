package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"

	VideoDaily = "daily"
	VideoFake  = "fake"
)

type Config struct {
	Environment string `mapstructure:"ENV"`
	AppName     string `mapstructure:"APP_NAME"`
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`

	// RateLimit запросов в минуту с одного IP, 0 отключает лимит
	RateLimit int `mapstructure:"RATE_LIMIT"`

	// Timezone рабочая таймзона платформы (IANA), в ней живут даты и минуты занятий
	Timezone string `mapstructure:"TIMEZONE"`

	Storage string `mapstructure:"STORAGE"`
	DBDSN   string `mapstructure:"DB_DSN"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	WebhookSecret string `mapstructure:"WEBHOOK_SECRET"`

	VideoProvider   string        `mapstructure:"VIDEO_PROVIDER"`
	DailyAPIKey     string        `mapstructure:"DAILY_API_KEY"`
	DailyAPIURL     string        `mapstructure:"DAILY_API_URL"`
	VideoTimeout    time.Duration `mapstructure:"VIDEO_TIMEOUT"`
	RoomTTL         time.Duration `mapstructure:"ROOM_TTL"`
	EnableRecording bool          `mapstructure:"ENABLE_RECORDING"`

	MinBookingLead      time.Duration `mapstructure:"MIN_BOOKING_LEAD"`
	OrphanSweepInterval time.Duration `mapstructure:"ORPHAN_SWEEP_INTERVAL"`

	TelegramToken  string `mapstructure:"TELEGRAM_TOKEN"`
	SendgridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	MailFrom       string `mapstructure:"MAIL_FROM"`

	location *time.Location
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// Unmarshal видит только известные ключи, поэтому дефолт есть у каждого
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "Lesson Scheduler")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("RATE_LIMIT", 120)
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("STORAGE", StoragePostgres)
	v.SetDefault("DB_DSN", "")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("WEBHOOK_SECRET", "")
	v.SetDefault("VIDEO_PROVIDER", VideoFake)
	v.SetDefault("DAILY_API_KEY", "")
	v.SetDefault("DAILY_API_URL", "https://api.daily.co/v1")
	v.SetDefault("VIDEO_TIMEOUT", 10*time.Second)
	v.SetDefault("ROOM_TTL", 30*time.Minute)
	v.SetDefault("ENABLE_RECORDING", false)
	v.SetDefault("MIN_BOOKING_LEAD", time.Hour)
	v.SetDefault("ORPHAN_SWEEP_INTERVAL", 10*time.Minute)
	v.SetDefault("TELEGRAM_TOKEN", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("MAIL_FROM", "noreply@localhost")

	v.AutomaticEnv()
	return v
}

// FromViper собирает и проверяет конфиг из заполненного viper
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}
	cfg.location = loc

	log.Printf("Config loaded (env=%s, storage=%s, video=%s)\n", cfg.Environment, cfg.Storage, cfg.VideoProvider)

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage {
	case StoragePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("DB_DSN is required but not set")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}

	switch c.VideoProvider {
	case VideoDaily:
		if c.DailyAPIKey == "" {
			return fmt.Errorf("DAILY_API_KEY is required for the daily video provider")
		}
	case VideoFake:
	default:
		return fmt.Errorf("unknown VIDEO_PROVIDER %q", c.VideoProvider)
	}

	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required but not set")
	}
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required but not set")
	}
	if c.VideoTimeout <= 0 || c.OrphanSweepInterval <= 0 {
		return fmt.Errorf("VIDEO_TIMEOUT and ORPHAN_SWEEP_INTERVAL must be positive")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("RATE_LIMIT must not be negative")
	}
	if c.MinBookingLead < 0 || c.RoomTTL < 0 {
		return fmt.Errorf("MIN_BOOKING_LEAD and ROOM_TTL must not be negative")
	}

	return nil
}

// Location рабочая таймзона
func (c *Config) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
