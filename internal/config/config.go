// Package config provides application configuration loading and management.
package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	BotToken       string `mapstructure:"BOT_TOKEN"`
	ChatID         int64  `mapstructure:"CHAT_ID"`
	ChatName       string `mapstructure:"CHAT_NAME"`
	Port           string `mapstructure:"PORT"`
	WebhookSecret  string `mapstructure:"WEBHOOK_SECRET"`
	PlatformAPIURL string `mapstructure:"PLATFORM_API_URL"`
	PollTimeout    int    `mapstructure:"POLL_TIMEOUT"`
	DBDriver       string `mapstructure:"DB_DRIVER"`
	DBDSN          string `mapstructure:"DB_DSN"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	CaptchaEnabled bool   `mapstructure:"CAPTCHA_ENABLED"`
	CaptchaTimeout int    `mapstructure:"CAPTCHA_TIMEOUT"`
	TrustThreshold int64  `mapstructure:"TRUST_THRESHOLD"`
	AdminIDs       string `mapstructure:"ADMIN_IDS"`
	Env            string `mapstructure:"APP_ENV"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// Initial read to get APP_ENV if set in base config.
	// The config file may not exist; environment variables are enough.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err == nil {
			log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
		}
	}

	viper.SetDefault("PORT", "8476")
	viper.SetDefault("PLATFORM_API_URL", "https://api.telegram.org")
	viper.SetDefault("POLL_TIMEOUT", 60)
	viper.SetDefault("DB_DRIVER", "sqlite")
	viper.SetDefault("DB_DSN", "gatekeeper.db")
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("CAPTCHA_ENABLED", true)
	viper.SetDefault("CAPTCHA_TIMEOUT", 30)
	viper.SetDefault("TRUST_THRESHOLD", 10)
	viper.SetDefault("ADMIN_IDS", "")
	viper.SetDefault("APP_ENV", "development")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks that required configuration values are present and sane.
func (c *Config) Validate() error {
	if c.Env != "test" && c.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Env != "test" && c.ChatID == 0 {
		return fmt.Errorf("CHAT_ID is required")
	}
	if c.CaptchaTimeout <= 0 {
		return fmt.Errorf("CAPTCHA_TIMEOUT must be positive, got %d", c.CaptchaTimeout)
	}
	if c.TrustThreshold <= 0 {
		return fmt.Errorf("TRUST_THRESHOLD must be positive, got %d", c.TrustThreshold)
	}
	return nil
}

// CaptchaTimeoutDuration returns the challenge timeout as a duration.
func (c *Config) CaptchaTimeoutDuration() time.Duration {
	return time.Duration(c.CaptchaTimeout) * time.Second
}

// BotID returns the bot's own account id, embedded as the numeric prefix of
// the token. Zero when the token is absent or malformed.
func (c *Config) BotID() int64 {
	prefix, _, ok := strings.Cut(c.BotToken, ":")
	if !ok {
		return 0
	}
	id, err := strconv.ParseInt(prefix, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// AdminIDList parses the comma-separated ADMIN_IDS value. Malformed entries
// are skipped.
func (c *Config) AdminIDList() []int64 {
	var out []int64
	for _, raw := range strings.Split(c.AdminIDs, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out
}
