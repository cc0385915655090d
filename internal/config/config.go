package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// ErrMissingCredential marks a required credential that was not provided
// either in the config file or the environment. Fatal at startup.
var ErrMissingCredential = errors.New("missing required credential")

// Config is the application's configuration model.
type Config struct {
	Account AccountConfig `yaml:"account"`
	Bot     BotConfig     `yaml:"bot"`
	Rater   RaterConfig   `yaml:"rater"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// AccountConfig holds the bot account's login credentials.
type AccountConfig struct {
	Username        string `yaml:"username"        env:"X_USERNAME"`
	Password        string `yaml:"password"        env:"X_PASSWORD"`
	Email           string `yaml:"email"           env:"X_EMAIL"`
	TwoFactorSecret string `yaml:"twoFactorSecret" env:"X_2FA_SECRET"`
}

// BotConfig holds the polling and reply pacing knobs.
type BotConfig struct {
	CheckInterval    time.Duration `yaml:"checkInterval"    env:"BOT_CHECK_INTERVAL"    env-default:"5m"`
	ReplyDelay       time.Duration `yaml:"replyDelay"       env:"BOT_REPLY_DELAY"       env-default:"5s"`
	MaxTweetsPerRun  int           `yaml:"maxTweetsPerRun"  env:"BOT_MAX_TWEETS"        env-default:"20"`
	LoginRetries     int           `yaml:"loginRetries"     env:"BOT_LOGIN_RETRIES"     env-default:"4"`
	LoginBackoff     time.Duration `yaml:"loginBackoff"     env:"BOT_LOGIN_BACKOFF"     env-default:"2s"`
	MaxRepliesPerHour int          `yaml:"maxRepliesPerHour" env:"BOT_MAX_REPLIES_HOUR" env-default:"0"`
	MaxRepliesPerDay  int          `yaml:"maxRepliesPerDay"  env:"BOT_MAX_REPLIES_DAY"  env-default:"0"`
}

// RaterConfig points at an OpenAI-compatible chat completions endpoint.
type RaterConfig struct {
	Endpoint string `yaml:"endpoint" env:"RATER_ENDPOINT" env-default:"https://api.openai.com/v1/chat/completions"`
	Model    string `yaml:"model"    env:"RATER_MODEL"    env-default:"gpt-4o-mini"`
	APIKey   string `yaml:"apiKey"   env:"OPENAI_API_KEY"`
}

type StorageConfig struct {
	DBPath string `yaml:"dbPath" env:"GOATBOT_DB" env-default:"./goatbot.db"`
}

type APIConfig struct {
	Addr string `yaml:"addr" env:"API_ADDR" env-default:":3000"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr" env:"METRICS_ADDR"`
}

// Default returns the configuration written by `goatbot init`.
func Default() Config {
	return Config{
		Bot: BotConfig{
			CheckInterval:   5 * time.Minute,
			ReplyDelay:      5 * time.Second,
			MaxTweetsPerRun: 20,
			LoginRetries:    4,
			LoginBackoff:    2 * time.Second,
		},
		Rater: RaterConfig{
			Endpoint: "https://api.openai.com/v1/chat/completions",
			Model:    "gpt-4o-mini",
		},
		Storage: StorageConfig{DBPath: "./goatbot.db"},
		API:     APIConfig{Addr: ":3000"},
	}
}

// Load reads the YAML file at path (if it exists) with environment overrides.
// Priority: ENV > YAML > defaults.
func Load(path string) (Config, error) {
	var cfg Config
	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, fmt.Errorf("config: read env: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the credential set required to run the poller.
func (c *Config) Validate() error {
	if c.Account.Username == "" {
		return fmt.Errorf("%w: account.username (X_USERNAME)", ErrMissingCredential)
	}
	if c.Account.Password == "" {
		return fmt.Errorf("%w: account.password (X_PASSWORD)", ErrMissingCredential)
	}
	if c.Account.Email == "" {
		return fmt.Errorf("%w: account.email (X_EMAIL)", ErrMissingCredential)
	}
	if c.Bot.CheckInterval <= 0 {
		return fmt.Errorf("bot.checkInterval must be positive (got %v)", c.Bot.CheckInterval)
	}
	return nil
}

// Save writes YAML config to path, creating directories as needed.
func Save(path string, cfg Config) error {
	if path == "" {
		return errors.New("empty path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
