// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type DatabaseConfig struct {
	Filename string `yaml:"filename"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"` // Loaded from environment
}

type TwilioConfig struct {
	AccountSID string `yaml:"-"` // Loaded from environment
	AuthToken  string `yaml:"-"` // Loaded from environment
}

type BotConfig struct {
	SessionTTLMinutes   int      `yaml:"session_ttl_minutes"`
	SlotMinutes         int      `yaml:"slot_minutes"`
	LookaheadDays       int      `yaml:"lookahead_days"`
	MenuKeywords        []string `yaml:"menu_keywords"`
	CancelKeywords      []string `yaml:"cancel_keywords"`
	UseInMemorySessions bool     `yaml:"use_in_memory_sessions"`
}

func (b BotConfig) SessionTTL() time.Duration {
	return time.Duration(b.SessionTTLMinutes) * time.Minute
}

func (b BotConfig) SlotGranularity() time.Duration {
	return time.Duration(b.SlotMinutes) * time.Minute
}

type ReminderWindowConfig struct {
	Label     string `yaml:"label"`
	LeadHours int    `yaml:"lead_hours"`
}

type RemindersConfig struct {
	Crontab      string                 `yaml:"crontab"`
	Windows      []ReminderWindowConfig `yaml:"windows"`
	BandMinutes  int                    `yaml:"band_minutes"`
	Enabled      bool                   `yaml:"enabled"`
	RunOnStartup bool                   `yaml:"run_on_startup"`
}

func (r RemindersConfig) Band() time.Duration {
	return time.Duration(r.BandMinutes) * time.Minute
}

type Config struct {
	App struct {
		Name        string `yaml:"name"`
		Environment string `yaml:"environment"`
		Port        int    `yaml:"port"`
	} `yaml:"app"`

	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Twilio    TwilioConfig    `yaml:"-"`
	Bot       BotConfig       `yaml:"bot"`
	Reminders RemindersConfig `yaml:"reminders"`

	// TenantsFile points at the tenant registry yaml.
	TenantsFile string `yaml:"tenants_file"`
}

// Load loads both .env and yaml configuration
func Load(configPath string) (*Config, error) {
	// Load .env file if it exists
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	// Read and parse YAML config
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	cfg.applyDefaults()

	// Load sensitive values from environment
	cfg.Twilio.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	cfg.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.SessionTTLMinutes == 0 {
		c.Bot.SessionTTLMinutes = 30
	}
	if c.Bot.SlotMinutes == 0 {
		c.Bot.SlotMinutes = 30
	}
	if c.Bot.LookaheadDays == 0 {
		c.Bot.LookaheadDays = 7
	}
	if c.Reminders.Crontab == "" {
		c.Reminders.Crontab = "0 * * * *"
	}
	if c.Reminders.BandMinutes == 0 {
		c.Reminders.BandMinutes = 60
	}
	if len(c.Reminders.Windows) == 0 {
		c.Reminders.Windows = []ReminderWindowConfig{
			{Label: "24h", LeadHours: 24},
			{Label: "2h", LeadHours: 2},
		}
	}
}

func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.App.Port == 0 {
		return fmt.Errorf("app port is required")
	}
	if c.Database.Filename == "" {
		return fmt.Errorf("database filename is required")
	}
	if c.TenantsFile == "" {
		return fmt.Errorf("tenants file is required")
	}
	if !c.Bot.UseInMemorySessions && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required unless in-memory sessions are enabled")
	}
	seen := make(map[string]struct{}, len(c.Reminders.Windows))
	for _, w := range c.Reminders.Windows {
		if w.Label == "" || w.LeadHours <= 0 {
			return fmt.Errorf("reminder windows need a label and a positive lead")
		}
		if _, dup := seen[w.Label]; dup {
			return fmt.Errorf("duplicate reminder window label %q", w.Label)
		}
		seen[w.Label] = struct{}{}
	}
	return nil
}
