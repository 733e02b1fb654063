package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
app:
  name: turnero
  environment: development
  port: 8080
database:
  filename: data/turnero.db
redis:
  addr: localhost:6379
tenants_file: tenants.yaml
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Bot.SessionTTL() != 30*time.Minute {
		t.Errorf("SessionTTL = %v, want 30m", cfg.Bot.SessionTTL())
	}
	if cfg.Bot.SlotGranularity() != 30*time.Minute {
		t.Errorf("SlotGranularity = %v, want 30m", cfg.Bot.SlotGranularity())
	}
	if cfg.Bot.LookaheadDays != 7 {
		t.Errorf("LookaheadDays = %d, want 7", cfg.Bot.LookaheadDays)
	}
	if cfg.Reminders.Crontab != "0 * * * *" {
		t.Errorf("Crontab = %q", cfg.Reminders.Crontab)
	}
	if len(cfg.Reminders.Windows) != 2 {
		t.Errorf("Windows = %v", cfg.Reminders.Windows)
	}
	if cfg.Reminders.Band() != time.Hour {
		t.Errorf("Band = %v, want 1h", cfg.Reminders.Band())
	}
}

func TestLoadReadsSecretsFromEnv(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC123")
	t.Setenv("TWILIO_AUTH_TOKEN", "secret")
	t.Setenv("REDIS_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Twilio.AccountSID != "AC123" || cfg.Twilio.AuthToken != "secret" {
		t.Errorf("twilio = %+v", cfg.Twilio)
	}
	if cfg.Redis.Password != "hunter2" {
		t.Errorf("redis password = %q", cfg.Redis.Password)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing port": `
app:
  name: turnero
database:
  filename: data/turnero.db
redis:
  addr: localhost:6379
tenants_file: tenants.yaml
`,
		"missing tenants file": `
app:
  name: turnero
  port: 8080
database:
  filename: data/turnero.db
redis:
  addr: localhost:6379
`,
		"missing redis addr": `
app:
  name: turnero
  port: 8080
database:
  filename: data/turnero.db
tenants_file: tenants.yaml
`,
		"duplicate reminder window": `
app:
  name: turnero
  port: 8080
database:
  filename: data/turnero.db
redis:
  addr: localhost:6379
tenants_file: tenants.yaml
reminders:
  windows:
    - label: 24h
      lead_hours: 24
    - label: 24h
      lead_hours: 2
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestInMemorySessionsSkipRedisRequirement(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
app:
  name: turnero
  port: 8080
database:
  filename: data/turnero.db
bot:
  use_in_memory_sessions: true
tenants_file: tenants.yaml
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Bot.UseInMemorySessions {
		t.Error("UseInMemorySessions not set")
	}
}
