package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOCAL_TIMEZONE", "TASK_POLL_INTERVAL", "TASK_LOCK_LIFETIME", "TASK_BATCH_SIZE",
		"SWEEP_SCHEDULE", "CLEANUP_SCHEDULE", "CONFIG_FILE", "TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("port %q", cfg.Port)
	}
	if cfg.TaskPollInterval != time.Second || cfg.TaskBatchSize != 20 || cfg.TaskLockLifetime != 10*time.Minute {
		t.Fatalf("unexpected task defaults: %+v", cfg)
	}
	if cfg.SweepSchedule != "@every 5m" || cfg.CleanupSchedule != "0 3 * * *" {
		t.Fatalf("unexpected schedules: %q %q", cfg.SweepSchedule, cfg.CleanupSchedule)
	}
	if cfg.TwilioEnabled() {
		t.Fatalf("twilio should be disabled without credentials")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("PORT", "9090")
	t.Setenv("LOCAL_TIMEZONE", "Not/AZone")
	t.Setenv("TASK_POLL_INTERVAL", "250ms")
	t.Setenv("TASK_BATCH_SIZE", "many")
	t.Setenv("LOG_PRETTY", "true")

	cfg := Load()
	if cfg.Port != "9090" || cfg.TaskPollInterval != 250*time.Millisecond || !cfg.LogPretty {
		t.Fatalf("env values ignored: %+v", cfg)
	}
	if cfg.TaskBatchSize != 20 {
		t.Fatalf("unparsable int should fall back, got %d", cfg.TaskBatchSize)
	}
	if cfg.LocalTimezone != time.UTC {
		t.Fatalf("invalid timezone should fall back to UTC, got %v", cfg.LocalTimezone)
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mealremind.yaml")
	content := "PORT: \"7070\"\nSWEEP_SCHEDULE: \"@every 1m\"\nTASK_RETENTION: 24h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SWEEP_SCHEDULE", "@every 30s")
	// Unset keys so the file can fill them; t.Setenv restores them afterwards.
	t.Setenv("PORT", "")
	t.Setenv("TASK_RETENTION", "")
	os.Unsetenv("PORT")
	os.Unsetenv("TASK_RETENTION")

	cfg := Load()
	if cfg.Port != "7070" {
		t.Fatalf("file value should fill unset PORT, got %q", cfg.Port)
	}
	if cfg.TaskRetention != 24*time.Hour {
		t.Fatalf("retention %v", cfg.TaskRetention)
	}
	if cfg.SweepSchedule != "@every 30s" {
		t.Fatalf("environment must win over the file, got %q", cfg.SweepSchedule)
	}
}
