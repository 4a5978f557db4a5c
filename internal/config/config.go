package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config stores runtime configuration loaded from environment variables.
type Config struct {
	Port          string
	DatabaseURL   string
	SQLitePath    string
	LocalTimezone *time.Location
	LogLevel      string
	LogPretty     bool

	TaskPollInterval time.Duration
	TaskLockLifetime time.Duration
	TaskBatchSize    int
	TaskRetention    time.Duration
	SweepSchedule    string
	CleanupSchedule  string

	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioWhatsAppNumber string
	NotifyRatePerSec     int
}

// fileConfig mirrors the keys accepted in the optional CONFIG_FILE.
type fileConfig struct {
	Port                 string `yaml:"PORT"`
	DatabaseURL          string `yaml:"DATABASE_URL"`
	SQLitePath           string `yaml:"SQLITE_PATH"`
	LocalTimezone        string `yaml:"LOCAL_TIMEZONE"`
	LogLevel             string `yaml:"LOG_LEVEL"`
	LogPretty            string `yaml:"LOG_PRETTY"`
	TaskPollInterval     string `yaml:"TASK_POLL_INTERVAL"`
	TaskLockLifetime     string `yaml:"TASK_LOCK_LIFETIME"`
	TaskBatchSize        string `yaml:"TASK_BATCH_SIZE"`
	TaskRetention        string `yaml:"TASK_RETENTION"`
	SweepSchedule        string `yaml:"SWEEP_SCHEDULE"`
	CleanupSchedule      string `yaml:"CLEANUP_SCHEDULE"`
	TwilioAccountSID     string `yaml:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken      string `yaml:"TWILIO_AUTH_TOKEN"`
	TwilioWhatsAppNumber string `yaml:"TWILIO_WHATSAPP_NUMBER"`
	NotifyRatePerSec     string `yaml:"NOTIFY_RATE_PER_SEC"`
}

// Load reads configuration values and prepares defaults where applicable.
// Values from CONFIG_FILE fill in keys the environment leaves unset.
func Load() *Config {
	_ = godotenv.Load()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(path); err != nil {
			log.Printf("config: unable to read %s: %v", path, err)
		}
	}

	timezoneName := getenvDefault("LOCAL_TIMEZONE", "Asia/Ho_Chi_Minh")
	location, err := time.LoadLocation(timezoneName)
	if err != nil {
		log.Printf("config: invalid LOCAL_TIMEZONE %q, defaulting to UTC: %v", timezoneName, err)
		location = time.UTC
	}

	return &Config{
		Port:          getenvDefault("PORT", "8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SQLitePath:    getenvDefault("SQLITE_PATH", "mealremind.db"),
		LocalTimezone: location,
		LogLevel:      getenvDefault("LOG_LEVEL", "info"),
		LogPretty:     ParseBoolEnv("LOG_PRETTY", false),

		TaskPollInterval: ParseDurationEnv("TASK_POLL_INTERVAL", time.Second),
		TaskLockLifetime: ParseDurationEnv("TASK_LOCK_LIFETIME", 10*time.Minute),
		TaskBatchSize:    ParseIntEnv("TASK_BATCH_SIZE", 20),
		TaskRetention:    ParseDurationEnv("TASK_RETENTION", 72*time.Hour),
		SweepSchedule:    getenvDefault("SWEEP_SCHEDULE", "@every 5m"),
		CleanupSchedule:  getenvDefault("CLEANUP_SCHEDULE", "0 3 * * *"),

		TwilioAccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioWhatsAppNumber: os.Getenv("TWILIO_WHATSAPP_NUMBER"),
		NotifyRatePerSec:     ParseIntEnv("NOTIFY_RATE_PER_SEC", 5),
	}
}

// TwilioEnabled reports whether WhatsApp delivery is configured.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioWhatsAppNumber != ""
}

func applyFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return err
	}

	values := map[string]string{
		"PORT":                   fc.Port,
		"DATABASE_URL":           fc.DatabaseURL,
		"SQLITE_PATH":            fc.SQLitePath,
		"LOCAL_TIMEZONE":         fc.LocalTimezone,
		"LOG_LEVEL":              fc.LogLevel,
		"LOG_PRETTY":             fc.LogPretty,
		"TASK_POLL_INTERVAL":     fc.TaskPollInterval,
		"TASK_LOCK_LIFETIME":     fc.TaskLockLifetime,
		"TASK_BATCH_SIZE":        fc.TaskBatchSize,
		"TASK_RETENTION":         fc.TaskRetention,
		"SWEEP_SCHEDULE":         fc.SweepSchedule,
		"CLEANUP_SCHEDULE":       fc.CleanupSchedule,
		"TWILIO_ACCOUNT_SID":     fc.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":      fc.TwilioAuthToken,
		"TWILIO_WHATSAPP_NUMBER": fc.TwilioWhatsAppNumber,
		"NOTIFY_RATE_PER_SEC":    fc.NotifyRatePerSec,
	}
	for key, value := range values {
		if value == "" {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		os.Setenv(key, value)
	}
	return nil
}

func getenvDefault(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		return def
	}
	return value
}

// ParseIntEnv returns the integer value for an environment variable or the provided default.
func ParseIntEnv(key string, def int) int {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as int: %v", key, value, err)
		return def
	}
	return parsed
}

// ParseDurationEnv returns the duration value for an environment variable or the provided default.
func ParseDurationEnv(key string, def time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return def
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		log.Printf("config: unable to parse %s=%q as duration: %v", key, value, err)
		return def
	}
	return parsed
}

// ParseBoolEnv returns the boolean value for an environment variable or the provided default.
func ParseBoolEnv(key string, def bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}

	parsed, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("config: unable to parse %s=%q as bool: %v", key, value, err)
		return def
	}
	return parsed
}
