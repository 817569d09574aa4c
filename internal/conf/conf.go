package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ravenabot/ravena/internal/biz/domain"
	"github.com/ravenabot/ravena/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// Bot sessions hosted by this process
	Instances []InstanceConfig

	DefaultPrefix string
	SuperAdmins   []string

	// Storage
	DBPath     string
	ScratchDir string

	NSFW   NSFWConfig
	OpenAI OpenAIConfig

	// NATS liveness bus (optional)
	NATSURL string

	Monitor         MonitorConfig
	ShutdownTimeout time.Duration

	// Status API port, 0 disables it
	APIPort int

	LoadReportInterval time.Duration
	LogsChatID         string
	InvitesChatID      string
	NotifyUnknown      bool

	// User-facing texts (loaded from YAML)
	Texts *TextsConfig

	Debug    bool
	LogLevel string
}

// InstanceConfig is one bot session. Phone holds the bot's Lark open id;
// when empty it is resolved at startup. Open ids are scoped to one app, so
// Aliases lists the ids under which the other apps of the fleet see this bot.
type InstanceConfig struct {
	ID        string
	Phone     string
	AppID     string
	AppSecret string
	Aliases   []string
}

// NSFWConfig contains the media classification settings
type NSFWConfig struct {
	Threshold     float64
	ClassifyVideo bool
}

// OpenAIConfig contains the OpenAI-compatible endpoint settings
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// MonitorConfig contains stability monitor settings
type MonitorConfig struct {
	Threshold time.Duration
	Interval  time.Duration
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		homeDir, _ := os.UserHomeDir()
		dbPath = filepath.Join(homeDir, ".ravena", "ravena.db")
	}

	scratchDir := os.Getenv("SCRATCH_DIR")
	if scratchDir == "" {
		scratchDir = filepath.Join(os.TempDir(), "ravena")
	}

	prefix, ok := os.LookupEnv("DEFAULT_PREFIX")
	if !ok {
		prefix = domain.DefaultPrefix
	}

	texts, _ := LoadTextsConfig(os.Getenv("TEXTS_CONFIG_PATH"))

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	return &Config{
		Instances:     withAliases(parseInstances(os.Getenv("BOT_INSTANCES"), os.Getenv("FEISHU_APP_ID"), os.Getenv("FEISHU_APP_SECRET")), os.Getenv("BOT_ALIASES")),
		DefaultPrefix: prefix,
		SuperAdmins:   splitList(os.Getenv("SUPER_ADMINS")),
		DBPath:        dbPath,
		ScratchDir:    scratchDir,
		NSFW: NSFWConfig{
			Threshold:     envFloat("NSFW_THRESHOLD", usecase.DefaultNSFWThreshold),
			ClassifyVideo: os.Getenv("NSFW_CLASSIFY_VIDEO") == "true",
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   os.Getenv("OPENAI_MODEL"),
		},
		NATSURL: os.Getenv("NATS_URL"),
		Monitor: MonitorConfig{
			Threshold: time.Duration(envInt("MONITOR_THRESHOLD_SECONDS", 660)) * time.Second,
			Interval:  time.Duration(envInt("MONITOR_INTERVAL_SECONDS", 300)) * time.Second,
		},
		ShutdownTimeout:    time.Duration(envInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
		APIPort:            envInt("API_PORT", 8080),
		LoadReportInterval: time.Duration(envInt("LOAD_REPORT_MINUTES", 0)) * time.Minute,
		LogsChatID:         os.Getenv("GRUPO_LOGS"),
		InvitesChatID:      os.Getenv("GRUPO_INVITES"),
		NotifyUnknown:      os.Getenv("NOTIFY_UNKNOWN_COMMANDS") == "true",
		Texts:              texts,
		Debug:              os.Getenv("DEBUG") == "true",
		LogLevel:           logLevel,
	}
}

// parseInstances reads "id:phone[:appID:appSecret]" entries separated by commas.
// Entries without app credentials use the default app.
func parseInstances(raw, appID, appSecret string) []InstanceConfig {
	var out []InstanceConfig
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		inst := InstanceConfig{ID: strings.TrimSpace(parts[0]), AppID: appID, AppSecret: appSecret}
		if len(parts) > 1 {
			inst.Phone = strings.TrimSpace(parts[1])
		}
		if len(parts) > 3 {
			inst.AppID = strings.TrimSpace(parts[2])
			inst.AppSecret = strings.TrimSpace(parts[3])
		}
		out = append(out, inst)
	}
	if len(out) == 0 && appID != "" {
		out = append(out, InstanceConfig{ID: "ravena", AppID: appID, AppSecret: appSecret})
	}
	return out
}

// withAliases applies "id=alias|alias" entries separated by commas
func withAliases(instances []InstanceConfig, raw string) []InstanceConfig {
	aliases := make(map[string][]string)
	for _, entry := range splitList(raw) {
		id, list, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		for _, a := range strings.Split(list, "|") {
			if a = strings.TrimSpace(a); a != "" {
				aliases[strings.TrimSpace(id)] = append(aliases[strings.TrimSpace(id)], a)
			}
		}
	}
	for i := range instances {
		instances[i].Aliases = aliases[instances[i].ID]
	}
	return instances
}

func splitList(raw string) []string {
	var out []string
	for _, v := range strings.Split(raw, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// ToFilterConfig converts to the filter usecase configuration
func (c *Config) ToFilterConfig() usecase.FilterConfig {
	return usecase.FilterConfig{
		ScratchDir:    c.ScratchDir,
		Threshold:     c.NSFW.Threshold,
		ClassifyVideo: c.NSFW.ClassifyVideo,
	}
}

// ToInviteConfig converts to the invite usecase configuration
func (c *Config) ToInviteConfig() usecase.InviteConfig {
	return usecase.InviteConfig{
		InvitesChatID: c.InvitesChatID,
		Timeout:       usecase.DefaultInviteTimeout,
		Texts:         c.texts().InviteTexts(),
	}
}

func (c *Config) texts() *TextsConfig {
	if c.Texts == nil {
		return DefaultTextsConfig()
	}
	return c.Texts
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if len(c.Instances) == 0 {
		return &ConfigError{Field: "BOT_INSTANCES", Message: "at least one instance is required"}
	}
	seen := make(map[string]bool)
	for _, inst := range c.Instances {
		if inst.ID == "" {
			return &ConfigError{Field: "BOT_INSTANCES", Message: "instance id is empty"}
		}
		if seen[inst.ID] {
			return &ConfigError{Field: "BOT_INSTANCES", Message: fmt.Sprintf("duplicate instance %s", inst.ID)}
		}
		seen[inst.ID] = true
		if inst.AppID == "" || inst.AppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: fmt.Sprintf("required for instance %s", inst.ID)}
		}
	}
	if c.NSFW.Threshold <= 0 || c.NSFW.Threshold > 1 {
		return &ConfigError{Field: "NSFW_THRESHOLD", Message: "must be in (0, 1]"}
	}
	if c.Monitor.Threshold <= 0 || c.Monitor.Interval <= 0 {
		return &ConfigError{Field: "MONITOR_THRESHOLD_SECONDS/MONITOR_INTERVAL_SECONDS", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
