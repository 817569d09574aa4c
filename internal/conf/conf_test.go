package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_a")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("BOT_INSTANCES", "")
	t.Setenv("TEXTS_CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg := LoadFromEnv()

	require.Len(t, cfg.Instances, 1)
	assert.Equal(t, "ravena", cfg.Instances[0].ID)
	assert.Equal(t, "!", cfg.DefaultPrefix)
	assert.Equal(t, 0.7, cfg.NSFW.Threshold)
	assert.Equal(t, 660*time.Second, cfg.Monitor.Threshold)
	assert.Equal(t, 5*time.Minute, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, time.Duration(0), cfg.LoadReportInterval)
	require.NotNil(t, cfg.Texts)
	assert.Equal(t, "Nenhum motivo fornecido", cfg.Texts.Invite.NoReason)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("FEISHU_APP_ID", "cli_a")
	t.Setenv("FEISHU_APP_SECRET", "secret")
	t.Setenv("BOT_INSTANCES", "ravena1:ou_1, ravena2:ou_2:cli_b:secret_b")
	t.Setenv("BOT_ALIASES", "ravena1=ou_1_in_b, ravena2=ou_2_in_a|ou_2_in_c, nada=ou_x, malformed")
	t.Setenv("DEFAULT_PREFIX", "")
	t.Setenv("SUPER_ADMINS", "ou_admin, ou_root")
	t.Setenv("NSFW_THRESHOLD", "0.85")
	t.Setenv("MONITOR_THRESHOLD_SECONDS", "120")
	t.Setenv("LOAD_REPORT_MINUTES", "30")
	t.Setenv("NOTIFY_UNKNOWN_COMMANDS", "true")

	cfg := LoadFromEnv()

	require.Len(t, cfg.Instances, 2)
	assert.Equal(t, InstanceConfig{ID: "ravena1", Phone: "ou_1", AppID: "cli_a", AppSecret: "secret", Aliases: []string{"ou_1_in_b"}}, cfg.Instances[0])
	assert.Equal(t, InstanceConfig{ID: "ravena2", Phone: "ou_2", AppID: "cli_b", AppSecret: "secret_b", Aliases: []string{"ou_2_in_a", "ou_2_in_c"}}, cfg.Instances[1])
	assert.Equal(t, "", cfg.DefaultPrefix)
	assert.Equal(t, []string{"ou_admin", "ou_root"}, cfg.SuperAdmins)
	assert.Equal(t, 0.85, cfg.NSFW.Threshold)
	assert.Equal(t, 2*time.Minute, cfg.Monitor.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.LoadReportInterval)
	assert.True(t, cfg.NotifyUnknown)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Instances: []InstanceConfig{{ID: "a", AppID: "x", AppSecret: "y"}},
			NSFW:      NSFWConfig{Threshold: 0.7},
			Monitor:   MonitorConfig{Threshold: time.Minute, Interval: time.Minute},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"no instances", func(c *Config) { c.Instances = nil }, "BOT_INSTANCES"},
		{"duplicate", func(c *Config) { c.Instances = append(c.Instances, c.Instances[0]) }, "BOT_INSTANCES"},
		{"missing app", func(c *Config) { c.Instances[0].AppSecret = "" }, "FEISHU_APP_ID/FEISHU_APP_SECRET"},
		{"threshold", func(c *Config) { c.NSFW.Threshold = 1.5 }, "NSFW_THRESHOLD"},
		{"monitor", func(c *Config) { c.Monitor.Interval = 0 }, "MONITOR_THRESHOLD_SECONDS/MONITOR_INTERVAL_SECONDS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}

	assert.NoError(t, valid().Validate())
}

func TestLoadTextsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
replies:
  not_admin: "Só admins!"
mention:
  greeting: "Fala!"
`), 0644))

	texts, err := LoadTextsConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "Só admins!", texts.ServiceTexts().NotAdmin)
	assert.Equal(t, "Erro ao executar comando: %s", texts.ServiceTexts().CommandError)
	assert.Equal(t, "Fala!", texts.MentionTexts().Greeting)
	assert.Equal(t, DefaultTextsConfig().Mention.Failure, texts.MentionTexts().Failure)
	assert.Equal(t, "Nenhum motivo fornecido", texts.InviteTexts().NoReason)
}

func TestLoadTextsConfig_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "texts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("replies: [nope"), 0644))

	texts, err := LoadTextsConfig(path)
	assert.Error(t, err)
	require.NotNil(t, texts)
	assert.Equal(t, DefaultTextsConfig().Replies.NotAdmin, texts.Replies.NotAdmin)
}
