package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
credentials:
  username: "user@example.com"
  password: "hunter2"
challenges:
  - question: "Mother's maiden name?"
    answer: "Ivanova"
  - question: "First pet?"
    answer: "Sharik"
coordinates:
  latitude: "69.3558"
  longitude: "88.1893"
area:
  id: "27:11:0000000:123"
telegram:
  token: "123:abc"
  debug_chat_id: 1001
  notification_chat_id: -1002003004005
corpus:
  dir: /var/lib/arcticwatch/corpus
timing:
  tile_settle: 30s
  zoom_steps: 12
watch:
  interval: 2h
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"ARCTICWATCH_USERNAME", "ARCTICWATCH_PASSWORD", "TELEGRAM_TOKEN", "CAPTION_PROVIDER"} {
		t.Setenv(k, "")
	}
}

func TestLoadValidConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	assert.Equal(t, "user@example.com", cfg.Credentials.Username)
	require.Len(t, cfg.Challenges, 2)
	assert.Equal(t, "Sharik", cfg.Challenges[1].Answer)
	assert.Equal(t, int64(-1002003004005), cfg.Telegram.NotificationChatID)
	assert.True(t, cfg.Telegram.Enabled())
	assert.Equal(t, 2*time.Hour, cfg.Watch.Interval)

	// overridden
	assert.Equal(t, 30*time.Second, cfg.Timing.TileSettle)
	assert.Equal(t, 12, cfg.Timing.ZoomSteps)
	// defaults kept
	assert.Equal(t, 60*time.Second, cfg.Timing.WaitTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Timing.PollInterval)
	assert.Equal(t, "/default/login", cfg.Site.LoginPath)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "history.parquet", cfg.History.Path)
}

func TestSessionOptions(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)

	opts := cfg.SessionOptions()
	assert.Equal(t, "27:11:0000000:123", opts.Area)
	assert.Equal(t, "69.3558", opts.Coordinates.Latitude)
	assert.Equal(t, "88.1893", opts.Coordinates.Longitude)
	assert.Equal(t, 12, opts.Timing.ZoomSteps)
	assert.Equal(t, cfg.Site.BaseURL+"/default/arctic-map", opts.Site.MapURL())
	assert.NotEmpty(t, opts.Site.AuthMarker)

	answer, ok := opts.Challenges.Lookup("First pet?")
	require.True(t, ok)
	assert.Equal(t, "Sharik", answer)

	assert.Equal(t, 1920, cfg.ChromeOptions().WindowWidth)
	assert.InDelta(t, 0.1, cfg.Comparator().PixelTolerance, 1e-9)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("ARCTICWATCH_USERNAME", "env-user")
	t.Setenv("ARCTICWATCH_PASSWORD", "env-pass")
	t.Setenv("TELEGRAM_TOKEN", "999:zzz")
	t.Setenv("CAPTION_PROVIDER", "gemini")

	cfg, err := Load(writeConfig(t, validYAML))
	require.NoError(t, err)
	assert.Equal(t, "env-user", cfg.Credentials.Username)
	assert.Equal(t, "env-pass", cfg.Credentials.Password)
	assert.Equal(t, "999:zzz", cfg.Telegram.Token)
	assert.True(t, cfg.Caption.Enabled())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadParseError(t *testing.T) {
	_, err := Load(writeConfig(t, "credentials:\n  username: [unterminated\n"))
	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Positive(t, parseErr.Line)
}

func TestValidation(t *testing.T) {
	clearEnv(t)
	cases := []struct {
		name  string
		edit  func(c *Config)
		field string
	}{
		{"missing username", func(c *Config) { c.Credentials.Username = "" }, "credentials.username"},
		{"bad latitude", func(c *Config) { c.Coordinates.Latitude = "north" }, "coordinates.latitude"},
		{"missing area", func(c *Config) { c.Area.ID = "" }, "area.id"},
		{"chat id required with token", func(c *Config) { c.Telegram.DebugChatID = 0 }, "telegram.debug_chat_id"},
		{"chat id out of range", func(c *Config) { c.Telegram.NotificationChatID = 1 << 60 }, "telegram.notification_chat_id"},
		{"empty challenge answer", func(c *Config) { c.Challenges[0].Answer = "" }, "challenges[0].answer"},
		{"unknown provider", func(c *Config) { c.Caption.Provider = "llama.cpp" }, "caption.provider"},
		{"zero interval", func(c *Config) { c.Watch.Interval = 0 }, "watch.interval"},
		{"bad tolerance", func(c *Config) { c.Compare.PixelTolerance = 2 }, "compare.pixel_tolerance"},
		{"bad base url", func(c *Config) { c.Site.BaseURL = "not a url" }, "site.base_url"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Read(writeConfig(t, validYAML))
			require.NoError(t, err)
			tc.edit(cfg)

			err = Validate(cfg)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "got %v", err)
			assert.Equal(t, tc.field, ve.Field)
			assert.NotEmpty(t, ve.Message)
		})
	}
}

func TestTelegramOptional(t *testing.T) {
	clearEnv(t)
	cfg, err := Read(writeConfig(t, validYAML))
	require.NoError(t, err)

	cfg.Telegram.Token = ""
	cfg.Telegram.DebugChatID = 0
	cfg.Telegram.NotificationChatID = 0
	assert.NoError(t, Validate(cfg))
	assert.False(t, cfg.Telegram.Enabled())
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "area.id", Message: "is required"}
	assert.Equal(t, "validation error: area.id: is required", err.Error())
	assert.Equal(t, "validation error: bad", (&ValidationError{Message: "bad"}).Error())
}
