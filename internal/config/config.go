// Package config loads config.yaml, applies environment overrides and
// defaults, and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/arcticwatch/arcticwatch/internal/browser"
	"github.com/arcticwatch/arcticwatch/internal/compare"
	"github.com/arcticwatch/arcticwatch/internal/session"
)

const DefaultPath = "config.yaml"

type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Challenges  []ChallengeConfig `yaml:"challenges" validate:"dive"`
	Coordinates CoordinatesConfig `yaml:"coordinates"`
	Area        AreaConfig        `yaml:"area"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Notify      NotifyConfig      `yaml:"notify"`
	Corpus      CorpusConfig      `yaml:"corpus"`
	History     HistoryConfig     `yaml:"history"`
	Browser     BrowserConfig     `yaml:"browser"`
	Timing      TimingConfig      `yaml:"timing"`
	Compare     CompareConfig     `yaml:"compare"`
	Caption     CaptionConfig     `yaml:"caption"`
	Watch       WatchConfig       `yaml:"watch"`
}

type SiteConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	LoginPath string `yaml:"login_path" validate:"required"`
	MapPath   string `yaml:"map_path" validate:"required"`
}

type CredentialsConfig struct {
	Username string `yaml:"username" validate:"required"`
	Password string `yaml:"password" validate:"required"`
}

type ChallengeConfig struct {
	Question string `yaml:"question" validate:"required"`
	Answer   string `yaml:"answer" validate:"required"`
}

type CoordinatesConfig struct {
	Latitude  string `yaml:"latitude" validate:"required,coordinate"`
	Longitude string `yaml:"longitude" validate:"required,coordinate"`
}

type AreaConfig struct {
	ID string `yaml:"id" validate:"required"`
}

type TelegramConfig struct {
	Token              string `yaml:"token"`
	DebugChatID        int64  `yaml:"debug_chat_id" validate:"required_with=Token,chat_id"`
	NotificationChatID int64  `yaml:"notification_chat_id" validate:"required_with=Token,chat_id"`
	APIURL             string `yaml:"api_url" validate:"omitempty,url"`
	DebugEveryRun      bool   `yaml:"debug_every_run"`
}

// Enabled reports whether alerts go to Telegram.
func (t TelegramConfig) Enabled() bool {
	return t.Token != ""
}

type NotifyConfig struct {
	// LogDir keeps a copy of every image sent, also when Telegram is off.
	LogDir string `yaml:"log_dir"`
}

type CorpusConfig struct {
	Dir string `yaml:"dir" validate:"required"`
}

type HistoryConfig struct {
	Path string `yaml:"path"`
}

type BrowserConfig struct {
	Headless      bool          `yaml:"headless"`
	WindowWidth   int           `yaml:"window_width" validate:"gte=0"`
	WindowHeight  int           `yaml:"window_height" validate:"gte=0"`
	ExecPath      string        `yaml:"exec_path"`
	ActionTimeout time.Duration `yaml:"action_timeout" validate:"gte=0"`
}

type TimingConfig struct {
	WaitTimeout     time.Duration `yaml:"wait_timeout" validate:"gt=0"`
	PollInterval    time.Duration `yaml:"poll_interval" validate:"gt=0"`
	PageLoadTimeout time.Duration `yaml:"page_load_timeout" validate:"gt=0"`
	InputDelay      time.Duration `yaml:"input_delay" validate:"gte=0"`
	ConfirmDelay    time.Duration `yaml:"confirm_delay" validate:"gte=0"`
	OverlayDelay    time.Duration `yaml:"overlay_delay" validate:"gte=0"`
	ZoomSteps       int           `yaml:"zoom_steps" validate:"gte=0,lte=30"`
	ZoomDelay       time.Duration `yaml:"zoom_delay" validate:"gte=0"`
	TileSettle      time.Duration `yaml:"tile_settle" validate:"gte=0"`
	PopupTimeout    time.Duration `yaml:"popup_timeout" validate:"gte=0"`
	CaptureSettle   time.Duration `yaml:"capture_settle" validate:"gte=0"`
}

type CompareConfig struct {
	PixelTolerance     float64 `yaml:"pixel_tolerance" validate:"gte=0,lte=1"`
	AllowedDiffPercent float64 `yaml:"allowed_diff_percent" validate:"gte=0,lte=100"`
}

type CaptionConfig struct {
	Provider string `yaml:"provider" validate:"omitempty,oneof=gemini ollama openai"`
	Model    string `yaml:"model"`
	Prompt   string `yaml:"prompt"`
}

// Enabled reports whether alerts are captioned by a vision model.
func (c CaptionConfig) Enabled() bool {
	return c.Provider != ""
}

type WatchConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gt=0"`
}

// Default returns a configuration with every optional value filled in.
func Default() *Config {
	site := session.DefaultSite()
	timing := session.DefaultTiming()
	return &Config{
		Site: SiteConfig{
			BaseURL:   site.BaseURL,
			LoginPath: site.LoginPath,
			MapPath:   site.MapPath,
		},
		Corpus:  CorpusConfig{Dir: "corpus"},
		History: HistoryConfig{Path: "history.parquet"},
		Browser: BrowserConfig{
			Headless:      true,
			WindowWidth:   1920,
			WindowHeight:  1200,
			ActionTimeout: 90 * time.Second,
		},
		Timing: TimingConfig{
			WaitTimeout:     timing.WaitTimeout,
			PollInterval:    timing.PollInterval,
			PageLoadTimeout: timing.PageLoadTimeout,
			InputDelay:      timing.InputDelay,
			ConfirmDelay:    timing.ConfirmDelay,
			OverlayDelay:    timing.OverlayDelay,
			ZoomSteps:       timing.ZoomSteps,
			ZoomDelay:       timing.ZoomDelay,
			TileSettle:      timing.TileSettle,
			PopupTimeout:    timing.PopupTimeout,
			CaptureSettle:   timing.CaptureSettle,
		},
		Compare: CompareConfig{
			PixelTolerance: compare.DefaultPixelTolerance,
		},
		Watch: WatchConfig{Interval: time.Hour},
	}
}

var yamlLineRegex = regexp.MustCompile(`line (\d+)`)

// Load reads path over the defaults, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Read is Load without validation. Commands that only touch the corpus or
// the history use it so a missing credential does not stop them.
func Read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: path, Line: extractLine(err), Err: err}
	}

	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv overrides secrets and provider selection from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("ARCTICWATCH_USERNAME"); v != "" {
		cfg.Credentials.Username = v
	}
	if v := os.Getenv("ARCTICWATCH_PASSWORD"); v != "" {
		cfg.Credentials.Password = v
	}
	if v := os.Getenv("TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("CAPTION_PROVIDER"); v != "" {
		cfg.Caption.Provider = v
	}
}

func extractLine(err error) int {
	matches := yamlLineRegex.FindStringSubmatch(err.Error())
	if len(matches) != 2 {
		return 0
	}
	line, convErr := strconv.Atoi(matches[1])
	if convErr != nil {
		return 0
	}
	return line
}

// SessionOptions converts the configuration to what a session needs.
func (c *Config) SessionOptions() session.Options {
	site := session.DefaultSite()
	site.BaseURL = c.Site.BaseURL
	site.LoginPath = c.Site.LoginPath
	site.MapPath = c.Site.MapPath

	challenges := make(session.ChallengeTable, 0, len(c.Challenges))
	for _, q := range c.Challenges {
		challenges = append(challenges, session.Challenge{Question: q.Question, Answer: q.Answer})
	}

	return session.Options{
		Site: site,
		Credentials: session.Credentials{
			Username: c.Credentials.Username,
			Password: c.Credentials.Password,
		},
		Challenges: challenges,
		Coordinates: session.Coordinates{
			Latitude:  c.Coordinates.Latitude,
			Longitude: c.Coordinates.Longitude,
		},
		Area: c.Area.ID,
		Timing: session.Timing{
			WaitTimeout:     c.Timing.WaitTimeout,
			PollInterval:    c.Timing.PollInterval,
			PageLoadTimeout: c.Timing.PageLoadTimeout,
			InputDelay:      c.Timing.InputDelay,
			ConfirmDelay:    c.Timing.ConfirmDelay,
			OverlayDelay:    c.Timing.OverlayDelay,
			ZoomSteps:       c.Timing.ZoomSteps,
			ZoomDelay:       c.Timing.ZoomDelay,
			TileSettle:      c.Timing.TileSettle,
			PopupTimeout:    c.Timing.PopupTimeout,
			CaptureSettle:   c.Timing.CaptureSettle,
		},
	}
}

func (c *Config) ChromeOptions() browser.ChromeOptions {
	return browser.ChromeOptions{
		Headless:      c.Browser.Headless,
		WindowWidth:   c.Browser.WindowWidth,
		WindowHeight:  c.Browser.WindowHeight,
		ExecPath:      c.Browser.ExecPath,
		ActionTimeout: c.Browser.ActionTimeout,
	}
}

func (c *Config) Comparator() compare.Comparator {
	cmp := compare.New()
	cmp.PixelTolerance = c.Compare.PixelTolerance
	cmp.AllowedDiffPercent = c.Compare.AllowedDiffPercent
	return cmp
}
