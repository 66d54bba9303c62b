package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"recipost/internal/browser"
	"recipost/internal/caption"
	"recipost/internal/publish"
)

// EnvPrefix prefixes every environment override, e.g. RECIPOST_HEADLESS.
const EnvPrefix = "RECIPOST"

// LLM selects the OpenAI-compatible endpoint used for captions.
type LLM struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

// Timeouts bound every wait of an attempt.
type Timeouts struct {
	LoginWait   time.Duration `mapstructure:"login_wait"`
	LoginCheck  time.Duration `mapstructure:"login_check"`
	Locate      time.Duration `mapstructure:"locate"`
	UploadItem  time.Duration `mapstructure:"upload_item"`
	Verify      time.Duration `mapstructure:"verify"`
	Fetch       time.Duration `mapstructure:"fetch"`
	PollEvery   time.Duration `mapstructure:"poll"`
	RenderFetch time.Duration `mapstructure:"render"`
}

// Screenshots is the retention policy applied by `screenshots prune`.
type Screenshots struct {
	MaxAge   time.Duration `mapstructure:"max_age"`
	MaxFiles int           `mapstructure:"max_files"`
}

// Config is the resolved configuration.
type Config struct {
	Account     string      `mapstructure:"account"`
	DataDir     string      `mapstructure:"data_dir"`
	Headless    bool        `mapstructure:"headless"`
	Proxy       string      `mapstructure:"proxy"`
	Selectors   string      `mapstructure:"selectors"`
	ChromeBin   string      `mapstructure:"chrome_bin"`
	YTDLP       string      `mapstructure:"ytdlp"`
	Debug       bool        `mapstructure:"debug"`
	LLM         LLM         `mapstructure:"llm"`
	Timeouts    Timeouts    `mapstructure:"timeouts"`
	Screenshots Screenshots `mapstructure:"screenshots"`
}

// legacyEnv maps keys to the variable names older deployments use.
var legacyEnv = map[string]string{
	"llm.api_key":  "OPENAI_API_KEY",
	"llm.base_url": "OPENAI_BASE_URL",
	"llm.model":    "MODEL_NAME",
}

// NewViper returns a viper instance carrying defaults and env bindings.
// Flags are bound onto it by the caller.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), legacy)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("account", "default")
	v.SetDefault("data_dir", defaultDataDir())
	v.SetDefault("headless", false)
	v.SetDefault("proxy", "")
	v.SetDefault("selectors", "")
	v.SetDefault("chrome_bin", "")
	v.SetDefault("ytdlp", "yt-dlp")
	v.SetDefault("debug", false)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")

	v.SetDefault("timeouts.login_wait", 120*time.Second)
	v.SetDefault("timeouts.login_check", 10*time.Second)
	v.SetDefault("timeouts.locate", 15*time.Second)
	v.SetDefault("timeouts.upload_item", 60*time.Second)
	v.SetDefault("timeouts.verify", 20*time.Second)
	v.SetDefault("timeouts.fetch", 30*time.Second)
	v.SetDefault("timeouts.poll", 250*time.Millisecond)
	v.SetDefault("timeouts.render", 45*time.Second)

	v.SetDefault("screenshots.max_age", 14*24*time.Hour)
	v.SetDefault("screenshots.max_files", 500)
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".recipost"
	}
	return filepath.Join(home, ".recipost")
}

// LoadDotEnv loads .env files into the process environment. Missing files
// are ignored; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads the optional config file and resolves v into a Config. An
// explicit file must exist; otherwise recipost.yaml is looked up in the
// working directory and $HOME/.recipost.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("recipost")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.recipost")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.DataDir = expandHome(cfg.DataDir)
	cfg.Selectors = expandHome(cfg.Selectors)
	return &cfg, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// Validate checks the values every command depends on. requireLLM adds
// the caption endpoint settings.
func (c *Config) Validate(requireLLM bool) error {
	var problems []string
	if strings.TrimSpace(c.Account) == "" {
		problems = append(problems, "account must not be empty")
	}
	if c.DataDir == "" {
		problems = append(problems, "data_dir must not be empty")
	}
	durations := map[string]time.Duration{
		"timeouts.login_wait":  c.Timeouts.LoginWait,
		"timeouts.login_check": c.Timeouts.LoginCheck,
		"timeouts.locate":      c.Timeouts.Locate,
		"timeouts.upload_item": c.Timeouts.UploadItem,
		"timeouts.verify":      c.Timeouts.Verify,
		"timeouts.fetch":       c.Timeouts.Fetch,
		"timeouts.poll":        c.Timeouts.PollEvery,
		"timeouts.render":      c.Timeouts.RenderFetch,
	}
	for _, key := range sortedKeys(durations) {
		if durations[key] <= 0 {
			problems = append(problems, key+" must be positive")
		}
	}
	if c.Screenshots.MaxFiles < 0 || c.Screenshots.MaxAge < 0 {
		problems = append(problems, "screenshots retention must not be negative")
	}
	if requireLLM {
		if c.LLM.APIKey == "" {
			problems = append(problems, "llm.api_key is required (or OPENAI_API_KEY)")
		}
		if c.LLM.Model == "" {
			problems = append(problems, "llm.model is required (or MODEL_NAME)")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func sortedKeys(m map[string]time.Duration) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Config) SessionsDir() string    { return filepath.Join(c.DataDir, "sessions") }
func (c *Config) ScreenshotsDir() string { return filepath.Join(c.DataDir, "screenshots") }
func (c *Config) MediaDir() string       { return filepath.Join(c.DataDir, "media") }
func (c *Config) HistoryPath() string    { return filepath.Join(c.DataDir, "history.db") }

// Browser returns the launch settings for publish attempts.
func (c *Config) Browser() browser.Config {
	return browser.Config{
		Headless: c.Headless,
		ProxyURL: c.Proxy,
		Bin:      c.ChromeBin,
	}
}

// Caption returns the LLM endpoint settings.
func (c *Config) Caption() caption.Config {
	return caption.Config{BaseURL: c.LLM.BaseURL, APIKey: c.LLM.APIKey, Model: c.LLM.Model}
}

// Controller returns the publish controller's wait settings.
func (c *Config) Controller() publish.Options {
	return publish.Options{
		AccountKey:        c.Account,
		LocateTimeout:     c.Timeouts.Locate,
		UploadItemTimeout: c.Timeouts.UploadItem,
		VerifyTimeout:     c.Timeouts.Verify,
		LoginWait:         c.Timeouts.LoginWait,
		LoginCheckTimeout: c.Timeouts.LoginCheck,
		Poll:              c.Timeouts.PollEvery,
		Interactive:       !c.Headless,
	}
}
