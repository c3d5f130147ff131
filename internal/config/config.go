package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"calpadsrunner/internal/core/domain"
	"calpadsrunner/internal/portal"
)

// DefaultPath is the config file read when --config is not given.
const DefaultPath = "calpads.yaml"

// Config holds the application configuration.
type Config struct {
	Portal   portal.Surface `yaml:"portal"`
	Browser  BrowserConfig  `yaml:"browser"`
	Timeouts Timeouts       `yaml:"timeouts"`
	Extract  ExtractConfig  `yaml:"extract"`
	Registry RegistryConfig `yaml:"registry"`
	Store    StoreConfig    `yaml:"store"`
	Log      LogConfig      `yaml:"log"`

	// Credentials only ever come from the environment.
	Credentials domain.Credentials `yaml:"-"`
}

// BrowserConfig configures the Chrome instance.
type BrowserConfig struct {
	Headless    bool   `yaml:"headless"`
	Bin         string `yaml:"bin"`          // empty: let the launcher find or fetch Chrome
	DebuggerURL string `yaml:"debugger_url"` // connect to a running Chrome instead of launching
	DataDir     string `yaml:"data_dir"`     // base dir for run folders and downloads
}

// Timeouts bounds every wait. None of them may be zero or negative.
type Timeouts struct {
	Default    time.Duration `yaml:"default"`
	Navigation time.Duration `yaml:"navigation"`
	Login      time.Duration `yaml:"login"`
	Scope      time.Duration `yaml:"scope"`
	Upload     time.Duration `yaml:"upload"`   // slow server-side file validation
	Report     time.Duration `yaml:"report"`   // report rendering inside the viewer frame
	Download   time.Duration `yaml:"download"` // extract download navigation
	Settle     time.Duration `yaml:"settle"`   // pause after triggering an export
}

// ExtractConfig holds the fixed tags used when requesting extracts.
type ExtractConfig struct {
	DateRangeReportType string `yaml:"date_range_report_type"`
	EffectiveStart      string `yaml:"effective_start"`
	EffectiveEnd        string `yaml:"effective_end"`
	AcademicYear        string `yaml:"academic_year"`
}

// Tags converts the section into naming tags.
func (e ExtractConfig) Tags() domain.ExtractTags {
	return domain.ExtractTags{
		DateRangeReportType: e.DateRangeReportType,
		EffectiveStart:      e.EffectiveStart,
		EffectiveEnd:        e.EffectiveEnd,
		AcademicYear:        e.AcademicYear,
	}
}

// RegistryConfig points at the org unit registry file.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// StoreConfig points at the run history database.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultTimeouts returns the finite ceilings used when a value is unset.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Default:    30 * time.Second,
		Navigation: 60 * time.Second,
		Login:      60 * time.Second,
		Scope:      10 * time.Second,
		Upload:     2 * time.Hour,
		Report:     30 * time.Minute,
		Download:   10 * time.Minute,
		Settle:     3 * time.Second,
	}
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	tags := domain.DefaultExtractTags()
	return &Config{
		Portal: portal.DefaultSurface(),
		Browser: BrowserConfig{
			Headless: true,
			DataDir:  "./data",
		},
		Timeouts: DefaultTimeouts(),
		Extract: ExtractConfig{
			DateRangeReportType: tags.DateRangeReportType,
			EffectiveStart:      tags.EffectiveStart,
			EffectiveEnd:        tags.EffectiveEnd,
			AcademicYear:        tags.AcademicYear,
		},
		Registry: RegistryConfig{Path: "orgs.yaml"},
		Store:    StoreConfig{Path: filepath.Join("data", "runs.db")},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads configuration from a YAML file, falling back to defaults when
// the file does not exist, then applies environment overrides. A .env file
// in the working directory is loaded first if present.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}

	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()
	cfg.applyEnv()
	cfg.Timeouts = cfg.Timeouts.withDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Credentials.Username = getEnv("CALPADS_USERNAME", c.Credentials.Username)
	c.Credentials.Password = getEnv("CALPADS_PASSWORD", c.Credentials.Password)
	c.Portal.BaseURL = getEnv("CALPADS_BASE_URL", c.Portal.BaseURL)
	c.Browser.DataDir = getEnv("CALPADS_DATA_DIR", c.Browser.DataDir)
	c.Browser.Bin = getEnv("CALPADS_CHROME_BIN", c.Browser.Bin)
	c.Registry.Path = getEnv("CALPADS_REGISTRY", c.Registry.Path)
	c.Store.Path = getEnv("CALPADS_STORE_PATH", c.Store.Path)
	if v, err := strconv.ParseBool(os.Getenv("CALPADS_HEADLESS")); err == nil {
		c.Browser.Headless = v
	}
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (t Timeouts) withDefaults() Timeouts {
	d := DefaultTimeouts()
	fill := func(v *time.Duration, def time.Duration) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&t.Default, d.Default)
	fill(&t.Navigation, d.Navigation)
	fill(&t.Login, d.Login)
	fill(&t.Scope, d.Scope)
	fill(&t.Upload, d.Upload)
	fill(&t.Report, d.Report)
	fill(&t.Download, d.Download)
	fill(&t.Settle, d.Settle)
	return t
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Portal.BaseURL) == "" {
		return &ConfigError{Field: "portal.base_url", Message: "must not be empty"}
	}
	named := map[string]time.Duration{
		"default":    c.Timeouts.Default,
		"navigation": c.Timeouts.Navigation,
		"login":      c.Timeouts.Login,
		"scope":      c.Timeouts.Scope,
		"upload":     c.Timeouts.Upload,
		"report":     c.Timeouts.Report,
		"download":   c.Timeouts.Download,
	}
	for name, d := range named {
		if d <= 0 {
			return &ConfigError{Field: "timeouts." + name, Message: "must be a positive duration"}
		}
	}
	if c.Timeouts.Settle < 0 {
		return &ConfigError{Field: "timeouts.settle", Message: "must not be negative"}
	}
	if c.Extract.DateRangeReportType == "" || c.Extract.AcademicYear == "" {
		return &ConfigError{Field: "extract", Message: "date_range_report_type and academic_year are required"}
	}
	return nil
}

// RequireCredentials fails when the login pair is incomplete.
func (c *Config) RequireCredentials() error {
	if c.Credentials.Username == "" {
		return &ConfigError{Field: "CALPADS_USERNAME", Message: "username is required"}
	}
	if c.Credentials.Password == "" {
		return &ConfigError{Field: "CALPADS_PASSWORD", Message: "password is required"}
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
