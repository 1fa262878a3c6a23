package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/mod/semver"

	"github.com/starford/songbook/internal/prefs"
	"github.com/starford/songbook/internal/source"
)

// Build modes.
const (
	ModeProduction  = "production"
	ModeDevelopment = "development"
)

// Log formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Books BooksConfig       `yaml:"books"`
	Fetch FetchConfig       `yaml:"fetch"`
	Prefs PrefsConfig       `yaml:"prefs"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Books.Validate(); err != nil {
		return err
	}
	if err := c.Fetch.Validate(); err != nil {
		return err
	}
	return c.Prefs.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel  slog.Level      `yaml:"log_level"`
	LogFormat string          `yaml:"log_format"`
	Platform  source.Platform `yaml:"platform"`
	Mode      string          `yaml:"mode"`
	// Version is the running application version, compared against the
	// persisted one on startup.
	Version string     `yaml:"version"`
	HTTP    HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.LogFormat == "" {
		c.LogFormat = LogFormatJSON
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LogFormat, validation.In(LogFormatJSON, LogFormatText)),
		validation.Field(&c.Platform, validation.Required, validation.In(
			source.PlatformWeb, source.PlatformAndroid, source.PlatformIOS, source.PlatformDesktop)),
		validation.Field(&c.Mode, validation.Required, validation.In(ModeProduction, ModeDevelopment)),
		validation.Field(&c.Version, validation.Required, validation.By(semverRule)),
	); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// Production reports whether the build mode is production.
func (c *ApplicationConfig) Production() bool {
	return c.Mode == ModeProduction
}

func semverRule(value any) error {
	v, _ := value.(string)
	if !semver.IsValid("v" + trimV(v)) {
		return errors.New("must be a semantic version")
	}
	return nil
}

func trimV(v string) string {
	if len(v) > 0 && v[0] == 'v' {
		return v[1:]
	}
	return v
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BooksConfig locates the bundled and remote copies of the books.
type BooksConfig struct {
	// Dir is the bundled books directory served at /books.
	Dir string `yaml:"dir"`
	// BaseURL is the application base URL; the local copy of a book is
	// BaseURL + "books/<ref>". An empty value means this server.
	BaseURL string       `yaml:"base_url"`
	Remote  RemoteConfig `yaml:"remote"`
}

// Validate validates the books configuration.
func (c *BooksConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Dir, validation.Required),
	); err != nil {
		return err
	}
	return c.Remote.Validate()
}

// RemoteConfig addresses the raw-content mirror.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Org     string `yaml:"org"`
	Repo    string `yaml:"repo"`
	Branch  string `yaml:"branch"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Org, validation.Required),
		validation.Field(&c.Repo, validation.Required),
		validation.Field(&c.Branch, validation.Required),
	)
}

// FetchConfig holds the per-document request policy.
type FetchConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
	UserAgent     string        `yaml:"user_agent"`
}

// Validate validates the fetch configuration.
func (c *FetchConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.SlowThreshold, validation.Min(time.Duration(0))),
	)
}

// PrefsConfig selects the preference store.
type PrefsConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
	// LegacyPath is the pre-2.0 TOML store holding the flat bookmark list.
	// Empty disables the legacy bookmark lookup.
	LegacyPath string `yaml:"legacy_path"`
}

// Validate validates the prefs configuration.
func (c *PrefsConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(prefs.DriverSQLite, prefs.DriverTOML, prefs.DriverMemory)),
		validation.Field(&c.Path, validation.When(c.Driver != prefs.DriverMemory, validation.Required)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel:  slog.LevelInfo,
			LogFormat: LogFormatJSON,
			Platform:  source.PlatformDesktop,
			Mode:      ModeProduction,
			Version:   "2.1.0",
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Books: BooksConfig{
			Dir: "./public/books",
			Remote: RemoteConfig{
				BaseURL: "https://raw.githubusercontent.com",
				Org:     "ACC-Hymns",
				Repo:    "acchymns-web",
				Branch:  "main",
			},
		},
		Fetch: FetchConfig{
			Timeout: 10 * time.Second,
		},
		Prefs: PrefsConfig{
			Driver: prefs.DriverSQLite,
			Path:   "./songbook.db",
		},
	}
}
