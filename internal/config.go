package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/remi/internal/location"
	"github.com/starford/remi/internal/trust"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App    ApplicationConfig `yaml:"app"`
	Gemini GeminiConfig      `yaml:"gemini"`
	Trust  TrustConfig       `yaml:"trust"`
	Data   DataConfig        `yaml:"data"`
	SQLite SQLiteConfig      `yaml:"sqlite"`
	Auth   AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Gemini.Validate(); err != nil {
		return err
	}
	if err := c.Trust.Validate(); err != nil {
		return err
	}
	if err := c.Data.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
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

// GeminiConfig holds the session engine and transport settings.
type GeminiConfig struct {
	Home            string        `yaml:"home"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxRedirects    int           `yaml:"max_redirects"`
	MaxResponseSize int64         `yaml:"max_response_size"`
	RefetchOnReplay bool          `yaml:"refetch_on_replay"`
	// HistoryCap bounds back history; zero keeps everything.
	HistoryCap int `yaml:"history_cap"`
}

// Validate validates the Gemini configuration.
func (c *GeminiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Home, validation.Required, validation.By(isGeminiURL)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxRedirects, validation.Min(0), validation.Max(20)),
		validation.Field(&c.MaxResponseSize, validation.Required, validation.Min(int64(1024))),
		validation.Field(&c.HistoryCap, validation.Min(0)),
	)
}

// HomeLocation returns the parsed home URL. Validate must have passed.
func (c *GeminiConfig) HomeLocation() location.Location {
	loc, _ := location.Parse(c.Home)
	return loc
}

func isGeminiURL(value any) error {
	s, _ := value.(string)
	if _, err := location.Parse(s); err != nil {
		return err
	}
	return nil
}

// TrustConfig selects how unknown and changed server certificates are handled.
//
// Mode is one of:
//   - "tofu" (default): pin on first use, reject changed certificates
//     unless the pinned one has expired.
//   - "accept": accept every certificate without pinning.
//   - "reject": accept pinned hosts only.
type TrustConfig struct {
	Mode string `yaml:"mode"`
}

// Validate validates the trust configuration.
func (c *TrustConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = string(trust.ModeTOFU)
	}
	_, err := trust.ParseMode(c.Mode)
	return err
}

// DataConfig holds the path to the data directory (bookmarks, downloads).
type DataConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the data configuration.
func (c *DataConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local use.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 1966,
			},
		},
		Gemini: GeminiConfig{
			Home:            "gemini://geminiprotocol.net/",
			Timeout:         30 * time.Second,
			MaxRedirects:    5,
			MaxResponseSize: 16 << 20,
		},
		Trust: TrustConfig{
			Mode: string(trust.ModeTOFU),
		},
		Data: DataConfig{
			Path: "./data",
		},
		SQLite: SQLiteConfig{
			Path: "./remi.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
