package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/wachiwi/suno-sounds/pkg/suno"
)

// DefaultPath is read when present and no -config flag is given.
const DefaultPath = "sunogen.toml"

// Config holds every tunable of the tool. Flags override file values.
type Config struct {
	APIBase     string `toml:"api_base"`
	UserAgent   string `toml:"user_agent"`
	CallbackURL string `toml:"callback_url"`
	Model       string `toml:"model"`

	OutputDir  string `toml:"output_dir"`
	StatusFile string `toml:"status_file"`

	SubmitDelay     time.Duration `toml:"submit_delay"`
	PollDelay       time.Duration `toml:"poll_delay"`
	RequestTimeout  time.Duration `toml:"request_timeout"`
	DownloadTimeout time.Duration `toml:"download_timeout"`

	LogLevel     string `toml:"log_level"`
	OTelEndpoint string `toml:"otel_endpoint"`

	DashboardUser     string `toml:"dashboard_user"`
	DashboardPassword string `toml:"dashboard_password"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBase:         suno.DefaultBaseURL,
		UserAgent:       suno.DefaultUserAgent,
		CallbackURL:     suno.DefaultCallbackURL,
		Model:           suno.DefaultModel,
		OutputDir:       "generated",
		StatusFile:      "generation_status.json",
		SubmitDelay:     5 * time.Second,
		PollDelay:       1 * time.Second,
		RequestTimeout:  30 * time.Second,
		DownloadTimeout: 60 * time.Second,
		LogLevel:        "info",
	}
}

// Load decodes path over the defaults. When optional is set a missing file
// is not an error.
func Load(path string, optional bool) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return cfg, fmt.Errorf("load config %s: unknown keys %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.APIBase == "" {
		return errors.New("api_base must not be empty")
	}
	if c.StatusFile == "" {
		return errors.New("status_file must not be empty")
	}
	if c.OutputDir == "" {
		return errors.New("output_dir must not be empty")
	}
	if c.SubmitDelay < 0 || c.PollDelay < 0 {
		return errors.New("delays must not be negative")
	}
	if c.RequestTimeout <= 0 || c.DownloadTimeout <= 0 {
		return errors.New("timeouts must be positive")
	}
	return nil
}

// NewClient builds an API client from the configuration.
func (c Config) NewClient(apiKey string) *suno.Client {
	client := suno.NewClient(apiKey)
	client.BaseURL = c.APIBase
	client.UserAgent = c.UserAgent
	client.CallbackURL = c.CallbackURL
	client.Model = c.Model
	client.HTTPClient.Timeout = c.RequestTimeout
	client.DownloadClient.Timeout = c.DownloadTimeout
	return client
}
