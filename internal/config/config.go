package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.leadchat/config.toml.
type Config struct {
	DefaultProfile string `toml:"default_profile"`
}

// Load reads config from the given path. Returns zero config and error if file missing.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Profile is the per-profile leadchat.toml.
type Profile struct {
	Provider ProviderConfig `toml:"provider"`
	Sync     SyncConfig     `toml:"sync"`
	Media    MediaConfig    `toml:"media"`
	Unread   UnreadConfig   `toml:"unread"`
	Metrics  MetricsConfig  `toml:"metrics"`
	Log      LogConfig      `toml:"log"`
}

type ProviderConfig struct {
	URL     string   `toml:"url"`
	Token   string   `toml:"token"`
	Timeout Duration `toml:"timeout"`
}

type SyncConfig struct {
	PageSize      int      `toml:"page_size"`
	PollInterval  Duration `toml:"poll_interval"`
	SessionWindow Duration `toml:"session_window"`
}

type MediaConfig struct {
	MinCaptureBytes    int      `toml:"min_capture_bytes"`
	MinCaptureDuration Duration `toml:"min_capture_duration"`
}

type UnreadConfig struct {
	PollInterval Duration `toml:"poll_interval"`
	NATSURL      string   `toml:"nats_url"`
	NATSToken    string   `toml:"nats_token"`
	Subject      string   `toml:"subject"`
}

type MetricsConfig struct {
	// Addr is the listen address of the /metrics endpoint. Empty disables it.
	Addr string `toml:"addr"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Defaults returns the profile configuration used when leadchat.toml is
// missing or leaves a field unset.
func Defaults() Profile {
	return Profile{
		Provider: ProviderConfig{Timeout: Duration{15 * time.Second}},
		Sync: SyncConfig{
			PageSize:      50,
			PollInterval:  Duration{5 * time.Second},
			SessionWindow: Duration{24 * time.Hour},
		},
		Media: MediaConfig{
			MinCaptureBytes:    1000,
			MinCaptureDuration: Duration{1500 * time.Millisecond},
		},
		Unread: UnreadConfig{
			PollInterval: Duration{30 * time.Second},
			Subject:      "leadchat.unread.>",
		},
		Log: LogConfig{Level: "info"},
	}
}

// LoadProfile reads a profile config over the defaults. A missing file is
// not an error. LEADCHAT_PROVIDER_URL and LEADCHAT_PROVIDER_TOKEN override
// the file.
func LoadProfile(path string) (*Profile, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if v := os.Getenv("LEADCHAT_PROVIDER_URL"); v != "" {
		cfg.Provider.URL = v
	}
	if v := os.Getenv("LEADCHAT_PROVIDER_TOKEN"); v != "" {
		cfg.Provider.Token = v
	}
	cfg.fill()
	return &cfg, nil
}

// fill restores defaults for zero values an explicit file may have written.
func (p *Profile) fill() {
	def := Defaults()
	if p.Provider.Timeout.Duration <= 0 {
		p.Provider.Timeout = def.Provider.Timeout
	}
	if p.Sync.PageSize <= 0 {
		p.Sync.PageSize = def.Sync.PageSize
	}
	if p.Sync.PollInterval.Duration <= 0 {
		p.Sync.PollInterval = def.Sync.PollInterval
	}
	if p.Sync.SessionWindow.Duration <= 0 {
		p.Sync.SessionWindow = def.Sync.SessionWindow
	}
	if p.Media.MinCaptureBytes <= 0 {
		p.Media.MinCaptureBytes = def.Media.MinCaptureBytes
	}
	if p.Media.MinCaptureDuration.Duration <= 0 {
		p.Media.MinCaptureDuration = def.Media.MinCaptureDuration
	}
	if p.Unread.PollInterval.Duration <= 0 {
		p.Unread.PollInterval = def.Unread.PollInterval
	}
	if p.Unread.Subject == "" {
		p.Unread.Subject = def.Unread.Subject
	}
}

// Validate reports settings the daemon cannot start without.
func (p *Profile) Validate() error {
	if p.Provider.URL == "" {
		return errors.New("provider.url is required")
	}
	return nil
}
