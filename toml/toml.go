// Package toml loads chorus configuration from TOML files.
package toml

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fwojciec/chorus"
)

// Environment variables that override file values.
const (
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGeminiAPIKey    = "GEMINI_API_KEY"
	EnvServer          = "CHORUS_SERVER"
)

type fileDTO struct {
	Server   serverDTO    `toml:"server"`
	Client   clientDTO    `toml:"client"`
	Logging  loggingDTO   `toml:"logging"`
	Backends []backendDTO `toml:"backend"`
}

type serverDTO struct {
	Addr        string   `toml:"addr"`
	Keepalive   duration `toml:"keepalive"`
	MaxDuration duration `toml:"max_duration"`
}

type clientDTO struct {
	URL            string   `toml:"url"`
	Window         duration `toml:"window"`
	FlushInterval  duration `toml:"flush_interval"`
	EmptyAsFailure bool     `toml:"empty_as_failure"`
	MaxBufferBytes int      `toml:"max_buffer_bytes"`
}

type loggingDTO struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	File   string `toml:"file"`
}

type backendDTO struct {
	Name      string `toml:"name"`
	Provider  string `toml:"provider"`
	Model     string `toml:"model"`
	APIKey    string `toml:"api_key,omitempty"`
	BaseURL   string `toml:"base_url,omitempty"`
	MaxTokens int    `toml:"max_tokens,omitempty"`
}

// duration reads Go duration strings such as "15s" or "1m30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// DefaultPath returns $XDG_CONFIG_HOME/chorus/config.toml, falling back to
// ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "chorus", "config.toml")
}

// Load builds the effective configuration: defaults, then the file at path,
// then environment overrides. An empty path means DefaultPath, which may be
// absent; an explicit path must exist.
func Load(path string) (chorus.Config, error) {
	cfg := chorus.DefaultConfig()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if cfg, err = Decode(f, cfg); err != nil {
			return chorus.Config{}, fmt.Errorf("%s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return chorus.Config{}, fmt.Errorf("open config: %w", err)
	}

	ApplyEnv(&cfg, os.Getenv)
	if err := cfg.Validate(); err != nil {
		return chorus.Config{}, err
	}
	return cfg, nil
}

// Decode overlays the TOML document in r onto base. Keys absent from the
// document keep their base values. A document that declares any [[backend]]
// replaces the base backend list. Unknown keys are an error.
func Decode(r io.Reader, base chorus.Config) (chorus.Config, error) {
	dto := toDTO(base)
	dto.Backends = nil
	md, err := toml.NewDecoder(r).Decode(&dto)
	if err != nil {
		return chorus.Config{}, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return chorus.Config{}, fmt.Errorf("unknown config keys %s: %w", strings.Join(keys, ", "), chorus.ErrValidation)
	}
	cfg := fromDTO(dto)
	if !md.IsDefined("backend") {
		cfg.Backends = base.Backends
	}
	return cfg, nil
}

// ApplyEnv applies environment overrides using getenv. Provider API keys fill
// every backend of that provider that has no key of its own.
func ApplyEnv(cfg *chorus.Config, getenv func(string) string) {
	if url := getenv(EnvServer); url != "" {
		cfg.Client.URL = url
	}
	keys := map[string]string{
		chorus.ProviderAnthropic: getenv(EnvAnthropicAPIKey),
		chorus.ProviderGemini:    getenv(EnvGeminiAPIKey),
	}
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.APIKey == "" {
			b.APIKey = keys[b.Provider]
		}
	}
}

// Encode writes cfg as TOML. API keys are never written.
func Encode(w io.Writer, cfg chorus.Config) error {
	dto := toDTO(cfg)
	for i := range dto.Backends {
		dto.Backends[i].APIKey = ""
	}
	if err := toml.NewEncoder(w).Encode(dto); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

func toDTO(c chorus.Config) fileDTO {
	dto := fileDTO{
		Server: serverDTO{
			Addr:        c.Server.Addr,
			Keepalive:   duration{c.Server.Keepalive},
			MaxDuration: duration{c.Server.MaxDuration},
		},
		Client: clientDTO{
			URL:            c.Client.URL,
			Window:         duration{c.Client.Window},
			FlushInterval:  duration{c.Client.FlushInterval},
			EmptyAsFailure: c.Client.EmptyAsFailure,
			MaxBufferBytes: c.Client.MaxBufferBytes,
		},
		Logging: loggingDTO{
			Level:  c.Logging.Level,
			Format: c.Logging.Format,
			File:   c.Logging.File,
		},
		Backends: make([]backendDTO, len(c.Backends)),
	}
	for i, b := range c.Backends {
		dto.Backends[i] = backendDTO{
			Name:      b.Name,
			Provider:  b.Provider,
			Model:     b.Model,
			APIKey:    b.APIKey,
			BaseURL:   b.BaseURL,
			MaxTokens: b.MaxTokens,
		}
	}
	return dto
}

func fromDTO(dto fileDTO) chorus.Config {
	c := chorus.Config{
		Server: chorus.ServerConfig{
			Addr:        dto.Server.Addr,
			Keepalive:   dto.Server.Keepalive.Duration,
			MaxDuration: dto.Server.MaxDuration.Duration,
		},
		Client: chorus.ClientConfig{
			URL:            dto.Client.URL,
			Window:         dto.Client.Window.Duration,
			FlushInterval:  dto.Client.FlushInterval.Duration,
			EmptyAsFailure: dto.Client.EmptyAsFailure,
			MaxBufferBytes: dto.Client.MaxBufferBytes,
		},
		Logging: chorus.LoggingConfig{
			Level:  dto.Logging.Level,
			Format: dto.Logging.Format,
			File:   expandHome(dto.Logging.File),
		},
		Backends: make([]chorus.BackendConfig, len(dto.Backends)),
	}
	for i, b := range dto.Backends {
		c.Backends[i] = chorus.BackendConfig{
			Name:      b.Name,
			Provider:  b.Provider,
			Model:     b.Model,
			APIKey:    b.APIKey,
			BaseURL:   b.BaseURL,
			MaxTokens: b.MaxTokens,
		}
	}
	return c
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}
