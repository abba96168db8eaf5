package chorus

import (
	"fmt"
	"time"
)

// Providers understood by BackendConfig.Provider.
const (
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
)

// Config is the complete chorus configuration. It carries no encoding tags;
// loaders map their own representation onto it.
type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	Logging  LoggingConfig
	Backends []BackendConfig
}

// ServerConfig configures the fan-out server. MaxDuration bounds one fan-out
// request; a request that outlives it ends with a session error frame.
type ServerConfig struct {
	Addr        string
	Keepalive   time.Duration
	MaxDuration time.Duration
}

// ClientConfig configures sessions run by the CLI.
type ClientConfig struct {
	URL            string
	Window         time.Duration
	FlushInterval  time.Duration
	EmptyAsFailure bool
	MaxBufferBytes int
}

// LoggingConfig selects the logger. Format is "production" (JSON) or
// "development" (console). An empty File means stderr.
type LoggingConfig struct {
	Level  string
	Format string
	File   string
}

// BackendConfig registers one named backend with the server.
type BackendConfig struct {
	Name      string
	Provider  string
	Model     string
	APIKey    string
	BaseURL   string
	MaxTokens int
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8088",
			Keepalive:   15 * time.Second,
			MaxDuration: 10 * time.Minute,
		},
		Client: ClientConfig{
			URL:            "http://localhost:8088",
			Window:         DefaultWindow,
			FlushInterval:  DefaultFlushInterval,
			EmptyAsFailure: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "production",
		},
		Backends: []BackendConfig{
			{Name: "claude-sonnet", Provider: ProviderAnthropic, Model: "claude-sonnet-4-20250514"},
			{Name: "gemini-pro", Provider: ProviderGemini, Model: "gemini-2.5-pro"},
		},
	}
}

// Validate checks the configuration for values that would fail at runtime.
func (c Config) Validate() error {
	if c.Server.Keepalive <= 0 {
		return fmt.Errorf("server keepalive must be positive: %w", ErrValidation)
	}
	if c.Server.MaxDuration <= 0 {
		return fmt.Errorf("server max duration must be positive: %w", ErrValidation)
	}
	if c.Client.Window <= 0 {
		return fmt.Errorf("client window must be positive: %w", ErrValidation)
	}
	if c.Client.FlushInterval <= 0 {
		return fmt.Errorf("client flush interval must be positive: %w", ErrValidation)
	}
	if c.Client.MaxBufferBytes < 0 {
		return fmt.Errorf("client max buffer bytes must be non-negative: %w", ErrValidation)
	}
	switch c.Logging.Format {
	case "production", "development":
	default:
		return fmt.Errorf("unknown logging format %q: %w", c.Logging.Format, ErrValidation)
	}
	seen := make(map[string]bool, len(c.Backends))
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backend %d has no name: %w", i, ErrValidation)
		}
		if seen[b.Name] {
			return fmt.Errorf("duplicate backend %q: %w", b.Name, ErrValidation)
		}
		seen[b.Name] = true
		switch b.Provider {
		case ProviderAnthropic, ProviderGemini:
		default:
			return fmt.Errorf("backend %q: unknown provider %q: %w", b.Name, b.Provider, ErrValidation)
		}
		if b.MaxTokens < 0 {
			return fmt.Errorf("backend %q: max tokens must be non-negative: %w", b.Name, ErrValidation)
		}
	}
	return nil
}

// BackendNames returns the configured backend names in declaration order.
func (c Config) BackendNames() []string {
	names := make([]string, len(c.Backends))
	for i, b := range c.Backends {
		names[i] = b.Name
	}
	return names
}
