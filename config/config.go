package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so TOML fields accept values like "30s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler for TOML encoding.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// EvaluationConfig tunes the fetch and judgment collaborators.
type EvaluationConfig struct {
	Model         string   `toml:"Model"`
	JudgeTimeout  Duration `toml:"JudgeTimeout"`
	MaxTokens     int64    `toml:"MaxTokens"`
	FetchTimeout  Duration `toml:"FetchTimeout"`
	FetchMaxBytes int64    `toml:"FetchMaxBytes"`
	ContentLimit  int      `toml:"ContentLimit"`
}

// RateLimitConfig tunes per-client HTTP throttling.
type RateLimitConfig struct {
	RequestsPerMinute float64 `toml:"RequestsPerMinute"`
	Burst             int     `toml:"Burst"`
}

// Config captures runtime configuration for the escrow service.
type Config struct {
	ListenAddress string           `toml:"ListenAddress"`
	DataDir       string           `toml:"DataDir"`
	Environment   string           `toml:"Environment"`
	LogFile       string           `toml:"LogFile"`
	EventHistory  int              `toml:"EventHistory"`
	Evaluation    EvaluationConfig `toml:"Evaluation"`
	RateLimit     RateLimitConfig  `toml:"RateLimit"`
}

func defaultConfig() *Config {
	return &Config{
		ListenAddress: ":8080",
		DataDir:       "./escrow-data",
		Environment:   "dev",
		EventHistory:  1024,
		Evaluation: EvaluationConfig{
			Model:         "gpt-4o-mini",
			JudgeTimeout:  Duration{60 * time.Second},
			MaxTokens:     1024,
			FetchTimeout:  Duration{30 * time.Second},
			FetchMaxBytes: 1 << 20,
			ContentLimit:  4000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Burst:             30,
		},
	}
}

// Load reads the configuration at path, creating a default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := defaultConfig()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.ListenAddress == "" {
		return fmt.Errorf("config: ListenAddress required")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: DataDir required")
	}
	if c.Evaluation.JudgeTimeout.Duration <= 0 {
		return fmt.Errorf("config: Evaluation.JudgeTimeout must be positive")
	}
	if c.Evaluation.FetchTimeout.Duration <= 0 {
		return fmt.Errorf("config: Evaluation.FetchTimeout must be positive")
	}
	if c.Evaluation.ContentLimit <= 0 {
		return fmt.Errorf("config: Evaluation.ContentLimit must be positive")
	}
	if c.RateLimit.RequestsPerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("config: RateLimit values must not be negative")
	}
	return nil
}
