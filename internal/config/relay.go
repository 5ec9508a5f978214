package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultGenerateTimeout bounds a whole generation relay.
	DefaultGenerateTimeout = 300 * time.Second
	// DefaultModelsTimeout bounds the model listing passthrough.
	DefaultModelsTimeout = 30 * time.Second
	// DefaultDrainTimeout bounds how long shutdown waits for running relays.
	DefaultDrainTimeout = time.Minute
)

// TTSConfig selects and tunes the speech synthesis engine.
type TTSConfig struct {
	Engine            string        `yaml:"engine"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	// Voice and Proxy apply to the edge engine only.
	Voice string `yaml:"voice"`
	Proxy string `yaml:"proxy"`
}

// RelayConfig holds configuration for the voicerelay server.
type RelayConfig struct {
	ConfigFile      string        `yaml:"-"`
	LogLevel        string        `yaml:"log_level"`
	Port            int           `yaml:"port"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	OllamaBaseURL   string        `yaml:"ollama_base_url"`
	GenerateTimeout time.Duration `yaml:"generate_timeout"`
	ModelsTimeout   time.Duration `yaml:"models_timeout"`
	DrainTimeout    time.Duration `yaml:"drain_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	TTS             TTSConfig     `yaml:"tts"`
}

// SetDefaults initializes c with built-in defaults. The Ollama base URL has no
// default and must be supplied.
func (c *RelayConfig) SetDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Port == 0 {
		c.Port = 8000
	}
	if c.GenerateTimeout == 0 {
		c.GenerateTimeout = DefaultGenerateTimeout
	}
	if c.ModelsTimeout == 0 {
		c.ModelsTimeout = DefaultModelsTimeout
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = []string{"*"}
	}
	if c.TTS.Engine == "" {
		c.TTS.Engine = "gtts"
	}
	if c.ConfigFile == "" {
		c.ConfigFile = DefaultConfigPath("relay.yaml")
	}
}

// ApplyEnv overlays environment variables onto the current config values.
func (c *RelayConfig) ApplyEnv() {
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if v := GetEnv("LOG_LEVEL", ""); v != "" {
		c.LogLevel = v
	}
	if v := GetEnv("PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Port = n
		}
	}
	if v := GetEnv("METRICS_PORT", ""); v != "" {
		if strings.Contains(v, ":") {
			c.MetricsAddr = v
		} else {
			c.MetricsAddr = ":" + v
		}
	}
	if v := GetEnv("OLLAMA_BASE_URL", ""); v != "" {
		c.OllamaBaseURL = v
	}
	if v := GetEnv("GENERATE_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.GenerateTimeout = d
		}
	}
	if v := GetEnv("MODELS_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ModelsTimeout = d
		}
	}
	if v := GetEnv("DRAIN_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.DrainTimeout = d
		}
	}
	if v := GetEnv("ALLOWED_ORIGINS", ""); v != "" {
		c.AllowedOrigins = splitComma(v)
	}
	if v := GetEnv("TTS_ENGINE", ""); v != "" {
		c.TTS.Engine = v
	}
	if v := GetEnv("TTS_RPS", ""); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.TTS.RequestsPerSecond = f
		}
	}
	if v := GetEnv("TTS_TIMEOUT", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.TTS.Timeout = d
		}
	}
	if v := GetEnv("TTS_VOICE", ""); v != "" {
		c.TTS.Voice = v
	}
	if v := GetEnv("TTS_PROXY", ""); v != "" {
		c.TTS.Proxy = v
	}
}

// BindFlags binds command line flags using the current config values as defaults.
func (c *RelayConfig) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", c.ConfigFile, "relay config file path")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log verbosity (all, debug, info, warn, error, fatal, none)")
	fs.IntVar(&c.Port, "port", c.Port, "HTTP listen port for the public API")
	fs.StringVar(&c.MetricsAddr, "metrics-port", c.MetricsAddr, "Prometheus metrics listen address or port; defaults to the public API port")
	fs.StringVar(&c.OllamaBaseURL, "ollama-url", c.OllamaBaseURL, "base URL of the Ollama inference service")
	fs.DurationVar(&c.GenerateTimeout, "generate-timeout", c.GenerateTimeout, "deadline for a generation relay")
	fs.DurationVar(&c.ModelsTimeout, "models-timeout", c.ModelsTimeout, "deadline for the model listing call")
	fs.DurationVar(&c.DrainTimeout, "drain-timeout", c.DrainTimeout, "time to let running relays finish on shutdown; negative to skip draining")
	fs.StringSliceVar(&c.AllowedOrigins, "allowed-origins", c.AllowedOrigins, "comma separated list of allowed CORS origins")
	fs.StringVar(&c.TTS.Engine, "tts-engine", c.TTS.Engine, "speech synthesis engine (gtts, edge, none)")
	fs.Float64Var(&c.TTS.RequestsPerSecond, "tts-rps", c.TTS.RequestsPerSecond, "maximum synthesis engine requests per second; 0 for unlimited")
	fs.DurationVar(&c.TTS.Timeout, "tts-timeout", c.TTS.Timeout, "deadline for one synthesis call; 0 for none")
	fs.StringVar(&c.TTS.Voice, "tts-voice", c.TTS.Voice, "edge engine voice overriding the per-language default")
	fs.StringVar(&c.TTS.Proxy, "tts-proxy", c.TTS.Proxy, "proxy URL for the edge engine")
}

// LoadFile populates the config from a YAML file.
func (c *RelayConfig) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(b, c)
}

// Load builds a config from defaults, the YAML file, the environment and the
// flags explicitly set in fs, each layer overriding the previous one. fs must
// contain the flags registered by BindFlags and already be parsed. A missing
// config file is not an error.
func Load(fs *pflag.FlagSet) (RelayConfig, error) {
	var c RelayConfig
	c.SetDefaults()
	if v := GetEnv("CONFIG_FILE", ""); v != "" {
		c.ConfigFile = v
	}
	if f := fs.Lookup("config"); f != nil && f.Changed {
		c.ConfigFile = f.Value.String()
	}
	path := c.ConfigFile
	if err := c.LoadFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return c, fmt.Errorf("load config %s: %w", path, err)
	}
	c.ApplyEnv()
	c.ConfigFile = path

	overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
	c.BindFlags(overlay)
	var err error
	fs.Visit(func(f *pflag.Flag) {
		dst := overlay.Lookup(f.Name)
		if dst == nil || err != nil {
			return
		}
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			if dv, ok := dst.Value.(pflag.SliceValue); ok {
				err = dv.Replace(sv.GetSlice())
				return
			}
		}
		err = overlay.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return c, fmt.Errorf("apply flags: %w", err)
	}
	return c, nil
}

// ResolvedMetricsAddr returns the metrics listen address, falling back to the API port.
func (c *RelayConfig) ResolvedMetricsAddr() string {
	if c.MetricsAddr == "" {
		return fmt.Sprintf(":%d", c.Port)
	}
	return c.MetricsAddr
}

// MetricsOnAPIPort reports whether /metrics is served by the public listener.
func (c *RelayConfig) MetricsOnAPIPort() bool {
	return c.ResolvedMetricsAddr() == fmt.Sprintf(":%d", c.Port)
}

// Validate reports configuration that cannot serve requests.
func (c *RelayConfig) Validate() error {
	if c.OllamaBaseURL == "" {
		return errors.New("ollama base URL is required (--ollama-url or OLLAMA_BASE_URL)")
	}
	u, err := url.Parse(c.OllamaBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid ollama base URL %q", c.OllamaBaseURL)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.TTS.RequestsPerSecond < 0 {
		return fmt.Errorf("invalid tts requests per second %v", c.TTS.RequestsPerSecond)
	}
	return nil
}

func splitComma(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
