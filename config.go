package embedcodec

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/flyxtv/embedcodec/oracle"
)

// OracleConfig describes where and how to reach a provider's oracle. When
// Script is set the oracle runs locally on a JS engine instead of over HTTP.
type OracleConfig struct {
	EncodeURL     string `yaml:"encode_url,omitempty"`
	DecodeURL     string `yaml:"decode_url,omitempty"`
	Method        string `yaml:"method,omitempty"`
	ParamName     string `yaml:"param_name,omitempty"`
	ResponseField string `yaml:"response_field,omitempty"`
	Referer       string `yaml:"referer,omitempty"`
	UserAgent     string `yaml:"user_agent,omitempty"`
	TimeoutSec    int    `yaml:"timeout_sec,omitempty"`
	Retries       int    `yaml:"retries,omitempty"`

	// Script is a path to an extracted decoder script; Engine selects the
	// JS engine ("otto" or "goja").
	Script string `yaml:"script,omitempty"`
	Engine string `yaml:"engine,omitempty"`
}

// RecoveryConfig holds the probing knobs for a recovery run.
type RecoveryConfig struct {
	Alphabet          string `yaml:"alphabet,omitempty"`
	Filler            string `yaml:"filler,omitempty"`
	AltFiller         string `yaml:"alt_filler,omitempty"`
	MaxPosition       int    `yaml:"max_position,omitempty"`
	Concurrency       int    `yaml:"concurrency,omitempty"`
	ProbeDelayMS      int    `yaml:"probe_delay_ms,omitempty"`
	Retries           int    `yaml:"retries,omitempty"`
	ValidationFetches int    `yaml:"validation_fetches,omitempty"`
}

// Config is the YAML recovery configuration consumed by the CLI.
type Config struct {
	Provider string         `yaml:"provider"`
	Oracle   OracleConfig   `yaml:"oracle"`
	Recovery RecoveryConfig `yaml:"recovery,omitempty"`
	Output   string         `yaml:"output,omitempty"`
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the config describes a reachable oracle.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("config: provider is required")
	}
	if c.Oracle.Script == "" && c.Oracle.EncodeURL == "" {
		return errors.New("config: oracle needs either encode_url or script")
	}
	switch c.Oracle.Engine {
	case "", "otto", "goja":
	default:
		return errors.Errorf("config: unknown engine %q", c.Oracle.Engine)
	}
	return nil
}

// NewOracle builds the configured oracle.
func (c *Config) NewOracle() (oracle.Oracle, error) {
	if c.Oracle.Script != "" {
		script, err := os.ReadFile(c.Oracle.Script)
		if err != nil {
			return nil, errors.Wrap(err, "read decoder script")
		}
		engine := oracle.EngineOtto
		if c.Oracle.Engine == "goja" {
			engine = oracle.EngineGoja
		}
		return oracle.NewScripted(oracle.ScriptConfig{
			Provider: c.Provider,
			Script:   string(script),
			Engine:   engine,
		}), nil
	}

	return oracle.NewHTTP(oracle.HTTPConfig{
		Provider:      c.Provider,
		EncodeURL:     c.Oracle.EncodeURL,
		DecodeURL:     c.Oracle.DecodeURL,
		Method:        c.Oracle.Method,
		ParamName:     c.Oracle.ParamName,
		ResponseField: c.Oracle.ResponseField,
		Referer:       c.Oracle.Referer,
		UserAgent:     c.Oracle.UserAgent,
		Timeout:       time.Duration(c.Oracle.TimeoutSec) * time.Second,
		Retries:       c.Oracle.Retries,
	}), nil
}

// NewRecoverer builds a Recoverer wired per the config.
func (c *Config) NewRecoverer() (*Recoverer, error) {
	orc, err := c.NewOracle()
	if err != nil {
		return nil, err
	}
	r := New(orc).WithProvider(c.Provider)
	if c.Recovery.Alphabet != "" {
		r.WithAlphabet(c.Recovery.Alphabet)
	}
	if c.Recovery.Filler != "" && c.Recovery.AltFiller != "" {
		r.WithFillers(c.Recovery.Filler, c.Recovery.AltFiller)
	}
	if c.Recovery.MaxPosition > 0 {
		r.WithMaxPosition(c.Recovery.MaxPosition)
	}
	if c.Recovery.Concurrency > 0 {
		r.WithConcurrency(c.Recovery.Concurrency)
	}
	if c.Recovery.ProbeDelayMS > 0 {
		r.WithProbeDelay(time.Duration(c.Recovery.ProbeDelayMS) * time.Millisecond)
	}
	if c.Recovery.Retries > 0 {
		r.WithRetries(c.Recovery.Retries)
	}
	if c.Recovery.ValidationFetches > 0 {
		r.WithValidationFetches(c.Recovery.ValidationFetches)
	}
	return r, nil
}
