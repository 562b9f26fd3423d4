// Package config loads ShodoBot settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/0xcro3dile/shodobot-go/internal/domain/usecases"
)

// Config holds all ShodoBot configuration.
type Config struct {
	// Env is one of production, development, test.
	Env string `yaml:"env"`

	Server     ServerConfig     `yaml:"server"`
	LLM        LLMConfig        `yaml:"llm"`
	Agent      AgentConfig      `yaml:"agent"`
	Notion     NotionConfig     `yaml:"notion"`
	Leann      LeannConfig      `yaml:"leann"`
	HTTPClient HTTPClientConfig `yaml:"http_client"`
	Router     RouterConfig     `yaml:"router"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	FrontendURL        string `yaml:"frontend_url"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	MaxMessageLength   int    `yaml:"max_message_length"`
}

// LLMConfig configures the completion provider.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // groq, openai, ollama
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Timeout     string  `yaml:"timeout"`
}

// AgentConfig configures the conversation pipeline.
type AgentConfig struct {
	MaxHistorySize int    `yaml:"max_history_size"`
	Persona        string `yaml:"persona"`
	// OnFailure is the history policy for failed turns: rollback, keep, placeholder.
	OnFailure string `yaml:"on_failure"`
	// WorkspaceErrors is absorb or fail.
	WorkspaceErrors string `yaml:"workspace_errors"`
	WorkspaceLimit  int    `yaml:"workspace_limit"`
	DocumentLimit   int    `yaml:"document_limit"`
}

// NotionConfig configures the workspace search adapter.
type NotionConfig struct {
	Enabled bool   `yaml:"enabled"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Version string `yaml:"version"`
	Timeout string `yaml:"timeout"`
}

// LeannConfig configures the document retrieval adapter.
type LeannConfig struct {
	Enabled      bool    `yaml:"enabled"`
	APIURL       string  `yaml:"api_url"`
	Timeout      string  `yaml:"timeout"`
	AskTimeout   string  `yaml:"ask_timeout"`
	ProbeTimeout string  `yaml:"probe_timeout"`
	Threshold    float64 `yaml:"threshold"`
	ContextLimit int     `yaml:"context_limit"`
}

// HTTPClientConfig tunes the shared outbound HTTP client.
type HTTPClientConfig struct {
	Retry                  int    `yaml:"retry"`
	BackoffMin             string `yaml:"backoff_min"`
	BackoffMax             string `yaml:"backoff_max"`
	MaxConsecutiveFailures int    `yaml:"max_consecutive_failures"`
	CircuitOpen            string `yaml:"circuit_open"`
}

// RouterConfig points at the versioned keyword file.
type RouterConfig struct {
	KeywordsFile string `yaml:"keywords_file"`
	Watch        bool   `yaml:"watch"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Env: "development",
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               3001,
			FrontendURL:        "http://localhost:5173",
			RateLimitPerMinute: 100,
			MaxMessageLength:   10000,
		},
		LLM: LLMConfig{
			Provider:    "groq",
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.1-8b-instant",
			Temperature: 0.7,
			MaxTokens:   1000,
			Timeout:     "60s",
		},
		Agent: AgentConfig{
			MaxHistorySize:  10,
			OnFailure:       usecases.FailureRollback,
			WorkspaceErrors: usecases.WorkspaceAbsorb,
			WorkspaceLimit:  5,
			DocumentLimit:   5,
		},
		Notion: NotionConfig{
			BaseURL: "https://api.notion.com",
			Version: "2022-06-28",
			Timeout: "10s",
		},
		Leann: LeannConfig{
			APIURL:       "http://localhost:8000",
			Timeout:      "10s",
			AskTimeout:   "15s",
			ProbeTimeout: "5s",
			Threshold:    0.7,
			ContextLimit: 5,
		},
		HTTPClient: HTTPClientConfig{
			Retry:                  1,
			BackoffMin:             "100ms",
			BackoffMax:             "800ms",
			MaxConsecutiveFailures: 5,
			CircuitOpen:            "5s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path (if non-empty and present), then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides. Malformed
// numeric values are collected and reported together.
func (c *Config) applyEnvOverrides() error {
	var result *multierror.Error

	if v := os.Getenv("APP_ENV"); v != "" {
		c.Env = v
	} else if v := os.Getenv("NODE_ENV"); v != "" {
		c.Env = v
	}

	if v := os.Getenv("HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			result = multierror.Append(result, fmt.Errorf("PORT: %w", err))
		} else {
			c.Server.Port = n
		}
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		c.Server.FrontendURL = v
	}

	if key := os.Getenv("GROQ_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "groq"
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("AGENT_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err != nil {
			result = multierror.Append(result, fmt.Errorf("AGENT_TEMPERATURE: %w", err))
		} else {
			c.LLM.Temperature = f
		}
	}
	if v := os.Getenv("AGENT_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			result = multierror.Append(result, fmt.Errorf("AGENT_MAX_TOKENS: %w", err))
		} else {
			c.LLM.MaxTokens = n
		}
	}
	if v := os.Getenv("AGENT_MAX_HISTORY_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err != nil {
			result = multierror.Append(result, fmt.Errorf("AGENT_MAX_HISTORY_SIZE: %w", err))
		} else {
			c.Agent.MaxHistorySize = n
		}
	}

	if v := os.Getenv("NOTION_ENABLED"); v != "" {
		c.Notion.Enabled = parseBool(v)
	}
	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		c.Notion.APIKey = v
	}

	if v := os.Getenv("LEANN_ENABLED"); v != "" {
		c.Leann.Enabled = parseBool(v)
	}
	if v := os.Getenv("LEANN_API_URL"); v != "" {
		c.Leann.APIURL = v
	}
	if v := os.Getenv("LEANN_TIMEOUT"); v != "" {
		// Plain integers are milliseconds.
		if n, err := strconv.Atoi(v); err == nil {
			c.Leann.Timeout = (time.Duration(n) * time.Millisecond).String()
		} else if _, err := time.ParseDuration(v); err == nil {
			c.Leann.Timeout = v
		} else {
			result = multierror.Append(result, fmt.Errorf("LEANN_TIMEOUT: invalid duration %q", v))
		}
	}

	if v := os.Getenv("ROUTER_KEYWORDS_FILE"); v != "" {
		c.Router.KeywordsFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	return result.ErrorOrNil()
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// IsTest reports whether the config runs in the test environment.
func (c *Config) IsTest() bool {
	return c.Env == "test"
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetLLMTimeout returns the completion timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// GetNotionTimeout returns the workspace search timeout.
func (c *Config) GetNotionTimeout() time.Duration {
	return parseDuration(c.Notion.Timeout, 10*time.Second)
}

// GetLeannTimeout returns the document search timeout.
func (c *Config) GetLeannTimeout() time.Duration {
	return parseDuration(c.Leann.Timeout, 10*time.Second)
}

// GetLeannAskTimeout returns the document question timeout.
func (c *Config) GetLeannAskTimeout() time.Duration {
	return parseDuration(c.Leann.AskTimeout, 15*time.Second)
}

// GetLeannProbeTimeout returns the connectivity probe timeout.
func (c *Config) GetLeannProbeTimeout() time.Duration {
	return parseDuration(c.Leann.ProbeTimeout, 5*time.Second)
}

// GetBackoff returns the retry backoff bounds.
func (c *Config) GetBackoff() (min, max time.Duration) {
	return parseDuration(c.HTTPClient.BackoffMin, 100*time.Millisecond),
		parseDuration(c.HTTPClient.BackoffMax, 800*time.Millisecond)
}

// GetCircuitOpen returns how long the circuit stays open.
func (c *Config) GetCircuitOpen() time.Duration {
	return parseDuration(c.HTTPClient.CircuitOpen, 5*time.Second)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// ValidProviders lists the supported completion providers.
var ValidProviders = []string{"groq", "openai", "ollama"}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Env {
	case "production", "development", "test":
	default:
		result = multierror.Append(result, fmt.Errorf("invalid env %q (valid: production, development, test)", c.Env))
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid port %d", c.Server.Port))
	}
	if c.Server.MaxMessageLength <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_message_length must be positive"))
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		result = multierror.Append(result, fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders))
	}
	if c.LLM.Provider != "ollama" && !c.IsTest() && c.LLM.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("GROQ_API_KEY is required"))
	}
	if c.LLM.Model == "" {
		result = multierror.Append(result, fmt.Errorf("LLM model not configured"))
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		result = multierror.Append(result, fmt.Errorf("temperature %.2f out of range [0,2]", c.LLM.Temperature))
	}
	if c.LLM.MaxTokens <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_tokens must be positive"))
	}

	if c.Agent.MaxHistorySize <= 0 {
		result = multierror.Append(result, fmt.Errorf("max_history_size must be positive"))
	}
	switch c.Agent.OnFailure {
	case usecases.FailureRollback, usecases.FailureKeep, usecases.FailurePlaceholder:
	default:
		result = multierror.Append(result, fmt.Errorf("invalid on_failure policy %q", c.Agent.OnFailure))
	}
	switch c.Agent.WorkspaceErrors {
	case usecases.WorkspaceAbsorb, usecases.WorkspaceFail:
	default:
		result = multierror.Append(result, fmt.Errorf("invalid workspace_errors policy %q", c.Agent.WorkspaceErrors))
	}

	if c.Notion.Enabled && c.Notion.APIKey == "" {
		result = multierror.Append(result, fmt.Errorf("NOTION_API_KEY is required when Notion is enabled"))
	}
	if c.Leann.Enabled && c.Leann.APIURL == "" {
		result = multierror.Append(result, fmt.Errorf("LEANN_API_URL is required when LEANN is enabled"))
	}

	return result.ErrorOrNil()
}
