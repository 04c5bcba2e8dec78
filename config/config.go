// Package config loads declarative engine configuration from YAML: the agent
// profile, model provider settings, store backend, and route definitions.
// Routes declared in YAML carry natural-language conditions only; predicate
// conditions are code and are attached programmatically after loading.
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Config is the full engine configuration.
type Config struct {
	Agent   AgentConfig      `yaml:"agent"`
	Model   ModelConfig      `yaml:"model"`
	Store   StoreConfig      `yaml:"store"`
	Log     LogConfig        `yaml:"log"`
	Routing RoutingConfig    `yaml:"routing"`
	Routes  []map[string]any `yaml:"routes"`
}

// AgentConfig is the agent-level conversational profile.
type AgentConfig struct {
	Name         string            `yaml:"name"`
	Description  string            `yaml:"description"`
	Rules        map[string]string `yaml:"rules"`
	Prohibitions map[string]string `yaml:"prohibitions"`
	Guidelines   []string          `yaml:"guidelines"`
	Terms        map[string]string `yaml:"terms"`
	Tools        []string          `yaml:"tools"`
}

// ModelConfig selects and tunes the model provider.
type ModelConfig struct {
	Provider    string  `yaml:"provider"` // "openai", "anthropic", "mock"
	Name        string  `yaml:"name"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int64   `yaml:"max_tokens"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string            `yaml:"backend"` // "memory", "redis", "sqlite"
	Redis   RedisStoreConfig  `yaml:"redis"`
	SQLite  SQLiteStoreConfig `yaml:"sqlite"`
}

// RedisStoreConfig configures the Redis backend.
type RedisStoreConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SQLiteStoreConfig configures the SQLite backend.
type SQLiteStoreConfig struct {
	Path string `yaml:"path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "text", "json"
}

// RoutingConfig tunes route selection and the tool loop.
type RoutingConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
	MaxToolLoops  int     `yaml:"max_tool_loops"`
	AutoSave      *bool   `yaml:"auto_save"`
}

// RouteSpec is one declarative route definition.
type RouteSpec struct {
	ID           string            `mapstructure:"id"`
	Title        string            `mapstructure:"title"`
	Description  string            `mapstructure:"description"`
	When         []string          `mapstructure:"when"`
	SkipIf       []string          `mapstructure:"skip_if"`
	Require      []string          `mapstructure:"require"`
	Optional     []string          `mapstructure:"optional"`
	Rules        map[string]string `mapstructure:"rules"`
	Prohibitions map[string]string `mapstructure:"prohibitions"`
	Guidelines   []string          `mapstructure:"guidelines"`
	Terms        map[string]string `mapstructure:"terms"`
	Tools        []string          `mapstructure:"tools"`
	DomainScope  []string          `mapstructure:"domain_scope"`
	OnComplete   string            `mapstructure:"on_complete"`
	End          EndSpec           `mapstructure:"end"`
	Initial      string            `mapstructure:"initial"`
	Steps        []StepSpec        `mapstructure:"steps"`
}

// EndSpec configures the wrap-up turn of a route.
type EndSpec struct {
	Prompt string   `mapstructure:"prompt"`
	Fields []string `mapstructure:"fields"`
}

// StepSpec is one declarative step definition.
type StepSpec struct {
	ID          string   `mapstructure:"id"`
	Description string   `mapstructure:"description"`
	Collect     []string `mapstructure:"collect"`
	Requires    []string `mapstructure:"requires"`
	SkipIf      []string `mapstructure:"skip_if"`
	Tools       []string `mapstructure:"tools"`
	Next        []string `mapstructure:"next"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML config bytes and applies defaults.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Model.Provider == "" {
		cfg.Model.Provider = "openai"
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "memory"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	return &cfg, nil
}

// RouteSpecs decodes the raw route maps into typed specs. Unknown keys are
// rejected so typos surface at configuration time rather than silently
// dropping behavior.
func (c *Config) RouteSpecs() ([]RouteSpec, error) {
	specs := make([]RouteSpec, 0, len(c.Routes))
	for i, raw := range c.Routes {
		var spec RouteSpec
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:      &spec,
			ErrorUnused: true,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(raw); err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		if spec.ID == "" {
			return nil, fmt.Errorf("route %d: missing id", i)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}
