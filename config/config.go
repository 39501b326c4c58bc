// Package config loads the YAML run file describing the review roster, the
// model provider, tool servers and run ceilings.
package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/reviewswarm/swarm"
)

// Providers understood by the façade.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
)

//go:embed default.yaml prompts/*.md
var defaultFS embed.FS

// Config is a complete run file.
type Config struct {
	Model   ModelConfig       `yaml:"model"`
	AWS     AWSConfig         `yaml:"aws"`
	Logging LoggingConfig     `yaml:"logging"`
	Metrics MetricsConfig     `yaml:"metrics"`
	Tracing TracingConfig     `yaml:"tracing"`
	Tools   ToolsConfig       `yaml:"tools"`
	Run     swarm.RunConfig   `yaml:"run"`
	MCP     []MCPServerConfig `yaml:"mcp_servers"`
	Skills  []SkillConfig     `yaml:"skills"`
	Agents  []AgentConfig     `yaml:"agents"`

	fsys fs.FS
}

type ModelConfig struct {
	Provider    string  `yaml:"provider"`
	Name        string  `yaml:"name"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Streaming   bool    `yaml:"streaming"`
}

// Resolved fills the provider specific model name and endpoint when unset.
func (m ModelConfig) Resolved() ModelConfig {
	switch m.Provider {
	case ProviderOllama:
		if m.Name == "" {
			m.Name = "llama3.1:8b"
		}
		if m.BaseURL == "" {
			m.BaseURL = "http://localhost:11434/v1"
		}
	case ProviderOpenAI:
		if m.Name == "" {
			m.Name = "gpt-4o-mini"
		}
	case ProviderAnthropic:
		if m.Name == "" {
			m.Name = "claude-3-haiku-20240307"
		}
	case ProviderBedrock:
		if m.Name == "" {
			m.Name = "anthropic.claude-3-haiku-20240307-v1:0"
		}
	}
	return m
}

type AWSConfig struct {
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
}

type LoggingConfig struct {
	// Backend is "zap" or "slog".
	Backend string `yaml:"backend"`
	Level   string `yaml:"level"`
	// Format is "json" or "text".
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// TracingConfig controls span export over OTLP/gRPC. Disabled keeps the
// global no-op tracer.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

type ToolsConfig struct {
	MaxParallel int           `yaml:"max_parallel"`
	Timeout     time.Duration `yaml:"timeout"`
}

// MCPServerConfig describes a stdio tool server. With PassAWS the AWS
// profile and region are added to the server environment.
type MCPServerConfig struct {
	Name       string            `yaml:"name"`
	Command    string            `yaml:"command"`
	Args       []string          `yaml:"args"`
	Env        map[string]string `yaml:"env"`
	ToolPrefix string            `yaml:"tool_prefix"`
	PassAWS    bool              `yaml:"pass_aws"`
	Disabled   bool              `yaml:"disabled"`
}

// SkillConfig turns a SKILL.md file into a tool backed by its own agent.
// Instructions is a template receiving the skill body as {{.skill}}.
type SkillConfig struct {
	Name         string `yaml:"name"`
	Description  string `yaml:"description"`
	Path         string `yaml:"path"`
	Instructions string `yaml:"instructions"`
	// Optional skills are skipped when the file is missing.
	Optional bool `yaml:"optional"`
}

// AgentConfig defines one roster member.
type AgentConfig struct {
	Name             string   `yaml:"name"`
	Description      string   `yaml:"description"`
	Instructions     string   `yaml:"instructions"`
	InstructionsFile string   `yaml:"instructions_file"`
	Tools            []string `yaml:"tools"`
	MCPServers       []string `yaml:"mcp_servers"`
	// Peers lists handoff targets. Empty means every other roster member.
	Peers           []string `yaml:"peers"`
	Model           string   `yaml:"model"`
	MaxTurns        int      `yaml:"max_turns"`
	MaxHistorySteps int      `yaml:"max_history_steps"`
}

func defaults() Config {
	return Config{
		Model:   ModelConfig{Provider: ProviderOllama, Temperature: 0.2, MaxTokens: 4096},
		AWS:     AWSConfig{Profile: "demo", Region: "us-east-1"},
		Logging: LoggingConfig{Backend: "zap", Level: "info", Format: "text"},
		Metrics: MetricsConfig{Namespace: "reviewswarm"},
		Tracing: TracingConfig{Endpoint: "localhost:4317", ServiceName: "sowreview", SampleRate: 1},
		Tools:   ToolsConfig{MaxParallel: 4, Timeout: 2 * time.Minute},
		Run:     swarm.DefaultRunConfig("coordinator"),
	}
}

// Default returns the embedded SOW review configuration.
func Default() (*Config, error) {
	data, err := defaultFS.ReadFile("default.yaml")
	if err != nil {
		return nil, fmt.Errorf("read default config: %w", err)
	}
	return Parse(data, defaultFS)
}

// Load reads the run file at path. An empty path loads the embedded default.
func Load(path string) (*Config, error) {
	if path == "" {
		if v := os.Getenv("SOWREVIEW_CONFIG"); v != "" {
			path = v
		} else {
			return Default()
		}
	}

	data, err := os.ReadFile(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return Parse(data, os.DirFS(filepath.Dir(path)))
}

// Parse decodes a run file. fsys resolves instructions_file references.
func Parse(data []byte, fsys fs.FS) (*Config, error) {
	cfg := defaults()

	if err := yaml.Unmarshal([]byte(expandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.fsys = fsys

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv substitutes ${VAR} and ${VAR:-default}. References to unset
// variables without a default are kept verbatim so prompt text containing
// template placeholders survives.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		hasDefault := strings.Contains(ref, ":-")
		if v, ok := os.LookupEnv(m[1]); ok && (v != "" || !hasDefault) {
			return v
		}
		if hasDefault {
			return m[2]
		}
		return ref
	})
}

// applyEnv overlays SOWREVIEW_* variables. Malformed numeric values are
// reported rather than ignored.
func applyEnv(cfg *Config) error {
	var errs []error

	if v := os.Getenv("SOWREVIEW_PROVIDER"); v != "" {
		cfg.Model.Provider = v
	}
	if v := os.Getenv("SOWREVIEW_MODEL"); v != "" {
		cfg.Model.Name = v
	}
	if v := os.Getenv("SOWREVIEW_BASE_URL"); v != "" {
		cfg.Model.BaseURL = v
	}
	if v := os.Getenv("SOWREVIEW_API_KEY"); v != "" {
		cfg.Model.APIKey = v
	}
	if v := os.Getenv("SOWREVIEW_AWS_PROFILE"); v != "" {
		cfg.AWS.Profile = v
	}
	if v := os.Getenv("SOWREVIEW_AWS_REGION"); v != "" {
		cfg.AWS.Region = v
	}
	if v := os.Getenv("SOWREVIEW_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SOWREVIEW_OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.Enabled = true
		cfg.Tracing.Endpoint = v
	}
	for name, dst := range map[string]*int{
		"SOWREVIEW_MAX_ITERATIONS": &cfg.Run.MaxIterations,
		"SOWREVIEW_MAX_HANDOFFS":   &cfg.Run.MaxHandoffs,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", name, v))
			continue
		}
		*dst = n
	}

	return errors.Join(errs...)
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []error

	switch c.Model.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderAnthropic, ProviderBedrock:
	default:
		errs = append(errs, fmt.Errorf("unknown model provider %q", c.Model.Provider))
	}

	if c.Tracing.Enabled && (c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1) {
		errs = append(errs, fmt.Errorf("tracing sample_rate %v must be within [0, 1]", c.Tracing.SampleRate))
	}

	if err := c.Run.Validate(); err != nil {
		errs = append(errs, err)
	}

	servers := map[string]bool{}
	for _, s := range c.MCP {
		if s.Name == "" {
			errs = append(errs, errors.New("mcp server without name"))
			continue
		}
		if servers[s.Name] {
			errs = append(errs, fmt.Errorf("duplicate mcp server %q", s.Name))
		}
		servers[s.Name] = true
		if s.Command == "" && !s.Disabled {
			errs = append(errs, fmt.Errorf("mcp server %q: command is required", s.Name))
		}
	}

	for _, s := range c.Skills {
		if s.Name == "" || s.Path == "" {
			errs = append(errs, fmt.Errorf("skill %q: name and path are required", s.Name))
		}
	}

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("at least one agent is required"))
	}

	agents := map[string]bool{}
	for _, a := range c.Agents {
		key := normalize(a.Name)
		if key == "" {
			errs = append(errs, errors.New("agent without name"))
			continue
		}
		if agents[key] {
			errs = append(errs, fmt.Errorf("duplicate agent %q", a.Name))
		}
		agents[key] = true

		if a.Instructions != "" && a.InstructionsFile != "" {
			errs = append(errs, fmt.Errorf("agent %q: instructions and instructions_file are exclusive", a.Name))
		}
		for _, s := range a.MCPServers {
			if !servers[s] {
				errs = append(errs, fmt.Errorf("agent %q: unknown mcp server %q", a.Name, s))
			}
		}
	}

	for _, a := range c.Agents {
		for _, p := range a.Peers {
			if !agents[normalize(p)] {
				errs = append(errs, fmt.Errorf("agent %q: unknown peer %q", a.Name, p))
			}
		}
	}

	if c.Run.Entry != "" && len(c.Agents) > 0 && !agents[normalize(c.Run.Entry)] {
		errs = append(errs, fmt.Errorf("entry agent %q is not in the roster", c.Run.Entry))
	}
	for _, t := range c.Run.Terminal {
		if !agents[normalize(t)] {
			errs = append(errs, fmt.Errorf("terminal agent %q is not in the roster", t))
		}
	}

	return errors.Join(errs...)
}

// Instructions returns the agent's prompt, reading instructions_file when set.
func (c *Config) Instructions(a AgentConfig) (string, error) {
	if a.InstructionsFile == "" {
		return a.Instructions, nil
	}
	if c.fsys == nil {
		return "", fmt.Errorf("agent %q: no base directory for %s", a.Name, a.InstructionsFile)
	}

	data, err := fs.ReadFile(c.fsys, filepath.ToSlash(a.InstructionsFile))
	if err != nil {
		return "", fmt.Errorf("agent %q: %w", a.Name, err)
	}

	return string(data), nil
}

// PeersOf returns the handoff targets of the named agent.
func (c *Config) PeersOf(a AgentConfig) []string {
	if len(a.Peers) > 0 {
		return append([]string(nil), a.Peers...)
	}
	peers := make([]string, 0, len(c.Agents)-1)
	for _, other := range c.Agents {
		if normalize(other.Name) != normalize(a.Name) {
			peers = append(peers, other.Name)
		}
	}
	return peers
}

// Server returns the MCP server with the given name.
func (c *Config) Server(name string) (MCPServerConfig, bool) {
	for _, s := range c.MCP {
		if s.Name == name {
			return s, true
		}
	}
	return MCPServerConfig{}, false
}

// ServerEnv returns the environment for a server, including AWS settings
// when requested.
func (c *Config) ServerEnv(s MCPServerConfig) map[string]string {
	env := make(map[string]string, len(s.Env)+2)
	for k, v := range s.Env {
		env[k] = v
	}
	if s.PassAWS {
		if c.AWS.Profile != "" {
			env["AWS_PROFILE"] = c.AWS.Profile
		}
		if c.AWS.Region != "" {
			env["AWS_REGION"] = c.AWS.Region
		}
	}
	return env
}

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
