// Package reviewswarm assembles a document review swarm from a run
// configuration. Most applications interact with this package by:
//  1. Loading a config.Config (config.Load or config.Default)
//  2. Creating a Reviewer via New, optionally overriding the model or tool
//     server factories
//  3. Calling ReviewFile or Review and rendering the result with the report
//     package
//
// Every Review builds a fresh swarm: tool servers are started for the run and
// released when it ends, whatever the outcome.
package reviewswarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/reviewswarm/agent"
	"github.com/hupe1980/reviewswarm/config"
	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/document"
	"github.com/hupe1980/reviewswarm/logging"
	"github.com/hupe1980/reviewswarm/metrics"
	"github.com/hupe1980/reviewswarm/model"
	"github.com/hupe1980/reviewswarm/model/anthropic"
	"github.com/hupe1980/reviewswarm/model/openai"
	"github.com/hupe1980/reviewswarm/swarm"
	"github.com/hupe1980/reviewswarm/tool"
	"github.com/hupe1980/reviewswarm/tool/mcp"
	"github.com/hupe1980/reviewswarm/tool/review"
)

// TaskPrefix is prepended to the document text to form the entry input.
const TaskPrefix = "Review this SOW document comprehensively:\n\n"

// ToolServer is a long-lived source of remote tools.
type ToolServer interface {
	Tools(ctx context.Context) ([]tool.Tool, error)
	Close() error
}

// ModelFactory builds the model for a provider configuration.
type ModelFactory func(ctx context.Context, cfg config.ModelConfig, aws config.AWSConfig) (model.Model, error)

// ServerStarter launches a tool server.
type ServerStarter func(ctx context.Context, cfg config.MCPServerConfig, env map[string]string) (ToolServer, error)

// Options configures a Reviewer.
type Options struct {
	Logger logging.Logger

	// NewModel defaults to NewModel.
	NewModel ModelFactory
	// StartServer defaults to launching an MCP stdio server.
	StartServer ServerStarter

	// Registerer receives the swarm metrics. Nil disables metrics.
	Registerer prometheus.Registerer
	Tracer     trace.Tracer
	// Hooks observe every run in addition to the metrics collector.
	Hooks []swarm.Hooks

	// ExtraTools are registered next to the built-in review tools.
	ExtraTools []tool.Tool
}

// Reviewer builds and runs review swarms from one configuration.
type Reviewer struct {
	cfg       *config.Config
	opts      Options
	collector *metrics.Collector
}

// New creates a Reviewer. The configuration is validated again so callers may
// adjust a loaded config before passing it in.
func New(cfg *config.Config, optFns ...func(o *Options)) (*Reviewer, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := Options{
		Logger:   logging.NoOpLogger{},
		NewModel: NewModel,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.NewModel == nil {
		opts.NewModel = NewModel
	}
	if opts.StartServer == nil {
		opts.StartServer = mcpStarter(opts.Logger)
	}

	r := &Reviewer{cfg: cfg, opts: opts}
	if opts.Registerer != nil {
		r.collector = metrics.NewCollector(cfg.Metrics.Namespace, opts.Registerer)
	}

	return r, nil
}

// ReviewFile reads the document at path and reviews it.
func (r *Reviewer) ReviewFile(ctx context.Context, path string) (core.RunResult, error) {
	text, err := document.Read(path)
	if err != nil {
		return core.RunResult{}, err
	}

	r.opts.Logger.Info("review.document.loaded", "path", path, "chars", len(text))

	return r.Review(ctx, text)
}

// Review runs one swarm over the document text. The error reports setup
// failures only; how the run ended is carried by the result status.
func (r *Reviewer) Review(ctx context.Context, text string) (core.RunResult, error) {
	s, err := r.Build(ctx)
	if err != nil {
		return core.RunResult{}, err
	}
	defer func() { _ = s.Close() }()

	r.opts.Logger.Info("review.start", "agents", len(s.Roster()), "chars", len(text))

	res := s.Run(ctx, TaskPrefix+text)

	r.opts.Logger.Info("review.finished", "run_id", res.RunID, "status", res.Status.String(), "last_agent", res.LastAgent(), "steps", len(res.History))

	return res, nil
}

// Build assembles a ready-to-run swarm. The caller owns the returned swarm;
// its tool servers are released when Run returns or Close is called.
func (r *Reviewer) Build(ctx context.Context) (s *swarm.Swarm, err error) {
	var closers []io.Closer
	defer func() {
		if err != nil {
			for i := len(closers) - 1; i >= 0; i-- {
				_ = closers[i].Close()
			}
		}
	}()

	models := map[string]model.Model{}
	modelFor := func(name string) (model.Model, error) {
		if m, ok := models[name]; ok {
			return m, nil
		}
		mc := r.cfg.Model
		if name != "" {
			mc.Name = name
		}
		m, err := r.opts.NewModel(ctx, mc.Resolved(), r.cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", mc.Provider, err)
		}
		models[name] = m
		return m, nil
	}

	defaultModel, err := modelFor("")
	if err != nil {
		return nil, err
	}

	registry, err := tool.NewRegistry(review.Tools()...)
	if err != nil {
		return nil, err
	}
	if err := registry.Register(r.opts.ExtraTools...); err != nil {
		return nil, err
	}

	serverTools, serverClosers, err := r.startServers(ctx, registry)
	closers = append(closers, serverClosers...)
	if err != nil {
		return nil, err
	}

	if err := r.registerSkills(defaultModel, registry); err != nil {
		return nil, err
	}
	registry.Freeze()

	executor := tool.NewExecutor(func(o *tool.ExecutorOptions) {
		o.MaxParallel = r.cfg.Tools.MaxParallel
		o.Timeout = r.cfg.Tools.Timeout
		o.Logger = r.opts.Logger
	})

	roster := make([]core.Agent, 0, len(r.cfg.Agents))
	for _, ac := range r.cfg.Agents {
		llm, err := modelFor(ac.Model)
		if err != nil {
			return nil, err
		}
		a, err := r.newAgent(ac, llm, registry, executor, serverTools)
		if err != nil {
			return nil, err
		}
		roster = append(roster, a)
	}

	hooks := swarm.MultiHooks{}
	if r.collector != nil {
		hooks = append(hooks, r.collector)
	}
	hooks = append(hooks, r.opts.Hooks...)

	return swarm.New(r.cfg.Run, roster, func(o *swarm.Options) {
		o.Logger = r.opts.Logger
		o.Hooks = hooks
		o.Tracer = r.opts.Tracer
		o.Closers = closers
	})
}

// startServers launches every enabled server referenced by an agent and
// registers its tools. Unreachable servers are logged and skipped; agents
// lose those tools but the review proceeds.
func (r *Reviewer) startServers(ctx context.Context, registry *tool.Registry) (map[string][]string, []io.Closer, error) {
	used := map[string]bool{}
	for _, a := range r.cfg.Agents {
		for _, s := range a.MCPServers {
			used[s] = true
		}
	}

	var (
		names   = map[string][]string{}
		closers []io.Closer
	)
	for _, sc := range r.cfg.MCP {
		if !used[sc.Name] || sc.Disabled {
			continue
		}
		if err := ctx.Err(); err != nil {
			return names, closers, err
		}

		srv, err := r.opts.StartServer(ctx, sc, r.cfg.ServerEnv(sc))
		if err != nil {
			r.opts.Logger.Warn("mcp.server.unavailable", "server", sc.Name, "error", err)
			continue
		}
		closers = append(closers, srv)

		tools, err := srv.Tools(ctx)
		if err != nil {
			r.opts.Logger.Warn("mcp.server.tools.failed", "server", sc.Name, "error", err)
			continue
		}
		if err := registry.Register(tools...); err != nil {
			return names, closers, fmt.Errorf("mcp server %q: %w", sc.Name, err)
		}
		for _, t := range tools {
			names[sc.Name] = append(names[sc.Name], t.Name())
		}

		r.opts.Logger.Info("mcp.server.ready", "server", sc.Name, "tools", len(tools))
	}

	return names, closers, nil
}

func (r *Reviewer) registerSkills(llm model.Model, registry *tool.Registry) error {
	for _, sc := range r.cfg.Skills {
		skill, err := agent.LoadSkill(sc.Path)
		if err != nil {
			if sc.Optional {
				r.opts.Logger.Warn("skill.unavailable", "skill", sc.Name, "path", sc.Path, "error", err)
				continue
			}
			return fmt.Errorf("skill %q: %w", sc.Name, err)
		}

		instructions := sc.Instructions
		if strings.TrimSpace(instructions) == "" {
			instructions = "{{.skill}}"
		}
		desc := sc.Description
		if desc == "" {
			desc = skill.Description
		}

		a := agent.NewModelAgent(sc.Name, llm, func(o *agent.ModelAgentOptions) {
			o.Instruction = agent.NewInstructionFromText(instructions)
			o.Description = desc
			o.Vars = map[string]any{"skill": skill.Body}
			o.ToolNames = []string{}
			o.Logger = r.opts.Logger
		})

		if err := registry.Register(agent.AsTool(a, func(o *agent.AgentToolOptions) {
			o.Description = desc
			o.Timeout = r.cfg.Tools.Timeout
		})); err != nil {
			return fmt.Errorf("skill %q: %w", sc.Name, err)
		}
	}
	return nil
}

func (r *Reviewer) newAgent(ac config.AgentConfig, llm model.Model, registry *tool.Registry, executor *tool.Executor, serverTools map[string][]string) (*agent.ModelAgent, error) {
	instructions, err := r.cfg.Instructions(ac)
	if err != nil {
		return nil, err
	}

	names := append([]string{}, ac.Tools...)
	for _, s := range ac.MCPServers {
		names = append(names, serverTools[s]...)
	}

	return agent.NewModelAgent(ac.Name, llm, func(o *agent.ModelAgentOptions) {
		if strings.TrimSpace(instructions) != "" {
			o.Instruction = agent.NewInstructionFromText(instructions)
		}
		o.Description = ac.Description
		o.Registry = registry
		o.ToolNames = names
		o.Peers = r.cfg.PeersOf(ac)
		if ac.MaxTurns > 0 {
			o.MaxTurns = ac.MaxTurns
		}
		o.MaxHistorySteps = ac.MaxHistorySteps
		o.Streaming = r.cfg.Model.Streaming
		o.Executor = executor
		o.Logger = r.opts.Logger
	}), nil
}

// NewModel builds the inference backend for a provider.
func NewModel(ctx context.Context, mc config.ModelConfig, aws config.AWSConfig) (model.Model, error) {
	mc = mc.Resolved()

	switch mc.Provider {
	case config.ProviderOllama:
		return openai.NewOllamaModel(mc.Name, func(o *openai.Options) {
			o.BaseURL = mc.BaseURL
			o.Temperature = mc.Temperature
			o.MaxCompletionTokens = int64(mc.MaxTokens)
		}), nil
	case config.ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			o.Model = mc.Name
			o.BaseURL = mc.BaseURL
			o.APIKey = mc.APIKey
			o.Temperature = mc.Temperature
			o.MaxCompletionTokens = int64(mc.MaxTokens)
		}), nil
	case config.ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Name)
			o.APIKey = mc.APIKey
			o.Temperature = mc.Temperature
			o.MaxTokens = int64(mc.MaxTokens)
		}), nil
	case config.ProviderBedrock:
		m, err := anthropic.NewBedrockModel(ctx, aws.Region, aws.Profile, func(o *anthropic.Options) {
			o.Model = anthropicsdk.Model(mc.Name)
			o.Temperature = mc.Temperature
			o.MaxTokens = int64(mc.MaxTokens)
		})
		if err != nil {
			return nil, err
		}
		return m, nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

func mcpStarter(logger logging.Logger) ServerStarter {
	return func(ctx context.Context, sc config.MCPServerConfig, env map[string]string) (ToolServer, error) {
		c, err := mcp.Start(ctx, mcp.ServerConfig{
			Name:    sc.Name,
			Command: sc.Command,
			Args:    sc.Args,
			Env:     env,
		}, func(o *mcp.Options) {
			o.ToolPrefix = sc.ToolPrefix
			o.Logger = logger
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
