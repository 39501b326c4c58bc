package swarm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/reviewswarm/core"
	"github.com/hupe1980/reviewswarm/logging"
)

// ErrAlreadyRan is reported when Run is called on a used Swarm.
var ErrAlreadyRan = errors.New("swarm already ran")

const tracerName = "github.com/hupe1980/reviewswarm/swarm"

// Options configure a Swarm.
type Options struct {
	Logger logging.Logger
	Hooks  Hooks
	Tracer trace.Tracer
	// Closers are shared tool clients released exactly once when the run
	// ends or Close is called.
	Closers   []io.Closer
	RunIDFunc func() string
}

// Swarm orchestrates one run over a fixed roster.
type Swarm struct {
	cfg    RunConfig
	router *Router
	entry  core.Agent
	opts   Options

	ran       atomic.Bool
	closeOnce sync.Once
	closeErr  error

	mu    sync.Mutex
	state core.SwarmState
}

// New validates cfg against the roster and builds a Swarm.
func New(cfg RunConfig, agents []core.Agent, optFns ...func(o *Options)) (*Swarm, error) {
	opts := Options{
		Hooks:     NopHooks{},
		RunIDFunc: uuid.NewString,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Hooks == nil {
		opts.Hooks = NopHooks{}
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run config: %w", err)
	}

	router, err := NewRouter(agents)
	if err != nil {
		return nil, fmt.Errorf("invalid roster: %w", err)
	}

	entry, ok := router.Lookup(cfg.Entry)
	if !ok {
		return nil, fmt.Errorf("entry agent %q is not in the roster", cfg.Entry)
	}
	for _, name := range cfg.Terminal {
		if _, ok := router.Lookup(name); !ok {
			return nil, fmt.Errorf("terminal agent %q is not in the roster", name)
		}
	}

	return &Swarm{
		cfg:    cfg.clone(),
		router: router,
		entry:  entry,
		opts:   opts,
		state:  core.SwarmState{Status: core.StatusIdle},
	}, nil
}

// Config returns a copy of the run configuration.
func (s *Swarm) Config() RunConfig { return s.cfg.clone() }

// Roster returns the agent names in registration order.
func (s *Swarm) Roster() []string { return s.router.Names() }

// State returns a snapshot of the run bookkeeping.
func (s *Swarm) State() core.SwarmState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Close releases the shared tool clients. It is idempotent and also runs
// when Run returns.
func (s *Swarm) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		for i := len(s.opts.Closers) - 1; i >= 0; i-- {
			if c := s.opts.Closers[i]; c != nil {
				if err := c.Close(); err != nil {
					errs = append(errs, err)
				}
			}
		}
		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.opts.Logger.Warn("swarm.release.failed", "error", s.closeErr)
		}
	})
	return s.closeErr
}

// Run executes the state machine from the entry agent with input. Run never
// returns an error; the outcome is carried by the result status.
func (s *Swarm) Run(ctx context.Context, input string) (res core.RunResult) {
	if !s.ran.CompareAndSwap(false, true) {
		return core.RunResult{Status: core.StatusFailed, Reason: ErrAlreadyRan.Error(), Err: ErrAlreadyRan}
	}

	runID := s.opts.RunIDFunc()
	start := time.Now()
	log := logging.With(s.opts.Logger, "run_id", runID)

	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	ctx = core.WithRunID(ctx, runID)

	ctx, span := s.opts.Tracer.Start(ctx, "swarm.run", trace.WithAttributes(
		attribute.String("swarm.run_id", runID),
		attribute.String("swarm.entry", s.entry.Name()),
		attribute.Int("swarm.max_iterations", s.cfg.MaxIterations),
		attribute.Int("swarm.max_handoffs", s.cfg.MaxHandoffs),
	))

	guard := NewGuard(s.cfg.MaxIterations, s.cfg.MaxHandoffs)
	var history core.ExecutionHistory

	defer func() {
		if r := recover(); r != nil {
			log.Error("swarm.run.panic", "recover", r, "stack", string(debug.Stack()))
			err := fmt.Errorf("panic during run: %v", r)
			res = Aggregate(runID, history, core.StatusFailed, err.Error(), err, guard)
		}

		_ = s.Close()
		s.setState(func(st *core.SwarmState) { st.Status = res.Status })

		span.SetAttributes(
			attribute.String("swarm.status", res.Status.String()),
			attribute.Int("swarm.iterations", res.Iterations),
			attribute.Int("swarm.handoffs", res.Handoffs),
		)
		if res.Status == core.StatusCompleted {
			span.SetStatus(codes.Ok, "")
		} else {
			span.SetStatus(codes.Error, res.Reason)
		}
		span.End()

		elapsed := time.Since(start)
		s.opts.Hooks.OnRunComplete(ctx, res, elapsed)

		logging.RunCompletion(log, res.Status.String(), res.Iterations, res.Handoffs, elapsed, res.Reason)
	}()

	s.setState(func(st *core.SwarmState) { st.Status = core.StatusRunning; st.Active = s.entry.Name() })
	log.Info("swarm.run.start", "entry", s.entry.Name(), "roster", strings.Join(s.router.Names(), ","))
	s.opts.Hooks.OnRunStart(ctx, runID, s.entry.Name())

	return s.loop(ctx, runID, input, guard, &history)
}

func (s *Swarm) loop(ctx context.Context, runID, input string, guard *Guard, history *core.ExecutionHistory) core.RunResult {
	finish := func(status core.RunStatus, reason string, err error) core.RunResult {
		return Aggregate(runID, *history, status, reason, err, guard)
	}

	if strings.TrimSpace(input) == "" {
		return finish(core.StatusFailed, "initial input is empty", core.ErrEmptyInput)
	}

	log := logging.With(s.opts.Logger, "run_id", runID)
	active := s.entry

	for {
		if err := ctx.Err(); err != nil {
			return finish(core.StatusAbortedCancelled, fmt.Sprintf("%v before step %d: %v", core.ErrCancelled, len(*history), err), nil)
		}

		if err := guard.BeforeStep(); err != nil {
			return finish(core.StatusAbortedBoundsExceeded, err.Error(), nil)
		}

		index := len(*history)
		s.setState(func(st *core.SwarmState) { st.Active = active.Name(); st.Iterations = guard.Iterations() })

		stepCtx, span := s.opts.Tracer.Start(ctx, "swarm.step", trace.WithAttributes(
			attribute.Int("swarm.step.index", index),
			attribute.String("swarm.step.agent", active.Name()),
		))
		log.Debug("swarm.step.start", "step", index, "agent", active.Name())
		s.opts.Hooks.OnStepStart(stepCtx, index, active.Name())

		stepStart := time.Now()
		out, err := active.Run(stepCtx, input, history.Clone())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()

			if ctx.Err() != nil {
				return finish(core.StatusAbortedCancelled, fmt.Sprintf("%v during step %d (%s): %v", core.ErrCancelled, index, active.Name(), ctx.Err()), nil)
			}
			return finish(core.StatusFailed, fmt.Sprintf("agent %s failed at step %d: %v", active.Name(), index, err), err)
		}

		step := core.ExecutionStep{
			Index:     index,
			Agent:     active.Name(),
			Input:     input,
			Output:    out.Output,
			ToolCalls: out.ToolCalls,
			Handoff:   out.Handoff,
		}

		// A handoff past the ceiling is never taken, so the step ends the run.
		var boundsErr error
		outcome := s.router.Resolve(out.Handoff)
		step.Next = core.TerminalMarker
		if o, ok := outcome.(Continue); ok {
			if boundsErr = guard.AfterHandoff(); boundsErr == nil {
				step.Next = o.Target.Name()
			}
		}

		*history = append(*history, step)

		failed := 0
		for _, tc := range step.ToolCalls {
			if tc.Failed() {
				failed++
			}
		}
		span.SetAttributes(
			attribute.Int("swarm.step.tool_calls", len(step.ToolCalls)),
			attribute.Int("swarm.step.tool_failures", failed),
			attribute.String("swarm.step.next", step.Next),
		)
		span.End()

		elapsed := time.Since(stepStart)
		log.Info("swarm.step.complete",
			"step", index,
			"agent", step.Agent,
			"tool_calls", len(step.ToolCalls),
			"tool_failures", failed,
			"next", step.Next,
			"duration_ms", elapsed.Milliseconds(),
		)
		s.opts.Hooks.OnStepComplete(ctx, step, elapsed)

		switch o := outcome.(type) {
		case Terminate:
			if len(s.cfg.Terminal) > 0 && !s.isTerminal(active.Name()) {
				log.Warn("swarm.run.completed_early", "agent", active.Name())
			}
			return finish(core.StatusCompleted, "", nil)

		case Unresolved:
			uerr := &core.UnresolvedHandoffError{Source: active.Name(), Requested: o.Raw}
			return finish(core.StatusAbortedUnresolvedHandoff, uerr.Error(), nil)

		case Continue:
			if boundsErr != nil {
				return finish(core.StatusAbortedBoundsExceeded, boundsErr.Error(), nil)
			}

			log.Info("swarm.handoff", "from_agent", active.Name(), "to_agent", o.Target.Name(), "handoffs", guard.Handoffs())
			s.opts.Hooks.OnHandoff(ctx, active.Name(), o.Target.Name())
			s.setState(func(st *core.SwarmState) { st.Handoffs = guard.Handoffs() })

			input = nextInput(out)
			active = o.Target
		}
	}
}

// nextInput forwards the previous output, or the handoff message when the
// agent produced no text.
func nextInput(out core.StepResult) string {
	if strings.TrimSpace(out.Output) == "" && out.Handoff != nil {
		return out.Handoff.Payload
	}
	return out.Output
}

func (s *Swarm) isTerminal(name string) bool {
	for _, t := range s.cfg.Terminal {
		if normalize(t) == normalize(name) {
			return true
		}
	}
	return false
}

func (s *Swarm) setState(fn func(st *core.SwarmState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}
