package swarm

import (
	"fmt"
	"strings"

	"github.com/hupe1980/reviewswarm/core"
)

// HandoffOutcome is the result of routing a step's handoff request. It is
// one of Continue, Terminate or Unresolved.
type HandoffOutcome interface {
	outcome()
}

// Continue passes control to Target.
type Continue struct {
	Target core.Agent
}

// Terminate ends the run; the step requested no handoff.
type Terminate struct{}

// Unresolved means the requested name matched no roster member.
type Unresolved struct {
	Raw string
}

func (Continue) outcome()   {}
func (Terminate) outcome()  {}
func (Unresolved) outcome() {}

// Router resolves handoff targets against the roster with a case-insensitive
// exact match. It never guesses.
type Router struct {
	roster map[string]core.Agent
	names  []string
}

// NewRouter builds a router. Names must be unique after normalization.
func NewRouter(agents []core.Agent) (*Router, error) {
	r := &Router{roster: make(map[string]core.Agent, len(agents))}
	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("roster contains nil agent")
		}
		key := normalize(a.Name())
		if key == "" {
			return nil, fmt.Errorf("roster contains agent without name")
		}
		if _, dup := r.roster[key]; dup {
			return nil, fmt.Errorf("duplicate agent name %q", a.Name())
		}
		r.roster[key] = a
		r.names = append(r.names, a.Name())
	}
	return r, nil
}

// Resolve routes a handoff request.
func (r *Router) Resolve(req *core.HandoffRequest) HandoffOutcome {
	if req == nil {
		return Terminate{}
	}
	if a, ok := r.Lookup(req.Target); ok {
		return Continue{Target: a}
	}
	return Unresolved{Raw: req.Target}
}

// Lookup finds a roster member by name.
func (r *Router) Lookup(name string) (core.Agent, bool) {
	a, ok := r.roster[normalize(name)]
	return a, ok
}

// Names returns the roster names in registration order.
func (r *Router) Names() []string { return append([]string(nil), r.names...) }

func normalize(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
