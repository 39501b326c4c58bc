// Package swarm implements the handoff orchestration core: a bounded state
// machine that runs one agent at a time, routes structural handoff requests
// to roster members, enforces iteration and handoff ceilings and aggregates
// the final result.
//
// A Swarm is built from an immutable RunConfig and a roster, runs exactly
// once and releases the shared tool clients it was given on every exit path.
package swarm
