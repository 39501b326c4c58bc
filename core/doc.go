// Package core provides the foundational domain types shared by the review
// swarm. It defines:
//
//   - Agent, the contract every roster member implements
//   - ToolInvocation / HandoffRequest / ExecutionStep, the per-step records
//   - ExecutionHistory, the append-only log owned by the orchestrator
//   - RunStatus / SwarmState / RunResult, the orchestration outcome
//   - ToolContext, the scoped surface handed to tools during a step
//   - Content / Part, the normalized message shape exchanged with models
//
// Orchestration itself lives in package swarm; core only holds the data and
// the error taxonomy so every other package can depend on it without cycles.
package core
