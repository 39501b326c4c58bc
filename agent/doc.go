// Package agent provides the participants of a review swarm.
//
// ModelAgent drives a language model through one step: it builds a request
// from its instruction, the shared execution history and the step input, runs
// requested tools through a tool.Executor and reports the final text, every
// tool invocation and an optional handoff. FuncAgent wraps a plain function
// for tests and deterministic pipelines. AsTool exposes any agent as a tool
// so one agent can consult another without a handoff.
package agent
