// Package model defines the provider-neutral model binding used by agents:
// a streaming Generate contract, normalized requests and responses, and the
// Complete helper that drains a call and classifies its failure.
//
// Concrete backends live in subpackages (anthropic, openai). ScriptedModel is
// a deterministic implementation for tests and offline runs.
package model
