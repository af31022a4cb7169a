// Package triage provides the business boundary for the arbiter's finding
// triage engine. It defines the Service (per-task orchestration, persistence,
// report aggregation), Engine (pure stage logic: deduplication, cross-agent
// comparison, evaluation), Store interface (persistence), oracle interfaces
// (similarity scoring, verdict evaluation), and domain models.
package triage
