// Package fallback implements the ordered-provider-chain combinator used
// by every public engine operation. Providers are tried in priority order;
// the first one returning a structurally valid, non-empty result wins.
// Only exhaustion of the whole chain reaches the synthesizer, which by
// construction cannot fail. The policy trades precision for availability:
// callers always get something usable, with provenance attached.
package fallback

import (
	"context"
	"log/slog"

	"wayfinder.transitlab.org/internal/logging"
)

// Provider is one link in a chain: a named fetch function.
type Provider[T any] struct {
	Name  string
	Fetch func(ctx context.Context) (T, error)
}

// Result carries the winning value plus its provenance.
type Result[T any] struct {
	Value T
	// Provider is the name of the chain link that produced Value, or
	// "synthesized" when the whole chain was exhausted.
	Provider string
	// Synthesized is true when Value came from the synthesizer.
	Synthesized bool
}

// SynthesizedProvider is the provenance name used for synthesizer output.
const SynthesizedProvider = "synthesized"

// Chain executes providers in order for one operation.
type Chain[T any] struct {
	// Operation names the public operation, for logs and metrics.
	Operation string
	Providers []Provider[T]
	// Valid reports whether a provider result is structurally valid and
	// non-empty. A nil Valid accepts any result returned without error.
	Valid func(T) bool
	// Synthesize produces the guaranteed last-resort value. It must not
	// fail; a nil Synthesize yields the zero value.
	Synthesize func(ctx context.Context) T
	// Logger receives warn-level entries for each failed link.
	Logger *slog.Logger
	// OnAttempt, when set, observes each provider attempt with outcome
	// "success", "error", or "empty".
	OnAttempt func(operation, provider, outcome string)
	// OnSynthesized, when set, observes chain exhaustion.
	OnSynthesized func(operation string)
}

// Execute runs the chain. A provider error and a timeout are treated
// identically: log, count, advance. There is no retry or backoff beyond
// the chain itself.
func (c Chain[T]) Execute(ctx context.Context) Result[T] {
	for _, p := range c.Providers {
		value, err := p.Fetch(ctx)
		if err != nil {
			c.observe(p.Name, "error")
			logging.LogWarning(c.Logger, "provider failed, advancing chain", err,
				slog.String("operation", c.Operation),
				slog.String("provider", p.Name))
			continue
		}
		if c.Valid != nil && !c.Valid(value) {
			c.observe(p.Name, "empty")
			logging.LogWarning(c.Logger, "provider returned no usable result, advancing chain", nil,
				slog.String("operation", c.Operation),
				slog.String("provider", p.Name))
			continue
		}
		c.observe(p.Name, "success")
		return Result[T]{Value: value, Provider: p.Name}
	}

	if c.OnSynthesized != nil {
		c.OnSynthesized(c.Operation)
	}
	logging.LogWarning(c.Logger, "all providers exhausted, synthesizing result", nil,
		slog.String("operation", c.Operation))

	var value T
	if c.Synthesize != nil {
		value = c.Synthesize(ctx)
	}
	return Result[T]{Value: value, Provider: SynthesizedProvider, Synthesized: true}
}

func (c Chain[T]) observe(provider, outcome string) {
	if c.OnAttempt != nil {
		c.OnAttempt(c.Operation, provider, outcome)
	}
}
