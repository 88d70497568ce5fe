package agent

import (
	"log/slog"

	"github.com/amontoro/strategos/pkg/capability"
	"github.com/amontoro/strategos/pkg/core"
)

// Bundle carries the shared services every agent in a run depends on. It is
// passed explicitly into the factory rather than living in package-level
// registries, and is shared read-only across all agents of a run.
type Bundle struct {
	tools   *capability.Registry
	beliefs core.BeliefEngine
	logger  *slog.Logger
}

// BundleOption configures a Bundle.
type BundleOption func(*Bundle)

// NewBundle creates a dependency bundle around a capability registry.
func NewBundle(tools *capability.Registry, opts ...BundleOption) *Bundle {
	b := &Bundle{tools: tools}
	for _, opt := range opts {
		opt(b)
	}
	if b.tools == nil {
		b.tools = capability.NewRegistry()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// WithBeliefEngine attaches the belief-update collaborator.
func WithBeliefEngine(engine core.BeliefEngine) BundleOption {
	return func(b *Bundle) { b.beliefs = engine }
}

// WithLogger sets the bundle logger.
func WithLogger(logger *slog.Logger) BundleOption {
	return func(b *Bundle) { b.logger = logger }
}

// Tools returns the shared capability registry.
func (b *Bundle) Tools() *capability.Registry { return b.tools }

// Beliefs returns the belief engine handle, which may be nil.
func (b *Bundle) Beliefs() core.BeliefEngine { return b.beliefs }

// Logger returns the bundle logger.
func (b *Bundle) Logger() *slog.Logger { return b.logger }
