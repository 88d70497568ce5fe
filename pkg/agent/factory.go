// Package agent materializes immutable, role-bound agent instances from
// static role configuration, a shared dependency bundle, and resolved
// capability sets.
package agent

import (
	"github.com/amontoro/strategos/pkg/capability"
	"github.com/amontoro/strategos/pkg/errors"
)

// ProcessorProvider supplies the black-box process behavior for a role. The
// prompt-construction and model-call logic lives behind this boundary.
type ProcessorProvider func(role RoleConfig, capabilities []string, bundle *Bundle) (ProcessFunc, error)

// Factory constructs agent instances for configured roles. The capability
// set of every instance is the resolver's closure over the requested set,
// never the raw request.
type Factory struct {
	roles    map[string]RoleConfig
	bundle   *Bundle
	resolver *capability.Resolver
	provider ProcessorProvider
}

// NewFactory creates a factory over the given role configurations.
func NewFactory(roles []RoleConfig, bundle *Bundle, resolver *capability.Resolver, provider ProcessorProvider) (*Factory, error) {
	if bundle == nil {
		return nil, errors.New(errors.CodeInvalidInput, "dependency bundle is required", nil)
	}
	if resolver == nil {
		resolver = capability.NewResolver(nil)
	}
	if provider == nil {
		return nil, errors.New(errors.CodeInvalidInput, "processor provider is required", nil)
	}
	byName := make(map[string]RoleConfig, len(roles))
	for _, role := range roles {
		byName[role.Name] = role
	}
	return &Factory{
		roles:    byName,
		bundle:   bundle,
		resolver: resolver,
		provider: provider,
	}, nil
}

// Create builds an immutable instance for the named role carrying the
// transitive closure of the requested capabilities, minus whatever the
// role's tools_denied patterns forbid. Unknown roles fail with
// CodeRoleNotFound. Callers reassigning capabilities must call Create again
// and replace their role→instance map entry; instances are never mutated.
func (f *Factory) Create(roleName string, requested []string) (*Instance, error) {
	cfg, ok := f.roles[roleName]
	if !ok {
		return nil, errors.New(errors.CodeRoleNotFound, "role is not configured", nil).
			WithContext("role", roleName)
	}
	capabilities := f.resolver.Resolve(requested)
	if len(cfg.ToolsDenied) > 0 {
		deny := capability.NewFilter(capability.WithDenylist(cfg.ToolsDenied))
		capabilities = deny.FilterNames(capabilities)
	}
	process, err := f.provider(cfg, capabilities, f.bundle)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "processor provider failed", err).
			WithContext("role", roleName)
	}
	return newInstance(cfg, f.bundle, capabilities, process), nil
}

// Resolver returns the capability resolver the factory grants through.
func (f *Factory) Resolver() *capability.Resolver { return f.resolver }

// Bundle returns the shared dependency bundle.
func (f *Factory) Bundle() *Bundle { return f.bundle }

// HasRole reports whether the factory knows the named role.
func (f *Factory) HasRole(name string) bool {
	_, ok := f.roles[name]
	return ok
}
