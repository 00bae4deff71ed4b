package plugin

import "fmt"

// Registry holds the loaded Runtime for every plugin that survived
// Resolve/ValidateDependencies/ValidateFormatAdapters, keyed by name.
type Registry struct {
	manifests map[string]Manifest
	runtimes  map[string]*Runtime
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		manifests: map[string]Manifest{},
		runtimes:  map[string]*Runtime{},
	}
}

// Load instantiates every manifest's plugin in dependency order: a plugin's
// hard Dependencies are always loaded before it. ctxTemplate is cloned per
// plugin with Registry set to this Registry, so a Factory can look up an
// already-loaded dependency via ctx.Registry.Get. perPluginRawConfig, if
// given, supplies each plugin's own PluginContext.RawConfig keyed by plugin
// name, overriding ctxTemplate.RawConfig for that one plugin; a plugin with
// no entry gets an empty config, not ctxTemplate's.
func (reg *Registry) Load(ctxTemplate PluginContext, manifests map[string]Manifest, perPluginRawConfig ...map[string]map[string]any) error {
	if err := ValidateDependencies(manifests); err != nil {
		return err
	}
	if err := ValidateFormatAdapters(manifests); err != nil {
		return err
	}

	order, err := topologicalOrder(manifests)
	if err != nil {
		return err
	}

	var rawConfigs map[string]map[string]any
	if len(perPluginRawConfig) > 0 {
		rawConfigs = perPluginRawConfig[0]
	}

	for _, name := range order {
		m := manifests[name]
		ep, ok := entryPointLookup(name)
		if !ok {
			return fmt.Errorf("plugin %q: manifest has no registered entry-point factory", name)
		}

		pctx := ctxTemplate
		pctx.Registry = reg
		if rawConfigs != nil {
			pctx.RawConfig = rawConfigs[name]
		}

		rt, err := ep.Factory(&pctx)
		if err != nil {
			return fmt.Errorf("plugin %q: load failed: %w", name, err)
		}
		reg.manifests[name] = m
		reg.runtimes[name] = rt
	}
	return nil
}

// Get returns the loaded Runtime for name, or nil if it wasn't loaded.
func (reg *Registry) Get(name string) *Runtime {
	return reg.runtimes[name]
}

// List returns the names of every loaded plugin.
func (reg *Registry) List() []string {
	names := make([]string, 0, len(reg.runtimes))
	for name := range reg.runtimes {
		names = append(names, name)
	}
	return names
}

// Manifest returns the Manifest a loaded plugin was instantiated from.
func (reg *Registry) Manifest(name string) (Manifest, bool) {
	m, ok := reg.manifests[name]
	return m, ok
}

func entryPointLookup(name string) (EntryPoint, bool) {
	ep, ok := entryPointSnapshot()[name]
	return ep, ok
}

// topologicalOrder returns manifest names ordered so that every hard
// dependency precedes its dependent, detecting cycles.
func topologicalOrder(manifests map[string]Manifest) ([]string, error) {
	const (
		unvisited = 0
		visiting  = 1
		visited   = 2
	)
	state := make(map[string]int, len(manifests))
	order := make([]string, 0, len(manifests))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("plugin: dependency cycle detected at %q", name)
		}
		state[name] = visiting
		for _, dep := range manifests[name].Dependencies {
			if _, ok := manifests[dep]; !ok {
				continue // ValidateDependencies already reports missing hard deps
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = visited
		order = append(order, name)
		return nil
	}

	for name := range manifests {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
