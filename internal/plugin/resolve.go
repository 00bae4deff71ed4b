package plugin

import "fmt"

// Config governs which discovered manifests survive into the final set
// handed to Registry.Load.
type Config struct {
	// PluginDirs are scanned via DiscoverFilesystem; later directories
	// override earlier ones on name collision, and any filesystem manifest
	// overrides an entry-point manifest of the same name.
	PluginDirs []string

	// EnabledPlugins, if non-empty, is an allowlist: only these names
	// survive. Empty means "every discovered plugin not denied."
	EnabledPlugins []string

	// DisabledPlugins is a denylist, unioned with every manifest (or
	// PerPluginEnabled override) whose effective Enabled is false.
	DisabledPlugins []string

	// PerPluginEnabled overrides a discovered manifest's own Enabled field
	// per plugin name; an explicit false here always disables the plugin
	// regardless of where its manifest came from.
	PerPluginEnabled map[string]bool
}

// Resolve merges entry-point and filesystem manifests (filesystem wins on
// collision), applies the enabled/disabled allow/deny lists, and returns the
// surviving manifest set.
func Resolve(cfg Config) (map[string]Manifest, error) {
	merged := map[string]Manifest{}
	for name, ep := range entryPointSnapshot() {
		merged[name] = ep.Manifest
	}

	for _, dir := range cfg.PluginDirs {
		fsManifests, err := DiscoverFilesystem(dir)
		if err != nil {
			return nil, err
		}
		for name, m := range fsManifests {
			merged[name] = m
		}
	}

	denylist := map[string]bool{}
	for _, name := range cfg.DisabledPlugins {
		denylist[name] = true
	}
	for name, enabled := range cfg.PerPluginEnabled {
		if !enabled {
			denylist[name] = true
		}
	}

	var allowlist map[string]bool
	if len(cfg.EnabledPlugins) > 0 {
		allowlist = map[string]bool{}
		for _, name := range cfg.EnabledPlugins {
			allowlist[name] = true
		}
	}

	out := map[string]Manifest{}
	for name, m := range merged {
		effectiveEnabled := m.Enabled
		if override, ok := cfg.PerPluginEnabled[name]; ok {
			effectiveEnabled = override
		}
		if !effectiveEnabled || denylist[name] {
			continue
		}
		if allowlist != nil && !allowlist[name] {
			continue
		}
		out[name] = m
	}
	return out, nil
}

// ValidateDependencies checks every surviving manifest's hard Dependencies
// are also present in the surviving set.
func ValidateDependencies(manifests map[string]Manifest) error {
	for name, m := range manifests {
		for _, dep := range m.Dependencies {
			if _, ok := manifests[dep]; !ok {
				return fmt.Errorf("plugin %q: missing required dependency %q", name, dep)
			}
		}
	}
	return nil
}

// ValidateFormatAdapters checks every surviving manifest's
// RequiredFormatAdapters are provided by some surviving manifest's
// FormatAdapters.
func ValidateFormatAdapters(manifests map[string]Manifest) error {
	provided := map[string]bool{}
	for _, m := range manifests {
		for _, fa := range m.FormatAdapters {
			provided[fa] = true
		}
	}
	for name, m := range manifests {
		for _, req := range m.RequiredFormatAdapters {
			if !provided[req] {
				return fmt.Errorf("plugin %q: required format adapter %q is not provided by any enabled plugin", name, req)
			}
		}
	}
	return nil
}
