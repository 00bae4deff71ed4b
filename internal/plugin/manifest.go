// Package plugin implements manifest discovery and the plugin registry:
// provider and system plugins are process-local objects instantiated from a
// Manifest, contributing adapters, routers, hooks, and scheduled tasks to
// the running proxy.
package plugin

// Kind distinguishes a provider plugin (contributes an adapter, routers,
// format adapters, credentials) from a system plugin (hooks and tasks only).
type Kind string

const (
	KindProvider Kind = "provider"
	KindSystem   Kind = "system"
)

// Source records where a Manifest came from, since filesystem discovery
// overrides an entry-point manifest of the same name.
type Source int

const (
	SourceEntryPoint Source = iota
	SourceFilesystem
)

// Manifest declares one plugin's identity, dependency requirements, and the
// format-adapter contract it provides or consumes.
type Manifest struct {
	Name string
	Kind Kind

	// Dependencies are hard requirements: a missing one aborts loading.
	Dependencies []string
	// OptionalRequires are soft requirements: the plugin must function
	// without them.
	OptionalRequires []string

	// FormatAdapters are translations this plugin contributes to the
	// registry (e.g. "claude_api:anthropic").
	FormatAdapters []string
	// RequiredFormatAdapters are translations this plugin consumes but does
	// not provide; startup fails if none of the loaded plugins provide them.
	RequiredFormatAdapters []string

	// Enabled is the plugin's own declared default; a per-plugin
	// "enabled: false" in deployment config overrides this to disabled
	// regardless of manifest origin (see Config.PerPluginEnabled).
	Enabled bool

	Source Source
}
