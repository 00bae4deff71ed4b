package plugin

import "sync"

// EntryPoint pairs a build-time-registered Manifest with the Factory that
// instantiates it. Go has no safe dynamic code loading equivalent to a
// Python import-by-path plugin system, so "entry-point discovery" here means
// a compile-time table: each provider/system plugin package registers itself
// via RegisterEntryPoint from an init() function in its own package.
type EntryPoint struct {
	Manifest Manifest
	Factory  Factory
}

var (
	entryPointsMu sync.Mutex
	entryPoints   = map[string]EntryPoint{}
)

// RegisterEntryPoint adds a compile-time plugin. Call from an init() in the
// plugin's own package (e.g. internal/providers/claudeapi).
func RegisterEntryPoint(manifest Manifest, factory Factory) {
	entryPointsMu.Lock()
	defer entryPointsMu.Unlock()
	manifest.Source = SourceEntryPoint
	entryPoints[manifest.Name] = EntryPoint{Manifest: manifest, Factory: factory}
}

// entryPointSnapshot returns a copy of the current entry-point table, safe
// to range over without holding the lock.
func entryPointSnapshot() map[string]EntryPoint {
	entryPointsMu.Lock()
	defer entryPointsMu.Unlock()
	out := make(map[string]EntryPoint, len(entryPoints))
	for k, v := range entryPoints {
		out[k] = v
	}
	return out
}
