package plugin

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifestFile(t *testing.T, dir, pluginDir string, fm map[string]any) {
	t.Helper()
	full := filepath.Join(dir, pluginDir)
	require.NoError(t, os.MkdirAll(full, 0o755))
	data, err := json.Marshal(fm)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(full, "manifest.json"), data, 0o644))
}

func TestDiscoverFilesystem_SkipsDirsWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "empty"), 0o755))
	writeManifestFile(t, dir, "present", map[string]any{"name": "present-plugin"})

	found, err := DiscoverFilesystem(dir)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Contains(t, found, "present-plugin")
	assert.Equal(t, SourceFilesystem, found["present-plugin"].Source)
}

func TestDiscoverFilesystem_MissingNameErrors(t *testing.T) {
	dir := t.TempDir()
	writeManifestFile(t, dir, "broken", map[string]any{"kind": "provider"})

	_, err := DiscoverFilesystem(dir)
	assert.Error(t, err)
}

func TestDiscoverFilesystem_NonexistentDirIsNotAnError(t *testing.T) {
	found, err := DiscoverFilesystem(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestResolve_FilesystemOverridesEntryPointOnNameCollision(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "shared", Kind: KindProvider, Enabled: true}, func(ctx *PluginContext) (*Runtime, error) {
		return &Runtime{Name: "shared"}, nil
	})

	dir := t.TempDir()
	writeManifestFile(t, dir, "shared-fs", map[string]any{"name": "shared", "kind": "system"})

	manifests, err := Resolve(Config{PluginDirs: []string{dir}})
	require.NoError(t, err)
	require.Contains(t, manifests, "shared")
	assert.Equal(t, KindSystem, manifests["shared"].Kind)
	assert.Equal(t, SourceFilesystem, manifests["shared"].Source)
}

func TestResolve_EnabledPluginsAllowlist(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "a", Enabled: true}, noopFactory)
	RegisterEntryPoint(Manifest{Name: "b", Enabled: true}, noopFactory)

	manifests, err := Resolve(Config{EnabledPlugins: []string{"a"}})
	require.NoError(t, err)
	assert.Contains(t, manifests, "a")
	assert.NotContains(t, manifests, "b")
}

func TestResolve_DisabledPluginsDenylist(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "a", Enabled: true}, noopFactory)
	RegisterEntryPoint(Manifest{Name: "b", Enabled: true}, noopFactory)

	manifests, err := Resolve(Config{DisabledPlugins: []string{"b"}})
	require.NoError(t, err)
	assert.Contains(t, manifests, "a")
	assert.NotContains(t, manifests, "b")
}

func TestResolve_PerPluginEnabledOverridesManifestDefault(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "a", Enabled: false}, noopFactory)

	manifests, err := Resolve(Config{PerPluginEnabled: map[string]bool{"a": true}})
	require.NoError(t, err)
	assert.Contains(t, manifests, "a")
}

func TestResolve_ManifestDisabledByDefaultIsExcluded(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "a", Enabled: false}, noopFactory)

	manifests, err := Resolve(Config{})
	require.NoError(t, err)
	assert.NotContains(t, manifests, "a")
}

func TestValidateDependencies_MissingHardDependencyErrors(t *testing.T) {
	manifests := map[string]Manifest{
		"a": {Name: "a", Dependencies: []string{"b"}},
	}
	err := ValidateDependencies(manifests)
	assert.Error(t, err)
}

func TestValidateDependencies_SatisfiedDependencyPasses(t *testing.T) {
	manifests := map[string]Manifest{
		"a": {Name: "a", Dependencies: []string{"b"}},
		"b": {Name: "b"},
	}
	assert.NoError(t, ValidateDependencies(manifests))
}

func TestValidateFormatAdapters_MissingRequiredAdapterErrors(t *testing.T) {
	manifests := map[string]Manifest{
		"a": {Name: "a", RequiredFormatAdapters: []string{"openai:claude_api"}},
	}
	assert.Error(t, ValidateFormatAdapters(manifests))
}

func TestValidateFormatAdapters_ProvidedBySiblingPasses(t *testing.T) {
	manifests := map[string]Manifest{
		"a": {Name: "a", RequiredFormatAdapters: []string{"openai:claude_api"}},
		"b": {Name: "b", FormatAdapters: []string{"openai:claude_api"}},
	}
	assert.NoError(t, ValidateFormatAdapters(manifests))
}

func TestRegistry_LoadOrdersDependenciesBeforeDependents(t *testing.T) {
	resetEntryPoints(t)
	var loadOrder []string
	RegisterEntryPoint(Manifest{Name: "base"}, func(ctx *PluginContext) (*Runtime, error) {
		loadOrder = append(loadOrder, "base")
		return &Runtime{Name: "base"}, nil
	})
	RegisterEntryPoint(Manifest{Name: "dependent", Dependencies: []string{"base"}}, func(ctx *PluginContext) (*Runtime, error) {
		loadOrder = append(loadOrder, "dependent")
		return &Runtime{Name: "dependent"}, nil
	})

	manifests := map[string]Manifest{
		"base":      {Name: "base"},
		"dependent": {Name: "dependent", Dependencies: []string{"base"}},
	}

	reg := NewRegistry()
	require.NoError(t, reg.Load(PluginContext{}, manifests))
	assert.Equal(t, []string{"base", "dependent"}, loadOrder)
	assert.NotNil(t, reg.Get("base"))
	assert.NotNil(t, reg.Get("dependent"))
	assert.ElementsMatch(t, []string{"base", "dependent"}, reg.List())
}

func TestRegistry_LoadDetectsDependencyCycle(t *testing.T) {
	resetEntryPoints(t)
	RegisterEntryPoint(Manifest{Name: "a", Dependencies: []string{"b"}}, noopFactory)
	RegisterEntryPoint(Manifest{Name: "b", Dependencies: []string{"a"}}, noopFactory)

	manifests := map[string]Manifest{
		"a": {Name: "a", Dependencies: []string{"b"}},
		"b": {Name: "b", Dependencies: []string{"a"}},
	}

	reg := NewRegistry()
	err := reg.Load(PluginContext{}, manifests)
	assert.Error(t, err)
}

func TestRegistry_LoadMissingFactoryErrors(t *testing.T) {
	resetEntryPoints(t)
	manifests := map[string]Manifest{"ghost": {Name: "ghost"}}

	reg := NewRegistry()
	err := reg.Load(PluginContext{}, manifests)
	assert.Error(t, err)
}

func noopFactory(ctx *PluginContext) (*Runtime, error) {
	return &Runtime{Name: "noop"}, nil
}

// resetEntryPoints clears the package-level entry-point table around a test,
// since RegisterEntryPoint is normally called once at process init.
func resetEntryPoints(t *testing.T) {
	t.Helper()
	entryPointsMu.Lock()
	saved := entryPoints
	entryPoints = map[string]EntryPoint{}
	entryPointsMu.Unlock()
	t.Cleanup(func() {
		entryPointsMu.Lock()
		entryPoints = saved
		entryPointsMu.Unlock()
	})
}
