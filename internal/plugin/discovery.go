package plugin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// fileManifest is the on-disk shape of a plugin manifest file
// (<pluginDir>/manifest.json), covering the declarative fields of Manifest
// that a deployment can override without recompiling.
type fileManifest struct {
	Name                   string   `json:"name"`
	Kind                   string   `json:"kind"`
	Dependencies           []string `json:"dependencies"`
	OptionalRequires       []string `json:"optional_requires"`
	FormatAdapters         []string `json:"format_adapters"`
	RequiredFormatAdapters []string `json:"required_format_adapters"`
	Enabled                *bool    `json:"enabled"`
}

// DiscoverFilesystem scans dir for immediate subdirectories containing a
// manifest.json file. The directory name has no significance beyond
// grouping; the manifest's own "name" field is the plugin's identity.
func DiscoverFilesystem(dir string) (map[string]Manifest, error) {
	out := map[string]Manifest{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("plugin: scan %s: %w", dir, err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifestPath := filepath.Join(dir, entry.Name(), "manifest.json")
		data, err := os.ReadFile(manifestPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("plugin: read %s: %w", manifestPath, err)
		}

		var fm fileManifest
		if err := json.Unmarshal(data, &fm); err != nil {
			return nil, fmt.Errorf("plugin: parse %s: %w", manifestPath, err)
		}
		if fm.Name == "" {
			return nil, fmt.Errorf("plugin: %s: manifest missing \"name\"", manifestPath)
		}

		enabled := true
		if fm.Enabled != nil {
			enabled = *fm.Enabled
		}

		out[fm.Name] = Manifest{
			Name:                   fm.Name,
			Kind:                   Kind(fm.Kind),
			Dependencies:           fm.Dependencies,
			OptionalRequires:       fm.OptionalRequires,
			FormatAdapters:         fm.FormatAdapters,
			RequiredFormatAdapters: fm.RequiredFormatAdapters,
			Enabled:                enabled,
			Source:                 SourceFilesystem,
		}
	}
	return out, nil
}
