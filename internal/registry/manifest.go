package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/xeipuuv/gojsonschema"
)

// Manifest describes one plugin directory's entry point
// (spec §6, "Plugin discovery is filesystem-based").
type Manifest struct {
	// Name identifies the constructor registered via
	// RegisterPluginConstructor — the in-process equivalent of the
	// original's "entry point".
	Name string `json:"name"`
	// Schemes this plugin module can serve, a subset it advertises
	// independent of what the caller asked for.
	Schemes []string `json:"schemes"`
}

// manifestSchema is the JSON Schema every discovered manifest.json must
// satisfy before its constructor is trusted, adapted from the teacher's
// SchemaValidator.ValidateArgument (schema_validation.go), which resolves
// and validates a JSON value against a Draft-7 schema before the value is
// allowed to flow further into the system.
const manifestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["name", "schemes"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"schemes": {
			"type": "array",
			"items": {"type": "string", "minLength": 1},
			"minItems": 1
		}
	}
}`

var manifestSchemaLoader = gojsonschema.NewStringLoader(manifestSchema)

// loadManifest reads and schema-validates dir/manifest.json.
func loadManifest(dir string) (Manifest, error) {
	path := filepath.Join(dir, "manifest.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("reading manifest: %w", err)
	}

	result, err := gojsonschema.Validate(manifestSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Manifest{}, fmt.Errorf("validating manifest schema: %w", err)
	}
	if !result.Valid() {
		return Manifest{}, fmt.Errorf("manifest %s failed schema validation: %v", path, result.Errors())
	}

	var m Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return Manifest{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return m, nil
}

// candidateDirs lists the plugin candidates directly under root: the
// directories whose base name doesn't begin with underscore
// (spec §6, "Plugin discovery is filesystem-based"). Plain files directly
// under root are not candidates and are skipped.
func candidateDirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading plugin root %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		name := e.Name()
		if len(name) == 0 || name[0] == '_' {
			continue
		}
		if !e.IsDir() {
			continue
		}
		dirs = append(dirs, filepath.Join(root, name))
	}
	return dirs, nil
}
