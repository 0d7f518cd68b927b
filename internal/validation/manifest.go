// manifest.go defines the plugin manifest structure and its field validation.
// The manifest is schema-checked at the upload boundary; beyond this point the
// rest of the pipeline treats it as trusted, typed data.
package validation

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

const (
	// ManifestDir is the reserved directory at the archive root that holds the manifest
	ManifestDir = ".plugin"
	// ManifestFilename is the fixed manifest filename inside ManifestDir
	ManifestFilename = "plugin.json"
	// ManifestPath is the full required manifest path within the archive
	ManifestPath = ManifestDir + "/" + ManifestFilename
)

// Manifest is the parsed, validated plugin descriptor. Name, Version, and
// Description are guaranteed non-empty after ParseManifest succeeds; Name is
// guaranteed to match namePattern and Version the MAJOR.MINOR.PATCH format.
type Manifest struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	DisplayName string `json:"displayName,omitempty"`
	Author      string `json:"author,omitempty"`
}

// namePattern constrains plugin names to a single safe path segment. The name
// is interpolated into storage paths, download URLs, and the composite index
// identity, so separators, parent references, and leading dots are all
// rejected here, before anything is persisted.
var namePattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// ValidPluginName reports whether name is acceptable as a plugin identifier.
func ValidPluginName(name string) bool {
	return namePattern.MatchString(name)
}

// GetDisplayName returns the display name, falling back to the plugin name
// when the optional displayName field is absent.
func (m *Manifest) GetDisplayName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}

// ParseManifest parses and validates raw manifest bytes. It decodes into a
// generic map first so that a missing field, a non-string value, and an empty
// string are all reported as KindMissingRequiredField naming the field, while
// malformed JSON is reported as KindInvalidManifestSyntax with the parser's
// detail.
func ParseManifest(data []byte) (*Manifest, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, NewUploadError(KindInvalidManifestSyntax,
			fmt.Sprintf("Invalid JSON in %s: %v. Please check your plugin.json syntax.", ManifestPath, err), err)
	}

	var missing []string
	stringField := func(key string) string {
		v, ok := raw[key]
		if !ok {
			missing = append(missing, key)
			return ""
		}
		s, ok := v.(string)
		if !ok || s == "" {
			missing = append(missing, key)
			return ""
		}
		return s
	}

	m := &Manifest{
		Name:        stringField("name"),
		Version:     stringField("version"),
		Description: stringField("description"),
	}
	if len(missing) > 0 {
		return nil, NewUploadError(KindMissingRequiredField,
			fmt.Sprintf("Missing required fields in plugin.json: %s. A valid plugin.json must include non-empty name, version, and description.",
				strings.Join(missing, ", ")), nil)
	}

	// Optional fields are best-effort; a non-string value is simply ignored.
	if s, ok := raw["displayName"].(string); ok {
		m.DisplayName = s
	}
	if s, ok := raw["author"].(string); ok {
		m.Author = s
	}

	if !ValidPluginName(m.Name) {
		return nil, NewUploadError(KindInvalidPluginName,
			fmt.Sprintf("Invalid plugin name '%s'. Names must start with a letter or digit and may contain only letters, digits, dots, hyphens, and underscores.", m.Name), nil)
	}

	if !ValidVersionFormat(m.Version) {
		return nil, NewUploadError(KindInvalidVersionFormat,
			fmt.Sprintf("Invalid version format '%s'. Version must follow semantic versioning (e.g., 1.0.0, 2.1.3).", m.Version), nil)
	}

	return m, nil
}
