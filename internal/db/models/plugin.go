// Package models - plugin.go defines the Plugin and PluginVersion models
// representing plugins in the marketplace and their published version metadata.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Plugin represents a plugin in the marketplace. A plugin is owned by exactly
// one author; the (author_id, name) pair is unique. Plugins are never
// physically deleted — unpublishing flips is_published.
type Plugin struct {
	ID          string    `json:"id"`
	AuthorID    string    `json:"author_id"`
	Name        string    `json:"name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	IsPublished bool      `json:"is_published"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	// Joined fields (not stored in plugins table)
	AuthorName *string `json:"author_name,omitempty"` // Username of the author (joined from users table)
}

// PluginVersion represents one immutable archived release of a Plugin.
// The (plugin_id, version) pair is unique and at most one version per plugin
// carries is_latest = true at any time.
type PluginVersion struct {
	ID            string          `json:"id"`
	PluginID      string          `json:"plugin_id"`
	Version       string          `json:"version"`
	FilePath      string          `json:"file_path"`
	Checksum      string          `json:"checksum"`
	SizeBytes     int64           `json:"size_bytes"`
	Readme        *string         `json:"readme,omitempty"`
	Metadata      VersionMetadata `json:"metadata"`
	IsLatest      bool            `json:"is_latest"`
	DownloadCount int64           `json:"download_count"`
	UploadedAt    time.Time       `json:"uploaded_at"`
}

// ComponentCounts holds the number of files discovered under each of the five
// reserved category directories in a plugin archive.
type ComponentCounts struct {
	Commands   int `json:"commands"`
	Agents     int `json:"agents"`
	Skills     int `json:"skills"`
	Hooks      int `json:"hooks"`
	MCPServers int `json:"mcp_servers"`
}

// PluginWithLatest pairs a published plugin with its latest version. Produced
// by the release-index query and by search results that surface version info.
type PluginWithLatest struct {
	Plugin Plugin        `json:"plugin"`
	Latest PluginVersion `json:"latest"`
}

// VersionMetadata is the structured metadata blob stored with each
// PluginVersion: the validated manifest fields merged with the component
// counts computed at upload time. It is persisted as a JSON text column.
type VersionMetadata struct {
	Name        string          `json:"name"`
	DisplayName string          `json:"displayName,omitempty"`
	Description string          `json:"description"`
	Version     string          `json:"version"`
	Author      string          `json:"author,omitempty"`
	Components  ComponentCounts `json:"components"`
}

// Value implements driver.Valuer so the metadata blob round-trips through the
// TEXT column without the repositories handling JSON themselves.
func (m VersionMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal version metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner for the metadata TEXT column.
func (m *VersionMetadata) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into VersionMetadata", src)
	}
}
