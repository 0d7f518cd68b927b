// Package marketplace builds the release index document (marketplace.json)
// that installer clients consume. The index is regenerated in full from the
// database after every publish-affecting operation and written atomically to
// the storage root, so HTTP readers always see a complete document.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/storage"
	"github.com/plugin-marketplace/plugin-marketplace/internal/telemetry"
)

// Index is the top-level release index document.
type Index struct {
	Name     string        `json:"name"`
	Metadata IndexMetadata `json:"metadata"`
	Plugins  []IndexEntry  `json:"plugins"`
}

// IndexMetadata describes the index document itself. Version is the schema
// version of the document, not of any plugin.
type IndexMetadata struct {
	Description string `json:"description"`
	Version     string `json:"version"`
}

// IndexEntry is one published plugin in the release index. Name is globally
// unique: author username and plugin name joined with a hyphen.
type IndexEntry struct {
	Name        string                 `json:"name"`
	DisplayName string                 `json:"displayName"`
	Description string                 `json:"description"`
	Version     string                 `json:"version"`
	Author      string                 `json:"author"`
	DownloadURL string                 `json:"downloadUrl"`
	Homepage    string                 `json:"homepage"`
	Components  models.ComponentCounts `json:"components"`
}

// Builder regenerates the release index from the plugin ledger.
type Builder struct {
	plugins *repositories.PluginRepository
	store   storage.Storage
	cfg     *config.Config
}

// NewBuilder creates a release index builder
func NewBuilder(plugins *repositories.PluginRepository, store storage.Storage, cfg *config.Config) *Builder {
	return &Builder{plugins: plugins, store: store, cfg: cfg}
}

// Build assembles the index document from all published plugins and their
// latest versions. Entries are ordered by author username then plugin name;
// the same ledger state always produces the same document.
func (b *Builder) Build(ctx context.Context) (*Index, error) {
	entries, err := b.plugins.ListPublishedWithLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load published plugins: %w", err)
	}

	baseURL := b.cfg.Server.GetPublicURL()

	index := &Index{
		Name: b.cfg.Registry.Name,
		Metadata: IndexMetadata{
			Description: b.cfg.Registry.Description,
			Version:     b.cfg.Registry.SchemaVersion,
		},
		Plugins: make([]IndexEntry, 0, len(entries)),
	}

	for _, e := range entries {
		author := ""
		if e.Plugin.AuthorName != nil {
			author = *e.Plugin.AuthorName
		}

		index.Plugins = append(index.Plugins, IndexEntry{
			Name:        fmt.Sprintf("%s-%s", author, e.Plugin.Name),
			DisplayName: e.Plugin.DisplayName,
			Description: e.Plugin.Description,
			Version:     e.Latest.Version,
			Author:      author,
			DownloadURL: fmt.Sprintf("%s/plugins/@%s/%s/download/%s", baseURL, author, e.Plugin.Name, e.Latest.Version),
			Homepage:    fmt.Sprintf("%s/plugins/@%s/%s", baseURL, author, e.Plugin.Name),
			Components:  e.Latest.Metadata.Components,
		})
	}

	return index, nil
}

// Rebuild regenerates the index and atomically replaces the stored document.
func (b *Builder) Rebuild(ctx context.Context) error {
	index, err := b.Build(ctx)
	if err != nil {
		telemetry.IndexRegenerationsTotal.WithLabelValues("error").Inc()
		return err
	}

	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		telemetry.IndexRegenerationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to encode release index: %w", err)
	}
	data = append(data, '\n')

	if err := b.store.WriteAtomic(ctx, b.cfg.Registry.IndexFilename, data); err != nil {
		telemetry.IndexRegenerationsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to write release index: %w", err)
	}

	telemetry.IndexRegenerationsTotal.WithLabelValues("ok").Inc()
	telemetry.IndexPluginCount.Set(float64(len(index.Plugins)))

	slog.Debug("release index regenerated",
		"filename", b.cfg.Registry.IndexFilename,
		"plugins", len(index.Plugins))

	return nil
}
