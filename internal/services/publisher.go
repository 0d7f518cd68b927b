// Package services implements higher-level business logic that coordinates
// across repositories, storage, and the release index. The publisher runs the
// whole upload pipeline: archive validation, metadata extraction, archive
// storage, the version ledger transaction, and index regeneration.
package services

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/marketplace"
	"github.com/plugin-marketplace/plugin-marketplace/internal/storage"
	"github.com/plugin-marketplace/plugin-marketplace/internal/telemetry"
	"github.com/plugin-marketplace/plugin-marketplace/internal/validation"
)

// Publisher orchestrates plugin publication and visibility changes.
type Publisher struct {
	plugins *repositories.PluginRepository
	store   storage.Storage
	index   *marketplace.Builder
}

// NewPublisher creates a new publisher
func NewPublisher(plugins *repositories.PluginRepository, store storage.Storage, index *marketplace.Builder) *Publisher {
	return &Publisher{plugins: plugins, store: store, index: index}
}

// PublishResult is the outcome of a successful upload.
type PublishResult struct {
	Plugin  *models.Plugin
	Version *models.PluginVersion
}

// Publish runs the upload pipeline for one archive on behalf of author.
// Validation failures and ordering violations return *validation.UploadError;
// the caller maps those to HTTP responses. On success the release index is
// regenerated; an index failure is logged but does not fail the upload, since
// the ledger commit is the source of truth.
func (p *Publisher) Publish(ctx context.Context, author *models.User, archive []byte) (*PublishResult, error) {
	start := time.Now()

	result, err := p.publish(ctx, author, archive)
	if err != nil {
		telemetry.PluginUploadsTotal.WithLabelValues(uploadResultLabel(err)).Inc()
		return nil, err
	}

	telemetry.PluginUploadsTotal.WithLabelValues("accepted").Inc()
	telemetry.PluginUploadDuration.Observe(time.Since(start).Seconds())

	if err := p.index.Rebuild(ctx); err != nil {
		slog.Warn("release index regeneration failed after publish",
			"plugin", result.Plugin.Name,
			"version", result.Version.Version,
			"error", err)
	}

	return result, nil
}

func (p *Publisher) publish(ctx context.Context, author *models.User, archive []byte) (*PublishResult, error) {
	manifest, err := validation.ValidateArchive(archive)
	if err != nil {
		return nil, err
	}

	// Re-check ordering before touching storage so a duplicate upload cannot
	// overwrite the immutable archive already stored for that version. The
	// ledger transaction below remains the authoritative check.
	if err := p.precheckOrder(ctx, author, manifest); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, validation.NewUploadError(validation.KindMalformedArchive,
			"Uploaded file is not a valid ZIP archive.", err)
	}

	readme, err := validation.ExtractReadme(zr)
	if err != nil {
		return nil, validation.NewUploadError(validation.KindMalformedArchive,
			"Uploaded file is corrupted: the README entry cannot be read.", err)
	}

	components := validation.CountComponents(zr)

	archivePath := fmt.Sprintf("archives/%s/%s/%s.zip", author.Username, manifest.Name, manifest.Version)
	stored, err := p.store.Upload(ctx, archivePath, bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, validation.NewUploadError(validation.KindStorageError,
			"Failed to store the plugin archive. Please try again.", err)
	}

	version := &models.PluginVersion{
		Version:   manifest.Version,
		FilePath:  stored.Path,
		Checksum:  stored.Checksum,
		SizeBytes: stored.Size,
		Metadata: models.VersionMetadata{
			Name:        manifest.Name,
			DisplayName: manifest.DisplayName,
			Description: manifest.Description,
			Version:     manifest.Version,
			Author:      manifest.Author,
			Components:  components,
		},
	}
	if readme != "" {
		version.Readme = &readme
	}

	plugin, err := p.plugins.PublishVersion(ctx, author.ID, version)
	if err != nil {
		// A concurrent upload of the same version owns the stored path now;
		// otherwise the orphaned archive is removed.
		if !validation.IsKind(err, validation.KindDuplicateVersion) {
			if delErr := p.store.Delete(ctx, stored.Path); delErr != nil {
				slog.Warn("failed to clean up archive after rejected publish",
					"path", stored.Path, "error", delErr)
			}
		}
		return nil, err
	}

	slog.Info("plugin version published",
		"author", author.Username,
		"plugin", plugin.Name,
		"version", version.Version,
		"size_bytes", version.SizeBytes)

	return &PublishResult{Plugin: plugin, Version: version}, nil
}

// precheckOrder rejects duplicate and non-increasing versions before the
// archive is written to storage.
func (p *Publisher) precheckOrder(ctx context.Context, author *models.User, manifest *validation.Manifest) error {
	plugin, err := p.plugins.GetPlugin(ctx, author.Username, manifest.Name)
	if err != nil {
		return fmt.Errorf("failed to look up plugin: %w", err)
	}
	if plugin == nil {
		return nil // first upload
	}

	latest, err := p.plugins.GetLatestVersion(ctx, plugin.ID)
	if err != nil {
		return fmt.Errorf("failed to look up latest version: %w", err)
	}
	if latest == nil {
		return nil
	}

	cmp, err := validation.CompareVersions(manifest.Version, latest.Version)
	if err != nil {
		return fmt.Errorf("failed to compare versions: %w", err)
	}
	switch {
	case cmp == 0:
		return validation.NewUploadError(validation.KindDuplicateVersion,
			fmt.Sprintf("Version %s already exists. Use a higher version number.", manifest.Version), nil)
	case cmp < 0:
		return validation.NewUploadError(validation.KindVersionNotHigher,
			fmt.Sprintf("Version %s is not higher than the current latest version %s. Versions must be strictly increasing.", manifest.Version, latest.Version), nil)
	}

	return nil
}

// SetPublished flips a plugin's marketplace visibility and regenerates the
// release index. As with publishing, an index failure is logged, not fatal.
func (p *Publisher) SetPublished(ctx context.Context, pluginID string, published bool) error {
	if err := p.plugins.SetPublished(ctx, pluginID, published); err != nil {
		return err
	}

	if err := p.index.Rebuild(ctx); err != nil {
		slog.Warn("release index regeneration failed after visibility change",
			"plugin_id", pluginID, "published", published, "error", err)
	}

	return nil
}

// uploadResultLabel maps a pipeline error to its metric label.
func uploadResultLabel(err error) string {
	if ue, ok := validation.AsUploadError(err); ok {
		return string(ue.Kind)
	}
	return "internal_error"
}
