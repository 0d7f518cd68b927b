// plugin_repository.go implements PluginRepository, providing database queries
// for plugins and their versions plus the publish transaction that keeps the
// version ledger consistent.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/validation"
)

// PluginRepository handles database operations for plugins and plugin versions
type PluginRepository struct {
	db *sql.DB
}

// NewPluginRepository creates a new plugin repository
func NewPluginRepository(db *sql.DB) *PluginRepository {
	return &PluginRepository{db: db}
}

const pluginColumns = `
	p.id, p.author_id, p.name, p.display_name, p.description,
	p.is_published, p.created_at, p.updated_at, u.username AS author_name
`

const versionColumns = `
	v.id, v.plugin_id, v.version, v.file_path, v.checksum, v.size_bytes,
	v.readme, v.metadata, v.is_latest, v.download_count, v.uploaded_at
`

// GetPlugin retrieves a plugin by author username and plugin name.
// Returns (nil, nil) when not found.
func (r *PluginRepository) GetPlugin(ctx context.Context, authorName, pluginName string) (*models.Plugin, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		WHERE u.username = ? AND p.name = ?
	`, pluginColumns)

	return scanPlugin(r.db.QueryRowContext(ctx, query, authorName, pluginName))
}

// GetPluginByID retrieves a plugin by its UUID. Returns (nil, nil) when not found.
func (r *PluginRepository) GetPluginByID(ctx context.Context, id string) (*models.Plugin, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		WHERE p.id = ?
	`, pluginColumns)

	return scanPlugin(r.db.QueryRowContext(ctx, query, id))
}

// ListByAuthor returns all plugins owned by the given user, including
// unpublished ones, newest first.
func (r *PluginRepository) ListByAuthor(ctx context.Context, authorID string) ([]*models.Plugin, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		WHERE p.author_id = ?
		ORDER BY p.updated_at DESC
	`, pluginColumns)

	rows, err := r.db.QueryContext(ctx, query, authorID)
	if err != nil {
		return nil, fmt.Errorf("failed to list plugins: %w", err)
	}
	defer rows.Close()

	return collectPlugins(rows)
}

// SearchPlugins returns published plugins matching the optional free-text
// query and author filter, with the total match count for pagination.
func (r *PluginRepository) SearchPlugins(ctx context.Context, search, author string, limit, offset int) ([]*models.Plugin, int, error) {
	whereClause := "WHERE p.is_published = 1"
	var args []any

	if search != "" {
		whereClause += " AND (p.name LIKE ? OR p.display_name LIKE ? OR p.description LIKE ?)"
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern, pattern)
	}

	if author != "" {
		whereClause += " AND u.username = ?"
		args = append(args, author)
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*)
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		%s
	`, whereClause)

	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count plugins: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		%s
		ORDER BY p.updated_at DESC
		LIMIT ? OFFSET ?
	`, pluginColumns, whereClause)

	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search plugins: %w", err)
	}
	defer rows.Close()

	plugins, err := collectPlugins(rows)
	if err != nil {
		return nil, 0, err
	}

	return plugins, total, nil
}

// GetLatestVersion returns the version currently flagged is_latest for the
// plugin. Returns (nil, nil) when the plugin has no versions.
func (r *PluginRepository) GetLatestVersion(ctx context.Context, pluginID string) (*models.PluginVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugin_versions v
		WHERE v.plugin_id = ? AND v.is_latest = 1
	`, versionColumns)

	return scanVersion(r.db.QueryRowContext(ctx, query, pluginID))
}

// GetVersion retrieves a specific version of a plugin. Returns (nil, nil) when
// not found.
func (r *PluginRepository) GetVersion(ctx context.Context, pluginID, version string) (*models.PluginVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugin_versions v
		WHERE v.plugin_id = ? AND v.version = ?
	`, versionColumns)

	return scanVersion(r.db.QueryRowContext(ctx, query, pluginID, version))
}

// ListVersions returns all versions of a plugin, newest upload first.
func (r *PluginRepository) ListVersions(ctx context.Context, pluginID string) ([]*models.PluginVersion, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugin_versions v
		WHERE v.plugin_id = ?
		ORDER BY v.uploaded_at DESC
	`, versionColumns)

	rows, err := r.db.QueryContext(ctx, query, pluginID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*models.PluginVersion
	for rows.Next() {
		v := &models.PluginVersion{}
		if err := rows.Scan(
			&v.ID, &v.PluginID, &v.Version, &v.FilePath, &v.Checksum, &v.SizeBytes,
			&v.Readme, &v.Metadata, &v.IsLatest, &v.DownloadCount, &v.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}

	return versions, nil
}

// PublishVersion records a new plugin version in a single transaction:
// find-or-create the plugin row, verify the new version is strictly higher
// than the current latest, clear the previous is_latest flag, insert the new
// version as latest, and refresh the plugin's display metadata.
//
// Ordering violations surface as *validation.UploadError with kind
// version_not_higher or duplicate_version; the UNIQUE(plugin_id, version)
// constraint backstops concurrent uploads of the same version.
func (r *PluginRepository) PublishVersion(ctx context.Context, authorID string, version *models.PluginVersion) (*models.Plugin, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	meta := version.Metadata

	plugin, err := findPluginForAuthorTx(ctx, tx, authorID, meta.Name)
	if err != nil {
		return nil, err
	}

	if plugin == nil {
		plugin = &models.Plugin{
			ID:          uuid.NewString(),
			AuthorID:    authorID,
			Name:        meta.Name,
			DisplayName: displayNameOf(meta),
			Description: meta.Description,
			IsPublished: true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO plugins (id, author_id, name, display_name, description, is_published, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, plugin.ID, plugin.AuthorID, plugin.Name, plugin.DisplayName, plugin.Description,
			plugin.IsPublished, plugin.CreatedAt, plugin.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to create plugin: %w", err)
		}
	} else {
		if err := checkVersionOrder(ctx, tx, plugin.ID, version.Version); err != nil {
			return nil, err
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE plugin_versions SET is_latest = 0 WHERE plugin_id = ? AND is_latest = 1
		`, plugin.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to clear latest flag: %w", err)
		}

		plugin.DisplayName = displayNameOf(meta)
		plugin.Description = meta.Description
		plugin.UpdatedAt = now
		_, err = tx.ExecContext(ctx, `
			UPDATE plugins SET display_name = ?, description = ?, updated_at = ? WHERE id = ?
		`, plugin.DisplayName, plugin.Description, plugin.UpdatedAt, plugin.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update plugin: %w", err)
		}
	}

	version.ID = uuid.NewString()
	version.PluginID = plugin.ID
	version.IsLatest = true
	version.UploadedAt = now

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plugin_versions (id, plugin_id, version, file_path, checksum, size_bytes, readme, metadata, is_latest, download_count, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`, version.ID, version.PluginID, version.Version, version.FilePath, version.Checksum,
		version.SizeBytes, version.Readme, version.Metadata, version.IsLatest, version.UploadedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, validation.NewUploadError(validation.KindDuplicateVersion,
				fmt.Sprintf("Version %s already exists. Use a higher version number.", version.Version), err)
		}
		return nil, fmt.Errorf("failed to insert version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit publish transaction: %w", err)
	}

	return plugin, nil
}

// checkVersionOrder compares the incoming version against the plugin's current
// latest inside the publish transaction.
func checkVersionOrder(ctx context.Context, tx *sql.Tx, pluginID, newVersion string) error {
	var current string
	err := tx.QueryRowContext(ctx, `
		SELECT version FROM plugin_versions WHERE plugin_id = ? AND is_latest = 1
	`, pluginID).Scan(&current)
	if err == sql.ErrNoRows {
		return nil // no versions yet
	}
	if err != nil {
		return fmt.Errorf("failed to read current latest version: %w", err)
	}

	cmp, err := validation.CompareVersions(newVersion, current)
	if err != nil {
		return fmt.Errorf("failed to compare versions: %w", err)
	}
	switch {
	case cmp == 0:
		return validation.NewUploadError(validation.KindDuplicateVersion,
			fmt.Sprintf("Version %s already exists. Use a higher version number.", newVersion), nil)
	case cmp < 0:
		return validation.NewUploadError(validation.KindVersionNotHigher,
			fmt.Sprintf("Version %s is not higher than the current latest version %s. Versions must be strictly increasing.", newVersion, current), nil)
	}

	return nil
}

func findPluginForAuthorTx(ctx context.Context, tx *sql.Tx, authorID, name string) (*models.Plugin, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		WHERE p.author_id = ? AND p.name = ?
	`, pluginColumns)

	return scanPlugin(tx.QueryRowContext(ctx, query, authorID, name))
}

func displayNameOf(meta models.VersionMetadata) string {
	if meta.DisplayName != "" {
		return meta.DisplayName
	}
	return meta.Name
}

// SetPublished flips a plugin's visibility. Unpublished plugins keep their
// rows and versions; they simply disappear from search and the release index.
func (r *PluginRepository) SetPublished(ctx context.Context, pluginID string, published bool) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE plugins SET is_published = ?, updated_at = ? WHERE id = ?
	`, published, time.Now().UTC(), pluginID)
	if err != nil {
		return fmt.Errorf("failed to update publish state: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check publish state update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("plugin not found: %s", pluginID)
	}

	return nil
}

// IncrementDownloadCount bumps the download counter for a version
func (r *PluginRepository) IncrementDownloadCount(ctx context.Context, versionID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE plugin_versions SET download_count = download_count + 1 WHERE id = ?
	`, versionID)
	if err != nil {
		return fmt.Errorf("failed to increment download count: %w", err)
	}

	return nil
}

// ListPublishedWithLatest returns every published plugin together with its
// latest version, ordered by author username then plugin name. This is the
// source query for release index generation, so the ordering must be stable.
func (r *PluginRepository) ListPublishedWithLatest(ctx context.Context) ([]*models.PluginWithLatest, error) {
	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM plugins p
		JOIN users u ON p.author_id = u.id
		JOIN plugin_versions v ON v.plugin_id = p.id AND v.is_latest = 1
		WHERE p.is_published = 1
		ORDER BY u.username ASC, p.name ASC
	`, pluginColumns, versionColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list published plugins: %w", err)
	}
	defer rows.Close()

	var results []*models.PluginWithLatest
	for rows.Next() {
		entry := &models.PluginWithLatest{}
		p := &entry.Plugin
		v := &entry.Latest
		if err := rows.Scan(
			&p.ID, &p.AuthorID, &p.Name, &p.DisplayName, &p.Description,
			&p.IsPublished, &p.CreatedAt, &p.UpdatedAt, &p.AuthorName,
			&v.ID, &v.PluginID, &v.Version, &v.FilePath, &v.Checksum, &v.SizeBytes,
			&v.Readme, &v.Metadata, &v.IsLatest, &v.DownloadCount, &v.UploadedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan published plugin: %w", err)
		}
		results = append(results, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating published plugins: %w", err)
	}

	return results, nil
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlugin(row rowScanner) (*models.Plugin, error) {
	p := &models.Plugin{}
	err := row.Scan(
		&p.ID, &p.AuthorID, &p.Name, &p.DisplayName, &p.Description,
		&p.IsPublished, &p.CreatedAt, &p.UpdatedAt, &p.AuthorName,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get plugin: %w", err)
	}
	return p, nil
}

func scanVersion(row rowScanner) (*models.PluginVersion, error) {
	v := &models.PluginVersion{}
	err := row.Scan(
		&v.ID, &v.PluginID, &v.Version, &v.FilePath, &v.Checksum, &v.SizeBytes,
		&v.Readme, &v.Metadata, &v.IsLatest, &v.DownloadCount, &v.UploadedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get version: %w", err)
	}
	return v, nil
}

func collectPlugins(rows *sql.Rows) ([]*models.Plugin, error) {
	var plugins []*models.Plugin
	for rows.Next() {
		p := &models.Plugin{}
		if err := rows.Scan(
			&p.ID, &p.AuthorID, &p.Name, &p.DisplayName, &p.Description,
			&p.IsPublished, &p.CreatedAt, &p.UpdatedAt, &p.AuthorName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plugin: %w", err)
		}
		plugins = append(plugins, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plugins: %w", err)
	}
	return plugins, nil
}
