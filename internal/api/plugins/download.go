// download.go implements the plugin archive download endpoint, streaming
// stored ZIP archives back to installer clients.
package plugins

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/storage"
	"github.com/plugin-marketplace/plugin-marketplace/internal/telemetry"
)

// @Summary      Download plugin archive
// @Description  Streams the stored ZIP archive for one plugin version. The version segment accepts "latest".
// @Tags         Plugins
// @Produce      application/zip
// @Param        author   path  string  true  "Author username, @-prefixed"
// @Param        plugin   path  string  true  "Plugin name"
// @Param        version  path  string  true  "Version, or latest"
// @Success      200  {file}  binary
// @Failure      404  {object}  map[string]interface{}  "Plugin or version not found"
// @Router       /plugins/{author}/{plugin}/download/{version} [get]
// DownloadHandler handles plugin archive downloads
// Implements: GET /plugins/@:author/:plugin/download/:version
func DownloadHandler(pluginRepo *repositories.PluginRepository, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		author := authorParam(c)
		name := c.Param("plugin")
		versionStr := c.Param("version")
		if author == "" || name == "" || versionStr == "" {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plugin not found"})
			return
		}

		plugin, err := pluginRepo.GetPlugin(c.Request.Context(), author, name)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up plugin"})
			return
		}
		if plugin == nil || !plugin.IsPublished {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plugin not found"})
			return
		}

		v, err := resolveVersion(c, pluginRepo, plugin.ID, versionStr)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to look up version"})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Version not found"})
			return
		}

		reader, err := store.Download(c.Request.Context(), v.FilePath)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Archive not found in storage"})
			return
		}
		defer reader.Close()

		// the counter is best effort; the download proceeds either way
		if err := pluginRepo.IncrementDownloadCount(c.Request.Context(), v.ID); err != nil {
			slog.Warn("failed to increment download count", "version_id", v.ID, "error", err)
		}
		telemetry.PluginDownloadsTotal.WithLabelValues(author, name).Inc()

		filename := fmt.Sprintf("%s-%s-%s.zip", author, name, v.Version)
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		c.DataFromReader(http.StatusOK, v.SizeBytes, "application/zip", reader, nil)
	}
}

// resolveVersion looks up a specific version, treating "latest" as an alias
// for the version currently flagged is_latest.
func resolveVersion(c *gin.Context, pluginRepo *repositories.PluginRepository, pluginID, version string) (*models.PluginVersion, error) {
	if version == "latest" {
		return pluginRepo.GetLatestVersion(c.Request.Context(), pluginID)
	}
	return pluginRepo.GetVersion(c.Request.Context(), pluginID, version)
}
