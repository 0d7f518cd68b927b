// detail.go implements the public plugin detail endpoint: full metadata for
// one plugin, its version history, and installation commands.
package plugins

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
)

// authorParam extracts the author username from the @-prefixed path segment
// (e.g. "@alice" → "alice"). Returns "" when the prefix is missing.
func authorParam(c *gin.Context) string {
	author := c.Param("author")
	if !strings.HasPrefix(author, "@") {
		return ""
	}
	return strings.TrimPrefix(author, "@")
}

// @Summary      Plugin detail
// @Description  Returns full metadata for one published plugin: latest version, component counts, README, version history, and installation commands.
// @Tags         Plugins
// @Produce      json
// @Param        author  path  string  true  "Author username, @-prefixed"
// @Param        plugin  path  string  true  "Plugin name"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]interface{}  "Plugin not found"
// @Router       /plugins/{author}/{plugin} [get]
// DetailHandler handles plugin detail requests
// Implements: GET /plugins/@:author/:plugin
func DetailHandler(pluginRepo *repositories.PluginRepository, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		author := authorParam(c)
		name := c.Param("plugin")
		if author == "" || name == "" {
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

		versions, err := pluginRepo.ListVersions(c.Request.Context(), plugin.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list versions"})
			return
		}

		versionViews := make([]gin.H, 0, len(versions))
		var latest gin.H
		var readme string
		for _, v := range versions {
			view := gin.H{
				"version":        v.Version,
				"size_bytes":     v.SizeBytes,
				"checksum":       v.Checksum,
				"download_count": v.DownloadCount,
				"is_latest":      v.IsLatest,
				"uploaded_at":    v.UploadedAt.UTC().Format(time.RFC3339),
			}
			versionViews = append(versionViews, view)
			if v.IsLatest {
				latest = gin.H{
					"version":    v.Version,
					"components": v.Metadata.Components,
				}
				if v.Readme != nil {
					readme = *v.Readme
				}
			}
		}

		baseURL := cfg.Server.GetPublicURL()
		response := gin.H{
			"name":         plugin.Name,
			"display_name": plugin.DisplayName,
			"description":  plugin.Description,
			"author":       author,
			"created_at":   plugin.CreatedAt.UTC().Format(time.RFC3339),
			"updated_at":   plugin.UpdatedAt.UTC().Format(time.RFC3339),
			"versions":     versionViews,
			"homepage":     fmt.Sprintf("%s/plugins/@%s/%s", baseURL, author, plugin.Name),
			"marketplace_command": fmt.Sprintf("/plugin marketplace add %s/%s",
				baseURL, cfg.Registry.IndexFilename),
			"install_command": fmt.Sprintf("/plugin install %s-%s", author, plugin.Name),
		}
		if latest != nil {
			response["latest_version"] = latest
			response["download_url"] = fmt.Sprintf("%s/plugins/@%s/%s/download/%s",
				baseURL, author, plugin.Name, latest["version"])
		}
		if readme != "" {
			response["readme"] = readme
		}

		c.JSON(http.StatusOK, response)
	}
}
