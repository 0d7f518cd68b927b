// moderation.go implements plugin visibility endpoints. Unpublishing removes a
// plugin from search and the release index without deleting its rows or
// archives; republishing restores it.
package plugins

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/middleware"
	"github.com/plugin-marketplace/plugin-marketplace/internal/services"
)

// @Summary      Unpublish plugin
// @Description  Hides a plugin from search, detail, download, and the release index. Only the owning author may unpublish.
// @Tags         Plugins
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "published: false"
// @Failure      403  {object}  map[string]interface{}  "Not the plugin owner"
// @Failure      404  {object}  map[string]interface{}  "Plugin not found"
// @Router       /plugins/{author}/{plugin}/unpublish [post]
// UnpublishHandler handles plugin unpublish requests
// Implements: POST /plugins/@:author/:plugin/unpublish
func UnpublishHandler(pluginRepo *repositories.PluginRepository, publisher *services.Publisher) gin.HandlerFunc {
	return setPublishedHandler(pluginRepo, publisher, false)
}

// @Summary      Republish plugin
// @Description  Restores an unpublished plugin to public visibility and the release index.
// @Tags         Plugins
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "published: true"
// @Failure      403  {object}  map[string]interface{}  "Not the plugin owner"
// @Failure      404  {object}  map[string]interface{}  "Plugin not found"
// @Router       /plugins/{author}/{plugin}/republish [post]
// RepublishHandler handles plugin republish requests
// Implements: POST /plugins/@:author/:plugin/republish
func RepublishHandler(pluginRepo *repositories.PluginRepository, publisher *services.Publisher) gin.HandlerFunc {
	return setPublishedHandler(pluginRepo, publisher, true)
}

func setPublishedHandler(pluginRepo *repositories.PluginRepository, publisher *services.Publisher, published bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

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
		if plugin == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Plugin not found"})
			return
		}

		if plugin.AuthorID != user.ID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only the plugin owner can change its visibility"})
			return
		}

		if err := publisher.SetPublished(c.Request.Context(), plugin.ID, published); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update plugin visibility"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"plugin":    plugin.Name,
			"published": published,
		})
	}
}
