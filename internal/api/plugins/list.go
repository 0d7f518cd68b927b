// list.go implements the public plugin listing and search endpoint plus the
// authenticated "my plugins" view.
package plugins

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
	"github.com/plugin-marketplace/plugin-marketplace/internal/middleware"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// pluginSummary is the JSON shape shared by list, mine, and detail responses.
type pluginSummary struct {
	Name          string                  `json:"name"`
	DisplayName   string                  `json:"display_name"`
	Description   string                  `json:"description"`
	Author        string                  `json:"author"`
	IsPublished   bool                    `json:"is_published"`
	LatestVersion string                  `json:"latest_version,omitempty"`
	Components    *models.ComponentCounts `json:"components,omitempty"`
	UpdatedAt     string                  `json:"updated_at"`
}

// @Summary      List plugins
// @Description  Lists published plugins with optional free-text search and author filter.
// @Tags         Plugins
// @Produce      json
// @Param        q        query  string  false  "Free-text search over name and description"
// @Param        author   query  string  false  "Filter by author username"
// @Param        page     query  int     false  "Page number (1-based)"
// @Param        per_page query  int     false  "Page size (max 100)"
// @Success      200  {object}  map[string]interface{}  "plugins, total, page, per_page"
// @Router       /plugins [get]
// ListHandler handles plugin search requests
// Implements: GET /plugins
func ListHandler(pluginRepo *repositories.PluginRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		search := c.Query("q")
		author := c.Query("author")

		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
		if err != nil || perPage < 1 {
			perPage = defaultPerPage
		}
		if perPage > maxPerPage {
			perPage = maxPerPage
		}

		results, total, err := pluginRepo.SearchPlugins(c.Request.Context(), search, author, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search plugins"})
			return
		}

		summaries := make([]pluginSummary, 0, len(results))
		for _, p := range results {
			summaries = append(summaries, summarize(c, pluginRepo, p))
		}

		c.JSON(http.StatusOK, gin.H{
			"plugins":  summaries,
			"total":    total,
			"page":     page,
			"per_page": perPage,
		})
	}
}

// @Summary      List own plugins
// @Description  Lists all plugins owned by the authenticated author, including unpublished ones.
// @Tags         Plugins
// @Security     Bearer
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "plugins"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Router       /plugins/mine [get]
// MineHandler lists the authenticated user's plugins
// Implements: GET /plugins/mine
func MineHandler(pluginRepo *repositories.PluginRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		results, err := pluginRepo.ListByAuthor(c.Request.Context(), user.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list plugins"})
			return
		}

		summaries := make([]pluginSummary, 0, len(results))
		for _, p := range results {
			summaries = append(summaries, summarize(c, pluginRepo, p))
		}

		c.JSON(http.StatusOK, gin.H{"plugins": summaries})
	}
}

// summarize builds the list-level view of a plugin, attaching latest-version
// info when one exists.
func summarize(c *gin.Context, pluginRepo *repositories.PluginRepository, p *models.Plugin) pluginSummary {
	author := ""
	if p.AuthorName != nil {
		author = *p.AuthorName
	}

	s := pluginSummary{
		Name:        p.Name,
		DisplayName: p.DisplayName,
		Description: p.Description,
		Author:      author,
		IsPublished: p.IsPublished,
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}

	latest, err := pluginRepo.GetLatestVersion(c.Request.Context(), p.ID)
	if err == nil && latest != nil {
		s.LatestVersion = latest.Version
		components := latest.Metadata.Components
		s.Components = &components
	}

	return s
}
