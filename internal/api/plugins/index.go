// index.go serves the release index document. The document is pre-generated by
// the publish pipeline; this handler streams it from storage, rebuilding it
// on demand only when it has never been written.
package plugins

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/marketplace"
	"github.com/plugin-marketplace/plugin-marketplace/internal/storage"
)

// @Summary      Release index
// @Description  Returns the marketplace.json release index listing every published plugin at its latest version.
// @Tags         Plugins
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /marketplace.json [get]
// IndexHandler serves the release index document
// Implements: GET /marketplace.json
func IndexHandler(store storage.Storage, builder *marketplace.Builder, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		filename := cfg.Registry.IndexFilename

		exists, err := store.Exists(c.Request.Context(), filename)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read release index"})
			return
		}
		if !exists {
			// First request before any publish: generate an empty index.
			if err := builder.Rebuild(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate release index"})
				return
			}
		}

		reader, err := store.Download(c.Request.Context(), filename)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read release index"})
			return
		}
		defer reader.Close()

		data, err := io.ReadAll(reader)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read release index"})
			return
		}

		c.Data(http.StatusOK, "application/json", data)
	}
}
