// upload.go implements the plugin archive upload endpoint: the entry point of
// the publication pipeline.
package plugins

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/middleware"
	"github.com/plugin-marketplace/plugin-marketplace/internal/services"
	"github.com/plugin-marketplace/plugin-marketplace/internal/validation"
)

// @Summary      Upload plugin version
// @Description  Upload a new plugin version as a ZIP archive. Creates the plugin on first upload; subsequent uploads must carry a strictly higher version.
// @Tags         Plugins
// @Security     Bearer
// @Accept       multipart/form-data
// @Produce      json
// @Param        file  formData  file  true  "Plugin archive (.zip)"
// @Success      201  {object}  map[string]interface{}  "plugin, version, checksum, size_bytes, components"
// @Failure      400  {object}  map[string]interface{}  "Invalid archive or manifest"
// @Failure      401  {object}  map[string]interface{}  "Unauthorized"
// @Failure      409  {object}  map[string]interface{}  "Version conflict"
// @Failure      413  {object}  map[string]interface{}  "Archive too large"
// @Failure      500  {object}  map[string]interface{}  "Internal server error"
// @Router       /plugins/upload [post]
// UploadHandler handles plugin upload requests
// Implements: POST /plugins/upload
func UploadHandler(publisher *services.Publisher, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.CurrentUser(c)
		if user == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		// Cap the request body at the archive limit plus multipart framing
		// overhead so oversized uploads are cut off instead of buffered.
		maxBytes := cfg.Upload.MaxArchiveBytes
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes+64*1024)

		file, _, err := c.Request.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{
					"error": fmt.Sprintf("Archive exceeds the maximum size of %d bytes", maxBytes),
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid file upload"})
			return
		}
		defer file.Close()

		buf := &bytes.Buffer{}
		size, err := io.Copy(buf, io.LimitReader(file, maxBytes+1))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read uploaded file"})
			return
		}
		if size > maxBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": fmt.Sprintf("Archive exceeds the maximum size of %d bytes", maxBytes),
			})
			return
		}

		result, err := publisher.Publish(c.Request.Context(), user, buf.Bytes())
		if err != nil {
			writeUploadError(c, err)
			return
		}

		baseURL := cfg.Server.GetPublicURL()
		c.JSON(http.StatusCreated, gin.H{
			"plugin":       result.Plugin.Name,
			"display_name": result.Plugin.DisplayName,
			"version":      result.Version.Version,
			"checksum":     result.Version.Checksum,
			"size_bytes":   result.Version.SizeBytes,
			"components":   result.Version.Metadata.Components,
			"download_url": fmt.Sprintf("%s/plugins/@%s/%s/download/%s",
				baseURL, user.Username, result.Plugin.Name, result.Version.Version),
		})
	}
}

// writeUploadError maps pipeline errors to HTTP responses. Validation failures
// are 400s, ordering conflicts 409s, everything else a 500.
func writeUploadError(c *gin.Context, err error) {
	ue, ok := validation.AsUploadError(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Upload failed"})
		return
	}

	status := http.StatusBadRequest
	switch ue.Kind {
	case validation.KindVersionNotHigher, validation.KindDuplicateVersion:
		status = http.StatusConflict
	case validation.KindStorageError:
		status = http.StatusInternalServerError
	}

	c.JSON(status, gin.H{
		"error": ue.Message,
		"kind":  string(ue.Kind),
	})
}
