package api

import (
	"archive/zip"
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plugin-marketplace/plugin-marketplace/internal/config"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
	"github.com/plugin-marketplace/plugin-marketplace/internal/db/repositories"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestConfig(t *testing.T) *config.Config {
	t.Helper()

	return &config.Config{
		Server: config.ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			BaseURL:   "http://127.0.0.1:8080",
			PublicURL: "https://plugins.example.com",
		},
		Storage: config.StorageConfig{
			DefaultBackend: "local",
			Local:          config.LocalStorageConfig{BasePath: t.TempDir()},
		},
		Registry: config.RegistryConfig{
			Name:          "plugin-marketplace",
			Description:   "Test marketplace",
			SchemaVersion: "1.0.0",
			IndexFilename: "marketplace.json",
		},
		Upload: config.UploadConfig{MaxArchiveBytes: 10 * 1024 * 1024},
		Auth:   config.AuthConfig{TokenHeader: "Authorization"},
	}
}

func newTestServer(t *testing.T) (*gin.Engine, *sql.DB, *config.Config) {
	t.Helper()

	conn, err := sql.Open("sqlite3", "file::memory:?_fk=1")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.RunMigrations(conn, "up"))

	cfg := newTestConfig(t)
	router, bg := NewRouter(cfg, conn)
	t.Cleanup(bg.Shutdown)

	return router, conn, cfg
}

func createUser(t *testing.T, conn *sql.DB, username, token string) *models.User {
	t.Helper()

	user := &models.User{Username: username, APIToken: token}
	require.NoError(t, repositories.NewUserRepository(sqlx.NewDb(conn, "sqlite3")).Create(t.Context(), user))
	return user
}

func buildArchive(t *testing.T, name, version string, extra map[string]string) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)

	manifest := fmt.Sprintf(`{"name": %q, "version": %q, "description": "A test plugin"}`, name, version)
	files := map[string]string{".plugin/plugin.json": manifest}
	for path, content := range extra {
		files[path] = content
	}
	for path, content := range files {
		w, err := zw.Create(path)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func uploadArchive(t *testing.T, router *gin.Engine, token string, archive []byte) *httptest.ResponseRecorder {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	part, err := mw.CreateFormFile("file", "plugin.zip")
	require.NoError(t, err)
	_, err = part.Write(archive)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/plugins/upload", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func doJSON(t *testing.T, router *gin.Engine, method, path, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var parsed map[string]interface{}
	if len(w.Body.Bytes()) > 0 && w.Header().Get("Content-Type") != "application/zip" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed), "body: %s", w.Body.String())
	}
	return w, parsed
}

func TestSystemEndpoints(t *testing.T) {
	router, _, _ := newTestServer(t)

	w, body := doJSON(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", body["status"])

	w, body = doJSON(t, router, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["ready"])

	w, body = doJSON(t, router, http.MethodGet, "/version", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "v1", body["api_version"])
}

func TestUploadAndDiscoveryFlow(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	archive := buildArchive(t, "greeter", "1.0.0", map[string]string{
		"README.md":              "# Greeter\n",
		"commands/hello.md":      "say hello",
		"skills/tidy/SKILL.md":   "tidy things",
		"agents/reviewer.md":     "review code",
		"hooks/pre.json":         "{}",
		"mcp_servers/local.json": "{}",
	})

	w := uploadArchive(t, router, "alice-token", archive)
	require.Equal(t, http.StatusCreated, w.Code, "body: %s", w.Body.String())

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "greeter", created["plugin"])
	assert.Equal(t, "1.0.0", created["version"])
	assert.NotEmpty(t, created["checksum"])
	assert.Equal(t, "https://plugins.example.com/plugins/@alice/greeter/download/1.0.0", created["download_url"])

	// Listing shows the plugin
	w, body := doJSON(t, router, http.MethodGet, "/plugins", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["total"])

	// Detail view
	w, body = doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "greeter", body["name"])
	assert.Equal(t, "alice", body["author"])
	assert.Equal(t, "# Greeter\n", body["readme"])
	assert.Equal(t, "/plugin install alice-greeter", body["install_command"])
	latest, ok := body["latest_version"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "1.0.0", latest["version"])
	components, ok := latest["components"].(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 1, components["commands"])
	assert.EqualValues(t, 1, components["skills"])
	assert.EqualValues(t, 1, components["mcp_servers"])

	// Release index contains the entry
	w, body = doJSON(t, router, http.MethodGet, "/marketplace.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	entries, ok := body["plugins"].([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "alice-greeter", entry["name"])
	assert.Equal(t, "https://plugins.example.com/plugins/@alice/greeter/download/1.0.0", entry["downloadUrl"])

	// Download (latest alias) returns the archive bytes
	req := httptest.NewRequest(http.MethodGet, "/plugins/@alice/greeter/download/latest", nil)
	dw := httptest.NewRecorder()
	router.ServeHTTP(dw, req)
	require.Equal(t, http.StatusOK, dw.Code)
	assert.Equal(t, "application/zip", dw.Header().Get("Content-Type"))
	assert.Contains(t, dw.Header().Get("Content-Disposition"), `alice-greeter-1.0.0.zip`)
	assert.Equal(t, archive, dw.Body.Bytes())

	// Exact-version download works too
	req = httptest.NewRequest(http.MethodGet, "/plugins/@alice/greeter/download/1.0.0", nil)
	dw = httptest.NewRecorder()
	router.ServeHTTP(dw, req)
	assert.Equal(t, http.StatusOK, dw.Code)
}

func TestUploadRejections(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	// No token
	w := uploadArchive(t, router, "", buildArchive(t, "greeter", "1.0.0", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Not a ZIP
	w = uploadArchive(t, router, "alice-token", []byte("not a zip"))
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "malformed_archive", body["kind"])

	// First upload succeeds
	w = uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	// Same version again
	w = uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "duplicate_version", body["kind"])

	// Lower version
	w = uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "0.9.0", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "version_not_higher", body["kind"])
}

func TestUploadRejectsOversizedArchive(t *testing.T) {
	router, conn, cfg := newTestServer(t)
	cfg.Upload.MaxArchiveBytes = 256
	createUser(t, conn, "alice", "alice-token")

	big := buildArchive(t, "greeter", "1.0.0", map[string]string{
		"README.md": string(bytes.Repeat([]byte("x"), 4096)),
	})
	w := uploadArchive(t, router, "alice-token", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestAuthRequired(t *testing.T) {
	router, _, _ := newTestServer(t)

	w, _ := doJSON(t, router, http.MethodGet, "/plugins/mine", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/plugins/mine", "no-such-token")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMineIncludesUnpublished(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	w := uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/plugins/@alice/greeter/unpublish", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)

	// Hidden from public listing and detail
	w, body := doJSON(t, router, http.MethodGet, "/plugins", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, body["total"])

	w, _ = doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Index no longer carries the entry
	w, body = doJSON(t, router, http.MethodGet, "/marketplace.json", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, body["plugins"])

	// Still visible to the owner
	w, body = doJSON(t, router, http.MethodGet, "/plugins/mine", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)
	mine, ok := body["plugins"].([]interface{})
	require.True(t, ok)
	require.Len(t, mine, 1)
	assert.Equal(t, false, mine[0].(map[string]interface{})["is_published"])

	// Republish restores discovery
	w, _ = doJSON(t, router, http.MethodPost, "/plugins/@alice/greeter/republish", "alice-token")
	require.Equal(t, http.StatusOK, w.Code)

	w, body = doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "greeter", body["name"])
}

func TestUnpublishRequiresOwnership(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")
	createUser(t, conn, "mallory", "mallory-token")

	w := uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/plugins/@alice/greeter/unpublish", "mallory-token")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Plugin is still published
	w, _ = doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDownloadUnknownVersion(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	w := uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter/download/9.9.9", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodGet, "/plugins/@alice/nothere/download/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDownloadIncrementsCount(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	w := uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", "1.0.0", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/plugins/@alice/greeter/download/latest", nil)
		dw := httptest.NewRecorder()
		router.ServeHTTP(dw, req)
		require.Equal(t, http.StatusOK, dw.Code)
	}

	_, body := doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	versions, ok := body["versions"].([]interface{})
	require.True(t, ok)
	require.Len(t, versions, 1)
	assert.EqualValues(t, 2, versions[0].(map[string]interface{})["download_count"])
}

func TestVersionSequenceAcrossAPI(t *testing.T) {
	router, conn, _ := newTestServer(t)
	createUser(t, conn, "alice", "alice-token")

	for _, v := range []string{"1.0.0", "1.1.0", "2.0.0"} {
		w := uploadArchive(t, router, "alice-token", buildArchive(t, "greeter", v, nil))
		require.Equal(t, http.StatusCreated, w.Code, "version %s", v)
	}

	_, body := doJSON(t, router, http.MethodGet, "/plugins/@alice/greeter", "")
	latest := body["latest_version"].(map[string]interface{})
	assert.Equal(t, "2.0.0", latest["version"])

	versions := body["versions"].([]interface{})
	require.Len(t, versions, 3)
	latestCount := 0
	for _, raw := range versions {
		if raw.(map[string]interface{})["is_latest"] == true {
			latestCount++
		}
	}
	assert.Equal(t, 1, latestCount)

	// Index only carries the newest release
	_, body = doJSON(t, router, http.MethodGet, "/marketplace.json", "")
	entries := body["plugins"].([]interface{})
	require.Len(t, entries, 1)
	assert.Equal(t, "2.0.0", entries[0].(map[string]interface{})["version"])
}
