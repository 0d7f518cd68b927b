// Package main is a diagnostic tool for testing database connectivity and
// inspecting live marketplace data. It opens the SQLite database, queries the
// plugins and plugin_versions tables, and prints a summary to stdout. The
// binary exits with a non-zero code on any failure so it can be embedded in
// health checks or CI/CD pipeline steps to gate deployments on a reachable,
// populated database.
package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/marketplace.db"
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_fk=1", dbPath))
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	// Check plugins
	fmt.Println("=== PLUGINS ===")
	rows, err := db.Query(`
		SELECT p.id, u.username, p.name, p.is_published
		FROM plugins p JOIN users u ON p.author_id = u.id
		ORDER BY u.username, p.name
	`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	pluginCount := 0
	for rows.Next() {
		var id, author, name string
		var published bool
		if err := rows.Scan(&id, &author, &name, &published); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		fmt.Printf("  @%s/%s (published=%v) id=%s\n", author, name, published, id)
		pluginCount++
	}
	if err := rows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}
	fmt.Printf("Total plugins: %d\n", pluginCount)

	// Check versions
	fmt.Println("\n=== VERSIONS ===")
	vrows, err := db.Query(`
		SELECT p.name, v.version, v.is_latest, v.download_count
		FROM plugin_versions v JOIN plugins p ON v.plugin_id = p.id
		ORDER BY p.name, v.uploaded_at
	`)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}
	defer vrows.Close()

	versionCount := 0
	for vrows.Next() {
		var name, version string
		var latest bool
		var downloads int64
		if err := vrows.Scan(&name, &version, &latest, &downloads); err != nil {
			log.Fatalf("Scan failed: %v", err)
		}
		marker := ""
		if latest {
			marker = " (latest)"
		}
		fmt.Printf("  %s %s%s downloads=%d\n", name, version, marker, downloads)
		versionCount++
	}
	if err := vrows.Err(); err != nil {
		log.Fatalf("Row iteration failed: %v", err)
	}
	fmt.Printf("Total versions: %d\n", versionCount)
}
