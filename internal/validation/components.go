// components.go counts the plugin components declared under the five reserved
// category directories of an archive. The counts feed the version metadata
// blob and the release index.
package validation

import (
	"archive/zip"
	"strings"

	"github.com/plugin-marketplace/plugin-marketplace/internal/db/models"
)

// Reserved top-level category directories within a plugin archive.
const (
	CommandsDir   = "commands"
	AgentsDir     = "agents"
	SkillsDir     = "skills"
	HooksDir      = "hooks"
	MCPServersDir = "mcp_servers"
)

// SkillManifestName is the fixed per-skill manifest filename. One skill is one
// such file inside its own subdirectory of skills/.
const SkillManifestName = "SKILL.md"

// CountComponents scans the archive's reserved category directories and counts
// the non-directory entries under each. The category directories may sit at
// the archive root or inside a single wrapper directory, matching manifest
// resolution.
//
// Counting rules:
//   - commands/, agents/, hooks/, mcp_servers/: direct child files count;
//     nested subdirectories do not.
//   - skills/: each skill lives in its own subdirectory and is counted by the
//     presence of its SKILL.md; loose files directly under skills/ do not count.
func CountComponents(zr *zip.Reader) models.ComponentCounts {
	var counts models.ComponentCounts

	targets := map[string]*int{
		CommandsDir:   &counts.Commands,
		AgentsDir:     &counts.Agents,
		SkillsDir:     &counts.Skills,
		HooksDir:      &counts.Hooks,
		MCPServersDir: &counts.MCPServers,
	}

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		parts := strings.Split(f.Name, "/")
		for dir, counter := range targets {
			idx := indexOf(parts, dir)
			if idx < 0 {
				continue
			}

			if dir == SkillsDir {
				// skills/<skill-name>/SKILL.md, at any wrapper depth
				if idx < len(parts)-2 && parts[len(parts)-1] == SkillManifestName {
					*counter++
				}
			} else if idx == len(parts)-2 {
				*counter++
			}
		}
	}

	return counts
}

func indexOf(parts []string, want string) int {
	for i, p := range parts {
		if p == want {
			return i
		}
	}
	return -1
}
