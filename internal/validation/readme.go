// readme.go extracts README content from plugin archives for storage and
// display in the marketplace. A missing README is not an error.
package validation

import (
	"archive/zip"
	"fmt"
	"io"
	"strings"
)

// readmeNames are accepted README filenames, compared case-insensitively.
var readmeNames = []string{"README.md", "README.txt", "README"}

// maxReadmeSize caps extracted README content at 1MB.
const maxReadmeSize = 1 << 20

// ExtractReadme returns the content of the archive's top-level README, or ""
// when no README exists. Mirroring manifest resolution, "top level" means the
// archive root or directly inside a single wrapper directory.
func ExtractReadme(zr *zip.Reader) (string, error) {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		parts := strings.Split(f.Name, "/")
		if len(parts) > 2 {
			continue
		}
		base := parts[len(parts)-1]

		if !isReadmeName(base) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open README entry %s: %w", f.Name, err)
		}
		content, err := io.ReadAll(io.LimitReader(rc, maxReadmeSize))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("failed to read README content: %w", err)
		}
		return string(content), nil
	}

	return "", nil
}

func isReadmeName(name string) bool {
	for _, candidate := range readmeNames {
		if strings.EqualFold(name, candidate) {
			return true
		}
	}
	return false
}
