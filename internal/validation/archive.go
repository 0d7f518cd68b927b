// Package validation implements the upload-side checks for plugin archives.
// Each validator checks a specific aspect of the upload: ZIP structure,
// forbidden file types, manifest presence and syntax, required manifest
// fields, and version format. Validators run before any data is persisted so
// invalid uploads are rejected early without consuming storage, and each
// failure carries a specific user-facing message naming the violated rule.
package validation

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
)

// forbiddenExtensions are entry suffixes associated with native executables,
// shell/batch scripts, and dynamic libraries. Archives containing any such
// entry are rejected outright.
var forbiddenExtensions = []string{".exe", ".sh", ".bat", ".cmd", ".dll", ".so", ".dylib"}

// maxManifestSize caps how much of the manifest entry is read. A manifest
// anywhere near this size is garbage input, not a plugin descriptor.
const maxManifestSize = 1 << 20

// ValidateArchive validates the ZIP archive at the given byte slice and
// returns its parsed manifest. The validation sequence short-circuits on the
// first failure; later steps assume earlier ones passed:
//
//  1. archive integrity (openable ZIP)
//  2. security scan (no executable entries, no hostile paths)
//  3. manifest presence at the fixed path
//  4. manifest JSON parseability
//  5. required fields (name, version, description)
//  6. version syntax (MAJOR.MINOR.PATCH)
//
// All returned errors are *UploadError with user-facing messages.
func ValidateArchive(data []byte) (*Manifest, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, NewUploadError(KindMalformedArchive,
			"Uploaded file is not a valid ZIP archive.", err)
	}
	return validateZip(zr)
}

func validateZip(zr *zip.Reader) (*Manifest, error) {
	if err := scanEntries(zr); err != nil {
		return nil, err
	}

	manifestFile := findManifest(zr)
	if manifestFile == nil {
		return nil, NewUploadError(KindMissingManifest,
			fmt.Sprintf("Plugin must contain a %s file. Please ensure your archive follows the plugin layout.", ManifestPath), nil)
	}

	rc, err := manifestFile.Open()
	if err != nil {
		return nil, NewUploadError(KindMalformedArchive,
			"Uploaded file is corrupted: the manifest entry cannot be read.", err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxManifestSize))
	if err != nil {
		return nil, NewUploadError(KindMalformedArchive,
			"Uploaded file is corrupted: the manifest entry cannot be read.", err)
	}

	return ParseManifest(raw)
}

// scanEntries enumerates every archive entry, rejecting executable-associated
// extensions and hostile paths (absolute or traversing outside the archive
// root). Directories themselves are skipped; only file entries are checked
// for extensions.
func scanEntries(zr *zip.Reader) error {
	for _, f := range zr.File {
		name := f.Name

		if unsafeEntryPath(name) {
			return NewUploadError(KindMalformedArchive,
				fmt.Sprintf("Unsafe path in archive: %s. Entries must not use absolute or parent-directory paths.", name), nil)
		}

		if f.FileInfo().IsDir() {
			continue
		}

		ext := strings.ToLower(path.Ext(name))
		for _, forbidden := range forbiddenExtensions {
			if ext == forbidden {
				return NewUploadError(KindForbiddenFileType,
					fmt.Sprintf("Forbidden file type detected: %s. Executable files (%s) are not allowed for security reasons.",
						name, strings.Join(forbiddenExtensions, ", ")), nil)
			}
		}
	}
	return nil
}

// unsafeEntryPath reports whether an archive entry name is absolute or
// contains a parent-directory segment. The check compares whole path
// segments, so filenames that merely contain consecutive dots (notes..txt)
// pass.
func unsafeEntryPath(name string) bool {
	if strings.HasPrefix(name, "/") {
		return true
	}
	for _, segment := range strings.Split(name, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

// findManifest locates the manifest entry. The manifest may live at the
// archive root (.plugin/plugin.json) or inside a single wrapper directory
// (plugin-name/.plugin/plugin.json), which is how archives created by
// "compress this folder" tools come out.
func findManifest(zr *zip.Reader) *zip.File {
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if f.Name == ManifestPath || strings.HasSuffix(f.Name, "/"+ManifestPath) {
			return f
		}
	}
	return nil
}
