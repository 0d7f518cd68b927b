// semver.go provides version format validation and comparison helpers used
// when publishing plugin versions. The marketplace accepts a stricter format
// than general semver: exactly three dot-separated non-negative integers, no
// prerelease or build suffixes.
package validation

import (
	"fmt"
	"regexp"

	version "github.com/hashicorp/go-version"
)

// versionPattern matches MAJOR.MINOR.PATCH with non-negative integer parts.
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// ValidVersionFormat reports whether v is a well-formed three-part version string.
func ValidVersionFormat(v string) bool {
	return versionPattern.MatchString(v)
}

// CompareVersions compares two version strings component-wise.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
func CompareVersions(a, b string) (int, error) {
	va, err := version.NewVersion(a)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", a, err)
	}
	vb, err := version.NewVersion(b)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q: %w", b, err)
	}
	return va.Compare(vb), nil
}

// IsVersionHigher reports whether newVersion is strictly greater than
// oldVersion. Equal versions are not higher — re-uploading the current
// version is rejected, never overwritten.
func IsVersionHigher(newVersion, oldVersion string) (bool, error) {
	cmp, err := CompareVersions(newVersion, oldVersion)
	if err != nil {
		return false, err
	}
	return cmp > 0, nil
}
