// errors.go defines the upload pipeline's classified error kinds. Every kind
// maps to a specific, user-facing message naming the exact rule and value that
// failed — handlers return these messages verbatim, never a generic "upload
// failed".
package validation

import "errors"

// ErrorKind classifies an upload failure. The string value doubles as the
// Prometheus result label, so kinds are snake_case and form a small fixed set.
type ErrorKind string

const (
	// KindMalformedArchive - the byte stream cannot be opened as a ZIP archive
	KindMalformedArchive ErrorKind = "malformed_archive"
	// KindForbiddenFileType - the archive contains an executable-associated entry
	KindForbiddenFileType ErrorKind = "forbidden_file_type"
	// KindMissingManifest - the required manifest file is absent
	KindMissingManifest ErrorKind = "missing_manifest"
	// KindInvalidManifestSyntax - the manifest is present but not valid JSON
	KindInvalidManifestSyntax ErrorKind = "invalid_manifest_syntax"
	// KindMissingRequiredField - the manifest lacks name, version, or description
	KindMissingRequiredField ErrorKind = "missing_required_field"
	// KindInvalidPluginName - the manifest name contains characters unsafe for
	// storage paths and URLs
	KindInvalidPluginName ErrorKind = "invalid_plugin_name"
	// KindInvalidVersionFormat - the version string is not MAJOR.MINOR.PATCH
	KindInvalidVersionFormat ErrorKind = "invalid_version_format"
	// KindVersionNotHigher - the proposed version does not exceed the current latest
	KindVersionNotHigher ErrorKind = "version_not_higher"
	// KindDuplicateVersion - the (plugin, version) pair already exists
	KindDuplicateVersion ErrorKind = "duplicate_version"
	// KindStorageError - a filesystem failure during copy, extraction, or index write
	KindStorageError ErrorKind = "storage_error"
)

// UploadError is a classified pipeline failure. Message is written to be
// shown to the uploading user as-is.
type UploadError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return e.Message
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// NewUploadError builds an UploadError with an optional wrapped cause.
func NewUploadError(kind ErrorKind, message string, cause error) *UploadError {
	return &UploadError{Kind: kind, Message: message, Err: cause}
}

// AsUploadError unwraps err into an *UploadError if it is one.
func AsUploadError(err error) (*UploadError, bool) {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}

// IsKind reports whether err is an UploadError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	ue, ok := AsUploadError(err)
	return ok && ue.Kind == kind
}
