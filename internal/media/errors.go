package media

import "errors"

var (
	// ErrAssetNotFound indicates the requested attachment does not exist.
	ErrAssetNotFound = errors.New("attachment not found")
	// ErrProviderUnavailable indicates no storage provider is configured.
	ErrProviderUnavailable = errors.New("storage provider unavailable")
	// ErrAssetTooLarge indicates the payload exceeds the configured limit.
	ErrAssetTooLarge = errors.New("attachment too large")
	// ErrAssetEmpty indicates a zero-byte payload.
	ErrAssetEmpty = errors.New("attachment payload is empty")
	// ErrPathTraversal indicates a storage key attempted directory traversal.
	ErrPathTraversal = errors.New("path traversal is forbidden")
	// ErrInvalidName indicates a name that was not produced by the store.
	ErrInvalidName = errors.New("invalid attachment name")
)
