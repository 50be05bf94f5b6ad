package assistant

import "errors"

// Sentinel errors for metadata synchronization operations.
// Use errors.Is() to check for specific error conditions.
var (
	// ErrNotFound indicates a model file does not exist on disk.
	ErrNotFound = errors.New("assistant: model file not found")

	// ErrTransport indicates a catalog request failed at the network
	// or HTTP level.
	ErrTransport = errors.New("assistant: catalog request failed")

	// ErrValidation indicates the catalog returned a response that does
	// not match the expected schema.
	ErrValidation = errors.New("assistant: invalid catalog response")

	// ErrStorage indicates a sidecar or preview filesystem operation failed.
	ErrStorage = errors.New("assistant: storage error")

	// ErrInvalidType indicates an unknown model type string.
	ErrInvalidType = errors.New("assistant: unknown model type")
)
