package render

import "errors"

// Sentinel errors for render operations.
var (
	// ErrNilResource is returned when a Coordinator is built without a Resource.
	ErrNilResource = errors.New("render: resource is nil")

	// ErrInvalidRequest is returned when a Request fails validation.
	ErrInvalidRequest = errors.New("render: invalid request")

	// ErrUnknownTemplate is returned for a template type with no document template.
	ErrUnknownTemplate = errors.New("render: unknown template type")

	// ErrMalformedCompletion is returned when the document's completion signal
	// does not have the expected shape.
	ErrMalformedCompletion = errors.New("render: malformed completion")
)
