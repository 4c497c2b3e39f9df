package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Resource is the stateful executor documents run in. It is not safe for
// interleaved use; the Coordinator guarantees one caller at a time.
type Resource interface {
	// Execute loads document and blocks until it signals completion.
	Execute(ctx context.Context, document string) (Completion, error)

	// Capture screenshots the render surface of the current document.
	Capture(ctx context.Context) ([]byte, error)

	// Close releases the resource.
	Close() error
}

// Completion is the raw argument list a document passed to its completion
// callback: [metadata, image] or [metadata, image, thumbnail].
type Completion []json.RawMessage

// Decode validates the completion shape and decodes the image slots.
// A nil Image means the document asked for a surface capture; a nil
// Thumbnail means it should be derived from the image.
func (c Completion) Decode() (Result, error) {
	if len(c) < 2 || len(c) > 3 {
		return Result{}, fmt.Errorf("%w: expected 2 or 3 values, got %d", ErrMalformedCompletion, len(c))
	}
	if isNull(c[0]) || !json.Valid(c[0]) {
		return Result{}, fmt.Errorf("%w: metadata is missing", ErrMalformedCompletion)
	}

	image, err := decodeImageSlot(c[1])
	if err != nil {
		return Result{}, fmt.Errorf("%w: image: %w", ErrMalformedCompletion, err)
	}

	var thumbnail []byte
	if len(c) == 3 {
		thumbnail, err = decodeImageSlot(c[2])
		if err != nil {
			return Result{}, fmt.Errorf("%w: thumbnail: %w", ErrMalformedCompletion, err)
		}
	}

	metadata := make(json.RawMessage, len(c[0]))
	copy(metadata, c[0])

	return Result{
		Metadata:  metadata,
		Image:     image,
		Thumbnail: thumbnail,
	}, nil
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func decodeImageSlot(raw json.RawMessage) ([]byte, error) {
	if isNull(raw) {
		return nil, nil
	}

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("expected base64 string: %w", err)
	}
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 {
			return nil, fmt.Errorf("data url without payload")
		}
		encoded = encoded[comma+1:]
	}
	if encoded == "" {
		return nil, nil
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	return data, nil
}
