// Package serializer implements the wire encoding/decoding seam: JSON by
// default, with an optional compression wrapper for payloads over a
// configurable threshold.
package serializer

import "context"

// Serializer converts a typed payload to and from wire bytes.
type Serializer interface {
	Marshal(ctx context.Context, v any) ([]byte, error)
	Unmarshal(ctx context.Context, data []byte, v any) error
}
