package serializer

import (
	"context"
	"encoding/json"
)

// JSON is the default Serializer, used by every storage and transport
// adapter unless a compressed variant is configured.
type JSON struct{}

func (JSON) Marshal(_ context.Context, v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(_ context.Context, data []byte, v any) error {
	return json.Unmarshal(data, v)
}
