package serializer

import (
	"bytes"
	"context"

	"github.com/klauspost/compress/zstd"
)

// Compressed wraps another Serializer, zstd-compressing its output when
// the payload is at least MinSize bytes, and transparently decompressing
// on Unmarshal by sniffing the zstd magic header first.
type Compressed struct {
	Inner   Serializer
	MinSize int
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// NewCompressed wraps inner with a zstd compression layer, skipping
// compression for payloads smaller than minSize.
func NewCompressed(inner Serializer, minSize int) Compressed {
	if inner == nil {
		inner = JSON{}
	}
	return Compressed{Inner: inner, MinSize: minSize}
}

func (c Compressed) Marshal(ctx context.Context, v any) ([]byte, error) {
	raw, err := c.Inner.Marshal(ctx, v)
	if err != nil {
		return nil, err
	}
	if len(raw) < c.MinSize {
		return raw, nil
	}

	var buf bytes.Buffer
	w, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c Compressed) Unmarshal(ctx context.Context, data []byte, v any) error {
	if !bytes.HasPrefix(data, zstdMagic) {
		return c.Inner.Unmarshal(ctx, data, v)
	}

	r, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer r.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return err
	}
	return c.Inner.Unmarshal(ctx, out.Bytes(), v)
}
