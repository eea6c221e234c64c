// Package msgpack provides a MessagePack codec for cached responses.
//
// MessagePack produces smaller payloads than JSON while keeping the same
// data model, which suits caches that hold many search responses.
// The codec keeps the key order of adm.Object values, so aggregations
// decoded from the cache are reported in the order the backend sent them.
//
// Basic usage:
//
//	cache := memory.NewCache(memory.WithCodec(msgpack.NewCodec()))
//	service := adm.NewCacheService(cache)
package msgpack

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/AshkanYarmoradi/go-adm"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// Ensure Codec implements adm.Codec.
var _ adm.Codec = (*Codec)(nil)

// ErrEmptyData is returned when decoding an empty payload.
var ErrEmptyData = errors.New("adm/msgpack: data cannot be empty")

// Codec is a MessagePack implementation of adm.Codec.
type Codec struct {
	sortMapKeys bool
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithSortedMapKeys sorts the keys of plain Go maps while encoding.
// adm.Object values always keep their own order.
func WithSortedMapKeys(on bool) CodecOption {
	return func(c *Codec) {
		c.sortMapKeys = on
	}
}

// NewCodec creates a MessagePack codec.
func NewCodec(opts ...CodecOption) *Codec {
	c := &Codec{sortMapKeys: true}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns "msgpack".
func (c *Codec) Name() string { return "msgpack" }

// Encode converts v to MessagePack bytes.
func (c *Codec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(c.sortMapKeys)

	if err := encodeValue(enc, v); err != nil {
		return nil, &SerializationError{Operation: "encode", Err: err}
	}
	return buf.Bytes(), nil
}

func encodeValue(enc *msgpack.Encoder, v any) error {
	switch t := v.(type) {
	case *adm.Object:
		if t == nil {
			return enc.EncodeNil()
		}
		if err := enc.EncodeMapLen(t.Len()); err != nil {
			return err
		}
		var err error
		t.Range(func(key string, value any) bool {
			if err = enc.EncodeString(key); err != nil {
				return false
			}
			err = encodeValue(enc, value)
			return err == nil
		})
		return err
	case []any:
		if err := enc.EncodeArrayLen(len(t)); err != nil {
			return err
		}
		for _, e := range t {
			if err := encodeValue(enc, e); err != nil {
				return err
			}
		}
		return nil
	default:
		return enc.Encode(v)
	}
}

// Decode converts MessagePack bytes into the adm data model:
// *adm.Object for maps, []any for arrays, int64 or float64 for numbers.
func (c *Codec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, &SerializationError{Operation: "decode", Err: ErrEmptyData}
	}

	r := bytes.NewReader(data)
	dec := msgpack.NewDecoder(r)
	v, err := decodeValue(dec)
	if err != nil {
		return nil, &SerializationError{Operation: "decode", Err: err}
	}
	if r.Len() > 0 {
		return nil, &SerializationError{Operation: "decode", Err: fmt.Errorf("%d trailing bytes", r.Len())}
	}
	return v, nil
}

func decodeValue(dec *msgpack.Decoder) (any, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return nil, err
		}
		o := adm.NewObject()
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return nil, err
			}
			value, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			o.Set(key, value)
		}
		return o, nil
	case msgpcode.IsFixedArray(code) || code == msgpcode.Array16 || code == msgpcode.Array32:
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		out := make([]any, n)
		for i := range out {
			if out[i], err = decodeValue(dec); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		v, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return nil, err
		}
		return adm.FromValue(v), nil
	}
}

// SerializationError represents an encoding or decoding failure.
type SerializationError struct {
	Operation string // "encode" or "decode"
	Err       error
}

// Error implements the error interface.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("adm/msgpack: failed to %s value: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Err
}
