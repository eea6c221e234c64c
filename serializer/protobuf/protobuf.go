// Package protobuf provides a Protocol Buffers codec for cached responses.
//
// Values are written in the wire format of the following schema, so any
// protobuf runtime can read cache entries written by this codec:
//
//	message Value {
//	  oneof kind {
//	    bool   null_value   = 1;
//	    bool   bool_value   = 2;
//	    sint64 int_value    = 3;
//	    double float_value  = 4;
//	    string string_value = 5;
//	    List   list_value   = 6;
//	    Object object_value = 7;
//	    bytes  bytes_value  = 8;
//	  }
//	}
//	message List   { repeated Value values = 1; }
//	message Object { repeated Entry entries = 1; }
//	message Entry  { string key = 1; Value value = 2; }
//
// Unlike google.protobuf.Struct, Object entries keep their order and
// integers keep their precision.
//
// Usage:
//
//	cache := memory.NewCache(memory.WithCodec(protobuf.NewCodec()))
package protobuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/AshkanYarmoradi/go-adm"
	"google.golang.org/protobuf/encoding/protowire"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrEmptyData indicates an attempt to decode empty data.
	ErrEmptyData = errors.New("adm/protobuf: cannot decode empty data")

	// ErrUnsupportedType indicates a value outside the adm data model.
	ErrUnsupportedType = errors.New("adm/protobuf: unsupported value type")

	// ErrMalformed indicates bytes that are not a valid Value message.
	ErrMalformed = errors.New("adm/protobuf: malformed value")
)

// SerializationError provides detailed error information for codec failures.
type SerializationError struct {
	// Operation is either "encode" or "decode".
	Operation string

	// Cause is the underlying error.
	Cause error
}

// Error returns the error message.
func (e *SerializationError) Error() string {
	return fmt.Sprintf("adm/protobuf: failed to %s value: %v", e.Operation, e.Cause)
}

// Unwrap returns the underlying error.
func (e *SerializationError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// Codec
// =============================================================================

// Field numbers of the Value message.
const (
	fieldNull   protowire.Number = 1
	fieldBool   protowire.Number = 2
	fieldInt    protowire.Number = 3
	fieldFloat  protowire.Number = 4
	fieldString protowire.Number = 5
	fieldList   protowire.Number = 6
	fieldObject protowire.Number = 7
	fieldBytes  protowire.Number = 8
)

// Field numbers of the List, Object and Entry messages.
const (
	fieldItems protowire.Number = 1
	fieldKey   protowire.Number = 1
	fieldValue protowire.Number = 2
)

// Ensure Codec implements adm.Codec.
var _ adm.Codec = (*Codec)(nil)

// Codec is a Protocol Buffers implementation of adm.Codec.
type Codec struct{}

// NewCodec creates a protobuf codec.
func NewCodec() *Codec {
	return &Codec{}
}

// Name returns "protobuf".
func (c *Codec) Name() string { return "protobuf" }

// Encode converts v into a Value message.
// Plain Go values are first normalised with adm.FromValue.
func (c *Codec) Encode(v any) ([]byte, error) {
	b, err := appendValue(nil, adm.FromValue(v))
	if err != nil {
		return nil, &SerializationError{Operation: "encode", Cause: err}
	}
	return b, nil
}

func appendValue(b []byte, v any) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		b = protowire.AppendTag(b, fieldNull, protowire.VarintType)
		return protowire.AppendVarint(b, 1), nil
	case bool:
		b = protowire.AppendTag(b, fieldBool, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeBool(t)), nil
	case int64:
		b = protowire.AppendTag(b, fieldInt, protowire.VarintType)
		return protowire.AppendVarint(b, protowire.EncodeZigZag(t)), nil
	case float64:
		b = protowire.AppendTag(b, fieldFloat, protowire.Fixed64Type)
		return protowire.AppendFixed64(b, math.Float64bits(t)), nil
	case string:
		b = protowire.AppendTag(b, fieldString, protowire.BytesType)
		return protowire.AppendString(b, t), nil
	case []byte:
		b = protowire.AppendTag(b, fieldBytes, protowire.BytesType)
		return protowire.AppendBytes(b, t), nil
	case []any:
		var list []byte
		for _, e := range t {
			item, err := appendValue(nil, e)
			if err != nil {
				return nil, err
			}
			list = protowire.AppendTag(list, fieldItems, protowire.BytesType)
			list = protowire.AppendBytes(list, item)
		}
		b = protowire.AppendTag(b, fieldList, protowire.BytesType)
		return protowire.AppendBytes(b, list), nil
	case *adm.Object:
		if t == nil {
			return appendValue(b, nil)
		}
		var obj []byte
		var err error
		t.Range(func(key string, value any) bool {
			var entry, item []byte
			if item, err = appendValue(nil, value); err != nil {
				return false
			}
			entry = protowire.AppendTag(entry, fieldKey, protowire.BytesType)
			entry = protowire.AppendString(entry, key)
			entry = protowire.AppendTag(entry, fieldValue, protowire.BytesType)
			entry = protowire.AppendBytes(entry, item)

			obj = protowire.AppendTag(obj, fieldItems, protowire.BytesType)
			obj = protowire.AppendBytes(obj, entry)
			return true
		})
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, fieldObject, protowire.BytesType)
		return protowire.AppendBytes(b, obj), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
	}
}

// Decode reads a Value message.
func (c *Codec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, &SerializationError{Operation: "decode", Cause: ErrEmptyData}
	}
	v, err := consumeValue(data)
	if err != nil {
		return nil, &SerializationError{Operation: "decode", Cause: err}
	}
	return v, nil
}

// consumeValue decodes a Value message body. When a message carries several
// kinds the last one wins, as in any protobuf oneof.
func consumeValue(b []byte) (any, error) {
	var v any
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldNull && typ == protowire.VarintType:
			_, n = protowire.ConsumeVarint(b)
			v = nil
		case num == fieldBool && typ == protowire.VarintType:
			var x uint64
			x, n = protowire.ConsumeVarint(b)
			v = protowire.DecodeBool(x)
		case num == fieldInt && typ == protowire.VarintType:
			var x uint64
			x, n = protowire.ConsumeVarint(b)
			v = protowire.DecodeZigZag(x)
		case num == fieldFloat && typ == protowire.Fixed64Type:
			var x uint64
			x, n = protowire.ConsumeFixed64(b)
			v = math.Float64frombits(x)
		case num == fieldString && typ == protowire.BytesType:
			var s string
			s, n = protowire.ConsumeString(b)
			v = s
		case num == fieldBytes && typ == protowire.BytesType:
			var raw []byte
			raw, n = protowire.ConsumeBytes(b)
			v = append([]byte{}, raw...)
		case num == fieldList && typ == protowire.BytesType:
			var raw []byte
			if raw, n = protowire.ConsumeBytes(b); n >= 0 {
				list, err := consumeList(raw)
				if err != nil {
					return nil, err
				}
				v = list
			}
		case num == fieldObject && typ == protowire.BytesType:
			var raw []byte
			if raw, n = protowire.ConsumeBytes(b); n >= 0 {
				obj, err := consumeObject(raw)
				if err != nil {
					return nil, err
				}
				v = obj
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]
	}
	return v, nil
}

func consumeList(b []byte) ([]any, error) {
	list := []any{}
	err := consumeRepeated(b, func(item []byte) error {
		v, err := consumeValue(item)
		if err != nil {
			return err
		}
		list = append(list, v)
		return nil
	})
	return list, err
}

func consumeObject(b []byte) (*adm.Object, error) {
	obj := adm.NewObject()
	err := consumeRepeated(b, func(entry []byte) error {
		key, value, err := consumeEntry(entry)
		if err != nil {
			return err
		}
		obj.Set(key, value)
		return nil
	})
	return obj, err
}

func consumeEntry(b []byte) (string, any, error) {
	var key string
	var value any
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return "", nil, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldKey && typ == protowire.BytesType:
			key, n = protowire.ConsumeString(b)
		case num == fieldValue && typ == protowire.BytesType:
			var raw []byte
			if raw, n = protowire.ConsumeBytes(b); n >= 0 {
				v, err := consumeValue(raw)
				if err != nil {
					return "", nil, err
				}
				value = v
			}
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return "", nil, malformed(n)
		}
		b = b[n:]
	}
	return key, value, nil
}

// consumeRepeated calls fn with every length-delimited field 1 of b.
func consumeRepeated(b []byte, fn func([]byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed(n)
		}
		b = b[n:]

		if num == fieldItems && typ == protowire.BytesType {
			raw, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return malformed(m)
			}
			if err := fn(raw); err != nil {
				return err
			}
			n = m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return malformed(n)
			}
		}
		b = b[n:]
	}
	return nil
}

func malformed(n int) error {
	return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
}
