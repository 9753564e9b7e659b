package protocol

import (
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"
)

// field is one decoded wire field.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64 // varint and fixed values
	b   []byte // length-delimited values
}

// walk calls fn for every field of b in wire order.
func walk(b []byte, fn func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.u = uint64(v)
		case protowire.Fixed64Type:
			f.u, n = protowire.ConsumeFixed64(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return wireError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func wireError(n int) error {
	err := protowire.ParseError(n)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

func (f field) mismatch(want protowire.Type) error {
	return fmt.Errorf("%w: field %d has wire type %d, want %d", ErrMalformed, f.num, f.typ, want)
}

func (f field) asString() (string, error) {
	if f.typ != protowire.BytesType {
		return "", f.mismatch(protowire.BytesType)
	}
	return string(f.b), nil
}

func (f field) asBytes() ([]byte, error) {
	if f.typ != protowire.BytesType {
		return nil, f.mismatch(protowire.BytesType)
	}
	return f.b, nil
}

func (f field) asUint64() (uint64, error) {
	if f.typ != protowire.VarintType {
		return 0, f.mismatch(protowire.VarintType)
	}
	return f.u, nil
}

func (f field) asUint32() (uint32, error) {
	v, err := f.asUint64()
	return uint32(v), err
}

func (f field) asBool() (bool, error) {
	v, err := f.asUint64()
	return protowire.DecodeBool(v), err
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}

// appendStringMap writes m as repeated map entries in sorted key order.
func appendStringMap(b []byte, num protowire.Number, m map[string]string) []byte {
	for _, k := range sortedKeys(m) {
		var entry []byte
		entry = appendString(entry, 1, k)
		entry = appendString(entry, 2, m[k])
		b = appendMessage(b, num, entry)
	}
	return b
}

func decodeStringMapEntry(b []byte, into map[string]string) error {
	var key, value string
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case 1:
			key, err = f.asString()
		case 2:
			value, err = f.asString()
		}
		return err
	})
	if err != nil {
		return err
	}
	into[key] = value
	return nil
}
