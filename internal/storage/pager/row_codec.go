package pager

import "fmt"

// ColType is a column's declared storage type. Unlike the teacher's
// self-describing row codec (which tags every value with its own type),
// this format carries no per-value type tag: the wire bytes are only
// interpretable given the table's declared column types, matching spec
// §3's value format exactly.
type ColType uint8

const (
	ColInt ColType = iota
	ColBool
	ColText
)

// Value is an in-memory column value: exactly one of I/B/S is
// meaningful unless Null is set.
type Value struct {
	Null bool
	Kind ColType
	I    int64
	B    bool
	S    string
}

func NullValue(kind ColType) Value       { return Value{Null: true, Kind: kind} }
func IntValue(v int64) Value             { return Value{Kind: ColInt, I: v} }
func BoolValue(v bool) Value             { return Value{Kind: ColBool, B: v} }
func TextValue(v string) Value           { return Value{Kind: ColText, S: v} }

func (v Value) encodedSize() int {
	if v.Null {
		return 1
	}
	switch v.Kind {
	case ColInt:
		return 1 + 8
	case ColBool:
		return 1 + 1
	case ColText:
		return 1 + 4 + len(v.S)
	default:
		panic("pager: unknown column type")
	}
}

// MarshalRow encodes a row into the on-disk value format: a 4-byte LE
// length prefix (byte count following the prefix) followed by, per
// column, a 1-byte null flag and (if not null) the type's encoding.
func MarshalRow(values []Value) []byte {
	payload := 0
	for _, v := range values {
		payload += v.encodedSize()
	}

	buf := make([]byte, 4+payload)
	putLEUint32(buf[:4], uint32(payload))
	off := 4

	for _, v := range values {
		if v.Null {
			buf[off] = 1
			off++
			continue
		}
		buf[off] = 0
		off++
		switch v.Kind {
		case ColInt:
			putLEUint64(buf[off:off+8], uint64(v.I))
			off += 8
		case ColBool:
			if v.B {
				buf[off] = 1
			} else {
				buf[off] = 0
			}
			off++
		case ColText:
			putLEUint32(buf[off:off+4], uint32(len(v.S)))
			off += 4
			copy(buf[off:], v.S)
			off += len(v.S)
		}
	}
	return buf
}

// UnmarshalRow decodes a row previously written by MarshalRow, given the
// declared column types in order.
func UnmarshalRow(data []byte, types []ColType) ([]Value, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("row codec: data too short for length prefix")
	}
	payload := int(leUint32(data[:4]))
	if len(data) < 4+payload {
		return nil, fmt.Errorf("row codec: truncated row (want %d payload bytes, have %d)", payload, len(data)-4)
	}

	values := make([]Value, len(types))
	off := 4
	for i, t := range types {
		if off >= len(data) {
			return nil, fmt.Errorf("row codec: truncated row at column %d", i)
		}
		null := data[off] != 0
		off++
		if null {
			values[i] = NullValue(t)
			continue
		}
		switch t {
		case ColInt:
			if off+8 > len(data) {
				return nil, fmt.Errorf("row codec: truncated int at column %d", i)
			}
			values[i] = IntValue(int64(leUint64(data[off : off+8])))
			off += 8
		case ColBool:
			if off+1 > len(data) {
				return nil, fmt.Errorf("row codec: truncated bool at column %d", i)
			}
			values[i] = BoolValue(data[off] != 0)
			off++
		case ColText:
			if off+4 > len(data) {
				return nil, fmt.Errorf("row codec: truncated text length at column %d", i)
			}
			n := int(leUint32(data[off : off+4]))
			off += 4
			if off+n > len(data) {
				return nil, fmt.Errorf("row codec: truncated text data at column %d", i)
			}
			values[i] = TextValue(string(data[off : off+n]))
			off += n
		default:
			return nil, fmt.Errorf("row codec: unknown column type %d", t)
		}
	}
	return values, nil
}

// valueSize reads the total on-page size (including its own 4-byte
// length prefix) of a row-value blob starting at raw[0]. Used by the
// node layer to compute leaf cell sizes without knowing column types.
func valueSize(raw []byte) int {
	return 4 + int(leUint32(raw[:4]))
}
