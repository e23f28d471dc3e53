package pager

// KeyKind discriminates the three concrete key types a B-tree may be
// keyed on (spec §3).
type KeyKind uint8

const (
	KeyInt64 KeyKind = iota
	KeyBool
	KeyText
)

// Key is an in-memory ("unresolved") key value, used by cursor search
// operations before the key has been serialized onto a page. Exactly one
// field is meaningful, selected by Kind.
type Key struct {
	Kind KeyKind
	I    int64
	B    bool
	S    string
}

func IntKey(v int64) Key  { return Key{Kind: KeyInt64, I: v} }
func BoolKey(v bool) Key  { return Key{Kind: KeyBool, B: v} }
func TextKey(v string) Key { return Key{Kind: KeyText, S: v} }

// DecodeIntKey reads a raw on-page int64 key back into a Go int64.
func DecodeIntKey(raw []byte) int64 { return int64(leUint64(raw)) }

// DecodeTextKey reads a raw on-page text key back into a Go string.
func DecodeTextKey(raw []byte) string { return string(textBytes(raw)) }

// KeyType is the per-tree handle describing how to compare, size and
// serialize keys of one kind. Every BTree is constructed with exactly
// one KeyType, shared by every node in the tree.
type KeyType interface {
	Kind() KeyKind

	// Compare compares two already-serialized (raw, on-page) keys.
	Compare(a, b []byte) int

	// CompareUnresolved compares a raw on-page key against an
	// in-memory Key value, without needing to serialize the latter.
	CompareUnresolved(raw []byte, key Key) int

	// KeySize returns the number of bytes the serialized key occupies,
	// reading only from raw (needed for variable-length keys like
	// text, which carry their own length prefix).
	KeySize(raw []byte) int

	// UnresolvedKeySize returns the number of bytes key would occupy
	// once serialized.
	UnresolvedKeySize(key Key) int

	// Serialize writes key's on-page encoding into dst (which must be
	// at least UnresolvedKeySize(key) bytes) and returns the number of
	// bytes written.
	Serialize(key Key, dst []byte) int
}

// --- int64 -------------------------------------------------------------

type intKeyType struct{}

// IntKeyType is the 64-bit signed integer key type: 8 bytes, little
// endian.
var IntKeyType KeyType = intKeyType{}

func (intKeyType) Kind() KeyKind { return KeyInt64 }

func (intKeyType) Compare(a, b []byte) int {
	x, y := int64(leUint64(a)), int64(leUint64(b))
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (intKeyType) CompareUnresolved(raw []byte, key Key) int {
	x := int64(leUint64(raw))
	switch {
	case x < key.I:
		return -1
	case x > key.I:
		return 1
	default:
		return 0
	}
}

func (intKeyType) KeySize(raw []byte) int           { return 8 }
func (intKeyType) UnresolvedKeySize(key Key) int    { return 8 }
func (intKeyType) Serialize(key Key, dst []byte) int {
	putLEUint64(dst[:8], uint64(key.I))
	return 8
}

// --- bool ----------------------------------------------------------------

type boolKeyType struct{}

// BoolKeyType is the boolean key type: 1 byte, false < true.
var BoolKeyType KeyType = boolKeyType{}

func (boolKeyType) Kind() KeyKind { return KeyBool }

func (boolKeyType) Compare(a, b []byte) int {
	x, y := a[0] != 0, b[0] != 0
	return boolCompare(x, y)
}

func (boolKeyType) CompareUnresolved(raw []byte, key Key) int {
	return boolCompare(raw[0] != 0, key.B)
}

func boolCompare(x, y bool) int {
	switch {
	case x == y:
		return 0
	case !x && y:
		return -1
	default:
		return 1
	}
}

func (boolKeyType) KeySize(raw []byte) int        { return 1 }
func (boolKeyType) UnresolvedKeySize(key Key) int { return 1 }
func (boolKeyType) Serialize(key Key, dst []byte) int {
	if key.B {
		dst[0] = 1
	} else {
		dst[0] = 0
	}
	return 1
}

// --- text ------------------------------------------------------------

type textKeyType struct{}

// TextKeyType is the UTF-8 text key type: 4-byte LE length prefix
// followed by the bytes, compared lexicographically.
//
// The C original's text comparator only compared min(len1, len2) bytes,
// so equal prefixes of different lengths compared equal — documented as
// a likely bug in spec §9. This implementation breaks ties by length,
// per the spec's explicit recommendation.
var TextKeyType KeyType = textKeyType{}

func (textKeyType) Kind() KeyKind { return KeyText }

func (textKeyType) Compare(a, b []byte) int {
	return compareTextBytes(textBytes(a), textBytes(b))
}

func (textKeyType) CompareUnresolved(raw []byte, key Key) int {
	return compareTextBytes(textBytes(raw), []byte(key.S))
}

func compareTextBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

func textBytes(raw []byte) []byte {
	n := leUint32(raw[:4])
	return raw[4 : 4+n]
}

func (textKeyType) KeySize(raw []byte) int { return 4 + int(leUint32(raw[:4])) }

func (textKeyType) UnresolvedKeySize(key Key) int { return 4 + len(key.S) }

func (textKeyType) Serialize(key Key, dst []byte) int {
	putLEUint32(dst[:4], uint32(len(key.S)))
	copy(dst[4:], key.S)
	return 4 + len(key.S)
}
