package pager

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func serializedKey(t *testing.T, kt KeyType, k Key) []byte {
	t.Helper()
	buf := make([]byte, kt.UnresolvedKeySize(k))
	n := kt.Serialize(k, buf)
	require.Equal(t, len(buf), n)
	return buf
}

func TestIntKeyTypeOrdering(t *testing.T) {
	a := serializedKey(t, IntKeyType, IntKey(-5))
	b := serializedKey(t, IntKeyType, IntKey(5))
	require.Negative(t, IntKeyType.Compare(a, b))
	require.Positive(t, IntKeyType.Compare(b, a))
	require.Zero(t, IntKeyType.Compare(a, a))
}

func TestBoolKeyTypeOrdering(t *testing.T) {
	f := serializedKey(t, BoolKeyType, BoolKey(false))
	tr := serializedKey(t, BoolKeyType, BoolKey(true))
	require.Negative(t, BoolKeyType.Compare(f, tr))
	require.Positive(t, BoolKeyType.Compare(tr, f))
}

// TestTextKeyTypeLengthTiebreak exercises the fixed behavior: the C
// original compared only min(len1, len2) bytes, so "ab" and "abc" would
// have compared equal. This port breaks the tie by length.
func TestTextKeyTypeLengthTiebreak(t *testing.T) {
	short := serializedKey(t, TextKeyType, TextKey("ab"))
	long := serializedKey(t, TextKeyType, TextKey("abc"))
	require.Negative(t, TextKeyType.Compare(short, long))
	require.Positive(t, TextKeyType.Compare(long, short))
	require.NotZero(t, TextKeyType.Compare(short, long))
}

func TestTextKeyTypeCompareUnresolved(t *testing.T) {
	raw := serializedKey(t, TextKeyType, TextKey("mid"))
	require.Negative(t, TextKeyType.CompareUnresolved(raw, TextKey("zzz")))
	require.Positive(t, TextKeyType.CompareUnresolved(raw, TextKey("aaa")))
	require.Zero(t, TextKeyType.CompareUnresolved(raw, TextKey("mid")))
}
