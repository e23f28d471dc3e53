package pager

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestPager(t *testing.T) *Pager {
	t.Helper()
	p, err := Open(NewMemFile(), Config{PageSize: MinPageSize})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, p.Close()) })
	return p
}

// walkKeys reads every key reachable from the tree's root via a
// pre-order walk, checking invariants 1, 2 and 9 along the way
// (header/cell-area ordering, strictly ascending inner keys, and
// half-page minimum occupancy for every non-root node).
func walkKeys(t *testing.T, p *Pager, tree *BTree) []string {
	t.Helper()
	var keys []string
	var walk func(id PageID, isRoot bool) error
	walk = func(id PageID, isRoot bool) error {
		ref, err := p.GetPage(id)
		if err != nil {
			return err
		}
		defer p.Unref(ref)
		n := newNodeView(ref, p.PageSize(), tree.kt)

		require.GreaterOrEqual(t, n.cellArea(), n.slotDirEnd())
		require.LessOrEqual(t, n.cellArea(), n.cellAreaLogical())
		require.LessOrEqual(t, n.cellAreaLogical(), p.PageSize())
		if !isRoot {
			require.LessOrEqual(t, n.logicalFreeSpace(), p.PageSize()/2)
		}

		if n.isLeaf() {
			for i := 0; i < n.cellCount(); i++ {
				keys = append(keys, string(n.keyAt(i)))
			}
			return nil
		}

		var prev []byte
		for i := 0; i < n.cellCount(); i++ {
			k := n.keyAt(i)
			if prev != nil {
				require.Negative(t, tree.kt.Compare(prev, k), "inner keys must be strictly ascending")
			}
			prev = k
			if err := walk(n.childAt(i), false); err != nil {
				return err
			}
		}
		return walk(n.rightmostChild(), false)
	}
	require.NoError(t, walk(tree.Root(), true))
	return keys
}

func TestBTreeCreateInsertScan(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, IntKeyType)
	require.NoError(t, err)

	cur := tree.NewCursor()
	defer cur.Close()
	for _, id := range []int64{1, 2, 3} {
		_, err := cur.GotoKey(IntKey(id))
		require.NoError(t, err)
		require.NoError(t, cur.Insert(IntKey(id), MarshalRow([]Value{IntValue(id)})))
	}

	var got []int64
	ok, err := cur.GotoFirst()
	require.NoError(t, err)
	for ok {
		v, uerr := UnmarshalRow(cur.Read(), []ColType{ColInt})
		require.NoError(t, uerr)
		got = append(got, v[0].I)
		ok, err = cur.GotoNext()
		require.NoError(t, err)
	}
	require.Equal(t, []int64{1, 2, 3}, got)
}

func TestBTreeInsertGotoKeyRoundTrip(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, IntKeyType)
	require.NoError(t, err)

	cur := tree.NewCursor()
	defer cur.Close()
	_, err = cur.GotoKey(IntKey(42))
	require.NoError(t, err)
	require.NoError(t, cur.Insert(IntKey(42), []byte("value-42")))

	found, err := cur.GotoKey(IntKey(42))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("value-42"), cur.Read())
}

func TestBTreeRemoveThenGotoKeyFails(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, IntKeyType)
	require.NoError(t, err)

	cur := tree.NewCursor()
	_, err = cur.GotoKey(IntKey(1))
	require.NoError(t, err)
	require.NoError(t, cur.Insert(IntKey(1), []byte("a")))
	found, err := cur.GotoKey(IntKey(1))
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, cur.Remove())
	cur.Close()

	cur2 := tree.NewCursor()
	defer cur2.Close()
	found, err = cur2.GotoKey(IntKey(1))
	require.NoError(t, err)
	require.False(t, found)
}

func TestBTreeUpdateChangesValue(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, IntKeyType)
	require.NoError(t, err)

	cur := tree.NewCursor()
	_, err = cur.GotoKey(IntKey(9))
	require.NoError(t, err)
	require.NoError(t, cur.Insert(IntKey(9), []byte("short")))
	cur.Close()

	c2 := tree.NewCursor()
	found, err := c2.GotoKey(IntKey(9))
	require.NoError(t, err)
	require.True(t, found)
	require.NoError(t, c2.Update([]byte("a much longer replacement value")))
	c2.Close()

	c3 := tree.NewCursor()
	defer c3.Close()
	found, err = c3.GotoKey(IntKey(9))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("a much longer replacement value"), c3.Read())
}

// TestBTreeManyInsertsStayOrdered drives enough inserts to force at
// least one split/rotation and checks the resulting tree is still
// fully ordered and structurally sound.
func TestBTreeManyInsertsStayOrdered(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, IntKeyType)
	require.NoError(t, err)

	const n = 500
	perm := rand.New(rand.NewSource(1)).Perm(n)
	cur := tree.NewCursor()
	for _, id := range perm {
		_, err = cur.GotoKey(IntKey(int64(id)))
		require.NoError(t, err)
		require.NoError(t, cur.Insert(IntKey(int64(id)), IntKey(int64(id)).serializeForTest()))
	}
	cur.Close()

	keys := walkKeys(t, p, tree)
	require.Len(t, keys, n)
	for i := 1; i < len(keys); i++ {
		require.Negative(t, tree.kt.Compare([]byte(keys[i-1]), []byte(keys[i])))
	}
}

// serializeForTest gives the test suite a value blob distinct from the
// key itself, sized like a real row so the tree exercises realistic
// cell sizes.
func (k Key) serializeForTest() []byte {
	buf := make([]byte, IntKeyType.UnresolvedKeySize(k))
	IntKeyType.Serialize(k, buf)
	return buf
}

func TestBTreeTextKeys(t *testing.T) {
	p := newTestPager(t)
	tree, err := NewBTree(p, TextKeyType)
	require.NoError(t, err)

	words := []string{"pear", "apple", "banana", "cherry", "date", "elderberry"}
	cur := tree.NewCursor()
	for _, w := range words {
		_, err = cur.GotoKey(TextKey(w))
		require.NoError(t, err)
		require.NoError(t, cur.Insert(TextKey(w), []byte(w)))
	}
	cur.Close()

	want := append([]string(nil), words...)
	sort.Strings(want)

	var got []string
	c := tree.NewCursor()
	defer c.Close()
	ok, err := c.GotoFirst()
	require.NoError(t, err)
	for ok {
		got = append(got, string(c.Read()))
		ok, err = c.GotoNext()
		require.NoError(t, err)
	}
	require.Equal(t, want, got)
}

// TestBTreeRandomPermutationPrefixesStayOrdered is the property spec §8
// calls for: after any prefix of a random-permutation insert sequence,
// an ordered scan yields exactly the inserted keys, ascending.
func TestBTreeRandomPermutationPrefixesStayOrdered(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p, err := Open(NewMemFile(), Config{PageSize: MinPageSize})
		require.NoError(rt, err)
		defer p.Close()
		tree, err := NewBTree(p, IntKeyType)
		require.NoError(rt, err)

		n := rapid.IntRange(1, 60).Draw(rt, "n")
		seed := rapid.Int64().Draw(rt, "seed")
		perm := rand.New(rand.NewSource(seed)).Perm(n)

		inserted := map[int64]bool{}
		cur := tree.NewCursor()
		for _, v := range perm {
			key := int64(v)
			_, err = cur.GotoKey(IntKey(key))
			require.NoError(rt, err)
			require.NoError(rt, cur.Insert(IntKey(key), IntKey(key).serializeForTest()))
			require.NoError(rt, cur.Reset())
			inserted[key] = true

			var want []int64
			for k := range inserted {
				want = append(want, k)
			}
			sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

			scan := tree.NewCursor()
			var got []int64
			ok, serr := scan.GotoFirst()
			require.NoError(rt, serr)
			for ok {
				got = append(got, DecodeIntKey(scan.RawKey()))
				ok, serr = scan.GotoNext()
				require.NoError(rt, serr)
			}
			scan.Close()
			require.Equal(rt, want, got)
		}
		cur.Close()
	})
}

// TestBTreeInterleavedInsertDeleteInvariants covers the second
// property family: after a random sequence of interleaved
// inserts/deletes, the tree still satisfies invariants 1-3 and 9.
func TestBTreeInterleavedInsertDeleteInvariants(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		p, err := Open(NewMemFile(), Config{PageSize: MinPageSize})
		require.NoError(rt, err)
		defer p.Close()
		tree, err := NewBTree(p, IntKeyType)
		require.NoError(rt, err)

		present := map[int64]bool{}
		steps := rapid.IntRange(1, 80).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			key := int64(rapid.IntRange(0, 30).Draw(rt, "key"))
			insert := rapid.Bool().Draw(rt, "insert")
			cur := tree.NewCursor()
			if insert && !present[key] {
				_, gerr := cur.GotoKey(IntKey(key))
				require.NoError(rt, gerr)
				require.NoError(rt, cur.Insert(IntKey(key), IntKey(key).serializeForTest()))
				present[key] = true
			} else if !insert && present[key] {
				found, ferr := cur.GotoKey(IntKey(key))
				require.NoError(rt, ferr)
				require.True(rt, found)
				require.NoError(rt, cur.Remove())
				delete(present, key)
			}
			cur.Close()
		}

		var want []int64
		for k := range present {
			want = append(want, k)
		}
		sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

		keys := newTestWalk(rt, p, tree)
		require.Equal(rt, len(want), len(keys))
		for i, k := range keys {
			require.Equal(rt, want[i], DecodeIntKey([]byte(k)))
		}
	})
}

func newTestWalk(rt *rapid.T, p *Pager, tree *BTree) []string {
	var keys []string
	var walk func(id PageID, isRoot bool) error
	walk = func(id PageID, isRoot bool) error {
		ref, err := p.GetPage(id)
		if err != nil {
			return err
		}
		defer p.Unref(ref)
		n := newNodeView(ref, p.PageSize(), tree.kt)

		if n.cellArea() < n.slotDirEnd() || n.cellAreaLogical() < n.cellArea() || n.cellAreaLogical() > p.PageSize() {
			rt.Fatalf("node %d violates the cell-area ordering invariant", id)
		}
		if !isRoot && n.logicalFreeSpace() > p.PageSize()/2 {
			rt.Fatalf("node %d occupancy below half a page", id)
		}

		if n.isLeaf() {
			for i := 0; i < n.cellCount(); i++ {
				keys = append(keys, string(n.keyAt(i)))
			}
			return nil
		}
		var prev []byte
		for i := 0; i < n.cellCount(); i++ {
			k := n.keyAt(i)
			if prev != nil && tree.kt.Compare(prev, k) >= 0 {
				rt.Fatalf("inner node %d keys not strictly ascending", id)
			}
			prev = k
			if err := walk(n.childAt(i), false); err != nil {
				return err
			}
		}
		return walk(n.rightmostChild(), false)
	}
	if err := walk(tree.Root(), true); err != nil {
		rt.Fatal(err)
	}
	return keys
}
