package pager

// maxBTreeHeight bounds a cursor's root-to-leaf path. A tree built on
// reasonably sized pages cannot grow anywhere near this deep; it exists
// as a hard backstop against a corrupt or cyclic on-disk structure.
const maxBTreeHeight = 32

// cursorFrame is one (node, slot index) step on a cursor's path from
// the tree's root down to its current position.
type cursorFrame struct {
	ref *PageRef
	n   *node
	idx int
}

// Cursor is a path-encoded position inside a BTree: the sole means of
// reading, inserting, updating, and removing rows. A cursor holds a
// mutable reference to every node on its path, from the root down to
// the node it currently points at, and must be Close'd (or Reset) to
// release them. Cursors are not safe for concurrent use.
type Cursor struct {
	tree *BTree
	path []cursorFrame

	// skipNext is set by Remove when the rebalance cascade has already
	// re-seeked the cursor onto the row that slid into the vacated
	// slot; the very next GotoNext then returns that row instead of
	// skipping past it.
	skipNext bool

	// deleteOnExit marks a cursor used only for whole-tree deletion
	// (BTree.Delete): gotoNextNode frees each node as it backs out of
	// it instead of merely unreffing it.
	deleteOnExit bool
}

func (c *Cursor) node() *node {
	if len(c.path) == 0 {
		return nil
	}
	return c.path[len(c.path)-1].n
}

func (c *Cursor) idx() int { return c.path[len(c.path)-1].idx }

func (c *Cursor) setIdx(i int) { c.path[len(c.path)-1].idx = i }

func (c *Cursor) push(ref *PageRef, idx int) {
	if len(c.path) >= maxBTreeHeight {
		panic("pager: b-tree exceeds maximum height")
	}
	c.path = append(c.path, cursorFrame{ref: ref, n: newNodeView(ref, c.tree.pager.PageSize(), c.tree.kt), idx: idx})
}

func (c *Cursor) pushByID(id PageID, idx int) error {
	ref, err := c.tree.pager.GetPageMutable(id)
	if err != nil {
		return err
	}
	c.push(ref, idx)
	return nil
}

// pop removes and returns the top frame without releasing its page
// reference; the caller becomes responsible for it.
func (c *Cursor) pop() cursorFrame {
	f := c.path[len(c.path)-1]
	c.path = c.path[:len(c.path)-1]
	return f
}

func (c *Cursor) popUnref() error {
	if len(c.path) == 0 {
		return nil
	}
	f := c.pop()
	return c.tree.pager.Unref(f.ref)
}

// Reset releases every node reference on the cursor's path, leaving it
// unpositioned.
func (c *Cursor) Reset() error {
	c.skipNext = false
	for len(c.path) > 0 {
		if err := c.popUnref(); err != nil {
			return err
		}
	}
	return nil
}

// Close is equivalent to Reset; it exists so a cursor satisfies the
// same defer-friendly shape as other resources in this package.
func (c *Cursor) Close() error { return c.Reset() }

// gotoNextNode advances to the next node in a full pre-order tree walk
// (descend into the first child, then on backing out of a leaf, move
// to each parent's next child in turn). It is used only by BTree.Delete
// to visit and free every page. Returns false once the walk is done.
func (c *Cursor) gotoNextNode() (bool, error) {
	if c.node() == nil {
		if err := c.pushByID(c.tree.root, 0); err != nil {
			return false, err
		}
		return true, nil
	}

	if !c.node().isLeaf() {
		child := c.node().childAt(c.idx())
		if err := c.pushByID(child, 0); err != nil {
			return false, err
		}
		return true, nil
	}

	for {
		f := c.pop()
		if c.deleteOnExit {
			f.n.setFreed(true)
			if _, err := c.tree.pager.DeletePage(f.ref); err != nil {
				return false, err
			}
		} else if err := c.tree.pager.Unref(f.ref); err != nil {
			return false, err
		}
		if len(c.path) == 0 {
			return false, nil
		}
		n := c.node()
		nextIdx := c.idx() + 1
		if nextIdx <= n.cellCount() {
			c.setIdx(nextIdx)
			child := n.childAt(nextIdx)
			if err := c.pushByID(child, 0); err != nil {
				return false, err
			}
			return true, nil
		}
	}
}

func (c *Cursor) gotoLeftmostLeaf() error {
	for !c.node().isLeaf() {
		child := c.node().childAt(c.idx())
		if err := c.pushByID(child, 0); err != nil {
			return err
		}
	}
	return nil
}

func (c *Cursor) gotoRightmostLeaf() error {
	for !c.node().isLeaf() {
		childID := c.node().childAt(c.idx())
		if err := c.pushByID(childID, 0); err != nil {
			return err
		}
		child := c.node()
		idx := child.cellCount()
		if child.isLeaf() {
			idx--
		}
		c.setIdx(idx)
	}
	return nil
}

// GotoFirst positions the cursor at the tree's smallest key. It reports
// false for an empty tree.
func (c *Cursor) GotoFirst() (bool, error) {
	if err := c.Reset(); err != nil {
		return false, err
	}
	if err := c.pushByID(c.tree.root, 0); err != nil {
		return false, err
	}
	if err := c.gotoLeftmostLeaf(); err != nil {
		return false, err
	}
	return c.node().cellCount() > 0, nil
}

// GotoLast positions the cursor at the tree's largest key. It reports
// false for an empty tree.
func (c *Cursor) GotoLast() (bool, error) {
	if err := c.Reset(); err != nil {
		return false, err
	}
	if err := c.pushByID(c.tree.root, 0); err != nil {
		return false, err
	}
	if err := c.gotoRightmostLeaf(); err != nil {
		return false, err
	}
	return c.node().cellCount() > 0, nil
}

// GotoNext advances the cursor to the next row in key order.
func (c *Cursor) GotoNext() (bool, error) {
	if c.skipNext {
		c.skipNext = false
		return c.node() != nil && c.idx() < c.node().cellCount(), nil
	}
	n := c.node()
	if n == nil || !n.isLeaf() {
		return false, nil
	}
	if c.idx() < n.cellCount()-1 {
		c.setIdx(c.idx() + 1)
		return true, nil
	}
	for {
		if err := c.popUnref(); err != nil {
			return false, err
		}
		if len(c.path) == 0 {
			return false, nil
		}
		if c.idx() < c.node().cellCount() {
			c.setIdx(c.idx() + 1)
			if err := c.gotoLeftmostLeaf(); err != nil {
				return false, err
			}
			if c.node().cellCount() > 0 {
				return true, nil
			}
		}
	}
}

// GotoPrev moves the cursor to the previous row in key order.
func (c *Cursor) GotoPrev() (bool, error) {
	if c.skipNext {
		c.skipNext = false
	} else {
		n := c.node()
		if n == nil || !n.isLeaf() {
			return false, nil
		}
	}
	if c.idx() > 0 {
		c.setIdx(c.idx() - 1)
		return true, nil
	}
	for {
		if err := c.popUnref(); err != nil {
			return false, err
		}
		if len(c.path) == 0 {
			return false, nil
		}
		if c.idx() > 0 {
			c.setIdx(c.idx() - 1)
			if err := c.gotoRightmostLeaf(); err != nil {
				return false, err
			}
			if c.node().cellCount() > 0 {
				return true, nil
			}
		}
	}
}

// gotoBy descends from the root comparing at each node with cmp, which
// mirrors KeyType.Compare's sign convention: cmp(candidateRawKey)
// is negative when the candidate sorts before the search target.
func (c *Cursor) gotoBy(cmp func([]byte) int) (bool, error) {
	if err := c.Reset(); err != nil {
		return false, err
	}
	if err := c.pushByID(c.tree.root, 0); err != nil {
		return false, err
	}
	for {
		n := c.node()
		if !n.isLeaf() {
			idx := n.searchInnerBy(cmp)
			c.setIdx(idx)
			child := n.childAt(idx)
			if err := c.pushByID(child, 0); err != nil {
				return false, err
			}
			continue
		}
		idx, exact := n.searchLeafBy(cmp)
		c.setIdx(idx)
		return exact, nil
	}
}

// GotoKey descends the tree comparing the given in-memory key against
// each node's (still-serialized) keys, stopping at the first cell whose
// key is >= it. Returns whether an exact match was found.
func (c *Cursor) GotoKey(key Key) (bool, error) {
	kt := c.tree.kt
	return c.gotoBy(func(raw []byte) int { return kt.CompareUnresolved(raw, key) })
}

// gotoRawKey is GotoKey's counterpart for an already-serialized key: it
// re-seeks the cursor after a rebalance using bytes saved from a cell
// that may have been relocated or freed by the rebalance (the "key
// saver" pattern: the cell's raw bytes are copied out to a scratch
// buffer before the cascade runs, since the cascade can invalidate the
// original cell's location).
func (c *Cursor) gotoRawKey(raw []byte) (bool, error) {
	kt := c.tree.kt
	return c.gotoBy(func(candidate []byte) int { return kt.Compare(candidate, raw) })
}

// Read returns the row bytes of the cell the cursor currently points
// at. The returned slice aliases the page buffer and is only valid
// until the cursor moves or mutates the tree.
func (c *Cursor) Read() []byte {
	return c.node().leafValueAt(c.idx())
}

// RawKey returns the serialized key bytes of the cell the cursor
// currently points at. Like Read, the returned slice aliases the page
// buffer and is only valid until the cursor moves or mutates the tree.
func (c *Cursor) RawKey() []byte {
	return c.node().leafKeyAt(c.idx())
}

// checkCellSize enforces the same bound the node layer relies on to
// guarantee any single cell fits well within a node with room to spare
// for rebalancing: key size plus the larger of the value size or a
// child pointer with its slot entry must stay under half a page.
func checkCellSize(pageSize, keySize, valSize int) error {
	aux := valSize
	if slotSize+4 > aux {
		aux = slotSize + 4
	}
	if keySize+aux >= pageSize/2 {
		return fatalf("pager: cell of %d bytes exceeds half the page size (%d)", keySize+aux, pageSize/2)
	}
	return nil
}

// Insert adds a new cell immediately before the cell the cursor
// currently points at; the cursor ends up pointing at the inserted
// cell.
func (c *Cursor) Insert(key Key, val []byte) error {
	kt := c.tree.kt
	keySize := kt.UnresolvedKeySize(key)
	if err := checkCellSize(c.tree.pager.PageSize(), keySize, len(val)); err != nil {
		return err
	}
	if err := c.ensureCellSpace(keySize + len(val)); err != nil {
		return err
	}
	n := c.node()
	off := n.addCell(c.idx(), keySize+len(val))
	kt.Serialize(key, n.buf()[off:off+keySize])
	copy(n.buf()[off+keySize:off+keySize+len(val)], val)
	return nil
}

// Update overwrites the value of the cell the cursor currently points
// at, keeping its key. If the new value is a different size the cell
// may need to grow, which can trigger the same rebalance cascade as
// Insert.
func (c *Cursor) Update(newVal []byte) error {
	n := c.node()
	idx := c.idx()
	oldSize := n.cellSizeAt(idx)
	keySize := len(n.leafKeyAt(idx))
	newSize := keySize + len(newVal)

	if newSize == oldSize {
		off := n.slotAt(idx)
		copy(n.buf()[off+keySize:off+newSize], newVal)
		return nil
	}
	if err := checkCellSize(c.tree.pager.PageSize(), keySize, len(newVal)); err != nil {
		return err
	}

	savedKey := append([]byte(nil), n.leafKeyAt(idx)...)
	n.deleteCell(idx)
	if err := c.ensureCellSpace(newSize); err != nil {
		return err
	}
	n = c.node()
	off := n.addCell(c.idx(), newSize)
	copy(n.buf()[off:off+keySize], savedKey)
	copy(n.buf()[off+keySize:off+newSize], newVal)
	return nil
}

// Remove deletes the cell the cursor currently points at. If that
// leaves the node at or above half-page occupancy, it is a plain
// delete. Otherwise the rotate/merge cascade runs, which may relocate
// the surviving neighbor entirely, so the cursor saves the deleted
// cell's key, runs the cascade, and re-seeks by that key; it then sets
// skipNext so the next GotoNext returns the row that slid into the
// vacated slot rather than advancing past it.
func (c *Cursor) Remove() error {
	n := c.node()
	idx := c.idx()
	futureFreeSpace := n.logicalFreeSpace() + n.cellSizeAt(idx) + slotSize
	halfPage := c.tree.pager.PageSize() / 2

	if futureFreeSpace <= halfPage {
		n.deleteCell(idx)
		c.skipNext = false
		return nil
	}

	savedKey := append([]byte(nil), n.leafKeyAt(idx)...)
	if err := c.cursorRemove(); err != nil {
		return err
	}
	if _, err := c.gotoRawKey(savedKey); err != nil {
		return err
	}
	if nd := c.node(); nd != nil && c.idx() < nd.cellCount() {
		c.skipNext = true
	}
	return nil
}
