package pager

// Node header layout (12 bytes), at the start of every B-tree page:
//
//	0:2   flags (leaf bit, freed bit)
//	2:4   cell count
//	4:6   cell area offset (physical top of the cell region)
//	6:8   logical cell area offset (accounts for unreclaimed fragmentation)
//	8:12  rightmost child page id (inner nodes only)
//
// Followed by the slot array: cellCount u16 offsets, in strictly
// ascending key order. Cells grow downward from the end of the page.
const (
	hdrFlags           = 0
	hdrCellCount       = 2
	hdrCellArea        = 4
	hdrCellAreaLogical = 6
	hdrRightChild      = 8
	nodeHeaderSize     = 12
	slotSize           = 2

	flagLeaf  uint16 = 1 << 0
	flagFreed uint16 = 1 << 1
)

// node interprets a page as a B-tree node. It borrows (does not own) a
// PageRef; the caller is responsible for acquiring and unreffing it.
type node struct {
	ref *PageRef
	ps  int // page size, cached for convenience
	kt  KeyType
}

func newNodeView(ref *PageRef, ps int, kt KeyType) *node {
	return &node{ref: ref, ps: ps, kt: kt}
}

func (n *node) buf() []byte { return n.ref.Bytes() }

func (n *node) isLeaf() bool  { return leUint16(n.buf()[hdrFlags:])&flagLeaf != 0 }
func (n *node) isFreed() bool { return leUint16(n.buf()[hdrFlags:])&flagFreed != 0 }

func (n *node) setLeaf(v bool) {
	flags := leUint16(n.buf()[hdrFlags:])
	if v {
		flags |= flagLeaf
	} else {
		flags &^= flagLeaf
	}
	putLEUint16(n.buf()[hdrFlags:], flags)
}

func (n *node) setFreed(v bool) {
	flags := leUint16(n.buf()[hdrFlags:])
	if v {
		flags |= flagFreed
	} else {
		flags &^= flagFreed
	}
	putLEUint16(n.buf()[hdrFlags:], flags)
}

func (n *node) cellCount() int      { return int(leUint16(n.buf()[hdrCellCount:])) }
func (n *node) setCellCount(v int)  { putLEUint16(n.buf()[hdrCellCount:], uint16(v)) }
func (n *node) cellArea() int       { return int(leUint16(n.buf()[hdrCellArea:])) }
func (n *node) setCellArea(v int)   { putLEUint16(n.buf()[hdrCellArea:], uint16(v)) }
func (n *node) cellAreaLogical() int     { return int(leUint16(n.buf()[hdrCellAreaLogical:])) }
func (n *node) setCellAreaLogical(v int) { putLEUint16(n.buf()[hdrCellAreaLogical:], uint16(v)) }

func (n *node) rightmostChild() PageID { return PageID(leUint32(n.buf()[hdrRightChild:])) }
func (n *node) setRightmostChild(id PageID) {
	putLEUint32(n.buf()[hdrRightChild:], uint32(id))
}

// initEmpty resets the page to an empty node of the given kind.
func (n *node) initEmpty(leaf bool) {
	for i := 0; i < nodeHeaderSize; i++ {
		n.buf()[i] = 0
	}
	n.setLeaf(leaf)
	n.setCellArea(n.ps)
	n.setCellAreaLogical(n.ps)
	n.setRightmostChild(InvalidPageID)
}

func (n *node) slotOffset(i int) int { return nodeHeaderSize + i*slotSize }

func (n *node) slotAt(i int) int {
	o := n.slotOffset(i)
	return int(leUint16(n.buf()[o:]))
}

func (n *node) setSlotAt(i, cellOffset int) {
	o := n.slotOffset(i)
	putLEUint16(n.buf()[o:], uint16(cellOffset))
}

// --- free space accounting ----------------------------------------------

func (n *node) slotDirEnd() int { return nodeHeaderSize + n.cellCount()*slotSize }

func (n *node) physicalFreeSpace() int { return n.cellArea() - n.slotDirEnd() }
func (n *node) logicalFreeSpace() int  { return n.cellAreaLogical() - n.slotDirEnd() }

// canFitCell reports whether a new cell of size bytes (plus its slot
// entry) fits in the node's logical free space.
func (n *node) canFitCell(size int) bool { return size+slotSize <= n.logicalFreeSpace() }

// --- cell sizing and accessors -------------------------------------------

// cellSizeAt returns the total on-page size of the cell at slot i.
func (n *node) cellSizeAt(i int) int {
	off := n.slotAt(i)
	if n.isLeaf() {
		ks := n.kt.KeySize(n.buf()[off:])
		vs := valueSize(n.buf()[off+ks:])
		return ks + vs
	}
	ks := n.kt.KeySize(n.buf()[off+4:])
	return 4 + ks
}

func (n *node) cellBytesAt(i int) []byte {
	off := n.slotAt(i)
	size := n.cellSizeAt(i)
	return n.buf()[off : off+size]
}

// innerChildAt returns the child page id stored in an inner cell.
func (n *node) innerChildAt(i int) PageID {
	off := n.slotAt(i)
	return PageID(leUint32(n.buf()[off:]))
}

func (n *node) innerKeyAt(i int) []byte {
	off := n.slotAt(i)
	ks := n.kt.KeySize(n.buf()[off+4:])
	return n.buf()[off+4 : off+4+ks]
}

func (n *node) leafKeyAt(i int) []byte {
	off := n.slotAt(i)
	ks := n.kt.KeySize(n.buf()[off:])
	return n.buf()[off : off+ks]
}

func (n *node) leafValueAt(i int) []byte {
	off := n.slotAt(i)
	ks := n.kt.KeySize(n.buf()[off:])
	vs := valueSize(n.buf()[off+ks:])
	return n.buf()[off+ks : off+ks+vs]
}

// keyAt returns the key bytes of the cell at slot i, regardless of node
// kind.
func (n *node) keyAt(i int) []byte {
	if n.isLeaf() {
		return n.leafKeyAt(i)
	}
	return n.innerKeyAt(i)
}

// --- mutation primitives ---------------------------------------------------

// allocCell reserves size bytes at the top of the cell region,
// defragmenting first if the physical free space is insufficient.
// Returns the offset of the reserved region.
func (n *node) allocCell(size int) int {
	if n.physicalFreeSpace() < size {
		n.defragment()
	}
	off := n.cellArea() - size
	n.setCellArea(off)
	n.setCellAreaLogical(n.cellAreaLogical() - size)
	return off
}

// freeCell marks size bytes starting at offset as logically free; if
// they sit at the current physical top of the cell region, the space is
// also physically reclaimed immediately.
func (n *node) freeCell(offset, size int) {
	n.setCellAreaLogical(n.cellAreaLogical() + size)
	if offset == n.cellArea() {
		n.setCellArea(n.cellArea() + size)
	}
}

// addCell allocates size bytes and inserts a slot for them at index,
// shifting later slots right. Returns the cell's offset.
func (n *node) addCell(index, size int) int {
	off := n.allocCell(size)
	cnt := n.cellCount()
	for i := cnt; i > index; i-- {
		n.setSlotAt(i, n.slotAt(i-1))
	}
	n.setSlotAt(index, off)
	n.setCellCount(cnt + 1)
	return off
}

// addRawCell is addCell followed by copying raw verbatim into the new
// cell's bytes.
func (n *node) addRawCell(index int, raw []byte) {
	off := n.addCell(index, len(raw))
	copy(n.buf()[off:off+len(raw)], raw)
}

// deleteCell frees and removes the slot at index.
func (n *node) deleteCell(index int) {
	off := n.slotAt(index)
	size := n.cellSizeAt(index)
	n.freeCell(off, size)
	cnt := n.cellCount()
	for i := index; i < cnt-1; i++ {
		n.setSlotAt(i, n.slotAt(i+1))
	}
	n.setCellCount(cnt - 1)
}

// defragment compacts all live cells to the top of the cell region in
// slot-array (key) order, eliminating all fragmentation in one pass.
func (n *node) defragment() {
	cnt := n.cellCount()
	scratch := make([]byte, n.ps)
	top := n.ps
	offsets := make([]int, cnt)

	for i := 0; i < cnt; i++ {
		size := n.cellSizeAt(i)
		src := n.cellBytesAt(i)
		top -= size
		copy(scratch[top:top+size], src)
		offsets[i] = top
	}

	copy(n.buf()[top:], scratch[top:])
	for i := 0; i < cnt; i++ {
		n.setSlotAt(i, offsets[i])
	}
	n.setCellArea(top)
	n.setCellAreaLogical(top)
}

// moveCellsLeft moves the first count cells of right (its smallest keys)
// onto the end of left, preserving order.
func moveCellsLeft(left, right *node, count int) {
	for i := 0; i < count; i++ {
		raw := append([]byte(nil), right.cellBytesAt(0)...)
		right.deleteCell(0)
		left.addRawCell(left.cellCount(), raw)
	}
}

// moveCellsRight moves the last count cells of left (its largest keys)
// onto the front of right, preserving order.
//
// The C original implements this with an "append then swap the two
// halves" trick to avoid an O(n) prepend on every cell. This
// implementation instead goes through the ordinary addCell/deleteCell
// slot-shifting primitives; it is simpler and still O(n) per cell, but
// correctness (and the on-disk layout it produces) is identical.
func moveCellsRight(left, right *node, count int) {
	startIdx := left.cellCount() - count
	for i := 0; i < count; i++ {
		raw := append([]byte(nil), left.cellBytesAt(startIdx)...)
		left.deleteCell(startIdx)
		right.addRawCell(i, raw)
	}
}

// searchLeafBy returns the index of the first cell whose key compares
// >= the search target under cmp (cmp(candidateRawKey) mirrors
// KeyType.Compare's sign convention: negative if candidate < target),
// and whether an exact match (cmp == 0) was found.
func (n *node) searchLeafBy(cmp func([]byte) int) (idx int, exact bool) {
	cnt := n.cellCount()
	lo, hi := 0, cnt
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.leafKeyAt(mid)) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < cnt && cmp(n.leafKeyAt(lo)) == 0 {
		return lo, true
	}
	return lo, false
}

// searchInnerBy returns the index of the first cell whose key compares
// >= the search target under cmp, or cellCount() if none (meaning
// descend rightmostChild).
func (n *node) searchInnerBy(cmp func([]byte) int) int {
	cnt := n.cellCount()
	lo, hi := 0, cnt
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.innerKeyAt(mid)) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// searchLeaf returns the index of the first cell with key >= key, and
// whether an exact match was found.
func (n *node) searchLeaf(kt KeyType, key Key) (idx int, exact bool) {
	return n.searchLeafBy(func(raw []byte) int { return kt.CompareUnresolved(raw, key) })
}

// searchInner returns the index of the first cell with key >= key, or
// cellCount() if none (meaning descend rightmostChild).
func (n *node) searchInner(kt KeyType, key Key) int {
	return n.searchInnerBy(func(raw []byte) int { return kt.CompareUnresolved(raw, key) })
}

// childAt returns the child page id a cursor should descend into for
// slot index idx, where idx may equal cellCount() (meaning
// rightmostChild).
func (n *node) childAt(idx int) PageID {
	if idx >= n.cellCount() {
		return n.rightmostChild()
	}
	return n.innerChildAt(idx)
}

// addRawInnerCellAt inserts a new inner cell at slot index from an
// already-serialized key (as opposed to an in-memory Key value): inner
// separators are always promoted from an existing cell's bytes, copied
// verbatim, never freshly serialized from a typed value.
func (n *node) addRawInnerCellAt(index int, keyRaw []byte, child PageID) {
	off := n.addCell(index, 4+len(keyRaw))
	putLEUint32(n.buf()[off:off+4], uint32(child))
	copy(n.buf()[off+4:], keyRaw)
}

// reset reinitializes the page as an empty node of the given kind,
// discarding all cells. Used when collapsing the root onto a child.
func (n *node) reset(leaf bool) { n.initEmpty(leaf) }

// copyFrom overwrites n's entire page buffer with src's, preserving n's
// own PageRef (and therefore its page id). Used by splitNode's
// root-split case to relocate the root's old content onto a fresh page.
func (n *node) copyFrom(src *node) {
	copy(n.buf(), src.buf())
}
