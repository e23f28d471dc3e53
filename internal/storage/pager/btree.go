package pager

// BTree is a persistent, ordered map from typed keys to arbitrary-width
// byte values, built on top of the pager as a slotted-page B-tree with
// rotate/split/merge rebalancing. Its root page id is the tree's
// durable identity: a catalog layer persists it to reopen the same tree
// across a process restart, and it never changes across splits or
// merges.
type BTree struct {
	pager *Pager
	kt    KeyType
	root  PageID
}

// NewBTree allocates a fresh, empty tree: a single empty leaf page
// serving as its root.
func NewBTree(p *Pager, kt KeyType) (*BTree, error) {
	ref, err := p.AllocPage()
	if err != nil {
		return nil, err
	}
	newNodeView(ref, p.PageSize(), kt).initEmpty(true)
	root := ref.ID()
	if err := p.Unref(ref); err != nil {
		return nil, err
	}
	return &BTree{pager: p, kt: kt, root: root}, nil
}

// LoadBTree reopens an existing tree given its root page id, as
// recorded by the catalog that owns it.
func LoadBTree(p *Pager, kt KeyType, root PageID) *BTree {
	return &BTree{pager: p, kt: kt, root: root}
}

// Root returns the tree's root page id.
func (t *BTree) Root() PageID { return t.root }

// NewCursor returns a fresh, unpositioned cursor over the tree.
func (t *BTree) NewCursor() *Cursor { return &Cursor{tree: t} }

// Delete walks the entire tree freeing every page it owns. The tree
// must not be used again afterward.
func (t *BTree) Delete() error {
	c := t.NewCursor()
	c.deleteOnExit = true
	for {
		ok, err := c.gotoNextNode()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}
