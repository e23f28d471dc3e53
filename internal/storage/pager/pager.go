package pager

import (
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const flagMutable uint32 = 1 << 0

// pageSlot is one entry in the page cache: a cached page's buffer plus
// its cache-management bookkeeping. It is the Go analogue of the C
// original's `Page` struct (engine.c/pager.c).
type pageSlot struct {
	id       PageID
	buf      []byte // page-sized raw buffer, mirrors on-disk bytes
	userBuf  []byte // auxiliary per-slot buffer, handed out by UserBuf
	refCount uint32
	flags    uint32

	mapNext *pageSlot // chained hash-table bucket link

	// Intrusive circular doubly-linked LRU list over slots with
	// refCount == 0. Unused while refCount > 0.
	lruNext, lruPrev *pageSlot
}

// PageRef is a live reference to a cached page, returned by GetPage,
// GetPageMutable and AllocPage. Every successful acquisition must be
// paired with exactly one Unref (or DeletePage, which implies one).
type PageRef struct {
	slot *pageSlot
}

// ID returns the page identifier this reference points at.
func (r *PageRef) ID() PageID { return r.slot.id }

// Bytes returns the page's raw on-disk buffer (page-size bytes). Mutating
// it is only permitted while the reference is mutable; the write-back
// happens on Unref.
func (r *PageRef) Bytes() []byte { return r.slot.buf }

// UserBuf returns the page's auxiliary buffer. Nothing in this package
// reads or writes it: the node layer parses its header from Bytes on
// every call rather than caching it here.
func (r *PageRef) UserBuf() []byte { return r.slot.userBuf }

// Config controls the pager's on-open behavior for a brand-new file.
type Config struct {
	PageSize       int
	CacheCapacity  int
	UserBufferSize int
	Logger         *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = DefaultPageSize
	}
	if c.CacheCapacity == 0 {
		c.CacheCapacity = DefaultCacheCapacity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Pager maps page ids to in-memory buffers: a bounded-capacity cache with
// LRU eviction, reference counting and mutability exclusivity, and the
// on-disk free-page list.
type Pager struct {
	file File
	log  *slog.Logger

	header        fileHeader
	filePageCount PageID // number of pages currently backed by the file, including page 0

	cacheCap       int
	cacheCount     int
	cacheMap       []*pageSlot // chained hash table, bucket = id % cacheCap
	lru            pageSlot    // sentinel node; unused fields besides lruNext/lruPrev
	userBufferSize int
}

// Open opens or initializes the backing file. If the file is smaller
// than MinPageSize it is treated as uninitialized: a default header is
// written and the file reserves page 0. Otherwise the header is read
// back and the page count is derived from the file size, which must be
// an exact multiple of the page size.
func Open(f File, cfg Config) (*Pager, error) {
	cfg = cfg.withDefaults()

	p := &Pager{
		file:     f,
		log:      cfg.Logger,
		cacheCap: cfg.CacheCapacity,
		cacheMap: make([]*pageSlot, cfg.CacheCapacity),
	}
	p.lru.lruNext = &p.lru
	p.lru.lruPrev = &p.lru

	size, err := f.Size()
	if err != nil {
		return nil, wrapFatal(err, "stat database file")
	}

	if size < MinPageSize {
		p.header = fileHeader{pageSize: uint16(cfg.PageSize)}
		buf := p.header.marshal()
		if _, err := f.WriteAt(buf[:], 0); err != nil {
			return nil, wrapFatal(err, "write initial file header")
		}
		p.filePageCount = 1
	} else {
		buf := make([]byte, fileHeaderSize)
		if _, err := f.ReadAt(buf, 0); err != nil {
			return nil, wrapFatal(err, "read file header")
		}
		p.header.unmarshal(buf)
		if string(buf[:len(fileHeaderTitle)]) != fileHeaderTitle {
			return nil, fatalf("corrupt file header: unrecognized title")
		}
		if p.header.pageSize < MinPageSize {
			return nil, fatalf("corrupt file header: page size %d below minimum", p.header.pageSize)
		}
		if size%int64(p.header.pageSize) != 0 {
			return nil, fatalf("corrupt database file: size %d is not a multiple of page size %d", size, p.header.pageSize)
		}
		p.filePageCount = PageID(size / int64(p.header.pageSize))
	}

	if cfg.UserBufferSize > 0 {
		p.InitUserBuffers(cfg.UserBufferSize)
	} else {
		p.InitUserBuffers(8)
	}

	return p, nil
}

// InitUserBuffers sets the per-slot auxiliary buffer size (minimum 8
// bytes) returned by UserBuf; the node layer does not use it.
func (p *Pager) InitUserBuffers(size int) {
	if size < 8 {
		size = 8
	}
	p.userBufferSize = size
}

// PageSize returns the configured page size in bytes.
func (p *Pager) PageSize() int { return int(p.header.pageSize) }

// PageCount returns the number of pages backed by the file, including
// the header page (id 0).
func (p *Pager) PageCount() PageID { return p.filePageCount }

func (p *Pager) bucket(id PageID) int { return int(id) % p.cacheCap }

func (p *Pager) mapGet(id PageID) *pageSlot {
	s := p.cacheMap[p.bucket(id)]
	for s != nil && s.id != id {
		s = s.mapNext
	}
	return s
}

func (p *Pager) mapAdd(s *pageSlot) {
	b := p.bucket(s.id)
	s.mapNext = p.cacheMap[b]
	p.cacheMap[b] = s
}

func (p *Pager) mapRemove(s *pageSlot) {
	b := p.bucket(s.id)
	slot := &p.cacheMap[b]
	for *slot != s {
		slot = &(*slot).mapNext
	}
	*slot = s.mapNext
}

func (p *Pager) lruAdd(s *pageSlot) {
	s.lruNext = p.lru.lruNext
	p.lru.lruNext = s
	s.lruPrev = &p.lru
	s.lruNext.lruPrev = s
}

func (p *Pager) lruRemove(s *pageSlot) {
	s.lruPrev.lruNext = s.lruNext
	s.lruNext.lruPrev = s.lruPrev
}

func (p *Pager) decrementRefCount(s *pageSlot) {
	if s.refCount == 0 {
		panic("pager: refcount underflow")
	}
	s.refCount--
	if s.refCount == 0 {
		p.lruAdd(s)
	}
}

// getEmptyCacheSlot returns a slot ready to hold page id: either a fresh
// slot (cache below capacity) or the LRU victim (cache full). The victim
// MUST have refCount == 0; callers rely on the fatal panic below never
// firing in a correctly-used pager.
func (p *Pager) getEmptyCacheSlot(id PageID) (*pageSlot, error) {
	var s *pageSlot

	if p.cacheCount < p.cacheCap {
		p.cacheCount++
		s = &pageSlot{
			buf:     make([]byte, p.PageSize()),
			userBuf: make([]byte, p.userBufferSize),
		}
	} else {
		victim := p.lru.lruPrev
		if victim == &p.lru {
			return nil, fatalf("page cache exhausted: no unreferenced page to evict")
		}
		if victim.refCount != 0 {
			return nil, fatalf("page cache corruption: LRU victim has outstanding references")
		}
		p.log.Debug("evicting cached page",
			"victim", victim.id, "replacement", id,
			"cache_bytes", humanize.Bytes(uint64(p.cacheCap*p.PageSize())))
		p.lruRemove(victim)
		p.mapRemove(victim)
		for i := range victim.userBuf {
			victim.userBuf[i] = 0
		}
		s = victim
	}

	s.id = id
	s.refCount = 1
	s.flags = 0
	s.mapNext = nil
	p.mapAdd(s)
	return s, nil
}

func (p *Pager) pageOffset(id PageID) int64 { return int64(id) * int64(p.PageSize()) }

func (p *Pager) readFromDisk(s *pageSlot) error {
	if _, err := p.file.ReadAt(s.buf, p.pageOffset(s.id)); err != nil {
		return wrapFatal(err, "read page from disk")
	}
	return nil
}

func (p *Pager) writeToDisk(s *pageSlot) error {
	if _, err := p.file.WriteAt(s.buf, p.pageOffset(s.id)); err != nil {
		return wrapFatal(err, "write page to disk")
	}
	return nil
}

func (p *Pager) writeHeaderToDisk() error {
	buf := p.header.marshal()
	if _, err := p.file.WriteAt(buf[:], 0); err != nil {
		return wrapFatal(err, "write file header")
	}
	return nil
}

// GetPage acquires an immutable reference to page id. It fails if the
// page currently has an outstanding mutable reference.
func (p *Pager) GetPage(id PageID) (*PageRef, error) {
	if id == InvalidPageID {
		return nil, fatalf("cannot get page 0 (file header)")
	}
	if id >= p.filePageCount {
		return nil, fatalf("page id %d out of range (page count %d)", id, p.filePageCount)
	}

	s := p.mapGet(id)
	if s != nil {
		if s.flags&flagMutable != 0 {
			return nil, errors.Errorf("page %d is currently mutably referenced", id)
		}
		if s.refCount == 0 {
			p.lruRemove(s)
		}
		s.refCount++
		return &PageRef{slot: s}, nil
	}

	s, err := p.getEmptyCacheSlot(id)
	if err != nil {
		return nil, err
	}
	if err := p.readFromDisk(s); err != nil {
		return nil, err
	}
	return &PageRef{slot: s}, nil
}

// GetPageMutable acquires a mutable reference to page id; it only
// succeeds if the page's reference count would be exactly 1.
func (p *Pager) GetPageMutable(id PageID) (*PageRef, error) {
	ref, err := p.GetPage(id)
	if err != nil {
		return nil, err
	}
	if !p.MakeMutable(ref) {
		p.Unref(ref)
		return nil, errors.Errorf("page %d has more than one reference outstanding", id)
	}
	return ref, nil
}

// MakeMutable transitions ref to mutable in place, when it is the sole
// reference to its page. Returns whether the transition succeeded.
func (p *Pager) MakeMutable(ref *PageRef) bool {
	s := ref.slot
	if s.refCount != 1 {
		return false
	}
	s.flags |= flagMutable
	return true
}

// IsMutable reports whether ref currently holds the mutable flag.
//
// The C original computed `flags | F_PAGE_HAS_MUTABLE_REF`, which is
// always truthy regardless of the flag's actual state — documented as a
// bug in spec §9. This implementation uses bitwise AND, as the spec
// recommends.
func (p *Pager) IsMutable(ref *PageRef) bool {
	return ref.slot.flags&flagMutable != 0
}

// RefCount returns the page's current reference count.
func (p *Pager) RefCount(ref *PageRef) uint32 { return ref.slot.refCount }

// AllocPage returns a mutable reference to a fresh page: the head of the
// free list if one exists, otherwise a zeroed page appended to the file.
func (p *Pager) AllocPage() (*PageRef, error) {
	var s *pageSlot
	var err error

	if p.header.freePage != InvalidPageID {
		s, err = p.getEmptyCacheSlot(p.header.freePage)
		if err != nil {
			return nil, err
		}
		if err := p.readFromDisk(s); err != nil {
			return nil, err
		}
		p.header.freePage = readFreeListNext(s.buf)
	} else {
		id := p.filePageCount
		p.filePageCount++
		s, err = p.getEmptyCacheSlot(id)
		if err != nil {
			return nil, err
		}
		for i := range s.buf {
			s.buf[i] = 0
		}
		if err := p.file.Append(s.buf); err != nil {
			return nil, wrapFatal(err, "append new page")
		}
	}

	s.flags |= flagMutable
	return &PageRef{slot: s}, nil
}

func readFreeListNext(buf []byte) PageID {
	off := nextFreePageOffset(len(buf))
	return PageID(leUint32(buf[off : off+4]))
}

func writeFreeListNext(buf []byte, next PageID) {
	off := nextFreePageOffset(len(buf))
	putLEUint32(buf[off:off+4], uint32(next))
}

// DeletePage adds ref's page to the free list and unrefs it. It only
// succeeds (and only makes sense) when ref is the page's sole reference.
func (p *Pager) DeletePage(ref *PageRef) (bool, error) {
	s := ref.slot
	if s.refCount != 1 {
		return false, nil
	}

	writeFreeListNext(s.buf, p.header.freePage)
	p.header.freePage = s.id
	if err := p.writeToDisk(s); err != nil {
		return false, err
	}
	if err := p.writeHeaderToDisk(); err != nil {
		return false, err
	}

	p.decrementRefCount(s)
	return true, nil
}

// Unref releases one reference to ref's page. If the reference count
// reaches zero the page becomes eligible for LRU eviction. If the
// mutable flag was set, it is cleared and the page is written back.
func (p *Pager) Unref(ref *PageRef) error {
	s := ref.slot
	p.decrementRefCount(s)

	if s.flags&flagMutable != 0 {
		s.flags &^= flagMutable
		if err := p.writeToDisk(s); err != nil {
			return err
		}
	}
	return nil
}

// FileIsEmpty reports whether the database file has never been grown
// beyond its header page.
func (p *Pager) FileIsEmpty() bool { return p.filePageCount == 1 }

// Stats summarizes the pager's current cache pressure, for the CLI's
// .stats meta-command.
type Stats struct {
	PageSize      int
	PageCount     PageID
	CacheCapacity int
	CachedPages   int
}

// String renders Stats the way the CLI's diagnostics log lines do,
// using human-readable byte counts rather than a raw page count.
func (s Stats) String() string {
	return humanize.Bytes(uint64(s.PageSize)*uint64(s.PageCount)) + " on disk, " +
		humanize.Comma(int64(s.CachedPages)) + "/" + humanize.Comma(int64(s.CacheCapacity)) + " pages cached"
}

// Stats returns a snapshot of the pager's cache pressure.
func (p *Pager) Stats() Stats {
	return Stats{
		PageSize:      p.PageSize(),
		PageCount:     p.filePageCount,
		CacheCapacity: p.cacheCap,
		CachedPages:   p.cacheCount,
	}
}

// Close releases the backing file. It does not need to flush anything
// beyond what Unref already wrote back, since this pager has no WAL or
// deferred-write buffering (spec §5: "no durability protocol").
func (p *Pager) Close() error {
	return p.file.Close()
}
