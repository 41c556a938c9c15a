package page

import (
	"sync/atomic"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * Page is the basic unit of storage within the system. It wraps an
 * actual data page held on memory plus the book-keeping used by the
 * buffer pool manager (pin count, dirty flag, page identity).
 */
type Page struct {
	id       types.PageId
	pinCount int32
	isDirty  bool
	data     *[common.PageSize]byte
	rwlatch  common.ReaderWriterLatch
}

// IncPinCount increments pin count
func (p *Page) IncPinCount() {
	atomic.AddInt32(&p.pinCount, 1)
}

// DecPinCount decrements pin count
func (p *Page) DecPinCount() {
	atomic.AddInt32(&p.pinCount, -1)
}

// PinCount returns the pin count
func (p *Page) PinCount() int32 {
	return atomic.LoadInt32(&p.pinCount)
}

// GetPageId returns the page identity (fd, page_no)
func (p *Page) GetPageId() types.PageId {
	return p.id
}

// GetPageNo returns the page number within its file
func (p *Page) GetPageNo() types.PageID {
	return p.id.PageNo
}

// Data returns the data of the page
func (p *Page) Data() *[common.PageSize]byte {
	return p.data
}

// SetIsDirty sets the isDirty bit
func (p *Page) SetIsDirty(isDirty bool) {
	p.isDirty = isDirty
}

// IsDirty checks if the page is dirty
func (p *Page) IsDirty() bool {
	return p.isDirty
}

// Copy copies data into the page at offset
func (p *Page) Copy(offset uint32, data []byte) {
	copy(p.data[offset:], data)
}

/** Acquire the page write latch. */
func (p *Page) WLatch() {
	p.rwlatch.WLock()
}

/** Release the page write latch. */
func (p *Page) WUnlatch() {
	p.rwlatch.WUnlock()
}

/** Acquire the page read latch. */
func (p *Page) RLatch() {
	p.rwlatch.RLock()
}

/** Release the page read latch. */
func (p *Page) RUnlatch() {
	p.rwlatch.RUnlock()
}

// New creates a page around existing data
func New(id types.PageId, isDirty bool, data *[common.PageSize]byte) *Page {
	return &Page{id, int32(1), isDirty, data, common.NewRWLatch()}
}

// NewEmpty creates a zeroed page
func NewEmpty(id types.PageId) *Page {
	return &Page{id, int32(1), false, &[common.PageSize]byte{}, common.NewRWLatch()}
}
