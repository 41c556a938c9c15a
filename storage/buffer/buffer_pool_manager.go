package buffer

import (
	"sync"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/storage/page"
	"github.com/Kyooooma/RMDB/types"
)

// BufferPoolManager caches disk pages in a fixed set of frames shared by
// every open file. Pages are addressed by (fd, page_no).
type BufferPoolManager struct {
	diskManager disk.DiskManager
	pages       []*page.Page
	replacer    *ClockReplacer
	freeList    []FrameID
	pageTable   map[types.PageId]FrameID
	mutex       sync.Mutex
}

// FetchPage fetches the requested page from the buffer pool.
func (b *BufferPoolManager) FetchPage(pageId types.PageId) *page.Page {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if frameID, ok := b.pageTable[pageId]; ok {
		pg := b.pages[frameID]
		pg.IncPinCount()
		b.replacer.Pin(frameID)
		return pg
	}

	frameID, isFromFreeList := b.getFrameID()
	if frameID == nil {
		return nil
	}

	if !isFromFreeList {
		// evict page from current frame
		currentPage := b.pages[*frameID]
		if currentPage != nil {
			if currentPage.IsDirty() {
				data := currentPage.Data()
				b.diskManager.WritePage(currentPage.GetPageId().Fd, currentPage.GetPageNo(), data[:])
			}
			delete(b.pageTable, currentPage.GetPageId())
		}
	}

	data := make([]byte, common.PageSize)
	if err := b.diskManager.ReadPage(pageId.Fd, pageId.PageNo, data); err != nil {
		b.freeList = append(b.freeList, *frameID)
		return nil
	}
	var pageData [common.PageSize]byte
	copy(pageData[:], data)
	pg := page.New(pageId, false, &pageData)
	b.pageTable[pageId] = *frameID
	b.pages[*frameID] = pg

	return pg
}

// UnpinPage unpins the target page from the buffer pool.
func (b *BufferPoolManager) UnpinPage(pageId types.PageId, isDirty bool) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if frameID, ok := b.pageTable[pageId]; ok {
		pg := b.pages[frameID]
		pg.DecPinCount()

		if pg.PinCount() <= 0 {
			b.replacer.Unpin(frameID)
		}
		if pg.IsDirty() || isDirty {
			pg.SetIsDirty(true)
		}
		return nil
	}

	return errors.NewInternal("unpin of page not in pool (fd=%d page_no=%d)", pageId.Fd, pageId.PageNo)
}

// NewPage allocates a fresh page of the file in the buffer pool.
func (b *BufferPoolManager) NewPage(fd int32) *page.Page {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	frameID, isFromFreeList := b.getFrameID()
	if frameID == nil {
		return nil // the buffer is full and no frame is evictable
	}

	if !isFromFreeList {
		currentPage := b.pages[*frameID]
		if currentPage != nil {
			if currentPage.IsDirty() {
				data := currentPage.Data()
				b.diskManager.WritePage(currentPage.GetPageId().Fd, currentPage.GetPageNo(), data[:])
			}
			delete(b.pageTable, currentPage.GetPageId())
		}
	}

	pageNo := b.diskManager.AllocatePage(fd)
	pageId := types.PageId{Fd: fd, PageNo: pageNo}
	pg := page.NewEmpty(pageId)
	pg.SetIsDirty(true)

	b.pageTable[pageId] = *frameID
	b.pages[*frameID] = pg

	return pg
}

// FlushPage writes the target page back to disk keeping it cached.
func (b *BufferPoolManager) FlushPage(pageId types.PageId) bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.flushPageNoLock(pageId)
}

func (b *BufferPoolManager) flushPageNoLock(pageId types.PageId) bool {
	if frameID, ok := b.pageTable[pageId]; ok {
		pg := b.pages[frameID]
		data := pg.Data()
		b.diskManager.WritePage(pageId.Fd, pageId.PageNo, data[:])
		pg.SetIsDirty(false)
		return true
	}
	return false
}

// FlushAllPages flushes every cached page to disk.
func (b *BufferPoolManager) FlushAllPages() {
	b.mutex.Lock()
	pageIds := make([]types.PageId, 0, len(b.pageTable))
	for pageId := range b.pageTable {
		pageIds = append(pageIds, pageId)
	}
	for _, pageId := range pageIds {
		b.flushPageNoLock(pageId)
	}
	b.mutex.Unlock()
}

// FlushFile flushes every cached page of one file.
func (b *BufferPoolManager) FlushFile(fd int32) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for pageId := range b.pageTable {
		if pageId.Fd == fd {
			b.flushPageNoLock(pageId)
		}
	}
}

// DiscardFilePages drops every cached page of a file without writing it
// back. Used when a file is destroyed under the pool (index rebuild).
func (b *BufferPoolManager) DiscardFilePages(fd int32) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	for pageId, frameID := range b.pageTable {
		if pageId.Fd != fd {
			continue
		}
		b.replacer.Pin(frameID)
		b.pages[frameID] = nil
		delete(b.pageTable, pageId)
		b.freeList = append(b.freeList, frameID)
	}
}

func (b *BufferPoolManager) getFrameID() (*FrameID, bool) {
	if len(b.freeList) > 0 {
		frameID, newFreeList := b.freeList[0], b.freeList[1:]
		b.freeList = newFreeList
		return &frameID, true
	}
	return b.replacer.Victim(), false
}

// NewBufferPoolManager returns an empty buffer pool manager
func NewBufferPoolManager(poolSize uint32, diskManager disk.DiskManager) *BufferPoolManager {
	freeList := make([]FrameID, poolSize)
	pages := make([]*page.Page, poolSize)
	for i := uint32(0); i < poolSize; i++ {
		freeList[i] = FrameID(i)
		pages[i] = nil
	}

	replacer := NewClockReplacer(poolSize)
	return &BufferPoolManager{
		diskManager: diskManager,
		pages:       pages,
		replacer:    replacer,
		freeList:    freeList,
		pageTable:   make(map[types.PageId]FrameID),
	}
}
