package record

import (
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * RmFileHandle operates one open table file: a paged heap of fixed
 * width records with an occupancy bitmap per page and a free page list
 * threaded through the page headers. A page is on the free list iff it
 * has at least one empty slot.
 */
type RmFileHandle struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
	fd          int32
	fileHdr     RmFileHdr
}

func NewRmFileHandle(diskManager disk.DiskManager, bpm *buffer.BufferPoolManager, fd int32) (*RmFileHandle, error) {
	fh := &RmFileHandle{diskManager: diskManager, bpm: bpm, fd: fd}
	data := make([]byte, common.PageSize)
	if err := diskManager.ReadPage(fd, common.RmFileHdrPage, data); err != nil {
		return nil, err
	}
	fh.fileHdr.Deserialize(data)
	// hand out page numbers after the ones already in the file
	diskManager.SetFd2PageNo(fd, types.PageID(fh.fileHdr.NumPages))
	return fh, nil
}

func (fh *RmFileHandle) GetFd() int32 { return fh.fd }

func (fh *RmFileHandle) GetFileHdr() *RmFileHdr { return &fh.fileHdr }

// WriteFileHdr persists the cached file header into page 0.
func (fh *RmFileHandle) WriteFileHdr() error {
	data := make([]byte, common.PageSize)
	if err := fh.diskManager.ReadPage(fh.fd, common.RmFileHdrPage, data); err != nil {
		return err
	}
	copy(data, fh.fileHdr.Serialize())
	return fh.diskManager.WritePage(fh.fd, common.RmFileHdrPage, data)
}

// GetRecord reads the record stored at rid. The slot must be occupied.
func (fh *RmFileHandle) GetRecord(rid types.Rid, ctx *concurrency.Context) (*RmRecord, error) {
	if ctx != nil {
		if err := ctx.LockMgr.LockSharedOnRecord(ctx.Txn, rid, fh.fd); err != nil {
			return nil, err
		}
	}
	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return nil, err
	}
	defer fh.unpin(ph, false)
	if !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		return nil, errors.NewRecordNotFound(int32(rid.PageNo), rid.SlotNo)
	}
	return NewRmRecordFromBytes(ph.GetSlot(rid.SlotNo)), nil
}

// InsertRecord places buf into the first free slot of the first page on
// the free list, allocating a page when none is free.
func (fh *RmFileHandle) InsertRecord(buf []byte, ctx *concurrency.Context) (types.Rid, error) {
	if ctx != nil {
		if err := ctx.LockMgr.LockExclusiveOnTable(ctx.Txn, fh.fd); err != nil {
			return types.Rid{}, err
		}
	}
	ph, err := fh.createPageHandle()
	if err != nil {
		return types.Rid{}, err
	}
	defer fh.unpin(ph, true)

	slotNo := bitmapFirstBit(false, ph.Bitmap(), fh.fileHdr.NumRecordsPerPage)
	copy(ph.GetSlot(slotNo), buf[:fh.fileHdr.RecordSize])
	bitmapSet(ph.Bitmap(), slotNo)
	ph.SetNumRecords(ph.GetNumRecords() + 1)
	if ph.GetNumRecords() == fh.fileHdr.NumRecordsPerPage {
		// the page filled up; unlink it from the free list
		fh.fileHdr.FirstFreePageNo = ph.GetNextFreePageNo()
	}
	return types.Rid{PageNo: ph.GetPage().GetPageNo(), SlotNo: slotNo}, nil
}

// InsertRecordAt places buf into the slot named by rid. Used by
// rollback and recovery, which must restore records at their original
// position.
func (fh *RmFileHandle) InsertRecordAt(rid types.Rid, buf []byte) error {
	if rid.PageNo >= types.PageID(fh.fileHdr.NumPages) {
		return errors.NewPageNotExist("RmFileHandle::InsertRecordAt", int32(rid.PageNo))
	}
	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	defer fh.unpin(ph, true)
	copy(ph.GetSlot(rid.SlotNo), buf[:fh.fileHdr.RecordSize])
	if !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		bitmapSet(ph.Bitmap(), rid.SlotNo)
		ph.SetNumRecords(ph.GetNumRecords() + 1)
		if ph.GetNumRecords() == fh.fileHdr.NumRecordsPerPage {
			fh.fileHdr.FirstFreePageNo = ph.GetNextFreePageNo()
		}
	}
	return nil
}

// DeleteRecord clears the slot at rid; a page turning from full to
// not-full goes back on the free list.
func (fh *RmFileHandle) DeleteRecord(rid types.Rid, ctx *concurrency.Context) error {
	if ctx != nil {
		if err := ctx.LockMgr.LockExclusiveOnRecord(ctx.Txn, rid, fh.fd); err != nil {
			return err
		}
	}
	if rid.PageNo >= types.PageID(fh.fileHdr.NumPages) {
		return errors.NewPageNotExist("RmFileHandle::DeleteRecord", int32(rid.PageNo))
	}
	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	defer fh.unpin(ph, true)
	if !bitmapIsSet(ph.Bitmap(), rid.SlotNo) {
		return errors.NewRecordNotFound(int32(rid.PageNo), rid.SlotNo)
	}
	bitmapReset(ph.Bitmap(), rid.SlotNo)
	ph.SetNumRecords(ph.GetNumRecords() - 1)
	if ph.GetNumRecords()+1 == fh.fileHdr.NumRecordsPerPage {
		fh.releasePageHandle(ph)
	}
	return nil
}

// UpdateRecord overwrites the record at rid with buf.
func (fh *RmFileHandle) UpdateRecord(rid types.Rid, buf []byte, ctx *concurrency.Context) error {
	if ctx != nil {
		if err := ctx.LockMgr.LockExclusiveOnRecord(ctx.Txn, rid, fh.fd); err != nil {
			return err
		}
	}
	if rid.PageNo >= types.PageID(fh.fileHdr.NumPages) {
		return errors.NewPageNotExist("RmFileHandle::UpdateRecord", int32(rid.PageNo))
	}
	ph, err := fh.fetchPageHandle(rid.PageNo)
	if err != nil {
		return err
	}
	defer fh.unpin(ph, true)
	copy(ph.GetSlot(rid.SlotNo), buf[:fh.fileHdr.RecordSize])
	return nil
}

// fetchPageHandle pins the page and wraps it; the caller must unpin.
func (fh *RmFileHandle) fetchPageHandle(pageNo types.PageID) (*RmPageHandle, error) {
	if pageNo == common.InvalidPageID || pageNo >= types.PageID(fh.fileHdr.NumPages) {
		return nil, errors.NewPageNotExist("RmFileHandle::fetchPageHandle", int32(pageNo))
	}
	pg := fh.bpm.FetchPage(types.PageId{Fd: fh.fd, PageNo: pageNo})
	if pg == nil {
		return nil, errors.NewInternal("buffer pool exhausted fetching page %d", pageNo)
	}
	return newRmPageHandle(&fh.fileHdr, pg), nil
}

// createNewPageHandle allocates a fresh page and pushes it onto the
// free list.
func (fh *RmFileHandle) createNewPageHandle() (*RmPageHandle, error) {
	pg := fh.bpm.NewPage(fh.fd)
	if pg == nil {
		return nil, errors.NewInternal("buffer pool exhausted allocating page")
	}
	ph := newRmPageHandle(&fh.fileHdr, pg)
	ph.SetNextFreePageNo(fh.fileHdr.FirstFreePageNo)
	ph.SetNumRecords(0)
	bitmapInit(ph.Bitmap())
	fh.fileHdr.FirstFreePageNo = int32(pg.GetPageNo())
	fh.fileHdr.NumPages++
	return ph, nil
}

// createPageHandle returns the first page with a free slot, allocating
// one if the free list is empty.
func (fh *RmFileHandle) createPageHandle() (*RmPageHandle, error) {
	if fh.fileHdr.FirstFreePageNo == common.RmNoPage {
		return fh.createNewPageHandle()
	}
	return fh.fetchPageHandle(types.PageID(fh.fileHdr.FirstFreePageNo))
}

// releasePageHandle pushes a page that regained free space onto the
// head of the free list.
func (fh *RmFileHandle) releasePageHandle(ph *RmPageHandle) {
	ph.SetNextFreePageNo(fh.fileHdr.FirstFreePageNo)
	fh.fileHdr.FirstFreePageNo = int32(ph.GetPage().GetPageNo())
}

func (fh *RmFileHandle) unpin(ph *RmPageHandle, dirty bool) {
	fh.bpm.UnpinPage(ph.GetPage().GetPageId(), dirty)
}
