package record

import (
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
)

// RmManager creates, destroys, opens and closes table files.
type RmManager struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
}

func NewRmManager(diskManager disk.DiskManager, bpm *buffer.BufferPoolManager) *RmManager {
	return &RmManager{diskManager: diskManager, bpm: bpm}
}

func (rm *RmManager) GetBufferPoolManager() *buffer.BufferPoolManager { return rm.bpm }

// CreateFile makes the table file and writes its initial header: no
// data pages yet, empty free list.
func (rm *RmManager) CreateFile(path string, recordSize int32) error {
	if err := rm.diskManager.CreateFile(path); err != nil {
		return err
	}
	fd, err := rm.diskManager.OpenFile(path)
	if err != nil {
		return err
	}
	n := recordsPerPage(recordSize)
	hdr := RmFileHdr{
		RecordSize:        recordSize,
		NumRecordsPerPage: n,
		BitmapSize:        (n + bitmapWidth - 1) / bitmapWidth,
		NumPages:          1,
		FirstFreePageNo:   common.RmNoPage,
	}
	data := make([]byte, common.PageSize)
	copy(data, hdr.Serialize())
	if err := rm.diskManager.WritePage(fd, common.RmFileHdrPage, data); err != nil {
		return err
	}
	return rm.diskManager.CloseFile(fd)
}

func (rm *RmManager) DestroyFile(path string) error {
	return rm.diskManager.DestroyFile(path)
}

func (rm *RmManager) OpenFile(path string) (*RmFileHandle, error) {
	fd, err := rm.diskManager.OpenFile(path)
	if err != nil {
		return nil, err
	}
	return NewRmFileHandle(rm.diskManager, rm.bpm, fd)
}

// CloseFile flushes the cached header and every dirty page of the file.
func (rm *RmManager) CloseFile(fh *RmFileHandle) error {
	rm.bpm.FlushFile(fh.GetFd())
	if err := fh.WriteFileHdr(); err != nil {
		return err
	}
	rm.bpm.DiscardFilePages(fh.GetFd())
	return rm.diskManager.CloseFile(fh.GetFd())
}
