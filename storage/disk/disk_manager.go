package disk

import (
	"github.com/Kyooooma/RMDB/types"
)

// DiskManager is responsible for interacting with disk. Pages are
// addressed by (fd, page_no); the write-ahead log is a separate
// sequential file.
type DiskManager interface {
	CreateFile(path string) error
	DestroyFile(path string) error
	OpenFile(path string) (int32, error)
	CloseFile(fd int32) error
	GetFileName(fd int32) (string, error)

	ReadPage(fd int32, pageNo types.PageID, data []byte) error
	WritePage(fd int32, pageNo types.PageID, data []byte) error
	// AllocatePage hands out the next page number of the file. The
	// caller that knows the real page count (from a file header) must
	// seed it through SetFd2PageNo after opening.
	AllocatePage(fd int32) types.PageID
	SetFd2PageNo(fd int32, pageNo types.PageID)
	GetFd2PageNo(fd int32) types.PageID

	SetLogFile(path string) error
	WriteLog(data []byte) error
	// ReadLog fills data from offset and returns the number of bytes
	// read; 0 means end of log.
	ReadLog(data []byte, offset int32) (int32, error)
	GetLogFileSize() int64

	CreateDir(path string) error
	IsDir(path string) bool
	RemoveDir(path string) error

	ShutDown()
}
