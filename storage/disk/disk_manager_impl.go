package disk

import (
	"io"
	"os"
	"sync"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

// DiskManagerImpl is the file backed implementation of DiskManager.
type DiskManagerImpl struct {
	mutex     sync.Mutex
	nextFd    int32
	files     map[int32]*os.File
	fileNames map[int32]string
	fd2page   map[int32]types.PageID
	path2fd   map[string]int32

	log        *os.File
	numWrites  uint64
	numFlushes uint64
}

func NewDiskManagerImpl() *DiskManagerImpl {
	return &DiskManagerImpl{
		nextFd:    0,
		files:     make(map[int32]*os.File),
		fileNames: make(map[int32]string),
		fd2page:   make(map[int32]types.PageID),
		path2fd:   make(map[string]int32),
	}
}

func (d *DiskManagerImpl) CreateFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, err := os.Stat(path); err == nil {
		return errors.NewInternal("file %s already exists", path)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return errors.NewUnixError(err)
	}
	file.Close()
	return nil
}

func (d *DiskManagerImpl) DestroyFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, open := d.path2fd[path]; open {
		return errors.NewInternal("file %s is still open", path)
	}
	if err := os.Remove(path); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

func (d *DiskManagerImpl) OpenFile(path string) (int32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if fd, open := d.path2fd[path]; open {
		return fd, nil
	}
	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		return -1, errors.NewUnixError(err)
	}
	fd := d.nextFd
	d.nextFd++
	d.files[fd] = file
	d.fileNames[fd] = path
	d.path2fd[path] = fd
	d.fd2page[fd] = 0
	return fd, nil
}

func (d *DiskManagerImpl) CloseFile(fd int32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	file, ok := d.files[fd]
	if !ok {
		return errors.NewInternal("close of unknown fd %d", fd)
	}
	file.Close()
	delete(d.path2fd, d.fileNames[fd])
	delete(d.files, fd)
	delete(d.fileNames, fd)
	delete(d.fd2page, fd)
	return nil
}

func (d *DiskManagerImpl) GetFileName(fd int32) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	name, ok := d.fileNames[fd]
	if !ok {
		return "", errors.NewInternal("unknown fd %d", fd)
	}
	return name, nil
}

func (d *DiskManagerImpl) WritePage(fd int32, pageNo types.PageID, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	file, ok := d.files[fd]
	if !ok {
		return errors.NewInternal("write to unknown fd %d", fd)
	}
	offset := int64(pageNo) * common.PageSize
	if _, err := file.WriteAt(data[:common.PageSize], offset); err != nil {
		return errors.NewUnixError(err)
	}
	d.numWrites++
	return nil
}

func (d *DiskManagerImpl) ReadPage(fd int32, pageNo types.PageID, data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	file, ok := d.files[fd]
	if !ok {
		return errors.NewInternal("read from unknown fd %d", fd)
	}
	offset := int64(pageNo) * common.PageSize
	n, err := file.ReadAt(data[:common.PageSize], offset)
	if err != nil && err != io.EOF {
		return errors.NewUnixError(err)
	}
	// a page past the current end of file reads back zeroed
	for i := n; i < common.PageSize; i++ {
		data[i] = 0
	}
	return nil
}

func (d *DiskManagerImpl) AllocatePage(fd int32) types.PageID {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ret := d.fd2page[fd]
	d.fd2page[fd] = ret + 1
	return ret
}

func (d *DiskManagerImpl) SetFd2PageNo(fd int32, pageNo types.PageID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fd2page[fd] = pageNo
}

func (d *DiskManagerImpl) GetFd2PageNo(fd int32) types.PageID {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.fd2page[fd]
}

func (d *DiskManagerImpl) SetLogFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log != nil {
		d.log.Close()
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return errors.NewUnixError(err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return errors.NewUnixError(err)
	}
	file.Seek(info.Size(), io.SeekStart)
	d.log = file
	return nil
}

// WriteLog appends to the log file and syncs before returning; commit
// durability depends on it.
func (d *DiskManagerImpl) WriteLog(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log == nil {
		return errors.NewInternal("log file is not open")
	}
	if len(data) == 0 {
		return nil
	}
	d.numFlushes++
	if _, err := d.log.Write(data); err != nil {
		return errors.NewUnixError(err)
	}
	if err := d.log.Sync(); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

func (d *DiskManagerImpl) ReadLog(data []byte, offset int32) (int32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log == nil {
		return 0, errors.NewInternal("log file is not open")
	}
	size := d.logFileSize()
	if int64(offset) >= size {
		return 0, nil
	}
	n, err := d.log.ReadAt(data, int64(offset))
	if err != nil && err != io.EOF {
		return 0, errors.NewUnixError(err)
	}
	return int32(n), nil
}

func (d *DiskManagerImpl) GetLogFileSize() int64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.logFileSize()
}

func (d *DiskManagerImpl) logFileSize() int64 {
	info, err := d.log.Stat()
	if err != nil {
		return -1
	}
	return info.Size()
}

func (d *DiskManagerImpl) CreateDir(path string) error {
	if err := os.MkdirAll(path, 0777); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

func (d *DiskManagerImpl) IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (d *DiskManagerImpl) RemoveDir(path string) error {
	if err := os.RemoveAll(path); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

func (d *DiskManagerImpl) ShutDown() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for _, file := range d.files {
		file.Close()
	}
	d.files = make(map[int32]*os.File)
	d.fileNames = make(map[int32]string)
	d.path2fd = make(map[string]int32)
	d.fd2page = make(map[int32]types.PageID)
	if d.log != nil {
		d.log.Close()
		d.log = nil
	}
}

// GetNumWrites returns the number of page writes so far.
func (d *DiskManagerImpl) GetNumWrites() uint64 {
	return d.numWrites
}
