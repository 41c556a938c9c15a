package disk

import (
	"io"
	"sync"

	"github.com/dsnet/golib/memfile"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

// VirtualDiskManagerImpl keeps every file on memory. Behavior matches
// DiskManagerImpl so tests can swap it in without touching the real
// filesystem.
type VirtualDiskManagerImpl struct {
	mutex     sync.Mutex
	nextFd    int32
	files     map[int32]*memfile.File
	fileNames map[int32]string
	fd2page   map[int32]types.PageID
	path2fd   map[string]int32
	// closed files keep their contents so they can be reopened
	store map[string]*memfile.File
	dirs  map[string]bool

	log *memfile.File
}

func NewVirtualDiskManagerImpl() *VirtualDiskManagerImpl {
	return &VirtualDiskManagerImpl{
		files:     make(map[int32]*memfile.File),
		fileNames: make(map[int32]string),
		fd2page:   make(map[int32]types.PageID),
		path2fd:   make(map[string]int32),
		store:     make(map[string]*memfile.File),
		dirs:      make(map[string]bool),
	}
}

func (d *VirtualDiskManagerImpl) CreateFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.store[path]; ok {
		return errors.NewInternal("file %s already exists", path)
	}
	d.store[path] = memfile.New(make([]byte, 0))
	return nil
}

func (d *VirtualDiskManagerImpl) DestroyFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, open := d.path2fd[path]; open {
		return errors.NewInternal("file %s is still open", path)
	}
	if _, ok := d.store[path]; !ok {
		return errors.NewUnixError(errors.Errorf("no such file %s", path))
	}
	delete(d.store, path)
	return nil
}

func (d *VirtualDiskManagerImpl) OpenFile(path string) (int32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if fd, open := d.path2fd[path]; open {
		return fd, nil
	}
	file, ok := d.store[path]
	if !ok {
		return -1, errors.NewUnixError(errors.Errorf("no such file %s", path))
	}
	fd := d.nextFd
	d.nextFd++
	d.files[fd] = file
	d.fileNames[fd] = path
	d.path2fd[path] = fd
	d.fd2page[fd] = 0
	return fd, nil
}

func (d *VirtualDiskManagerImpl) CloseFile(fd int32) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if _, ok := d.files[fd]; !ok {
		return errors.NewInternal("close of unknown fd %d", fd)
	}
	delete(d.path2fd, d.fileNames[fd])
	delete(d.files, fd)
	delete(d.fileNames, fd)
	delete(d.fd2page, fd)
	return nil
}

func (d *VirtualDiskManagerImpl) GetFileName(fd int32) (string, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	name, ok := d.fileNames[fd]
	if !ok {
		return "", errors.NewInternal("unknown fd %d", fd)
	}
	return name, nil
}

func (d *VirtualDiskManagerImpl) WritePage(fd int32, pageNo types.PageID, data []byte) error {
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
	return nil
}

func (d *VirtualDiskManagerImpl) ReadPage(fd int32, pageNo types.PageID, data []byte) error {
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
	for i := n; i < common.PageSize; i++ {
		data[i] = 0
	}
	return nil
}

func (d *VirtualDiskManagerImpl) AllocatePage(fd int32) types.PageID {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	ret := d.fd2page[fd]
	d.fd2page[fd] = ret + 1
	return ret
}

func (d *VirtualDiskManagerImpl) SetFd2PageNo(fd int32, pageNo types.PageID) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.fd2page[fd] = pageNo
}

func (d *VirtualDiskManagerImpl) GetFd2PageNo(fd int32) types.PageID {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.fd2page[fd]
}

func (d *VirtualDiskManagerImpl) SetLogFile(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if file, ok := d.store[path]; ok {
		d.log = file
		return nil
	}
	d.log = memfile.New(make([]byte, 0))
	d.store[path] = d.log
	return nil
}

func (d *VirtualDiskManagerImpl) WriteLog(data []byte) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log == nil {
		return errors.NewInternal("log file is not open")
	}
	if len(data) == 0 {
		return nil
	}
	if _, err := d.log.WriteAt(data, int64(len(d.log.Bytes()))); err != nil {
		return errors.NewUnixError(err)
	}
	return nil
}

func (d *VirtualDiskManagerImpl) ReadLog(data []byte, offset int32) (int32, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log == nil {
		return 0, errors.NewInternal("log file is not open")
	}
	size := int64(len(d.log.Bytes()))
	if int64(offset) >= size {
		return 0, nil
	}
	n, err := d.log.ReadAt(data, int64(offset))
	if err != nil && err != io.EOF {
		return 0, errors.NewUnixError(err)
	}
	return int32(n), nil
}

func (d *VirtualDiskManagerImpl) GetLogFileSize() int64 {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.log == nil {
		return 0
	}
	return int64(len(d.log.Bytes()))
}

func (d *VirtualDiskManagerImpl) CreateDir(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.dirs[path] = true
	return nil
}

func (d *VirtualDiskManagerImpl) IsDir(path string) bool {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.dirs[path]
}

func (d *VirtualDiskManagerImpl) RemoveDir(path string) error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	delete(d.dirs, path)
	for name := range d.store {
		if len(name) > len(path) && name[:len(path)] == path {
			delete(d.store, name)
		}
	}
	return nil
}

func (d *VirtualDiskManagerImpl) ShutDown() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	d.files = make(map[int32]*memfile.File)
	d.fileNames = make(map[int32]string)
	d.path2fd = make(map[string]int32)
	d.fd2page = make(map[int32]types.PageID)
	d.log = nil
}
