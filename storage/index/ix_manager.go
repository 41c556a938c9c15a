package index

import (
	"strings"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/types"
)

// IxManager creates, destroys, opens and closes index files. File
// naming from (table, columns) is the single source of truth for
// locating an index.
type IxManager struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
}

func NewIxManager(diskManager disk.DiskManager, bpm *buffer.BufferPoolManager) *IxManager {
	return &IxManager{diskManager: diskManager, bpm: bpm}
}

// GetIndexName derives the index file name: <table>.<col,col,...>.idx
func (im *IxManager) GetIndexName(tabPath string, colNames []string) string {
	return tabPath + "." + strings.Join(colNames, ",") + ".idx"
}

// CreateIndex lays out an empty tree: file header (page 0), the leaf
// list sentinel (page 1) and an empty leaf root (page 2).
func (im *IxManager) CreateIndex(tabPath string, colNames []string, colTypes []types.ColType, colLens []int32) error {
	return im.CreateIndexWithOrder(tabPath, colNames, colTypes, colLens, 0)
}

// CreateIndexWithOrder is CreateIndex with an explicit fan-out; order 0
// means the page capacity for the key width.
func (im *IxManager) CreateIndexWithOrder(tabPath string, colNames []string, colTypes []types.ColType, colLens []int32, order int32) error {
	path := im.GetIndexName(tabPath, colNames)
	if err := im.diskManager.CreateFile(path); err != nil {
		return err
	}
	fd, err := im.diskManager.OpenFile(path)
	if err != nil {
		return err
	}

	colTotLen := int32(0)
	for _, length := range colLens {
		colTotLen += length
	}
	if order <= 0 || order > maxBtreeOrder(colTotLen) {
		order = maxBtreeOrder(colTotLen)
	}

	hdr := IxFileHdr{
		BtreeOrder: order,
		ColTotLen:  colTotLen,
		ColNum:     int32(len(colNames)),
		ColTypes:   append([]types.ColType(nil), colTypes...),
		ColLens:    append([]int32(nil), colLens...),
		RootPage:   common.IxInitRootPage,
		FirstLeaf:  common.IxInitRootPage,
		LastLeaf:   common.IxInitRootPage,
		NumPages:   3,
	}
	hdrPage := make([]byte, common.PageSize)
	copy(hdrPage, hdr.Serialize())
	if err := im.diskManager.WritePage(fd, common.IxFileHdrPage, hdrPage); err != nil {
		return err
	}

	// the sentinel's prev/next always reference the last and first leaf
	sentinel := make([]byte, common.PageSize)
	writeNodeHdr(sentinel, nodeHdr{
		isLeaf: false, numKeys: 0, parent: common.IxNoPage,
		prevLeaf: common.IxInitRootPage, nextLeaf: common.IxInitRootPage,
		nextFree: common.IxNoPage,
	})
	if err := im.diskManager.WritePage(fd, common.IxLeafHeaderPage, sentinel); err != nil {
		return err
	}

	root := make([]byte, common.PageSize)
	writeNodeHdr(root, nodeHdr{
		isLeaf: true, numKeys: 0, parent: common.IxNoPage,
		prevLeaf: common.IxLeafHeaderPage, nextLeaf: common.IxLeafHeaderPage,
		nextFree: common.IxNoPage,
	})
	if err := im.diskManager.WritePage(fd, common.IxInitRootPage, root); err != nil {
		return err
	}

	return im.diskManager.CloseFile(fd)
}

type nodeHdr struct {
	isLeaf   bool
	numKeys  int32
	parent   int32
	prevLeaf int32
	nextLeaf int32
	nextFree int32
}

func writeNodeHdr(data []byte, hdr nodeHdr) {
	put := func(off int, v int32) {
		data[off] = byte(v)
		data[off+1] = byte(v >> 8)
		data[off+2] = byte(v >> 16)
		data[off+3] = byte(v >> 24)
	}
	leaf := int32(0)
	if hdr.isLeaf {
		leaf = 1
	}
	put(0, leaf)
	put(4, hdr.numKeys)
	put(8, hdr.parent)
	put(12, hdr.prevLeaf)
	put(16, hdr.nextLeaf)
	put(20, hdr.nextFree)
}

func (im *IxManager) DestroyIndex(tabPath string, colNames []string) error {
	return im.diskManager.DestroyFile(im.GetIndexName(tabPath, colNames))
}

func (im *IxManager) OpenIndex(tabPath string, colNames []string) (*IxIndexHandle, error) {
	fd, err := im.diskManager.OpenFile(im.GetIndexName(tabPath, colNames))
	if err != nil {
		return nil, err
	}
	return NewIxIndexHandle(im.diskManager, im.bpm, fd)
}

// CloseIndex flushes the cached header and every dirty page.
func (im *IxManager) CloseIndex(ih *IxIndexHandle) error {
	im.bpm.FlushFile(ih.GetFd())
	if err := ih.WriteFileHdr(); err != nil {
		return err
	}
	im.bpm.DiscardFilePages(ih.GetFd())
	return im.diskManager.CloseFile(ih.GetFd())
}
