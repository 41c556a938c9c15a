package record

import (
	"bytes"
	"encoding/binary"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/page"
)

// size of the serialized RmFileHdr held in page 0
const rmFileHdrSize = 20

// per page header: next_free_page_no + num_records
const rmPageHdrSize = 8

// RmFileHdr describes one table file. It lives in page 0 and is cached
// on the file handle while the file is open.
type RmFileHdr struct {
	RecordSize        int32
	NumRecordsPerPage int32
	BitmapSize        int32
	NumPages          int32
	FirstFreePageNo   int32
}

func (hdr *RmFileHdr) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, hdr.RecordSize)
	binary.Write(buf, binary.LittleEndian, hdr.NumRecordsPerPage)
	binary.Write(buf, binary.LittleEndian, hdr.BitmapSize)
	binary.Write(buf, binary.LittleEndian, hdr.NumPages)
	binary.Write(buf, binary.LittleEndian, hdr.FirstFreePageNo)
	return buf.Bytes()
}

func (hdr *RmFileHdr) Deserialize(data []byte) {
	reader := bytes.NewReader(data[:rmFileHdrSize])
	binary.Read(reader, binary.LittleEndian, &hdr.RecordSize)
	binary.Read(reader, binary.LittleEndian, &hdr.NumRecordsPerPage)
	binary.Read(reader, binary.LittleEndian, &hdr.BitmapSize)
	binary.Read(reader, binary.LittleEndian, &hdr.NumPages)
	binary.Read(reader, binary.LittleEndian, &hdr.FirstFreePageNo)
}

// recordsPerPage computes how many fixed width records fit into a page
// next to the page header and the occupancy bitmap.
func recordsPerPage(recordSize int32) int32 {
	n := (common.PageSize - rmPageHdrSize) * bitmapWidth / (1 + recordSize*bitmapWidth)
	for (n+bitmapWidth-1)/bitmapWidth+n*recordSize > common.PageSize-rmPageHdrSize {
		n--
	}
	return n
}

// RmRecord is one fixed width tuple image.
type RmRecord struct {
	Size int32
	Data []byte
}

func NewRmRecord(size int32) *RmRecord {
	return &RmRecord{Size: size, Data: make([]byte, size)}
}

func NewRmRecordFromBytes(data []byte) *RmRecord {
	copied := append([]byte(nil), data...)
	return &RmRecord{Size: int32(len(copied)), Data: copied}
}

/**
 * RmPageHandle is a view over one pinned table page:
 * | RmPageHdr | bitmap | slot 0 | slot 1 | ... |
 * The caller that fetched the page unpins it.
 */
type RmPageHandle struct {
	fileHdr *RmFileHdr
	page    *page.Page
}

func newRmPageHandle(fileHdr *RmFileHdr, pg *page.Page) *RmPageHandle {
	return &RmPageHandle{fileHdr: fileHdr, page: pg}
}

func (ph *RmPageHandle) GetPage() *page.Page { return ph.page }

func (ph *RmPageHandle) GetNextFreePageNo() int32 {
	return int32(binary.LittleEndian.Uint32(ph.page.Data()[0:4]))
}

func (ph *RmPageHandle) SetNextFreePageNo(pageNo int32) {
	binary.LittleEndian.PutUint32(ph.page.Data()[0:4], uint32(pageNo))
}

func (ph *RmPageHandle) GetNumRecords() int32 {
	return int32(binary.LittleEndian.Uint32(ph.page.Data()[4:8]))
}

func (ph *RmPageHandle) SetNumRecords(n int32) {
	binary.LittleEndian.PutUint32(ph.page.Data()[4:8], uint32(n))
}

func (ph *RmPageHandle) Bitmap() []byte {
	return ph.page.Data()[rmPageHdrSize : rmPageHdrSize+ph.fileHdr.BitmapSize]
}

// GetSlot returns the in-page bytes of slot slotNo.
func (ph *RmPageHandle) GetSlot(slotNo int32) []byte {
	base := int32(rmPageHdrSize) + ph.fileHdr.BitmapSize + slotNo*ph.fileHdr.RecordSize
	return ph.page.Data()[base : base+ph.fileHdr.RecordSize]
}
