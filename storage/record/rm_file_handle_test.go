package record

import (
	"encoding/binary"
	"testing"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func openTestFile(t *testing.T, recordSize int32) (*RmManager, *RmFileHandle) {
	dm := disk.NewVirtualDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(32, dm)
	rm := NewRmManager(dm, bpm)
	testingpkg.Ok(t, rm.CreateFile("tab", recordSize))
	fh, err := rm.OpenFile("tab")
	testingpkg.Ok(t, err)
	return rm, fh
}

func makeRecord(recordSize int32, v int32) []byte {
	data := make([]byte, recordSize)
	binary.LittleEndian.PutUint32(data, uint32(v))
	return data
}

func TestRmInsertGetDelete(t *testing.T) {
	_, fh := openTestFile(t, 16)

	rid, err := fh.InsertRecord(makeRecord(16, 42), nil)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, types.PageID(common.RmFirstRecordPage), rid.PageNo)
	testingpkg.Equals(t, int32(0), rid.SlotNo)

	rec, err := fh.GetRecord(rid, nil)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, int32(42), int32(binary.LittleEndian.Uint32(rec.Data)))

	testingpkg.Ok(t, fh.DeleteRecord(rid, nil))
	_, err = fh.GetRecord(rid, nil)
	testingpkg.Assert(t, errors.IsKind(err, errors.RecordNotFound), "deleted slot must read as missing")

	err = fh.DeleteRecord(rid, nil)
	testingpkg.Assert(t, errors.IsKind(err, errors.RecordNotFound), "double delete must fail")
}

func TestRmSlotReuseAfterDelete(t *testing.T) {
	_, fh := openTestFile(t, 16)

	rid0, err := fh.InsertRecord(makeRecord(16, 0), nil)
	testingpkg.Ok(t, err)
	_, err = fh.InsertRecord(makeRecord(16, 1), nil)
	testingpkg.Ok(t, err)

	testingpkg.Ok(t, fh.DeleteRecord(rid0, nil))
	rid2, err := fh.InsertRecord(makeRecord(16, 2), nil)
	testingpkg.Ok(t, err)
	// the freed slot is the first zero bit again
	testingpkg.Equals(t, rid0, rid2)
}

func TestRmScanReturnsLiveRidsInOrder(t *testing.T) {
	_, fh := openTestFile(t, 64)

	perPage := fh.GetFileHdr().NumRecordsPerPage
	n := perPage*2 + 3
	rids := make(map[types.Rid]bool)
	for i := int32(0); i < n; i++ {
		rid, err := fh.InsertRecord(makeRecord(64, i), nil)
		testingpkg.Ok(t, err)
		rids[rid] = true
	}
	// punch holes
	deleted := []types.Rid{
		{PageNo: common.RmFirstRecordPage, SlotNo: 0},
		{PageNo: common.RmFirstRecordPage, SlotNo: perPage - 1},
		{PageNo: common.RmFirstRecordPage + 1, SlotNo: 3},
	}
	for _, rid := range deleted {
		testingpkg.Ok(t, fh.DeleteRecord(rid, nil))
		delete(rids, rid)
	}

	scan, err := NewRmScan(fh)
	testingpkg.Ok(t, err)
	var got []types.Rid
	for !scan.IsEnd() {
		got = append(got, scan.Rid())
		testingpkg.Ok(t, scan.Next())
	}
	testingpkg.Equals(t, len(rids), len(got))
	for i := 1; i < len(got); i++ {
		prev, curr := got[i-1], got[i]
		less := prev.PageNo < curr.PageNo || (prev.PageNo == curr.PageNo && prev.SlotNo < curr.SlotNo)
		testingpkg.Assert(t, less, "scan must return rids in (page_no, slot_no) order")
	}
	for _, rid := range got {
		testingpkg.Assert(t, rids[rid], "scan returned a dead rid %v", rid)
	}
}

func TestRmFreeListAcrossFullPages(t *testing.T) {
	_, fh := openTestFile(t, 512)

	perPage := fh.GetFileHdr().NumRecordsPerPage
	// fill the first page completely
	var last types.Rid
	for i := int32(0); i < perPage; i++ {
		rid, err := fh.InsertRecord(makeRecord(512, i), nil)
		testingpkg.Ok(t, err)
		last = rid
	}
	// full page left the free list
	testingpkg.Equals(t, int32(common.RmNoPage), fh.GetFileHdr().FirstFreePageNo)

	// the next insert allocates a fresh page
	rid, err := fh.InsertRecord(makeRecord(512, 99), nil)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, last.PageNo+1, rid.PageNo)

	// deleting from the full page puts it back on the free list
	testingpkg.Ok(t, fh.DeleteRecord(last, nil))
	testingpkg.Equals(t, int32(last.PageNo), fh.GetFileHdr().FirstFreePageNo)
	reused, err := fh.InsertRecord(makeRecord(512, 100), nil)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, last, reused)
}

func TestRmPersistAcrossReopen(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(32, dm)
	rm := NewRmManager(dm, bpm)
	testingpkg.Ok(t, rm.CreateFile("tab", 16))
	fh, err := rm.OpenFile("tab")
	testingpkg.Ok(t, err)

	rid, err := fh.InsertRecord(makeRecord(16, 7), nil)
	testingpkg.Ok(t, err)
	testingpkg.Ok(t, rm.CloseFile(fh))

	fh2, err := rm.OpenFile("tab")
	testingpkg.Ok(t, err)
	rec, err := fh2.GetRecord(rid, nil)
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, int32(7), int32(binary.LittleEndian.Uint32(rec.Data)))
}
