package recovery

import (
	"testing"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/disk"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func TestLogRecordSerializeDeserialize(t *testing.T) {
	rid := types.Rid{PageNo: 3, SlotNo: 7}
	rec := []byte{1, 2, 3, 4}

	insert := NewInsertDeleteLogRecord(5, LogInsert, "tab", rid, rec)
	insert.Lsn = 11
	insert.PrevLsn = 9
	got, err := DeserializeLogRecord(insert.Serialize())
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, insert, got)

	update := NewUpdateLogRecord(5, "tab", rid, []byte{1, 1}, []byte{2, 2})
	update.Lsn = 12
	got, err = DeserializeLogRecord(update.Serialize())
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, update, got)

	ixInsert := NewIndexLogRecord(5, LogIndexInsert, "tab.a.idx", []byte{9, 9, 9, 9}, rid)
	got, err = DeserializeLogRecord(ixInsert.Serialize())
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, ixInsert, got)

	begin := NewTxnLogRecord(5, LogBegin)
	got, err = DeserializeLogRecord(begin.Serialize())
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, begin, got)
}

func TestLogManagerLsnChain(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl()
	testingpkg.Ok(t, dm.SetLogFile("log"))
	lm := NewLogManager(dm)

	prev := types.LSN(common.InvalidLSN)
	for i := 0; i < 5; i++ {
		rec := NewTxnLogRecord(1, LogBegin)
		rec.PrevLsn = prev
		lsn, err := lm.AddLogToBuffer(rec)
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, types.LSN(i), lsn)
		prev = lsn
	}
	testingpkg.Ok(t, lm.Flush())
	testingpkg.Equals(t, types.LSN(4), lm.GetPersistentLSN())

	// the flushed bytes parse back with the same dense lsn sequence
	buffer := make([]byte, common.LogBufferSize)
	n, err := dm.ReadLog(buffer, 0)
	testingpkg.Ok(t, err)
	offset := int32(0)
	expect := types.LSN(0)
	for offset < n {
		rec, err := DeserializeLogRecord(buffer[offset:n])
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, expect, rec.Lsn)
		offset += rec.LogTotLen
		expect++
	}
	testingpkg.Equals(t, types.LSN(5), expect)
}
