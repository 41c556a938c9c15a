package catalog

import (
	"path/filepath"
	"testing"

	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/storage/record"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func newSmManager() *SmManager {
	dm := disk.NewDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(32, dm)
	rm := record.NewRmManager(dm, bpm)
	im := index.NewIxManager(dm, bpm)
	return NewSmManager(dm, bpm, rm, im)
}

func TestCatalogPersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalogdb")

	sm := newSmManager()
	testingpkg.Ok(t, sm.CreateDb(dir))
	testingpkg.Ok(t, sm.OpenDb(dir))
	cols := []ColDef{
		{Name: "id", Type: types.TypeInt, Len: 4},
		{Name: "name", Type: types.TypeString, Len: 12},
		{Name: "price", Type: types.TypeFloat, Len: 8},
	}
	testingpkg.Ok(t, sm.CreateTable("items", cols, nil))
	testingpkg.Ok(t, sm.CreateIndex("items", []string{"id"}, nil))
	testingpkg.Ok(t, sm.CloseDb())
	sm.GetDiskManager().ShutDown()

	sm2 := newSmManager()
	testingpkg.Ok(t, sm2.OpenDb(dir))
	tab, err := sm2.Db.GetTable("items")
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, 3, len(tab.Cols))
	testingpkg.Equals(t, int32(24), tab.RecordSize())
	testingpkg.Equals(t, int32(4), tab.Cols[1].Offset)

	ix, err := tab.GetIndexMeta([]string{"id"})
	testingpkg.Ok(t, err)
	testingpkg.Equals(t, int32(4), ix.ColTotLen)

	// the reopened index is usable
	ih, err := sm2.GetIndexHandle("items", ix)
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, ih != nil, "index handle must be registered")
	testingpkg.Ok(t, sm2.CloseDb())
}

func TestCatalogDuplicateAndMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "catalogdb")
	sm := newSmManager()
	testingpkg.Ok(t, sm.CreateDb(dir))
	testingpkg.Ok(t, sm.OpenDb(dir))

	cols := []ColDef{{Name: "a", Type: types.TypeInt, Len: 4}}
	testingpkg.Ok(t, sm.CreateTable("t", cols, nil))
	testingpkg.Assert(t, sm.CreateTable("t", cols, nil) != nil, "duplicate table must fail")
	testingpkg.Assert(t, sm.DropTable("missing", nil) != nil, "missing table must fail")

	testingpkg.Ok(t, sm.CreateIndex("t", []string{"a"}, nil))
	testingpkg.Assert(t, sm.CreateIndex("t", []string{"a"}, nil) != nil, "duplicate index must fail")
	testingpkg.Ok(t, sm.DropIndex("t", []string{"a"}, nil))
	testingpkg.Assert(t, sm.DropIndex("t", []string{"a"}, nil) != nil, "missing index must fail")
	testingpkg.Ok(t, sm.CloseDb())
}

func TestIndexKeyBuild(t *testing.T) {
	ix := IndexMeta{
		ColTotLen: 8,
		ColNum:    2,
		Cols: []ColMeta{
			{Name: "a", Type: types.TypeInt, Len: 4, Offset: 4},
			{Name: "b", Type: types.TypeInt, Len: 4, Offset: 0},
		},
	}
	rec := []byte{1, 0, 0, 0, 2, 0, 0, 0}
	key := ix.BuildKey(rec)
	// key holds column a then column b, regardless of record order
	testingpkg.Equals(t, []byte{2, 0, 0, 0, 1, 0, 0, 0}, key)
}
