package index

import (
	"encoding/binary"
	"testing"

	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func openTestTree(t *testing.T, order int32) *IxIndexHandle {
	dm := disk.NewVirtualDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(64, dm)
	im := NewIxManager(dm, bpm)
	err := im.CreateIndexWithOrder("tab", []string{"a"}, []types.ColType{types.TypeInt}, []int32{4}, order)
	testingpkg.Ok(t, err)
	ih, err := im.OpenIndex("tab", []string{"a"})
	testingpkg.Ok(t, err)
	return ih
}

func intKey(v int32) []byte {
	key := make([]byte, 4)
	binary.LittleEndian.PutUint32(key, uint32(v))
	return key
}

func ridFor(v int32) types.Rid {
	return types.Rid{PageNo: types.PageID(v), SlotNo: v}
}

func insertRange(t *testing.T, ih *IxIndexHandle, vals []int32) {
	for _, v := range vals {
		result, err := ih.InsertEntry(intKey(v), ridFor(v))
		testingpkg.Ok(t, err)
		testingpkg.Assert(t, result.Second, "insert of %d must succeed", v)
	}
}

func checkAll(t *testing.T, ih *IxIndexHandle, vals []int32) {
	for _, v := range vals {
		rid, found, err := ih.GetValue(intKey(v))
		testingpkg.Ok(t, err)
		testingpkg.Assert(t, found, "key %d must be present", v)
		testingpkg.Equals(t, ridFor(v), rid)
	}
}

func TestBPlusTreeOrder3AscendingAndDescending(t *testing.T) {
	asc := openTestTree(t, 3)
	var vals []int32
	for v := int32(1); v <= 20; v++ {
		vals = append(vals, v)
	}
	insertRange(t, asc, vals)
	checkAll(t, asc, vals)

	desc := openTestTree(t, 3)
	for i := len(vals) - 1; i >= 0; i-- {
		result, err := desc.InsertEntry(intKey(vals[i]), ridFor(vals[i]))
		testingpkg.Ok(t, err)
		testingpkg.Assert(t, result.Second, "insert must succeed")
	}
	checkAll(t, desc, vals)
}

func TestBPlusTreeDuplicateKeyRejected(t *testing.T) {
	ih := openTestTree(t, 3)
	insertRange(t, ih, []int32{1, 2, 3})

	result, err := ih.InsertEntry(intKey(2), ridFor(99))
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, !result.Second, "duplicate key must be rejected")

	// the original entry is untouched
	rid, found, err := ih.GetValue(intKey(2))
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, found, "key 2 must remain")
	testingpkg.Equals(t, ridFor(2), rid)
}

func TestBPlusTreeRangeScan(t *testing.T) {
	ih := openTestTree(t, 3)
	var vals []int32
	for v := int32(1); v <= 50; v++ {
		vals = append(vals, v)
	}
	insertRange(t, ih, vals)

	start, err := ih.LowerBound(intKey(10))
	testingpkg.Ok(t, err)
	end, err := ih.LeafEnd()
	testingpkg.Ok(t, err)
	scan := NewIxScan(ih, start, end)

	expect := int32(10)
	for !scan.IsEnd() {
		rid, err := scan.Rid()
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, ridFor(expect), rid)
		expect++
		testingpkg.Ok(t, scan.Next())
	}
	testingpkg.Equals(t, int32(51), expect)
}

func TestBPlusTreeDeleteAndCoalesce(t *testing.T) {
	ih := openTestTree(t, 3)
	var vals []int32
	for v := int32(1); v <= 20; v++ {
		vals = append(vals, v)
	}
	insertRange(t, ih, vals)

	// delete everything but one key; every step keeps the rest intact
	for i := 0; i < len(vals)-1; i++ {
		deleted, err := ih.DeleteEntry(intKey(vals[i]))
		testingpkg.Ok(t, err)
		testingpkg.Assert(t, deleted, "delete of %d must succeed", vals[i])
		checkAll(t, ih, vals[i+1:])
	}

	// coalescing pulled the tree back to a single leaf root
	root, err := ih.fetchNode(ih.GetFileHdr().RootPage)
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, root.IsLeafPage(), "a nearly empty tree must have a leaf root")
	ih.unpin(root, false)

	// emptying the tree leaves a degenerate empty root
	deleted, err := ih.DeleteEntry(intKey(vals[len(vals)-1]))
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, deleted, "last delete must succeed")
	_, found, err := ih.GetValue(intKey(vals[len(vals)-1]))
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, !found, "the tree must be empty")

	// the empty tree accepts inserts again
	result, err := ih.InsertEntry(intKey(5), ridFor(5))
	testingpkg.Ok(t, err)
	testingpkg.Assert(t, result.Second, "insert into emptied tree must succeed")
	checkAll(t, ih, []int32{5})
}

func TestBPlusTreeCompositeKeyOrdering(t *testing.T) {
	dm := disk.NewVirtualDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(64, dm)
	im := NewIxManager(dm, bpm)
	err := im.CreateIndexWithOrder("tab", []string{"a", "b"},
		[]types.ColType{types.TypeInt, types.TypeString}, []int32{4, 4}, 4)
	testingpkg.Ok(t, err)
	ih, err := im.OpenIndex("tab", []string{"a", "b"})
	testingpkg.Ok(t, err)

	makeKey := func(a int32, b string) []byte {
		key := make([]byte, 8)
		binary.LittleEndian.PutUint32(key, uint32(a))
		copy(key[4:], b)
		return key
	}
	entries := []struct {
		a   int32
		b   string
		rid types.Rid
	}{
		{2, "bb", types.Rid{PageNo: 1, SlotNo: 0}},
		{1, "zz", types.Rid{PageNo: 1, SlotNo: 1}},
		{1, "aa", types.Rid{PageNo: 1, SlotNo: 2}},
		{2, "aa", types.Rid{PageNo: 1, SlotNo: 3}},
	}
	for _, e := range entries {
		result, err := ih.InsertEntry(makeKey(e.a, e.b), e.rid)
		testingpkg.Ok(t, err)
		testingpkg.Assert(t, result.Second, "insert must succeed")
	}

	// iteration order is by (a, b) with b compared as raw bytes
	start := ih.LeafBegin()
	end, err := ih.LeafEnd()
	testingpkg.Ok(t, err)
	scan := NewIxScan(ih, start, end)
	var got []types.Rid
	for !scan.IsEnd() {
		rid, err := scan.Rid()
		testingpkg.Ok(t, err)
		got = append(got, rid)
		testingpkg.Ok(t, scan.Next())
	}
	want := []types.Rid{
		{PageNo: 1, SlotNo: 2},
		{PageNo: 1, SlotNo: 1},
		{PageNo: 1, SlotNo: 3},
		{PageNo: 1, SlotNo: 0},
	}
	testingpkg.Equals(t, want, got)
}
