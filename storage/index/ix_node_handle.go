package index

import (
	"encoding/binary"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/storage/page"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * IxNodeHandle views one pinned node page:
 * | IxPageHdr | keys (btree_order x col_tot_len) | rids (btree_order x 8) |
 * For internal nodes a rid's page_no is the child page number; for
 * leaves it is the heap rid being indexed.
 */
type IxNodeHandle struct {
	fileHdr *IxFileHdr
	page    *page.Page
}

func newIxNodeHandle(fileHdr *IxFileHdr, pg *page.Page) *IxNodeHandle {
	return &IxNodeHandle{fileHdr: fileHdr, page: pg}
}

func (node *IxNodeHandle) GetPage() *page.Page      { return node.page }
func (node *IxNodeHandle) GetPageNo() types.PageID  { return node.page.GetPageNo() }

func (node *IxNodeHandle) readInt32(offset int32) int32 {
	return int32(binary.LittleEndian.Uint32(node.page.Data()[offset : offset+4]))
}

func (node *IxNodeHandle) writeInt32(offset int32, v int32) {
	binary.LittleEndian.PutUint32(node.page.Data()[offset:offset+4], uint32(v))
}

func (node *IxNodeHandle) IsLeafPage() bool     { return node.readInt32(0) != 0 }
func (node *IxNodeHandle) SetIsLeaf(leaf bool) {
	v := int32(0)
	if leaf {
		v = 1
	}
	node.writeInt32(0, v)
}

func (node *IxNodeHandle) GetSize() int32     { return node.readInt32(4) }
func (node *IxNodeHandle) SetSize(size int32) { node.writeInt32(4, size) }

func (node *IxNodeHandle) GetParentPageNo() types.PageID { return types.PageID(node.readInt32(8)) }
func (node *IxNodeHandle) SetParentPageNo(pageNo types.PageID) { node.writeInt32(8, int32(pageNo)) }

func (node *IxNodeHandle) GetPrevLeaf() types.PageID { return types.PageID(node.readInt32(12)) }
func (node *IxNodeHandle) SetPrevLeaf(pageNo types.PageID) { node.writeInt32(12, int32(pageNo)) }

func (node *IxNodeHandle) GetNextLeaf() types.PageID { return types.PageID(node.readInt32(16)) }
func (node *IxNodeHandle) SetNextLeaf(pageNo types.PageID) { node.writeInt32(16, int32(pageNo)) }

func (node *IxNodeHandle) GetNextFreePageNo() types.PageID { return types.PageID(node.readInt32(20)) }
func (node *IxNodeHandle) SetNextFreePageNo(pageNo types.PageID) { node.writeInt32(20, int32(pageNo)) }

func (node *IxNodeHandle) IsRootPage() bool {
	return node.GetParentPageNo() == common.IxNoPage
}

// GetMaxSize is the split threshold: a node splits when its key count
// reaches it.
func (node *IxNodeHandle) GetMaxSize() int32 { return node.fileHdr.BtreeOrder }

// GetMinSize is the occupancy floor enforced for every node but the
// root. A node splits when it reaches btree_order keys, so each half
// keeps at least btree_order/2.
func (node *IxNodeHandle) GetMinSize() int32 { return node.fileHdr.BtreeOrder / 2 }

func (node *IxNodeHandle) keyOffset(i int32) int32 {
	return ixPageHdrSize + i*node.fileHdr.ColTotLen
}

func (node *IxNodeHandle) ridOffset(i int32) int32 {
	return ixPageHdrSize + node.fileHdr.BtreeOrder*node.fileHdr.ColTotLen + i*ixRidSize
}

// GetKey returns the in-page bytes of key i.
func (node *IxNodeHandle) GetKey(i int32) []byte {
	off := node.keyOffset(i)
	return node.page.Data()[off : off+node.fileHdr.ColTotLen]
}

func (node *IxNodeHandle) GetRid(i int32) types.Rid {
	off := node.ridOffset(i)
	data := node.page.Data()
	return types.Rid{
		PageNo: types.PageID(int32(binary.LittleEndian.Uint32(data[off : off+4]))),
		SlotNo: int32(binary.LittleEndian.Uint32(data[off+4 : off+8])),
	}
}

func (node *IxNodeHandle) SetRid(i int32, rid types.Rid) {
	off := node.ridOffset(i)
	data := node.page.Data()
	binary.LittleEndian.PutUint32(data[off:off+4], uint32(int32(rid.PageNo)))
	binary.LittleEndian.PutUint32(data[off+4:off+8], uint32(rid.SlotNo))
}

// ValueAt returns the child page number stored at position i of an
// internal node.
func (node *IxNodeHandle) ValueAt(i int32) types.PageID {
	return node.GetRid(i).PageNo
}

// LowerBound finds the first key index with key >= target.
func (node *IxNodeHandle) LowerBound(target []byte) int32 {
	l, r := int32(0), node.GetSize()-1
	for l <= r {
		mid := (l + r) >> 1
		res := IxCompare(target, node.GetKey(mid), node.fileHdr.ColTypes, node.fileHdr.ColLens)
		if res <= 0 {
			r = mid - 1
		} else {
			l = mid + 1
		}
	}
	return l
}

// UpperBound finds the first key index with key > target.
func (node *IxNodeHandle) UpperBound(target []byte) int32 {
	l, r := int32(0), node.GetSize()-1
	for l <= r {
		mid := (l + r) >> 1
		res := IxCompare(target, node.GetKey(mid), node.fileHdr.ColTypes, node.fileHdr.ColLens)
		if res < 0 {
			r = mid - 1
		} else {
			l = mid + 1
		}
	}
	return l
}

// LeafLookup finds key in a leaf and returns its rid.
func (node *IxNodeHandle) LeafLookup(key []byte) (types.Rid, bool) {
	keyIdx := node.LowerBound(key)
	if keyIdx == node.GetSize() {
		return types.Rid{}, false
	}
	if IxCompare(key, node.GetKey(keyIdx), node.fileHdr.ColTypes, node.fileHdr.ColLens) != 0 {
		return types.Rid{}, false
	}
	return node.GetRid(keyIdx), true
}

// InternalLookup picks the child subtree that may hold key:
// upper_bound(key)-1, clamped to 0.
func (node *IxNodeHandle) InternalLookup(key []byte) types.PageID {
	keyIdx := node.UpperBound(key) - 1
	if keyIdx < 0 {
		keyIdx = 0
	}
	return node.ValueAt(keyIdx)
}

// InsertPairs writes n consecutive (key, rid) pairs at position pos,
// shifting the tail right.
func (node *IxNodeHandle) InsertPairs(pos int32, keys []byte, rids []types.Rid, n int32) {
	size := node.GetSize()
	if pos < 0 || pos > size {
		return
	}
	keyLen := node.fileHdr.ColTotLen
	data := node.page.Data()
	// shift keys right via a scratch copy (regions overlap)
	tail := make([]byte, (size-pos)*keyLen)
	copy(tail, data[node.keyOffset(pos):node.keyOffset(size)])
	copy(data[node.keyOffset(pos+n):], tail)
	copy(data[node.keyOffset(pos):], keys[:n*keyLen])
	// shift rids
	for i := size - 1; i >= pos; i-- {
		node.SetRid(i+n, node.GetRid(i))
	}
	for i := int32(0); i < n; i++ {
		node.SetRid(pos+i, rids[i])
	}
	node.SetSize(size + n)
}

func (node *IxNodeHandle) insertPair(pos int32, key []byte, rid types.Rid) {
	node.InsertPairs(pos, key, []types.Rid{rid}, 1)
}

// ErasePairs removes n consecutive pairs starting at pos, shifting the
// tail left.
func (node *IxNodeHandle) ErasePairs(pos int32, n int32) {
	size := node.GetSize()
	if pos < 0 || pos >= size {
		return
	}
	data := node.page.Data()
	copy(data[node.keyOffset(pos):], data[node.keyOffset(pos+n):node.keyOffset(size)])
	for i := pos; i < size-n; i++ {
		node.SetRid(i, node.GetRid(i+n))
	}
	node.SetSize(size - n)
}

// Insert places one pair keeping sort order; a duplicate key is not
// inserted. Returns the key count after the operation.
func (node *IxNodeHandle) Insert(key []byte, rid types.Rid) int32 {
	pos := node.LowerBound(key)
	if pos < node.GetSize() {
		if IxCompare(key, node.GetKey(pos), node.fileHdr.ColTypes, node.fileHdr.ColLens) == 0 {
			return node.GetSize()
		}
	}
	node.insertPair(pos, key, rid)
	return node.GetSize()
}

// Remove deletes the pair with the given key if present. Returns the
// key count after the operation.
func (node *IxNodeHandle) Remove(key []byte) int32 {
	keyIdx := node.LowerBound(key)
	if keyIdx == node.GetSize() {
		return node.GetSize()
	}
	if IxCompare(key, node.GetKey(keyIdx), node.fileHdr.ColTypes, node.fileHdr.ColLens) != 0 {
		return node.GetSize()
	}
	node.ErasePairs(keyIdx, 1)
	return node.GetSize()
}

// FindChild returns the position of child inside this internal node.
func (node *IxNodeHandle) FindChild(child *IxNodeHandle) int32 {
	for i := int32(0); i < node.GetSize(); i++ {
		if node.ValueAt(i) == child.GetPageNo() {
			return i
		}
	}
	return -1
}

// RemoveAndReturnOnlyChild empties a single-entry root and hands back
// its only child page.
func (node *IxNodeHandle) RemoveAndReturnOnlyChild() types.PageID {
	child := node.ValueAt(0)
	node.ErasePairs(0, 1)
	return child
}

// CopyKeysFrom reads n keys beginning at from into a fresh buffer; used
// when moving entries between sibling nodes.
func (node *IxNodeHandle) CopyKeysFrom(from int32, n int32) []byte {
	keyLen := node.fileHdr.ColTotLen
	out := make([]byte, n*keyLen)
	copy(out, node.page.Data()[node.keyOffset(from):node.keyOffset(from+n)])
	return out
}

// CopyRidsFrom reads n rids beginning at from.
func (node *IxNodeHandle) CopyRidsFrom(from int32, n int32) []types.Rid {
	out := make([]types.Rid, n)
	for i := int32(0); i < n; i++ {
		out[i] = node.GetRid(from + i)
	}
	return out
}
