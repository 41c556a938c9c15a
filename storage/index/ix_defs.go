package index

import (
	"bytes"
	"encoding/binary"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/types"
)

// size of the serialized fixed part of IxFileHdr
const ixFileHdrFixedSize = 28

// node page header:
// | is_leaf | num_keys | parent | prev_leaf | next_leaf | next_free_page_no |
const ixPageHdrSize = 24

// serialized rid inside a node (page_no + slot_no)
const ixRidSize = 8

// Iid is an index-internal position: a slot inside one leaf page. Range
// iterators move over Iids, not Rids.
type Iid struct {
	PageNo types.PageID
	SlotNo int32
}

/**
 * IxFileHdr describes one index file and lives in its page 0. Page 1 is
 * the leaf list sentinel whose prev_leaf/next_leaf always name the
 * current last and first leaves. The initial root (a leaf) is page 2.
 */
type IxFileHdr struct {
	BtreeOrder int32
	ColTotLen  int32
	ColNum     int32
	ColTypes   []types.ColType
	ColLens    []int32
	RootPage   types.PageID
	FirstLeaf  types.PageID
	LastLeaf   types.PageID
	NumPages   int32
}

func (hdr *IxFileHdr) Serialize() []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, hdr.BtreeOrder)
	binary.Write(buf, binary.LittleEndian, hdr.ColTotLen)
	binary.Write(buf, binary.LittleEndian, hdr.ColNum)
	for i := int32(0); i < hdr.ColNum; i++ {
		binary.Write(buf, binary.LittleEndian, int32(hdr.ColTypes[i]))
		binary.Write(buf, binary.LittleEndian, hdr.ColLens[i])
	}
	binary.Write(buf, binary.LittleEndian, int32(hdr.RootPage))
	binary.Write(buf, binary.LittleEndian, int32(hdr.FirstLeaf))
	binary.Write(buf, binary.LittleEndian, int32(hdr.LastLeaf))
	binary.Write(buf, binary.LittleEndian, hdr.NumPages)
	return buf.Bytes()
}

func (hdr *IxFileHdr) Deserialize(data []byte) {
	reader := bytes.NewReader(data)
	binary.Read(reader, binary.LittleEndian, &hdr.BtreeOrder)
	binary.Read(reader, binary.LittleEndian, &hdr.ColTotLen)
	binary.Read(reader, binary.LittleEndian, &hdr.ColNum)
	hdr.ColTypes = make([]types.ColType, hdr.ColNum)
	hdr.ColLens = make([]int32, hdr.ColNum)
	for i := int32(0); i < hdr.ColNum; i++ {
		var t int32
		binary.Read(reader, binary.LittleEndian, &t)
		hdr.ColTypes[i] = types.ColType(t)
		binary.Read(reader, binary.LittleEndian, &hdr.ColLens[i])
	}
	var rootPage, firstLeaf, lastLeaf int32
	binary.Read(reader, binary.LittleEndian, &rootPage)
	binary.Read(reader, binary.LittleEndian, &firstLeaf)
	binary.Read(reader, binary.LittleEndian, &lastLeaf)
	binary.Read(reader, binary.LittleEndian, &hdr.NumPages)
	hdr.RootPage = types.PageID(rootPage)
	hdr.FirstLeaf = types.PageID(firstLeaf)
	hdr.LastLeaf = types.PageID(lastLeaf)
}

// maxBtreeOrder computes the largest fan-out a node page can carry for
// the given key width.
func maxBtreeOrder(colTotLen int32) int32 {
	return (common.PageSize - ixPageHdrSize) / (colTotLen + ixRidSize)
}

// IxCompare orders two composite keys column by column using each
// column's type specific ordering. Fixed width strings compare as raw
// bytes.
func IxCompare(a []byte, b []byte, colTypes []types.ColType, colLens []int32) int {
	offset := int32(0)
	for i := range colTypes {
		length := colLens[i]
		cmp := compareColumn(a[offset:offset+length], b[offset:offset+length], colTypes[i])
		if cmp != 0 {
			return cmp
		}
		offset += length
	}
	return 0
}

func compareColumn(a []byte, b []byte, colType types.ColType) int {
	switch colType {
	case types.TypeString:
		return bytes.Compare(a, b)
	default:
		va := types.ValueFromBytes(colType, a)
		vb := types.ValueFromBytes(colType, b)
		cmp, _ := types.Compare(va, vb)
		return cmp
	}
}
