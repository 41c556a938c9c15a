package index

import (
	"github.com/Kyooooma/RMDB/types"
)

// IxScan iterates leaf entries in key order between two index-internal
// positions, following the leaf links at page boundaries.
type IxScan struct {
	ih  *IxIndexHandle
	iid Iid
	end Iid
}

func NewIxScan(ih *IxIndexHandle, start Iid, end Iid) *IxScan {
	return &IxScan{ih: ih, iid: start, end: end}
}

func (scan *IxScan) IsEnd() bool {
	return scan.iid == scan.end
}

func (scan *IxScan) Iid() Iid {
	return scan.iid
}

// Rid reads the heap rid at the current position.
func (scan *IxScan) Rid() (types.Rid, error) {
	return scan.ih.GetRid(scan.iid)
}

// Next advances one slot, hopping to the head of the next leaf when the
// current one is exhausted (the last leaf keeps its one-past-end slot
// as the end position).
func (scan *IxScan) Next() error {
	node, err := scan.ih.fetchNode(scan.iid.PageNo)
	if err != nil {
		return err
	}
	defer scan.ih.unpin(node, false)

	scan.iid.SlotNo++
	if scan.iid.PageNo != scan.ih.GetFileHdr().LastLeaf && scan.iid.SlotNo == node.GetSize() {
		scan.iid = Iid{PageNo: node.GetNextLeaf(), SlotNo: 0}
	}
	return nil
}
