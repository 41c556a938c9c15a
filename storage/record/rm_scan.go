package record

import (
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/types"
)

// RmScan walks every occupied slot of a table file in
// (page_no, slot_no) order.
type RmScan struct {
	fh  *RmFileHandle
	rid types.Rid
}

// NewRmScan positions the scan on the first occupied slot.
func NewRmScan(fh *RmFileHandle) (*RmScan, error) {
	scan := &RmScan{fh: fh, rid: types.Rid{PageNo: common.RmFirstRecordPage, SlotNo: -1}}
	if err := scan.Next(); err != nil {
		return nil, err
	}
	return scan, nil
}

// Next advances to the following occupied slot, walking pages forward.
func (scan *RmScan) Next() error {
	hdr := scan.fh.GetFileHdr()
	for scan.rid.PageNo < types.PageID(hdr.NumPages) {
		ph, err := scan.fh.fetchPageHandle(scan.rid.PageNo)
		if err != nil {
			return err
		}
		slotNo := bitmapNextBit(true, ph.Bitmap(), hdr.NumRecordsPerPage, scan.rid.SlotNo)
		scan.fh.unpin(ph, false)
		if slotNo < hdr.NumRecordsPerPage {
			scan.rid.SlotNo = slotNo
			return nil
		}
		scan.rid.PageNo++
		scan.rid.SlotNo = -1
	}
	scan.rid = types.Rid{PageNo: common.RmNoPage, SlotNo: -1}
	return nil
}

// IsEnd reports whether the scan ran off the last page.
func (scan *RmScan) IsEnd() bool {
	return scan.rid.PageNo == common.RmNoPage
}

// Rid returns the position of the current record.
func (scan *RmScan) Rid() types.Rid {
	return scan.rid
}
