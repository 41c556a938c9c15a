package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * NestedLoopJoinExecutor is a block nested loop join: up to
 * common.JoinBufferSize tuples of the left input are buffered; for each
 * right tuple every buffered left tuple is tried in order. When the
 * right side is exhausted it is restarted (Begin) for the next left
 * block.
 */
type NestedLoopJoinExecutor struct {
	left   AbstractExecutor
	right  AbstractExecutor
	length int32
	cols   []catalog.ColMeta
	conds  []optimizer.Condition

	leftBuf []*record.RmRecord
	head    int
	isEnd   bool
	rid     types.Rid
}

func NewNestedLoopJoinExecutor(left AbstractExecutor, right AbstractExecutor, conds []optimizer.Condition) *NestedLoopJoinExecutor {
	e := &NestedLoopJoinExecutor{
		left:   left,
		right:  right,
		length: left.TupleLen() + right.TupleLen(),
		conds:  conds,
	}
	e.cols = append(e.cols, left.Cols()...)
	for _, col := range right.Cols() {
		col.Offset += left.TupleLen()
		e.cols = append(e.cols, col)
	}
	return e
}

func (e *NestedLoopJoinExecutor) Begin() error {
	if err := e.left.Begin(); err != nil {
		return err
	}
	if err := e.right.Begin(); err != nil {
		return err
	}
	if e.left.IsEnd() || e.right.IsEnd() {
		e.isEnd = true
		return nil
	}
	e.head = 0
	e.leftBuf = nil
	return e.findRec()
}

func (e *NestedLoopJoinExecutor) Advance() error {
	if e.isEnd {
		return nil
	}
	e.head++
	return e.findRec()
}

func (e *NestedLoopJoinExecutor) fillLeftBuffer() error {
	for !e.left.IsEnd() && len(e.leftBuf) < common.JoinBufferSize {
		rec, err := e.left.Next()
		if err != nil {
			return err
		}
		e.leftBuf = append(e.leftBuf, rec)
		if err := e.left.Advance(); err != nil {
			return err
		}
	}
	return nil
}

func (e *NestedLoopJoinExecutor) findRec() error {
	if err := e.fillLeftBuffer(); err != nil {
		return err
	}
	for !e.right.IsEnd() {
		recR, err := e.right.Next()
		if err != nil {
			return err
		}
		for ; e.head < len(e.leftBuf); e.head++ {
			joined := e.combine(e.leftBuf[e.head], recR)
			ok, err := evalConds(e.cols, e.conds, joined)
			if err != nil {
				return err
			}
			if ok {
				return nil
			}
		}

		if err := e.right.Advance(); err != nil {
			return err
		}
		e.head = 0
		if e.right.IsEnd() {
			e.leftBuf = nil
			if e.left.IsEnd() {
				e.isEnd = true
				return nil
			}
			if err := e.fillLeftBuffer(); err != nil {
				return err
			}
			// the inner restarts for the next outer block
			if err := e.right.Begin(); err != nil {
				return err
			}
		}
	}
	e.isEnd = true
	return nil
}

func (e *NestedLoopJoinExecutor) combine(recL *record.RmRecord, recR *record.RmRecord) *record.RmRecord {
	joined := record.NewRmRecord(e.length)
	copy(joined.Data, recL.Data)
	copy(joined.Data[e.left.TupleLen():], recR.Data)
	return joined
}

func (e *NestedLoopJoinExecutor) IsEnd() bool { return e.isEnd }

func (e *NestedLoopJoinExecutor) Next() (*record.RmRecord, error) {
	recR, err := e.right.Next()
	if err != nil {
		return nil, err
	}
	return e.combine(e.leftBuf[e.head], recR), nil
}

func (e *NestedLoopJoinExecutor) Cols() []catalog.ColMeta { return e.cols }

func (e *NestedLoopJoinExecutor) TupleLen() int32 { return e.length }

func (e *NestedLoopJoinExecutor) Rid() types.Rid { return e.rid }
