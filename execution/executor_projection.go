package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// ProjectionExecutor rewrites the child layout to the selected columns
// and applies LIMIT start, len: start tuples are consumed at Begin and
// at most len tuples are emitted (len < 0 means unlimited).
type ProjectionExecutor struct {
	child      AbstractExecutor
	cols       []catalog.ColMeta
	selIdxs    []int
	length     int32
	limitStart int32
	limitLen   int32
	cnt        int32
}

func NewProjectionExecutor(child AbstractExecutor, selCols []parser.TabCol, limitStart int32, limitLen int32) (*ProjectionExecutor, error) {
	e := &ProjectionExecutor{child: child, limitStart: limitStart, limitLen: limitLen}
	prevCols := child.Cols()
	currOffset := int32(0)
	for _, selCol := range selCols {
		pos, err := getCol(prevCols, selCol)
		if err != nil {
			return nil, err
		}
		for i := range prevCols {
			if &prevCols[i] == pos {
				e.selIdxs = append(e.selIdxs, i)
			}
		}
		col := *pos
		col.Offset = currOffset
		currOffset += col.Len
		e.cols = append(e.cols, col)
	}
	e.length = currOffset
	return e, nil
}

func (e *ProjectionExecutor) Begin() error {
	e.cnt = 0
	if err := e.child.Begin(); err != nil {
		return err
	}
	for i := int32(0); i < e.limitStart && !e.child.IsEnd(); i++ {
		if err := e.child.Advance(); err != nil {
			return err
		}
	}
	return nil
}

func (e *ProjectionExecutor) Advance() error {
	return e.child.Advance()
}

func (e *ProjectionExecutor) IsEnd() bool {
	if e.limitLen >= 0 && e.cnt >= e.limitLen {
		return true
	}
	return e.child.IsEnd()
}

func (e *ProjectionExecutor) Next() (*record.RmRecord, error) {
	prevRec, err := e.child.Next()
	if err != nil {
		return nil, err
	}
	e.cnt++
	projRec := record.NewRmRecord(e.length)
	prevCols := e.child.Cols()
	for i, idx := range e.selIdxs {
		col := e.cols[i]
		prevCol := prevCols[idx]
		copy(projRec.Data[col.Offset:col.Offset+col.Len], prevRec.Data[prevCol.Offset:prevCol.Offset+prevCol.Len])
	}
	return projRec, nil
}

func (e *ProjectionExecutor) Cols() []catalog.ColMeta { return e.cols }

func (e *ProjectionExecutor) TupleLen() int32 { return e.length }

func (e *ProjectionExecutor) Rid() types.Rid { return e.child.Rid() }
