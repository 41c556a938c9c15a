package execution

import (
	"sort"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// SortExecutor materializes the child and emits it ordered by the
// lexicographic comparison over (column, direction) pairs. The sort is
// stable.
type SortExecutor struct {
	child  AbstractExecutor
	cols   []catalog.ColMeta
	isDesc []bool

	tuples []*record.RmRecord
	idx    int
}

func NewSortExecutor(child AbstractExecutor, selCols []parser.TabCol, isDesc []bool) (*SortExecutor, error) {
	e := &SortExecutor{child: child, isDesc: isDesc}
	for _, selCol := range selCols {
		col, err := getCol(child.Cols(), selCol)
		if err != nil {
			return nil, err
		}
		e.cols = append(e.cols, *col)
	}
	return e, nil
}

func (e *SortExecutor) Begin() error {
	e.tuples = nil
	e.idx = 0
	if err := e.child.Begin(); err != nil {
		return err
	}
	for !e.child.IsEnd() {
		rec, err := e.child.Next()
		if err != nil {
			return err
		}
		e.tuples = append(e.tuples, rec)
		if err := e.child.Advance(); err != nil {
			return err
		}
	}
	sort.SliceStable(e.tuples, func(i, j int) bool {
		return e.less(e.tuples[i], e.tuples[j])
	})
	return nil
}

func (e *SortExecutor) less(a *record.RmRecord, b *record.RmRecord) bool {
	for k, col := range e.cols {
		va := types.ValueFromBytes(col.Type, a.Data[col.Offset:col.Offset+col.Len])
		vb := types.ValueFromBytes(col.Type, b.Data[col.Offset:col.Offset+col.Len])
		cmp, err := types.Compare(va, vb)
		if err != nil || cmp == 0 {
			continue
		}
		if e.isDesc[k] {
			return cmp > 0
		}
		return cmp < 0
	}
	return false
}

func (e *SortExecutor) Advance() error {
	e.idx++
	return nil
}

func (e *SortExecutor) IsEnd() bool { return e.idx >= len(e.tuples) }

func (e *SortExecutor) Next() (*record.RmRecord, error) {
	return e.tuples[e.idx], nil
}

func (e *SortExecutor) Cols() []catalog.ColMeta { return e.child.Cols() }

func (e *SortExecutor) TupleLen() int32 { return e.child.TupleLen() }

func (e *SortExecutor) Rid() types.Rid { return e.child.Rid() }
