package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * IndexScanExecutor positions a leaf scan by the matched prefix of the
 * index columns. Equalities extend the prefix; the first range
 * comparator terminates it and the key suffix is filled with the type
 * minimum (>=, =, <, <=) or maximum (>). The matched prefix conditions
 * are re-evaluated per tuple to detect the end of the range.
 */
type IndexScanExecutor struct {
	sm       *catalog.SmManager
	ctx      *concurrency.Context
	tabName  string
	conds    []optimizer.Condition
	fh       *record.RmFileHandle
	cols     []catalog.ColMeta
	length   int32
	ih       *index.IxIndexHandle
	ixMeta   *catalog.IndexMeta
	indexCnt int

	rid      types.Rid
	scan     *index.IxScan
	finished bool
}

func NewIndexScanExecutor(sm *catalog.SmManager, tabName string, conds []optimizer.Condition,
	indexColNames []string, ctx *concurrency.Context) (*IndexScanExecutor, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return nil, err
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	ixMeta, err := tab.GetIndexMeta(indexColNames)
	if err != nil {
		return nil, err
	}
	ih, err := sm.GetIndexHandle(tabName, ixMeta)
	if err != nil {
		return nil, err
	}

	// canonicalize: the scanned table's column on the left
	conds = append([]optimizer.Condition(nil), conds...)
	for i := range conds {
		if conds[i].LhsCol.TabName != tabName && !conds[i].IsRhsVal {
			conds[i].LhsCol, conds[i].RhsCol = conds[i].RhsCol, conds[i].LhsCol
			conds[i].Op = parser.SwapOp(conds[i].Op)
		}
	}

	e := &IndexScanExecutor{
		sm:      sm,
		ctx:     ctx,
		tabName: tabName,
		conds:   conds,
		fh:      fh,
		cols:    tab.Cols,
		length:  tab.RecordSize(),
		ih:      ih,
		ixMeta:  ixMeta,
	}
	if ctx != nil {
		if err := ctx.LockMgr.LockSharedOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Begin builds the start key out of the matched prefix and positions
// the leaf scan.
func (e *IndexScanExecutor) Begin() error {
	e.finished = false
	key := make([]byte, 0, e.ixMeta.ColTotLen)
	colNames := e.ixMeta.ColNames()

	matched := 0
	useUpperBound := false
	for i := 0; i < len(e.conds) && i < len(colNames); i++ {
		cond := e.conds[i]
		if !cond.IsRhsVal || cond.LhsCol.TabName != e.tabName ||
			cond.LhsCol.ColName != colNames[i] || cond.Op == parser.OpNe ||
			cond.RhsVal.Raw == nil {
			break
		}
		col := e.ixMeta.Cols[i]
		matched = i + 1
		if cond.Op == parser.OpEq {
			key = append(key, cond.RhsVal.Raw[:col.Len]...)
			continue
		}
		if cond.Op == parser.OpGe || cond.Op == parser.OpGt {
			key = append(key, cond.RhsVal.Raw[:col.Len]...)
			useUpperBound = cond.Op == parser.OpGt
		} else {
			// < or <=: scan from the absolute minimum of this column
			key = append(key, types.MinValueBytes(col.Type, col.Len)...)
		}
		break
	}
	e.indexCnt = matched

	// fill the suffix with the extreme that positions the scan
	for i := matched; i < len(e.ixMeta.Cols); i++ {
		col := e.ixMeta.Cols[i]
		if useUpperBound {
			key = append(key, types.MaxValueBytes(col.Type, col.Len)...)
		} else {
			key = append(key, types.MinValueBytes(col.Type, col.Len)...)
		}
	}

	var start index.Iid
	var err error
	if useUpperBound {
		start, err = e.ih.UpperBound(key)
	} else {
		start, err = e.ih.LowerBound(key)
	}
	if err != nil {
		return err
	}
	end, err := e.ih.LeafEnd()
	if err != nil {
		return err
	}
	e.scan = index.NewIxScan(e.ih, start, end)
	return e.findNext()
}

// Advance steps the leaf scan to the next satisfying tuple.
func (e *IndexScanExecutor) Advance() error {
	if !e.IsEnd() {
		if err := e.scan.Next(); err != nil {
			return err
		}
	}
	return e.findNext()
}

func (e *IndexScanExecutor) findNext() error {
	for !e.scan.IsEnd() {
		rid, err := e.scan.Rid()
		if err != nil {
			return err
		}
		e.rid = rid
		rec, err := e.fh.GetRecord(e.rid, e.ctx)
		if err != nil {
			return err
		}
		// the matched prefix failing means the range is exhausted
		for i := 0; i < e.indexCnt; i++ {
			ok, err := evalCond(e.cols, e.conds[i], rec)
			if err != nil {
				return err
			}
			if !ok {
				e.finished = true
				return nil
			}
		}
		ok, err := evalConds(e.cols, e.conds, rec)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := e.scan.Next(); err != nil {
			return err
		}
	}
	return nil
}

func (e *IndexScanExecutor) IsEnd() bool {
	return e.finished || e.scan.IsEnd()
}

func (e *IndexScanExecutor) Next() (*record.RmRecord, error) {
	return e.fh.GetRecord(e.rid, e.ctx)
}

func (e *IndexScanExecutor) Cols() []catalog.ColMeta { return e.cols }

func (e *IndexScanExecutor) TupleLen() int32 { return e.length }

func (e *IndexScanExecutor) Rid() types.Rid { return e.rid }
