package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// SeqScanExecutor walks the whole table, skipping tuples that fail the
// pushed down predicates.
type SeqScanExecutor struct {
	sm      *catalog.SmManager
	ctx     *concurrency.Context
	tabName string
	conds   []optimizer.Condition
	fh      *record.RmFileHandle
	cols    []catalog.ColMeta
	length  int32

	rid  types.Rid
	scan *record.RmScan
}

func NewSeqScanExecutor(sm *catalog.SmManager, tabName string, conds []optimizer.Condition, ctx *concurrency.Context) (*SeqScanExecutor, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return nil, err
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	e := &SeqScanExecutor{
		sm:      sm,
		ctx:     ctx,
		tabName: tabName,
		conds:   conds,
		fh:      fh,
		cols:    tab.Cols,
		length:  tab.RecordSize(),
	}
	if ctx != nil {
		if err := ctx.LockMgr.LockSharedOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Begin builds the table iterator and stops at the first tuple that
// satisfies the predicates.
func (e *SeqScanExecutor) Begin() error {
	scan, err := record.NewRmScan(e.fh)
	if err != nil {
		return err
	}
	e.scan = scan
	return e.findNext()
}

// Advance steps to the next satisfying tuple.
func (e *SeqScanExecutor) Advance() error {
	if !e.scan.IsEnd() {
		if err := e.scan.Next(); err != nil {
			return err
		}
	}
	return e.findNext()
}

func (e *SeqScanExecutor) findNext() error {
	for !e.scan.IsEnd() {
		e.rid = e.scan.Rid()
		rec, err := e.fh.GetRecord(e.rid, e.ctx)
		if err != nil {
			if errors.IsKind(err, errors.RecordNotFound) {
				if err := e.scan.Next(); err != nil {
					return err
				}
				continue
			}
			return err
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

func (e *SeqScanExecutor) IsEnd() bool { return e.scan.IsEnd() }

func (e *SeqScanExecutor) Next() (*record.RmRecord, error) {
	return e.fh.GetRecord(e.rid, e.ctx)
}

func (e *SeqScanExecutor) Cols() []catalog.ColMeta { return e.cols }

func (e *SeqScanExecutor) TupleLen() int32 { return e.length }

func (e *SeqScanExecutor) Rid() types.Rid { return e.rid }
