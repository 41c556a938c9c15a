package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// DeleteExecutor removes every rid produced by the scan: log DELETE and
// INDEX_DELETE per index, drop the index entries, delete the tuple,
// remember the before image for undo.
type DeleteExecutor struct {
	sm      *catalog.SmManager
	ctx     *concurrency.Context
	tab     *catalog.TabMeta
	fh      *record.RmFileHandle
	tabName string
	rids    []types.Rid
}

func NewDeleteExecutor(sm *catalog.SmManager, tabName string, rids []types.Rid, ctx *concurrency.Context) (*DeleteExecutor, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return nil, err
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	e := &DeleteExecutor{sm: sm, ctx: ctx, tab: tab, fh: fh, tabName: tabName, rids: rids}
	if ctx != nil {
		if err := ctx.LockMgr.LockIXOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Exec performs the deletes and returns the affected row count.
func (e *DeleteExecutor) Exec() (int, error) {
	for _, rid := range e.rids {
		rec, err := e.fh.GetRecord(rid, e.ctx)
		if err != nil {
			return 0, err
		}
		if e.ctx != nil {
			logRecord := recovery.NewInsertDeleteLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogDelete, e.tabName, rid, rec.Data)
			if err := e.ctx.AppendLog(logRecord); err != nil {
				return 0, err
			}
		}
		if err := e.sm.DeleteIndexEntries(e.ctx, e.tabName, rec.Data, rid); err != nil {
			return 0, err
		}
		if err := e.fh.DeleteRecord(rid, e.ctx); err != nil {
			return 0, err
		}
		if e.ctx != nil {
			wr := concurrency.NewWriteRecord(concurrency.WDelete, e.tabName, rid, rec.Data)
			e.ctx.Txn.AppendWriteRecord(wr)
		}
	}
	return len(e.rids), nil
}
