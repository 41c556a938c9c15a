package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// InsertExecutor writes one record, logs it, and maintains every index;
// a uniqueness violation rolls the partial statement back.
type InsertExecutor struct {
	sm      *catalog.SmManager
	ctx     *concurrency.Context
	tab     *catalog.TabMeta
	fh      *record.RmFileHandle
	tabName string
	values  []types.Value
	rid     types.Rid
	count   int
}

func NewInsertExecutor(sm *catalog.SmManager, tabName string, values []types.Value, ctx *concurrency.Context) (*InsertExecutor, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return nil, err
	}
	if len(values) != len(tab.Cols) {
		return nil, errors.NewInvalidValueCount()
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	e := &InsertExecutor{sm: sm, ctx: ctx, tab: tab, fh: fh, tabName: tabName, values: values}
	if ctx != nil {
		if err := ctx.LockMgr.LockExclusiveOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Exec performs the insert.
func (e *InsertExecutor) Exec() (int, error) {
	recData := make([]byte, e.tab.RecordSize())
	for i := range e.values {
		col := &e.tab.Cols[i]
		value, err := coerceValueTo(e.values[i], col)
		if err != nil {
			return 0, err
		}
		copy(recData[col.Offset:col.Offset+col.Len], value.Raw)
	}

	rid, err := e.fh.InsertRecord(recData, e.ctx)
	if err != nil {
		return 0, err
	}
	e.rid = rid

	if e.ctx != nil {
		logRecord := recovery.NewInsertDeleteLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogInsert, e.tabName, rid, recData)
		if err := e.ctx.AppendLog(logRecord); err != nil {
			return 0, err
		}
	}

	failPos := -1
	for i := range e.tab.Indexes {
		ix := &e.tab.Indexes[i]
		ih, err := e.sm.GetIndexHandle(e.tabName, ix)
		if err != nil {
			return 0, err
		}
		key := ix.BuildKey(recData)
		if e.ctx != nil {
			ixName := e.sm.GetIxManager().GetIndexName(e.sm.TablePath(e.tabName), ix.ColNames())
			indexLog := recovery.NewIndexLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogIndexInsert, ixName, key, rid)
			if err := e.ctx.AppendLog(indexLog); err != nil {
				return 0, err
			}
		}
		result, err := ih.InsertEntry(key, rid)
		if err != nil {
			return 0, err
		}
		if !result.Second {
			failPos = i
			break
		}
	}

	if failPos != -1 {
		// undo the index entries placed so far plus the table insert
		for i := 0; i < failPos; i++ {
			ix := &e.tab.Indexes[i]
			ih, err := e.sm.GetIndexHandle(e.tabName, ix)
			if err != nil {
				return 0, err
			}
			key := ix.BuildKey(recData)
			if e.ctx != nil {
				ixName := e.sm.GetIxManager().GetIndexName(e.sm.TablePath(e.tabName), ix.ColNames())
				indexLog := recovery.NewIndexLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogIndexDelete, ixName, key, rid)
				if err := e.ctx.AppendLog(indexLog); err != nil {
					return 0, err
				}
			}
			if _, err := ih.DeleteEntry(key); err != nil {
				return 0, err
			}
		}
		if e.ctx != nil {
			logRecord := recovery.NewInsertDeleteLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogDelete, e.tabName, rid, recData)
			if err := e.ctx.AppendLog(logRecord); err != nil {
				return 0, err
			}
		}
		if err := e.fh.DeleteRecord(rid, e.ctx); err != nil {
			return 0, err
		}
		return 0, errors.NewUniqueViolation()
	}

	if e.ctx != nil {
		wr := concurrency.NewWriteRecord(concurrency.WInsert, e.tabName, rid, recData)
		e.ctx.Txn.AppendWriteRecord(wr)
	}
	e.count = 1
	return 1, nil
}

func (e *InsertExecutor) Rid() types.Rid { return e.rid }
