package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

// UpdateExecutor rewrites every rid produced by the scan. ADD/SUB set
// clauses compute new = old +- literal and are defined for numeric
// columns only. A uniqueness violation restores the statement's
// partial work before surfacing.
type UpdateExecutor struct {
	sm         *catalog.SmManager
	ctx        *concurrency.Context
	tab        *catalog.TabMeta
	fh         *record.RmFileHandle
	tabName    string
	setClauses []parser.SetClause
	rids       []types.Rid
}

func NewUpdateExecutor(sm *catalog.SmManager, tabName string, setClauses []parser.SetClause,
	rids []types.Rid, ctx *concurrency.Context) (*UpdateExecutor, error) {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return nil, err
	}
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return nil, errors.NewTableNotFound(tabName)
	}
	e := &UpdateExecutor{sm: sm, ctx: ctx, tab: tab, fh: fh, tabName: tabName, setClauses: setClauses, rids: rids}
	if ctx != nil {
		if err := ctx.LockMgr.LockIXOnTable(ctx.Txn, fh.GetFd()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// applySetClauses builds the after image of one record.
func (e *UpdateExecutor) applySetClauses(oldData []byte) ([]byte, error) {
	newData := append([]byte(nil), oldData...)
	for _, clause := range e.setClauses {
		col, err := e.tab.GetCol(clause.ColName)
		if err != nil {
			return nil, err
		}
		value := clause.Val
		if clause.Op != parser.OpSet {
			oldValue := types.ValueFromBytes(col.Type, oldData[col.Offset:col.Offset+col.Len])
			value, err = applyArith(oldValue, clause.Val, clause.Op)
			if err != nil {
				return nil, err
			}
		}
		value, err = coerceValueTo(value, col)
		if err != nil {
			return nil, err
		}
		copy(newData[col.Offset:col.Offset+col.Len], value.Raw)
	}
	return newData, nil
}

// applyArith computes old +- literal with numeric promotion.
func applyArith(oldValue types.Value, literal types.Value, op parser.SetOp) (types.Value, error) {
	if err := types.Convert(&oldValue, &literal); err != nil {
		return types.Value{}, err
	}
	sign := int64(1)
	if op == parser.OpSub {
		sign = -1
	}
	switch oldValue.Type {
	case types.TypeInt:
		return types.NewIntValue(oldValue.IntVal + int32(sign)*literal.IntVal), nil
	case types.TypeBigint:
		return types.NewBigintValue(oldValue.BigintVal + sign*literal.BigintVal), nil
	case types.TypeFloat:
		return types.NewFloatValue(oldValue.FloatVal + float64(sign)*literal.FloatVal), nil
	}
	return types.Value{}, errors.NewIncompatibleType("numeric", oldValue.Type.String())
}

// Exec performs the updates and returns the affected row count.
func (e *UpdateExecutor) Exec() (int, error) {
	updated := 0
	var failErr error
	for _, rid := range e.rids {
		rec, err := e.fh.GetRecord(rid, e.ctx)
		if err != nil {
			return updated, err
		}
		newData, err := e.applySetClauses(rec.Data)
		if err != nil {
			return updated, err
		}

		if err := e.deleteIndexEntries(rec.Data, rid); err != nil {
			return updated, err
		}
		if e.ctx != nil {
			wr := concurrency.NewWriteRecord(concurrency.WUpdate, e.tabName, rid, rec.Data)
			e.ctx.Txn.AppendWriteRecord(wr)
		}
		updated++

		ok, err := e.insertIndexEntries(newData, rid)
		if err != nil {
			return updated, err
		}
		if !ok {
			// reinstate the entries of the old image and unwind
			if _, err := e.insertIndexEntries(rec.Data, rid); err != nil {
				return updated, err
			}
			if e.ctx != nil {
				e.ctx.Txn.DeleteLastWriteRecord()
			}
			updated--
			failErr = errors.NewUniqueViolation()
			break
		}

		if e.ctx != nil {
			logRecord := recovery.NewUpdateLogRecord(e.ctx.Txn.GetTransactionId(), e.tabName, rid, rec.Data, newData)
			if err := e.ctx.AppendLog(logRecord); err != nil {
				return updated, err
			}
		}
		if err := e.fh.UpdateRecord(rid, newData, e.ctx); err != nil {
			return updated, err
		}
	}

	if failErr != nil {
		// revert the rows already rewritten by this statement
		for updated > 0 {
			last := e.ctx.Txn.GetLastWriteRecord()
			if last == nil || last.GetWriteType() != concurrency.WUpdate {
				break
			}
			rid := last.GetRid()
			before := last.GetRecord()
			current, err := e.fh.GetRecord(rid, e.ctx)
			if err != nil {
				return updated, err
			}
			if err := e.deleteIndexEntries(current.Data, rid); err != nil {
				return updated, err
			}
			if _, err := e.insertIndexEntries(before, rid); err != nil {
				return updated, err
			}
			if e.ctx != nil {
				logRecord := recovery.NewUpdateLogRecord(e.ctx.Txn.GetTransactionId(), e.tabName, rid, current.Data, before)
				if err := e.ctx.AppendLog(logRecord); err != nil {
					return updated, err
				}
			}
			if err := e.fh.UpdateRecord(rid, before, e.ctx); err != nil {
				return updated, err
			}
			e.ctx.Txn.DeleteLastWriteRecord()
			updated--
		}
		return 0, failErr
	}
	return updated, nil
}

func (e *UpdateExecutor) deleteIndexEntries(recData []byte, rid types.Rid) error {
	return e.sm.DeleteIndexEntries(e.ctx, e.tabName, recData, rid)
}

// insertIndexEntries places the new key into every index; on a
// duplicate it removes the entries it already placed and reports false.
func (e *UpdateExecutor) insertIndexEntries(recData []byte, rid types.Rid) (bool, error) {
	failPos := -1
	for i := range e.tab.Indexes {
		ix := &e.tab.Indexes[i]
		ih, err := e.sm.GetIndexHandle(e.tabName, ix)
		if err != nil {
			return false, err
		}
		key := ix.BuildKey(recData)
		if e.ctx != nil {
			ixName := e.sm.GetIxManager().GetIndexName(e.sm.TablePath(e.tabName), ix.ColNames())
			indexLog := recovery.NewIndexLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogIndexInsert, ixName, key, rid)
			if err := e.ctx.AppendLog(indexLog); err != nil {
				return false, err
			}
		}
		result, err := ih.InsertEntry(key, rid)
		if err != nil {
			return false, err
		}
		if !result.Second {
			failPos = i
			break
		}
	}
	if failPos == -1 {
		return true, nil
	}
	for i := 0; i < failPos; i++ {
		ix := &e.tab.Indexes[i]
		ih, err := e.sm.GetIndexHandle(e.tabName, ix)
		if err != nil {
			return false, err
		}
		key := ix.BuildKey(recData)
		if e.ctx != nil {
			ixName := e.sm.GetIxManager().GetIndexName(e.sm.TablePath(e.tabName), ix.ColNames())
			indexLog := recovery.NewIndexLogRecord(e.ctx.Txn.GetTransactionId(), recovery.LogIndexDelete, ixName, key, rid)
			if err := e.ctx.AppendLog(indexLog); err != nil {
				return false, err
			}
		}
		if _, err := ih.DeleteEntry(key); err != nil {
			return false, err
		}
	}
	return false, nil
}
