package catalog

import (
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/types"
)

// GetIndexHandle resolves the open handle of one index of a table.
func (sm *SmManager) GetIndexHandle(tabName string, ix *IndexMeta) (*index.IxIndexHandle, error) {
	ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), ix.ColNames())
	ih, ok := sm.Ihs[ixName]
	if !ok {
		return nil, errors.NewInternal("index %s is not open", ixName)
	}
	return ih, nil
}

// DeleteIndexEntries removes the record's key from every index of the
// table, logging INDEX_DELETE per index.
func (sm *SmManager) DeleteIndexEntries(ctx *concurrency.Context, tabName string, recData []byte, rid types.Rid) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	for i := range tab.Indexes {
		ix := &tab.Indexes[i]
		ih, err := sm.GetIndexHandle(tabName, ix)
		if err != nil {
			return err
		}
		key := ix.BuildKey(recData)
		if ctx != nil {
			ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), ix.ColNames())
			indexLog := recovery.NewIndexLogRecord(ctx.Txn.GetTransactionId(), recovery.LogIndexDelete, ixName, key, rid)
			if err := ctx.AppendLog(indexLog); err != nil {
				return err
			}
		}
		if _, err := ih.DeleteEntry(key); err != nil {
			return err
		}
	}
	return nil
}

// InsertIndexEntries inserts the record's key into every index of the
// table, logging INDEX_INSERT per index.
func (sm *SmManager) InsertIndexEntries(ctx *concurrency.Context, tabName string, recData []byte, rid types.Rid) error {
	tab, err := sm.Db.GetTable(tabName)
	if err != nil {
		return err
	}
	for i := range tab.Indexes {
		ix := &tab.Indexes[i]
		ih, err := sm.GetIndexHandle(tabName, ix)
		if err != nil {
			return err
		}
		key := ix.BuildKey(recData)
		if ctx != nil {
			ixName := sm.ixManager.GetIndexName(sm.TablePath(tabName), ix.ColNames())
			indexLog := recovery.NewIndexLogRecord(ctx.Txn.GetTransactionId(), recovery.LogIndexInsert, ixName, key, rid)
			if err := ctx.AppendLog(indexLog); err != nil {
				return err
			}
		}
		if _, err := ih.InsertEntry(key, rid); err != nil {
			return err
		}
	}
	return nil
}

// RollbackInsert inverts an insert: compensate with a DELETE record,
// drop the index entries, delete the tuple.
func (sm *SmManager) RollbackInsert(ctx *concurrency.Context, tabName string, wr *concurrency.WriteRecord) error {
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return errors.NewTableNotFound(tabName)
	}
	logRecord := recovery.NewInsertDeleteLogRecord(ctx.Txn.GetTransactionId(), recovery.LogDelete, tabName, wr.GetRid(), wr.GetRecord())
	if err := ctx.AppendLog(logRecord); err != nil {
		return err
	}
	if err := sm.DeleteIndexEntries(ctx, tabName, wr.GetRecord(), wr.GetRid()); err != nil {
		return err
	}
	return fh.DeleteRecord(wr.GetRid(), ctx)
}

// RollbackDelete inverts a delete: compensate with an INSERT record,
// restore the index entries, reinsert the tuple at its original rid.
func (sm *SmManager) RollbackDelete(ctx *concurrency.Context, tabName string, wr *concurrency.WriteRecord) error {
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return errors.NewTableNotFound(tabName)
	}
	logRecord := recovery.NewInsertDeleteLogRecord(ctx.Txn.GetTransactionId(), recovery.LogInsert, tabName, wr.GetRid(), wr.GetRecord())
	if err := ctx.AppendLog(logRecord); err != nil {
		return err
	}
	if err := sm.InsertIndexEntries(ctx, tabName, wr.GetRecord(), wr.GetRid()); err != nil {
		return err
	}
	return fh.InsertRecordAt(wr.GetRid(), wr.GetRecord())
}

// RollbackUpdate inverts an update: compensate with an UPDATE record
// whose after image is the before image, swap the index entries and
// overwrite the tuple.
func (sm *SmManager) RollbackUpdate(ctx *concurrency.Context, tabName string, wr *concurrency.WriteRecord) error {
	fh, ok := sm.Fhs[tabName]
	if !ok {
		return errors.NewTableNotFound(tabName)
	}
	current, err := fh.GetRecord(wr.GetRid(), ctx)
	if err != nil {
		return err
	}
	logRecord := recovery.NewUpdateLogRecord(ctx.Txn.GetTransactionId(), tabName, wr.GetRid(), current.Data, wr.GetRecord())
	if err := ctx.AppendLog(logRecord); err != nil {
		return err
	}
	if err := sm.DeleteIndexEntries(ctx, tabName, current.Data, wr.GetRid()); err != nil {
		return err
	}
	if err := fh.UpdateRecord(wr.GetRid(), wr.GetRecord(), ctx); err != nil {
		return err
	}
	return sm.InsertIndexEntries(ctx, tabName, wr.GetRecord(), wr.GetRid())
}
