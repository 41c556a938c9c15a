package log_recovery

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * RecoveryManager rebuilds a consistent database state from the log at
 * startup:
 *   analyze - parse the whole log, build the transaction table and the
 *             set of touched tables, drop and recreate their indexes
 *   redo    - first roll back the table effects of every logged
 *             transaction, then replay every change in log order
 *             (tolerating effects that already reached disk)
 *   undo    - roll back unfinished transactions, index entries included
 */
type RecoveryManager struct {
	diskManager disk.DiskManager
	sm          *catalog.SmManager
	logManager  *recovery.LogManager

	// every log record, indexed by its lsn (lsns are dense from 0)
	logs []*recovery.LogRecord
	// active transaction table: last lsn seen per transaction
	att map[common.TxnID]types.LSN
}

func NewRecoveryManager(diskManager disk.DiskManager, sm *catalog.SmManager, logManager *recovery.LogManager) *RecoveryManager {
	return &RecoveryManager{
		diskManager: diskManager,
		sm:          sm,
		logManager:  logManager,
		att:         make(map[common.TxnID]types.LSN),
	}
}

// Recover runs the three phases and leaves the engine ready to accept
// statements.
func (rm *RecoveryManager) Recover() error {
	if err := rm.Analyze(); err != nil {
		return err
	}
	if err := rm.Redo(); err != nil {
		return err
	}
	if err := rm.Undo(); err != nil {
		return err
	}
	rm.sm.GetBufferPoolManager().FlushAllPages()
	rm.logManager.SetNextLSN(types.LSN(len(rm.logs)))
	if len(rm.logs) > 0 {
		common.Logger.WithField("records", len(rm.logs)).Info("recovery finished")
	}
	return nil
}

// MaxTxnID reports the greatest transaction id seen in the log.
func (rm *RecoveryManager) MaxTxnID() common.TxnID {
	max := common.TxnID(0)
	for txnID := range rm.att {
		if txnID > max {
			max = txnID
		}
	}
	return max
}

// Analyze parses the log file front to back.
func (rm *RecoveryManager) Analyze() error {
	tables := mapset.NewSet[string]()
	buffer := make([]byte, common.LogBufferSize)
	off := int32(0)
	for {
		n, err := rm.diskManager.ReadLog(buffer, off)
		if err != nil {
			return err
		}
		if n <= 0 {
			break
		}
		offset := int32(0)
		for offset < n {
			if offset+recovery.LogHeaderSize > n {
				break
			}
			logRecord, err := recovery.DeserializeLogRecord(buffer[offset:n])
			if err != nil {
				// tail of the chunk holds a partial record; reread from here
				break
			}
			if offset+logRecord.LogTotLen > n {
				break
			}
			offset += logRecord.LogTotLen
			if int(logRecord.Lsn) != len(rm.logs) {
				return errors.NewInternal("log sequence corrupted at lsn %d", logRecord.Lsn)
			}
			rm.logs = append(rm.logs, logRecord)
			rm.att[logRecord.TxnID] = logRecord.Lsn
			switch logRecord.LogType {
			case recovery.LogInsert, recovery.LogDelete, recovery.LogUpdate:
				tables.Add(logRecord.TableName)
			}
		}
		if offset == 0 {
			break
		}
		off += offset
	}

	// indexes of touched tables are rebuilt from scratch: redo replays the
	// logged index records, undo reverses those of unfinished transactions
	for _, tabName := range tables.ToSlice() {
		tab, err := rm.sm.Db.GetTable(tabName)
		if err != nil {
			// the table was dropped after those records were written
			continue
		}
		for i := range tab.Indexes {
			colNames := tab.Indexes[i].ColNames()
			ixName := rm.sm.GetIxManager().GetIndexName(rm.sm.TablePath(tabName), colNames)
			if ih, ok := rm.sm.Ihs[ixName]; ok {
				rm.sm.GetBufferPoolManager().DiscardFilePages(ih.GetFd())
				if err := rm.diskManager.CloseFile(ih.GetFd()); err != nil {
					return err
				}
				delete(rm.sm.Ihs, ixName)
			}
			if err := rm.sm.GetIxManager().DestroyIndex(rm.sm.TablePath(tabName), colNames); err != nil {
				return err
			}
			colTypes := make([]types.ColType, 0, len(tab.Indexes[i].Cols))
			colLens := make([]int32, 0, len(tab.Indexes[i].Cols))
			for _, col := range tab.Indexes[i].Cols {
				colTypes = append(colTypes, col.Type)
				colLens = append(colLens, col.Len)
			}
			if err := rm.sm.GetIxManager().CreateIndex(rm.sm.TablePath(tabName), colNames, colTypes, colLens); err != nil {
				return err
			}
			ih, err := rm.sm.GetIxManager().OpenIndex(rm.sm.TablePath(tabName), colNames)
			if err != nil {
				return err
			}
			rm.sm.Ihs[ixName] = ih
		}
	}
	return nil
}

// Redo makes the on-disk state reflect every logged change: roll back
// the table effects of every logged transaction first, then replay forward.
func (rm *RecoveryManager) Redo() error {
	if err := rm.rollback(true); err != nil {
		return err
	}
	for _, logRecord := range rm.logs {
		switch logRecord.LogType {
		case recovery.LogInsert:
			fh, ok := rm.sm.Fhs[logRecord.TableName]
			if !ok {
				continue
			}
			if err := fh.InsertRecordAt(logRecord.Rid, logRecord.Record); err != nil {
				// the page never reached disk; a fresh insert recreates it
				rid, err2 := fh.InsertRecord(logRecord.Record, nil)
				if err2 != nil {
					return err2
				}
				if rid != logRecord.Rid {
					return errors.NewInternal("redo insert landed at unexpected rid")
				}
			}
		case recovery.LogUpdate:
			fh, ok := rm.sm.Fhs[logRecord.TableName]
			if !ok {
				continue
			}
			if err := fh.UpdateRecord(logRecord.Rid, logRecord.NewRecord, nil); err != nil {
				return err
			}
		case recovery.LogDelete:
			fh, ok := rm.sm.Fhs[logRecord.TableName]
			if !ok {
				continue
			}
			if err := fh.DeleteRecord(logRecord.Rid, nil); err != nil {
				if !errors.IsKind(err, errors.RecordNotFound) {
					return err
				}
			}
		case recovery.LogIndexInsert:
			ih, ok := rm.sm.Ihs[logRecord.IndexName]
			if !ok {
				continue
			}
			if _, err := ih.InsertEntry(logRecord.Key, logRecord.Rid); err != nil {
				return err
			}
		case recovery.LogIndexDelete:
			ih, ok := rm.sm.Ihs[logRecord.IndexName]
			if !ok {
				continue
			}
			if _, err := ih.DeleteEntry(logRecord.Key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Undo rolls back every transaction with neither COMMIT nor ABORT.
func (rm *RecoveryManager) Undo() error {
	return rm.rollback(false)
}

// rollback walks per-transaction lsn chains backwards applying
// inverses. In redo mode index records are skipped (the indexes were
// rebuilt) and complete transactions are traversed through; in undo
// mode a COMMIT or ABORT terminates the chain immediately.
func (rm *RecoveryManager) rollback(redoMode bool) error {
	txnIDs := make([]common.TxnID, 0, len(rm.att))
	for txnID := range rm.att {
		txnIDs = append(txnIDs, txnID)
	}
	sort.Slice(txnIDs, func(i, j int) bool { return txnIDs[i] > txnIDs[j] })

	for _, txnID := range txnIDs {
		now := rm.att[txnID]
		for now != common.InvalidLSN {
			logRecord := rm.logs[now]
			switch logRecord.LogType {
			case recovery.LogInsert:
				if fh, ok := rm.sm.Fhs[logRecord.TableName]; ok {
					if err := fh.DeleteRecord(logRecord.Rid, nil); err != nil {
						if !errors.IsKind(err, errors.RecordNotFound) && !errors.IsKind(err, errors.PageNotExist) {
							return err
						}
					}
				}
			case recovery.LogUpdate:
				if fh, ok := rm.sm.Fhs[logRecord.TableName]; ok {
					if err := fh.UpdateRecord(logRecord.Rid, logRecord.Record, nil); err != nil {
						if !errors.IsKind(err, errors.PageNotExist) {
							return err
						}
					}
				}
			case recovery.LogDelete:
				if fh, ok := rm.sm.Fhs[logRecord.TableName]; ok {
					if err := fh.InsertRecordAt(logRecord.Rid, logRecord.Record); err != nil {
						if !errors.IsKind(err, errors.PageNotExist) {
							return err
						}
					}
				}
			case recovery.LogIndexInsert:
				if !redoMode {
					if ih, ok := rm.sm.Ihs[logRecord.IndexName]; ok {
						if _, err := ih.DeleteEntry(logRecord.Key); err != nil {
							return err
						}
					}
				}
			case recovery.LogIndexDelete:
				if !redoMode {
					if ih, ok := rm.sm.Ihs[logRecord.IndexName]; ok {
						if _, err := ih.InsertEntry(logRecord.Key, logRecord.Rid); err != nil {
							return err
						}
					}
				}
			case recovery.LogCommit, recovery.LogAbort:
				if !redoMode {
					now = common.InvalidLSN
					continue
				}
			}
			now = logRecord.PrevLsn
		}
	}
	return nil
}
