package concurrency

import (
	"sync"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/recovery"
)

// RollbackManager is the slice of the system manager the transaction
// manager needs for undo: applying the inverse of a write-set entry,
// including the index maintenance and compensating log records.
type RollbackManager interface {
	RollbackInsert(ctx *Context, tabName string, wr *WriteRecord) error
	RollbackDelete(ctx *Context, tabName string, wr *WriteRecord) error
	RollbackUpdate(ctx *Context, tabName string, wr *WriteRecord) error
}

/**
 * TransactionManager keeps track of every transaction running in the
 * process and drives begin/commit/abort.
 */
type TransactionManager struct {
	mutex       sync.Mutex
	nextTxnID   common.TxnID
	lockManager *LockManager
	logManager  *recovery.LogManager
	rollbackMgr RollbackManager
}

// process wide transaction table
var txnMap = make(map[common.TxnID]*Transaction)
var txnMapMutex sync.Mutex

func NewTransactionManager(lockManager *LockManager, logManager *recovery.LogManager) *TransactionManager {
	return &TransactionManager{
		nextTxnID:   0,
		lockManager: lockManager,
		logManager:  logManager,
	}
}

// SetRollbackManager wires the system manager in after construction
// (the two are built in dependency order).
func (tm *TransactionManager) SetRollbackManager(rm RollbackManager) {
	tm.rollbackMgr = rm
}

// SetNextTxnID seeds the id counter above every id recovery saw in the
// log, so ids stay monotonic across restarts.
func (tm *TransactionManager) SetNextTxnID(txnID common.TxnID) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	if txnID > tm.nextTxnID {
		tm.nextTxnID = txnID
	}
}

func GetTransaction(txnID common.TxnID) *Transaction {
	txnMapMutex.Lock()
	defer txnMapMutex.Unlock()
	return txnMap[txnID]
}

// Begin starts txn, or a fresh transaction when txn is nil, emits the
// BEGIN record and registers it in the global transaction table.
func (tm *TransactionManager) Begin(txn *Transaction) (*Transaction, error) {
	if txn == nil {
		tm.mutex.Lock()
		tm.nextTxnID++
		txn = NewTransaction(tm.nextTxnID)
		tm.mutex.Unlock()
	}

	logRecord := recovery.NewTxnLogRecord(txn.GetTransactionId(), recovery.LogBegin)
	logRecord.PrevLsn = txn.GetPrevLsn()
	lsn, err := tm.logManager.AddLogToBuffer(logRecord)
	if err != nil {
		return nil, err
	}
	txn.SetPrevLsn(lsn)

	txnMapMutex.Lock()
	txnMap[txn.GetTransactionId()] = txn
	txnMapMutex.Unlock()
	return txn, nil
}

// Commit releases every lock held, emits COMMIT and makes the log
// durable before returning.
func (tm *TransactionManager) Commit(txn *Transaction) error {
	tm.releaseLocks(txn)
	txn.Clear()

	logRecord := recovery.NewTxnLogRecord(txn.GetTransactionId(), recovery.LogCommit)
	logRecord.PrevLsn = txn.GetPrevLsn()
	lsn, err := tm.logManager.AddLogToBuffer(logRecord)
	if err != nil {
		return err
	}
	txn.SetPrevLsn(lsn)
	if err := tm.logManager.Flush(); err != nil {
		return err
	}

	txn.SetState(TxnCommitted)
	return nil
}

// Abort walks the write set backwards applying the inverse of every
// operation (logging compensations on the way), releases the locks and
// emits ABORT.
func (tm *TransactionManager) Abort(ctx *Context) error {
	txn := ctx.Txn
	writeSet := txn.GetWriteSet()
	for len(writeSet) != 0 {
		last := writeSet[len(writeSet)-1]
		writeSet = writeSet[:len(writeSet)-1]
		txn.SetWriteSet(writeSet)

		var err error
		switch last.GetWriteType() {
		case WInsert:
			err = tm.rollbackMgr.RollbackInsert(ctx, last.GetTableName(), last)
		case WDelete:
			err = tm.rollbackMgr.RollbackDelete(ctx, last.GetTableName(), last)
		case WUpdate:
			err = tm.rollbackMgr.RollbackUpdate(ctx, last.GetTableName(), last)
		}
		if err != nil {
			common.Logger.WithError(err).Error("rollback of write record failed")
		}
	}

	tm.releaseLocks(txn)
	txn.Clear()

	logRecord := recovery.NewTxnLogRecord(txn.GetTransactionId(), recovery.LogAbort)
	logRecord.PrevLsn = txn.GetPrevLsn()
	lsn, err := tm.logManager.AddLogToBuffer(logRecord)
	if err != nil {
		return err
	}
	txn.SetPrevLsn(lsn)
	if err := tm.logManager.Flush(); err != nil {
		return err
	}

	txn.SetState(TxnAborted)
	return nil
}

func (tm *TransactionManager) releaseLocks(txn *Transaction) {
	for _, dataId := range txn.GetLockSet().ToSlice() {
		tm.lockManager.Unlock(txn, dataId)
	}
}
