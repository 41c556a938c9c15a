package concurrency

import (
	"sync"

	"github.com/sasha-s/go-deadlock"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

type LockDataType int32

const (
	LockDataTable LockDataType = iota
	LockDataRecord
)

// LockDataId identifies one lockable object: a whole table file or one
// record in it. Rid is zero for table locks.
type LockDataId struct {
	Fd    int32
	Dtype LockDataType
	Rid   types.Rid
}

func NewTableLockDataId(fd int32) LockDataId {
	return LockDataId{Fd: fd, Dtype: LockDataTable}
}

func NewRecordLockDataId(fd int32, rid types.Rid) LockDataId {
	return LockDataId{Fd: fd, Dtype: LockDataRecord, Rid: rid}
}

type LockMode int32

const (
	LockIS LockMode = iota
	LockIX
	LockShared
	LockSIX
	LockExclusive
)

// compatMatrix[held][requested] per the standard multigranularity table.
var compatMatrix = [5][5]bool{
	/* IS  */ {true, true, true, true, false},
	/* IX  */ {true, true, false, false, false},
	/* S   */ {true, false, true, false, false},
	/* SIX */ {true, false, false, false, false},
	/* X   */ {false, false, false, false, false},
}

func Compatible(held LockMode, requested LockMode) bool {
	return compatMatrix[held][requested]
}

type LockRequest struct {
	txnID    common.TxnID
	lockMode LockMode
	granted  bool
}

func NewLockRequest(txnID common.TxnID, lockMode LockMode) *LockRequest {
	return &LockRequest{txnID: txnID, lockMode: lockMode, granted: false}
}

type LockRequestQueue struct {
	requestQueue []*LockRequest
	// waiters block here; signaled on every unlock of the object
	cv *sync.Cond
}

/**
 * LockManager handles lock and unlock requests from transactions at
 * table and record granularity. Deadlocks are prevented with
 * wound-wait: a transaction never waits for an older one; the younger
 * requester aborts instead.
 */
type LockManager struct {
	latch     deadlock.Mutex
	lockTable map[LockDataId]*LockRequestQueue
}

func NewLockManager() *LockManager {
	ret := new(LockManager)
	ret.lockTable = make(map[LockDataId]*LockRequestQueue)
	return ret
}

// removeUngranted drops the transaction's not-yet-granted request from
// the queue, if any. Called when a wait is abandoned by wound-wait.
func (lm *LockManager) removeUngranted(dataId LockDataId, txnID common.TxnID) {
	queue, ok := lm.lockTable[dataId]
	if !ok {
		return
	}
	remain := queue.requestQueue[:0]
	for _, req := range queue.requestQueue {
		if req.txnID == txnID && !req.granted {
			continue
		}
		remain = append(remain, req)
	}
	queue.requestQueue = remain
	if len(queue.requestQueue) == 0 {
		delete(lm.lockTable, dataId)
	}
}

func (lm *LockManager) getQueue(dataId LockDataId) *LockRequestQueue {
	queue, ok := lm.lockTable[dataId]
	if !ok {
		queue = &LockRequestQueue{requestQueue: make([]*LockRequest, 0)}
		queue.cv = sync.NewCond(&lm.latch)
		lm.lockTable[dataId] = queue
	}
	return queue
}

// woundWait applies the prevention rule against one conflicting holder:
// waiting on an older transaction is forbidden, the younger requester
// aborts right away.
func woundWait(holder common.TxnID, requester *Transaction) error {
	if holder < requester.GetTransactionId() {
		requester.SetState(TxnAborted)
		return errors.NewDeadlockPrevention(int32(requester.GetTransactionId()))
	}
	return nil
}

// tableHoldBlocksRowLock checks the owning table's queue: a row S lock
// conflicts with an X table hold of another transaction, a row X lock
// with any S/SIX/X table hold of another transaction.
func (lm *LockManager) tableHoldBlocksRowLock(tableQueue *LockRequestQueue, txn *Transaction, exclusive bool) (bool, error) {
	if tableQueue == nil {
		return false, nil
	}
	blocked := false
	for _, req := range tableQueue.requestQueue {
		if !req.granted || req.txnID == txn.GetTransactionId() {
			continue
		}
		conflict := req.lockMode == LockExclusive
		if exclusive {
			conflict = req.lockMode == LockExclusive || req.lockMode == LockShared || req.lockMode == LockSIX
		}
		if conflict {
			blocked = true
			if err := woundWait(req.txnID, txn); err != nil {
				return true, err
			}
		}
	}
	return blocked, nil
}

// LockSharedOnRecord acquires a shared lock on one record.
func (lm *LockManager) LockSharedOnRecord(txn *Transaction, rid types.Rid, fd int32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	txn.SetState(TxnGrowing)

	tableId := NewTableLockDataId(fd)
	recordId := NewRecordLockDataId(fd, rid)

	for {
		blocked, err := lm.tableHoldBlocksRowLock(lm.lockTable[tableId], txn, false)
		if err != nil {
			lm.removeUngranted(recordId, txn.GetTransactionId())
			return err
		}

		queue := lm.getQueue(recordId)
		var own *LockRequest
		ok := !blocked
		for _, req := range queue.requestQueue {
			if req.txnID == txn.GetTransactionId() {
				own = req
				if req.granted {
					return nil
				}
				continue
			}
			if req.granted && req.lockMode == LockExclusive {
				ok = false
				if err := woundWait(req.txnID, txn); err != nil {
					lm.removeUngranted(recordId, txn.GetTransactionId())
					return err
				}
			}
		}
		if own == nil {
			own = NewLockRequest(txn.GetTransactionId(), LockShared)
			queue.requestQueue = append(queue.requestQueue, own)
		}
		if ok {
			own.granted = true
			txn.GetLockSet().Add(recordId)
			return nil
		}
		queue.cv.Wait()
	}
}

// LockExclusiveOnRecord acquires an exclusive lock on one record; a
// shared lock already held by the transaction upgrades in place when no
// other holder exists.
func (lm *LockManager) LockExclusiveOnRecord(txn *Transaction, rid types.Rid, fd int32) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	txn.SetState(TxnGrowing)

	tableId := NewTableLockDataId(fd)
	recordId := NewRecordLockDataId(fd, rid)

	for {
		// holding the table X lock covers the record
		if tableQueue, ok := lm.lockTable[tableId]; ok {
			for _, req := range tableQueue.requestQueue {
				if req.granted && req.txnID == txn.GetTransactionId() && req.lockMode == LockExclusive {
					return nil
				}
			}
		}
		blocked, err := lm.tableHoldBlocksRowLock(lm.lockTable[tableId], txn, true)
		if err != nil {
			lm.removeUngranted(recordId, txn.GetTransactionId())
			return err
		}

		queue := lm.getQueue(recordId)
		var own *LockRequest
		ok := !blocked
		for _, req := range queue.requestQueue {
			if req.txnID == txn.GetTransactionId() {
				own = req
				if req.granted && req.lockMode == LockExclusive {
					return nil
				}
				continue
			}
			if req.granted {
				ok = false
				if err := woundWait(req.txnID, txn); err != nil {
					lm.removeUngranted(recordId, txn.GetTransactionId())
					return err
				}
			}
		}
		if own == nil {
			own = NewLockRequest(txn.GetTransactionId(), LockExclusive)
			queue.requestQueue = append(queue.requestQueue, own)
		}
		if ok {
			// covers the S -> X in-place upgrade as well
			own.granted = true
			own.lockMode = LockExclusive
			txn.GetLockSet().Add(recordId)
			return nil
		}
		queue.cv.Wait()
	}
}

// LockSharedOnTable acquires a table shared lock.
func (lm *LockManager) LockSharedOnTable(txn *Transaction, fd int32) error {
	return lm.lockOnTable(txn, fd, LockShared)
}

// LockExclusiveOnTable acquires a table exclusive lock.
func (lm *LockManager) LockExclusiveOnTable(txn *Transaction, fd int32) error {
	return lm.lockOnTable(txn, fd, LockExclusive)
}

// LockISOnTable registers the intention to take shared row locks.
func (lm *LockManager) LockISOnTable(txn *Transaction, fd int32) error {
	return lm.lockOnTable(txn, fd, LockIS)
}

// LockIXOnTable registers the intention to take exclusive row locks.
func (lm *LockManager) LockIXOnTable(txn *Transaction, fd int32) error {
	return lm.lockOnTable(txn, fd, LockIX)
}

func (lm *LockManager) lockOnTable(txn *Transaction, fd int32, mode LockMode) error {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	txn.SetState(TxnGrowing)

	tableId := NewTableLockDataId(fd)
	for {
		queue := lm.getQueue(tableId)
		var own *LockRequest
		ok := true
		for _, req := range queue.requestQueue {
			if req.txnID == txn.GetTransactionId() {
				own = req
				if req.granted && (req.lockMode == mode || req.lockMode == LockExclusive) {
					return nil
				}
				continue
			}
			if req.granted && !Compatible(req.lockMode, mode) {
				ok = false
				if err := woundWait(req.txnID, txn); err != nil {
					lm.removeUngranted(tableId, txn.GetTransactionId())
					return err
				}
			}
		}
		if own == nil {
			own = NewLockRequest(txn.GetTransactionId(), mode)
			queue.requestQueue = append(queue.requestQueue, own)
		}
		if ok {
			own.granted = true
			if upgraded(own.lockMode, mode) {
				own.lockMode = mode
			}
			txn.GetLockSet().Add(tableId)
			return nil
		}
		queue.cv.Wait()
	}
}

// upgraded reports whether requested strictly strengthens held.
func upgraded(held LockMode, requested LockMode) bool {
	strength := map[LockMode]int{LockIS: 0, LockIX: 1, LockShared: 1, LockSIX: 2, LockExclusive: 3}
	return strength[requested] > strength[held]
}

// Unlock releases the transaction's hold on the object and wakes every
// waiter of its queue.
func (lm *LockManager) Unlock(txn *Transaction, dataId LockDataId) bool {
	lm.latch.Lock()
	defer lm.latch.Unlock()
	txn.SetState(TxnShrinking)

	queue, ok := lm.lockTable[dataId]
	if !ok {
		return false
	}
	remain := queue.requestQueue[:0]
	for _, req := range queue.requestQueue {
		if req.txnID != txn.GetTransactionId() {
			remain = append(remain, req)
		}
	}
	queue.requestQueue = remain
	if len(queue.requestQueue) == 0 {
		delete(lm.lockTable, dataId)
	} else {
		queue.cv.Broadcast()
	}
	if dataId.Dtype == LockDataTable {
		// row waiters blocked by a table hold sleep on their record
		// queue; wake them so they re-check
		for otherId, otherQueue := range lm.lockTable {
			if otherId.Fd == dataId.Fd && otherId.Dtype == LockDataRecord {
				otherQueue.cv.Broadcast()
			}
		}
	}
	return true
}
