package concurrency

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * Transaction states:
 *
 * DEFAULT -> GROWING -> SHRINKING -> COMMITTED
 *     |_________|__________|____________________> ABORTED
 */
type TransactionState int32

const (
	TxnDefault TransactionState = iota
	TxnGrowing
	TxnShrinking
	TxnCommitted
	TxnAborted
)

type WType int32

const (
	WInsert WType = iota
	WDelete
	WUpdate
)

// WriteRecord is one entry of the transaction's undo set: the operation
// applied, where, and the record image needed to invert it (the before
// image for updates and deletes, the inserted image for inserts).
type WriteRecord struct {
	Wtype   WType
	TabName string
	Rid     types.Rid
	Record  []byte
}

func NewWriteRecord(wtype WType, tabName string, rid types.Rid, record []byte) *WriteRecord {
	return &WriteRecord{
		Wtype:   wtype,
		TabName: tabName,
		Rid:     rid,
		Record:  append([]byte(nil), record...),
	}
}

func (wr *WriteRecord) GetWriteType() WType   { return wr.Wtype }
func (wr *WriteRecord) GetTableName() string  { return wr.TabName }
func (wr *WriteRecord) GetRid() types.Rid     { return wr.Rid }
func (wr *WriteRecord) GetRecord() []byte     { return wr.Record }

/**
 * Transaction tracks the state one client transaction accumulates: the
 * ordered write set (for undo), the lock set (for bulk release) and the
 * lsn of its newest log record (for the prev_lsn chain).
 */
type Transaction struct {
	txnID   common.TxnID
	state   TransactionState
	prevLsn types.LSN
	// ordered undo information, applied backwards on abort
	writeSet []*WriteRecord
	// every lock granted to this transaction
	lockSet mapset.Set[LockDataId]
	// true while inside an explicit BEGIN ... COMMIT block
	txnMode bool
}

func NewTransaction(txnID common.TxnID) *Transaction {
	return &Transaction{
		txnID:    txnID,
		state:    TxnDefault,
		prevLsn:  common.InvalidLSN,
		writeSet: make([]*WriteRecord, 0),
		lockSet:  mapset.NewSet[LockDataId](),
	}
}

func (txn *Transaction) GetTransactionId() common.TxnID { return txn.txnID }

func (txn *Transaction) GetState() TransactionState { return txn.state }

func (txn *Transaction) SetState(state TransactionState) { txn.state = state }

func (txn *Transaction) GetPrevLsn() types.LSN { return txn.prevLsn }

func (txn *Transaction) SetPrevLsn(lsn types.LSN) { txn.prevLsn = lsn }

func (txn *Transaction) GetWriteSet() []*WriteRecord { return txn.writeSet }

func (txn *Transaction) SetWriteSet(writeSet []*WriteRecord) { txn.writeSet = writeSet }

func (txn *Transaction) AppendWriteRecord(wr *WriteRecord) {
	txn.writeSet = append(txn.writeSet, wr)
}

func (txn *Transaction) GetLastWriteRecord() *WriteRecord {
	if len(txn.writeSet) == 0 {
		return nil
	}
	return txn.writeSet[len(txn.writeSet)-1]
}

func (txn *Transaction) DeleteLastWriteRecord() {
	if len(txn.writeSet) > 0 {
		txn.writeSet = txn.writeSet[:len(txn.writeSet)-1]
	}
}

func (txn *Transaction) GetLockSet() mapset.Set[LockDataId] { return txn.lockSet }

func (txn *Transaction) SetTxnMode(txnMode bool) { txn.txnMode = txnMode }

func (txn *Transaction) GetTxnMode() bool { return txn.txnMode }

// Clear drops the undo and lock information after commit or abort.
func (txn *Transaction) Clear() {
	txn.writeSet = make([]*WriteRecord, 0)
	txn.lockSet = mapset.NewSet[LockDataId]()
}
