package concurrency

import (
	"bytes"

	"github.com/Kyooooma/RMDB/recovery"
)

// Context carries everything a statement needs while it runs: the
// active transaction, the lock manager, the log manager and the buffer
// collecting client output. A nil Context (recovery, bulk rebuild)
// skips locking and logging.
type Context struct {
	LockMgr *LockManager
	LogMgr  *recovery.LogManager
	Txn     *Transaction
	// client-visible output of the statement
	Output *bytes.Buffer
	// when set, SELECT results are not appended to output.txt
	OutputEllipsis bool
}

func NewContext(lockMgr *LockManager, logMgr *recovery.LogManager, txn *Transaction) *Context {
	return &Context{
		LockMgr: lockMgr,
		LogMgr:  logMgr,
		Txn:     txn,
		Output:  new(bytes.Buffer),
	}
}

// AppendLog chains logRecord into the transaction's prev_lsn chain and
// buffers it.
func (ctx *Context) AppendLog(logRecord *recovery.LogRecord) error {
	logRecord.PrevLsn = ctx.Txn.GetPrevLsn()
	lsn, err := ctx.LogMgr.AddLogToBuffer(logRecord)
	if err != nil {
		return err
	}
	ctx.Txn.SetPrevLsn(lsn)
	return nil
}
