package rmdb

import (
	"sync"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/execution"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/recovery"
	"github.com/Kyooooma/RMDB/recovery/log_recovery"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/storage/record"
)

/**
 * RMDB is the embedded database engine: one instance per database
 * directory. Opening runs crash recovery before the first statement is
 * accepted. Connections execute statements concurrently, one OS thread
 * per client, serialized by the lock manager.
 */
type RMDB struct {
	diskManager disk.DiskManager
	bpm         *buffer.BufferPoolManager
	sm          *catalog.SmManager
	lockMgr     *concurrency.LockManager
	logMgr      *recovery.LogManager
	txnMgr      *concurrency.TransactionManager
	ql          *execution.QlManager
	analyzer    *optimizer.Analyzer
	planner     *optimizer.Planner
}

// Connection is one client session holding its active transaction.
type Connection struct {
	db    *RMDB
	mutex sync.Mutex
	txn   *concurrency.Transaction
	// when set, SELECT output is not appended to output.txt
	OutputEllipsis bool
}

// NewRMDB opens (creating if needed) the database directory and runs
// recovery.
func NewRMDB(dbName string, poolSize uint32) (*RMDB, error) {
	if poolSize == 0 {
		poolSize = common.BufferPoolSize
	}
	diskManager := disk.NewDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(poolSize, diskManager)
	rmManager := record.NewRmManager(diskManager, bpm)
	ixManager := index.NewIxManager(diskManager, bpm)
	sm := catalog.NewSmManager(diskManager, bpm, rmManager, ixManager)

	if !sm.IsDir(dbName) {
		if err := sm.CreateDb(dbName); err != nil {
			return nil, err
		}
	}
	if err := sm.OpenDb(dbName); err != nil {
		return nil, err
	}

	lockMgr := concurrency.NewLockManager()
	logMgr := recovery.NewLogManager(diskManager)
	txnMgr := concurrency.NewTransactionManager(lockMgr, logMgr)
	txnMgr.SetRollbackManager(sm)

	recoveryMgr := log_recovery.NewRecoveryManager(diskManager, sm, logMgr)
	if err := recoveryMgr.Recover(); err != nil {
		return nil, err
	}
	txnMgr.SetNextTxnID(recoveryMgr.MaxTxnID())

	db := &RMDB{
		diskManager: diskManager,
		bpm:         bpm,
		sm:          sm,
		lockMgr:     lockMgr,
		logMgr:      logMgr,
		txnMgr:      txnMgr,
		analyzer:    optimizer.NewAnalyzer(sm),
		planner:     optimizer.NewPlanner(sm),
	}
	db.ql = execution.NewQlManager(sm, txnMgr)
	return db, nil
}

// NewConnection opens a client session.
func (db *RMDB) NewConnection() *Connection {
	return &Connection{db: db}
}

// Shutdown flushes everything and closes the database.
func (db *RMDB) Shutdown() error {
	if err := db.logMgr.Flush(); err != nil {
		return err
	}
	db.bpm.FlushAllPages()
	if err := db.sm.CloseDb(); err != nil {
		return err
	}
	db.diskManager.ShutDown()
	return nil
}

// GetSystemManager exposes the catalog for tests and tooling.
func (db *RMDB) GetSystemManager() *catalog.SmManager { return db.sm }

// ExecuteSQL runs one statement in the connection's transaction scope
// and returns the client-visible output. Outside an explicit
// BEGIN...COMMIT block the statement auto-commits.
func (conn *Connection) ExecuteSQL(sql string) (string, error) {
	conn.mutex.Lock()
	defer conn.mutex.Unlock()
	db := conn.db

	stmt, err := parser.Parse(sql)
	if err != nil {
		return "", err
	}

	if conn.txn == nil || txnFinished(conn.txn) {
		txn, err := db.txnMgr.Begin(nil)
		if err != nil {
			return "", err
		}
		conn.txn = txn
	}
	ctx := concurrency.NewContext(db.lockMgr, db.logMgr, conn.txn)
	ctx.OutputEllipsis = conn.OutputEllipsis

	var plan optimizer.Plan
	execute := func() error {
		query, err := db.analyzer.Analyze(stmt)
		if err != nil {
			return err
		}
		plan, err = db.planner.DoPlanner(query)
		if err != nil {
			return err
		}
		return conn.runPlan(plan, query, ctx)
	}
	if err := execute(); err != nil {
		if errors.IsKind(err, errors.DeadlockPrevention) {
			// wound-wait killed the transaction; the work must go
			db.txnMgr.Abort(ctx)
			conn.txn = nil
			return "", err
		}
		if !ctx.Txn.GetTxnMode() {
			db.txnMgr.Abort(ctx)
			conn.txn = nil
		}
		return "", err
	}

	isTxnControl := false
	if other, ok := plan.(*optimizer.OtherPlan); ok {
		switch other.PlanTag {
		case optimizer.T_TxnBegin, optimizer.T_TxnCommit, optimizer.T_TxnAbort, optimizer.T_TxnRollback:
			isTxnControl = true
		}
	}
	if !isTxnControl && !conn.txn.GetTxnMode() {
		if err := db.txnMgr.Commit(conn.txn); err != nil {
			return ctx.Output.String(), err
		}
		conn.txn = nil
	}
	return ctx.Output.String(), nil
}

func (conn *Connection) runPlan(plan optimizer.Plan, query *optimizer.Query, ctx *concurrency.Context) error {
	db := conn.db
	switch x := plan.(type) {
	case *optimizer.OtherPlan:
		return db.ql.RunCmdUtility(x, ctx)
	case *optimizer.DDLPlan, *optimizer.LoadPlan:
		return db.ql.RunMultiQuery(plan, ctx)
	case *optimizer.DMLPlan:
		if x.PlanTag == optimizer.T_Select {
			projection, ok := x.Child.(*optimizer.ProjectionPlan)
			if !ok {
				return errors.NewInternal("select plan without projection root")
			}
			root, err := db.ql.BuildExecutorTree(projection, ctx)
			if err != nil {
				return err
			}
			return db.ql.SelectFrom(root, projection.SelCols, ctx)
		}
		return db.ql.RunDML(x, ctx)
	}
	return errors.NewInternal("unexpected plan")
}

func txnFinished(txn *concurrency.Transaction) bool {
	state := txn.GetState()
	return state == concurrency.TxnCommitted || state == concurrency.TxnAborted
}
