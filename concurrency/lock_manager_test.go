package concurrency

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kyooooma/RMDB/errors"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func TestLockCompatibility(t *testing.T) {
	testingpkg.Assert(t, Compatible(LockIS, LockShared), "IS and S are compatible")
	testingpkg.Assert(t, Compatible(LockIS, LockSIX), "IS and SIX are compatible")
	testingpkg.Assert(t, Compatible(LockIX, LockIX), "IX and IX are compatible")
	testingpkg.Assert(t, !Compatible(LockIX, LockShared), "IX blocks S")
	testingpkg.Assert(t, !Compatible(LockShared, LockSIX), "S blocks SIX")
	testingpkg.Assert(t, !Compatible(LockExclusive, LockIS), "X blocks everything")
	testingpkg.Assert(t, !Compatible(LockSIX, LockIX), "SIX blocks IX")
}

func TestSharedLocksCoexist(t *testing.T) {
	lm := NewLockManager()
	txn1 := NewTransaction(1)
	txn2 := NewTransaction(2)
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	testingpkg.Ok(t, lm.LockSharedOnRecord(txn1, rid, 0))
	testingpkg.Ok(t, lm.LockSharedOnRecord(txn2, rid, 0))
	testingpkg.Equals(t, 1, txn1.GetLockSet().Cardinality())
	testingpkg.Equals(t, 1, txn2.GetLockSet().Cardinality())
}

func TestYoungerRequesterAbortsOnConflict(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1)
	younger := NewTransaction(2)
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	testingpkg.Ok(t, lm.LockExclusiveOnRecord(older, rid, 0))

	err := lm.LockExclusiveOnRecord(younger, rid, 0)
	testingpkg.Assert(t, errors.IsKind(err, errors.DeadlockPrevention),
		"a younger transaction never waits on an older one")
	testingpkg.Equals(t, TxnAborted, younger.GetState())
}

func TestOlderRequesterWaitsForRelease(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1)
	younger := NewTransaction(2)
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	testingpkg.Ok(t, lm.LockExclusiveOnRecord(younger, rid, 0))

	var acquired int32
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// the older transaction blocks instead of aborting
		if err := lm.LockExclusiveOnRecord(older, rid, 0); err != nil {
			t.Errorf("older requester must not abort: %v", err)
			return
		}
		atomic.StoreInt32(&acquired, 1)
	}()

	time.Sleep(50 * time.Millisecond)
	testingpkg.Equals(t, int32(0), atomic.LoadInt32(&acquired))

	lm.Unlock(younger, NewRecordLockDataId(0, rid))
	wg.Wait()
	testingpkg.Equals(t, int32(1), atomic.LoadInt32(&acquired))
}

func TestSharedToExclusiveUpgrade(t *testing.T) {
	lm := NewLockManager()
	txn := NewTransaction(1)
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	testingpkg.Ok(t, lm.LockSharedOnRecord(txn, rid, 0))
	// the sole holder upgrades in place
	testingpkg.Ok(t, lm.LockExclusiveOnRecord(txn, rid, 0))

	other := NewTransaction(2)
	err := lm.LockSharedOnRecord(other, rid, 0)
	testingpkg.Assert(t, errors.IsKind(err, errors.DeadlockPrevention),
		"the upgraded lock must now be exclusive")
}

func TestTableXBlocksRowLock(t *testing.T) {
	lm := NewLockManager()
	older := NewTransaction(1)
	younger := NewTransaction(2)
	rid := types.Rid{PageNo: 1, SlotNo: 0}

	testingpkg.Ok(t, lm.LockExclusiveOnTable(older, 0))
	err := lm.LockSharedOnRecord(younger, rid, 0)
	testingpkg.Assert(t, errors.IsKind(err, errors.DeadlockPrevention),
		"a table X hold by an older transaction wounds the younger row reader")
}

func TestUnlockReleasesForWaiters(t *testing.T) {
	lm := NewLockManager()
	first := NewTransaction(1)
	second := NewTransaction(2)

	testingpkg.Ok(t, lm.LockExclusiveOnTable(first, 0))
	lm.Unlock(first, NewTableLockDataId(0))
	testingpkg.Equals(t, TxnShrinking, first.GetState())

	// the object is free again
	testingpkg.Ok(t, lm.LockExclusiveOnTable(second, 0))
}
