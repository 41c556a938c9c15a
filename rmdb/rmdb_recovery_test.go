package rmdb

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// reopen simulates a crash: the old instance is abandoned without
// Shutdown, so only what reached the log survives.
func reopen(t *testing.T, dir string) (*RMDB, *Connection) {
	t.Helper()
	db, err := NewRMDB(dir, 64)
	require.NoError(t, err)
	conn := db.NewConnection()
	conn.OutputEllipsis = true
	return db, conn
}

func TestRecoveryCommittedRowsSurviveCrash(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashdb")

	db, conn := reopen(t, dir)
	exec(t, conn, "create table t (num int);")
	for _, v := range []string{"1", "2", "3"} {
		exec(t, conn, "insert into t values ("+v+");")
	}
	// crash: no Shutdown, dirty pages are lost, the log is not
	db.diskManager.ShutDown()

	db2, conn2 := reopen(t, dir)
	defer db2.Shutdown()
	out := exec(t, conn2, "select * from t;")
	require.Equal(t, "3", rowCount(t, out))
}

func TestRecoveryUncommittedWorkErased(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashdb")

	db, conn := reopen(t, dir)
	exec(t, conn, "create table t (id int, num int);")
	exec(t, conn, "insert into t values (1, 10);")

	// txn A updates the row and inserts another one without committing
	connA := db.NewConnection()
	connA.OutputEllipsis = true
	exec(t, connA, "begin;")
	exec(t, connA, "update t set num = 99 where id = 1;")
	exec(t, connA, "insert into t values (2, 20);")

	// txn B commits on a different table (no lock conflict with A);
	// its commit flush makes A's records durable in the log as well
	exec(t, conn, "create table t2 (num int);")
	connB := db.NewConnection()
	connB.OutputEllipsis = true
	exec(t, connB, "insert into t2 values (30);")

	db.diskManager.ShutDown()

	db2, conn2 := reopen(t, dir)
	defer db2.Shutdown()
	out := exec(t, conn2, "select * from t;")
	require.Equal(t, "1", rowCount(t, out))
	// A's effects are gone
	require.Contains(t, out, " 10 ")
	require.NotContains(t, out, " 99 ")
	require.NotContains(t, out, " 20 ")
	// B's effect stays
	out = exec(t, conn2, "select * from t2;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, " 30 ")
}

func TestRecoveryRebuildsIndexes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashdb")

	db, conn := reopen(t, dir)
	exec(t, conn, "create table t (a int, b char(4));")
	exec(t, conn, "create index t(a);")
	for _, v := range []string{"(1, 'a')", "(2, 'b')", "(3, 'c')"} {
		exec(t, conn, "insert into t values "+v+";")
	}
	db.diskManager.ShutDown()

	db2, conn2 := reopen(t, dir)
	defer db2.Shutdown()
	// the index was dropped and rebuilt during analyze/redo
	out := exec(t, conn2, "select * from t where a = 2;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, " b ")

	// unique enforcement still works on the rebuilt index
	_, err := conn2.ExecuteSQL("insert into t values (2, 'x');")
	require.Error(t, err)
}

func TestRecoveryAbortedTransactionInvisible(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashdb")

	db, conn := reopen(t, dir)
	exec(t, conn, "create table t (num int);")
	exec(t, conn, "begin;")
	exec(t, conn, "insert into t values (7);")
	exec(t, conn, "abort;")
	db.diskManager.ShutDown()

	db2, conn2 := reopen(t, dir)
	defer db2.Shutdown()
	out := exec(t, conn2, "select * from t;")
	require.Equal(t, "0", rowCount(t, out))
}

func TestRecoveryAfterIndexRecreate(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "crashdb")

	db, conn := reopen(t, dir)
	exec(t, conn, "create table t (a int);")
	exec(t, conn, "create index t(a);")
	exec(t, conn, "insert into t values (1);")
	exec(t, conn, "drop index t(a);")
	exec(t, conn, "create index t(a);")
	exec(t, conn, "insert into t values (2);")
	require.NoError(t, db.Shutdown())

	db2, conn2 := reopen(t, dir)
	defer db2.Shutdown()
	out := exec(t, conn2, "select * from t where a >= 1;")
	require.Equal(t, "2", rowCount(t, out))
}
