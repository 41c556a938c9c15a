package rmdb

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Kyooooma/RMDB/errors"
)

func openTestDB(t *testing.T) (*RMDB, *Connection) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "testdb")
	db, err := NewRMDB(dir, 64)
	require.NoError(t, err)
	conn := db.NewConnection()
	conn.OutputEllipsis = true
	return db, conn
}

func exec(t *testing.T, conn *Connection, sql string) string {
	t.Helper()
	out, err := conn.ExecuteSQL(sql)
	require.NoError(t, err, "statement failed: %s", sql)
	return out
}

func rowCount(t *testing.T, out string) string {
	t.Helper()
	idx := strings.LastIndex(out, "Total record(s): ")
	require.GreaterOrEqual(t, idx, 0, "missing record count in %q", out)
	return strings.TrimSpace(out[idx+len("Total record(s): "):])
}

func TestInsertUpdateDeleteCommit(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (num int);")
	exec(t, conn, "begin;")
	exec(t, conn, "insert into t values (1);")
	exec(t, conn, "insert into t values (2);")
	exec(t, conn, "insert into t values (3);")
	exec(t, conn, "update t set num = 4 where num = 1;")
	exec(t, conn, "delete from t where num = 3;")
	exec(t, conn, "commit;")

	out := exec(t, conn, "select * from t;")
	require.Equal(t, "2", rowCount(t, out))
	require.Contains(t, out, " 4 ")
	require.Contains(t, out, " 2 ")
	require.NotContains(t, out, " 3 ")
}

func TestAbortUndoesEverything(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (num int);")
	exec(t, conn, "begin;")
	exec(t, conn, "insert into t values (1);")
	exec(t, conn, "insert into t values (2);")
	exec(t, conn, "insert into t values (3);")
	exec(t, conn, "update t set num = 4 where num = 1;")
	exec(t, conn, "delete from t where num = 3;")
	exec(t, conn, "abort;")

	out := exec(t, conn, "select * from t;")
	require.Equal(t, "0", rowCount(t, out))
}

func TestDirtyReadPrevented(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (id int, num int);")

	conn1 := db.NewConnection()
	conn1.OutputEllipsis = true
	exec(t, conn1, "begin;")
	exec(t, conn1, "insert into t values (1, 1);")

	// the second transaction is younger; reading the uncommitted row
	// wounds it instead of letting it wait
	conn2 := db.NewConnection()
	conn2.OutputEllipsis = true
	exec(t, conn2, "begin;")
	_, err := conn2.ExecuteSQL("select * from t;")
	require.Error(t, err)
	require.Equal(t, errors.DeadlockPrevention, errors.KindOf(err))

	exec(t, conn1, "abort;")

	// after the abort nothing of the insert remains visible
	conn3 := db.NewConnection()
	conn3.OutputEllipsis = true
	out := exec(t, conn3, "select * from t;")
	require.Equal(t, "0", rowCount(t, out))
}

func TestUniqueIndexViolation(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (a int, b int, c char(4));")
	exec(t, conn, "create index t(a, b);")
	exec(t, conn, "insert into t values (1, 2, 'x');")

	_, err := conn.ExecuteSQL("insert into t values (1, 2, 'y');")
	require.Error(t, err)
	require.Equal(t, errors.UniqueViolation, errors.KindOf(err))

	out := exec(t, conn, "select * from t;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, " x ")
}

func TestAggregates(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (c int);")
	for i := 1; i <= 5; i++ {
		exec(t, conn, "insert into t values ("+string(rune('0'+i))+");")
	}

	out := exec(t, conn, "select count(*) from t;")
	require.Contains(t, out, " 5 ")

	out = exec(t, conn, "select max(c), min(c) from t;")
	require.Contains(t, out, " 5 ")
	require.Contains(t, out, " 1 ")

	out = exec(t, conn, "select sum(c) from t;")
	require.Contains(t, out, " 15 ")

	// aggregate over empty input still yields one row
	exec(t, conn, "create table empty_t (c int);")
	out = exec(t, conn, "select count(*) from empty_t;")
	require.Contains(t, out, " 0 ")
	require.Equal(t, "1", rowCount(t, out))
}

func TestOrderByAndLimit(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (num int);")
	for _, v := range []string{"3", "1", "2"} {
		exec(t, conn, "insert into t values ("+v+");")
	}

	out := exec(t, conn, "select * from t order by num desc;")
	first := strings.Index(out, " 3 ")
	last := strings.Index(out, " 1 ")
	require.Greater(t, last, first, "descending order expected")

	out = exec(t, conn, "select * from t limit 0, 0;")
	require.Equal(t, "0", rowCount(t, out))

	out = exec(t, conn, "select * from t order by num limit 0, 2;")
	require.Equal(t, "2", rowCount(t, out))
	require.NotContains(t, out, " 3 ")

	out = exec(t, conn, "select * from t order by num limit 1, 2;")
	require.Equal(t, "2", rowCount(t, out))
	require.NotContains(t, out, " 1 ")
}

func TestUpdateAddSub(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (num int);")
	exec(t, conn, "insert into t values (10);")
	exec(t, conn, "update t set num = num + 5;")
	out := exec(t, conn, "select * from t;")
	require.Contains(t, out, " 15 ")

	exec(t, conn, "update t set num = num - 7;")
	out = exec(t, conn, "select * from t;")
	require.Contains(t, out, " 8 ")
}

func TestJoinTwoTables(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table a (id int, v int);")
	exec(t, conn, "create table b (id int, w int);")
	exec(t, conn, "insert into a values (1, 10);")
	exec(t, conn, "insert into a values (2, 20);")
	exec(t, conn, "insert into b values (1, 100);")
	exec(t, conn, "insert into b values (3, 300);")

	out := exec(t, conn, "select a.v, b.w from a, b where a.id = b.id;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, " 10 ")
	require.Contains(t, out, " 100 ")
}

func TestJoinOuterLargerThanBlockBuffer(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	// the outer side exceeds one 100-tuple block, forcing the inner to
	// restart per block
	exec(t, conn, "create table big (id int);")
	exec(t, conn, "create table small (id int);")
	exec(t, conn, "begin;")
	for i := 0; i < 130; i++ {
		exec(t, conn, "insert into big values ("+strconv.Itoa(i)+");")
	}
	exec(t, conn, "commit;")
	exec(t, conn, "insert into small values (7);")
	exec(t, conn, "insert into small values (123);")

	out := exec(t, conn, "select big.id from big, small where big.id = small.id;")
	require.Equal(t, "2", rowCount(t, out))
	require.Contains(t, out, " 7 ")
	require.Contains(t, out, " 123 ")
}

func TestIndexScanSelect(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (a int, b char(4));")
	exec(t, conn, "create index t(a);")
	for _, v := range []string{"(5, 'e')", "(1, 'a')", "(3, 'c')", "(2, 'b')", "(4, 'd')"} {
		exec(t, conn, "insert into t values "+v+";")
	}

	out := exec(t, conn, "select * from t where a = 3;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, " c ")

	out = exec(t, conn, "select * from t where a >= 3;")
	require.Equal(t, "3", rowCount(t, out))

	out = exec(t, conn, "select * from t where a > 3;")
	require.Equal(t, "2", rowCount(t, out))

	out = exec(t, conn, "select * from t where a <= 2;")
	require.Equal(t, "2", rowCount(t, out))
}

func TestShowIndexAndDesc(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (a int, b int);")
	exec(t, conn, "create index t(a, b);")

	out := exec(t, conn, "show index from t;")
	require.Contains(t, out, "t")
	require.Contains(t, out, "unique")
	require.Contains(t, out, "(a,b)")

	out = exec(t, conn, "desc t;")
	require.Contains(t, out, "INT")
	require.Contains(t, out, "YES")

	out = exec(t, conn, "show tables;")
	require.Contains(t, out, "t")
}

func TestDatetimeRoundTrip(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (d datetime);")
	exec(t, conn, "insert into t values ('2023-01-02 03:04:05');")
	out := exec(t, conn, "select * from t;")
	require.Contains(t, out, "2023-01-02 03:04:05")

	out = exec(t, conn, "select * from t where d = '2023-01-02 03:04:05';")
	require.Equal(t, "1", rowCount(t, out))
}

func TestIncompatibleTypeRejected(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (num int);")
	_, err := conn.ExecuteSQL("insert into t values ('abc');")
	require.Error(t, err)
	require.Equal(t, errors.IncompatibleType, errors.KindOf(err))

	_, err = conn.ExecuteSQL("select * from t where num = 'abc';")
	require.Error(t, err)
}

func TestLoadCsvIntoTable(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (id int, name char(8));")
	exec(t, conn, "create index t(id);")

	csvPath := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("id,name\n1,alice\n2,bob\n"), 0666))

	out := exec(t, conn, "load "+csvPath+" into t;")
	require.Contains(t, out, "2 record(s) loaded")

	out = exec(t, conn, "select * from t where id = 2;")
	require.Equal(t, "1", rowCount(t, out))
	require.Contains(t, out, "bob")
}

func TestDropTableAndIndex(t *testing.T) {
	db, conn := openTestDB(t)
	defer db.Shutdown()

	exec(t, conn, "create table t (a int);")
	exec(t, conn, "create index t(a);")
	exec(t, conn, "drop index t(a);")
	exec(t, conn, "drop table t;")

	_, err := conn.ExecuteSQL("select * from t;")
	require.Error(t, err)
	require.Equal(t, errors.TableNotFound, errors.KindOf(err))
}
