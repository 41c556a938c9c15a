package parser

import (
	"testing"

	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func TestParseCreateTable(t *testing.T) {
	stmt, err := Parse("create table t (id int, name char(8), price float, big bigint, d datetime);")
	testingpkg.Ok(t, err)
	create, ok := stmt.(*CreateTableStmt)
	testingpkg.Assert(t, ok, "expected CreateTableStmt")
	testingpkg.Equals(t, "t", create.TabName)
	testingpkg.Equals(t, 5, len(create.ColDefs))
	testingpkg.Equals(t, types.TypeInt, create.ColDefs[0].Type)
	testingpkg.Equals(t, types.TypeString, create.ColDefs[1].Type)
	testingpkg.Equals(t, int32(8), create.ColDefs[1].Len)
	testingpkg.Equals(t, types.TypeFloat, create.ColDefs[2].Type)
	testingpkg.Equals(t, types.TypeBigint, create.ColDefs[3].Type)
	testingpkg.Equals(t, types.TypeDatetime, create.ColDefs[4].Type)
}

func TestParseCreateDropIndex(t *testing.T) {
	stmt, err := Parse("create index t(a, b);")
	testingpkg.Ok(t, err)
	create, ok := stmt.(*CreateIndexStmt)
	testingpkg.Assert(t, ok, "expected CreateIndexStmt")
	testingpkg.Equals(t, "t", create.TabName)
	testingpkg.Equals(t, []string{"a", "b"}, create.ColNames)

	stmt, err = Parse("drop index t(a);")
	testingpkg.Ok(t, err)
	drop, ok := stmt.(*DropIndexStmt)
	testingpkg.Assert(t, ok, "expected DropIndexStmt")
	testingpkg.Equals(t, []string{"a"}, drop.ColNames)
}

func TestParseInsert(t *testing.T) {
	stmt, err := Parse("insert into t values (1, 'abc', 2.5, -3);")
	testingpkg.Ok(t, err)
	insert, ok := stmt.(*InsertStmt)
	testingpkg.Assert(t, ok, "expected InsertStmt")
	testingpkg.Equals(t, 4, len(insert.Values))
	testingpkg.Equals(t, types.TypeInt, insert.Values[0].Type)
	testingpkg.Equals(t, int32(1), insert.Values[0].IntVal)
	testingpkg.Equals(t, "abc", insert.Values[1].StrVal)
	testingpkg.Equals(t, types.TypeFloat, insert.Values[2].Type)
	testingpkg.Equals(t, int32(-3), insert.Values[3].IntVal)
}

func TestParseSelectWhereOrderLimit(t *testing.T) {
	stmt, err := Parse("select a.id, b.num from a, b where a.id = b.id and a.num >= 3 order by a.num desc limit 2, 5;")
	testingpkg.Ok(t, err)
	sel, ok := stmt.(*SelectStmt)
	testingpkg.Assert(t, ok, "expected SelectStmt")
	testingpkg.Equals(t, []string{"a", "b"}, sel.Tabs)
	testingpkg.Equals(t, 2, len(sel.Fields))
	testingpkg.Equals(t, 2, len(sel.Conds))

	join := sel.Conds[0]
	testingpkg.Assert(t, !join.IsRhsVal, "first condition joins two columns")
	testingpkg.Equals(t, OpEq, join.Op)

	rangeCond := sel.Conds[1]
	testingpkg.Assert(t, rangeCond.IsRhsVal, "second condition compares a literal")
	testingpkg.Equals(t, OpGe, rangeCond.Op)
	testingpkg.Equals(t, int32(3), rangeCond.RhsVal.IntVal)

	testingpkg.Equals(t, 1, len(sel.OrderBys))
	testingpkg.Assert(t, sel.OrderBys[0].Desc, "order by desc")
	testingpkg.Assert(t, sel.HasLimit, "limit present")
	testingpkg.Equals(t, int32(2), sel.LimitStart)
	testingpkg.Equals(t, int32(5), sel.LimitLen)
}

func TestParseSelectAggregates(t *testing.T) {
	stmt, err := Parse("select count(*), max(c), min(c), sum(c) from t;")
	testingpkg.Ok(t, err)
	sel := stmt.(*SelectStmt)
	testingpkg.Equals(t, 4, len(sel.Fields))
	testingpkg.Equals(t, "count", sel.Fields[0].Aggregate)
	testingpkg.Equals(t, "max", sel.Fields[1].Aggregate)
	testingpkg.Equals(t, "c", sel.Fields[1].ColName)
}

func TestParseUpdateSetOps(t *testing.T) {
	stmt, err := Parse("update t set a = 1, b = b + 2, c = c - 3 where a <> 0;")
	testingpkg.Ok(t, err)
	update, ok := stmt.(*UpdateStmt)
	testingpkg.Assert(t, ok, "expected UpdateStmt")
	testingpkg.Equals(t, 3, len(update.SetClauses))
	testingpkg.Equals(t, OpSet, update.SetClauses[0].Op)
	testingpkg.Equals(t, OpAdd, update.SetClauses[1].Op)
	testingpkg.Equals(t, OpSub, update.SetClauses[2].Op)
	testingpkg.Equals(t, 1, len(update.Conds))
	testingpkg.Equals(t, OpNe, update.Conds[0].Op)
}

func TestParseTxnControlAndUtility(t *testing.T) {
	cases := map[string]interface{}{
		"begin;":            &TxnBeginStmt{},
		"COMMIT":            &TxnCommitStmt{},
		"abort;":            &TxnAbortStmt{},
		"rollback;":         &TxnRollbackStmt{},
		"help;":             &HelpStmt{},
		"show tables;":      &ShowTablesStmt{},
		"desc t;":           &DescTableStmt{TabName: "t"},
		"show index from t": &ShowIndexStmt{TabName: "t"},
	}
	for sql, want := range cases {
		stmt, err := Parse(sql)
		testingpkg.Ok(t, err)
		testingpkg.Equals(t, want, stmt)
	}
}

func TestParseLoad(t *testing.T) {
	stmt, err := Parse("load data.csv into t;")
	testingpkg.Ok(t, err)
	load, ok := stmt.(*LoadStmt)
	testingpkg.Assert(t, ok, "expected LoadStmt")
	testingpkg.Equals(t, "data.csv", load.FileName)
	testingpkg.Equals(t, "t", load.TabName)
}
