package parser

import (
	"github.com/Kyooooma/RMDB/types"
)

// Stmt is one parsed statement; the concrete type tells the planner
// what to build.
type Stmt interface{}

type CompOp int32

const (
	OpEq CompOp = iota
	OpNe
	OpLt
	OpGt
	OpLe
	OpGe
)

// SwapOp mirrors a comparison when its sides are exchanged.
func SwapOp(op CompOp) CompOp {
	switch op {
	case OpLt:
		return OpGt
	case OpGt:
		return OpLt
	case OpLe:
		return OpGe
	case OpGe:
		return OpLe
	}
	return op
}

type SetOp int32

const (
	OpSet SetOp = iota
	OpAdd
	OpSub
)

// TabCol names a column, optionally qualified by table, with the
// aggregate tag and alias of the select list.
type TabCol struct {
	TabName   string
	ColName   string
	Aggregate string
	AsName    string
}

// BinaryExpr is one conjunct of a WHERE clause: column op (value|column).
type BinaryExpr struct {
	LhsCol   TabCol
	Op       CompOp
	IsRhsVal bool
	RhsCol   TabCol
	RhsVal   types.Value
}

// SetClause is one assignment of an UPDATE statement; Op Add/Sub apply
// new = old +- literal.
type SetClause struct {
	ColName string
	Op      SetOp
	Val     types.Value
}

type OrderByItem struct {
	Col  TabCol
	Desc bool
}

type ColDef struct {
	Name string
	Type types.ColType
	Len  int32
}

type CreateTableStmt struct {
	TabName string
	ColDefs []ColDef
}

type DropTableStmt struct {
	TabName string
}

type CreateIndexStmt struct {
	TabName  string
	ColNames []string
}

type DropIndexStmt struct {
	TabName  string
	ColNames []string
}

type ShowIndexStmt struct {
	TabName string
}

type ShowTablesStmt struct{}

type DescTableStmt struct {
	TabName string
}

type HelpStmt struct{}

type TxnBeginStmt struct{}
type TxnCommitStmt struct{}
type TxnAbortStmt struct{}
type TxnRollbackStmt struct{}

type LoadStmt struct {
	FileName string
	TabName  string
}

type InsertStmt struct {
	TabName string
	Values  []types.Value
}

type DeleteStmt struct {
	TabName string
	Conds   []BinaryExpr
}

type UpdateStmt struct {
	TabName    string
	SetClauses []SetClause
	Conds      []BinaryExpr
}

type SelectStmt struct {
	Fields   []TabCol
	Star     bool
	Tabs     []string
	Conds    []BinaryExpr
	OrderBys []OrderByItem
	HasLimit bool
	// LIMIT start, len
	LimitStart int32
	LimitLen   int32
}
