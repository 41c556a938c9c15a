package optimizer

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/types"
)

type PlanTag int32

const (
	T_Invalid PlanTag = iota
	T_SeqScan
	T_IndexScan
	T_NestLoop
	T_Sort
	T_Projection
	T_Insert
	T_Delete
	T_Update
	T_Select
	T_CreateTable
	T_DropTable
	T_CreateIndex
	T_DropIndex
	T_ShowIndex
	T_ShowTable
	T_DescTable
	T_Help
	T_TxnBegin
	T_TxnCommit
	T_TxnAbort
	T_TxnRollback
	T_LoadRecord
)

type Plan interface {
	Tag() PlanTag
}

// ScanPlan reads one table, by full scan or through a matched index.
type ScanPlan struct {
	PlanTag       PlanTag
	TabName       string
	Conds         []Condition
	IndexColNames []string
}

func (p *ScanPlan) Tag() PlanTag { return p.PlanTag }

// JoinPlan is a nested loop join of two subtrees.
type JoinPlan struct {
	Left  Plan
	Right Plan
	Conds []Condition
}

func (p *JoinPlan) Tag() PlanTag { return T_NestLoop }

// SortPlan orders its child by the given columns.
type SortPlan struct {
	Child  Plan
	Cols   []parser.TabCol
	IsDesc []bool
}

func (p *SortPlan) Tag() PlanTag { return T_Sort }

// ProjectionPlan projects the selected columns and applies
// LIMIT start, len; len < 0 means no limit.
type ProjectionPlan struct {
	Child      Plan
	SelCols    []parser.TabCol
	LimitStart int32
	LimitLen   int32
}

func (p *ProjectionPlan) Tag() PlanTag { return T_Projection }

// DMLPlan drives insert/delete/update/select execution.
type DMLPlan struct {
	PlanTag    PlanTag
	Child      Plan
	TabName    string
	Values     []types.Value
	Conds      []Condition
	SetClauses []parser.SetClause
}

func (p *DMLPlan) Tag() PlanTag { return p.PlanTag }

// DDLPlan covers create/drop of tables and indexes.
type DDLPlan struct {
	PlanTag  PlanTag
	TabName  string
	ColNames []string
	ColDefs  []catalog.ColDef
}

func (p *DDLPlan) Tag() PlanTag { return p.PlanTag }

// OtherPlan covers utility statements and transaction control.
type OtherPlan struct {
	PlanTag PlanTag
	TabName string
}

func (p *OtherPlan) Tag() PlanTag { return p.PlanTag }

// LoadPlan bulk-loads a file into a table.
type LoadPlan struct {
	FileName string
	TabName  string
}

func (p *LoadPlan) Tag() PlanTag { return T_LoadRecord }
