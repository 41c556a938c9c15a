package execution

import (
	"fmt"
	"strings"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/common"
	"github.com/Kyooooma/RMDB/concurrency"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/types"
)

const HelpInfo = `Supported SQL syntax:
  command ;
command:
  CREATE TABLE table_name (column_name type [, column_name type ...])
  DROP TABLE table_name
  CREATE INDEX table_name (column_name [, column_name ...])
  DROP INDEX table_name (column_name [, column_name ...])
  SHOW INDEX FROM table_name
  INSERT INTO table_name VALUES (value [, value ...])
  DELETE FROM table_name [WHERE where_clause]
  UPDATE table_name SET column_name = value [, column_name = value ...] [WHERE where_clause]
  SELECT selector FROM table_name [, table_name ...] [WHERE where_clause] [ORDER BY column [ASC|DESC]] [LIMIT start, count]
  LOAD file_name INTO table_name
  BEGIN | COMMIT | ABORT | ROLLBACK
type:
  {INT | FLOAT | CHAR(n) | BIGINT | DATETIME}
where_clause:
  condition [AND condition ...]
condition:
  column op {column | value}
op:
  {= | <> | < | > | <= | >=}
`

// QlManager executes plans: DDL against the system manager, utility
// and transaction-control statements, and DML through executor trees.
type QlManager struct {
	sm     *catalog.SmManager
	txnMgr *concurrency.TransactionManager
}

func NewQlManager(sm *catalog.SmManager, txnMgr *concurrency.TransactionManager) *QlManager {
	return &QlManager{sm: sm, txnMgr: txnMgr}
}

// BuildExecutorTree instantiates the executor for a read plan subtree.
func (ql *QlManager) BuildExecutorTree(plan optimizer.Plan, ctx *concurrency.Context) (AbstractExecutor, error) {
	switch x := plan.(type) {
	case *optimizer.ScanPlan:
		if x.PlanTag == optimizer.T_IndexScan {
			return NewIndexScanExecutor(ql.sm, x.TabName, x.Conds, x.IndexColNames, ctx)
		}
		return NewSeqScanExecutor(ql.sm, x.TabName, x.Conds, ctx)
	case *optimizer.JoinPlan:
		left, err := ql.BuildExecutorTree(x.Left, ctx)
		if err != nil {
			return nil, err
		}
		right, err := ql.BuildExecutorTree(x.Right, ctx)
		if err != nil {
			return nil, err
		}
		return NewNestedLoopJoinExecutor(left, right, x.Conds), nil
	case *optimizer.SortPlan:
		child, err := ql.BuildExecutorTree(x.Child, ctx)
		if err != nil {
			return nil, err
		}
		return NewSortExecutor(child, x.Cols, x.IsDesc)
	case *optimizer.ProjectionPlan:
		child, err := ql.BuildExecutorTree(x.Child, ctx)
		if err != nil {
			return nil, err
		}
		return NewProjectionExecutor(child, x.SelCols, x.LimitStart, x.LimitLen)
	}
	return nil, errors.NewInternal("unexpected plan node")
}

// RunMultiQuery executes DDL and LOAD plans.
func (ql *QlManager) RunMultiQuery(plan optimizer.Plan, ctx *concurrency.Context) error {
	switch x := plan.(type) {
	case *optimizer.DDLPlan:
		switch x.PlanTag {
		case optimizer.T_CreateTable:
			if err := ql.sm.CreateTable(x.TabName, x.ColDefs, ctx); err != nil {
				return err
			}
		case optimizer.T_DropTable:
			if err := ql.sm.DropTable(x.TabName, ctx); err != nil {
				return err
			}
		case optimizer.T_CreateIndex:
			if err := ql.sm.CreateIndex(x.TabName, x.ColNames, ctx); err != nil {
				return err
			}
		case optimizer.T_DropIndex:
			if err := ql.sm.DropIndex(x.TabName, x.ColNames, ctx); err != nil {
				return err
			}
		case optimizer.T_ShowIndex:
			return ql.sm.ShowIndex(x.TabName, ctx)
		default:
			return errors.NewInternal("unexpected DDL plan tag")
		}
		ctx.Output.WriteString("OK\n")
		return nil
	case *optimizer.LoadPlan:
		count, err := ql.sm.LoadRecord(x.FileName, x.TabName, ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(ctx.Output, "OK, %d record(s) loaded\n", count)
		return nil
	}
	return errors.NewInternal("unexpected plan for RunMultiQuery")
}

// RunCmdUtility executes utility and transaction-control plans.
func (ql *QlManager) RunCmdUtility(plan *optimizer.OtherPlan, ctx *concurrency.Context) error {
	switch plan.PlanTag {
	case optimizer.T_Help:
		ctx.Output.WriteString(HelpInfo)
	case optimizer.T_ShowTable:
		ql.sm.ShowTables(ctx)
	case optimizer.T_DescTable:
		return ql.sm.DescTable(plan.TabName, ctx)
	case optimizer.T_TxnBegin:
		ctx.Txn.SetTxnMode(true)
		ctx.Output.WriteString("OK\n")
	case optimizer.T_TxnCommit:
		if err := ql.txnMgr.Commit(ctx.Txn); err != nil {
			return err
		}
		ctx.Output.WriteString("OK\n")
	case optimizer.T_TxnAbort, optimizer.T_TxnRollback:
		if err := ql.txnMgr.Abort(ctx); err != nil {
			return err
		}
		ctx.Output.WriteString("OK\n")
	default:
		return errors.NewInternal("unexpected utility plan tag")
	}
	return nil
}

// RunDML executes insert/delete/update plans.
func (ql *QlManager) RunDML(plan *optimizer.DMLPlan, ctx *concurrency.Context) error {
	var count int
	switch plan.PlanTag {
	case optimizer.T_Insert:
		exec, err := NewInsertExecutor(ql.sm, plan.TabName, plan.Values, ctx)
		if err != nil {
			return err
		}
		count, err = exec.Exec()
		if err != nil {
			return err
		}
	case optimizer.T_Delete:
		rids, err := ql.collectRids(plan.Child, ctx)
		if err != nil {
			return err
		}
		exec, err := NewDeleteExecutor(ql.sm, plan.TabName, rids, ctx)
		if err != nil {
			return err
		}
		count, err = exec.Exec()
		if err != nil {
			return err
		}
	case optimizer.T_Update:
		rids, err := ql.collectRids(plan.Child, ctx)
		if err != nil {
			return err
		}
		exec, err := NewUpdateExecutor(ql.sm, plan.TabName, plan.SetClauses, rids, ctx)
		if err != nil {
			return err
		}
		count, err = exec.Exec()
		if err != nil {
			return err
		}
	default:
		return errors.NewInternal("unexpected DML plan tag")
	}
	fmt.Fprintf(ctx.Output, "OK, %d row(s) affected\n", count)
	return nil
}

func (ql *QlManager) collectRids(scanPlan optimizer.Plan, ctx *concurrency.Context) ([]types.Rid, error) {
	exec, err := ql.BuildExecutorTree(scanPlan, ctx)
	if err != nil {
		return nil, err
	}
	if err := exec.Begin(); err != nil {
		return nil, err
	}
	var rids []types.Rid
	for !exec.IsEnd() {
		rids = append(rids, exec.Rid())
		if err := exec.Advance(); err != nil {
			return nil, err
		}
	}
	return rids, nil
}

// SelectFrom drives the executor tree and renders the result set into
// the client buffer and, unless ellipsis mode is set, into output.txt.
// An aggregate tag on the first selected column switches to the
// aggregation fold.
func (ql *QlManager) SelectFrom(root AbstractExecutor, selCols []parser.TabCol, ctx *concurrency.Context) error {
	captions := make([]string, 0, len(selCols))
	for _, col := range selCols {
		switch {
		case col.AsName != "":
			captions = append(captions, col.AsName)
		case col.Aggregate != "":
			captions = append(captions, col.Aggregate+"("+col.ColName+")")
		default:
			captions = append(captions, col.ColName)
		}
	}

	printer := common.NewRecordPrinter(len(captions))
	printer.PrintSeparator(ctx.Output)
	printer.PrintRecord(captions, ctx.Output)
	printer.PrintSeparator(ctx.Output)

	var fileOut strings.Builder
	fileOut.WriteString("|")
	for _, caption := range captions {
		fileOut.WriteString(" " + caption + " |")
	}
	fileOut.WriteString("\n")

	numRec := 0
	if len(selCols) > 0 && selCols[0].Aggregate != "" {
		row, err := ql.aggregate(root, selCols)
		if err != nil {
			return err
		}
		printer.PrintRecord(row, ctx.Output)
		fileOut.WriteString("|")
		for _, cell := range row {
			fileOut.WriteString(" " + cell + " |")
		}
		fileOut.WriteString("\n")
		numRec = 1
	} else {
		if err := root.Begin(); err != nil {
			return err
		}
		for !root.IsEnd() {
			rec, err := root.Next()
			if err != nil {
				return err
			}
			row := make([]string, 0, len(root.Cols()))
			for i := range root.Cols() {
				col := &root.Cols()[i]
				row = append(row, colValue(col, rec).String())
			}
			printer.PrintRecord(row, ctx.Output)
			fileOut.WriteString("|")
			for _, cell := range row {
				fileOut.WriteString(" " + cell + " |")
			}
			fileOut.WriteString("\n")
			numRec++
			if err := root.Advance(); err != nil {
				return err
			}
		}
	}

	printer.PrintSeparator(ctx.Output)
	common.PrintRecordCount(numRec, ctx.Output)
	if !ctx.OutputEllipsis {
		common.AppendOutputFile(fileOut.String())
	}
	return nil
}

// aggregate folds the child stream into one row of accumulator
// results. Over an empty input count is 0, sums stay zeroed and
// min/max yield the type-neutral empty cell.
func (ql *QlManager) aggregate(root AbstractExecutor, selCols []parser.TabCol) ([]string, error) {
	cols := root.Cols()
	counts := make([]int64, len(cols))
	sums := make([]types.Value, len(cols))
	extremes := make([]*types.Value, len(cols))
	rows := 0

	if err := root.Begin(); err != nil {
		return nil, err
	}
	for !root.IsEnd() {
		rec, err := root.Next()
		if err != nil {
			return nil, err
		}
		rows++
		for i := range cols {
			if i >= len(selCols) {
				break
			}
			value := colValue(&cols[i], rec)
			switch selCols[i].Aggregate {
			case "count":
				counts[i]++
			case "sum":
				sum, err := addValues(sums[i], value)
				if err != nil {
					return nil, err
				}
				sums[i] = sum
			case "max":
				if extremes[i] == nil {
					v := value
					extremes[i] = &v
				} else if cmp, err := types.Compare(value, *extremes[i]); err == nil && cmp > 0 {
					v := value
					extremes[i] = &v
				}
			case "min":
				if extremes[i] == nil {
					v := value
					extremes[i] = &v
				} else if cmp, err := types.Compare(value, *extremes[i]); err == nil && cmp < 0 {
					v := value
					extremes[i] = &v
				}
			}
		}
		if err := root.Advance(); err != nil {
			return nil, err
		}
	}

	row := make([]string, 0, len(selCols))
	for i := range selCols {
		switch selCols[i].Aggregate {
		case "count":
			row = append(row, fmt.Sprintf("%d", counts[i]))
		case "sum":
			if rows == 0 {
				row = append(row, zeroCell(cols[i].Type))
			} else {
				row = append(row, sums[i].String())
			}
		case "min", "max":
			if extremes[i] == nil {
				row = append(row, "")
			} else {
				row = append(row, extremes[i].String())
			}
		default:
			row = append(row, "")
		}
	}
	return row, nil
}

func zeroCell(colType types.ColType) string {
	switch colType {
	case types.TypeFloat:
		return types.NewFloatValue(0).String()
	case types.TypeBigint:
		return "0"
	default:
		return "0"
	}
}

// addValues accumulates with numeric promotion; the zero Value (an int
// zero) starts the fold and promotes to the input type on first use.
func addValues(acc types.Value, value types.Value) (types.Value, error) {
	if err := types.Convert(&acc, &value); err != nil {
		return acc, err
	}
	switch acc.Type {
	case types.TypeInt:
		return types.NewIntValue(acc.IntVal + value.IntVal), nil
	case types.TypeBigint:
		return types.NewBigintValue(acc.BigintVal + value.BigintVal), nil
	case types.TypeFloat:
		return types.NewFloatValue(acc.FloatVal + value.FloatVal), nil
	}
	return acc, errors.NewIncompatibleType("numeric", acc.Type.String())
}
