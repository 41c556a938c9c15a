package execution

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/optimizer"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/storage/record"
	"github.com/Kyooooma/RMDB/types"
)

/**
 * AbstractExecutor is the pull iterator every operator implements:
 * position with Begin, read the current tuple with Next, step with
 * Advance until IsEnd. Iterators are single threaded; Begin restarts
 * the ones used as join inners.
 */
type AbstractExecutor interface {
	Begin() error
	Advance() error
	IsEnd() bool
	Next() (*record.RmRecord, error)
	Cols() []catalog.ColMeta
	TupleLen() int32
	Rid() types.Rid
}

// getCol locates target inside a record layout; an empty table name
// matches by column name alone.
func getCol(recCols []catalog.ColMeta, target parser.TabCol) (*catalog.ColMeta, error) {
	for i := range recCols {
		if recCols[i].Name != target.ColName {
			continue
		}
		if target.TabName == "" || recCols[i].TabName == target.TabName {
			return &recCols[i], nil
		}
	}
	return nil, errors.NewColumnNotFound(target.TabName + "." + target.ColName)
}

// colValue reads the typed value of one column out of a record image.
func colValue(col *catalog.ColMeta, rec *record.RmRecord) types.Value {
	return types.ValueFromBytes(col.Type, rec.Data[col.Offset:col.Offset+col.Len])
}

// evalCond evaluates one conjunct against a record, applying implicit
// cross-type promotion.
func evalCond(recCols []catalog.ColMeta, cond optimizer.Condition, rec *record.RmRecord) (bool, error) {
	lhsCol, err := getCol(recCols, cond.LhsCol)
	if err != nil {
		return false, err
	}
	lhs := colValue(lhsCol, rec)

	var rhs types.Value
	if cond.IsRhsVal {
		rhs = cond.RhsVal
	} else {
		rhsCol, err := getCol(recCols, cond.RhsCol)
		if err != nil {
			return false, err
		}
		rhs = colValue(rhsCol, rec)
	}

	cmp, err := types.Compare(lhs, rhs)
	if err != nil {
		return false, err
	}
	switch cond.Op {
	case parser.OpEq:
		return cmp == 0, nil
	case parser.OpNe:
		return cmp != 0, nil
	case parser.OpLt:
		return cmp < 0, nil
	case parser.OpGt:
		return cmp > 0, nil
	case parser.OpLe:
		return cmp <= 0, nil
	case parser.OpGe:
		return cmp >= 0, nil
	}
	return false, errors.NewInternal("unexpected comparison operator %d", cond.Op)
}

// evalConds is the conjunction over every condition.
func evalConds(recCols []catalog.ColMeta, conds []optimizer.Condition, rec *record.RmRecord) (bool, error) {
	for _, cond := range conds {
		ok, err := evalCond(recCols, cond, rec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// coerceValueTo converts a statement literal to the column's type,
// surfacing IncompatibleType when the promotion rules do not allow it.
func coerceValueTo(value types.Value, col *catalog.ColMeta) (types.Value, error) {
	if err := value.CoerceTo(col.Type); err != nil {
		return value, err
	}
	if err := value.InitRaw(col.Len); err != nil {
		return value, err
	}
	return value, nil
}
