package parser

import (
	"regexp"
	"strings"

	"github.com/pingcap/parser"
	"github.com/pingcap/parser/ast"
	"github.com/pingcap/parser/mysql"
	"github.com/pingcap/parser/opcode"
	tidbtypes "github.com/pingcap/tidb/types"
	driver "github.com/pingcap/tidb/types/parser_driver"

	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/types"
)

// Statements whose syntax the MySQL grammar does not cover are
// recognized up front; everything else goes through pingcap's parser.
var (
	reCreateIndex = regexp.MustCompile(`(?i)^create\s+index\s+(\w+)\s*\(([^)]*)\)$`)
	reDropIndex   = regexp.MustCompile(`(?i)^drop\s+index\s+(\w+)\s*\(([^)]*)\)$`)
	reShowIndex   = regexp.MustCompile(`(?i)^show\s+index\s+from\s+(\w+)$`)
	reDescTable   = regexp.MustCompile(`(?i)^desc\s+(\w+)$`)
	reLoad        = regexp.MustCompile(`(?i)^load\s+(\S+)\s+into\s+(\w+)$`)
)

// Parse turns one SQL text into a statement.
func Parse(sql string) (Stmt, error) {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	trimmed = strings.TrimSpace(trimmed)

	switch strings.ToLower(trimmed) {
	case "begin", "start transaction":
		return &TxnBeginStmt{}, nil
	case "commit":
		return &TxnCommitStmt{}, nil
	case "abort":
		return &TxnAbortStmt{}, nil
	case "rollback":
		return &TxnRollbackStmt{}, nil
	case "help":
		return &HelpStmt{}, nil
	case "show tables":
		return &ShowTablesStmt{}, nil
	}
	if m := reCreateIndex.FindStringSubmatch(trimmed); m != nil {
		return &CreateIndexStmt{TabName: m[1], ColNames: splitColList(m[2])}, nil
	}
	if m := reDropIndex.FindStringSubmatch(trimmed); m != nil {
		return &DropIndexStmt{TabName: m[1], ColNames: splitColList(m[2])}, nil
	}
	if m := reShowIndex.FindStringSubmatch(trimmed); m != nil {
		return &ShowIndexStmt{TabName: m[1]}, nil
	}
	if m := reDescTable.FindStringSubmatch(trimmed); m != nil {
		return &DescTableStmt{TabName: m[1]}, nil
	}
	if m := reLoad.FindStringSubmatch(trimmed); m != nil {
		return &LoadStmt{FileName: m[1], TabName: m[2]}, nil
	}

	p := parser.New()
	stmtNodes, _, err := p.Parse(trimmed, "", "")
	if err != nil {
		return nil, errors.Errorf("parse error: %v", err)
	}
	if len(stmtNodes) == 0 {
		return nil, errors.Errorf("empty statement")
	}
	return lowerStmt(stmtNodes[0])
}

func splitColList(s string) []string {
	parts := strings.Split(s, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		name := strings.TrimSpace(part)
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

func lowerStmt(node ast.StmtNode) (Stmt, error) {
	switch x := node.(type) {
	case *ast.CreateTableStmt:
		return lowerCreateTable(x)
	case *ast.DropTableStmt:
		if len(x.Tables) != 1 {
			return nil, errors.Errorf("DROP TABLE expects one table")
		}
		return &DropTableStmt{TabName: x.Tables[0].Name.L}, nil
	case *ast.InsertStmt:
		return lowerInsert(x)
	case *ast.DeleteStmt:
		return lowerDelete(x)
	case *ast.UpdateStmt:
		return lowerUpdate(x)
	case *ast.SelectStmt:
		return lowerSelect(x)
	}
	return nil, errors.Errorf("unsupported statement")
}

func lowerCreateTable(x *ast.CreateTableStmt) (Stmt, error) {
	ret := &CreateTableStmt{TabName: x.Table.Name.L}
	for _, col := range x.Cols {
		def := ColDef{Name: col.Name.Name.L}
		switch col.Tp.Tp {
		case mysql.TypeLong, mysql.TypeShort, mysql.TypeTiny, mysql.TypeInt24:
			def.Type = types.TypeInt
			def.Len = 4
		case mysql.TypeLonglong:
			def.Type = types.TypeBigint
			def.Len = 8
		case mysql.TypeFloat, mysql.TypeDouble, mysql.TypeNewDecimal:
			def.Type = types.TypeFloat
			def.Len = 8
		case mysql.TypeDatetime, mysql.TypeTimestamp:
			def.Type = types.TypeDatetime
			def.Len = 8
		case mysql.TypeString, mysql.TypeVarchar, mysql.TypeVarString:
			def.Type = types.TypeString
			def.Len = int32(col.Tp.Flen)
			if def.Len <= 0 {
				def.Len = 1
			}
		default:
			return nil, errors.Errorf("unsupported column type of %s", def.Name)
		}
		ret.ColDefs = append(ret.ColDefs, def)
	}
	return ret, nil
}

func lowerInsert(x *ast.InsertStmt) (Stmt, error) {
	tabName, err := singleTableName(x.Table.TableRefs)
	if err != nil {
		return nil, err
	}
	if len(x.Lists) != 1 {
		return nil, errors.Errorf("INSERT expects one VALUES row")
	}
	ret := &InsertStmt{TabName: tabName}
	for _, expr := range x.Lists[0] {
		value, err := exprToValue(expr)
		if err != nil {
			return nil, err
		}
		ret.Values = append(ret.Values, value)
	}
	return ret, nil
}

func lowerDelete(x *ast.DeleteStmt) (Stmt, error) {
	tabName, err := singleTableName(x.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	conds, err := lowerWhere(x.Where)
	if err != nil {
		return nil, err
	}
	return &DeleteStmt{TabName: tabName, Conds: conds}, nil
}

func lowerUpdate(x *ast.UpdateStmt) (Stmt, error) {
	tabName, err := singleTableName(x.TableRefs.TableRefs)
	if err != nil {
		return nil, err
	}
	ret := &UpdateStmt{TabName: tabName}
	for _, assign := range x.List {
		clause := SetClause{ColName: assign.Column.Name.L}
		switch expr := assign.Expr.(type) {
		case *ast.BinaryOperationExpr:
			// SET c = c + v / c = c - v
			lhsCol, ok := expr.L.(*ast.ColumnNameExpr)
			if !ok || lhsCol.Name.Name.L != clause.ColName {
				return nil, errors.Errorf("unsupported SET expression of %s", clause.ColName)
			}
			value, err := exprToValue(expr.R)
			if err != nil {
				return nil, err
			}
			switch expr.Op {
			case opcode.Plus:
				clause.Op = OpAdd
			case opcode.Minus:
				clause.Op = OpSub
			default:
				return nil, errors.Errorf("unsupported SET operator of %s", clause.ColName)
			}
			clause.Val = value
		default:
			value, err := exprToValue(assign.Expr)
			if err != nil {
				return nil, err
			}
			clause.Op = OpSet
			clause.Val = value
		}
		ret.SetClauses = append(ret.SetClauses, clause)
	}
	conds, err := lowerWhere(x.Where)
	if err != nil {
		return nil, err
	}
	ret.Conds = conds
	return ret, nil
}

func lowerSelect(x *ast.SelectStmt) (Stmt, error) {
	ret := &SelectStmt{}
	if x.From == nil {
		return nil, errors.Errorf("SELECT without FROM is not supported")
	}
	tabs, err := tableNames(x.From.TableRefs)
	if err != nil {
		return nil, err
	}
	ret.Tabs = tabs

	for _, field := range x.Fields.Fields {
		if field.WildCard != nil {
			ret.Star = true
			continue
		}
		switch expr := field.Expr.(type) {
		case *ast.ColumnNameExpr:
			ret.Fields = append(ret.Fields, TabCol{
				TabName: expr.Name.Table.L,
				ColName: expr.Name.Name.L,
				AsName:  field.AsName.L,
			})
		case *ast.AggregateFuncExpr:
			col := TabCol{Aggregate: strings.ToLower(expr.F), AsName: field.AsName.L}
			if len(expr.Args) == 1 {
				if colExpr, ok := expr.Args[0].(*ast.ColumnNameExpr); ok {
					col.TabName = colExpr.Name.Table.L
					col.ColName = colExpr.Name.Name.L
				}
			}
			ret.Fields = append(ret.Fields, col)
		default:
			return nil, errors.Errorf("unsupported select field")
		}
	}

	conds, err := lowerWhere(x.Where)
	if err != nil {
		return nil, err
	}
	ret.Conds = conds

	if x.OrderBy != nil {
		for _, item := range x.OrderBy.Items {
			colExpr, ok := item.Expr.(*ast.ColumnNameExpr)
			if !ok {
				return nil, errors.Errorf("unsupported ORDER BY expression")
			}
			ret.OrderBys = append(ret.OrderBys, OrderByItem{
				Col:  TabCol{TabName: colExpr.Name.Table.L, ColName: colExpr.Name.Name.L},
				Desc: item.Desc,
			})
		}
	}

	if x.Limit != nil {
		ret.HasLimit = true
		if x.Limit.Offset != nil {
			value, err := exprToValue(x.Limit.Offset)
			if err != nil {
				return nil, err
			}
			ret.LimitStart = valueToInt32(value)
		}
		if x.Limit.Count != nil {
			value, err := exprToValue(x.Limit.Count)
			if err != nil {
				return nil, err
			}
			ret.LimitLen = valueToInt32(value)
		}
	}
	return ret, nil
}

func valueToInt32(v types.Value) int32 {
	switch v.Type {
	case types.TypeInt:
		return v.IntVal
	case types.TypeBigint:
		return int32(v.BigintVal)
	}
	return 0
}

// lowerWhere decomposes an ANDed condition tree into conjuncts.
func lowerWhere(where ast.ExprNode) ([]BinaryExpr, error) {
	if where == nil {
		return nil, nil
	}
	binOp, ok := where.(*ast.BinaryOperationExpr)
	if !ok {
		return nil, errors.Errorf("unsupported WHERE expression")
	}
	if binOp.Op == opcode.LogicAnd {
		left, err := lowerWhere(binOp.L)
		if err != nil {
			return nil, err
		}
		right, err := lowerWhere(binOp.R)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	}

	op, err := lowerCompOp(binOp.Op)
	if err != nil {
		return nil, err
	}
	cond := BinaryExpr{Op: op}

	lhsCol, ok := binOp.L.(*ast.ColumnNameExpr)
	if !ok {
		return nil, errors.Errorf("WHERE condition must start with a column")
	}
	cond.LhsCol = TabCol{TabName: lhsCol.Name.Table.L, ColName: lhsCol.Name.Name.L}

	if rhsCol, ok := binOp.R.(*ast.ColumnNameExpr); ok {
		cond.IsRhsVal = false
		cond.RhsCol = TabCol{TabName: rhsCol.Name.Table.L, ColName: rhsCol.Name.Name.L}
	} else {
		value, err := exprToValue(binOp.R)
		if err != nil {
			return nil, err
		}
		cond.IsRhsVal = true
		cond.RhsVal = value
	}
	return []BinaryExpr{cond}, nil
}

func lowerCompOp(op opcode.Op) (CompOp, error) {
	switch op {
	case opcode.EQ:
		return OpEq, nil
	case opcode.NE:
		return OpNe, nil
	case opcode.LT:
		return OpLt, nil
	case opcode.GT:
		return OpGt, nil
	case opcode.LE:
		return OpLe, nil
	case opcode.GE:
		return OpGe, nil
	}
	return OpEq, errors.Errorf("unsupported comparison operator")
}

// exprToValue evaluates a literal expression into a typed Value.
func exprToValue(expr ast.ExprNode) (types.Value, error) {
	switch x := expr.(type) {
	case *driver.ValueExpr:
		return datumToValue(&x.Datum)
	case *ast.UnaryOperationExpr:
		inner, err := exprToValue(x.V)
		if err != nil {
			return types.Value{}, err
		}
		if x.Op == opcode.Minus {
			switch inner.Type {
			case types.TypeInt:
				inner.SetInt(-inner.IntVal)
			case types.TypeBigint:
				inner.SetBigint(-inner.BigintVal)
			case types.TypeFloat:
				inner.SetFloat(-inner.FloatVal)
			}
		}
		return inner, nil
	}
	return types.Value{}, errors.Errorf("literal value expected")
}

func datumToValue(d *tidbtypes.Datum) (types.Value, error) {
	switch d.Kind() {
	case tidbtypes.KindInt64:
		n := d.GetInt64()
		if n >= -(1<<31) && n < (1<<31) {
			return types.NewIntValue(int32(n)), nil
		}
		return types.NewBigintValue(n), nil
	case tidbtypes.KindUint64:
		n := int64(d.GetUint64())
		if n >= 0 && n < (1<<31) {
			return types.NewIntValue(int32(n)), nil
		}
		return types.NewBigintValue(n), nil
	case tidbtypes.KindFloat32:
		return types.NewFloatValue(float64(d.GetFloat32())), nil
	case tidbtypes.KindFloat64:
		return types.NewFloatValue(d.GetFloat64()), nil
	case tidbtypes.KindString, tidbtypes.KindBytes:
		return types.NewStringValue(d.GetString()), nil
	case tidbtypes.KindMysqlDecimal:
		f, err := d.GetMysqlDecimal().ToFloat64()
		if err != nil {
			return types.Value{}, errors.Errorf("bad decimal literal")
		}
		return types.NewFloatValue(f), nil
	}
	return types.Value{}, errors.Errorf("unsupported literal kind %d", d.Kind())
}

// tableNames flattens the FROM clause join tree left to right.
func tableNames(node ast.ResultSetNode) ([]string, error) {
	switch x := node.(type) {
	case *ast.Join:
		left, err := tableNames(x.Left)
		if err != nil {
			return nil, err
		}
		if x.Right == nil {
			return left, nil
		}
		right, err := tableNames(x.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case *ast.TableSource:
		return tableNames(x.Source)
	case *ast.TableName:
		return []string{x.Name.L}, nil
	}
	return nil, errors.Errorf("unsupported FROM clause")
}

func singleTableName(refs *ast.Join) (string, error) {
	tabs, err := tableNames(refs)
	if err != nil {
		return "", err
	}
	if len(tabs) != 1 {
		return "", errors.Errorf("exactly one table expected")
	}
	return tabs[0], nil
}
