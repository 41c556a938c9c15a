package optimizer

import (
	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/types"
)

// Condition is one analyzed conjunct of a WHERE clause.
type Condition = parser.BinaryExpr

// Query is the analyzed form of a statement: names resolved, stars
// expanded, literals typed.
type Query struct {
	Stmt       parser.Stmt
	Cols       []parser.TabCol
	Tables     []string
	Conds      []Condition
	Values     []types.Value
	SetClauses []parser.SetClause
}

// Analyzer resolves statement names against the catalog.
type Analyzer struct {
	sm *catalog.SmManager
}

func NewAnalyzer(sm *catalog.SmManager) *Analyzer {
	return &Analyzer{sm: sm}
}

// Analyze builds the Query for one parsed statement.
func (a *Analyzer) Analyze(stmt parser.Stmt) (*Query, error) {
	query := &Query{Stmt: stmt}
	switch x := stmt.(type) {
	case *parser.SelectStmt:
		return a.analyzeSelect(x, query)
	case *parser.DeleteStmt:
		if !a.sm.Db.IsTable(x.TabName) {
			return nil, errors.NewTableNotFound(x.TabName)
		}
		query.Tables = []string{x.TabName}
		conds, err := a.analyzeConds(x.Conds, query.Tables)
		if err != nil {
			return nil, err
		}
		query.Conds = conds
	case *parser.UpdateStmt:
		if !a.sm.Db.IsTable(x.TabName) {
			return nil, errors.NewTableNotFound(x.TabName)
		}
		query.Tables = []string{x.TabName}
		tab, _ := a.sm.Db.GetTable(x.TabName)
		for _, clause := range x.SetClauses {
			if !tab.IsCol(clause.ColName) {
				return nil, errors.NewColumnNotFound(x.TabName + "." + clause.ColName)
			}
		}
		query.SetClauses = x.SetClauses
		conds, err := a.analyzeConds(x.Conds, query.Tables)
		if err != nil {
			return nil, err
		}
		query.Conds = conds
	case *parser.InsertStmt:
		if !a.sm.Db.IsTable(x.TabName) {
			return nil, errors.NewTableNotFound(x.TabName)
		}
		query.Tables = []string{x.TabName}
		query.Values = x.Values
	}
	return query, nil
}

func (a *Analyzer) analyzeSelect(x *parser.SelectStmt, query *Query) (*Query, error) {
	for _, tabName := range x.Tabs {
		if !a.sm.Db.IsTable(tabName) {
			return nil, errors.NewTableNotFound(tabName)
		}
	}
	query.Tables = x.Tabs

	if x.Star {
		for _, tabName := range x.Tabs {
			tab, _ := a.sm.Db.GetTable(tabName)
			for _, col := range tab.Cols {
				query.Cols = append(query.Cols, parser.TabCol{TabName: tabName, ColName: col.Name})
			}
		}
	}
	for _, field := range x.Fields {
		col, err := a.resolveCol(field, x.Tabs)
		if err != nil {
			return nil, err
		}
		if col.ColName == "" && col.Aggregate != "" {
			// count(*): count over the first column of the first table
			tab, _ := a.sm.Db.GetTable(x.Tabs[0])
			col.TabName = x.Tabs[0]
			col.ColName = tab.Cols[0].Name
		}
		query.Cols = append(query.Cols, col)
	}

	conds, err := a.analyzeConds(x.Conds, x.Tabs)
	if err != nil {
		return nil, err
	}
	query.Conds = conds
	return query, nil
}

// resolveCol fills in the owning table of an unqualified column.
func (a *Analyzer) resolveCol(col parser.TabCol, tables []string) (parser.TabCol, error) {
	if col.ColName == "" {
		return col, nil
	}
	if col.TabName != "" {
		tab, err := a.sm.Db.GetTable(col.TabName)
		if err != nil {
			return col, err
		}
		if !tab.IsCol(col.ColName) {
			return col, errors.NewColumnNotFound(col.TabName + "." + col.ColName)
		}
		return col, nil
	}
	for _, tabName := range tables {
		tab, _ := a.sm.Db.GetTable(tabName)
		if tab.IsCol(col.ColName) {
			col.TabName = tabName
			return col, nil
		}
	}
	return col, errors.NewColumnNotFound(col.ColName)
}

// analyzeConds resolves both sides of every conjunct and types the
// literal against the column, keeping legal cross-type pairs for the
// runtime comparator.
func (a *Analyzer) analyzeConds(conds []parser.BinaryExpr, tables []string) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for _, cond := range conds {
		lhs, err := a.resolveCol(cond.LhsCol, tables)
		if err != nil {
			return nil, err
		}
		cond.LhsCol = lhs
		if cond.IsRhsVal {
			tab, _ := a.sm.Db.GetTable(lhs.TabName)
			col, err := tab.GetCol(lhs.ColName)
			if err != nil {
				return nil, err
			}
			if err := checkComparable(col.Type, cond.RhsVal.Type); err != nil {
				return nil, err
			}
			// a literal promoted to the column type can drive an index
			value := cond.RhsVal
			if value.CoerceTo(col.Type) == nil {
				if err := value.InitRaw(col.Len); err != nil {
					return nil, err
				}
				cond.RhsVal = value
			}
		} else {
			rhs, err := a.resolveCol(cond.RhsCol, tables)
			if err != nil {
				return nil, err
			}
			cond.RhsCol = rhs
		}
		out = append(out, cond)
	}
	return out, nil
}

// checkComparable rejects pairs outside the promotion rules.
func checkComparable(lhs types.ColType, rhs types.ColType) error {
	if lhs == rhs {
		return nil
	}
	numeric := func(t types.ColType) bool {
		return t == types.TypeInt || t == types.TypeFloat || t == types.TypeBigint
	}
	if numeric(lhs) && numeric(rhs) {
		return nil
	}
	if (lhs == types.TypeDatetime && rhs == types.TypeString) ||
		(lhs == types.TypeString && rhs == types.TypeDatetime) {
		return nil
	}
	return errors.NewIncompatibleType(lhs.String(), rhs.String())
}
