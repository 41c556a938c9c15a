package optimizer

import (
	mapset "github.com/deckarep/golang-set/v2"
	stack "github.com/golang-collections/collections/stack"
	pair "github.com/notEpsilon/go-pair"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/errors"
	"github.com/Kyooooma/RMDB/parser"
)

// comparator classes for index matching
const (
	matchRange = 0 // > or >= (terminates the prefix)
	matchEq    = 1 // = (prefix continues)
	matchLess  = 2 // < or <= (terminates the prefix)
)

// Planner turns analyzed queries into physical plan trees: scan method
// choice, left-deep join ordering with predicate pushdown, sort
// insertion and projection/limit wrapping.
type Planner struct {
	sm *catalog.SmManager
}

func NewPlanner(sm *catalog.SmManager) *Planner {
	return &Planner{sm: sm}
}

// getIndexCols matches the table's indexes against the current
// conditions by leftmost prefix and picks the longest match. The
// conditions are reordered so the matched ones lead in index column
// order.
func (p *Planner) getIndexCols(tabName string, currConds *[]Condition) ([]string, bool) {
	conds := *currConds
	// per column: (comparator class, condition position)
	matches := make(map[string]pair.Pair[int, int])
	for i, cond := range conds {
		if cond.LhsCol.TabName != tabName || !cond.IsRhsVal || cond.RhsVal.Raw == nil {
			continue
		}
		class := -1
		switch cond.Op {
		case parser.OpEq:
			class = matchEq
		case parser.OpGt, parser.OpGe:
			class = matchRange
		case parser.OpLt, parser.OpLe:
			class = matchLess
		}
		if class == -1 {
			continue
		}
		if _, ok := matches[cond.LhsCol.ColName]; ok && class == matchLess {
			continue
		}
		matches[cond.LhsCol.ColName] = pair.Pair[int, int]{First: class, Second: i}
	}

	tab, err := p.sm.Db.GetTable(tabName)
	if err != nil {
		return nil, false
	}
	best := 0
	var bestIdxs []int
	var bestCols []catalog.ColMeta
	for i := range tab.Indexes {
		cnt := 0
		var idxs []int
		for _, col := range tab.Indexes[i].Cols {
			match, ok := matches[col.Name]
			if !ok {
				break
			}
			cnt++
			idxs = append(idxs, match.Second)
			if match.First != matchEq {
				break
			}
		}
		if cnt > best {
			best = cnt
			bestIdxs = idxs
			bestCols = tab.Indexes[i].Cols
		}
	}
	if best == 0 {
		return nil, false
	}

	// matched conditions first, in index column order
	used := make(map[int]bool)
	reordered := make([]Condition, 0, len(conds))
	for _, idx := range bestIdxs {
		reordered = append(reordered, conds[idx])
		used[idx] = true
	}
	for i := range conds {
		if !used[i] {
			reordered = append(reordered, conds[i])
		}
	}
	*currConds = reordered

	colNames := make([]string, 0, len(bestCols))
	for _, col := range bestCols {
		colNames = append(colNames, col.Name)
	}
	return colNames, true
}

// popConds extracts the conditions local to one table.
func popConds(conds *[]Condition, tabName string) []Condition {
	var solved, remaining []Condition
	for _, cond := range *conds {
		local := (cond.LhsCol.TabName == tabName && cond.IsRhsVal) ||
			(!cond.IsRhsVal && cond.LhsCol.TabName == tabName && cond.RhsCol.TabName == tabName)
		if local {
			solved = append(solved, cond)
		} else {
			remaining = append(remaining, cond)
		}
	}
	*conds = remaining
	return solved
}

// pushConds pushes a residual join condition down into the subtree that
// covers both of its tables. Returns 1/2 when only the left/right side
// is covered, 3 when the condition was placed.
func pushConds(cond *Condition, plan Plan) int {
	switch x := plan.(type) {
	case *ScanPlan:
		if x.TabName == cond.LhsCol.TabName {
			return 1
		}
		if x.TabName == cond.RhsCol.TabName {
			return 2
		}
		return 0
	case *JoinPlan:
		leftRes := pushConds(cond, x.Left)
		if leftRes == 3 {
			return 3
		}
		rightRes := pushConds(cond, x.Right)
		if rightRes == 3 {
			return 3
		}
		if leftRes == 0 || rightRes == 0 {
			return leftRes + rightRes
		}
		if leftRes == 2 {
			// canonicalize: the left column refers to the left subtree
			cond.LhsCol, cond.RhsCol = cond.RhsCol, cond.LhsCol
			cond.Op = parser.SwapOp(cond.Op)
		}
		x.Conds = append(x.Conds, *cond)
		return 3
	}
	return 0
}

// makeOneRel builds the left-deep join tree over the query's tables.
func (p *Planner) makeOneRel(query *Query) Plan {
	tables := query.Tables
	scanPlans := make([]Plan, len(tables))
	for i, tabName := range tables {
		currConds := popConds(&query.Conds, tabName)
		indexColNames, found := p.getIndexCols(tabName, &currConds)
		tag := T_SeqScan
		if found {
			tag = T_IndexScan
		} else {
			indexColNames = nil
		}
		scanPlans[i] = &ScanPlan{PlanTag: tag, TabName: tabName, Conds: currConds, IndexColNames: indexColNames}
	}
	if len(tables) == 1 {
		return scanPlans[0]
	}

	conds := query.Conds
	query.Conds = nil
	scanned := make([]bool, len(tables))
	joinedTables := mapset.NewSet[string]()
	popScan := func(tabName string) Plan {
		for i := range tables {
			if tables[i] == tabName && !scanned[i] {
				scanned[i] = true
				joinedTables.Add(tabName)
				return scanPlans[i]
			}
		}
		return nil
	}

	var root Plan
	if len(conds) >= 1 {
		first := conds[0]
		conds = conds[1:]
		left := popScan(first.LhsCol.TabName)
		right := popScan(first.RhsCol.TabName)
		root = &JoinPlan{Left: left, Right: right, Conds: []Condition{first}}

		for len(conds) > 0 {
			cond := conds[0]
			conds = conds[1:]
			var left, right Plan
			needReverse := false
			if !joinedTables.Contains(cond.LhsCol.TabName) {
				left = popScan(cond.LhsCol.TabName)
			}
			if !joinedTables.Contains(cond.RhsCol.TabName) {
				right = popScan(cond.RhsCol.TabName)
				needReverse = true
			}
			if left != nil && right != nil {
				inner := &JoinPlan{Left: left, Right: right, Conds: []Condition{cond}}
				root = &JoinPlan{Left: inner, Right: root, Conds: nil}
			} else if left != nil || right != nil {
				if needReverse {
					cond.LhsCol, cond.RhsCol = cond.RhsCol, cond.LhsCol
					cond.Op = parser.SwapOp(cond.Op)
					left = right
				}
				root = &JoinPlan{Left: left, Right: root, Conds: []Condition{cond}}
			} else {
				pushConds(&cond, root)
			}
		}
	} else {
		root = popScan(tables[0])
	}

	// cross-join whatever carried no join condition
	pending := stack.New()
	for i := range tables {
		if !scanned[i] {
			pending.Push(scanPlans[i])
		}
	}
	for pending.Len() > 0 {
		scan := pending.Pop().(Plan)
		root = &JoinPlan{Left: scan, Right: root, Conds: nil}
	}
	return root
}

// generateSortPlan wraps the plan with a Sort when ORDER BY is present.
func (p *Planner) generateSortPlan(query *Query, sel *parser.SelectStmt, plan Plan) (Plan, error) {
	if len(sel.OrderBys) == 0 {
		return plan, nil
	}
	var cols []parser.TabCol
	var isDesc []bool
	for _, item := range sel.OrderBys {
		col := item.Col
		if col.TabName == "" {
			found := false
			for _, tabName := range query.Tables {
				tab, _ := p.sm.Db.GetTable(tabName)
				if tab.IsCol(col.ColName) {
					col.TabName = tabName
					found = true
					break
				}
			}
			if !found {
				return nil, errors.NewColumnNotFound(col.ColName)
			}
		}
		cols = append(cols, col)
		isDesc = append(isDesc, item.Desc)
	}
	return &SortPlan{Child: plan, Cols: cols, IsDesc: isDesc}, nil
}

// generateSelectPlan plans the scan/join tree, the sort, and the
// projection with LIMIT.
func (p *Planner) generateSelectPlan(query *Query, sel *parser.SelectStmt) (Plan, error) {
	plan := p.makeOneRel(query)
	plan, err := p.generateSortPlan(query, sel, plan)
	if err != nil {
		return nil, err
	}
	limitStart, limitLen := int32(0), int32(-1)
	if sel.HasLimit {
		limitStart, limitLen = sel.LimitStart, sel.LimitLen
	}
	return &ProjectionPlan{
		Child:      plan,
		SelCols:    query.Cols,
		LimitStart: limitStart,
		LimitLen:   limitLen,
	}, nil
}

// DoPlanner produces the executable plan of one analyzed statement.
func (p *Planner) DoPlanner(query *Query) (Plan, error) {
	switch x := query.Stmt.(type) {
	case *parser.CreateTableStmt:
		colDefs := make([]catalog.ColDef, 0, len(x.ColDefs))
		for _, def := range x.ColDefs {
			colDefs = append(colDefs, catalog.ColDef{Name: def.Name, Type: def.Type, Len: def.Len})
		}
		return &DDLPlan{PlanTag: T_CreateTable, TabName: x.TabName, ColDefs: colDefs}, nil
	case *parser.DropTableStmt:
		return &DDLPlan{PlanTag: T_DropTable, TabName: x.TabName}, nil
	case *parser.CreateIndexStmt:
		return &DDLPlan{PlanTag: T_CreateIndex, TabName: x.TabName, ColNames: x.ColNames}, nil
	case *parser.DropIndexStmt:
		return &DDLPlan{PlanTag: T_DropIndex, TabName: x.TabName, ColNames: x.ColNames}, nil
	case *parser.ShowIndexStmt:
		return &DDLPlan{PlanTag: T_ShowIndex, TabName: x.TabName}, nil
	case *parser.ShowTablesStmt:
		return &OtherPlan{PlanTag: T_ShowTable}, nil
	case *parser.DescTableStmt:
		return &OtherPlan{PlanTag: T_DescTable, TabName: x.TabName}, nil
	case *parser.HelpStmt:
		return &OtherPlan{PlanTag: T_Help}, nil
	case *parser.TxnBeginStmt:
		return &OtherPlan{PlanTag: T_TxnBegin}, nil
	case *parser.TxnCommitStmt:
		return &OtherPlan{PlanTag: T_TxnCommit}, nil
	case *parser.TxnAbortStmt:
		return &OtherPlan{PlanTag: T_TxnAbort}, nil
	case *parser.TxnRollbackStmt:
		return &OtherPlan{PlanTag: T_TxnRollback}, nil
	case *parser.LoadStmt:
		return &LoadPlan{FileName: x.FileName, TabName: x.TabName}, nil
	case *parser.InsertStmt:
		return &DMLPlan{PlanTag: T_Insert, TabName: x.TabName, Values: query.Values}, nil
	case *parser.DeleteStmt:
		scan := p.buildSingleTableScan(x.TabName, query)
		return &DMLPlan{PlanTag: T_Delete, Child: scan, TabName: x.TabName, Conds: query.Conds}, nil
	case *parser.UpdateStmt:
		scan := p.buildSingleTableScan(x.TabName, query)
		return &DMLPlan{PlanTag: T_Update, Child: scan, TabName: x.TabName, Conds: query.Conds, SetClauses: query.SetClauses}, nil
	case *parser.SelectStmt:
		projection, err := p.generateSelectPlan(query, x)
		if err != nil {
			return nil, err
		}
		return &DMLPlan{PlanTag: T_Select, Child: projection}, nil
	}
	return nil, errors.NewInternal("unexpected statement in planner")
}

func (p *Planner) buildSingleTableScan(tabName string, query *Query) Plan {
	currConds := append([]Condition(nil), query.Conds...)
	indexColNames, found := p.getIndexCols(tabName, &currConds)
	tag := T_SeqScan
	if !found {
		indexColNames = nil
	} else {
		tag = T_IndexScan
	}
	return &ScanPlan{PlanTag: tag, TabName: tabName, Conds: currConds, IndexColNames: indexColNames}
}
