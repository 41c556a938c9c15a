package optimizer

import (
	"path/filepath"
	"testing"

	"github.com/Kyooooma/RMDB/catalog"
	"github.com/Kyooooma/RMDB/parser"
	"github.com/Kyooooma/RMDB/storage/buffer"
	"github.com/Kyooooma/RMDB/storage/disk"
	"github.com/Kyooooma/RMDB/storage/index"
	"github.com/Kyooooma/RMDB/storage/record"
	testingpkg "github.com/Kyooooma/RMDB/testing/testing_assert"
	"github.com/Kyooooma/RMDB/types"
)

func setupPlannerTest(t *testing.T) (*Analyzer, *Planner) {
	dm := disk.NewDiskManagerImpl()
	bpm := buffer.NewBufferPoolManager(32, dm)
	rm := record.NewRmManager(dm, bpm)
	im := index.NewIxManager(dm, bpm)
	sm := catalog.NewSmManager(dm, bpm, rm, im)

	dir := filepath.Join(t.TempDir(), "plannerdb")
	testingpkg.Ok(t, sm.CreateDb(dir))
	testingpkg.Ok(t, sm.OpenDb(dir))

	intCol := func(name string) catalog.ColDef {
		return catalog.ColDef{Name: name, Type: types.TypeInt, Len: 4}
	}
	testingpkg.Ok(t, sm.CreateTable("t", []catalog.ColDef{intCol("a"), intCol("b"), intCol("c")}, nil))
	testingpkg.Ok(t, sm.CreateIndex("t", []string{"a", "b"}, nil))
	testingpkg.Ok(t, sm.CreateTable("s", []catalog.ColDef{intCol("x"), intCol("y")}, nil))

	return NewAnalyzer(sm), NewPlanner(sm)
}

func planOf(t *testing.T, analyzer *Analyzer, planner *Planner, sql string) Plan {
	stmt, err := parser.Parse(sql)
	testingpkg.Ok(t, err)
	query, err := analyzer.Analyze(stmt)
	testingpkg.Ok(t, err)
	plan, err := planner.DoPlanner(query)
	testingpkg.Ok(t, err)
	return plan
}

func scanOfSelect(t *testing.T, plan Plan) *ScanPlan {
	dml, ok := plan.(*DMLPlan)
	testingpkg.Assert(t, ok, "expected a select DML plan")
	projection, ok := dml.Child.(*ProjectionPlan)
	testingpkg.Assert(t, ok, "expected a projection root")
	scan, ok := projection.Child.(*ScanPlan)
	testingpkg.Assert(t, ok, "expected a scan below the projection")
	return scan
}

func TestLeftmostPrefixIndexMatch(t *testing.T) {
	analyzer, planner := setupPlannerTest(t)

	plan := planOf(t, analyzer, planner, "select * from t where b > 2 and a = 1 and c = 5;")
	scan := scanOfSelect(t, plan)
	testingpkg.Equals(t, T_IndexScan, scan.PlanTag)
	testingpkg.Equals(t, []string{"a", "b"}, scan.IndexColNames)
	// matched conditions lead, in index column order
	testingpkg.Equals(t, "a", scan.Conds[0].LhsCol.ColName)
	testingpkg.Equals(t, parser.OpEq, scan.Conds[0].Op)
	testingpkg.Equals(t, "b", scan.Conds[1].LhsCol.ColName)
	testingpkg.Equals(t, parser.OpGt, scan.Conds[1].Op)
	// the unmatched condition stays as a residual filter
	testingpkg.Equals(t, "c", scan.Conds[2].LhsCol.ColName)
}

func TestNoPrefixMatchFallsBackToSeqScan(t *testing.T) {
	analyzer, planner := setupPlannerTest(t)

	// b alone is not a leftmost prefix of (a, b)
	plan := planOf(t, analyzer, planner, "select * from t where b = 1;")
	scan := scanOfSelect(t, plan)
	testingpkg.Equals(t, T_SeqScan, scan.PlanTag)
	testingpkg.Assert(t, len(scan.IndexColNames) == 0, "no index columns expected")
}

func TestRangeTerminatesPrefix(t *testing.T) {
	analyzer, planner := setupPlannerTest(t)

	// a range on the first column still matches the index but cannot
	// extend the prefix into b
	plan := planOf(t, analyzer, planner, "select * from t where a > 1 and b = 2;")
	scan := scanOfSelect(t, plan)
	testingpkg.Equals(t, T_IndexScan, scan.PlanTag)
	testingpkg.Equals(t, "a", scan.Conds[0].LhsCol.ColName)
}

func TestJoinPlanShape(t *testing.T) {
	analyzer, planner := setupPlannerTest(t)

	plan := planOf(t, analyzer, planner, "select * from t, s where t.a = s.x;")
	dml := plan.(*DMLPlan)
	projection := dml.Child.(*ProjectionPlan)
	join, ok := projection.Child.(*JoinPlan)
	testingpkg.Assert(t, ok, "expected a join root")
	testingpkg.Equals(t, 1, len(join.Conds))
	_, leftIsScan := join.Left.(*ScanPlan)
	_, rightIsScan := join.Right.(*ScanPlan)
	testingpkg.Assert(t, leftIsScan && rightIsScan, "both join inputs must be scans")
}

func TestSortPlanInsertion(t *testing.T) {
	analyzer, planner := setupPlannerTest(t)

	plan := planOf(t, analyzer, planner, "select * from t order by c desc;")
	dml := plan.(*DMLPlan)
	projection := dml.Child.(*ProjectionPlan)
	sortPlan, ok := projection.Child.(*SortPlan)
	testingpkg.Assert(t, ok, "expected a sort below the projection")
	testingpkg.Equals(t, []bool{true}, sortPlan.IsDesc)
	testingpkg.Equals(t, "c", sortPlan.Cols[0].ColName)
}
