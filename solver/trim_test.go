package solver

import (
	"fmt"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sortedCore normalizes a core for comparison: literals sorted inside each
// clause, clauses sorted among themselves.
func sortedCore(clauses [][]int) [][]int {
	out := make([][]int, len(clauses))
	for i, cl := range clauses {
		cp := append([]int{}, cl...)
		sort.Ints(cp)
		out[i] = cp
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		for k := 0; k < len(a) && k < len(b); k++ {
			if a[k] != b[k] {
				return a[k] < b[k]
			}
		}
		return len(a) < len(b)
	})
	return out
}

func clauseKey(cl []int) string {
	cp := append([]int{}, cl...)
	sort.Ints(cp)
	return fmt.Sprint(cp)
}

func TestTrimSquare(t *testing.T) {
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)

	want := sortedCore(square)
	if diff := cmp.Diff(want, sortedCore(cc.Clauses)); diff != "" {
		t.Errorf("unexpected core (-want +got):\n%s", diff)
	}
	st := tr.Stats()
	assert.Equal(t, 4, st.Core.Clauses)
	assert.Equal(t, 2, st.Core.Variables)
	assert.Equal(t, 1, st.Trims)
	assert.Zero(t, st.Stalls)
}

func TestTrimContradictoryUnits(t *testing.T) {
	s := New(ParseSlice([][]int{{1}, {-1}}))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.Equal(t, Unsat, s.Solve())
	require.NotNil(t, tr.finalConflict)
	assert.Equal(t, 1, tr.finalConflict.Len(), "the final conflict is a synthesized unit")

	var cc CoreCollector
	tr.Trim(&cc)

	want := sortedCore([][]int{{1}, {-1}})
	assert.Equal(t, want, sortedCore(cc.Clauses))
	st := tr.Stats()
	assert.Equal(t, 2, st.Core.Clauses)
	assert.Equal(t, 1, st.Core.Variables)
}

func TestTrimAssumptionFailure(t *testing.T) {
	s := New(ParseSlice([][]int{{1, 2}}))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	s.Assume([]Lit{IntToLit(-1), IntToLit(-2)})
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)

	assert.Equal(t, [][]int{{1, 2}}, sortedCore(cc.Clauses))
	assert.Equal(t, []int{-1, -2}, cc.Assumptions)
	st := tr.Stats()
	assert.Equal(t, 1, st.Core.Clauses)
	assert.Equal(t, 2, st.Core.Variables)
}

func TestTrimConstraintFailure(t *testing.T) {
	s := New(ParseSlice([][]int{{1}, {2}}))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	s.Constrain([]Lit{IntToLit(-1), IntToLit(-2)})
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)

	assert.Equal(t, [][]int{{1}, {2}}, sortedCore(cc.Clauses))
	assert.Equal(t, []int{-1, -2}, cc.ConstraintLits)
	st := tr.Stats()
	assert.Equal(t, 3, st.Core.Clauses, "the constraint counts as a core clause")
	assert.Equal(t, 2, st.Core.Variables)
}

func TestTrimOverconstrained(t *testing.T) {
	s := New(ParseSlice([][]int{{-1}, {-2}}))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.True(t, s.enqueueInitialUnits())

	// Inprocessing reduced the original clause (1 2) to a falsified clause:
	// it is deleted by literals, then reported falsified, which revives the
	// deletion as the final conflict.
	lits := []Lit{IntToLit(1), IntToLit(2)}
	tr.deleteClauseLits(lits, true)
	tr.addFalsifiedOriginalClause(lits, true)
	s.unsat = true
	s.status = Unsat
	require.True(t, tr.overconstrained)
	assert.Equal(t, 1, tr.stats.Revived)

	var cc CoreCollector
	tr.Trim(&cc)

	want := sortedCore([][]int{{-1}, {-2}, {1, 2}})
	assert.Equal(t, want, sortedCore(cc.Clauses))
	revived := 0
	for _, cl := range cc.Clauses {
		if clauseKey(cl) == clauseKey([]int{1, 2}) {
			revived++
		}
	}
	assert.Equal(t, 1, revived, "the revived conflict appears exactly once")
	assert.Nil(t, tr.finalConflict, "the overconstrained conflict is retired after trimming")
}

func TestRetrimAfterNewUnit(t *testing.T) {
	s := New(ParseSliceNb(square, 3))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc1 CoreCollector
	tr.Trim(&cc1)

	s.AddUnit(IntToLit(3))
	var cc2 CoreCollector
	tr.Trim(&cc2)

	first := make(map[string]bool)
	for _, cl := range cc1.Clauses {
		first[clauseKey(cl)] = true
	}
	first[clauseKey([]int{3})] = true
	for _, cl := range cc2.Clauses {
		assert.True(t, first[clauseKey(cl)],
			"clause %v of the second core is neither in the first core nor the new unit", cl)
	}
	assert.Equal(t, 2, tr.Stats().Trims)
}

func TestRetrimGarbageIdempotent(t *testing.T) {
	s := New(ParseSlice(php32))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc1 CoreCollector
	tr.Trim(&cc1)
	snapshot := garbageState(s, tr)

	var cc2 CoreCollector
	tr.Trim(&cc2)
	assert.Equal(t, snapshot, garbageState(s, tr), "garbage marks must be restored identically")

	// Re-trimming may only shrink the core.
	first := make(map[string]bool)
	for _, cl := range cc1.Clauses {
		first[clauseKey(cl)] = true
	}
	for _, cl := range cc2.Clauses {
		assert.True(t, first[clauseKey(cl)], "clause %v appeared out of nowhere", cl)
	}
}

func garbageState(s *Solver, tr *Trimmer) []bool {
	var out []bool
	for _, lst := range [][]*Clause{s.wl.clauses, s.wl.learned, tr.unitClauses} {
		for _, c := range lst {
			out = append(out, c.garbage)
		}
	}
	return out
}

func TestTrimCoreUnitsPreferCore(t *testing.T) {
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	tr.Set("core_units", true)
	tr.Set("prefer_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)
	assert.Equal(t, sortedCore(square), sortedCore(cc.Clauses))
}

func TestTrimUnmarkCore(t *testing.T) {
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	tr.Set("unmark_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)
	assert.Len(t, cc.Clauses, 4, "the core is emitted before unmarking")
	assert.Equal(t, CoreStats{}, tr.Stats().Core)
	for _, lst := range [][]*Clause{s.wl.clauses, s.wl.learned, tr.unitClauses} {
		for _, c := range lst {
			assert.False(t, c.core)
		}
	}
}

func TestTrimReconstruct(t *testing.T) {
	s := New(ParseSlice([][]int{{1, 2}}))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	tr.Set("reconstruct", true)
	s.Assume([]Lit{IntToLit(-1), IntToLit(-2)})
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)
	assert.Empty(t, tr.proof, "the failing-assumption scaffolding must be discarded")
	assert.Zero(t, tr.stats.Derived)
	assert.Zero(t, tr.stats.Deleted)
	tr.checkEnvironment()
}

func TestTrimReconstructKeepsPreTrimProof(t *testing.T) {
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	tr.Set("reconstruct", true)
	require.Equal(t, Unsat, s.Solve())
	proofSz := len(tr.proof)

	var cc CoreCollector
	tr.Trim(&cc)
	assert.Len(t, tr.proof, proofSz)
	tr.checkEnvironment()
}

func TestTrimOnSatSolverIsANoOp(t *testing.T) {
	s := New(ParseSlice([][]int{{1, 2}}))
	tr := NewTrimmer(s)
	require.Equal(t, Sat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)
	assert.Empty(t, cc.Clauses)
	assert.Zero(t, tr.Stats().Core.Clauses)
}

func TestTrimDisablesHostOptions(t *testing.T) {
	s := New(ParseSlice(square))
	s.Opts.Compact = true
	s.Opts.Chrono = true
	tr := NewTrimmer(s)
	assert.True(t, tr.DisabledHostOptions())
	assert.False(t, s.Opts.Compact)
	assert.False(t, s.Opts.Chrono)
	assert.False(t, s.Opts.Probe)
	assert.False(t, s.Opts.CheckProof)
}

func TestCheckCoreOnHarderFormula(t *testing.T) {
	s := New(ParseSlice(php32))
	tr := NewTrimmer(s)
	tr.Set("check_core", true)
	require.Equal(t, Unsat, s.Solve())

	var cc CoreCollector
	tr.Trim(&cc)

	v := NewCoreVerifier()
	for _, cl := range cc.Clauses {
		v.Clause(cl)
	}
	assert.True(t, v.Verified(), "the emitted core must be unsatisfiable on its own")
	assert.NotEmpty(t, cc.Clauses)
	assert.LessOrEqual(t, len(cc.Clauses), len(php32))
}
