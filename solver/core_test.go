package solver

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorePrinterDump(t *testing.T) {
	var buf bytes.Buffer
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	tr.SetDump(&buf)
	require.Equal(t, Unsat, s.Solve())
	tr.Trim(&CoreCollector{})

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Equal(t, "p cnf 2 4", lines[0])
	require.Len(t, lines, 5)
	for _, line := range lines[1:] {
		assert.True(t, strings.HasSuffix(line, "0"), "clause line %q must end with 0", line)
	}

	// The dump is a self-contained UNSAT problem.
	pb, err := ParseCNF(strings.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, Unsat, New(pb).Solve())
}

func TestCorePrinterAssumptionLines(t *testing.T) {
	var buf bytes.Buffer
	s := New(ParseSlice([][]int{{1, 2}}))
	tr := NewTrimmer(s)
	tr.SetDump(&buf)
	s.Assume([]Lit{IntToLit(-1), IntToLit(-2)})
	require.Equal(t, Unsat, s.Solve())
	tr.Trim(&CoreCollector{})

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, "p cnf 2 1", lines[0])
	assert.Contains(t, lines, "-1 0")
	assert.Contains(t, lines, "-2 0")
}

// stopAfterFirst aborts the traversal after the first clause.
type stopAfterFirst struct {
	clauses int
}

func (v *stopAfterFirst) Clause([]int) bool {
	v.clauses++
	return false
}
func (v *stopAfterFirst) Assumption(int) bool  { return true }
func (v *stopAfterFirst) Constraint([]int) bool { return true }

func TestTraversalShortCircuit(t *testing.T) {
	s := New(ParseSlice(square))
	tr := NewTrimmer(s)
	require.Equal(t, Unsat, s.Solve())

	var v stopAfterFirst
	tr.Trim(&v)
	assert.Equal(t, 1, v.clauses, "traversal must stop after the first refusal")
}

func TestCoreVerifierRejectsSatisfiableSet(t *testing.T) {
	v := NewCoreVerifier()
	v.Clause([]int{1, 2})
	v.Clause([]int{-1, 2})
	assert.False(t, v.Verified())
}

func TestCoreVerifierWithAssumptionsAndConstraint(t *testing.T) {
	v := NewCoreVerifier()
	v.Clause([]int{1, 2})
	v.Assumption(-1)
	v.Assumption(-2)
	assert.True(t, v.Verified())

	v2 := NewCoreVerifier()
	v2.Clause([]int{1})
	v2.Clause([]int{2})
	v2.Constraint([]int{-1, -2})
	assert.True(t, v2.Verified())
}
