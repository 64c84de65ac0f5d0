package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProofFixture() (*Solver, *Trimmer) {
	s := New(ParseSlice([][]int{{1, 2}, {-1, 2}}))
	return s, NewTrimmer(s)
}

func TestDerivedClauseFooter(t *testing.T) {
	s, tr := newProofFixture()
	c := NewLearnedClause([]Lit{IntToLit(2), IntToLit(1)})
	s.addLearned(c)
	require.Len(t, tr.proof, 1)
	assert.Equal(t, 1, tr.stats.Derived)
	assert.EqualValues(t, 1, c.pidx)
	assert.True(t, c.lemma)
	assert.Same(t, c, tr.proof[0].clause())
	tr.checkEnvironment()
}

func TestDeletionBackLinkAndDeallocation(t *testing.T) {
	s, tr := newProofFixture()
	c := NewLearnedClause([]Lit{IntToLit(2), IntToLit(1)})
	s.addLearned(c)
	s.markGarbage(c)
	s.unwatchClause(c)
	tr.deleteClause(c)

	require.Len(t, tr.proof, 2)
	assert.Equal(t, len(tr.proof), tr.stats.Derived+tr.stats.Deleted)
	del := tr.proof[1]
	assert.True(t, del.deleted)
	assert.EqualValues(t, 1, del.reviveAt, "deletion must link back to the derivation")
	assert.Zero(t, tr.proof[0].reviveAt)
	assert.Same(t, c, tr.proof[0].clause())
	assert.EqualValues(t, 2, c.pidx, "footer must point at the latest entry")
	tr.checkEnvironment()

	tr.deallocateClause(c)
	assert.True(t, del.isLits, "deallocation must flip the variant")
	assert.Equal(t, []Lit{IntToLit(2), IntToLit(1)}, del.lits())
	assert.Nil(t, tr.proof[0].clause(), "the paired derivation must be nulled")
	tr.checkEnvironment()
}

func TestDeallocateUnknownClausePanics(t *testing.T) {
	_, tr := newProofFixture()
	require.Panics(t, func() {
		tr.deallocateClause(NewClause([]Lit{IntToLit(1)}))
	})
}

func TestTautologicalFailingAssumptionSkipped(t *testing.T) {
	_, tr := newProofFixture()
	sz := len(tr.proof)
	tr.addFailingAssumption([]Lit{IntToLit(1), IntToLit(-1)})
	assert.Len(t, tr.proof, sz, "a tautological failing assumption must not grow the proof")
}

func TestFailingAssumptionPair(t *testing.T) {
	_, tr := newProofFixture()
	tr.addFailingAssumption([]Lit{IntToLit(1), IntToLit(2)})
	require.Len(t, tr.proof, 2)
	der, del := tr.proof[0], tr.proof[1]
	assert.False(t, der.deleted)
	assert.Zero(t, der.reviveAt)
	assert.True(t, del.deleted)
	assert.EqualValues(t, 1, del.reviveAt)
	assert.Equal(t, der.lits(), del.lits())
	tr.checkEnvironment()
}

func TestFailingAssumptionUnitMarksReason(t *testing.T) {
	s, tr := newProofFixture()
	s.enqueueUnit(IntToLit(1), true)
	r := s.reason[IntToLit(1).Var()]
	require.NotNil(t, r)
	tr.addFailingAssumption([]Lit{IntToLit(-1)})
	assert.True(t, r.core)
	assert.Empty(t, tr.proof, "size-1 failing assumptions do not touch the proof")
}

func TestDerivedUnitClause(t *testing.T) {
	s, tr := newProofFixture()
	lit := IntToLit(2)
	tr.addDerivedUnitClause(lit, false)
	require.Equal(t, 1, tr.stats.Units)
	u := s.reason[lit.Var()]
	require.NotNil(t, u)
	assert.Equal(t, 1, u.Len())
	assert.True(t, u.lemma)
	require.Len(t, tr.proof, 1)
	assert.Same(t, u, tr.proof[0].clause())

	// An original unit only allocates a reason, without a proof entry.
	s2, tr2 := newProofFixture()
	tr2.addDerivedUnitClause(lit, true)
	require.NotNil(t, s2.reason[lit.Var()])
	assert.False(t, s2.reason[lit.Var()].lemma)
	assert.Empty(t, tr2.proof)
}

func TestUpdatedClause(t *testing.T) {
	s := New(ParseSlice([][]int{{1, 2, 3}}))
	tr := NewTrimmer(s)
	c := s.wl.clauses[0]

	prev := c.Lits()
	tr.addUpdatedClause(c, prev)
	require.Len(t, tr.proof, 2)
	assert.Same(t, c, tr.proof[0].clause())
	assert.True(t, tr.proof[1].deleted)
	assert.Equal(t, prev, tr.proof[1].lits())
	assert.Zero(t, tr.proof[1].reviveAt, "first update of an unlogged clause has no previous slot")

	c.Shrink(2)
	prev2 := c.Lits()
	tr.addUpdatedClause(c, prev2)
	require.Len(t, tr.proof, 4)
	assert.Nil(t, tr.proof[0].clause(), "the previous derivation slot must be cleared")
	assert.EqualValues(t, 1, tr.proof[3].reviveAt)
}

func TestUpdateMovedCounterparts(t *testing.T) {
	s, tr := newProofFixture()
	c := NewLearnedClause([]Lit{IntToLit(2), IntToLit(1)})
	s.addLearned(c)
	c2 := NewLearnedClause(c.Lits())
	c.moved = true
	c.copy = c2
	tr.updateMovedCounterparts()
	assert.Same(t, c2, tr.proof[0].clause())
	assert.Equal(t, c.pidx, c2.pidx)
	assert.Equal(t, c.lemma, c2.lemma)
}

func TestRemoveDuplicates(t *testing.T) {
	_, tr := newProofFixture()
	in := []Lit{IntToLit(1), IntToLit(2), IntToLit(1), IntToLit(-1)}
	out := tr.removeDuplicates(in)
	assert.Equal(t, []Lit{IntToLit(1), IntToLit(2), IntToLit(-1)}, out,
		"opposite phases of a variable are not duplicates")
	for _, m := range tr.marked {
		assert.Zero(t, m, "marks must be cleared")
	}
}

func TestTautological(t *testing.T) {
	assert.True(t, tautological([]Lit{IntToLit(1), IntToLit(2), IntToLit(-1)}))
	assert.False(t, tautological([]Lit{IntToLit(1), IntToLit(2), IntToLit(-3)}))
	assert.False(t, tautological(nil))
}
