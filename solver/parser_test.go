package solver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCNF(t *testing.T) {
	const cnf = `c a small example
p cnf 3 4
1 2 0
-1 2 0
3 0
-3 -2 0
`
	pb, err := ParseCNF(strings.NewReader(cnf))
	require.NoError(t, err)
	assert.Equal(t, 3, pb.NbVars)
	assert.Len(t, pb.Clauses, 3)
	require.Len(t, pb.Units, 1)
	assert.Equal(t, IntToLit(3), pb.Units[0])
	assert.Equal(t, Indet, pb.Status)
}

func TestParseCNFBadHeader(t *testing.T) {
	_, err := ParseCNF(strings.NewReader("p cnf x 3\n1 2 0\n"))
	assert.Error(t, err)
}

func TestParseCNFLitOutOfRange(t *testing.T) {
	_, err := ParseCNF(strings.NewReader("p cnf 2 1\n1 3 0\n"))
	assert.Error(t, err)
}

func TestParseSliceEmptyClause(t *testing.T) {
	pb := ParseSlice([][]int{{1, 2}, {}})
	assert.Equal(t, Unsat, pb.Status)
}

func TestParseSliceSanitizesClauses(t *testing.T) {
	pb := ParseSlice([][]int{{1, -1, 2}, {1, 1, 2}, {3, 3}})
	require.Len(t, pb.Clauses, 1, "tautology must be dropped, duplicates merged")
	assert.Equal(t, 2, pb.Clauses[0].Len())
	require.Len(t, pb.Units, 1, "a clause collapsing to one literal is a unit")
	assert.Equal(t, IntToLit(3), pb.Units[0])
	assert.Equal(t, 3, pb.NbVars)
}
