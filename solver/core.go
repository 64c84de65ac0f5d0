package solver

import (
	"fmt"
	"io"
)

// A CoreIterator consumes the unsatisfiable core clause by clause. Returning
// false from any callback short-circuits the traversal.
type CoreIterator interface {
	// Clause is called once per core clause, in external notation.
	Clause(lits []int) bool
	// Assumption is called once per assumption of the failing query.
	Assumption(lit int) bool
	// Constraint is called with the extra constraint, when the problem was
	// unsatisfiable under one.
	Constraint(lits []int) bool
}

// traverseCore walks all core-marked clauses and streams them to it:
// original-problem clauses first, then trimmer-owned units, then the
// assumptions and the failing constraint. Statistics are only collected when
// record is set, so that secondary passes (dump, verification) do not count
// twice.
func (t *Trimmer) traverseCore(it CoreIterator, record bool) bool {
	s := t.s
	seen := make([]bool, s.nbVars)
	countVar := func(l Lit) {
		if v := l.Var(); !seen[v] {
			seen[v] = true
			t.stats.Core.Variables++
		}
	}

	for _, lst := range [][]*Clause{s.wl.clauses, s.wl.learned} {
		for _, c := range lst {
			if !c.core || c == t.failedConstraint {
				continue
			}
			if c.lemma {
				if record {
					t.stats.Core.Lemmas++
				}
				continue
			}
			if record {
				t.stats.Core.Clauses++
			}
			eclause := make([]int, c.Len())
			for i := 0; i < c.Len(); i++ {
				l := c.Get(i)
				eclause[i] = int(l.Int())
				if record {
					countVar(l)
				}
			}
			if !it.Clause(eclause) {
				return false
			}
		}
	}

	for _, c := range t.unitClauses {
		if !c.core {
			continue
		}
		if c.lemma {
			if record {
				t.stats.Core.Lemmas++
			}
			continue
		}
		if record {
			t.stats.Core.Clauses++
			countVar(c.First())
		}
		if !it.Clause([]int{int(c.First().Int())}) {
			return false
		}
	}

	for _, a := range s.assumptions {
		if !it.Assumption(int(a.Int())) {
			return false
		}
		if record {
			countVar(a)
		}
	}

	if s.unsatConstraint {
		if record {
			t.stats.Core.Clauses++
		}
		eclause := make([]int, len(s.constraint))
		for i, l := range s.constraint {
			eclause[i] = int(l.Int())
			if record {
				countVar(l)
			}
		}
		if !it.Constraint(eclause) {
			return false
		}
	}

	return true
}

/*------------------------------------------------------------------------*/

// A CoreCollector accumulates the traversed core in memory.
type CoreCollector struct {
	Clauses        [][]int
	Assumptions    []int
	ConstraintLits []int
}

// Clause implements CoreIterator.
func (cc *CoreCollector) Clause(lits []int) bool {
	cc.Clauses = append(cc.Clauses, lits)
	return true
}

// Assumption implements CoreIterator.
func (cc *CoreCollector) Assumption(lit int) bool {
	cc.Assumptions = append(cc.Assumptions, lit)
	return true
}

// Constraint implements CoreIterator.
func (cc *CoreCollector) Constraint(lits []int) bool {
	cc.ConstraintLits = lits
	return true
}

/*------------------------------------------------------------------------*/

// A CorePrinter dumps the traversed core as a DIMACS CNF file. Assumptions
// are written as unit lines after the clauses.
type CorePrinter struct {
	w   io.Writer
	err error
}

// NewCorePrinter returns a printer that immediately writes the DIMACS header.
func NewCorePrinter(w io.Writer, nbVars, nbClauses int) *CorePrinter {
	p := &CorePrinter{w: w}
	_, p.err = fmt.Fprintf(w, "p cnf %d %d\n", nbVars, nbClauses)
	return p
}

func (p *CorePrinter) putClause(lits []int) bool {
	if p.err != nil {
		return false
	}
	for _, l := range lits {
		if _, p.err = fmt.Fprintf(p.w, "%d ", l); p.err != nil {
			return false
		}
	}
	_, p.err = fmt.Fprint(p.w, "0\n")
	return p.err == nil
}

// Clause implements CoreIterator.
func (p *CorePrinter) Clause(lits []int) bool { return p.putClause(lits) }

// Assumption implements CoreIterator.
func (p *CorePrinter) Assumption(lit int) bool {
	if p.err != nil {
		return false
	}
	_, p.err = fmt.Fprintf(p.w, "%d 0\n", lit)
	return p.err == nil
}

// Constraint implements CoreIterator.
func (p *CorePrinter) Constraint(lits []int) bool { return p.putClause(lits) }

// Err returns the first write error met, if any.
func (p *CorePrinter) Err() error { return p.err }

/*------------------------------------------------------------------------*/

// A CoreVerifier re-asserts the traversed core into a fresh solver and checks
// that it is unsatisfiable.
type CoreVerifier struct {
	clauses     [][]int
	assumptions []int
	constraint  []int
	maxVar      int
}

// NewCoreVerifier returns an empty verifier.
func NewCoreVerifier() *CoreVerifier { return &CoreVerifier{} }

func (v *CoreVerifier) see(lits []int) {
	for _, l := range lits {
		if l > v.maxVar {
			v.maxVar = l
		} else if -l > v.maxVar {
			v.maxVar = -l
		}
	}
}

// Clause implements CoreIterator.
func (v *CoreVerifier) Clause(lits []int) bool {
	cp := make([]int, len(lits))
	copy(cp, lits)
	v.see(cp)
	v.clauses = append(v.clauses, cp)
	return true
}

// Assumption implements CoreIterator.
func (v *CoreVerifier) Assumption(lit int) bool {
	v.see([]int{lit})
	v.assumptions = append(v.assumptions, lit)
	return true
}

// Constraint implements CoreIterator.
func (v *CoreVerifier) Constraint(lits []int) bool {
	cp := make([]int, len(lits))
	copy(cp, lits)
	v.see(cp)
	v.constraint = cp
	return true
}

// Verified solves the collected core under its assumptions and constraint
// and returns true iff it is unsatisfiable.
func (v *CoreVerifier) Verified() bool {
	s := New(ParseSliceNb(v.clauses, v.maxVar))
	if len(v.assumptions) > 0 {
		lits := make([]Lit, len(v.assumptions))
		for i, a := range v.assumptions {
			lits[i] = IntToLit(int32(a))
		}
		s.Assume(lits)
	}
	if len(v.constraint) > 0 {
		lits := make([]Lit, len(v.constraint))
		for i, l := range v.constraint {
			lits[i] = IntToLit(int32(l))
		}
		s.Constrain(lits)
	}
	return s.Solve() == Unsat
}
