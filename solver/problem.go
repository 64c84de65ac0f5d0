package solver

import "fmt"

// A Problem is a list of clauses & a nb of vars.
//
// Unlike most front ends, no unit propagation is performed while building a
// Problem: every simplification must happen inside the solver so that the
// proof log records it. Unit clauses are only collected in Units, in input
// order, and contradictions among them are discovered at solving time.
type Problem struct {
	NbVars  int       // Total nb of vars
	Clauses []*Clause // List of clauses of size >= 2
	Status  Status    // Unsat iff the empty clause was part of the input
	Units   []Lit     // List of unit literals found in the problem, in input order
}

// CNF returns a DIMACS CNF representation of the problem.
func (pb *Problem) CNF() string {
	res := fmt.Sprintf("p cnf %d %d\n", pb.NbVars, len(pb.Clauses)+len(pb.Units))
	for _, unit := range pb.Units {
		res += fmt.Sprintf("%d 0\n", unit.Int())
	}
	for _, clause := range pb.Clauses {
		res += fmt.Sprintf("%s\n", clause.CNF())
	}
	return res
}
