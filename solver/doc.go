/*
Package solver provides a CDCL SAT solver together with a DRUP-style proof
trimming engine.

The solver part is a classic conflict-driven clause-learning engine: two
watched literals per clause, VSIDS-like decision heuristics, first-UIP clause
learning with minimization, LBD-driven restarts and learned clause database
reduction. It solves problems in DIMACS CNF notation, possibly under a set of
assumptions and an extra disjunctive constraint:

	pb, err := solver.ParseCNF(f)
	if err != nil { ... }
	s := solver.New(pb)
	if s.Solve() == solver.Unsat { ... }

The trimming part records the solver's derivation while it runs and, once the
solver has proved the problem unsatisfiable, extracts the subset of original
clauses actually needed for the refutation (the unsatisfiable core), by
backward proof reduction: starting from the final conflict, the proof is
walked in reverse, deleted clauses are revived, and every clause involved in
the refutation is re-validated by propagating the negation of its literals.

	t := solver.NewTrimmer(s)
	if s.Solve() == solver.Unsat {
		var core solver.CoreCollector
		t.Trim(&core)
		// core.Clauses now holds an unsatisfiable subset of the problem.
	}

The core is streamed to a CoreIterator; built-in iterators collect it in
memory (CoreCollector), dump it as DIMACS (CorePrinter) or re-solve it with a
fresh solver to check it is indeed unsatisfiable (CoreVerifier). The core is
reduced, not minimal: it is a sound superset of a minimum core.
*/
package solver
