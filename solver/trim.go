package solver

import "github.com/sirupsen/logrus"

// Backward proof trimming: starting from the final conflict, the proof is
// walked in reverse. Deletions revive their clause; each derivation of a
// core-marked lemma is re-validated by propagating the negation of its
// literals to a conflict, whose antecedents are marked core in turn.

// markCore flags the clause as participating in the refutation.
func (t *Trimmer) markCore(c *Clause) {
	if c == nil {
		panic("marking a nil clause core")
	}
	c.core = true
}

// isOnTrail is true iff c is currently the reason of its first literal.
func (t *Trimmer) isOnTrail(c *Clause) bool {
	first := c.First()
	return t.s.litStatus(first) == Sat && t.s.reason[first.Var()] == c
}

// markConflict seeds the core from the final conflict, or from the failing
// assumptions / constraint when the problem is only UNSAT under them.
func (t *Trimmer) markConflict() {
	s := t.s
	if s.unsat {
		if t.finalConflict == nil {
			panic("unsat without a final conflict")
		}
		t.markCore(t.finalConflict)
		for i := 0; i < t.finalConflict.Len(); i++ {
			l := t.finalConflict.Get(i)
			switch s.litStatus(l) {
			case Sat:
				panic("final conflict literal satisfied")
			case Unsat:
				if r := s.reason[l.Var()]; r != nil {
					t.markCore(r)
				}
			default:
				// Not reassigned since the last restore; its antecedents
				// already carry their marks.
			}
		}
	} else {
		if s.unsatConstraint && len(s.constraint) > 1 {
			t.failedConstraint = t.newRedundantClause(s.constraint)
			t.markCore(t.failedConstraint)
			s.watchClause(t.failedConstraint)
		}
		s.failing()
	}
}

// markFailing marks the failing-assumption scaffolding pushed after proofSz:
// every odd-offset entry in the tail holds a revived failed clause.
func (t *Trimmer) markFailing(proofSz int) {
	if proofSz >= len(t.proof) || (len(t.proof)-proofSz)%2 != 0 {
		panic("malformed failing-assumption tail")
	}
	for i := proofSz; i < len(t.proof); i++ {
		if (i-proofSz)%2 == 1 {
			c := t.proof[i].clause()
			t.markCore(c)
			c.lemma = false
		}
	}
}

// reviveClause brings the clause deleted at proof slot i back to life,
// allocating it anew from the owned literals if needed, and rebinds the
// paired derivation entry.
func (t *Trimmer) reviveClause(i int) {
	dc := t.proof[i]
	if !dc.deleted {
		panic("reviving a derivation entry")
	}
	var c *Clause
	if !dc.isLits {
		c = dc.clause()
	} else {
		c = t.newRedundantClause(dc.lits())
		t.s.markGarbage(c)
		c.pidx = uint32(i + 1)
		dc.setClause(c)
	}
	if c == nil || !c.garbage {
		panic("reviving a live clause")
	}
	t.s.markActive(c)
	c.lemma = false
	t.s.watchClause(c)
	if dc.reviveAt != 0 {
		j := int(dc.reviveAt) - 1
		if j >= i || j < 0 {
			panic("revive link out of order")
		}
		pdc := t.proof[j]
		if pdc.reviveAt != 0 || pdc.deleted {
			panic("revive link does not point to a plain derivation")
		}
		pdc.setClause(c)
	}
	t.stats.Revived++
}

// stagnateClause retires the clause from the active database.
func (t *Trimmer) stagnateClause(c *Clause) {
	if c.garbage {
		panic("stagnating a garbage clause")
	}
	if c.moved {
		panic("stagnating a moved clause")
	}
	t.s.markGarbage(c)
	if c.Len() > 1 {
		t.s.unwatchClause(c)
	}
}

// undoTrailLiteral unassigns a trail literal, reactivating it if it was fixed
// at root level. The variable's reason is deliberately left in place.
func (t *Trimmer) undoTrailLiteral(l Lit) {
	s := t.s
	if s.litStatus(l) != Sat {
		panic("undoing a literal that is not assigned true")
	}
	v := l.Var()
	if abs(s.model[v]) == 1 {
		t.s.reactivateFixed()
	}
	s.model[v] = 0
	s.order.push(v)
	if r := s.reason[v]; r != nil && r.core {
		s.order.prefer(v)
	}
}

// undoTrailCore pops the trail down to, and including, c's propagated
// literal. Reason clauses met on the way transitively spread their core mark;
// with the core_units setting every popped reason becomes core.
func (t *Trimmer) undoTrailCore(c *Clause, trailSz int) int {
	s := t.s
	if trailSz == 0 || trailSz > len(s.trail) {
		panic("trail size out of range")
	}
	if !t.isOnTrail(c) {
		panic("clause is not a reason on the trail")
	}
	clit := c.First()
	for {
		trailSz--
		l := s.trail[trailSz]
		if l == clit {
			break
		}
		if trailSz == 0 {
			panic("reason literal not found on the trail")
		}
		r := s.reason[l.Var()]
		if r == nil || r.First() != l {
			panic("trail literal without a proper reason")
		}
		t.undoTrailLiteral(l)
		if t.settings.CoreUnits {
			t.markCore(r)
		}
		if r.core {
			for j := 1; j < r.Len(); j++ {
				t.markCore(s.reason[r.Get(j).Var()])
			}
		}
	}
	t.undoTrailLiteral(clit)
	return trailSz
}

// shrinkTrail truncates the trail to the lazily maintained size.
func (t *Trimmer) shrinkTrail(trailSz int) {
	s := t.s
	if trailSz > len(s.trail) {
		panic("growing the trail while shrinking")
	}
	if len(s.levels) != 0 {
		panic("shrinking the trail below decisions")
	}
	s.trail = s.trail[:trailSz]
	s.propagated = trailSz
}

// cleanConflict resets the host to a conflict-free root state.
func (t *Trimmer) cleanConflict() {
	s := t.s
	s.unsat = false
	s.backtrack(1)
	s.conflict = nil
}

// assumeNegation decides the negation of every unassigned literal of the
// lemma, one decision level each, without propagating in between.
func (t *Trimmer) assumeNegation(lemma *Clause) {
	s := t.s
	if !t.validating || len(s.levels) != 0 {
		panic("assuming a lemma negation outside the validation scope")
	}
	if !lemma.core {
		panic("assuming the negation of a non-core lemma")
	}
	if s.propagated != len(s.trail) {
		panic("unpropagated trail literals before assuming")
	}
	decisions := 0
	for i := 0; i < lemma.Len(); i++ {
		if l := lemma.Get(i); s.litStatus(l) == Indet {
			s.pushDecision(l.Negation())
			decisions++
		}
	}
	if decisions == 0 {
		panic("no unassigned literal in the lemma to negate")
	}
}

// propagateConflict replays unit propagation and expects a conflict. When the
// replay stalls, which can happen with proofs recorded across incremental
// queries, the entire trail is re-propagated once.
func (t *Trimmer) propagateConflict() bool {
	s := t.s
	if s.conflict != nil {
		panic("dirty conflict before replay")
	}
	if s.propagate(t.settings.PreferCore) != nil {
		return true
	}
	t.stats.Stalls++
	t.log.WithField("stalls", t.stats.Stalls).Debug("replay stalled, re-propagating the full trail")
	s.propagated = 0
	if s.propagate(false) != nil {
		return true
	}
	s.backtrack(1)
	return false
}

// conflictAnalysisCore marks core every antecedent of the replay conflict.
// Unlike search-time analysis there is no first-UIP cut: the walk consumes
// every literal assigned after the current decision mark.
func (t *Trimmer) conflictAnalysisCore() {
	s := t.s
	conflict := s.conflict
	if conflict == nil {
		panic("no conflict to analyze")
	}
	t.markCore(conflict)

	mark := s.levels[len(s.levels)-1]
	byPropagation := func(l Lit) bool {
		if s.litStatus(l) == Indet {
			panic("unassigned conflict literal")
		}
		return s.trailPos[l.Var()] > mark
	}

	nbSeen := 0
	for i := 0; i < conflict.Len(); i++ {
		l := conflict.Get(i)
		v := l.Var()
		if byPropagation(l) {
			if s.seen[v] {
				panic("conflict literal already seen")
			}
			s.seen[v] = true
			nbSeen++
		} else if abs(s.model[v]) == 1 {
			t.markCore(s.reason[v])
		}
	}

	for i := len(s.trail) - 1; i > mark; i-- {
		l := s.trail[i]
		v := l.Var()
		if !s.seen[v] {
			continue
		}
		s.seen[v] = false
		nbSeen--

		r := s.reason[v]
		if r == nil || r.First() != l {
			panic("propagated literal without a proper reason")
		}
		t.markCore(r)
		for j := 1; j < r.Len(); j++ {
			l2 := r.Get(j)
			v2 := l2.Var()
			if byPropagation(l2) {
				if !s.seen[v2] {
					s.seen[v2] = true
					nbSeen++
				}
			} else if abs(s.model[v2]) == 1 {
				t.markCore(s.reason[v2])
			}
		}
	}

	if nbSeen != 0 {
		panic("seen marks remaining after core conflict analysis")
	}
}

// markCoreTrailAntecedents walks the remaining trail top-down, spreading core
// marks through the reasons that support core clauses, and rewinds the
// propagation marker below the last core reason.
func (t *Trimmer) markCoreTrailAntecedents() {
	s := t.s
	for i := len(s.trail) - 1; i >= 0; i-- {
		l := s.trail[i]
		r := s.reason[l.Var()]
		if r == nil {
			panic("trail literal without a reason")
		}
		if r.core {
			if r.First() != l {
				panic("reason does not start with its propagated literal")
			}
			for j := 0; j < r.Len(); j++ {
				t.markCore(s.reason[r.Get(j).Var()])
			}
			s.propagated = i
		}
	}
}

// Trim reduces the recorded proof to an unsatisfiable core and emits it to
// the given visitor. Afterwards the host solver is restored to a usable
// state, according to the trimmer's settings.
func (t *Trimmer) Trim(it CoreIterator) {
	s := t.s
	t.stats.Trims++
	if s.status != Unsat {
		t.log.Warn("trim called on a solver that did not prove UNSAT")
		return
	}
	if s.unsat && t.finalConflict == nil {
		t.log.Warn("nothing to trim: the input contained the empty clause")
		return
	}
	if t.validating || t.isolated {
		panic("reentrant trim")
	}
	if t.setupInternalOptions() {
		t.log.Warn("re-disabled host options incompatible with trimming")
	}
	t.checkEnvironment()

	savedUnsat := s.unsat
	defer func() { s.unsat = savedUnsat }()

	proofSz := len(t.proof)
	t.markConflict()

	s.flushWatches()
	t.cleanConflict()
	trailSz := len(s.trail)

	t.validating = true
	defer func() { t.validating = false }()

	start := len(t.proof) - 1
	if t.overconstrained {
		start--
	}
	for i := start; i >= 0; i-- {
		dc := t.proof[i]
		if dc.deleted {
			t.reviveClause(i)
			continue
		}

		if i == proofSz {
			t.markFailing(proofSz)
		}

		c := dc.clause()
		if c == nil || c.garbage {
			panic("derivation entry without a live clause")
		}

		if t.isOnTrail(c) {
			if t.settings.CoreUnits {
				t.markCore(c)
			}
			trailSz = t.undoTrailCore(c, trailSz)
			s.report('m')
		}

		c.lemma = true
		t.stagnateClause(c)

		if c.core {
			t.shrinkTrail(trailSz)
			t.assumeNegation(c)
			if t.propagateConflict() {
				t.conflictAnalysisCore()
			} else {
				t.log.Error("replay failed to reach a conflict")
			}
			t.cleanConflict()
		}
	}

	t.shrinkTrail(trailSz)
	t.markCoreTrailAntecedents()
	s.report('M')

	t.stats.Core = CoreStats{}
	t.traverseCore(it, true)
	if t.dump != nil {
		t.traverseCore(NewCorePrinter(t.dump, s.nbVars, t.stats.Core.Clauses), false)
	}
	if t.settings.CheckCore {
		v := NewCoreVerifier()
		t.traverseCore(v, false)
		if !v.Verified() {
			panic("core verification failed: the trimmed core is not UNSAT")
		}
	}

	t.restoreProofGarbageMarks()
	if t.settings.UnmarkCore {
		t.unmarkCore()
	}
	if t.settings.Reconstruct {
		t.reconstruct(proofSz)
	}
	t.restoreTrail()

	t.log.WithFields(logrus.Fields{
		"core_clauses": t.stats.Core.Clauses,
		"core_lemmas":  t.stats.Core.Lemmas,
		"core_vars":    t.stats.Core.Variables,
		"revived":      t.stats.Revived,
		"stalls":       t.stats.Stalls,
	}).Debug("trim finished")
}
