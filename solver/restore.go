package solver

// State restoration after a trim, so the host solver remains usable.

// unmarkCore clears the core flag on every clause and resets core statistics.
func (t *Trimmer) unmarkCore() {
	for _, lst := range [][]*Clause{t.s.wl.clauses, t.s.wl.learned, t.unitClauses} {
		for _, c := range lst {
			c.core = false
		}
	}
	t.stats.Core = CoreStats{}
}

// restoreProofGarbageMarks resets each proof-referenced clause's garbage flag
// according to its entry kind and re-watches the live ones. The failing
// constraint and, in the overconstrained case, the final conflict are retired.
func (t *Trimmer) restoreProofGarbageMarks() {
	t.isolated = true
	defer func() { t.isolated = false }()

	for _, dc := range t.proof {
		c := dc.clause()
		if c == nil {
			panic("proof entry without a clause after trimming")
		}
		if dc.deleted {
			t.s.markGarbage(c)
		} else {
			t.s.markActive(c)
		}
	}

	if t.failedConstraint != nil {
		t.s.markGarbage(t.failedConstraint)
		t.failedConstraint = nil
	}

	if t.overconstrained {
		if t.finalConflict == nil {
			panic("overconstrained without a final conflict")
		}
		t.s.markGarbage(t.finalConflict)
		t.finalConflict = nil
	}

	// Deletion entries win over their paired derivation, so watches are only
	// reconnected once all marks have settled.
	t.s.flushWatches()
}

// reconstruct truncates the proof back to its pre-trim size and converts
// every deletion entry to an owned literal copy, so the referenced clauses
// can be collected.
func (t *Trimmer) reconstruct(proofSz int) {
	t.isolated = true
	defer func() { t.isolated = false }()

	for len(t.proof) > proofSz {
		dc := t.proof[len(t.proof)-1]
		c := dc.clause()
		if c == nil || !c.garbage {
			panic("reconstructing a live proof tail")
		}
		c.pidx = 0
		if dc.deleted {
			t.stats.Deleted--
		} else {
			t.stats.Derived--
		}
		t.proof = t.proof[:len(t.proof)-1]
	}

	t.s.flushWatches()
	for i := len(t.proof) - 1; i >= 0; i-- {
		dc := t.proof[i]
		if !dc.deleted {
			continue
		}
		c := dc.clause()
		if c == nil || !c.garbage {
			panic("deletion entry of a live clause during reconstruction")
		}
		c.pidx = 0
		dc.flip()
		if dc.reviveAt != 0 {
			t.proof[dc.reviveAt-1].setClause(nil)
		}
	}
}

// restoreTrail re-assigns every trimmer-owned unit literal at root level, in
// allocation order, propagating each.
func (t *Trimmer) restoreTrail() {
	t.isolated = true
	defer func() { t.isolated = false }()

	s := t.s
	for _, c := range t.unitClauses {
		l := c.First()
		if s.litStatus(l) != Indet {
			continue
		}
		s.assign(l, c)
		s.propagate(false)
	}
}
