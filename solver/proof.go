package solver

import (
	"io"
	"os"
	"sort"

	"github.com/sirupsen/logrus"
)

// maxProofLen bounds the proof log: clause footers keep their log index in 30
// bits only.
const maxProofLen = 1<<30 - 1

// A proofClause is one record of the derivation: either the derivation or the
// deletion of a clause. Its contents live in one of two variants: a reference
// to a live clause of the host solver, or a standalone copy of the literals,
// used once the referenced clause has been collected.
type proofClause struct {
	deleted  bool
	reviveAt uint32 // For a deletion whose derivation is at log index k, k+1. 0 if none.
	isLits   bool   // Discriminates the variant below
	ref      *Clause
	literals []Lit
}

func newClauseEntry(c *Clause, deleted bool) *proofClause {
	if c == nil || c.Len() == 0 {
		panic("proof entry for a nil or empty clause")
	}
	return &proofClause{deleted: deleted, ref: c}
}

func newLitsEntry(lits []Lit, deleted bool) *proofClause {
	if len(lits) == 0 {
		panic("proof entry for an empty literal list")
	}
	cp := make([]Lit, len(lits))
	copy(cp, lits)
	return &proofClause{deleted: deleted, isLits: true, literals: cp}
}

// clause returns the referenced clause. The entry must hold the clause
// variant; the reference itself may have been nulled.
func (dc *proofClause) clause() *Clause {
	if dc.isLits {
		panic("clause() on a literals-variant proof entry")
	}
	return dc.ref
}

// lits returns the owned literal copy of a literals-variant entry.
func (dc *proofClause) lits() []Lit {
	if !dc.isLits {
		panic("lits() on a clause-variant proof entry")
	}
	return dc.literals
}

// setClause rebinds the entry to the given clause, releasing the previous
// variant.
func (dc *proofClause) setClause(c *Clause) {
	dc.isLits = false
	dc.literals = nil
	dc.ref = c
}

// setLits rebinds the entry to an owned copy of the given literals.
func (dc *proofClause) setLits(lits []Lit) {
	cp := make([]Lit, len(lits))
	copy(cp, lits)
	dc.isLits = true
	dc.ref = nil
	dc.literals = cp
}

// flip converts a clause-variant entry to a literals-variant one, copying the
// clause's literals. Returns the previous reference.
func (dc *proofClause) flip() *Clause {
	c := dc.clause()
	if c == nil {
		panic("flipping a nulled proof entry")
	}
	dc.setLits(c.lits)
	return c
}

// CoreStats counts what the core traversal emitted.
type CoreStats struct {
	Clauses   int // Original core clauses, constraint included
	Lemmas    int // Core clauses that are derived lemmas
	Variables int // Distinct variables in the core
}

// TrimStats are statistics about proof recording and trimming.
type TrimStats struct {
	Derived int // Derivation entries currently in the proof
	Deleted int // Deletion entries currently in the proof
	Units   int // Unit clauses allocated by the trimmer
	Revived int // Clauses revived during backward passes
	Trims   int // Nb of Trim calls
	Stalls  int // Nb of replays that needed a full-trail re-propagation
	Core    CoreStats
}

// TrimSettings configure the trimming process.
type TrimSettings struct {
	CoreUnits   bool // Mark reason clauses of popped trail literals core
	UnmarkCore  bool // Clear core flags at the end of Trim
	Reconstruct bool // Discard the proof tail added by Trim and detach clause references
	PreferCore  bool // Propagate on core-marked watches first during replay
	CheckCore   bool // Re-solve the core with a fresh solver and require UNSAT
}

// A Trimmer records the DRUP-style derivation of its host solver and, once
// the solver proved UNSAT, reduces the proof backward to an unsatisfiable
// core. It is installed with NewTrimmer and driven through the solver's
// notification hooks during search.
type Trimmer struct {
	s        *Solver
	settings TrimSettings
	stats    TrimStats

	proof       []*proofClause
	unitClauses []*Clause // Trimmer-owned unit clauses, in allocation order
	marked      []byte    // Per-var scratch marks for duplicate removal

	finalConflict    *Clause
	failedConstraint *Clause
	overconstrained  bool
	isolated         bool
	validating       bool

	dump         io.Writer // Sink for the optional core CNF dump
	disabledOpts bool      // Whether installing the trimmer disabled any host option
	log          *logrus.Entry
}

// DisabledHostOptions reports whether installing the trimmer had to disable
// host options, so the host can restore them once trimming is over.
func (t *Trimmer) DisabledHostOptions() bool { return t.disabledOpts }

// NewTrimmer installs a proof trimmer on the given solver. Host options that
// are incompatible with proof replay are forcibly disabled; whether any of
// them was enabled is remembered and returned by DisabledHostOptions.
func NewTrimmer(s *Solver) *Trimmer {
	if s.trimmer != nil {
		panic("solver already has a trimmer")
	}
	t := &Trimmer{
		s:      s,
		marked: make([]byte, s.nbVars),
		log:    s.Logger.WithField("component", "trim"),
	}
	t.disabledOpts = t.setupInternalOptions()
	if s.Opts.DrupPreferCore {
		t.settings.PreferCore = true
	}
	if s.Opts.DrupDumpCore && t.dump == nil {
		t.dump = os.Stderr
	}
	s.trimmer = t
	return t
}

// Set updates a single setting by name: one of core_units, unmark_core,
// reconstruct, prefer_core, check_core.
func (t *Trimmer) Set(setting string, val bool) {
	switch setting {
	case "core_units":
		t.settings.CoreUnits = val
	case "unmark_core":
		t.settings.UnmarkCore = val
	case "reconstruct":
		t.settings.Reconstruct = val
	case "prefer_core":
		t.settings.PreferCore = val
	case "check_core":
		t.settings.CheckCore = val
	default:
		panic("unknown trimmer setting " + setting)
	}
}

// Settings returns a pointer to the trimmer's settings for direct tweaking.
func (t *Trimmer) Settings() *TrimSettings { return &t.settings }

// Stats returns the current trimming statistics.
func (t *Trimmer) Stats() TrimStats { return t.stats }

// SetDump sets the sink for core CNF dumps.
func (t *Trimmer) SetDump(w io.Writer) { t.dump = w }

// setupInternalOptions disables the host options that would corrupt the proof
// or make replay impossible. Returns whether any of them was enabled.
func (t *Trimmer) setupInternalOptions() bool {
	o := &t.s.Opts
	updated := o.Chrono || o.Probe || o.Compact || o.CheckProof
	o.Chrono = false
	o.Probe = false
	o.Compact = false
	o.CheckProof = false
	return updated
}

// tautological returns true iff the clause contains a literal and its negation.
func tautological(c []Lit) bool {
	sorted := make([]Lit, len(c))
	copy(sorted, c)
	sort.Slice(sorted, func(i, j int) bool {
		vi, vj := sorted[i].Var(), sorted[j].Var()
		return vi < vj || (vi == vj && sorted[i] < sorted[j])
	})
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1].Negation() {
			return true
		}
	}
	return false
}

const (
	markedPos = 1 << iota
	markedNeg
)

// removeDuplicates drops repeated literals, preserving order. Must be called
// only when no literals are marked.
func (t *Trimmer) removeDuplicates(c []Lit) []Lit {
	unique := make([]Lit, 0, len(c))
	for _, l := range c {
		bit := byte(markedPos)
		if !l.IsPositive() {
			bit = markedNeg
		}
		if t.marked[l.Var()]&bit != 0 {
			continue
		}
		t.marked[l.Var()] |= bit
		unique = append(unique, l)
	}
	for _, l := range unique {
		t.marked[l.Var()] = 0
	}
	return unique
}

// swapFalsifiedRight moves every currently falsified literal to the end of
// the clause, so that on revival the first two literals can be watched.
func (t *Trimmer) swapFalsifiedRight(c []Lit) {
	sz := len(c)
	for i := 0; i < sz; i++ {
		if t.s.litStatus(c[i]) == Unsat {
			sz--
			c[i], c[sz] = c[sz], c[i]
			i--
		}
	}
}

// appendLemma pushes an entry onto the proof log, maintaining the footer of
// the referenced clause.
func (t *Trimmer) appendLemma(dc *proofClause) {
	if len(t.proof) >= maxProofLen {
		panic("proof log overflow")
	}
	if dc.deleted {
		t.stats.Deleted++
	} else {
		t.stats.Derived++
	}
	if !dc.isLits {
		c := dc.clause()
		if dc.deleted {
			if first := c.First(); t.s.litStatus(first) == Sat &&
				abs(t.s.model[first.Var()]) == 1 && t.s.reason[first.Var()] == c {
				panic("deleting a clause that is a root reason")
			}
			if c.pidx != 0 {
				if t.proof[c.pidx-1].clause() != c {
					panic("stale proof index on deleted clause")
				}
				dc.reviveAt = c.pidx
			}
		}
		c.pidx = uint32(len(t.proof) + 1)
		c.lemma = c.Learned()
		if c.core {
			panic("appending a core-marked clause to the proof")
		}
	}
	t.proof = append(t.proof, dc)
}

// appendFailed records a failing assumption clause as a derivation
// immediately followed by its deletion, linked together.
func (t *Trimmer) appendFailed(c []Lit) {
	t.appendLemma(newLitsEntry(c, false))
	t.appendLemma(newLitsEntry(c, true))
	i := len(t.proof) - 1
	if t.proof[i-1].reviveAt != 0 {
		panic("chained failing-assumption pair")
	}
	t.proof[i].reviveAt = uint32(i)
}

/*------------------------------------------------------------------------*/
// Notification hooks, called by the host solver during search and
// inprocessing. All of them are no-ops while the trimmer is isolated or
// validating.

// addDerivedClause records the derivation of a clause of size >= 2.
func (t *Trimmer) addDerivedClause(c *Clause) {
	if t.isolated || t.validating {
		return
	}
	t.appendLemma(newClauseEntry(c, false))
}

// addDerivedUnitClause records a derived (or original) unit: the literal's
// reason becomes a unit clause that outlives clause collection, and for
// non-original units a derivation entry is pushed.
func (t *Trimmer) addDerivedUnitClause(lit Lit, original bool) {
	if t.isolated || t.validating {
		return
	}
	var c *Clause
	if t.s.reason[lit.Var()] == nil {
		c = t.newUnitClause(lit, original)
		t.s.reason[lit.Var()] = c
	}
	if !original {
		if c == nil {
			c = t.newUnitClause(lit, original)
			t.s.reason[lit.Var()] = c
		}
		t.appendLemma(newClauseEntry(c, false))
	}
}

// addDerivedEmptyClause records the host's current conflict as the final
// conflict of the refutation.
func (t *Trimmer) addDerivedEmptyClause() {
	if t.isolated || t.validating {
		return
	}
	if t.s.conflict == nil {
		panic("empty clause derived without a conflict")
	}
	t.finalConflict = t.s.conflict
}

// addFalsifiedOriginalClause records an original clause that was found
// falsified. If derived is true, the most recent deletion entry holds that
// clause: it is revived as the final conflict and the proof becomes
// overconstrained. Otherwise the clause is materialized.
func (t *Trimmer) addFalsifiedOriginalClause(clause []Lit, derived bool) {
	if t.isolated || t.validating {
		return
	}
	if t.finalConflict != nil {
		panic("final conflict recorded twice")
	}
	if derived {
		if len(t.proof) == 0 {
			panic("overconstrained proof without entries")
		}
		dc := t.proof[len(t.proof)-1]
		lits := dc.lits()
		if len(lits) == 1 {
			dc.setClause(t.newUnitClause(lits[0], false))
		} else {
			t.reviveClause(len(t.proof) - 1)
		}
		t.finalConflict = dc.clause()
		t.overconstrained = true
	} else {
		modified := t.removeDuplicates(clause)
		t.swapFalsifiedRight(modified)
		if len(modified) == 1 {
			t.finalConflict = t.newUnitClause(modified[0], false)
		} else {
			t.finalConflict = t.newRedundantClause(modified)
			t.s.watchClause(t.finalConflict)
		}
	}
	t.finalConflict.lemma = false
}

// addFailingAssumption records the clause over the negations of a failed
// assumption set. Trivially tautological clauses are skipped; a single
// literal just marks its variable's reason clause core.
func (t *Trimmer) addFailingAssumption(c []Lit) {
	if t.isolated || t.validating {
		return
	}
	if len(c) > 1 {
		if !tautological(c) {
			t.appendFailed(c)
		}
	} else if len(c) == 1 {
		if r := t.s.reason[c[0].Var()]; r != nil {
			t.markCore(r)
		}
	}
}

// addUpdatedClause records an in-place mutation of c: a derivation of the new
// form, then a deletion owning the previous literals, linked back to the
// previous log slot.
func (t *Trimmer) addUpdatedClause(c *Clause, previous []Lit) {
	if t.isolated || t.validating {
		return
	}
	var reviveAt uint32
	if c.pidx != 0 {
		reviveAt = c.pidx
		if t.proof[reviveAt-1].clause() != c {
			panic("stale proof index on updated clause")
		}
		t.proof[reviveAt-1].setClause(nil)
	}
	t.appendLemma(newClauseEntry(c, false))
	old := newLitsEntry(previous, true)
	old.reviveAt = reviveAt
	t.appendLemma(old)
}

// deleteClause records the deletion of an allocated clause.
func (t *Trimmer) deleteClause(c *Clause) {
	if t.isolated || t.validating {
		return
	}
	t.appendLemma(newClauseEntry(c, true))
}

// deleteClauseLits records the deletion of a clause given by its literals.
// Duplicates are removed first; if only one literal remains and some were
// dropped, the deletion is skipped. For an original falsified clause, the
// falsified literals are swapped to the end so revival can watch the first
// two.
func (t *Trimmer) deleteClauseLits(c []Lit, original bool) {
	if t.isolated || t.validating {
		return
	}
	modified := t.removeDuplicates(c)
	if len(modified) == len(c) || len(modified) > 1 {
		if original {
			t.swapFalsifiedRight(modified)
		}
		t.appendLemma(newLitsEntry(modified, true))
	}
}

// deallocateClause is called when the host frees a clause's memory: any proof
// entry still referring to it switches to an owned literal copy.
func (t *Trimmer) deallocateClause(c *Clause) {
	if t.isolated || t.validating {
		return
	}
	if c == nil || c.pidx == 0 || int(c.pidx) > len(t.proof) {
		panic("deallocating a clause unknown to the proof")
	}
	dc := t.proof[c.pidx-1]
	if dc.clause() != c {
		panic("stale proof index on deallocated clause")
	}
	dc.flip()
	if dc.reviveAt != 0 {
		pdc := t.proof[dc.reviveAt-1]
		if pdc.deleted || pdc.clause() != c {
			panic("broken revive link on deallocated clause")
		}
		pdc.setClause(nil)
	}
}

// updateMovedCounterparts retargets clause references after a compacting
// collection moved clauses, propagating the proof footer to the copies.
func (t *Trimmer) updateMovedCounterparts() {
	if t.isolated || t.validating {
		return
	}
	for _, dc := range t.proof {
		if dc.isLits {
			continue
		}
		c := dc.clause()
		if c == nil || !c.moved {
			continue
		}
		c.copy.pidx = c.pidx
		c.copy.lemma = c.lemma
		dc.setClause(c.copy)
		if dc.reviveAt != 0 {
			t.proof[dc.reviveAt-1].setClause(c.copy)
		}
	}
}

// checkEnvironment validates the proof log invariants. A violation is a bug.
func (t *Trimmer) checkEnvironment() {
	if len(t.proof) != t.stats.Derived+t.stats.Deleted {
		panic("proof length does not match derivation and deletion counts")
	}
	for i, dc := range t.proof {
		if dc.deleted {
			if !dc.isLits {
				c := dc.clause()
				if c == nil || (!c.garbage && !(i == len(t.proof)-1 && t.overconstrained)) {
					panic("live clause behind a deletion entry")
				}
			} else {
				if len(dc.lits()) == 0 {
					panic("empty deletion entry")
				}
				if dc.reviveAt != 0 {
					if int(dc.reviveAt) > len(t.proof) {
						panic("revive link out of range")
					}
					pdc := t.proof[dc.reviveAt-1]
					if pdc.reviveAt != 0 || pdc.deleted {
						panic("revive link does not point to a plain derivation")
					}
					if pdc.isLits && len(pdc.lits()) == 0 {
						panic("revive link points to an empty derivation")
					}
				}
			}
		} else if dc.isLits && len(dc.lits()) == 0 {
			panic("empty derivation entry")
		}
	}
}
