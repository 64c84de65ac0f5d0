package solver

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

const (
	initNbMaxClauses  = 2000  // Maximum # of learned clauses, at first.
	incrNbMaxClauses  = 300   // By how much max # of learned clauses is incremented after each reduction.
	incrPostponeNbMax = 1000  // By how much # of learned is increased when lots of good clauses are currently learned.
	clauseDecay       = 0.999 // By how much clauses bumping decays over time.
	defaultVarDecay   = 0.8   // On each var decay, how much the varInc should be decayed at startup
)

// Stats are statistics about the resolution of the problem.
// They are provided for information purpose only.
type Stats struct {
	NbRestarts    int
	NbConflicts   int
	NbDecisions   int
	NbUnitLearned int // How many unit clauses were learned
	NbLearned     int // How many clauses were learned
	NbDeleted     int // How many clauses were deleted
}

// clauseStats mirrors the clause database accounting the lifecycle bridge
// keeps balanced when marking clauses garbage or active.
type clauseStats struct {
	redundant   int // Current # of live redundant clauses
	irredundant int // Current # of live irredundant clauses
	irrLits     int // Total # of literals in live irredundant clauses
	garbage     int // # of clauses currently marked garbage
	garbageLits int // Total # of literals in garbage clauses
}

// Options are the host solver options a proof trimmer is sensitive to.
// Installing a Trimmer forcibly disables the first four.
type Options struct {
	Chrono     bool // Chronological backtracking
	Probe      bool // Failed-literal probing
	Compact    bool // Clause database compaction during reductions
	CheckProof bool // External proof checking

	DrupDumpCore   bool // On trim, also dump the core CNF (stderr if no sink was set)
	DrupPreferCore bool // Preset implying the prefer_core trimmer setting
}

// The level a decision was made.
// A negative value means "negative assignement at that level".
// A positive value means "positive assignment at that level".
// Level 1 is the root level; decisions start at level 2.
type decLevel int

// A Model is a binding for several variables.
// Each var, in order, is associated with a binding. Binding are implemented as
// decision levels:
// - a 0 value means the variable is free,
// - a positive value means the variable was set to true at the given decLevel,
// - a negative value means the variable was set to false at the given decLevel.
type Model []decLevel

func (m Model) String() string {
	bound := make(map[int]decLevel)
	for i := range m {
		if m[i] != 0 {
			bound[i+1] = m[i]
		}
	}
	return fmt.Sprintf("%v", bound)
}

// A Solver solves a given problem. It is the main data structure.
type Solver struct {
	Verbose bool           // Indicates whether the solver should log information during solving. False by default
	Logger  *logrus.Logger // Where that information is written
	Opts    Options
	Stats   Stats // Statistics about the solving process.

	nbVars     int
	status     Status
	wl         watcherList
	trail      []Lit // Current assignment stack
	propagated int   // Nb of trail lits already propagated
	levels     []int // Trail position of each decision
	model      Model // 0 means unbound, other value is a binding
	lastModel  Model // Placeholder for last model found
	activity   []float64
	polarity   []bool
	reason     []*Clause // For each var, the clause that propagated it, if any
	trailPos   []int     // For each var, its position in the trail when assigned
	seen       []bool    // Scratch marks for conflict analysis
	order      varOrder
	varInc     float64
	clauseInc  float32
	varDecay   float64
	lbdStats   lbdStats
	cstats     clauseStats

	initialUnits []Lit // Unit clauses of the problem, enqueued lazily through the proof hooks
	nbFixed      int   // Nb of vars currently fixed at root level
	reactivated  int   // Nb of fixed vars reactivated during trimming

	assumptions   []Lit  // Assumptions for the current solve, in order
	assumed       []bool // For each var, whether it is an assumption var
	assumptionIdx int    // Next assumption to place as a decision
	constraint    []Lit  // Extra disjunction that must be satisfied, if any

	conflict        *Clause // Last conflicting clause found
	unsat           bool    // The problem itself is UNSAT, irrespective of assumptions
	unsatConstraint bool    // UNSAT because of the extra constraint
	markedFailed    bool    // failing() was already invoked
	failedCause     *Clause // Conflict that failed the assumptions, if clause-shaped
	failedLit       Lit     // Assumption found falsified, or -1
	failed          []Lit   // Failed assumptions, computed by failing()

	trimmer *Trimmer
}

// New makes a solver, given a problem.
func New(problem *Problem) *Solver {
	nbVars := problem.NbVars
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	s := &Solver{
		Logger:       logger,
		nbVars:       nbVars,
		status:       problem.Status,
		unsat:        problem.Status == Unsat,
		model:        make(Model, nbVars),
		activity:     make([]float64, nbVars),
		polarity:     make([]bool, nbVars),
		reason:       make([]*Clause, nbVars),
		trailPos:     make([]int, nbVars),
		seen:         make([]bool, nbVars),
		varInc:       1.0,
		clauseInc:    1.0,
		varDecay:     defaultVarDecay,
		failedLit:    -1,
		initialUnits: problem.Units,
	}
	s.initWatcherList(problem.Clauses)
	s.order = newVarOrder(s.activity)
	return s
}

// NbVars returns the number of variables of the problem.
func (s *Solver) NbVars() int { return s.nbVars }

// level returns the current decision level. Level 1 is the root.
func (s *Solver) level() decLevel {
	return decLevel(len(s.levels) + 1)
}

// litStatus returns whether the literal is made true (Sat) or false (Unsat) by the
// current bindings, or if it is unbounded (Indet).
func (s *Solver) litStatus(l Lit) Status {
	assign := s.model[l.Var()]
	if assign == 0 {
		return Indet
	}
	if assign > 0 == l.IsPositive() {
		return Sat
	}
	return Unsat
}

func abs(val decLevel) decLevel {
	if val < 0 {
		return -val
	}
	return val
}

// If l is negative, -lvl is returned. Else, lvl is returned.
func lvlToSignedLvl(l Lit, lvl decLevel) decLevel {
	if l.IsPositive() {
		return lvl
	}
	return -lvl
}

// assign makes l true at the current level, with the given reason clause.
// The reason, if any, must have l as its first literal.
func (s *Solver) assign(l Lit, reason *Clause) {
	v := l.Var()
	s.model[v] = lvlToSignedLvl(l, s.level())
	s.trailPos[v] = len(s.trail)
	if r := s.reason[v]; r != nil && r != reason {
		r.unlock()
	}
	s.reason[v] = reason
	if reason != nil {
		reason.lock()
	}
	if len(s.levels) == 0 {
		s.nbFixed++
	}
	s.trail = append(s.trail, l)
}

// unassign frees the variable of l and gives it back to the decision queue.
func (s *Solver) unassign(l Lit) {
	v := l.Var()
	s.model[v] = 0
	if r := s.reason[v]; r != nil {
		r.unlock()
		s.reason[v] = nil
	}
	s.polarity[v] = l.IsPositive()
	s.order.push(v)
}

// pushDecision opens a new decision level and assigns l there.
func (s *Solver) pushDecision(l Lit) {
	s.levels = append(s.levels, len(s.trail))
	s.Stats.NbDecisions++
	s.assign(l, nil)
}

// backtrack reverts all assignments made at levels strictly greater than lvl.
func (s *Solver) backtrack(lvl decLevel) {
	for len(s.trail) > 0 {
		l := s.trail[len(s.trail)-1]
		if abs(s.model[l.Var()]) <= lvl {
			break
		}
		s.unassign(l)
		s.trail = s.trail[:len(s.trail)-1]
	}
	if int(lvl)-1 < len(s.levels) {
		s.levels = s.levels[:lvl-1]
	}
	if s.propagated > len(s.trail) {
		s.propagated = len(s.trail)
	}
	s.assumptionIdx = 0
}

func (s *Solver) varDecayActivity() {
	s.varInc *= 1 / s.varDecay
}

func (s *Solver) varBumpActivity(v Var) {
	s.activity[v] += s.varInc
	if s.activity[v] > 1e100 { // Rescaling is needed to avoid overflowing
		for i := range s.activity {
			s.activity[i] *= 1e-100
		}
		s.varInc *= 1e-100
	}
	s.order.bump(v)
}

// Decays each clause's activity
func (s *Solver) clauseDecayActivity() {
	s.clauseInc *= 1 / clauseDecay
}

// Bumps the given clause's activity.
func (s *Solver) clauseBumpActivity(c *Clause) {
	if c.Learned() {
		c.activity += s.clauseInc
		if c.activity > 1e30 { // Rescale to avoid overflow
			for _, c2 := range s.wl.learned {
				c2.activity *= 1e-30
			}
			s.clauseInc *= 1e-30
		}
	}
}

// constraintStatus evaluates the extra constraint under the current bindings.
func (s *Solver) constraintStatus() Status {
	st := Unsat
	for _, l := range s.constraint {
		switch s.litStatus(l) {
		case Sat:
			return Sat
		case Indet:
			st = Indet
		}
	}
	return st
}

// Chooses an unbound literal to be tested, or -1
// if all the variables are already bound.
// When an extra constraint is not satisfied yet, one of its unbound literals
// is decided first so that any model found satisfies it.
func (s *Solver) chooseLit() Lit {
	if s.constraint != nil && s.constraintStatus() != Sat {
		for _, l := range s.constraint {
			if s.litStatus(l) == Indet {
				return l
			}
		}
	}
	v := Var(-1)
	for v == -1 && !s.order.empty() {
		if v2 := s.order.pop(); s.model[v2] == 0 { // Ignore already bound vars
			v = v2
		}
	}
	if v == -1 {
		return Lit(-1)
	}
	return v.SignedLit(!s.polarity[v])
}

func (s *Solver) rebuildOrderHeap() {
	vars := make([]Var, 0, s.nbVars)
	for v := 0; v < s.nbVars; v++ {
		if s.model[v] == 0 {
			vars = append(vars, Var(v))
		}
	}
	s.order.rebuild(vars)
}

// enqueueUnit assigns the given literal at root level, with a unit reason
// clause provided by the proof log when one is attached.
func (s *Solver) enqueueUnit(u Lit, original bool) {
	if s.trimmer != nil {
		s.trimmer.addDerivedUnitClause(u, original)
	}
	s.assign(u, s.reason[u.Var()])
}

// enqueueInitialUnits feeds the problem's unit clauses to the solver, routing
// contradictions through the proof log. Returns false on UNSAT.
func (s *Solver) enqueueInitialUnits() bool {
	for _, u := range s.initialUnits {
		switch s.litStatus(u) {
		case Sat:
			continue
		case Unsat:
			if s.trimmer != nil {
				s.trimmer.addFalsifiedOriginalClause([]Lit{u}, false)
			}
			s.unsat = true
			s.status = Unsat
			return false
		default:
			s.enqueueUnit(u, true)
			if confl := s.propagate(false); confl != nil {
				s.setUnsat(confl)
				return false
			}
		}
	}
	return true
}

// Sets the global unsat status and notifies the proof log of the final conflict.
func (s *Solver) setUnsat(confl *Clause) Status {
	s.conflict = confl
	s.unsat = true
	s.status = Unsat
	if s.trimmer != nil {
		s.trimmer.addDerivedEmptyClause()
	}
	return Unsat
}

func (s *Solver) setSat() Status {
	s.lastModel = make(Model, len(s.model))
	copy(s.lastModel, s.model)
	s.status = Sat
	return Sat
}

// failAssumptionLit records that assumption a was found falsified.
func (s *Solver) failAssumptionLit(a Lit) Status {
	s.failedLit = a
	s.failedCause = nil
	s.markedFailed = false
	s.status = Unsat
	return Unsat
}

// failAssumptionConflict records a conflict met while only assumption
// decisions were on the trail.
func (s *Solver) failAssumptionConflict(confl *Clause) Status {
	s.failedLit = -1
	s.failedCause = confl
	s.markedFailed = false
	s.status = Unsat
	return Unsat
}

// onlyAssumptionDecisions is true iff every current decision is an assumption.
func (s *Solver) onlyAssumptionDecisions() bool {
	for _, mark := range s.levels {
		if s.assumed == nil || !s.assumed[s.trail[mark].Var()] {
			return false
		}
	}
	return true
}

// search assigns literals and propagates until the problem is solved or a
// restart is needed, in which case Indet is returned.
func (s *Solver) search() Status {
	for {
		if confl := s.propagate(false); confl != nil {
			if s.level() == 1 {
				return s.setUnsat(confl)
			}
			if s.onlyAssumptionDecisions() {
				return s.failAssumptionConflict(confl)
			}
			s.Stats.NbConflicts++
			if s.Stats.NbConflicts%5000 == 0 && s.varDecay < 0.95 {
				s.varDecay += 0.01
			}
			s.lbdStats.addConflict(len(s.trail))
			learnt, unit := s.learnClause(confl, s.level())
			s.conflict = nil
			if learnt == nil { // Unit clause was learned: this lit is known for sure
				s.Stats.NbUnitLearned++
				s.lbdStats.addLbd(1)
				s.backtrack(1)
				s.enqueueUnit(unit, false)
				if confl = s.propagate(false); confl != nil { // Top-level conflict
					return s.setUnsat(confl)
				}
				s.rebuildOrderHeap()
				continue
			}
			s.Stats.NbLearned++
			s.lbdStats.addLbd(learnt.lbd())
			btLevel := abs(s.model[learnt.Get(1).Var()])
			s.backtrack(btLevel)
			s.addLearned(learnt)
			s.assign(learnt.First(), learnt)
			continue
		}
		if s.constraint != nil && s.constraintStatus() == Unsat {
			if s.level() == 1 || s.onlyAssumptionDecisions() {
				s.unsatConstraint = true
				s.markedFailed = false
				s.status = Unsat
				return Unsat
			}
			// The constraint cannot be analyzed as a regular conflict:
			// re-decide below the last decision.
			s.backtrack(s.level() - 1)
			continue
		}
		if s.lbdStats.mustRestart() {
			s.lbdStats.clear()
			s.backtrack(1)
			return Indet
		}
		if s.Stats.NbConflicts >= s.wl.idxReduce*s.wl.nbMax {
			s.wl.idxReduce = s.Stats.NbConflicts/s.wl.nbMax + 1
			s.reduceLearned()
			s.bumpNbMax()
		}
		if placed, st := s.placeAssumption(); st != Indet {
			return st
		} else if placed {
			continue
		}
		lit := s.chooseLit()
		if lit == -1 {
			return s.setSat()
		}
		s.pushDecision(lit)
	}
}

// placeAssumption places the next pending assumption as a decision, if any.
// Returns Unsat if an assumption is already falsified.
func (s *Solver) placeAssumption() (placed bool, st Status) {
	for s.assumptionIdx < len(s.assumptions) {
		a := s.assumptions[s.assumptionIdx]
		switch s.litStatus(a) {
		case Sat:
			s.assumptionIdx++
		case Unsat:
			return false, s.failAssumptionLit(a)
		default:
			s.assumptionIdx++
			s.pushDecision(a)
			return true, Indet
		}
	}
	return false, Indet
}

// Solve solves the problem associated with the solver and returns the appropriate status.
func (s *Solver) Solve() Status {
	if s.unsat {
		s.status = Unsat
		return Unsat
	}
	if s.Verbose {
		s.Logger.SetLevel(logrus.DebugLevel)
	}
	s.backtrack(1)
	s.status = Indet
	s.conflict = nil
	s.unsatConstraint = false
	s.markedFailed = false
	s.failedCause = nil
	s.failedLit = -1
	s.failed = nil
	if !s.enqueueInitialUnits() {
		return s.status
	}
	for s.status == Indet {
		if st := s.search(); st == Indet {
			s.Stats.NbRestarts++
			s.rebuildOrderHeap()
		}
	}
	s.Logger.WithFields(logrus.Fields{
		"status":    s.status.String(),
		"conflicts": s.Stats.NbConflicts,
		"restarts":  s.Stats.NbRestarts,
		"learned":   s.Stats.NbLearned,
	}).Debug("solve finished")
	return s.status
}

// AddUnit adds an original unit clause to the problem. It can be called
// between solve or trim calls; the new unit is assigned and propagated
// immediately, which may make the problem unsatisfiable on the spot.
func (s *Solver) AddUnit(l Lit) {
	s.backtrack(1)
	s.initialUnits = append(s.initialUnits, l)
	switch s.litStatus(l) {
	case Sat:
	case Unsat:
		if s.trimmer != nil && s.trimmer.finalConflict == nil {
			s.trimmer.addFalsifiedOriginalClause([]Lit{l}, false)
		}
		s.unsat = true
		s.status = Unsat
	default:
		s.reason[l.Var()] = nil // drop any reason left behind by trail undoing
		s.enqueueUnit(l, true)
		if confl := s.propagate(false); confl != nil {
			if s.trimmer != nil && s.trimmer.finalConflict != nil {
				// A previous refutation is still recorded and stays valid.
				s.conflict = confl
				s.unsat = true
				s.status = Unsat
			} else {
				s.setUnsat(confl)
			}
		}
	}
}

// Assume sets the assumptions for the next call to Solve.
func (s *Solver) Assume(lits []Lit) {
	s.backtrack(1)
	s.assumptions = make([]Lit, len(lits))
	copy(s.assumptions, lits)
	s.assumed = make([]bool, s.nbVars)
	for _, l := range lits {
		s.assumed[l.Var()] = true
	}
	s.assumptionIdx = 0
	s.status = Indet
}

// Constrain sets the extra disjunction that must be satisfied by the next
// call to Solve. An empty slice removes the constraint.
func (s *Solver) Constrain(lits []Lit) {
	s.backtrack(1)
	if len(lits) == 0 {
		s.constraint = nil
	} else {
		s.constraint = make([]Lit, len(lits))
		copy(s.constraint, lits)
	}
	s.unsatConstraint = false
	s.status = Indet
}

// failing computes the set of failed assumptions (or the constraint
// falsification antecedents) and notifies the proof log. It runs at most once
// per solve.
func (s *Solver) failing() {
	if s.markedFailed {
		return
	}
	s.markedFailed = true
	if s.unsatConstraint {
		if s.trimmer != nil {
			for _, l := range s.constraint {
				s.trimmer.addFailingAssumption([]Lit{l.Negation()})
			}
		}
		return
	}
	s.failed = s.analyzeFinal()
	if s.trimmer != nil && len(s.failed) > 0 {
		cls := make([]Lit, len(s.failed))
		for i, a := range s.failed {
			cls[i] = a.Negation()
		}
		s.trimmer.addFailingAssumption(cls)
	}
}

// analyzeFinal walks the reason chains behind the failure and collects the
// assumptions involved in it.
func (s *Solver) analyzeFinal() []Lit {
	var failed []Lit
	nbSeen := 0
	markVar := func(l Lit) {
		v := l.Var()
		if abs(s.model[v]) > 1 && !s.seen[v] {
			s.seen[v] = true
			nbSeen++
		}
	}
	if s.failedCause != nil {
		for i := 0; i < s.failedCause.Len(); i++ {
			markVar(s.failedCause.Get(i))
		}
	} else if s.failedLit != -1 {
		failed = append(failed, s.failedLit)
		markVar(s.failedLit)
	}
	if len(s.levels) > 0 {
		for i := len(s.trail) - 1; i >= s.levels[0] && nbSeen > 0; i-- {
			l := s.trail[i]
			v := l.Var()
			if !s.seen[v] {
				continue
			}
			s.seen[v] = false
			nbSeen--
			if r := s.reason[v]; r != nil {
				for j := 1; j < r.Len(); j++ {
					markVar(r.Get(j))
				}
			} else if s.assumed != nil && s.assumed[v] {
				failed = append(failed, l)
			}
		}
	}
	if nbSeen > 0 {
		for i := range s.seen {
			s.seen[i] = false
		}
	}
	return failed
}

// FailedAssumptions returns the subset of assumptions responsible for the
// problem being unsatisfiable under assumptions, in external notation.
func (s *Solver) FailedAssumptions() []int {
	if s.status != Unsat || s.unsat {
		return nil
	}
	s.failing()
	res := make([]int, len(s.failed))
	for i, l := range s.failed {
		res[i] = int(l.Int())
	}
	return res
}

// report emits a one-character progress notice, in the host solver's
// traditional terse style.
func (s *Solver) report(phase byte) {
	s.Logger.WithFields(logrus.Fields{
		"phase": string(phase),
		"trail": len(s.trail),
	}).Debug("trim progress")
}

// Model returns a slice that associates, to each variable, its binding.
// If s's status is not Sat, the method will panic.
func (s *Solver) Model() []bool {
	if s.status != Sat || s.lastModel == nil {
		panic("cannot call Model() from a non-Sat solver")
	}
	res := make([]bool, s.nbVars)
	for i, lvl := range s.lastModel {
		res[i] = lvl > 0
	}
	return res
}

// OutputModel outputs the model for the problem on stdout.
func (s *Solver) OutputModel() {
	if s.status == Sat || s.lastModel != nil {
		fmt.Printf("s SATISFIABLE\nv ")
		for i, val := range s.lastModel {
			if val < 0 {
				fmt.Printf("%d ", -i-1)
			} else {
				fmt.Printf("%d ", i+1)
			}
		}
		fmt.Printf("\n")
	} else if s.status == Unsat {
		fmt.Printf("s UNSATISFIABLE\n")
	} else {
		fmt.Printf("s INDETERMINATE\n")
	}
}
