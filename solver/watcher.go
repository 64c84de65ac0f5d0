package solver

import "sort"

// A watcherList is a structure used to store clauses and propagate unit
// literals efficiently. Each clause of size >= 2 watches its first two
// literals: the clause is registered in the lists associated to the negation
// of both, and is inspected whenever one of them becomes false. Propagation
// keeps the propagated literal in slot 0, so that a reason clause always
// starts with the literal it forced.
type watcherList struct {
	nbMax     int         // Max # of learned clauses at current moment
	idxReduce int         // # of calls to reduce + 1
	watches   [][]*Clause // For each literal, clauses watching its negation
	clauses   []*Clause   // Problem clauses, plus clauses allocated for proof trimming
	learned   []*Clause   // Learned clauses, candidates for reduction
}

// initWatcherList makes a new watcherList for the solver.
func (s *Solver) initWatcherList(clauses []*Clause) {
	s.wl = watcherList{
		nbMax:     initNbMaxClauses,
		idxReduce: 1,
		watches:   make([][]*Clause, s.nbVars*2),
		clauses:   clauses,
	}
	for _, c := range clauses {
		s.watchClause(c)
		s.cstats.irredundant++
		s.cstats.irrLits += c.Len()
	}
}

// bumpNbMax increases the max nb of clauses used.
// It is called after each reduction of the learned clauses.
func (s *Solver) bumpNbMax() {
	s.wl.nbMax += incrNbMaxClauses
}

// postponeNbMax increases the max nb of clauses used.
// It is typically called when too many good clauses were learned and a cleaning was expected.
func (s *Solver) postponeNbMax() {
	s.wl.nbMax += incrPostponeNbMax
}

// watchClause registers the first two literals of c in the watch lists.
func (s *Solver) watchClause(c *Clause) {
	if c.Len() < 2 {
		return
	}
	neg0 := c.First().Negation()
	neg1 := c.Second().Negation()
	s.wl.watches[neg0] = append(s.wl.watches[neg0], c)
	s.wl.watches[neg1] = append(s.wl.watches[neg1], c)
}

// unwatchClause removes c from the watch lists of its two watched literals.
func (s *Solver) unwatchClause(c *Clause) {
	for i := 0; i < 2; i++ {
		neg := c.Get(i).Negation()
		s.wl.watches[neg] = removeFrom(s.wl.watches[neg], c)
	}
}

// flushWatches empties all watch lists and reconnects every live clause.
func (s *Solver) flushWatches() {
	for i := range s.wl.watches {
		s.wl.watches[i] = s.wl.watches[i][:0]
	}
	for _, c := range s.wl.clauses {
		if !c.garbage {
			s.watchClause(c)
		}
	}
	for _, c := range s.wl.learned {
		if !c.garbage {
			s.watchClause(c)
		}
	}
}

// Removes the first occurrence of c from lst.
// The element *must* be present into lst.
func removeFrom(lst []*Clause, c *Clause) []*Clause {
	i := 0
	for lst[i] != c {
		i++
	}
	last := len(lst) - 1
	lst[i] = lst[last]
	return lst[:last]
}

// preferCoreWatches reorders the watch list of lit so that clauses already
// marked core come first and are thus tried first during propagation.
func (s *Solver) preferCoreWatches(lit Lit) {
	ws := s.wl.watches[lit]
	l, h := 0, len(ws)-1
	for l < h {
		if !ws[h].core {
			h--
			continue
		}
		ws[l], ws[h] = ws[h], ws[l]
		l++
	}
}

// propagate processes all trail literals that have not been propagated yet and
// returns the first conflicting clause found, or nil. The conflict, if any, is
// also stored in s.conflict.
func (s *Solver) propagate(preferCore bool) *Clause {
	for s.propagated < len(s.trail) {
		lit := s.trail[s.propagated]
		s.propagated++
		if confl := s.propagateLit(lit, preferCore); confl != nil {
			s.conflict = confl
			return confl
		}
	}
	return nil
}

// propagateLit inspects all clauses watching the negation of lit, which was
// just assigned true. Unit clauses assign their remaining literal, keeping it
// in slot 0 so the clause is a well-formed reason.
func (s *Solver) propagateLit(lit Lit, preferCore bool) *Clause {
	if preferCore {
		s.preferCoreWatches(lit)
	}
	ws := s.wl.watches[lit]
	falsified := lit.Negation()
	j := 0
	for i := 0; i < len(ws); i++ {
		c := ws[i]
		if c.First() == falsified {
			c.swap(0, 1)
		}
		w0 := c.First()
		if s.litStatus(w0) == Sat {
			ws[j] = c
			j++
			continue
		}
		moved := false
		for k := 2; k < c.Len(); k++ {
			if s.litStatus(c.Get(k)) != Unsat {
				c.swap(1, k)
				neg := c.Second().Negation()
				s.wl.watches[neg] = append(s.wl.watches[neg], c)
				moved = true
				break
			}
		}
		if moved {
			continue
		}
		ws[j] = c
		j++
		if s.litStatus(w0) == Unsat { // Conflict
			for i++; i < len(ws); i++ {
				ws[j] = ws[i]
				j++
			}
			s.wl.watches[lit] = ws[:j]
			return c
		}
		s.assign(w0, c)
	}
	s.wl.watches[lit] = ws[:j]
	return nil
}

// addLearned appends the learned clause to the database, watches it and
// notifies the proof log.
func (s *Solver) addLearned(c *Clause) {
	s.wl.learned = append(s.wl.learned, c)
	s.cstats.redundant++
	s.watchClause(c)
	s.clauseBumpActivity(c)
	if s.trimmer != nil {
		s.trimmer.addDerivedClause(c)
	}
}

// reduceLearned removes half of the learned clauses that are deemed useless.
// Locked clauses (reasons) and core-marked clauses are kept.
func (s *Solver) reduceLearned() {
	sort.Slice(s.wl.learned, func(i, j int) bool {
		lbdI, lbdJ := s.wl.learned[i].lbd(), s.wl.learned[j].lbd()
		return lbdI > lbdJ || (lbdI == lbdJ && s.wl.learned[i].activity < s.wl.learned[j].activity)
	})
	length := len(s.wl.learned) / 2
	if length > 0 && s.wl.learned[length-1].lbd() <= 3 { // Lots of good clauses, postpone reduction
		s.postponeNbMax()
	}
	for i := 0; i < length; i++ {
		c := s.wl.learned[i]
		if c.lbd() <= 2 || c.isLocked() || c.core {
			continue
		}
		s.Stats.NbDeleted++
		s.markGarbage(c)
		s.unwatchClause(c)
		if s.trimmer != nil {
			s.trimmer.deleteClause(c)
		}
	}
	s.collectGarbage()
	if s.Opts.Compact {
		s.compactDB()
	}
}

// collectGarbage removes garbage clauses from the database. Clauses still
// referenced from the proof log have their entries flipped to standalone
// literal copies first, so revival remains possible.
func (s *Solver) collectGarbage() {
	s.wl.learned = s.sweep(s.wl.learned)
	s.wl.clauses = s.sweep(s.wl.clauses)
}

func (s *Solver) sweep(lst []*Clause) []*Clause {
	j := 0
	for _, c := range lst {
		if !c.garbage {
			lst[j] = c
			j++
			continue
		}
		if s.trimmer != nil && c.pidx != 0 {
			s.trimmer.deallocateClause(c)
		}
	}
	return lst[:j]
}

// compactDB reallocates every live clause into fresh memory, leaving a
// forwarding pointer in the old one, then retargets reasons, watches and
// proof entries. reduceLearned calls it when the compact option is on.
func (s *Solver) compactDB() {
	relocate := func(lst []*Clause) {
		for i, c := range lst {
			c2 := &Clause{
				lbdValue: c.lbdValue,
				activity: c.activity,
				garbage:  c.garbage,
				core:     c.core,
				lemma:    c.lemma,
				pidx:     c.pidx,
				lits:     make([]Lit, c.Len()),
			}
			copy(c2.lits, c.lits)
			c.moved = true
			c.copy = c2
			lst[i] = c2
		}
	}
	relocate(s.wl.clauses)
	relocate(s.wl.learned)
	for v, r := range s.reason {
		if r != nil && r.moved {
			s.reason[v] = r.copy
		}
	}
	s.flushWatches()
	if s.trimmer != nil {
		s.trimmer.updateMovedCounterparts()
	}
}
