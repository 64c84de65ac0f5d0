package solver

import "fmt"

// A Clause is a list of Lit, together with the bookkeeping the solver and the
// proof trimming engine need: learning flags, garbage/move lifecycle flags and
// the proof footer linking the clause to its latest proof log entry.
type Clause struct {
	lits []Lit
	// lbdValue's bits are as follow:
	// leftmost bit: learned (redundant) flag.
	// second bit: locked flag (set while the clause is a reason).
	// last 30 bits: LBD value.
	lbdValue uint32
	activity float32
	garbage  bool    // Marked for collection; accounting in bridge.go
	moved    bool    // Relocated by database compaction
	copy     *Clause // Forwarding pointer, valid iff moved
	core     bool    // Participates in the refutation
	lemma    bool    // Derived lemma, as opposed to an original clause
	pidx     uint32  // 1-based index of the latest proof entry for this clause; 0 if none
}

const (
	learnedMask uint32 = 1 << 31
	lockedMask  uint32 = 1 << 30
	bothMasks   uint32 = learnedMask | lockedMask
)

// NewClause returns a clause whose lits are given as an argument.
func NewClause(lits []Lit) *Clause {
	return &Clause{lits: lits}
}

// NewLearnedClause returns a new clause marked as learned.
func NewLearnedClause(lits []Lit) *Clause {
	return &Clause{lits: lits, lbdValue: learnedMask}
}

// Learned returns true iff c was a learned (redundant) clause.
func (c *Clause) Learned() bool {
	return c.lbdValue&learnedMask == learnedMask
}

func (c *Clause) lock() {
	c.lbdValue = c.lbdValue | lockedMask
}

func (c *Clause) unlock() {
	c.lbdValue = c.lbdValue & ^lockedMask
}

func (c *Clause) lbd() int {
	return int(c.lbdValue & ^bothMasks)
}

func (c *Clause) setLbd(lbd int) {
	c.lbdValue = (c.lbdValue & bothMasks) | uint32(lbd)
}

func (c *Clause) incLbd() {
	c.lbdValue++
}

func (c *Clause) isLocked() bool {
	return c.lbdValue&bothMasks == bothMasks
}

// Len returns the nb of lits in the clause.
func (c *Clause) Len() int {
	return len(c.lits)
}

// First returns the first lit from the clause.
func (c *Clause) First() Lit {
	return c.lits[0]
}

// Second returns the second lit from the clause.
func (c *Clause) Second() Lit {
	return c.lits[1]
}

// Get returns the ith literal from the clause.
func (c *Clause) Get(i int) Lit {
	return c.lits[i]
}

// Set sets the ith literal of the clause.
func (c *Clause) Set(i int, l Lit) {
	c.lits[i] = l
}

// swap swaps the ith and jth lits from the clause.
func (c *Clause) swap(i, j int) {
	c.lits[i], c.lits[j] = c.lits[j], c.lits[i]
}

// Shrink reduces the length of the clauses, by removing all lits
// starting from position newLen.
func (c *Clause) Shrink(newLen int) {
	c.lits = c.lits[:newLen]
}

// Lits returns a copy of the clause's literals.
func (c *Clause) Lits() []Lit {
	lits := make([]Lit, len(c.lits))
	copy(lits, c.lits)
	return lits
}

// CNF returns a DIMACS CNF representation of the clause.
func (c *Clause) CNF() string {
	res := ""
	for _, lit := range c.lits {
		res += fmt.Sprintf("%d ", lit.Int())
	}
	return fmt.Sprintf("%s0", res)
}
