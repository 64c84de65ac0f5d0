package solver

// varOrder is the decision ordering: a binary max-heap over unassigned
// variables, keyed by their activity. The trimmer flags variables whose
// reason clause belongs to the core when it undoes trail segments; flagged
// variables win activity ties when search picks its next decision. The
// decisions made while re-validating lemmas come from the lemma's negation
// and do not consult this order. A flag is consumed when its variable is
// popped.
type varOrder struct {
	activity  []float64 // The solver's activity slice, not a copy
	preferred []bool    // Vars currently supporting a core clause
	heap      []Var
	pos       []int // For each var, its index in heap, or -1 when absent
}

func newVarOrder(activity []float64) varOrder {
	o := varOrder{
		activity:  activity,
		preferred: make([]bool, len(activity)),
		heap:      make([]Var, 0, len(activity)),
		pos:       make([]int, len(activity)),
	}
	for v := range o.pos {
		o.pos[v] = -1
	}
	for v := 0; v < len(activity); v++ {
		o.push(Var(v))
	}
	return o
}

// better is the heap ordering: higher activity first, core-supporting
// variables winning ties.
func (o *varOrder) better(u, v Var) bool {
	if o.activity[u] != o.activity[v] {
		return o.activity[u] > o.activity[v]
	}
	return o.preferred[u] && !o.preferred[v]
}

func (o *varOrder) empty() bool { return len(o.heap) == 0 }

func (o *varOrder) has(v Var) bool { return o.pos[v] >= 0 }

// siftUp moves the var at index i toward the root until the heap property holds.
func (o *varOrder) siftUp(i int) {
	v := o.heap[i]
	for i > 0 {
		p := (i - 1) / 2
		if !o.better(v, o.heap[p]) {
			break
		}
		o.heap[i] = o.heap[p]
		o.pos[o.heap[i]] = i
		i = p
	}
	o.heap[i] = v
	o.pos[v] = i
}

// siftDown moves the var at index i toward the leaves until the heap property holds.
func (o *varOrder) siftDown(i int) {
	v := o.heap[i]
	for {
		c := 2*i + 1
		if c >= len(o.heap) {
			break
		}
		if c+1 < len(o.heap) && o.better(o.heap[c+1], o.heap[c]) {
			c++
		}
		if !o.better(o.heap[c], v) {
			break
		}
		o.heap[i] = o.heap[c]
		o.pos[o.heap[i]] = i
		i = c
	}
	o.heap[i] = v
	o.pos[v] = i
}

// push inserts v. Vars already in the order are left untouched.
func (o *varOrder) push(v Var) {
	if o.has(v) {
		return
	}
	o.pos[v] = len(o.heap)
	o.heap = append(o.heap, v)
	o.siftUp(o.pos[v])
}

// bump restores the heap property after v's activity increased.
func (o *varOrder) bump(v Var) {
	if o.has(v) {
		o.siftUp(o.pos[v])
	}
}

// prefer flags v as supporting a core clause and reorders accordingly.
func (o *varOrder) prefer(v Var) {
	if !o.preferred[v] {
		o.preferred[v] = true
		if o.has(v) {
			o.siftUp(o.pos[v])
		}
	}
}

// pop removes and returns the best variable, consuming its preference flag.
// Must not be called on an empty order.
func (o *varOrder) pop() Var {
	v := o.heap[0]
	last := len(o.heap) - 1
	o.heap[0] = o.heap[last]
	o.pos[o.heap[0]] = 0
	o.heap = o.heap[:last]
	o.pos[v] = -1
	o.preferred[v] = false
	if len(o.heap) > 1 {
		o.siftDown(0)
	}
	return v
}

// rebuild restarts the order from the given variables only.
func (o *varOrder) rebuild(vs []Var) {
	for _, v := range o.heap {
		o.pos[v] = -1
	}
	o.heap = o.heap[:0]
	for _, v := range vs {
		o.pos[v] = len(o.heap)
		o.heap = append(o.heap, v)
	}
	for i := len(o.heap)/2 - 1; i >= 0; i-- {
		o.siftDown(i)
	}
}
