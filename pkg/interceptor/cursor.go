package interceptor

// State is the state of the entry phase recorded on a cursor.
type State int

const (
	// StateRunning means the entry phase has not finished.
	StateRunning State = iota
	// StateCompleted means every Before ran without skip or re-raise.
	StateCompleted
	// StateSkipped means an interceptor asked to skip the original body.
	StateSkipped
	// StateRethrown means an interceptor asked to re-raise to the caller.
	StateRethrown
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateSkipped:
		return "skipped"
	case StateRethrown:
		return "rethrown"
	default:
		return "unknown"
	}
}

// Cursor is a bidirectional position over one sealed chain.
//
// The entry phase moves it forward and the exit phase moves it backward, so
// exit only unwinds the interceptors whose Before actually ran. A cursor
// serves exactly one call and must never be reused.
type Cursor struct {
	chain []Interceptor
	// pos is the number of interceptors the exit phase has to unwind.
	pos   int
	state State
}

// NewCursor opens a cursor at the start of chain.
func NewCursor(chain []Interceptor) *Cursor {
	return &Cursor{chain: chain}
}

// Next returns the next interceptor for the entry phase.
func (c *Cursor) Next() (Interceptor, bool) {
	if c.pos >= len(c.chain) {
		return nil, false
	}
	ic := c.chain[c.pos]
	c.pos++
	return ic, true
}

// Prev returns the previous interceptor for the exit phase.
func (c *Cursor) Prev() (Interceptor, bool) {
	if c.pos <= 0 {
		return nil, false
	}
	c.pos--
	return c.chain[c.pos], true
}

// Back steps over the interceptor last returned by Next without visiting it,
// so that the exit phase does not unwind it.
func (c *Cursor) Back() {
	if c.pos > 0 {
		c.pos--
	}
}

// HasPrev reports whether the exit phase has interceptors left.
func (c *Cursor) HasPrev() bool { return c.pos > 0 }

// Position returns how many interceptors the exit phase would unwind.
func (c *Cursor) Position() int { return c.pos }

// Len returns the chain length.
func (c *Cursor) Len() int { return len(c.chain) }

// State returns the entry phase state.
func (c *Cursor) State() State { return c.state }
