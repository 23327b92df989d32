package frames

// Frame is the raw encoded content of one output image.
type Frame struct {
	Name string
	Data []byte
}

// Cycle iterates a snapshot forward then in reverse, forever.
type Cycle struct {
	seq     []Frame
	pos     int
	wrapped bool
}

// NewCycle builds the ping-pong sequence for frames. An empty snapshot yields
// an empty cycle.
func NewCycle(frames []Frame) *Cycle {
	seq := make([]Frame, 0, 2*len(frames))
	seq = append(seq, frames...)
	for i := len(frames) - 1; i >= 0; i-- {
		seq = append(seq, frames[i])
	}
	return &Cycle{seq: seq}
}

// Next returns the following frame, or false when the cycle is empty.
func (c *Cycle) Next() (Frame, bool) {
	if len(c.seq) == 0 {
		c.wrapped = false
		return Frame{}, false
	}
	frame := c.seq[c.pos]
	c.pos++
	c.wrapped = c.pos == len(c.seq)
	if c.wrapped {
		c.pos = 0
	}
	return frame, true
}

// Wrapped reports whether the last Next call returned the final frame of a pass.
func (c *Cycle) Wrapped() bool {
	return c.wrapped
}

// Len is the number of frames in one full pass (twice the snapshot size).
func (c *Cycle) Len() int {
	return len(c.seq)
}

// Position is the index of the frame the next call to Next returns.
func (c *Cycle) Position() int {
	return c.pos
}
