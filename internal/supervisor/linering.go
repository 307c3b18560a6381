package supervisor

import "sync"

// LineRing keeps the last lines of a process's output for failure logs.
type LineRing struct {
	mu    sync.Mutex
	lines []string
	head  int
	full  bool
}

func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{lines: make([]string, capacity)}
}

func (r *LineRing) Add(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines[r.head] = line
	r.head = (r.head + 1) % len(r.lines)
	if r.head == 0 {
		r.full = true
	}
}

// LastN returns up to n of the most recent lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ordered []string
	if r.full {
		ordered = append(ordered, r.lines[r.head:]...)
	}
	ordered = append(ordered, r.lines[:r.head]...)

	if n < 0 {
		n = 0
	}
	if len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}
