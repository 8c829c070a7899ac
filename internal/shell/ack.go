package shell

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// ResumePrompt is printed when the active session is lost.
const ResumePrompt = "Press ENTER to resume: "

// LineAck is the Acknowledger used by the REPL. A request is answered by
// the next line the REPL reads.
type LineAck struct {
	out io.Writer

	mu      sync.Mutex
	waiters []chan struct{}
	stopped bool
}

// NewLineAck creates a LineAck that prints its prompt to out.
func NewLineAck(out io.Writer) *LineAck {
	return &LineAck{out: out}
}

// Request prints ResumePrompt and returns a function that blocks until the
// REPL reads a line, the REPL stops, or ctx is done.
func (a *LineAck) Request(ctx context.Context) func() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopped {
		return func() {}
	}

	fmt.Fprint(a.out, ResumePrompt)

	ch := make(chan struct{})
	a.waiters = append(a.waiters, ch)
	return func() {
		select {
		case <-ch:
		case <-ctx.Done():
		}
	}
}

// Resume answers all outstanding requests and reports how many there were.
func (a *LineAck) Resume() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.release()
}

// Stop answers all outstanding requests; later requests return at once.
func (a *LineAck) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	a.release()
}

func (a *LineAck) release() int {
	n := len(a.waiters)
	for _, ch := range a.waiters {
		close(ch)
	}
	a.waiters = nil
	return n
}
