package shell

import (
	"sync"

	"github.com/nerrad567/mqtt-cli/internal/session"
)

// DefaultPrompt is shown when no session is active.
const DefaultPrompt = "mqtt> "

// Context holds the active session of the shell.
//
// It is written by the command goroutine (SetActive) and by disconnect
// handlers on protocol goroutines (ClearIfMatches). The conditional clear
// compares and clears under the same lock as SetActive, so a late clear for
// an old identity never evicts a session activated after it.
//
// The zero value is an empty Context ready for use.
type Context struct {
	mu     sync.Mutex
	active *session.Session
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{}
}

// SetActive replaces the active session. A nil session clears the slot.
func (c *Context) SetActive(s *session.Session) {
	c.mu.Lock()
	c.active = s
	c.mu.Unlock()
}

// Active returns the active session, or nil.
func (c *Context) Active() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// ClearIfMatches clears the slot if the active session has identity id and
// reports whether it did.
func (c *Context) ClearIfMatches(id session.Identity) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active == nil || c.active.Identity != id {
		return false
	}
	c.active = nil
	return true
}

// Prompt returns the REPL prompt for the current state.
func (c *Context) Prompt() string {
	s := c.Active()
	if s == nil {
		return DefaultPrompt
	}
	return s.Identity.String() + "> "
}
