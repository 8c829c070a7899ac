package shell

import (
	"sync"
	"testing"

	"github.com/nerrad567/mqtt-cli/internal/session"
)

func newSession(clientID, host string) *session.Session {
	return &session.Session{Identity: session.Identity{ClientID: clientID, Host: host}, Port: 1883}
}

func TestContext_SetActiveAndClear(t *testing.T) {
	c := NewContext()
	if c.Active() != nil {
		t.Fatal("new Context should be empty")
	}

	s := newSession("dev1", "broker.local")
	c.SetActive(s)
	if c.Active() != s {
		t.Fatal("Active() should return the session set")
	}

	if c.ClearIfMatches(session.Identity{ClientID: "dev1", Host: "other"}) {
		t.Error("ClearIfMatches() with a different host should not clear")
	}
	if c.ClearIfMatches(session.Identity{ClientID: "dev2", Host: "broker.local"}) {
		t.Error("ClearIfMatches() with a different client should not clear")
	}
	if c.Active() != s {
		t.Fatal("non-matching clear evicted the active session")
	}

	if !c.ClearIfMatches(s.Identity) {
		t.Error("ClearIfMatches() with the active identity should clear")
	}
	if c.Active() != nil {
		t.Error("Active() should be nil after clear")
	}
	if c.ClearIfMatches(s.Identity) {
		t.Error("ClearIfMatches() on an empty Context should report false")
	}
}

func TestContext_StaleClearKeepsNewerSession(t *testing.T) {
	c := NewContext()
	old := newSession("old", "broker.local")
	newer := newSession("new", "broker.local")

	c.SetActive(old)
	c.SetActive(newer)

	if c.ClearIfMatches(old.Identity) {
		t.Error("clear for the superseded identity should be a no-op")
	}
	if c.Active() != newer {
		t.Error("newer session was evicted")
	}
}

// TestContext_ClearMatchesIdentityNotPointer checks that a reconnect with
// the same identity is treated as the same context.
func TestContext_ClearMatchesIdentityNotPointer(t *testing.T) {
	c := NewContext()
	c.SetActive(newSession("dev1", "broker.local"))

	if !c.ClearIfMatches(newSession("dev1", "broker.local").Identity) {
		t.Error("equal identities should match")
	}
}

func TestContext_Prompt(t *testing.T) {
	c := NewContext()
	if got := c.Prompt(); got != DefaultPrompt {
		t.Errorf("Prompt() = %q, want %q", got, DefaultPrompt)
	}

	c.SetActive(newSession("dev1", "broker.local"))
	if got := c.Prompt(); got != "dev1@broker.local> " {
		t.Errorf("Prompt() = %q", got)
	}
}

func TestContext_Concurrent(t *testing.T) {
	c := NewContext()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		s := newSession("dev", "host")
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.SetActive(s)
				_ = c.Prompt()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				c.ClearIfMatches(s.Identity)
			}
		}()
	}
	wg.Wait()

	if s := c.Active(); s != nil && s.Identity.ClientID != "dev" {
		t.Errorf("Active() = %v", s)
	}
}
