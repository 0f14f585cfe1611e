package lifecycle

import (
	"strconv"
	"strings"
	"time"
)

// Manager holds the active token and the ordered passive list.
//
// It has no notion of "now" beyond what callers pass in and performs no I/O.
// Manager is not safe for concurrent use; Controller serializes access.
type Manager struct {
	active  *Info
	passive []Info
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// NewManagerFromSnapshot rebuilds a Manager from persisted state.
func NewManagerFromSnapshot(s Snapshot) *Manager {
	m := &Manager{passive: append([]Info(nil), s.Passive...)}
	if s.Active != nil {
		a := *s.Active
		m.active = &a
	}
	return m
}

// SetActive installs next as the active token. The previous active token, if
// any, is appended to the passive list. Installing the token that is already
// active is a no-op so the passive list never gains a duplicate.
func (m *Manager) SetActive(next Info) {
	if m.active != nil {
		if m.active.token == next.token {
			return
		}
		m.passive = append(m.passive, *m.active)
	}
	m.active = &next
}

// RemoveExpired drops every passive token expired at now and returns how many
// were removed. The active token is never touched: an expired active token is a
// rotation trigger, not a deletion trigger.
func (m *Manager) RemoveExpired(now time.Time) int {
	kept := m.passive[:0]
	removed := 0
	for _, p := range m.passive {
		if p.IsExpired(now) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	// Clear the tail so dropped tokens are not retained by the backing array.
	for i := len(kept); i < len(m.passive); i++ {
		m.passive[i] = Info{}
	}
	m.passive = kept
	return removed
}

func (m *Manager) HasActive() bool { return m.active != nil }

// Active returns the active token, if any.
func (m *Manager) Active() (Info, bool) {
	if m.active == nil {
		return Info{}, false
	}
	return *m.active, true
}

// Passive returns a copy of the passive list, oldest first.
func (m *Manager) Passive() []Info {
	return append([]Info(nil), m.passive...)
}

// ActiveExpired reports whether an active token exists and is expired at now.
func (m *Manager) ActiveExpired(now time.Time) bool {
	return m.active != nil && m.active.IsExpired(now)
}

func (m *Manager) PassiveCount() int { return len(m.passive) }

// TotalCount returns active + passive.
func (m *Manager) TotalCount() int {
	n := len(m.passive)
	if m.active != nil {
		n++
	}
	return n
}

// Snapshot returns a copy of the current state for persistence.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{Passive: m.Passive()}
	if m.active != nil {
		a := *m.active
		s.Active = &a
	}
	return s
}

// Reset drops all tokens.
func (m *Manager) Reset() {
	m.active = nil
	m.passive = nil
}

// Summary renders the state for diagnostics. Tokens are identified by their
// timestamps only.
func (m *Manager) Summary() string {
	return summarize(m.active, m.passive)
}

func summarize(active *Info, passive []Info) string {
	var b strings.Builder
	b.WriteString("Active: ")
	if active != nil {
		b.WriteString(active.describe())
	} else {
		b.WriteString("none")
	}
	b.WriteString(", Passive: ")
	b.WriteString(strconv.Itoa(len(passive)))
	b.WriteString(" tokens")
	if len(passive) > 0 {
		b.WriteString(" [")
		for i, p := range passive {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.describe())
		}
		b.WriteString("]")
	}
	return b.String()
}
