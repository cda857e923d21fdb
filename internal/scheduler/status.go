package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/ibeckermayer/prayerkit/internal/logger"
	"github.com/ibeckermayer/prayerkit/internal/types"
)

// AgentState is the coarse state of one job class.
type AgentState string

const (
	StateDisabled AgentState = "disabled"
	StateIdle     AgentState = "idle"
	StateRunning  AgentState = "running"
)

// Status is the user-facing projection of one job class.
type Status struct {
	Class   types.JobClass `json:"class"`
	Active  bool           `json:"active"`
	Cadence int            `json:"cadence"`
	State   AgentState     `json:"state"`
	Running *Running       `json:"running,omitempty"`
	Next    *Slot          `json:"next,omitempty"`
	At      time.Time      `json:"at,omitempty"`
	Until   time.Duration  `json:"until,omitempty"`
	Text    string         `json:"text"`
}

// Next returns the earliest slot of class, today or tomorrow, that is
// still in the future at now and has not fired.
func (s *Scheduler) Next(class types.JobClass, now time.Time) (Slot, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextLocked(class, now.In(s.loc))
}

func (s *Scheduler) nextLocked(class types.JobClass, now time.Time) (Slot, time.Time, bool) {
	slots := Slots(s.table, class, s.cadence[class])
	for d := 0; d < 2; d++ {
		day := now.AddDate(0, 0, d)
		var (
			best   Slot
			bestAt time.Time
			found  bool
		)
		for _, slot := range slots {
			at := slot.On(day)
			if !at.After(now) || s.ledger.Has(day, slot) {
				continue
			}
			if !found || at.Before(bestAt) {
				best, bestAt, found = slot, at, true
			}
		}
		if found {
			return best, bestAt, true
		}
	}
	return Slot{}, time.Time{}, false
}

// Status projects the current state of class.
func (s *Scheduler) Status(class types.JobClass) Status {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(class, now)
}

func (s *Scheduler) statusLocked(class types.JobClass, now time.Time) Status {
	st := Status{
		Class:   class,
		Active:  s.active[class],
		Cadence: s.cadence[class],
	}

	switch {
	case s.running != nil && s.running.Class == class:
		r := *s.running
		st.State = StateRunning
		st.Running = &r
		st.Text = fmt.Sprintf("Running %s job for %s", class, strings.ToUpper(string(r.Locale)))
	case !st.Active:
		st.State = StateDisabled
		st.Text = "Disabled"
	default:
		st.State = StateIdle
		slot, at, ok := s.nextLocked(class, now)
		if !ok {
			st.Text = "Idle, nothing scheduled"
			break
		}
		st.Next = &slot
		st.At = at
		st.Until = at.Sub(now)
		st.Text = fmt.Sprintf("Next %s job: %s at %s (in %s)",
			class, strings.ToUpper(string(slot.Locale)), slot.Clock(), humanize(st.Until))
	}
	return st
}

// Statuses returns the status of every class.
func (s *Scheduler) Statuses() []Status {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(types.JobClasses))
	for _, class := range types.JobClasses {
		out = append(out, s.statusLocked(class, now))
	}
	return out
}

// refreshStatus recomputes every status and logs the ones whose text
// changed since the last refresh.
func (s *Scheduler) refreshStatus() {
	now := s.clock()
	s.mu.Lock()
	var changed []Status
	for _, class := range types.JobClasses {
		st := s.statusLocked(class, now)
		prev, seen := s.last[class]
		if !seen || prev.State != st.State || !sameSlot(prev.Next, st.Next) {
			changed = append(changed, st)
		}
		s.last[class] = st
	}
	s.mu.Unlock()

	for _, st := range changed {
		s.log.Infow(st.Text, logger.FieldClass, st.Class, "state", st.State)
	}
}

func sameSlot(a, b *Slot) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func humanize(d time.Duration) string {
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}
