// Package clock supplies the current instant and the calendar-day key used to
// partition quota and chat-log state.
package clock

import (
	"sync"
	"time"

	"github.com/iamvkosarev/wellness-bot/internal/model"
)

type Clock interface {
	Now() time.Time
	Today() model.DayKey
}

// System reads the wall clock and derives day keys in a fixed location.
type System struct {
	loc *time.Location
}

func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

// LoadSystem resolves an IANA timezone name. An empty name means UTC.
func LoadSystem(timezone string) (*System, error) {
	if timezone == "" {
		return NewSystem(time.UTC), nil
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, err
	}
	return NewSystem(loc), nil
}

func (s *System) Now() time.Time {
	return time.Now().In(s.loc)
}

func (s *System) Today() model.DayKey {
	return model.NewDayKey(s.Now())
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

func NewManual(now time.Time) *Manual {
	return &Manual{now: now}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Today() model.DayKey {
	return model.NewDayKey(m.Now())
}

func (m *Manual) Set(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}
