package model

import "time"

// DayKey is the calendar-day partition for quota and chat-log buckets,
// formatted as YYYY-MM-DD.
type DayKey string

const DayKeyLayout = "2006-01-02"

func NewDayKey(t time.Time) DayKey {
	return DayKey(t.Format(DayKeyLayout))
}

func (d DayKey) String() string {
	return string(d)
}

func (d DayKey) Time() (time.Time, error) {
	return time.Parse(DayKeyLayout, string(d))
}

// QuotaRecord mirrors consumption for one (user, day). It does not enforce the
// limit by itself.
type QuotaRecord struct {
	UserID        string
	Day           DayKey
	MessagesCount int
	LastUpdate    time.Time
}
