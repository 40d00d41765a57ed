package market

import (
	"fmt"
	"time"
)

// Clock is a time of day at minute resolution, comparable across days.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var c Clock
	if _, err := fmt.Sscanf(s, "%d:%d", &c.Hour, &c.Minute); err != nil {
		return Clock{}, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return Clock{}, fmt.Errorf("clock %q out of range", s)
	}
	return c, nil
}

func (c Clock) Minutes() int { return c.Hour*60 + c.Minute }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Before reports whether c is strictly earlier in the day than other.
func (c Clock) Before(other Clock) bool { return c.Minutes() < other.Minutes() }

// AtOrAfter reports whether t's time of day is at or past c.
func (c Clock) AtOrAfter(t time.Time) bool { return minuteOfDay(t) >= c.Minutes() }

// Contains reports whether t's time of day lies in [c, end].
func (c Clock) Contains(t time.Time, end Clock) bool {
	m := minuteOfDay(t)
	return m >= c.Minutes() && m <= end.Minutes()
}

// UnmarshalYAML accepts the "HH:MM" form used in rule spec files.
func (c *Clock) UnmarshalYAML(unmarshal func(any) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseClock(raw)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Clock) MarshalYAML() (any, error) { return c.String(), nil }

func minuteOfDay(t time.Time) int { return t.Hour()*60 + t.Minute() }

// Session is one exchange trading session. Bars outside it are rejected by
// gap checking; the last bar at or before Close is the forced-exit bar.
type Session struct {
	Open  Clock
	Close Clock
}

// NSE is the National Stock Exchange cash session: 375 one-minute bars.
func NSE() Session {
	return Session{Open: Clock{9, 15}, Close: Clock{15, 30}}
}

// Minutes returns the number of minute bars a complete session carries.
func (s Session) Minutes() int { return s.Close.Minutes() - s.Open.Minutes() }

// Contains reports whether t's time of day falls inside the session.
func (s Session) Contains(t time.Time) bool {
	m := minuteOfDay(t)
	return m >= s.Open.Minutes() && m < s.Close.Minutes()
}
