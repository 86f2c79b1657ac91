package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed as minutes since midnight.
// The grid works in 30-minute marks; sessions are one hour.
type TimeOfDay int

const (
	SlotMinutes    = 30
	SessionMinutes = 60
	MinutesPerDay  = 24 * 60
)

// ParseTimeOfDay accepts HH:MM or HH:MM:SS. Seconds are dropped; the
// scheduling rules compare times at minute precision.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

// String renders HH:MM, the form used on the wire and in schedules.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// Clock renders HH:MM:SS for SQL TIME parameters.
func (t TimeOfDay) Clock() string {
	return fmt.Sprintf("%02d:%02d:00", t.Hour(), t.Minute())
}

func (t TimeOfDay) Add(minutes int) TimeOfDay {
	return t + TimeOfDay(minutes)
}

func (t TimeOfDay) Before(u TimeOfDay) bool { return t < u }
func (t TimeOfDay) After(u TimeOfDay) bool  { return t > u }

// Valid reports whether t falls within a single day.
func (t TimeOfDay) Valid() bool { return t >= 0 && t < MinutesPerDay }

// OnGrid reports whether t lands on a half-hour mark.
func (t TimeOfDay) OnGrid() bool { return int(t)%SlotMinutes == 0 }

// AlignToGrid rounds t up to the next half-hour mark.
func (t TimeOfDay) AlignToGrid() TimeOfDay {
	if t.OnGrid() {
		return t
	}
	return TimeOfDay((int(t)/SlotMinutes + 1) * SlotMinutes)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// MinutesOfDay extracts the TimeOfDay from a timestamp.
func MinutesOfDay(ts time.Time) TimeOfDay {
	return TimeOfDay(ts.Hour()*60 + ts.Minute())
}

// DateOnly truncates ts to midnight UTC. Dates are compared and stored
// day-granular throughout the scheduler.
func DateOnly(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}

// DateString renders the canonical YYYY-MM-DD form used as schedule
// override keys and SQL DATE parameters.
func DateString(ts time.Time) string {
	return ts.Format("2006-01-02")
}

// ParseDate parses YYYY-MM-DD into a midnight-UTC date.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(s), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}
