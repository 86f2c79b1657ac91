package model

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// DayHours is a branch's opening window for one weekday.
type DayHours struct {
	Open  TimeOfDay `json:"open"`
	Close TimeOfDay `json:"close"`
}

// WeekHours maps weekdays to opening windows. A nil entry (or an absent
// key in the JSON form) means the branch is closed that day.
//
// The JSON form uses lowercase weekday names, matching the branch
// records synced from the EMR:
//
//	{"monday":{"open":"06:00","close":"20:00"},...,"sunday":null}
type WeekHours map[time.Weekday]*DayHours

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func weekdayName(d time.Weekday) string {
	return strings.ToLower(d.String())
}

// For returns the opening window for the given weekday, or nil when
// the branch is closed that day.
func (w WeekHours) For(d time.Weekday) *DayHours {
	if w == nil {
		return nil
	}
	return w[d]
}

func (w WeekHours) MarshalJSON() ([]byte, error) {
	out := make(map[string]*DayHours, 7)
	for name, day := range weekdayNames {
		out[name] = w[day]
	}
	return json.Marshal(out)
}

func (w *WeekHours) UnmarshalJSON(b []byte) error {
	var raw map[string]*DayHours
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := make(WeekHours, len(raw))
	for name, hours := range raw {
		day, ok := weekdayNames[strings.ToLower(name)]
		if !ok {
			return fmt.Errorf("invalid weekday %q in opening hours", name)
		}
		parsed[day] = hours
	}
	*w = parsed
	return nil
}

var isoDateKey = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// AvailabilitySchedule is a staff member's availability: recurring
// weekday defaults plus date-specific overrides. An override, when
// present, fully supersedes the weekday default for that date. A
// present-but-empty override means unavailable all day, which is
// distinct from "no override, fall back to the recurring entry".
type AvailabilitySchedule struct {
	Recurring map[time.Weekday][]TimeOfDay
	Overrides map[string][]TimeOfDay
}

// TimesFor resolves the applicable start-time set for a date. The
// second return distinguishes "override present" from "recurring used",
// so that an empty override is honored as a full-day blackout.
func (s AvailabilitySchedule) TimesFor(date time.Time) ([]TimeOfDay, bool) {
	if times, ok := s.Overrides[DateString(date)]; ok {
		return times, true
	}
	return s.Recurring[date.Weekday()], false
}

// Includes reports whether the staff member is schedulable at the given
// date and time of day (minute precision).
func (s AvailabilitySchedule) Includes(date time.Time, t TimeOfDay) bool {
	times, _ := s.TimesFor(date)
	for _, candidate := range times {
		if candidate == t {
			return true
		}
	}
	return false
}

// PruneOverridesBefore drops override entries dated before cutoff.
// Returns the number of entries removed.
func (s *AvailabilitySchedule) PruneOverridesBefore(cutoff time.Time) int {
	removed := 0
	for key := range s.Overrides {
		d, err := ParseDate(key)
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			delete(s.Overrides, key)
			removed++
		}
	}
	return removed
}

// The JSON form is a single flat object whose keys are either weekday
// names or ISO dates, each mapping to a list of HH:MM start times.
// This is the blob format carried over from the EMR staff records:
//
//	{"monday":["09:00","09:30"],"2026-09-01":[]}

func (s AvailabilitySchedule) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string)
	for day, times := range s.Recurring {
		out[weekdayName(day)] = formatTimes(times)
	}
	for date, times := range s.Overrides {
		out[date] = formatTimes(times)
	}
	return json.Marshal(out)
}

func (s *AvailabilitySchedule) UnmarshalJSON(b []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	parsed := AvailabilitySchedule{
		Recurring: map[time.Weekday][]TimeOfDay{},
		Overrides: map[string][]TimeOfDay{},
	}
	for key, values := range raw {
		times := make([]TimeOfDay, 0, len(values))
		for _, v := range values {
			t, err := ParseTimeOfDay(v)
			if err != nil {
				return fmt.Errorf("schedule key %q: %w", key, err)
			}
			times = append(times, t)
		}
		sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

		if day, ok := weekdayNames[strings.ToLower(key)]; ok {
			parsed.Recurring[day] = times
			continue
		}
		if isoDateKey.MatchString(key) {
			parsed.Overrides[key] = times
			continue
		}
		return fmt.Errorf("invalid schedule key %q: want a weekday name or YYYY-MM-DD", key)
	}
	*s = parsed
	return nil
}

func formatTimes(times []TimeOfDay) []string {
	out := make([]string, 0, len(times))
	for _, t := range times {
		out = append(out, t.String())
	}
	sort.Strings(out)
	return out
}
