package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestWeekHoursJSON(t *testing.T) {
	blob := `{"monday":{"open":"06:00","close":"20:00"},"saturday":{"open":"08:00","close":"18:00"},"sunday":null}`

	var hours WeekHours
	if err := json.Unmarshal([]byte(blob), &hours); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	mon := hours.For(time.Monday)
	if mon == nil || mon.Open.String() != "06:00" || mon.Close.String() != "20:00" {
		t.Fatalf("monday hours = %+v", mon)
	}
	if hours.For(time.Sunday) != nil {
		t.Fatal("sunday should be closed")
	}
	if hours.For(time.Tuesday) != nil {
		t.Fatal("absent weekday should read as closed")
	}

	out, err := json.Marshal(hours)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var round WeekHours
	if err := json.Unmarshal(out, &round); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if got := round.For(time.Saturday); got == nil || got.Close.String() != "18:00" {
		t.Fatalf("saturday after round trip = %+v", got)
	}
}

func TestWeekHoursRejectsUnknownKey(t *testing.T) {
	var hours WeekHours
	err := json.Unmarshal([]byte(`{"funday":{"open":"09:00","close":"17:00"}}`), &hours)
	if err == nil {
		t.Fatal("expected error for unknown weekday key")
	}
}

func TestAvailabilityScheduleOverloadedKeys(t *testing.T) {
	blob := `{"monday":["09:30","09:00"],"friday":["14:00"],"2026-09-14":["11:00"],"2026-09-18":[]}`

	var sched AvailabilitySchedule
	if err := json.Unmarshal([]byte(blob), &sched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	// Weekday keys land in the recurring map, sorted.
	mon := sched.Recurring[time.Monday]
	if len(mon) != 2 || mon[0].String() != "09:00" || mon[1].String() != "09:30" {
		t.Fatalf("monday recurring = %v", mon)
	}

	// An ISO date key is an override that wins over the weekday entry.
	overrideDay, _ := ParseDate("2026-09-14") // a Monday
	times, fromOverride := sched.TimesFor(overrideDay)
	if !fromOverride {
		t.Fatal("expected override to apply on 2026-09-14")
	}
	if len(times) != 1 || times[0].String() != "11:00" {
		t.Fatalf("override times = %v", times)
	}

	// An empty override blanks the whole day even though the weekday
	// entry has times.
	blackout, _ := ParseDate("2026-09-18") // a Friday
	times, fromOverride = sched.TimesFor(blackout)
	if !fromOverride || len(times) != 0 {
		t.Fatalf("empty override should blank the day, got %v (override=%v)", times, fromOverride)
	}

	// A date with no override falls back to the recurring entry.
	plainMonday, _ := ParseDate("2026-09-21")
	times, fromOverride = sched.TimesFor(plainMonday)
	if fromOverride || len(times) != 2 {
		t.Fatalf("recurring fallback = %v (override=%v)", times, fromOverride)
	}
}

func TestAvailabilityScheduleIncludes(t *testing.T) {
	var sched AvailabilitySchedule
	if err := json.Unmarshal([]byte(`{"tuesday":["10:00","10:30"]}`), &sched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	tue, _ := ParseDate("2026-09-15")
	if !sched.Includes(tue, TimeOfDay(10*60)) {
		t.Fatal("10:00 Tuesday should be included")
	}
	if sched.Includes(tue, TimeOfDay(11*60)) {
		t.Fatal("11:00 Tuesday should not be included")
	}
	wed, _ := ParseDate("2026-09-16")
	if sched.Includes(wed, TimeOfDay(10*60)) {
		t.Fatal("Wednesday has no entry")
	}
}

func TestAvailabilityScheduleRejectsBadKey(t *testing.T) {
	var sched AvailabilitySchedule
	if err := json.Unmarshal([]byte(`{"2026-9-1":["10:00"]}`), &sched); err == nil {
		t.Fatal("expected error for malformed date key")
	}
	if err := json.Unmarshal([]byte(`{"monday":["25:00"]}`), &sched); err == nil {
		t.Fatal("expected error for invalid time value")
	}
}

func TestPruneOverridesBefore(t *testing.T) {
	var sched AvailabilitySchedule
	blob := `{"2026-08-01":["09:00"],"2026-08-20":[],"2026-09-10":["10:00"]}`
	if err := json.Unmarshal([]byte(blob), &sched); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	cutoff, _ := ParseDate("2026-09-01")
	if removed := sched.PruneOverridesBefore(cutoff); removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	if _, ok := sched.Overrides["2026-09-10"]; !ok {
		t.Fatal("future override should survive pruning")
	}
	if len(sched.Overrides) != 1 {
		t.Fatalf("overrides left = %d", len(sched.Overrides))
	}
}

func TestBookingOverlaps(t *testing.T) {
	b := Booking{Start: TimeOfDay(10 * 60), End: TimeOfDay(11 * 60)}

	cases := []struct {
		name       string
		start, end TimeOfDay
		want       bool
	}{
		{"identical", TimeOfDay(10 * 60), TimeOfDay(11 * 60), true},
		{"straddles start", TimeOfDay(9*60 + 30), TimeOfDay(10*60 + 30), true},
		{"straddles end", TimeOfDay(10*60 + 30), TimeOfDay(11*60 + 30), true},
		{"contained", TimeOfDay(10*60 + 30), TimeOfDay(10*60 + 45), true},
		{"abuts before", TimeOfDay(9 * 60), TimeOfDay(10 * 60), false},
		{"abuts after", TimeOfDay(11 * 60), TimeOfDay(12 * 60), false},
	}
	for _, tc := range cases {
		if got := b.Overlaps(tc.start, tc.end); got != tc.want {
			t.Fatalf("%s: Overlaps(%s,%s) = %v, want %v", tc.name, tc.start, tc.end, got, tc.want)
		}
	}
}

func TestBookingOverlapsDefaultsSessionEnd(t *testing.T) {
	// Legacy rows can carry a zero end; treat them as full sessions.
	b := Booking{Start: TimeOfDay(10 * 60)}
	if !b.Overlaps(TimeOfDay(10*60+30), TimeOfDay(11*60+30)) {
		t.Fatal("zero-end booking should span a full session")
	}
	if b.Overlaps(TimeOfDay(11*60), TimeOfDay(12*60)) {
		t.Fatal("zero-end booking should end at start+60m")
	}
}

func TestBookingStatusOccupies(t *testing.T) {
	for _, s := range []BookingStatus{BookingPlanned, BookingCompleted, BookingNoShow, BookingConflict} {
		if !s.Occupies() {
			t.Fatalf("%s should keep its grid cells", s)
		}
	}
	if BookingCancelled.Occupies() {
		t.Fatal("cancelled bookings release their cells")
	}
}

func TestGenderAdmits(t *testing.T) {
	if !GenderUnisex.Admits(GenderFemale) || !GenderUnisex.Admits(GenderMale) {
		t.Fatal("unisex rooms admit everyone")
	}
	if !GenderFemale.Admits(GenderFemale) {
		t.Fatal("matching gender admits")
	}
	if GenderFemale.Admits(GenderMale) {
		t.Fatal("mismatched gender does not admit")
	}
	if _, err := ParsePatientGender("Unisex"); err == nil {
		t.Fatal("Unisex is not a patient gender")
	}
}
