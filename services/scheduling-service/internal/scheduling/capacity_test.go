package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

func TestSchedulableOverridePriority(t *testing.T) {
	sched := model.AvailabilitySchedule{
		Recurring: map[time.Weekday][]model.TimeOfDay{
			time.Monday: {hhmm("09:00"), hhmm("09:30")},
		},
		Overrides: map[string][]model.TimeOfDay{
			"2026-09-14": {hhmm("14:00")},
			"2026-09-21": {},
		},
	}

	overridden := mustDate("2026-09-14")
	if Schedulable(sched, overridden, hhmm("09:00")) {
		t.Fatal("override replaces the recurring entry entirely")
	}
	if !Schedulable(sched, overridden, hhmm("14:00")) {
		t.Fatal("override time should be schedulable")
	}

	blackout := mustDate("2026-09-21")
	if Schedulable(sched, blackout, hhmm("09:00")) {
		t.Fatal("empty override blanks the whole day")
	}

	plain := mustDate("2026-09-28")
	if !Schedulable(sched, plain, hhmm("09:30")) {
		t.Fatal("recurring entry applies when no override exists")
	}
	if Schedulable(sched, plain, hhmm("10:00")) {
		t.Fatal("unlisted time is not schedulable")
	}
}

func TestEngagedFirstHalfHourOnly(t *testing.T) {
	bookings := []model.Booking{
		{StaffID: "st-1", Start: hhmm("10:00"), End: hhmm("11:00"), Status: model.BookingPlanned},
	}

	if !Engaged(bookings, hhmm("10:00")) {
		t.Fatal("engaged at session start")
	}
	if Engaged(bookings, hhmm("10:30")) {
		t.Fatal("free once the first half hour is over")
	}
	if Engaged(bookings, hhmm("09:30")) {
		t.Fatal("not engaged before the session")
	}
}

func TestEngagedIgnoresCancelled(t *testing.T) {
	bookings := []model.Booking{
		{Start: hhmm("10:00"), End: hhmm("11:00"), Status: model.BookingCancelled},
	}
	if Engaged(bookings, hhmm("10:00")) {
		t.Fatal("cancelled bookings do not engage staff")
	}
}

func TestOracleIsStaffFree(t *testing.T) {
	w := newWorld()
	monday := mustDate("2026-09-14")
	w.store.addBooking(model.Booking{
		BranchID: "br-1", RoomID: "rm-a", StaffID: "st-1",
		Date: monday, Start: hhmm("10:00"), End: hhmm("11:00"),
	})
	oracle := NewOracle(w.store)
	staff := w.dir.staff[0]

	free, err := oracle.IsStaffFree(context.Background(), staff, monday, hhmm("10:00"))
	if err != nil {
		t.Fatalf("IsStaffFree: %v", err)
	}
	if free {
		t.Fatal("engaged staff is not free")
	}

	free, err = oracle.IsStaffFree(context.Background(), staff, monday, hhmm("10:30"))
	if err != nil {
		t.Fatalf("IsStaffFree: %v", err)
	}
	if !free {
		t.Fatal("staff is free thirty minutes into the other session")
	}

	// Outside the schedule the booking list is irrelevant.
	free, err = oracle.IsStaffFree(context.Background(), staff, monday, hhmm("22:00"))
	if err != nil {
		t.Fatalf("IsStaffFree: %v", err)
	}
	if free {
		t.Fatal("unscheduled time is never free")
	}
}
