package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

type world struct {
	dir    *fakeDir
	grid   *fakeGrid
	store  *fakeBookingStore
	finder *Finder
	booker *Booker
}

func newWorld() *world {
	dir := &fakeDir{
		branches: map[string]model.Branch{
			"br-1": {ID: "br-1", Name: "Gulshan", Hours: defaultHours(), IsOpen: true},
		},
		treatments: map[string]model.Treatment{
			"tr-1": {ID: "tr-1", Name: "Hydrotherapy"},
		},
		rooms: []model.Room{
			{ID: "rm-a", BranchID: "br-1", Name: "Room A", Gender: model.GenderUnisex},
			{ID: "rm-b", BranchID: "br-1", Name: "Room B", Gender: model.GenderFemale},
		},
		staff: []model.Staff{
			{ID: "st-1", BranchID: "br-1", Name: "Farzana", Availability: model.AvailabilitySchedule{
				Recurring: allWeekdays(everyHalfHour("06:00", "19:00")),
			}},
			{ID: "st-2", BranchID: "br-1", Name: "Rafiq", Availability: model.AvailabilitySchedule{
				Recurring: allWeekdays(everyHalfHour("06:00", "19:00")),
			}},
		},
	}
	grid := newFakeGrid()
	store := newFakeStore(dir, grid)
	resolver := NewResolver(dir, dir)
	return &world{
		dir:    dir,
		grid:   grid,
		store:  store,
		finder: NewFinder(dir, dir, resolver, grid, store, testLogger()),
		booker: NewBooker(store, testLogger()),
	}
}

func findAt(t *testing.T, w *world, gender model.Gender, from string) (Slot, bool) {
	t.Helper()
	ts, err := time.Parse("2006-01-02 15:04", from)
	if err != nil {
		t.Fatalf("bad from %q: %v", from, err)
	}
	slot, ok, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID:      "br-1",
		TreatmentID:   "tr-1",
		PatientGender: gender,
		From:          ts.UTC(),
	})
	if err != nil {
		t.Fatalf("FindSlot: %v", err)
	}
	return slot, ok
}

func TestFindSlotEarliestRoomByID(t *testing.T) {
	w := newWorld()
	monday := mustDate("2026-09-14")
	w.grid.seedDay("rm-a", monday, hhmm("06:00"), hhmm("20:00"))
	w.grid.seedDay("rm-b", monday, hhmm("06:00"), hhmm("20:00"))
	w.grid.set("rm-a", monday, hhmm("06:00"), model.SlotBooked, "bk-x")
	w.grid.set("rm-a", monday, hhmm("06:30"), model.SlotBooked, "bk-x")

	slot, ok := findAt(t, w, model.GenderFemale, "2026-09-14 06:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if slot.RoomID != "rm-b" || slot.Start.String() != "06:00" {
		t.Fatalf("slot = %s %s in %s, want 06:00 in rm-b", model.DateString(slot.Date), slot.Start, slot.RoomID)
	}
	if slot.StaffID != "st-1" {
		t.Fatalf("staff = %s, want first by id", slot.StaffID)
	}
	if slot.End.String() != "07:00" {
		t.Fatalf("end = %s", slot.End)
	}
}

func TestFindSlotSkipsClosedDayAndResetsToOpening(t *testing.T) {
	w := newWorld()

	// Saturday 17:30: a session would end past the 18:00 close. Sunday
	// is closed, so the scan lands on Monday at opening time, not at
	// the 17:30 cursor.
	slot, ok := findAt(t, w, model.GenderMale, "2026-09-19 17:30")
	if !ok {
		t.Fatal("expected a slot")
	}
	if model.DateString(slot.Date) != "2026-09-21" {
		t.Fatalf("date = %s, want Monday 2026-09-21", model.DateString(slot.Date))
	}
	if slot.Start.String() != "06:00" {
		t.Fatalf("start = %s, want opening time", slot.Start)
	}
	if slot.RoomID != "rm-a" {
		t.Fatalf("male patient must get the unisex room, got %s", slot.RoomID)
	}
}

func TestFindSlotSessionMustEndByClose(t *testing.T) {
	w := newWorld()
	// Staff only schedulable at 19:00 and 19:30. A 19:30 start would
	// end at 20:30, past the Mon-Fri close; 19:00 ends exactly at
	// close and is allowed.
	for i := range w.dir.staff {
		w.dir.staff[i].Availability = model.AvailabilitySchedule{
			Recurring: allWeekdays([]model.TimeOfDay{hhmm("19:00"), hhmm("19:30")}),
		}
	}

	slot, ok := findAt(t, w, model.GenderMale, "2026-09-14 06:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if model.DateString(slot.Date) != "2026-09-14" || slot.Start.String() != "19:00" {
		t.Fatalf("slot = %s %s, want 2026-09-14 19:00", model.DateString(slot.Date), slot.Start)
	}
}

func TestFindSlotStaffFreeAfterFirstHalfHour(t *testing.T) {
	w := newWorld()
	w.dir.staff = w.dir.staff[:1] // st-1 only
	monday := mustDate("2026-09-14")
	w.store.addBooking(model.Booking{
		BranchID: "br-1", RoomID: "rm-a", StaffID: "st-1",
		Date: monday, Start: hhmm("10:00"), End: hhmm("11:00"),
	})

	// At 10:00 the only therapist is with a patient and rm-a is
	// occupied. At 10:30 the therapist is free again (second half hour
	// runs unattended) and rm-b is open.
	slot, ok := findAt(t, w, model.GenderFemale, "2026-09-14 10:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if slot.Start.String() != "10:30" || slot.RoomID != "rm-b" || slot.StaffID != "st-1" {
		t.Fatalf("slot = %s in %s by %s, want 10:30 in rm-b by st-1", slot.Start, slot.RoomID, slot.StaffID)
	}
}

func TestFindSlotAbutsExistingBooking(t *testing.T) {
	w := newWorld()
	w.dir.rooms = w.dir.rooms[:1] // rm-a only
	monday := mustDate("2026-09-14")
	w.store.addBooking(model.Booking{
		BranchID: "br-1", RoomID: "rm-a", StaffID: "st-2",
		Date: monday, Start: hhmm("10:00"), End: hhmm("11:00"),
	})

	// The room is busy through 11:00; a session starting exactly at
	// 11:00 does not overlap the half-open interval.
	slot, ok := findAt(t, w, model.GenderMale, "2026-09-14 10:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if slot.Start.String() != "11:00" || slot.RoomID != "rm-a" {
		t.Fatalf("slot = %s in %s, want 11:00 in rm-a", slot.Start, slot.RoomID)
	}
}

func TestFindSlotCancelledBookingDoesNotBlock(t *testing.T) {
	w := newWorld()
	w.dir.rooms = w.dir.rooms[:1]
	monday := mustDate("2026-09-14")
	w.store.addBooking(model.Booking{
		BranchID: "br-1", RoomID: "rm-a", StaffID: "st-1",
		Date: monday, Start: hhmm("06:00"), End: hhmm("07:00"),
		Status: model.BookingCancelled,
	})

	slot, ok := findAt(t, w, model.GenderMale, "2026-09-14 06:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if slot.Start.String() != "06:00" {
		t.Fatalf("start = %s, cancelled bookings must not block", slot.Start)
	}
}

func TestFindSlotMaterializedGridDoesNotFallBack(t *testing.T) {
	w := newWorld()
	w.dir.rooms = w.dir.rooms[:1]
	monday := mustDate("2026-09-14")
	// Every Monday cell is Unavailable. There are no bookings, so a
	// booking-overlap fallback would wrongly offer Monday; the
	// materialized grid must win.
	for tt := hhmm("00:00"); tt.Valid(); tt = tt.Add(model.SlotMinutes) {
		w.grid.set("rm-a", monday, tt, model.SlotUnavailable, "")
	}

	slot, ok := findAt(t, w, model.GenderMale, "2026-09-14 06:00")
	if !ok {
		t.Fatal("expected a slot")
	}
	if model.DateString(slot.Date) != "2026-09-15" || slot.Start.String() != "06:00" {
		t.Fatalf("slot = %s %s, want Tuesday 06:00", model.DateString(slot.Date), slot.Start)
	}
}

func TestFindSlotNoCompatibleRoom(t *testing.T) {
	w := newWorld()
	w.dir.rooms = w.dir.rooms[1:] // rm-b (Female) only

	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-1", PatientGender: model.GenderMale,
		From: mustDate("2026-09-14"),
	})
	if !errors.Is(err, ErrNoCompatibleRoom) {
		t.Fatalf("err = %v, want ErrNoCompatibleRoom", err)
	}
}

func TestFindSlotNoCompatibleStaff(t *testing.T) {
	w := newWorld()
	w.dir.staff = nil

	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-1", PatientGender: model.GenderFemale,
		From: mustDate("2026-09-14"),
	})
	if !errors.Is(err, ErrNoCompatibleStaff) {
		t.Fatalf("err = %v, want ErrNoCompatibleStaff", err)
	}
}

func TestFindSlotBranchClosed(t *testing.T) {
	w := newWorld()
	b := w.dir.branches["br-1"]
	b.IsOpen = false
	w.dir.branches["br-1"] = b

	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-1", PatientGender: model.GenderFemale,
		From: mustDate("2026-09-14"),
	})
	if !errors.Is(err, ErrBranchClosed) {
		t.Fatalf("err = %v, want ErrBranchClosed", err)
	}
}

func TestFindSlotBranchNotFound(t *testing.T) {
	w := newWorld()
	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-missing", TreatmentID: "tr-1", PatientGender: model.GenderFemale,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindSlotTreatmentNotFound(t *testing.T) {
	w := newWorld()
	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-missing", PatientGender: model.GenderFemale,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFindSlotExhaustedHorizonIsNotAnError(t *testing.T) {
	w := newWorld()
	// Staff have schedules but no entries at all, so nothing within
	// the horizon can ever line up.
	for i := range w.dir.staff {
		w.dir.staff[i].Availability = model.AvailabilitySchedule{}
	}

	slot, ok, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-1", PatientGender: model.GenderFemale,
		From: mustDate("2026-09-14"),
	})
	if err != nil {
		t.Fatalf("exhausted horizon must not error: %v", err)
	}
	if ok {
		t.Fatalf("expected no slot, got %+v", slot)
	}
}

func TestFindSlotValidatesInput(t *testing.T) {
	w := newWorld()
	_, _, err := w.finder.FindSlot(context.Background(), FindSlotRequest{
		BranchID: "br-1", TreatmentID: "tr-1", PatientGender: model.GenderUnisex,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for Unisex patient", err)
	}
	_, _, err = w.finder.FindSlot(context.Background(), FindSlotRequest{
		TreatmentID: "tr-1", PatientGender: model.GenderMale,
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput for missing branch", err)
	}
}
