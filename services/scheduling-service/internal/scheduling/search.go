package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// DefaultHorizonDays bounds the forward scan. A branch with no opening
// for 30 days yields "nothing found", not an error.
const DefaultHorizonDays = 30

// FindSlotRequest describes a slot search. From is the search origin;
// zero means now. PatientGender must be Male or Female.
type FindSlotRequest struct {
	BranchID      string
	TreatmentID   string
	PatientGender model.Gender
	From          time.Time
}

// Finder is the slot search engine: a 30-day forward scan over
// half-hour marks, first-fit on rooms then staff.
type Finder struct {
	branches   BranchDirectory
	treatments TreatmentDirectory
	resolver   *Resolver
	grid       GridStore
	bookings   BookingStore
	oracle     *Oracle
	logger     *slog.Logger

	now     func() time.Time
	horizon int
}

func NewFinder(branches BranchDirectory, treatments TreatmentDirectory, resolver *Resolver, grid GridStore, bookings BookingStore, logger *slog.Logger) *Finder {
	return &Finder{
		branches:   branches,
		treatments: treatments,
		resolver:   resolver,
		grid:       grid,
		bookings:   bookings,
		oracle:     NewOracle(bookings),
		logger:     logger,
		now:        time.Now,
		horizon:    DefaultHorizonDays,
	}
}

// FindSlot returns the earliest slot where a compatible room and a free
// staff member line up. The boolean is false when the horizon is
// exhausted; that is a search result, not an error. Compatibility
// failures (no room for the gender, no qualified staff) are errors
// because no amount of scanning can fix them.
func (f *Finder) FindSlot(ctx context.Context, req FindSlotRequest) (Slot, bool, error) {
	if req.BranchID == "" || req.TreatmentID == "" {
		return Slot{}, false, fmt.Errorf("%w: branch_id and treatment_id are required", ErrInvalidInput)
	}
	if req.PatientGender != model.GenderMale && req.PatientGender != model.GenderFemale {
		return Slot{}, false, fmt.Errorf("%w: patient gender must be Male or Female", ErrInvalidInput)
	}

	branch, err := f.branches.GetBranch(ctx, req.BranchID)
	if err != nil {
		return Slot{}, false, err
	}
	if !branch.IsOpen {
		return Slot{}, false, ErrBranchClosed
	}
	if _, err := f.treatments.GetTreatment(ctx, req.TreatmentID); err != nil {
		return Slot{}, false, err
	}

	rooms, err := f.resolver.Rooms(ctx, req.BranchID, req.TreatmentID, req.PatientGender)
	if err != nil {
		return Slot{}, false, err
	}
	staff, err := f.resolver.Staff(ctx, req.BranchID, req.TreatmentID)
	if err != nil {
		return Slot{}, false, err
	}

	from := req.From
	if from.IsZero() {
		from = f.now().UTC()
	}
	firstDay := model.DateOnly(from)
	cursor := model.MinutesOfDay(from).AlignToGrid()

	for day := 0; day < f.horizon; day++ {
		date := firstDay.AddDate(0, 0, day)
		hours := branch.Hours.For(date.Weekday())
		if hours == nil {
			// Closed day. The next open day starts at its opening
			// time, never at the carried-over cursor.
			continue
		}

		t := hours.Open.AlignToGrid()
		if day == 0 && cursor.After(t) {
			t = cursor
		}
		for ; !t.Add(model.SessionMinutes).After(hours.Close); t = t.Add(model.SlotMinutes) {
			room, roomOK, err := f.openRoomAt(ctx, rooms, date, t)
			if err != nil {
				return Slot{}, false, err
			}
			if !roomOK {
				continue
			}
			member, staffOK, err := f.freeStaffAt(ctx, staff, date, t)
			if err != nil {
				return Slot{}, false, err
			}
			if !staffOK {
				continue
			}
			if !room.Gender.Admits(req.PatientGender) {
				// Should be unreachable after the resolver filter;
				// keep scanning rather than hand out a mismatched room.
				f.logger.Warn("room gender mismatch past resolver filter",
					"room_id", room.ID, "room_gender", string(room.Gender))
				continue
			}
			return Slot{
				BranchID:    req.BranchID,
				TreatmentID: req.TreatmentID,
				RoomID:      room.ID,
				StaffID:     member.ID,
				Date:        date,
				Start:       t,
				End:         t.Add(model.SessionMinutes),
			}, true, nil
		}
	}
	return Slot{}, false, nil
}

// openRoomAt picks the first room (by id) free for a full session at t.
// Rooms with materialized grid cells must have both half-hour cells
// Available; rooms with no cells for the date fall back to a booking
// overlap check.
func (f *Finder) openRoomAt(ctx context.Context, rooms []model.Room, date time.Time, t model.TimeOfDay) (model.Room, bool, error) {
	ids := make([]string, len(rooms))
	for i, r := range rooms {
		ids[i] = r.ID
	}
	states, err := f.grid.SessionStates(ctx, ids, date, t)
	if err != nil {
		return model.Room{}, false, err
	}

	var unmaterialized []string
	for _, r := range rooms {
		if !states[r.ID].Materialized {
			unmaterialized = append(unmaterialized, r.ID)
		}
	}
	overlaps := map[string]bool{}
	if len(unmaterialized) > 0 {
		overlaps, err = f.bookings.RoomsWithOverlap(ctx, unmaterialized, date, t, t.Add(model.SessionMinutes))
		if err != nil {
			return model.Room{}, false, err
		}
	}

	for _, r := range rooms {
		state := states[r.ID]
		if state.Materialized {
			if state.BothOpen {
				return r, true, nil
			}
			continue
		}
		if !overlaps[r.ID] {
			return r, true, nil
		}
	}
	return model.Room{}, false, nil
}

func (f *Finder) freeStaffAt(ctx context.Context, staff []model.Staff, date time.Time, t model.TimeOfDay) (model.Staff, bool, error) {
	for _, member := range staff {
		free, err := f.oracle.IsStaffFree(ctx, member, date, t)
		if err != nil {
			return model.Staff{}, false, err
		}
		if free {
			return member, true, nil
		}
	}
	return model.Staff{}, false, nil
}
