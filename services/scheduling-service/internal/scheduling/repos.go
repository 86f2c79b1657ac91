package scheduling

import (
	"context"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// The engine talks to storage through these interfaces so the search
// and commit logic can be exercised against in-memory fakes. The pgx
// implementations live in internal/storage.

type BranchDirectory interface {
	GetBranch(ctx context.Context, id string) (model.Branch, error)
}

type TreatmentDirectory interface {
	GetTreatment(ctx context.Context, id string) (model.Treatment, error)
}

// RoomDirectory lists rooms assigned to a treatment within a branch.
type RoomDirectory interface {
	RoomsForTreatment(ctx context.Context, branchID, treatmentID string) ([]model.Room, error)
}

// StaffDirectory lists staff assigned to a treatment within a branch.
type StaffDirectory interface {
	StaffForTreatment(ctx context.Context, branchID, treatmentID string) ([]model.Staff, error)
}

// RoomDayState describes the grid cells backing one candidate session
// in one room. Materialized is false when the room has no cells at all
// for the date, which sends the search down the booking-overlap
// fallback instead of reading cell statuses.
type RoomDayState struct {
	Materialized bool
	BothOpen     bool
}

type GridStore interface {
	// SessionStates reports, per room, the state of the two half-hour
	// cells starting at start on date.
	SessionStates(ctx context.Context, roomIDs []string, date time.Time, start model.TimeOfDay) (map[string]RoomDayState, error)
}

type BookingStore interface {
	// RoomsWithOverlap reports which of the given rooms have a
	// non-cancelled booking crossing [start, end) on date.
	RoomsWithOverlap(ctx context.Context, roomIDs []string, date time.Time, start, end model.TimeOfDay) (map[string]bool, error)
	// StaffBookings returns the staff member's non-cancelled bookings
	// on date.
	StaffBookings(ctx context.Context, staffID string, date time.Time) ([]model.Booking, error)
	Begin(ctx context.Context) (BookingTx, error)
}

// BookingTx is the single-transaction surface of the commit engine.
// Lock methods take FOR UPDATE row locks; all mutations, including the
// outbox append, happen inside the same transaction.
type BookingTx interface {
	LockRoom(ctx context.Context, roomID string) (model.Room, error)
	LockStaff(ctx context.Context, staffID string) (model.Staff, error)
	RoomHasOverlap(ctx context.Context, roomID string, date time.Time, start, end model.TimeOfDay) (bool, error)
	// LockCells takes FOR UPDATE locks on the room's grid cells at the
	// given slots and returns the ones that exist. Unmaterialized
	// cells return nothing; the overlap re-check covers those rooms.
	LockCells(ctx context.Context, roomID string, date time.Time, slots []model.TimeOfDay) ([]model.GridCell, error)
	StaffEngagedAt(ctx context.Context, staffID string, date time.Time, start model.TimeOfDay) (bool, error)
	InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error)
	LockBooking(ctx context.Context, id string) (model.Booking, error)
	UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus, notes string) error
	MarkCellsBooked(ctx context.Context, b model.Booking, slots []model.TimeOfDay) error
	ReleaseCells(ctx context.Context, bookingID string) (int64, error)
	AppendEvent(ctx context.Context, eventType, aggregateID string, payload any) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Slot is a bookable candidate produced by the search engine.
type Slot struct {
	BranchID    string          `json:"branch_id"`
	TreatmentID string          `json:"treatment_id"`
	RoomID      string          `json:"room_id"`
	StaffID     string          `json:"staff_id"`
	Date        time.Time       `json:"-"`
	Start       model.TimeOfDay `json:"start_time"`
	End         model.TimeOfDay `json:"end_time"`
}

// SessionCells returns the half-hour grid marks covered by [start, end).
func SessionCells(start, end model.TimeOfDay) []model.TimeOfDay {
	var cells []model.TimeOfDay
	for t := start; t.Before(end); t = t.Add(model.SlotMinutes) {
		cells = append(cells, t)
	}
	return cells
}
