package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Booking lifecycle events written to the outbox inside the commit
// transaction.
const (
	EventBookingCreated   = "scheduling.booking.created.v1"
	EventBookingCancelled = "scheduling.booking.cancelled.v1"
)

// CreateBookingRequest carries everything needed to commit a booking.
// End defaults to Start + one session. Either PatientID references an
// existing patient record or the intake fields (PatientName, Phone)
// describe a walk-in. RoomID and StaffID are optional; a booking
// without them holds the appointment time but claims no room or
// therapist until one is assigned.
type CreateBookingRequest struct {
	BranchID      string
	TreatmentID   string
	RoomID        string
	StaffID       string
	PatientID     string
	EMRPatientID  string
	PatientName   string
	PatientGender model.Gender
	Phone         string
	Date          time.Time
	Start         model.TimeOfDay
	End           model.TimeOfDay
	Notes         string
}

// Booker is the commit engine. Every mutation runs in one transaction:
// a booking either lands fully (row inserted, grid cells claimed,
// outbox event appended) or not at all.
type Booker struct {
	store  BookingStore
	logger *slog.Logger
}

func NewBooker(store BookingStore, logger *slog.Logger) *Booker {
	return &Booker{store: store, logger: logger}
}

func (req *CreateBookingRequest) validate() error {
	if req.BranchID == "" || req.TreatmentID == "" {
		return fmt.Errorf("%w: branch_id and treatment_id are required", ErrInvalidInput)
	}
	if req.PatientID == "" && req.PatientName == "" {
		return fmt.Errorf("%w: patient_id or patient_name is required", ErrInvalidInput)
	}
	if req.PatientGender != model.GenderMale && req.PatientGender != model.GenderFemale {
		return fmt.Errorf("%w: patient gender must be Male or Female", ErrInvalidInput)
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrInvalidInput)
	}
	if !req.Start.Valid() || !req.Start.OnGrid() {
		return fmt.Errorf("%w: start time must fall on a half-hour mark", ErrInvalidInput)
	}
	if req.End == 0 {
		req.End = req.Start.Add(model.SessionMinutes)
	}
	if !req.End.After(req.Start) || !req.End.OnGrid() || req.End > model.MinutesPerDay {
		return fmt.Errorf("%w: end time must be a half-hour mark after start", ErrInvalidInput)
	}
	return nil
}

// CreateBooking locks the room and staff rows when they are assigned,
// re-validates everything the search engine checked without locks, and
// commits the booking with its grid cells and outbox event. Validation
// failures after locking surface as ErrSlotUnavailable or ErrStaffBusy
// so the caller can offer an alternative.
func (bk *Booker) CreateBooking(ctx context.Context, req CreateBookingRequest) (model.Booking, error) {
	if err := req.validate(); err != nil {
		return model.Booking{}, err
	}
	date := model.DateOnly(req.Date)

	tx, err := bk.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if req.RoomID != "" {
		room, err := tx.LockRoom(ctx, req.RoomID)
		if err != nil {
			return model.Booking{}, err
		}
		if !room.Gender.Admits(req.PatientGender) {
			return model.Booking{}, ErrGenderMismatch
		}
		if room.BranchID != req.BranchID {
			return model.Booking{}, fmt.Errorf("%w: room must belong to the branch", ErrInvalidInput)
		}

		overlap, err := tx.RoomHasOverlap(ctx, room.ID, date, req.Start, req.End)
		if err != nil {
			return model.Booking{}, err
		}
		if overlap {
			return model.Booking{}, ErrSlotUnavailable
		}

		// The overlap check only sees other bookings. Cells seeded
		// Unavailable (closed day) or already Booked must also block
		// the commit; lock them so the statuses hold until commit.
		cells, err := tx.LockCells(ctx, room.ID, date, SessionCells(req.Start, req.End))
		if err != nil {
			return model.Booking{}, err
		}
		for _, c := range cells {
			if c.Status != model.SlotAvailable {
				return model.Booking{}, ErrSlotUnavailable
			}
		}
	}

	if req.StaffID != "" {
		staff, err := tx.LockStaff(ctx, req.StaffID)
		if err != nil {
			return model.Booking{}, err
		}
		if staff.BranchID != req.BranchID {
			return model.Booking{}, fmt.Errorf("%w: staff must belong to the branch", ErrInvalidInput)
		}

		engaged, err := tx.StaffEngagedAt(ctx, staff.ID, date, req.Start)
		if err != nil {
			return model.Booking{}, err
		}
		if engaged {
			return model.Booking{}, ErrStaffBusy
		}
	}

	booking := model.Booking{
		BranchID:      req.BranchID,
		TreatmentID:   req.TreatmentID,
		RoomID:        req.RoomID,
		StaffID:       req.StaffID,
		PatientID:     req.PatientID,
		EMRPatientID:  req.EMRPatientID,
		PatientName:   req.PatientName,
		PatientGender: req.PatientGender,
		Phone:         req.Phone,
		Date:          date,
		Start:         req.Start,
		End:           req.End,
		Status:        model.BookingPlanned,
		Notes:         req.Notes,
	}
	booking, err = tx.InsertBooking(ctx, booking)
	if err != nil {
		return model.Booking{}, err
	}

	if booking.RoomID != "" {
		if err := tx.MarkCellsBooked(ctx, booking, SessionCells(booking.Start, booking.End)); err != nil {
			return model.Booking{}, err
		}
	}

	if err := tx.AppendEvent(ctx, EventBookingCreated, booking.ID, bookingEventPayload(booking)); err != nil {
		return model.Booking{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}
	bk.logger.Info("booking created",
		"booking_id", booking.ID,
		"branch_id", booking.BranchID,
		"room_id", booking.RoomID,
		"staff_id", booking.StaffID,
		"date", model.DateString(booking.Date),
		"start", booking.Start.String())
	return booking, nil
}

// CancelBooking sets the booking to Cancelled and releases every grid
// cell it claimed. A missing booking returns (false, nil). Cancelling
// an already cancelled booking re-appends the note; the grid release
// is a no-op the second time.
func (bk *Booker) CancelBooking(ctx context.Context, id, reason string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	}

	tx, err := bk.store.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := tx.LockBooking(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	notes := appendCancelNote(booking.Notes, reason)
	if err := tx.UpdateBookingStatus(ctx, id, model.BookingCancelled, notes); err != nil {
		return false, err
	}

	released, err := tx.ReleaseCells(ctx, id)
	if err != nil {
		return false, err
	}

	payload := bookingEventPayload(booking)
	payload["reason"] = reason
	if err := tx.AppendEvent(ctx, EventBookingCancelled, id, payload); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	bk.logger.Info("booking cancelled", "booking_id", id, "cells_released", released)
	return true, nil
}

// MarkStatus records a Completed, No-show or Conflict outcome. These
// are bookkeeping transitions with no grid effect; cancellation goes
// through CancelBooking because it releases cells.
func (bk *Booker) MarkStatus(ctx context.Context, id string, status model.BookingStatus, note string) (model.Booking, error) {
	if id == "" {
		return model.Booking{}, fmt.Errorf("%w: booking id is required", ErrInvalidInput)
	}
	if status == model.BookingCancelled {
		return model.Booking{}, fmt.Errorf("%w: use the cancel operation to cancel a booking", ErrInvalidInput)
	}

	tx, err := bk.store.Begin(ctx)
	if err != nil {
		return model.Booking{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	booking, err := tx.LockBooking(ctx, id)
	if err != nil {
		return model.Booking{}, err
	}

	notes := booking.Notes
	if note != "" {
		notes = appendNote(notes, note)
	}
	if err := tx.UpdateBookingStatus(ctx, id, status, notes); err != nil {
		return model.Booking{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return model.Booking{}, err
	}

	booking.Status = status
	booking.Notes = notes
	return booking, nil
}

func bookingEventPayload(b model.Booking) map[string]any {
	return map[string]any{
		"booking_id":   b.ID,
		"branch_id":    b.BranchID,
		"treatment_id": b.TreatmentID,
		"room_id":      b.RoomID,
		"staff_id":     b.StaffID,
		"patient_id":   b.PatientID,
		"date":         model.DateString(b.Date),
		"start_time":   b.Start.String(),
		"end_time":     b.End.String(),
	}
}

func appendCancelNote(notes, reason string) string {
	note := "Cancelled"
	if strings.TrimSpace(reason) != "" {
		note = "Cancelled: " + strings.TrimSpace(reason)
	}
	return appendNote(notes, note)
}

func appendNote(notes, note string) string {
	if notes == "" {
		return note
	}
	return notes + "\n" + note
}
