package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/outbox"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/scheduling"
)

// Table: bookings(id uuid, branch_id, treatment_id, room_id null,
// staff_id null, patient_id null, emr_patient_id, patient_name,
// patient_gender, phone, date date, start_time time, end_time time,
// status, notes, created_at, unique(room_id, date, start_time)).
// The unique constraint is defense in depth; the row locks taken in
// the commit transaction are the real serialization point.
type BookingRepository struct {
	pool       *db.Pool
	outboxRepo *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outboxRepo: outboxRepo}
}

func (r *BookingRepository) RoomsWithOverlap(ctx context.Context, roomIDs []string, date time.Time, start, end model.TimeOfDay) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT room_id::text
		FROM bookings
		WHERE room_id = ANY($1)
			AND date = $2
			AND status <> 'Cancelled'
			AND start_time < $4::time
			AND COALESCE(end_time, start_time + interval '1 hour') > $3::time
	`, roomIDs, date, start.Clock(), end.Clock())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *BookingRepository) StaffBookings(ctx context.Context, staffID string, date time.Time) ([]model.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE staff_id = $1 AND date = $2 AND status <> 'Cancelled'
		ORDER BY start_time
	`, staffID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *BookingRepository) Begin(ctx context.Context) (scheduling.BookingTx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &bookingTx{tx: tx, outboxRepo: r.outboxRepo}, nil
}

func (r *BookingRepository) GetBooking(ctx context.Context, id string) (model.Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	b, err := scanBooking(row)
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

// BookingFilter narrows List. Zero fields are ignored.
type BookingFilter struct {
	BranchID string
	RoomID   string
	StaffID  string
	Status   string
	Date     time.Time
	Limit    int
}

func (r *BookingRepository) List(ctx context.Context, f BookingFilter) ([]model.Booking, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if f.BranchID != "" {
		query += ` AND branch_id = ` + arg(f.BranchID)
	}
	if f.RoomID != "" {
		query += ` AND room_id = ` + arg(f.RoomID)
	}
	if f.StaffID != "" {
		query += ` AND staff_id = ` + arg(f.StaffID)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	if !f.Date.IsZero() {
		query += ` AND date = ` + arg(f.Date)
	}
	query += ` ORDER BY date DESC, start_time DESC LIMIT ` + arg(f.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]model.Booking, error) {
	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// bookingTx implements scheduling.BookingTx on one pgx transaction.
type bookingTx struct {
	tx         pgx.Tx
	outboxRepo *outbox.Repository
}

func (t *bookingTx) LockRoom(ctx context.Context, roomID string) (model.Room, error) {
	var rm model.Room
	var gender string
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, branch_id::text, name, gender
		FROM branch_rooms
		WHERE id = $1
		FOR UPDATE
	`, roomID).Scan(&rm.ID, &rm.BranchID, &rm.Name, &gender)
	if err != nil {
		return model.Room{}, notFound(err, "room", roomID)
	}
	rm.Gender = model.Gender(gender)
	return rm, nil
}

func (t *bookingTx) LockStaff(ctx context.Context, staffID string) (model.Staff, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT id::text, branch_id::text, name, gender, COALESCE(role, ''), COALESCE(phone, ''), availability
		FROM staff
		WHERE id = $1
		FOR UPDATE
	`, staffID)
	s, err := scanStaff(row)
	if err != nil {
		return model.Staff{}, notFound(err, "staff", staffID)
	}
	return s, nil
}

func (t *bookingTx) RoomHasOverlap(ctx context.Context, roomID string, date time.Time, start, end model.TimeOfDay) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE room_id = $1
				AND date = $2
				AND status <> 'Cancelled'
				AND start_time < $4::time
				AND COALESCE(end_time, start_time + interval '1 hour') > $3::time
		)
	`, roomID, date, start.Clock(), end.Clock()).Scan(&exists)
	return exists, err
}

func (t *bookingTx) LockCells(ctx context.Context, roomID string, date time.Time, slots []model.TimeOfDay) ([]model.GridCell, error) {
	times := make([]string, 0, len(slots))
	for _, s := range slots {
		times = append(times, s.Clock())
	}
	rows, err := t.tx.Query(ctx, `
		SELECT branch_id::text, room_id::text, date, time_slot, status, COALESCE(booking_id::text, '')
		FROM room_availability_slots
		WHERE room_id = $1 AND date = $2 AND time_slot = ANY($3::time[])
		ORDER BY time_slot
		FOR UPDATE
	`, roomID, date, times)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GridCell
	for rows.Next() {
		c, err := scanGridCell(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (t *bookingTx) StaffEngagedAt(ctx context.Context, staffID string, date time.Time, start model.TimeOfDay) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE staff_id = $1
				AND date = $2
				AND status <> 'Cancelled'
				AND start_time <= $3::time
				AND $3::time < start_time + interval '30 minutes'
		)
	`, staffID, date, start.Clock()).Scan(&exists)
	return exists, err
}

func (t *bookingTx) InsertBooking(ctx context.Context, b model.Booking) (model.Booking, error) {
	b.ID = uuid.NewString()
	err := t.tx.QueryRow(ctx, `
		INSERT INTO bookings
			(id, branch_id, treatment_id, room_id, staff_id, patient_id,
			 emr_patient_id, patient_name, patient_gender, phone,
			 date, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, b.ID, b.BranchID, b.TreatmentID, nullable(b.RoomID), nullable(b.StaffID), nullable(b.PatientID),
		b.EMRPatientID, b.PatientName, string(b.PatientGender), b.Phone,
		b.Date, b.Start.Clock(), b.End.Clock(), string(b.Status), b.Notes).Scan(&b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) || isExclusionViolation(err) {
			return model.Booking{}, scheduling.ErrSlotUnavailable
		}
		return model.Booking{}, err
	}
	return b, nil
}

func (t *bookingTx) LockBooking(ctx context.Context, id string) (model.Booking, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, id)
	b, err := scanBooking(row)
	if err != nil {
		return model.Booking{}, notFound(err, "booking", id)
	}
	return b, nil
}

func (t *bookingTx) UpdateBookingStatus(ctx context.Context, id string, status model.BookingStatus, notes string) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, notes = $3, updated_at = now()
		WHERE id = $1
	`, id, string(status), notes)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("booking %s: %w", id, scheduling.ErrNotFound)
	}
	return nil
}

func (t *bookingTx) MarkCellsBooked(ctx context.Context, b model.Booking, slots []model.TimeOfDay) error {
	for _, slot := range slots {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO room_availability_slots (branch_id, room_id, date, time_slot, status, booking_id)
			VALUES ($1, $2, $3, $4, 'Booked', $5)
			ON CONFLICT (room_id, date, time_slot) DO UPDATE
			SET status = 'Booked', booking_id = EXCLUDED.booking_id
		`, b.BranchID, b.RoomID, b.Date, slot.Clock(), b.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *bookingTx) ReleaseCells(ctx context.Context, bookingID string) (int64, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE room_availability_slots
		SET status = 'Available', booking_id = NULL
		WHERE booking_id = $1
	`, bookingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (t *bookingTx) AppendEvent(ctx context.Context, eventType, aggregateID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	return t.outboxRepo.Insert(ctx, t.tx, outbox.Event{
		AggregateType: "booking",
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
	})
}

func (t *bookingTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *bookingTx) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}
