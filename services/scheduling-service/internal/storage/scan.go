package storage

import (
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// TIME columns travel as pgtype.Time (microseconds since midnight) and
// are sent back as HH:MM:SS strings via TimeOfDay.Clock.

func timeOfDay(t pgtype.Time) model.TimeOfDay {
	return model.TimeOfDay(t.Microseconds / 60_000_000)
}

func scanGridCell(row interface{ Scan(...any) error }) (model.GridCell, error) {
	var c model.GridCell
	var slot pgtype.Time
	var status string
	if err := row.Scan(&c.BranchID, &c.RoomID, &c.Date, &slot, &status, &c.BookingID); err != nil {
		return model.GridCell{}, err
	}
	c.Slot = timeOfDay(slot)
	c.Status = model.SlotStatus(status)
	c.Date = model.DateOnly(c.Date)
	return c, nil
}

const bookingColumns = `id::text, branch_id::text, treatment_id::text,
	COALESCE(room_id::text, ''), COALESCE(staff_id::text, ''), COALESCE(patient_id::text, ''),
	COALESCE(emr_patient_id, ''), COALESCE(patient_name, ''), COALESCE(patient_gender, ''), COALESCE(phone, ''),
	date, start_time, COALESCE(end_time, start_time + interval '1 hour'), status, COALESCE(notes, ''), created_at`

func scanBooking(row interface{ Scan(...any) error }) (model.Booking, error) {
	var b model.Booking
	var gender, status string
	var start, end pgtype.Time
	err := row.Scan(
		&b.ID, &b.BranchID, &b.TreatmentID,
		&b.RoomID, &b.StaffID, &b.PatientID,
		&b.EMRPatientID, &b.PatientName, &gender, &b.Phone,
		&b.Date, &start, &end, &status, &b.Notes, &b.CreatedAt,
	)
	if err != nil {
		return model.Booking{}, err
	}
	b.PatientGender = model.Gender(gender)
	b.Status = model.BookingStatus(status)
	b.Start = timeOfDay(start)
	b.End = timeOfDay(end)
	b.Date = model.DateOnly(b.Date)
	return b, nil
}

// nullable maps empty strings to NULL for uuid and text columns that
// allow absence.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
