package scheduling

import (
	"context"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// EngagementMinutes is how long a session requires the therapist with
// the patient: the first half hour only. The second half hour the
// patient continues unattended, so the same therapist can start the
// next session 30 minutes in.
const EngagementMinutes = model.SlotMinutes

// Schedulable reports whether the staff member's schedule lists t as a
// start time on date, with date overrides taking priority over the
// recurring weekday entry.
func Schedulable(s model.AvailabilitySchedule, date time.Time, t model.TimeOfDay) bool {
	return s.Includes(date, t)
}

// Engaged reports whether any of the bookings has the staff member with
// a patient at t, i.e. t falls within the first half hour of a booking
// that still occupies its resources.
func Engaged(bookings []model.Booking, t model.TimeOfDay) bool {
	for _, b := range bookings {
		if !b.Status.Occupies() {
			continue
		}
		if !t.Before(b.Start) && t.Before(b.Start.Add(EngagementMinutes)) {
			return true
		}
	}
	return false
}

// Oracle decides whether a staff member can take a session at a given
// date and time.
type Oracle struct {
	bookings BookingStore
}

func NewOracle(bookings BookingStore) *Oracle {
	return &Oracle{bookings: bookings}
}

// IsStaffFree is Schedulable && !Engaged. The schedule check is free;
// bookings are only loaded when it passes.
func (o *Oracle) IsStaffFree(ctx context.Context, staff model.Staff, date time.Time, t model.TimeOfDay) (bool, error) {
	if !Schedulable(staff.Availability, date, t) {
		return false, nil
	}
	booked, err := o.bookings.StaffBookings(ctx, staff.ID, date)
	if err != nil {
		return false, err
	}
	return !Engaged(booked, t), nil
}
