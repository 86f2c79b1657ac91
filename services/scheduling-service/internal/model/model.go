package model

import (
	"fmt"
	"time"
)

type Gender string

const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
	GenderUnisex Gender = "Unisex"
)

// ParsePatientGender validates the gender carried on a booking request.
// Unisex is a room property, never a patient one.
func ParsePatientGender(s string) (Gender, error) {
	switch Gender(s) {
	case GenderMale, GenderFemale:
		return Gender(s), nil
	}
	return "", fmt.Errorf("invalid patient gender %q: must be Male or Female", s)
}

// Admits reports whether a room with gender constraint g accepts a
// patient of the given gender.
func (g Gender) Admits(patient Gender) bool {
	return g == GenderUnisex || g == patient
}

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "Available"
	SlotBooked      SlotStatus = "Booked"
	SlotUnavailable SlotStatus = "Unavailable"
)

type BookingStatus string

const (
	BookingPlanned   BookingStatus = "Planned"
	BookingCompleted BookingStatus = "Completed"
	BookingNoShow    BookingStatus = "No-show"
	BookingConflict  BookingStatus = "Conflict"
	BookingCancelled BookingStatus = "Cancelled"
)

// ParseBookingStatus validates status-update input. Planned is the
// creation status and never a transition target.
func ParseBookingStatus(s string) (BookingStatus, error) {
	switch BookingStatus(s) {
	case BookingCompleted, BookingNoShow, BookingConflict, BookingCancelled:
		return BookingStatus(s), nil
	}
	return "", fmt.Errorf("invalid booking status %q", s)
}

// Occupies reports whether a booking in this status still claims its
// room and staff time. Only cancellation releases resources; No-show
// and Conflict bookings keep their grid cells.
func (s BookingStatus) Occupies() bool {
	return s != BookingCancelled
}

type Branch struct {
	ID         string
	ExternalID string
	Name       string
	City       string
	Hours      WeekHours
	IsOpen     bool
}

type Room struct {
	ID       string
	BranchID string
	Name     string
	Gender   Gender
}

type Staff struct {
	ID           string
	BranchID     string
	Name         string
	Gender       Gender
	Role         string
	Phone        string
	Availability AvailabilitySchedule
}

type Treatment struct {
	ID         string
	ExternalID string
	Name       string
}

type Patient struct {
	ID           string
	EMRPatientID string
	Name         string
	Gender       Gender
	Phone        string
}

// GridCell is one 30-minute unit of room occupancy state, keyed by
// (room, date, slot). BookingID is empty unless Status is Booked.
type GridCell struct {
	BranchID  string
	RoomID    string
	Date      time.Time
	Slot      TimeOfDay
	Status    SlotStatus
	BookingID string
}

// Booking is a scheduled one-hour therapy session. RoomID, StaffID and
// PatientID may be empty; when there is no patient record the intake
// fields (PatientName, PatientGender, Phone) describe the patient.
type Booking struct {
	ID            string
	BranchID      string
	TreatmentID   string
	RoomID        string
	StaffID       string
	PatientID     string
	EMRPatientID  string
	PatientName   string
	PatientGender Gender
	Phone         string
	Date          time.Time
	Start         TimeOfDay
	End           TimeOfDay
	Status        BookingStatus
	Notes         string
	CreatedAt     time.Time
}

// Overlaps reports whether the booking's [Start, End) interval crosses
// [start, end) on the same date. This is the single canonical overlap
// predicate used at search time and at commit time.
func (b Booking) Overlaps(start, end TimeOfDay) bool {
	bEnd := b.End
	if bEnd == 0 {
		bEnd = b.Start.Add(SessionMinutes)
	}
	return b.Start.Before(end) && bEnd.After(start)
}
