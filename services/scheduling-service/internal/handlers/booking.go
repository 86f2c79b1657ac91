package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/scheduling"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/storage"
)

// The handler depends on narrow interfaces rather than the concrete
// engine types so tests can run over httptest with in-memory fakes.

type SlotFinder interface {
	FindSlot(ctx context.Context, req scheduling.FindSlotRequest) (scheduling.Slot, bool, error)
}

type BookingCommitter interface {
	CreateBooking(ctx context.Context, req scheduling.CreateBookingRequest) (model.Booking, error)
	CancelBooking(ctx context.Context, id, reason string) (bool, error)
	MarkStatus(ctx context.Context, id string, status model.BookingStatus, note string) (model.Booking, error)
}

type StaffResolver interface {
	Staff(ctx context.Context, branchID, treatmentID string) ([]model.Staff, error)
}

type BookingReader interface {
	GetBooking(ctx context.Context, id string) (model.Booking, error)
	List(ctx context.Context, f storage.BookingFilter) ([]model.Booking, error)
}

type PatientDirectory interface {
	GetPatient(ctx context.Context, id string) (model.Patient, error)
	GetByEMRID(ctx context.Context, emrID string) (model.Patient, error)
}

type BookingHandler struct {
	finder   SlotFinder
	booker   BookingCommitter
	staff    StaffResolver
	bookings BookingReader
	patients PatientDirectory
	logger   *slog.Logger
}

func NewBookingHandler(finder SlotFinder, booker BookingCommitter, staff StaffResolver, bookings BookingReader, patients PatientDirectory, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		finder:   finder,
		booker:   booker,
		staff:    staff,
		bookings: bookings,
		patients: patients,
		logger:   logger,
	}
}

type findSlotRequest struct {
	BranchID      string `json:"branch_id"`
	TreatmentID   string `json:"treatment_id"`
	PatientGender string `json:"patient_gender"`
	From          string `json:"from,omitempty"`
}

type slotView struct {
	BranchID    string `json:"branch_id"`
	TreatmentID string `json:"treatment_id"`
	RoomID      string `json:"room_id"`
	StaffID     string `json:"staff_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

type findSlotResponse struct {
	Found bool      `json:"found"`
	Slot  *slotView `json:"slot,omitempty"`
}

type createBookingRequest struct {
	BranchID      string `json:"branch_id"`
	TreatmentID   string `json:"treatment_id"`
	RoomID        string `json:"room_id"`
	StaffID       string `json:"staff_id"`
	PatientID     string `json:"patient_id"`
	EMRPatientID  string `json:"emr_patient_id"`
	PatientName   string `json:"patient_name"`
	PatientGender string `json:"patient_gender"`
	Phone         string `json:"phone"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

type conflictResponse struct {
	Error             string    `json:"error"`
	NextAvailableSlot *slotView `json:"next_available_slot,omitempty"`
}

type cancelBookingRequest struct {
	BookingID string `json:"booking_id"`
	Reason    string `json:"reason"`
}

type cancelBookingResponse struct {
	BookingID string `json:"booking_id"`
	Cancelled bool   `json:"cancelled"`
}

type statusRequest struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	Note      string `json:"note,omitempty"`
}

type bookingView struct {
	BookingID     string `json:"booking_id"`
	BranchID      string `json:"branch_id"`
	TreatmentID   string `json:"treatment_id"`
	RoomID        string `json:"room_id,omitempty"`
	StaffID       string `json:"staff_id,omitempty"`
	PatientID     string `json:"patient_id,omitempty"`
	EMRPatientID  string `json:"emr_patient_id,omitempty"`
	PatientName   string `json:"patient_name,omitempty"`
	PatientGender string `json:"patient_gender,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Date          string `json:"date"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
	Notes         string `json:"notes,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
}

type staffItem struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Gender string `json:"gender"`
	Role   string `json:"role,omitempty"`
}

func viewSlot(s scheduling.Slot) *slotView {
	return &slotView{
		BranchID:    s.BranchID,
		TreatmentID: s.TreatmentID,
		RoomID:      s.RoomID,
		StaffID:     s.StaffID,
		Date:        model.DateString(s.Date),
		StartTime:   s.Start.String(),
		EndTime:     s.End.String(),
	}
}

func viewBooking(b model.Booking) bookingView {
	v := bookingView{
		BookingID:     b.ID,
		BranchID:      b.BranchID,
		TreatmentID:   b.TreatmentID,
		RoomID:        b.RoomID,
		StaffID:       b.StaffID,
		PatientID:     b.PatientID,
		EMRPatientID:  b.EMRPatientID,
		PatientName:   b.PatientName,
		PatientGender: string(b.PatientGender),
		Phone:         b.Phone,
		Date:          model.DateString(b.Date),
		StartTime:     b.Start.String(),
		EndTime:       b.End.String(),
		Status:        string(b.Status),
		Notes:         b.Notes,
	}
	if !b.CreatedAt.IsZero() {
		v.CreatedAt = b.CreatedAt.UTC().Format(time.RFC3339)
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps engine sentinels onto HTTP statuses. Conflict
// cases (slot taken, staff busy) are handled by Create itself because
// they carry an alternative slot in the body.
func (h *BookingHandler) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, scheduling.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, scheduling.ErrNoCompatibleRoom),
		errors.Is(err, scheduling.ErrNoCompatibleStaff),
		errors.Is(err, scheduling.ErrGenderMismatch),
		errors.Is(err, scheduling.ErrBranchClosed):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, scheduling.ErrSlotUnavailable), errors.Is(err, scheduling.ErrStaffBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.logger.Error("request failed", "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *BookingHandler) FindAvailableSlot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req findSlotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	gender, err := model.ParsePatientGender(strings.TrimSpace(req.PatientGender))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var from time.Time
	if req.From != "" {
		from, err = time.Parse(time.RFC3339, req.From)
		if err != nil {
			http.Error(w, "invalid from: must be RFC3339", http.StatusBadRequest)
			return
		}
	}

	slot, found, err := h.finder.FindSlot(r.Context(), scheduling.FindSlotRequest{
		BranchID:      strings.TrimSpace(req.BranchID),
		TreatmentID:   strings.TrimSpace(req.TreatmentID),
		PatientGender: gender,
		From:          from,
	})
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	resp := findSlotResponse{Found: found}
	if found {
		resp.Slot = viewSlot(slot)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BookingHandler) AvailableStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	branchID := strings.TrimSpace(r.URL.Query().Get("branch_id"))
	treatmentID := strings.TrimSpace(r.URL.Query().Get("treatment_id"))
	if branchID == "" || treatmentID == "" {
		http.Error(w, "branch_id and treatment_id are required", http.StatusBadRequest)
		return
	}

	staff, err := h.staff.Staff(r.Context(), branchID, treatmentID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	items := make([]staffItem, 0, len(staff))
	for _, s := range staff {
		items = append(items, staffItem{ID: s.ID, Name: s.Name, Gender: string(s.Gender), Role: s.Role})
	}
	writeJSON(w, http.StatusOK, map[string]any{"staff": items})
}

func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	// A patient_id must reference a real record; an emr_patient_id
	// without one resolves through the EMR mapping. Intake fields left
	// blank are filled from the record.
	if id := strings.TrimSpace(req.PatientID); id != "" {
		patient, err := h.patients.GetPatient(r.Context(), id)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		req.fillFromPatient(patient)
	} else if emrID := strings.TrimSpace(req.EMRPatientID); emrID != "" {
		patient, err := h.patients.GetByEMRID(r.Context(), emrID)
		if err != nil && !errors.Is(err, scheduling.ErrNotFound) {
			h.writeEngineError(w, err)
			return
		}
		if err == nil {
			req.PatientID = patient.ID
			req.fillFromPatient(patient)
		}
	}

	engineReq, err := req.toEngine()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	booking, err := h.booker.CreateBooking(r.Context(), engineReq)
	if err != nil {
		if errors.Is(err, scheduling.ErrSlotUnavailable) || errors.Is(err, scheduling.ErrStaffBusy) {
			h.writeConflict(r.Context(), w, engineReq, err)
			return
		}
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewBooking(booking))
}

// writeConflict answers a lost race with 409 plus, when the search
// engine can still find one, the next slot the client could take.
func (h *BookingHandler) writeConflict(ctx context.Context, w http.ResponseWriter, req scheduling.CreateBookingRequest, cause error) {
	resp := conflictResponse{Error: cause.Error()}

	from := time.Date(req.Date.Year(), req.Date.Month(), req.Date.Day(), 0, 0, 0, 0, time.UTC).
		Add(time.Duration(req.Start) * time.Minute)
	slot, found, err := h.finder.FindSlot(ctx, scheduling.FindSlotRequest{
		BranchID:      req.BranchID,
		TreatmentID:   req.TreatmentID,
		PatientGender: req.PatientGender,
		From:          from,
	})
	if err != nil {
		h.logger.Warn("next-slot search after conflict failed", "err", err)
	} else if found {
		resp.NextAvailableSlot = viewSlot(slot)
	}
	writeJSON(w, http.StatusConflict, resp)
}

func (req *createBookingRequest) fillFromPatient(p model.Patient) {
	if req.PatientName == "" {
		req.PatientName = p.Name
	}
	if req.PatientGender == "" {
		req.PatientGender = string(p.Gender)
	}
	if req.Phone == "" {
		req.Phone = p.Phone
	}
	if req.EMRPatientID == "" {
		req.EMRPatientID = p.EMRPatientID
	}
}

func (req *createBookingRequest) toEngine() (scheduling.CreateBookingRequest, error) {
	gender, err := model.ParsePatientGender(strings.TrimSpace(req.PatientGender))
	if err != nil {
		return scheduling.CreateBookingRequest{}, err
	}
	date, err := model.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		return scheduling.CreateBookingRequest{}, err
	}
	start, err := model.ParseTimeOfDay(strings.TrimSpace(req.StartTime))
	if err != nil {
		return scheduling.CreateBookingRequest{}, err
	}
	var end model.TimeOfDay
	if strings.TrimSpace(req.EndTime) != "" {
		end, err = model.ParseTimeOfDay(strings.TrimSpace(req.EndTime))
		if err != nil {
			return scheduling.CreateBookingRequest{}, err
		}
	}
	return scheduling.CreateBookingRequest{
		BranchID:      strings.TrimSpace(req.BranchID),
		TreatmentID:   strings.TrimSpace(req.TreatmentID),
		RoomID:        strings.TrimSpace(req.RoomID),
		StaffID:       strings.TrimSpace(req.StaffID),
		PatientID:     strings.TrimSpace(req.PatientID),
		EMRPatientID:  strings.TrimSpace(req.EMRPatientID),
		PatientName:   strings.TrimSpace(req.PatientName),
		PatientGender: gender,
		Phone:         strings.TrimSpace(req.Phone),
		Date:          date,
		Start:         start,
		End:           end,
		Notes:         req.Notes,
	}, nil
}

func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	if req.BookingID == "" {
		http.Error(w, "booking_id is required", http.StatusBadRequest)
		return
	}

	cancelled, err := h.booker.CancelBooking(r.Context(), req.BookingID, req.Reason)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelBookingResponse{
		BookingID: req.BookingID,
		Cancelled: cancelled,
	})
}

func (h *BookingHandler) MarkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.BookingID = strings.TrimSpace(req.BookingID)
	status, err := model.ParseBookingStatus(strings.TrimSpace(req.Status))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if status == model.BookingCancelled {
		// Cancellation releases grid cells, so it goes through Cancel.
		cancelled, err := h.booker.CancelBooking(r.Context(), req.BookingID, req.Note)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		if !cancelled {
			http.Error(w, "booking not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cancelBookingResponse{BookingID: req.BookingID, Cancelled: true})
		return
	}

	booking, err := h.booker.MarkStatus(r.Context(), req.BookingID, status, req.Note)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBooking(booking))
}

func (h *BookingHandler) Get(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimSpace(r.URL.Query().Get("id"))
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	booking, err := h.bookings.GetBooking(r.Context(), id)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewBooking(booking))
}

func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	filter := storage.BookingFilter{
		BranchID: strings.TrimSpace(q.Get("branch_id")),
		RoomID:   strings.TrimSpace(q.Get("room_id")),
		StaffID:  strings.TrimSpace(q.Get("staff_id")),
		Status:   strings.TrimSpace(q.Get("status")),
	}
	if d := strings.TrimSpace(q.Get("date")); d != "" {
		date, err := model.ParseDate(d)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		filter.Date = date
	}
	if l := strings.TrimSpace(q.Get("limit")); l != "" {
		limit, err := strconv.Atoi(l)
		if err != nil || limit < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		filter.Limit = limit
	}

	bookings, err := h.bookings.List(r.Context(), filter)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	items := make([]bookingView, 0, len(bookings))
	for _, b := range bookings {
		items = append(items, viewBooking(b))
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": items})
}
