package scheduling

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// In-memory fakes backing the engine tests. The fake transaction
// stages every mutation and applies it only on Commit, so the tests
// can assert that failed bookings leave no partial state behind.

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustDate(t string) time.Time {
	d, err := model.ParseDate(t)
	if err != nil {
		panic(err)
	}
	return d
}

func hhmm(s string) model.TimeOfDay {
	t, err := model.ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func sameDay(a, b time.Time) bool {
	return model.DateString(a) == model.DateString(b)
}

type fakeDir struct {
	branches   map[string]model.Branch
	treatments map[string]model.Treatment
	rooms      []model.Room
	staff      []model.Staff
}

func (d *fakeDir) GetBranch(_ context.Context, id string) (model.Branch, error) {
	b, ok := d.branches[id]
	if !ok {
		return model.Branch{}, ErrNotFound
	}
	return b, nil
}

func (d *fakeDir) GetTreatment(_ context.Context, id string) (model.Treatment, error) {
	t, ok := d.treatments[id]
	if !ok {
		return model.Treatment{}, ErrNotFound
	}
	return t, nil
}

func (d *fakeDir) RoomsForTreatment(_ context.Context, branchID, _ string) ([]model.Room, error) {
	var out []model.Room
	for _, r := range d.rooms {
		if r.BranchID == branchID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (d *fakeDir) StaffForTreatment(_ context.Context, branchID, _ string) ([]model.Staff, error) {
	var out []model.Staff
	for _, s := range d.staff {
		if s.BranchID == branchID {
			out = append(out, s)
		}
	}
	return out, nil
}

type gridCell struct {
	status    model.SlotStatus
	bookingID string
}

type fakeGrid struct {
	cells map[string]gridCell
}

func newFakeGrid() *fakeGrid {
	return &fakeGrid{cells: map[string]gridCell{}}
}

func cellKey(roomID string, date time.Time, t model.TimeOfDay) string {
	return roomID + "|" + model.DateString(date) + "|" + t.String()
}

func (g *fakeGrid) seedDay(roomID string, date time.Time, open, close model.TimeOfDay) {
	for t := open; t.Before(close); t = t.Add(model.SlotMinutes) {
		g.cells[cellKey(roomID, date, t)] = gridCell{status: model.SlotAvailable}
	}
}

func (g *fakeGrid) set(roomID string, date time.Time, t model.TimeOfDay, status model.SlotStatus, bookingID string) {
	g.cells[cellKey(roomID, date, t)] = gridCell{status: status, bookingID: bookingID}
}

func (g *fakeGrid) SessionStates(_ context.Context, roomIDs []string, date time.Time, start model.TimeOfDay) (map[string]RoomDayState, error) {
	out := make(map[string]RoomDayState, len(roomIDs))
	for _, id := range roomIDs {
		prefix := id + "|" + model.DateString(date) + "|"
		var state RoomDayState
		open := 0
		for k, c := range g.cells {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			state.Materialized = true
			first := prefix + start.String()
			second := prefix + start.Add(model.SlotMinutes).String()
			if (k == first || k == second) && c.status == model.SlotAvailable {
				open++
			}
		}
		state.BothOpen = open == 2
		out[id] = state
	}
	return out, nil
}

type fakeEvent struct {
	Type        string
	AggregateID string
	Payload     any
}

type fakeBookingStore struct {
	dir  *fakeDir
	grid *fakeGrid

	bookings []model.Booking
	events   []fakeEvent
	nextID   int
	lastTx   *fakeTx
}

func newFakeStore(dir *fakeDir, grid *fakeGrid) *fakeBookingStore {
	return &fakeBookingStore{dir: dir, grid: grid, nextID: 1}
}

func (s *fakeBookingStore) addBooking(b model.Booking) model.Booking {
	if b.ID == "" {
		b.ID = fmt.Sprintf("bk-%04d", s.nextID)
		s.nextID++
	}
	if b.End == 0 {
		b.End = b.Start.Add(model.SessionMinutes)
	}
	if b.Status == "" {
		b.Status = model.BookingPlanned
	}
	s.bookings = append(s.bookings, b)
	return b
}

func (s *fakeBookingStore) RoomsWithOverlap(_ context.Context, roomIDs []string, date time.Time, start, end model.TimeOfDay) (map[string]bool, error) {
	out := map[string]bool{}
	for _, id := range roomIDs {
		for _, b := range s.bookings {
			if b.RoomID == id && sameDay(b.Date, date) && b.Status.Occupies() && b.Overlaps(start, end) {
				out[id] = true
			}
		}
	}
	return out, nil
}

func (s *fakeBookingStore) StaffBookings(_ context.Context, staffID string, date time.Time) ([]model.Booking, error) {
	var out []model.Booking
	for _, b := range s.bookings {
		if b.StaffID == staffID && sameDay(b.Date, date) && b.Status.Occupies() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeBookingStore) Begin(_ context.Context) (BookingTx, error) {
	tx := &fakeTx{store: s, statuses: map[string]stagedStatus{}}
	s.lastTx = tx
	return tx, nil
}

type stagedStatus struct {
	status model.BookingStatus
	notes  string
}

type cellWrite struct {
	roomID    string
	date      time.Time
	slot      model.TimeOfDay
	bookingID string
}

type fakeTx struct {
	store *fakeBookingStore

	inserted   []model.Booking
	statuses   map[string]stagedStatus
	cellWrites []cellWrite
	releases   []string
	events     []fakeEvent

	committed  bool
	rolledBack bool
}

func (tx *fakeTx) LockRoom(_ context.Context, roomID string) (model.Room, error) {
	for _, r := range tx.store.dir.rooms {
		if r.ID == roomID {
			return r, nil
		}
	}
	return model.Room{}, ErrNotFound
}

func (tx *fakeTx) LockStaff(_ context.Context, staffID string) (model.Staff, error) {
	for _, s := range tx.store.dir.staff {
		if s.ID == staffID {
			return s, nil
		}
	}
	return model.Staff{}, ErrNotFound
}

func (tx *fakeTx) RoomHasOverlap(ctx context.Context, roomID string, date time.Time, start, end model.TimeOfDay) (bool, error) {
	hit, err := tx.store.RoomsWithOverlap(ctx, []string{roomID}, date, start, end)
	if err != nil {
		return false, err
	}
	return hit[roomID], nil
}

func (tx *fakeTx) LockCells(_ context.Context, roomID string, date time.Time, slots []model.TimeOfDay) ([]model.GridCell, error) {
	var out []model.GridCell
	for _, s := range slots {
		c, ok := tx.store.grid.cells[cellKey(roomID, date, s)]
		if !ok {
			continue
		}
		out = append(out, model.GridCell{
			RoomID:    roomID,
			Date:      date,
			Slot:      s,
			Status:    c.status,
			BookingID: c.bookingID,
		})
	}
	return out, nil
}

func (tx *fakeTx) StaffEngagedAt(_ context.Context, staffID string, date time.Time, start model.TimeOfDay) (bool, error) {
	for _, b := range tx.store.bookings {
		if b.StaffID != staffID || !sameDay(b.Date, date) || !b.Status.Occupies() {
			continue
		}
		if !start.Before(b.Start) && start.Before(b.Start.Add(EngagementMinutes)) {
			return true, nil
		}
	}
	return false, nil
}

func (tx *fakeTx) InsertBooking(_ context.Context, b model.Booking) (model.Booking, error) {
	b.ID = fmt.Sprintf("bk-%04d", tx.store.nextID)
	tx.store.nextID++
	b.CreatedAt = time.Now().UTC()
	tx.inserted = append(tx.inserted, b)
	return b, nil
}

func (tx *fakeTx) LockBooking(_ context.Context, id string) (model.Booking, error) {
	for _, b := range tx.store.bookings {
		if b.ID == id {
			return b, nil
		}
	}
	return model.Booking{}, ErrNotFound
}

func (tx *fakeTx) UpdateBookingStatus(_ context.Context, id string, status model.BookingStatus, notes string) error {
	tx.statuses[id] = stagedStatus{status: status, notes: notes}
	return nil
}

func (tx *fakeTx) MarkCellsBooked(_ context.Context, b model.Booking, slots []model.TimeOfDay) error {
	for _, slot := range slots {
		tx.cellWrites = append(tx.cellWrites, cellWrite{
			roomID:    b.RoomID,
			date:      b.Date,
			slot:      slot,
			bookingID: b.ID,
		})
	}
	return nil
}

func (tx *fakeTx) ReleaseCells(_ context.Context, bookingID string) (int64, error) {
	tx.releases = append(tx.releases, bookingID)
	var n int64
	for _, c := range tx.store.grid.cells {
		if c.bookingID == bookingID {
			n++
		}
	}
	return n, nil
}

func (tx *fakeTx) AppendEvent(_ context.Context, eventType, aggregateID string, payload any) error {
	tx.events = append(tx.events, fakeEvent{Type: eventType, AggregateID: aggregateID, Payload: payload})
	return nil
}

func (tx *fakeTx) Commit(_ context.Context) error {
	s := tx.store
	s.bookings = append(s.bookings, tx.inserted...)
	for id, st := range tx.statuses {
		for i := range s.bookings {
			if s.bookings[i].ID == id {
				s.bookings[i].Status = st.status
				s.bookings[i].Notes = st.notes
			}
		}
	}
	for _, w := range tx.cellWrites {
		s.grid.cells[cellKey(w.roomID, w.date, w.slot)] = gridCell{status: model.SlotBooked, bookingID: w.bookingID}
	}
	for _, id := range tx.releases {
		for k, c := range s.grid.cells {
			if c.bookingID == id {
				s.grid.cells[k] = gridCell{status: model.SlotAvailable}
			}
		}
	}
	s.events = append(s.events, tx.events...)
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(_ context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

// Fixture builders shared by the search and commit tests.

func openHours(open, close string) *model.DayHours {
	return &model.DayHours{Open: hhmm(open), Close: hhmm(close)}
}

// defaultHours is Mon-Fri 06:00-20:00, Sat 08:00-18:00, Sun closed.
func defaultHours() model.WeekHours {
	h := model.WeekHours{}
	for d := time.Monday; d <= time.Friday; d++ {
		h[d] = openHours("06:00", "20:00")
	}
	h[time.Saturday] = openHours("08:00", "18:00")
	return h
}

func everyHalfHour(from, to string) []model.TimeOfDay {
	var out []model.TimeOfDay
	for t := hhmm(from); !t.After(hhmm(to)); t = t.Add(model.SlotMinutes) {
		out = append(out, t)
	}
	return out
}

func allWeekdays(times []model.TimeOfDay) map[time.Weekday][]model.TimeOfDay {
	m := map[time.Weekday][]model.TimeOfDay{}
	for d := time.Sunday; d <= time.Saturday; d++ {
		m[d] = times
	}
	return m
}
