package storage

import (
	"context"
	"time"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/scheduling"
)

// Table: room_availability_slots(id bigserial, branch_id, room_id,
// date, time_slot time, status, booking_id uuid null,
// unique(room_id, date, time_slot)).
type GridRepository struct {
	pool *db.Pool
}

func NewGridRepository(pool *db.Pool) *GridRepository {
	return &GridRepository{pool: pool}
}

// SessionStates reports, per room, whether any cells exist for the
// date and whether both half-hour cells of a session starting at start
// are Available. Rooms with no cells at all come back unmaterialized;
// the search engine falls back to a booking overlap check for those.
func (r *GridRepository) SessionStates(ctx context.Context, roomIDs []string, date time.Time, start model.TimeOfDay) (map[string]scheduling.RoomDayState, error) {
	out := make(map[string]scheduling.RoomDayState, len(roomIDs))
	for _, id := range roomIDs {
		out[id] = scheduling.RoomDayState{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT room_id::text,
			COUNT(*) FILTER (
				WHERE time_slot IN ($3::time, $4::time) AND status = 'Available'
			)
		FROM room_availability_slots
		WHERE room_id = ANY($1) AND date = $2
		GROUP BY room_id
	`, roomIDs, date, start.Clock(), start.Add(model.SlotMinutes).Clock())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var open int
		if err := rows.Scan(&id, &open); err != nil {
			return nil, err
		}
		out[id] = scheduling.RoomDayState{Materialized: true, BothOpen: open == 2}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertCells writes a day's worth of cells for one room. Without
// force, existing cells are left untouched; with force they are
// overwritten, booked cells included. Returns the number of cells
// written.
func (r *GridRepository) UpsertCells(ctx context.Context, cells []model.GridCell, force bool) (int64, error) {
	if len(cells) == 0 {
		return 0, nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conflict := `ON CONFLICT (room_id, date, time_slot) DO NOTHING`
	if force {
		conflict = `ON CONFLICT (room_id, date, time_slot) DO UPDATE
			SET status = EXCLUDED.status, booking_id = NULL`
	}

	var written int64
	for _, c := range cells {
		tag, err := tx.Exec(ctx, `
			INSERT INTO room_availability_slots (branch_id, room_id, date, time_slot, status)
			VALUES ($1, $2, $3, $4, $5)
		`+conflict, c.BranchID, c.RoomID, c.Date, c.Slot.Clock(), string(c.Status))
		if err != nil {
			return 0, err
		}
		written += tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return written, nil
}

// DeleteCellsBefore removes all cells dated strictly before cutoff.
func (r *GridRepository) DeleteCellsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM room_availability_slots
		WHERE date < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DayCells returns a room's cells for one date ordered by slot. Backs
// the admin grid inspection endpoint and gridctl.
func (r *GridRepository) DayCells(ctx context.Context, roomID string, date time.Time) ([]model.GridCell, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT branch_id::text, room_id::text, date, time_slot, status, COALESCE(booking_id::text, '')
		FROM room_availability_slots
		WHERE room_id = $1 AND date = $2
		ORDER BY time_slot
	`, roomID, date)
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
