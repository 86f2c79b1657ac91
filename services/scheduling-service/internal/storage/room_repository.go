package storage

import (
	"context"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Tables: branch_rooms(id uuid, branch_id, name, gender) and
// room_treatment_assignments(room_id, treatment_id) unique pair.
type RoomRepository struct {
	pool *db.Pool
}

func NewRoomRepository(pool *db.Pool) *RoomRepository {
	return &RoomRepository{pool: pool}
}

func (r *RoomRepository) RoomsForTreatment(ctx context.Context, branchID, treatmentID string) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rm.id::text, rm.branch_id::text, rm.name, rm.gender
		FROM branch_rooms rm
		JOIN room_treatment_assignments a ON a.room_id = rm.id
		WHERE rm.branch_id = $1 AND a.treatment_id = $2
		ORDER BY rm.id
	`, branchID, treatmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func (r *RoomRepository) ListByBranch(ctx context.Context, branchID string) ([]model.Room, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, branch_id::text, name, gender
		FROM branch_rooms
		WHERE branch_id = $1
		ORDER BY id
	`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRooms(rows)
}

func collectRooms(rows interface {
	Next() bool
	Scan(...any) error
	Err() error
}) ([]model.Room, error) {
	var out []model.Room
	for rows.Next() {
		var rm model.Room
		var gender string
		if err := rows.Scan(&rm.ID, &rm.BranchID, &rm.Name, &gender); err != nil {
			return nil, err
		}
		rm.Gender = model.Gender(gender)
		out = append(out, rm)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
