package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/scheduling"
)

// Tables: staff(id uuid, branch_id, name, gender, role, phone,
// availability jsonb) and staff_treatment_assignments(staff_id,
// treatment_id) unique pair. The availability blob holds recurring
// weekday entries and date overrides in one object.
type StaffRepository struct {
	pool *db.Pool
}

func NewStaffRepository(pool *db.Pool) *StaffRepository {
	return &StaffRepository{pool: pool}
}

func (r *StaffRepository) StaffForTreatment(ctx context.Context, branchID, treatmentID string) ([]model.Staff, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id::text, s.branch_id::text, s.name, s.gender, COALESCE(s.role, ''), COALESCE(s.phone, ''), s.availability
		FROM staff s
		JOIN staff_treatment_assignments a ON a.staff_id = s.id
		WHERE s.branch_id = $1 AND a.treatment_id = $2
		ORDER BY s.id
	`, branchID, treatmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		s, err := scanStaff(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *StaffRepository) GetStaff(ctx context.Context, id string) (model.Staff, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id::text, branch_id::text, name, gender, COALESCE(role, ''), COALESCE(phone, ''), availability
		FROM staff
		WHERE id = $1
	`, id)
	s, err := scanStaff(row)
	if err != nil {
		return model.Staff{}, notFound(err, "staff", id)
	}
	return s, nil
}

// StaffSchedule is the slice of a staff row the grid pruner works on.
type StaffSchedule struct {
	ID           string
	Availability model.AvailabilitySchedule
}

func (r *StaffRepository) ListSchedules(ctx context.Context) ([]StaffSchedule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, availability
		FROM staff
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StaffSchedule
	for rows.Next() {
		var s StaffSchedule
		var blob []byte
		if err := rows.Scan(&s.ID, &blob); err != nil {
			return nil, err
		}
		if len(blob) > 0 {
			if err := json.Unmarshal(blob, &s.Availability); err != nil {
				return nil, fmt.Errorf("staff %s availability: %w", s.ID, err)
			}
		}
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *StaffRepository) UpdateAvailability(ctx context.Context, staffID string, sched model.AvailabilitySchedule) error {
	blob, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("marshal availability: %w", err)
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff
		SET availability = $2, updated_at = now()
		WHERE id = $1
	`, staffID, blob)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("staff %s: %w", staffID, scheduling.ErrNotFound)
	}
	return nil
}

func scanStaff(row interface{ Scan(...any) error }) (model.Staff, error) {
	var s model.Staff
	var gender string
	var blob []byte
	if err := row.Scan(&s.ID, &s.BranchID, &s.Name, &gender, &s.Role, &s.Phone, &blob); err != nil {
		return model.Staff{}, err
	}
	s.Gender = model.Gender(gender)
	if len(blob) > 0 {
		if err := json.Unmarshal(blob, &s.Availability); err != nil {
			return model.Staff{}, fmt.Errorf("staff %s availability: %w", s.ID, err)
		}
	}
	return s, nil
}
