package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Table: branches(id uuid, external_id text unique, name, city,
// opening_hours jsonb, is_open bool, created_at, updated_at).
type BranchRepository struct {
	pool *db.Pool
}

func NewBranchRepository(pool *db.Pool) *BranchRepository {
	return &BranchRepository{pool: pool}
}

const branchColumns = `id::text, COALESCE(external_id, ''), name, COALESCE(city, ''), opening_hours, is_open`

func (r *BranchRepository) GetBranch(ctx context.Context, id string) (model.Branch, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE id = $1
	`, id)
	b, err := scanBranch(row)
	if err != nil {
		return model.Branch{}, notFound(err, "branch", id)
	}
	return b, nil
}

func (r *BranchRepository) ListOpen(ctx context.Context) ([]model.Branch, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+branchColumns+`
		FROM branches
		WHERE is_open
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
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

// UpsertByExternalID lands EMR master data. New branches get the hours
// passed in (the consumer supplies defaults); existing branches keep
// their locally edited hours.
func (r *BranchRepository) UpsertByExternalID(ctx context.Context, b model.Branch) (string, error) {
	hours, err := json.Marshal(b.Hours)
	if err != nil {
		return "", fmt.Errorf("marshal opening hours: %w", err)
	}
	var id string
	err = r.pool.QueryRow(ctx, `
		INSERT INTO branches (id, external_id, name, city, opening_hours, is_open)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (external_id) DO UPDATE
		SET name = EXCLUDED.name,
			city = EXCLUDED.city,
			is_open = EXCLUDED.is_open,
			updated_at = now()
		RETURNING id::text
	`, uuid.NewString(), b.ExternalID, b.Name, b.City, hours, b.IsOpen).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func scanBranch(row interface{ Scan(...any) error }) (model.Branch, error) {
	var b model.Branch
	var hours []byte
	if err := row.Scan(&b.ID, &b.ExternalID, &b.Name, &b.City, &hours, &b.IsOpen); err != nil {
		return model.Branch{}, err
	}
	if len(hours) > 0 {
		if err := json.Unmarshal(hours, &b.Hours); err != nil {
			return model.Branch{}, fmt.Errorf("branch %s opening hours: %w", b.ID, err)
		}
	}
	return b, nil
}
