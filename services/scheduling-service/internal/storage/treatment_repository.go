package storage

import (
	"context"

	"github.com/google/uuid"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Table: treatments(id uuid, external_id text unique, name).
type TreatmentRepository struct {
	pool *db.Pool
}

func NewTreatmentRepository(pool *db.Pool) *TreatmentRepository {
	return &TreatmentRepository{pool: pool}
}

func (r *TreatmentRepository) GetTreatment(ctx context.Context, id string) (model.Treatment, error) {
	var t model.Treatment
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, COALESCE(external_id, ''), name
		FROM treatments
		WHERE id = $1
	`, id).Scan(&t.ID, &t.ExternalID, &t.Name)
	if err != nil {
		return model.Treatment{}, notFound(err, "treatment", id)
	}
	return t, nil
}

func (r *TreatmentRepository) UpsertByExternalID(ctx context.Context, t model.Treatment) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO treatments (id, external_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_id) DO UPDATE
		SET name = EXCLUDED.name,
			updated_at = now()
		RETURNING id::text
	`, uuid.NewString(), t.ExternalID, t.Name).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
