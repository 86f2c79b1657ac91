package storage

import (
	"context"

	"github.com/nasir-uddin/theragrid/libs/db"
	"github.com/nasir-uddin/theragrid/services/scheduling-service/internal/model"
)

// Table: patients(id uuid, emr_patient_id text unique, name, gender, phone).
type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

const patientColumns = `id::text, COALESCE(emr_patient_id, ''), name, gender, COALESCE(phone, '')`

func (r *PatientRepository) GetPatient(ctx context.Context, id string) (model.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE id = $1
	`, id)
	p, err := scanPatient(row)
	if err != nil {
		return model.Patient{}, notFound(err, "patient", id)
	}
	return p, nil
}

func (r *PatientRepository) GetByEMRID(ctx context.Context, emrID string) (model.Patient, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE emr_patient_id = $1
	`, emrID)
	p, err := scanPatient(row)
	if err != nil {
		return model.Patient{}, notFound(err, "patient emr id", emrID)
	}
	return p, nil
}

func scanPatient(row interface{ Scan(...any) error }) (model.Patient, error) {
	var p model.Patient
	var gender string
	if err := row.Scan(&p.ID, &p.EMRPatientID, &p.Name, &gender, &p.Phone); err != nil {
		return model.Patient{}, err
	}
	p.Gender = model.Gender(gender)
	return p, nil
}
