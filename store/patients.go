package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
)

// PatientRepo resolves patient ids to registered contact details.
type PatientRepo struct {
	db bun.IDB
}

func NewPatientRepo(db bun.IDB) *PatientRepo {
	return &PatientRepo{db: db}
}

func (r *PatientRepo) FindByID(ctx context.Context, patientID string) (*Patient, error) {
	patient := new(Patient)
	err := r.db.NewSelect().
		Model(patient).
		Where("patient_id = ?", patientID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find patient %s: %w", patientID, err)
	}
	return patient, nil
}
