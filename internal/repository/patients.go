package repository

import (
	"context"
	"database/sql"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

const patientColumns = `id, full_name, latitude, longitude, specialty, status, facility_id, created_at, version`

func scanPatient(row interface{ Scan(dest ...any) error }) (*domain.Patient, error) {
	patient := &domain.Patient{}
	var facilityID sql.NullInt64

	dst := []any{&patient.ID, &patient.FullName, &patient.Latitude, &patient.Longitude, &patient.Specialty, &patient.Status, &facilityID, &patient.CreatedAt, &patient.Version}
	if err := row.Scan(dst...); err != nil {
		return nil, err
	}
	if facilityID.Valid {
		patient.FacilityID = &facilityID.Int64
	}

	return patient, nil
}

func (r *Repository) CreatePatient(ctx context.Context, patient *domain.Patient) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		INSERT INTO patients (full_name, latitude, longitude, specialty)
		VALUES ($1, $2, $3, $4)
		RETURNING id, status, created_at, version
	`
	args := []any{patient.FullName, patient.Latitude, patient.Longitude, patient.Specialty}
	return r.dbpool.QueryRowContext(ctx, query, args...).Scan(&patient.ID, &patient.Status, &patient.CreatedAt, &patient.Version)
}

func (r *Repository) GetPatientByID(ctx context.Context, id int64) (*domain.Patient, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `SELECT ` + patientColumns + ` FROM patients WHERE id = $1`
	return scanPatient(r.dbpool.QueryRowContext(ctx, query, id))
}

// GetPatientsByStatus 按 id 升序返回，染色体中基因的顺序依赖于这个顺序
func (r *Repository) GetPatientsByStatus(ctx context.Context, status domain.PatientStatus) ([]*domain.Patient, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `SELECT ` + patientColumns + ` FROM patients WHERE status = $1 ORDER BY id`
	rows, err := r.dbpool.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	patients := make([]*domain.Patient, 0)
	for rows.Next() {
		patient, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		patients = append(patients, patient)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return patients, nil
}
