package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func (r *Repository) insertFacilitySpecialties(ctx context.Context, tx *sql.Tx, facility *domain.Facility) error {
	query := `INSERT INTO facility_specialties (facility_id, specialty) VALUES ($1, $2)`
	for _, sp := range facility.Specialties {
		if _, err := tx.ExecContext(ctx, query, facility.ID, sp); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) CreateFacility(ctx context.Context, facility *domain.Facility) error {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		INSERT INTO facilities (name, municipality, address, latitude, longitude, transport_score, wait_days)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, version
	`
	args := []any{facility.Name, facility.Municipality, facility.Address, facility.Latitude, facility.Longitude, facility.TransportScore, facility.WaitDays}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&facility.ID, &facility.CreatedAt, &facility.Version); err != nil {
		return err
	}

	if err := r.insertFacilitySpecialties(ctx, tx, facility); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) scanFacilities(rows *sql.Rows) ([]*domain.Facility, error) {
	facilities := make([]*domain.Facility, 0)
	facilitiesMap := make(map[int64]*domain.Facility)

	for rows.Next() {
		var row struct {
			ID             int64
			Name           string
			Municipality   string
			Address        string
			Latitude       float64
			Longitude      float64
			TransportScore float64
			WaitDays       float64
			CreatedAt      time.Time
			Version        int32

			Specialty sql.NullString
		}

		dst := []any{
			&row.ID,
			&row.Name,
			&row.Municipality,
			&row.Address,
			&row.Latitude,
			&row.Longitude,
			&row.TransportScore,
			&row.WaitDays,
			&row.CreatedAt,
			&row.Version,
			&row.Specialty,
		}
		if err := rows.Scan(dst...); err != nil {
			return nil, err
		}

		facility, exists := facilitiesMap[row.ID]
		if !exists {
			// 第一次查到这个机构，需要先初始化
			facility = &domain.Facility{
				ID:             row.ID,
				Name:           row.Name,
				Municipality:   row.Municipality,
				Address:        row.Address,
				Latitude:       row.Latitude,
				Longitude:      row.Longitude,
				TransportScore: row.TransportScore,
				WaitDays:       row.WaitDays,
				Specialties:    make([]domain.Specialty, 0),
				CreatedAt:      row.CreatedAt,
				Version:        row.Version,
			}
			facilitiesMap[row.ID] = facility
			facilities = append(facilities, facility)
		}

		if !row.Specialty.Valid {
			// 说明这个机构还没有登记任何专科
			continue
		}

		facility.Specialties = append(facility.Specialties, domain.Specialty(row.Specialty.String))
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return facilities, nil
}

const facilitySelect = `
	SELECT
		f.id,
		f.name,
		f.municipality,
		f.address,
		f.latitude,
		f.longitude,
		f.transport_score,
		f.wait_days,
		f.created_at,
		f.version,
		fs.specialty
	FROM facilities f
	LEFT JOIN facility_specialties fs ON f.id = fs.facility_id
`

func (r *Repository) GetAllFacilities(ctx context.Context) ([]*domain.Facility, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, facilitySelect+` ORDER BY f.id, fs.specialty`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanFacilities(rows)
}

func (r *Repository) GetFacilityByID(ctx context.Context, id int64) (*domain.Facility, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	rows, err := r.dbpool.QueryContext(ctx, facilitySelect+` WHERE f.id = $1 ORDER BY fs.specialty`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	facilities, err := r.scanFacilities(rows)
	if err != nil {
		return nil, err
	}
	if len(facilities) == 0 {
		return nil, sql.ErrNoRows
	}

	return facilities[0], nil
}

func (r *Repository) UpdateFacility(ctx context.Context, facility *domain.Facility) error {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 通过 version 实现乐观锁
	query := `
		UPDATE facilities
		SET
			name = $1,
			municipality = $2,
			address = $3,
			latitude = $4,
			longitude = $5,
			transport_score = $6,
			wait_days = $7,
			version = version + 1
		WHERE id = $8 AND version = $9
		RETURNING version
	`
	args := []any{facility.Name, facility.Municipality, facility.Address, facility.Latitude, facility.Longitude, facility.TransportScore, facility.WaitDays, facility.ID, facility.Version}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&facility.Version); err != nil {
		return err
	}

	// 专科列表直接整体替换
	if _, err := tx.ExecContext(ctx, `DELETE FROM facility_specialties WHERE facility_id = $1`, facility.ID); err != nil {
		return err
	}
	if err := r.insertFacilitySpecialties(ctx, tx, facility); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) DeleteFacility(ctx context.Context, id int64) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	_, err := r.dbpool.ExecContext(ctx, `DELETE FROM facilities WHERE id = $1`, id)
	return err
}
