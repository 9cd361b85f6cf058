package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// 批量任务提交结果时，某个患者已经不在等待状态（通常是被另一个并发的任务分配了）
var ErrPatientNotWaiting = errors.New("患者已不在等待状态")

func (r *Repository) CreateAllocationRun(ctx context.Context, run *domain.AllocationRun) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	parameters, err := json.Marshal(run.Parameters)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO allocation_runs (status, requested_by, parameters)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, version
	`
	args := []any{domain.AllocationRunStatusPending, run.RequestedBy, string(parameters)}
	if err := r.dbpool.QueryRowContext(ctx, query, args...).Scan(&run.ID, &run.CreatedAt, &run.Version); err != nil {
		return err
	}
	run.Status = domain.AllocationRunStatusPending

	return nil
}

func (r *Repository) GetAllocationRunByID(ctx context.Context, id int64) (*domain.AllocationRun, error) {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		SELECT status, requested_by, parameters, diagnostics, history, error, created_at, finished_at, version
		FROM allocation_runs WHERE id = $1
	`

	run := &domain.AllocationRun{
		ID:          id,
		Assignments: make([]domain.AllocationAssignment, 0),
		History:     make([]domain.GenerationRecord, 0),
	}
	var (
		parameters  []byte
		diagnostics []byte
		history     []byte
		finishedAt  sql.NullTime
	)

	dst := []any{&run.Status, &run.RequestedBy, &parameters, &diagnostics, &history, &run.Error, &run.CreatedAt, &finishedAt, &run.Version}
	if err := r.dbpool.QueryRowContext(ctx, query, id).Scan(dst...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(parameters, &run.Parameters); err != nil {
		return nil, err
	}
	// 还没有完成的运行没有诊断信息和历史记录
	if len(diagnostics) > 0 {
		run.Diagnostics = &domain.AllocationDiagnostics{}
		if err := json.Unmarshal(diagnostics, run.Diagnostics); err != nil {
			return nil, err
		}
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &run.History); err != nil {
			return nil, err
		}
	}
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}

	query = `
		SELECT patient_id, facility_id
		FROM allocation_run_assignments
		WHERE allocation_run_id = $1
		ORDER BY patient_id
	`
	rows, err := r.dbpool.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var assignment domain.AllocationAssignment
		var facilityID sql.NullInt64
		if err := rows.Scan(&assignment.PatientID, &facilityID); err != nil {
			return nil, err
		}
		if facilityID.Valid {
			assignment.FacilityID = &facilityID.Int64
		}
		run.Assignments = append(run.Assignments, assignment)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return run, nil
}

// MarkAllocationRunRunning 只有处于 pending 状态的运行才能被标记为 running，防止同一个任务被重复执行
func (r *Repository) MarkAllocationRunRunning(ctx context.Context, id int64) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE allocation_runs
		SET status = $1, version = version + 1
		WHERE id = $2 AND status = $3
		RETURNING version
	`
	var version int32
	return r.dbpool.QueryRowContext(ctx, query, domain.AllocationRunStatusRunning, id, domain.AllocationRunStatusPending).Scan(&version)
}

// CompleteAllocationRun 在一个事务中保存分配结果，并更新被分配患者的状态
func (r *Repository) CompleteAllocationRun(ctx context.Context, run *domain.AllocationRun) error {
	ctx, cancel := r.transactionContext(ctx)
	defer cancel()

	diagnostics, err := json.Marshal(run.Diagnostics)
	if err != nil {
		return err
	}
	history, err := json.Marshal(run.History)
	if err != nil {
		return err
	}

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	finishedAt := time.Now()
	query := `
		UPDATE allocation_runs
		SET status = $1, diagnostics = $2, history = $3, finished_at = $4, version = version + 1
		WHERE id = $5
		RETURNING version
	`
	args := []any{domain.AllocationRunStatusCompleted, string(diagnostics), string(history), finishedAt, run.ID}
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&run.Version); err != nil {
		return err
	}

	for _, assignment := range run.Assignments {
		query := `
			INSERT INTO allocation_run_assignments (allocation_run_id, patient_id, facility_id)
			VALUES ($1, $2, $3)
		`
		if _, err := tx.ExecContext(ctx, query, run.ID, assignment.PatientID, assignment.FacilityID); err != nil {
			return err
		}

		if assignment.FacilityID == nil {
			// 没有可分配的机构，患者继续等待
			continue
		}

		// 只更新仍在等待的患者，患者已被其他任务分配时整个事务回滚
		query = `
			UPDATE patients
			SET status = $1, facility_id = $2, version = version + 1
			WHERE id = $3 AND status = $4
		`
		result, err := tx.ExecContext(ctx, query, domain.PatientStatusAllocated, *assignment.FacilityID, assignment.PatientID, domain.PatientStatusWaiting)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %d", ErrPatientNotWaiting, assignment.PatientID)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	run.Status = domain.AllocationRunStatusCompleted
	run.FinishedAt = &finishedAt
	return nil
}

func (r *Repository) FailAllocationRun(ctx context.Context, id int64, reason string) error {
	ctx, cancel := r.queryContext(ctx)
	defer cancel()

	query := `
		UPDATE allocation_runs
		SET status = $1, error = $2, finished_at = $3, version = version + 1
		WHERE id = $4
	`
	_, err := r.dbpool.ExecContext(ctx, query, domain.AllocationRunStatusFailed, reason, time.Now(), id)
	return err
}
