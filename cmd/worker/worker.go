package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/allocator"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/config"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/repository"
)

// errRunTaken 表示任务已经被其他 worker 处理过
var errRunTaken = errors.New("分配任务不处于等待状态")

type worker struct {
	cfg     *config.Config
	repo    *repository.Repository
	ch      *amqp.Channel
	metrics *metrics.AllocationCollector
	logger  *slog.Logger
}

func (w *worker) handle(msg amqp.Delivery) {
	job := domain.AllocationJob{}
	if err := json.Unmarshal(msg.Body, &job); err != nil {
		w.logger.Error("分配任务反序列化失败", slog.String("error", err.Error()))
		_ = msg.Nack(false, false)
		return
	}

	logger := w.logger.With(slog.Int64("runID", job.RunID))
	logger.Info("开始执行分配任务")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(w.cfg.Allocator.JobTimeout)*time.Second)
	defer cancel()

	if err := w.process(ctx, logger, job); err != nil {
		if errors.Is(err, errRunTaken) {
			logger.Warn("跳过分配任务", slog.String("error", err.Error()))
			_ = msg.Ack(false)
			return
		}

		logger.Error("分配任务执行失败", slog.String("error", err.Error()))
		w.metrics.ObserveFailure(metrics.ModeBatch)
		// 任务本身使用新的 context，避免超时之后无法写入失败状态
		if failErr := w.repo.FailAllocationRun(context.Background(), job.RunID, err.Error()); failErr != nil {
			logger.Error("无法标记分配任务失败", slog.String("error", failErr.Error()))
		}
		_ = msg.Nack(false, false)
		return
	}

	_ = msg.Ack(false)
}

func (w *worker) process(ctx context.Context, logger *slog.Logger, job domain.AllocationJob) error {
	if err := w.repo.MarkAllocationRunRunning(ctx, job.RunID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errRunTaken
		}
		return err
	}

	run, err := w.repo.GetAllocationRunByID(ctx, job.RunID)
	if err != nil {
		return err
	}

	patients, err := w.repo.GetPatientsByStatus(ctx, domain.PatientStatusWaiting)
	if err != nil {
		return err
	}
	facilities, err := w.repo.GetAllFacilities(ctx)
	if err != nil {
		return err
	}
	logger.Info("已加载分配数据", slog.Int("patients", len(patients)), slog.Int("facilities", len(facilities)))

	parameters := allocator.ParametersFromRecord(run.Parameters, w.cfg.Allocator.Workers)

	start := time.Now()
	res, err := allocator.RunContext(ctx, parameters, patients, facilities)
	if err != nil {
		return err
	}
	duration := time.Since(start)

	run.Assignments = res.Assignments(patients)
	run.Diagnostics = &res.BestDiagnostics
	run.History = res.History
	if err := w.repo.CompleteAllocationRun(ctx, run); err != nil {
		return err
	}

	w.metrics.ObserveRun(metrics.ModeBatch, duration, res.BestFitness, res.BestDiagnostics.Unallocated)
	logger.Info("分配任务已完成",
		slog.Duration("duration", duration),
		slog.Float64("fitness", res.BestFitness),
		slog.Int("unallocated", res.BestDiagnostics.Unallocated),
		slog.Int("invalids", res.BestDiagnostics.Invalids),
	)

	// 通知结果失败不影响任务本身
	if err := w.notify(ctx, run, len(patients)); err != nil {
		logger.Warn("无法发送分配完成通知", slog.String("error", err.Error()))
	}

	return nil
}

func (w *worker) notify(ctx context.Context, run *domain.AllocationRun, patients int) error {
	user, err := w.repo.GetUserByID(ctx, run.RequestedBy)
	if err != nil {
		return err
	}

	mailMessage := domain.MailMessage{
		Type: domain.MailTypeAllocationCompleted,
		To:   user.Email,
		Data: domain.AllocationCompletedMailData{
			FullName:    user.FullName,
			RunID:       run.ID,
			Patients:    patients,
			Unallocated: run.Diagnostics.Unallocated,
			Invalids:    run.Diagnostics.Invalids,
			Fitness:     run.Diagnostics.Fitness,
		},
	}
	body, err := json.Marshal(mailMessage)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(w.cfg.RabbitMQ.PublishTimeout)*time.Second)
	defer cancel()

	if err := w.ch.PublishWithContext(ctx, "", "email_queue", true, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("投递邮件失败: %w", err)
	}
	return nil
}
