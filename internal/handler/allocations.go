package handler

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/allocator"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/metrics"
)

type singleFacilityRequest struct {
	ID int64 `json:"id" validate:"required"`
	facilityRequest
}

func (h *Handler) AllocateSinglePatient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Patient    *patientRequest         `json:"patient" validate:"required"`
		Facilities []singleFacilityRequest `json:"facilities" validate:"omitempty,dive"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	patient, err := req.Patient.toPatient()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	// 没有提供机构列表时使用数据库中的机构
	var facilities []*domain.Facility
	if len(req.Facilities) > 0 {
		facilities = make([]*domain.Facility, len(req.Facilities))
		for i, f := range req.Facilities {
			facility, err := f.toFacility()
			if err != nil {
				h.badRequest(w, r, err)
				return
			}
			facility.ID = f.ID
			facilities[i] = facility
		}
	} else {
		facilities, err = h.repository.GetAllFacilities(r.Context())
		if err != nil {
			h.internalServerError(w, r, err)
			return
		}
	}

	parameters := h.config.SingleParameters()

	key, err := singleCacheKey(patient, facilities, parameters)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}
	if res := h.cachedSingleResult(r.Context(), key); res != nil {
		h.metrics.IncCacheHits()
		h.successResponse(w, r, "分配成功", res)
		return
	}

	start := time.Now()
	res, err := allocator.AllocateSinglePatient(patient, facilities, parameters)
	if err != nil {
		h.metrics.ObserveFailure(metrics.ModeSingle)
		h.allocationFailure(w, r, err)
		return
	}
	h.metrics.ObserveRun(metrics.ModeSingle, time.Since(start), res.Best.Fitness, res.Diagnostics.Unallocated)

	h.cacheSingleResult(r.Context(), key, res)

	h.successResponse(w, r, "分配成功", res)
}

// 相同的患者、机构列表和参数得到的结果是确定的，因此可以直接缓存
func singleCacheKey(patient *domain.Patient, facilities []*domain.Facility, parameters allocator.Parameters) (string, error) {
	payload, err := json.Marshal(struct {
		Patient    *domain.Patient                `json:"patient"`
		Facilities []*domain.Facility             `json:"facilities"`
		Parameters domain.AllocationRunParameters `json:"parameters"`
	}{patient, facilities, parameters.Record()})
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256(payload)
	return "allocation_single_" + hex.EncodeToString(sum[:]), nil
}

func (h *Handler) cachedSingleResult(ctx context.Context, key string) *allocator.SingleResult {
	if h.redisClient == nil || h.config.Allocator.SingleCacheTTL <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	data, err := h.redisClient.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("读取单个患者分配缓存失败", "key", key, "error", err)
		}
		return nil
	}

	res := &allocator.SingleResult{}
	if err := json.Unmarshal(data, res); err != nil {
		slog.Warn("解析单个患者分配缓存失败", "key", key, "error", err)
		return nil
	}
	return res
}

// 缓存失败不影响本次请求
func (h *Handler) cacheSingleResult(ctx context.Context, key string, res *allocator.SingleResult) {
	if h.redisClient == nil || h.config.Allocator.SingleCacheTTL <= 0 {
		return
	}

	data, err := json.Marshal(res)
	if err != nil {
		slog.Warn("序列化单个患者分配结果失败", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(h.config.Redis.OperationExpiration)*time.Second)
	defer cancel()

	ttl := time.Duration(h.config.Allocator.SingleCacheTTL) * time.Second
	if err := h.redisClient.Set(ctx, key, data, ttl).Err(); err != nil {
		slog.Warn("写入单个患者分配缓存失败", "key", key, "error", err)
	}
}

func (h *Handler) CreateAllocationRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PopulationSize *int     `json:"populationSize" validate:"omitempty,gte=1"`
		Generations    *int     `json:"generations" validate:"omitempty,gte=0"`
		CrossoverRate  *float64 `json:"crossoverRate" validate:"omitempty,gte=0,lte=1"`
		MutationRate   *float64 `json:"mutationRate" validate:"omitempty,gte=0,lte=1"`
		Elitism        *float64 `json:"elitism" validate:"omitempty,gte=0,lte=1"`
		TournamentSize *int     `json:"tournamentSize" validate:"omitempty,gte=1"`
		Seed           *int64   `json:"seed"`
	}

	// 请求体可以为空，此时全部使用配置中的参数
	if err := h.readJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	parameters := h.config.BatchParameters()
	if req.PopulationSize != nil {
		parameters.PopulationSize = *req.PopulationSize
	}
	if req.Generations != nil {
		parameters.Generations = *req.Generations
	}
	if req.CrossoverRate != nil {
		parameters.CrossoverRate = *req.CrossoverRate
	}
	if req.MutationRate != nil {
		parameters.MutationRate = *req.MutationRate
	}
	if req.Elitism != nil {
		parameters.Elitism = *req.Elitism
	}
	if req.TournamentSize != nil {
		parameters.TournamentSize = *req.TournamentSize
	}
	if req.Seed != nil {
		parameters.Seed = *req.Seed
	}
	if err := parameters.Validate(); err != nil {
		h.errorResponse(w, r, ReasonInvalidParameters, err.Error())
		return
	}

	myInfo := r.Context().Value(MyInfoCtx).(*domain.User)

	run := &domain.AllocationRun{
		RequestedBy: myInfo.ID,
		Parameters:  parameters.Record(),
		Assignments: make([]domain.AllocationAssignment, 0),
		History:     make([]domain.GenerationRecord, 0),
	}
	if err := h.repository.CreateAllocationRun(r.Context(), run); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	if err := h.publish(allocationQueue, domain.AllocationJob{RunID: run.ID}); err != nil {
		// 投递失败的任务永远不会被执行，直接标记为失败
		if failErr := h.repository.FailAllocationRun(r.Context(), run.ID, err.Error()); failErr != nil {
			slog.Error("标记分配任务失败时出错", "runID", run.ID, "error", failErr)
		}
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "分配任务已提交", run)
}

func (h *Handler) GetAllocationRun(w http.ResponseWriter, r *http.Request) {
	run := r.Context().Value(AllocationRunCtx).(*domain.AllocationRun)
	h.successResponse(w, r, "获取分配任务成功", run)
}
