package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/utils"
)

type facilityRequest struct {
	Name           string   `json:"name" validate:"required"`
	Municipality   string   `json:"municipality"`
	Address        string   `json:"address"`
	Latitude       *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude      *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Specialties    []string `json:"specialties" validate:"required,min=1"`
	TransportScore *float64 `json:"transportScore" validate:"omitempty,gte=0,lte=1"`
	WaitDays       *float64 `json:"waitDays" validate:"omitempty,gte=0"`
}

func (req *facilityRequest) toFacility() (*domain.Facility, error) {
	facility := &domain.Facility{
		Name:         req.Name,
		Municipality: req.Municipality,
		Address:      req.Address,
		Latitude:     *req.Latitude,
		Longitude:    *req.Longitude,
		Specialties:  domain.NormalizeSpecialties(req.Specialties),
	}
	utils.ApplyFacilityDefaults(facility, req.TransportScore, req.WaitDays)

	if err := utils.ValidateFacility(facility); err != nil {
		return nil, err
	}
	return facility, nil
}

func (h *Handler) facilityConstraintError(w http.ResponseWriter, r *http.Request, err error) {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr) && pgErr.ConstraintName == "facilities_name_key":
		h.errorResponse(w, r, ReasonConflict, "机构名称已存在")
	case errors.Is(err, sql.ErrNoRows):
		h.errorResponse(w, r, ReasonConflict, "更新机构信息失败，请重试")
	default:
		h.internalServerError(w, r, err)
	}
}

func (h *Handler) CreateFacility(w http.ResponseWriter, r *http.Request) {
	var req facilityRequest

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	facility, err := req.toFacility()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.CreateFacility(r.Context(), facility); err != nil {
		h.facilityConstraintError(w, r, err)
		return
	}

	h.successResponse(w, r, "创建机构成功", facility)
}

func (h *Handler) GetAllFacilities(w http.ResponseWriter, r *http.Request) {
	facilities, err := h.repository.GetAllFacilities(r.Context())
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取机构列表成功", facilities)
}

func (h *Handler) GetFacility(w http.ResponseWriter, r *http.Request) {
	facility := r.Context().Value(FacilityCtx).(*domain.Facility)
	h.successResponse(w, r, "获取机构信息成功", facility)
}

func (h *Handler) UpdateFacility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           *string  `json:"name"`
		Municipality   *string  `json:"municipality"`
		Address        *string  `json:"address"`
		Latitude       *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
		Longitude      *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
		Specialties    []string `json:"specialties" validate:"omitempty,min=1"`
		TransportScore *float64 `json:"transportScore" validate:"omitempty,gte=0,lte=1"`
		WaitDays       *float64 `json:"waitDays" validate:"omitempty,gte=0"`
	}

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	facility := r.Context().Value(FacilityCtx).(*domain.Facility)

	if req.Name != nil {
		facility.Name = *req.Name
	}
	if req.Municipality != nil {
		facility.Municipality = *req.Municipality
	}
	if req.Address != nil {
		facility.Address = *req.Address
	}
	if req.Latitude != nil {
		facility.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		facility.Longitude = *req.Longitude
	}
	if req.Specialties != nil {
		facility.Specialties = domain.NormalizeSpecialties(req.Specialties)
	}
	if req.TransportScore != nil {
		facility.TransportScore = *req.TransportScore
	}
	if req.WaitDays != nil {
		facility.WaitDays = *req.WaitDays
	}

	if err := utils.ValidateFacility(facility); err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.UpdateFacility(r.Context(), facility); err != nil {
		h.facilityConstraintError(w, r, err)
		return
	}

	h.successResponse(w, r, "更新机构信息成功", facility)
}

func (h *Handler) DeleteFacility(w http.ResponseWriter, r *http.Request) {
	facility := r.Context().Value(FacilityCtx).(*domain.Facility)

	if err := h.repository.DeleteFacility(r.Context(), facility.ID); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "删除机构成功", nil)
}
