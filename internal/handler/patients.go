package handler

import (
	"net/http"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/utils"
)

type patientRequest struct {
	FullName  string   `json:"fullName"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Specialty string   `json:"specialty" validate:"required"`
}

func (req *patientRequest) toPatient() (*domain.Patient, error) {
	patient := &domain.Patient{
		FullName:  req.FullName,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Specialty: domain.Specialty(req.Specialty),
		Status:    domain.PatientStatusWaiting,
	}
	if err := utils.ValidatePatient(patient); err != nil {
		return nil, err
	}
	return patient, nil
}

func (h *Handler) CreatePatient(w http.ResponseWriter, r *http.Request) {
	var req patientRequest

	if err := h.readJSON(w, r, &req); err != nil {
		h.badRequest(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.badRequest(w, r, err)
		return
	}

	patient, err := req.toPatient()
	if err != nil {
		h.badRequest(w, r, err)
		return
	}

	if err := h.repository.CreatePatient(r.Context(), patient); err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "登记患者成功", patient)
}

func (h *Handler) GetWaitingPatients(w http.ResponseWriter, r *http.Request) {
	patients, err := h.repository.GetPatientsByStatus(r.Context(), domain.PatientStatusWaiting)
	if err != nil {
		h.internalServerError(w, r, err)
		return
	}

	h.successResponse(w, r, "获取等待分配的患者成功", patients)
}
