package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/allocator"
)

// Reason 是失败响应中给客户端程序判断用的错误类别，message 只用于展示
type Reason string

const (
	ReasonInvalidRequest       Reason = "invalid_request"
	ReasonUnauthenticated      Reason = "unauthenticated"
	ReasonInvalidCredentials   Reason = "invalid_credentials"
	ReasonForbidden            Reason = "forbidden"
	ReasonNotFound             Reason = "not_found"
	ReasonConflict             Reason = "conflict"
	ReasonNoCompatibleFacility Reason = "no_compatible_facility"
	ReasonUnresolvedFacility   Reason = "unresolved_facility"
	ReasonInvalidParameters    Reason = "invalid_parameters"
	ReasonInternal             Reason = "internal_error"
)

// 请求体最大 1 MiB，单个患者查询附带的机构列表也远小于这个值
const maxRequestBodyBytes = 1 << 20

type Response struct {
	Success bool   `json:"success"`
	Reason  Reason `json:"reason,omitempty"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// readJSON 只接受一个 JSON 值，空请求体原样返回 io.EOF 交给调用方判断
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errTrailingData
	}
	return nil
}

var errTrailingData = errors.New("请求体只能包含一个 JSON 对象")

func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("写入响应失败", "method", r.Method, "path", r.URL.Path, "error", err)
	}
}

func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, reason Reason, msg string) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: false,
		Reason:  reason,
		Message: msg,
	})
}

// badRequest 把解码错误和校验错误转换成可以直接展示给用户的信息
func (h *Handler) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErrs validator.ValidationErrors
		syntaxErr      *json.SyntaxError
		typeErr        *json.UnmarshalTypeError
		maxBytesErr    *http.MaxBytesError
	)

	msg := err.Error()
	switch {
	case errors.As(err, &validationErrs):
		msg = validationErrs[0].Translate(h.translator)
	case errors.Is(err, io.EOF):
		msg = "请求体不能为空"
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		msg = "请求体不是合法的 JSON"
	case errors.As(err, &typeErr):
		msg = fmt.Sprintf("字段 %s 的类型错误", typeErr.Field)
	case errors.As(err, &maxBytesErr):
		msg = "请求体过大"
	}

	h.errorResponse(w, r, ReasonInvalidRequest, msg)
}

// allocationFailure 区分分配失败的原因，其他错误视为服务器内部错误
func (h *Handler) allocationFailure(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, allocator.ErrNoCompatibleFacility):
		h.errorResponse(w, r, ReasonNoCompatibleFacility, err.Error())
	case errors.Is(err, allocator.ErrUnresolvedFacility):
		h.errorResponse(w, r, ReasonUnresolvedFacility, err.Error())
	case errors.Is(err, allocator.ErrInvalidParameters):
		h.errorResponse(w, r, ReasonInvalidParameters, err.Error())
	default:
		h.internalServerError(w, r, err)
	}
}

func (h *Handler) internalServerError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Error("服务器内部错误", "method", r.Method, "path", r.URL.Path, "error", err)
	h.writeJSON(w, r, http.StatusInternalServerError, Response{
		Success: false,
		Reason:  ReasonInternal,
		Message: "服务器内部错误",
	})
}

func (h *Handler) successResponse(w http.ResponseWriter, r *http.Request, msg string, data any) {
	h.writeJSON(w, r, http.StatusOK, Response{
		Success: true,
		Message: msg,
		Data:    data,
	})
}
