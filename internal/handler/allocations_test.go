package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/allocator"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/config"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()

	cfg := &config.Config{}
	cfg.Allocator.Seed = 42
	cfg.Allocator.Workers = 1
	cfg.Allocator.Single = config.GAConfig{
		PopulationSize: 50,
		Generations:    100,
		CrossoverRate:  0.7,
		MutationRate:   0.3,
		Elitism:        0.15,
		TournamentSize: 3,
	}
	cfg.JWT.Secret = "test-secret"
	cfg.JWT.Expiration = 1

	h, err := NewHandler(cfg, nil, nil, nil, nil)
	require.NoError(t, err)
	h.RegisterRoutes()
	return h
}

type singleResponse struct {
	Success bool                    `json:"success"`
	Reason  Reason                  `json:"reason"`
	Message string                  `json:"message"`
	Data    *allocator.SingleResult `json:"data"`
}

func postSingle(t *testing.T, h *Handler, body string) singleResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/allocations/single", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var res singleResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	return res
}

const twoFacilities = `[
	{"id": 1, "name": "UPAE A", "latitude": 0, "longitude": 1, "specialties": ["Cardiologia"], "waitDays": 10},
	{"id": 2, "name": "UPAE B", "latitude": 0, "longitude": 5, "specialties": ["cardiologia"], "waitDays": 2}
]`

func TestAllocateSinglePatient_PicksNearestFacility(t *testing.T) {
	h := newTestHandler(t)

	res := postSingle(t, h, `{
		"patient": {"latitude": 0, "longitude": 0, "specialty": " CARDIOLOGIA "},
		"facilities": `+twoFacilities+`
	}`)

	require.True(t, res.Success, res.Message)
	require.NotNil(t, res.Data)
	assert.Equal(t, int64(1), res.Data.Best.Facility.ID)
	assert.InDelta(t, 111.19, res.Data.Best.DistanceKm, 0.01)
	require.Len(t, res.Data.Alternatives, 1)
	assert.Equal(t, int64(2), res.Data.Alternatives[0].Facility.ID)
	assert.Greater(t, res.Data.Best.Fitness, res.Data.Alternatives[0].Fitness)
}

func TestAllocateSinglePatient_NoCompatibleFacility(t *testing.T) {
	h := newTestHandler(t)

	res := postSingle(t, h, `{
		"patient": {"latitude": 0, "longitude": 0, "specialty": "oncologia"},
		"facilities": `+twoFacilities+`
	}`)

	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoCompatibleFacility, res.Reason)
	assert.Contains(t, res.Message, allocator.ErrNoCompatibleFacility.Error())
	assert.Nil(t, res.Data)
}

func TestAllocateSinglePatient_InvalidRequest(t *testing.T) {
	h := newTestHandler(t)

	cases := map[string]string{
		"missing patient":   `{"facilities": ` + twoFacilities + `}`,
		"latitude too big":  `{"patient": {"latitude": 100, "longitude": 0, "specialty": "a"}, "facilities": ` + twoFacilities + `}`,
		"blank specialty":   `{"patient": {"latitude": 0, "longitude": 0, "specialty": "  "}, "facilities": ` + twoFacilities + `}`,
		"facility no id":    `{"patient": {"latitude": 0, "longitude": 0, "specialty": "a"}, "facilities": [{"name": "x", "latitude": 0, "longitude": 0, "specialties": ["a"]}]}`,
		"malformed json":    `{"patient":`,
		"empty body":        ``,
		"trailing data":     `{"patient": {"latitude": 0, "longitude": 0, "specialty": "a"}} {}`,
		"transport too big": `{"patient": {"latitude": 0, "longitude": 0, "specialty": "a"}, "facilities": [{"id": 1, "name": "x", "latitude": 0, "longitude": 0, "specialties": ["a"], "transportScore": 2}]}`,
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := postSingle(t, h, body)
			assert.False(t, res.Success)
			assert.Equal(t, ReasonInvalidRequest, res.Reason)
			assert.NotEmpty(t, res.Message)
		})
	}
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	h := newTestHandler(t)

	for _, path := range []string{"/facilities", "/patients", "/my-info", "/allocation-runs/1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.Mux.ServeHTTP(rec, req)

		var res Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), path)
		assert.False(t, res.Success, path)
		assert.Equal(t, ReasonUnauthenticated, res.Reason, path)
		assert.Equal(t, "用户未登录", res.Message, path)
	}
}

func TestSingleCacheKeyIsStable(t *testing.T) {
	patient := &patientRequest{Latitude: ptr(0.0), Longitude: ptr(0.0), Specialty: "a"}
	p, err := patient.toPatient()
	require.NoError(t, err)

	k1, err := singleCacheKey(p, nil, allocator.SingleParameters())
	require.NoError(t, err)
	k2, err := singleCacheKey(p, nil, allocator.SingleParameters())
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	other := allocator.SingleParameters()
	other.Seed = 7
	k3, err := singleCacheKey(p, nil, other)
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)
}

func TestAllocateSinglePatient_DuplicateFacilityID(t *testing.T) {
	h := newTestHandler(t)

	// 同一个 ID 以最后一条记录为准
	res := postSingle(t, h, `{
		"patient": {"latitude": 0, "longitude": 0, "specialty": "cardiologia"},
		"facilities": [
			{"id": 1, "name": "far", "latitude": 0, "longitude": 5, "specialties": ["cardiologia"]},
			{"id": 1, "name": "near", "latitude": 0, "longitude": 0.1, "specialties": ["cardiologia"]}
		]
	}`)

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "near", res.Data.Best.Facility.Name)
	assert.InDelta(t, 11.12, res.Data.Best.DistanceKm, 0.01)
	assert.Empty(t, res.Data.Alternatives)
}

func TestAllocationFailureReasons(t *testing.T) {
	h := newTestHandler(t)

	cases := []struct {
		err    error
		reason Reason
	}{
		{fmt.Errorf("%w: oncologia", allocator.ErrNoCompatibleFacility), ReasonNoCompatibleFacility},
		{fmt.Errorf("%w: 9", allocator.ErrUnresolvedFacility), ReasonUnresolvedFacility},
		{fmt.Errorf("%w: 种群大小必须大于 0", allocator.ErrInvalidParameters), ReasonInvalidParameters},
		{errors.New("boom"), ReasonInternal},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		h.allocationFailure(rec, httptest.NewRequest(http.MethodPost, "/allocations/single", nil), c.err)

		var res Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
		assert.False(t, res.Success)
		assert.Equal(t, c.reason, res.Reason, c.err.Error())
	}
}

func TestRequiredRole(t *testing.T) {
	h := newTestHandler(t)

	viewer := &domain.User{ID: 2, Role: domain.RoleViewer}
	token, expiresAt, err := h.issueToken(viewer, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/facilities", strings.NewReader(`{}`))
	req.AddCookie(h.tokenCookie(token, expiresAt))
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var res Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Success)
	assert.Equal(t, ReasonForbidden, res.Reason)
	assert.Equal(t, "权限不足", res.Message)
}

func TestAuthRejectsForeignToken(t *testing.T) {
	h := newTestHandler(t)

	other := newTestHandler(t)
	other.config.JWT.Secret = "another-secret"
	token, expiresAt, err := other.issueToken(&domain.User{ID: 1, Role: domain.RoleAdmin}, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/facilities", nil)
	req.AddCookie(h.tokenCookie(token, expiresAt))
	rec := httptest.NewRecorder()
	h.Mux.ServeHTTP(rec, req)

	var res Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, ReasonUnauthenticated, res.Reason)
	assert.Equal(t, "无效的令牌", res.Message)
}

func ptr[T any](v T) *T {
	return &v
}
