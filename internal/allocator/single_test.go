package allocator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func TestAllocateSinglePatient_PicksLowerCost(t *testing.T) {
	patient := newPatient(1, 0, 0, "cardiologia")
	facilityA := newFacility(1, 0, 1, 10, "cardiologia")
	facilityB := newFacility(2, 0, 5, 2, "cardiologia")
	facilities := []*domain.Facility{facilityA, facilityB}

	// 分别计算两个机构的加权成本
	e, err := NewEvaluator([]*domain.Patient{patient}, facilities, nil)
	require.NoError(t, err)
	_, diagA := e.Evaluate([]Allocation{AssignTo(facilityA.ID)})
	_, diagB := e.Evaluate([]Allocation{AssignTo(facilityB.ID)})

	expected, other := facilityA, facilityB
	if diagB.TotalCost < diagA.TotalCost {
		expected, other = facilityB, facilityA
	}

	res, err := AllocateSinglePatient(patient, facilities, SingleParameters())
	require.NoError(t, err)

	assert.Equal(t, expected.ID, res.Best.Facility.ID)
	require.Len(t, res.Alternatives, 1)
	assert.Equal(t, other.ID, res.Alternatives[0].Facility.ID)
	assert.Greater(t, res.Best.Fitness, res.Alternatives[0].Fitness)

	assert.Equal(t, expected.WaitDays, res.Best.WaitDays)
	assert.InDelta(t, Distance(0, 0, expected.Latitude, expected.Longitude), res.Best.DistanceKm, 0.005)
	assert.Equal(t, 0, res.Diagnostics.Invalids)
	assert.Equal(t, 0, res.Diagnostics.Unallocated)
}

func TestAllocateSinglePatient_NoCompatibleFacility(t *testing.T) {
	patient := newPatient(1, 0, 0, "oncologia")
	facilities := []*domain.Facility{
		newFacility(1, 0, 1, 10, "cardiologia"),
		newFacility(2, 0, 5, 2, "ortopedia"),
	}

	res, err := AllocateSinglePatient(patient, facilities, SingleParameters())
	require.ErrorIs(t, err, ErrNoCompatibleFacility)
	assert.Nil(t, res)

	res, err = AllocateSinglePatient(patient, nil, SingleParameters())
	require.ErrorIs(t, err, ErrNoCompatibleFacility)
	assert.Nil(t, res)
}

func TestAllocateSinglePatient_AlternativesRankedAndCapped(t *testing.T) {
	patient := newPatient(1, -8.05, -34.9, "neurologia")
	facilities := make([]*domain.Facility, 0)
	for i := 0; i < 8; i++ {
		facilities = append(facilities, newFacility(int64(i+1), -8.05+float64(i)*0.05, -34.9, float64(i*3), "neurologia"))
	}
	// 不兼容的机构不会出现在备选中
	facilities = append(facilities, newFacility(100, -8.05, -34.9, 0, "pediatria"))

	res, err := AllocateSinglePatient(patient, facilities, SingleParameters(), WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, err)

	require.Len(t, res.Alternatives, MaxAlternatives)
	for i, alt := range res.Alternatives {
		assert.NotEqual(t, res.Best.Facility.ID, alt.Facility.ID)
		assert.NotEqual(t, int64(100), alt.Facility.ID)
		assert.LessOrEqual(t, alt.Fitness, res.Best.Fitness)
		if i > 0 {
			assert.GreaterOrEqual(t, res.Alternatives[i-1].Fitness, alt.Fitness)
		}
		assert.GreaterOrEqual(t, alt.NoShowPct, 0.0)
		assert.LessOrEqual(t, alt.NoShowPct, MaxNoShow*100)
	}

	// 同一位置且等待时间为 0 的机构最优
	assert.Equal(t, int64(1), res.Best.Facility.ID)
}

func TestAllocateSinglePatient_InvalidParameters(t *testing.T) {
	patient := newPatient(1, 0, 0, "cardiologia")
	params := SingleParameters()
	params.PopulationSize = 0

	_, err := AllocateSinglePatient(patient, []*domain.Facility{newFacility(1, 0, 0, 0, "cardiologia")}, params)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestAllocateSinglePatient_DuplicateIDUsesEvaluatedFacility(t *testing.T) {
	patient := newPatient(1, 0, 0, "cardiologia")
	far := newFacility(1, 0, 5, 0, "cardiologia")
	near := newFacility(1, 0, 0.1, 0, "cardiologia")

	// 同一个 ID 以最后一条记录为准
	res, err := AllocateSinglePatient(patient, []*domain.Facility{far, near}, SingleParameters())
	require.NoError(t, err)

	assert.Same(t, near, res.Best.Facility)
	assert.InDelta(t, Distance(0, 0, 0, 0.1), res.Best.DistanceKm, 0.005)
	assert.Empty(t, res.Alternatives)

	e, err := NewEvaluator([]*domain.Patient{patient}, []*domain.Facility{near}, nil)
	require.NoError(t, err)
	fitness, _ := e.Evaluate([]Allocation{AssignTo(near.ID)})
	assert.InDelta(t, fitness, res.Best.Fitness, 1e-12)
}

func TestAllocateSinglePatient_UnnormalizedSpecialties(t *testing.T) {
	patient := &domain.Patient{ID: 1, Latitude: 0, Longitude: 0, Specialty: " Cardiologia "}
	facility := &domain.Facility{
		ID:             7,
		Longitude:      1,
		Specialties:    []domain.Specialty{"CARDIOLOGIA", "Ortopedia"},
		TransportScore: domain.DefaultTransportScore,
	}

	res, err := AllocateSinglePatient(patient, []*domain.Facility{facility}, SingleParameters())
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.Best.Facility.ID)
	assert.Equal(t, 0, res.Diagnostics.Invalids)

	// 调用方的数据保持不变
	assert.Equal(t, domain.Specialty(" Cardiologia "), patient.Specialty)
	assert.Equal(t, []domain.Specialty{"CARDIOLOGIA", "Ortopedia"}, facility.Specialties)
}
