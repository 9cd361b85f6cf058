package allocator

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func TestNewEvaluator_NoPatients(t *testing.T) {
	_, err := NewEvaluator(nil, []*domain.Facility{newFacility(1, 0, 0, 0, "cardiologia")}, nil)
	require.ErrorIs(t, err, ErrNoPatients)
}

func TestEvaluate_ZeroCostIsFitnessOne(t *testing.T) {
	patients := []*domain.Patient{newPatient(1, -8, -35, "cardiologia")}
	facilities := []*domain.Facility{newFacility(10, -8, -35, 0, "cardiologia")}

	e, err := NewEvaluator(patients, facilities, BaseNoShowTable{"cardiologia": 0})
	require.NoError(t, err)

	fitness, diag := e.Evaluate([]Allocation{AssignTo(10)})
	assert.Equal(t, 1.0, fitness)
	assert.Equal(t, 0.0, diag.TotalCost)
	assert.Equal(t, 0, diag.Invalids)
	assert.Equal(t, 0, diag.Unallocated)
}

func TestEvaluate_SpecialtyMismatch(t *testing.T) {
	patients := []*domain.Patient{newPatient(1, 0, 0, "ortopedia")}
	facilities := []*domain.Facility{newFacility(1, 0, 1, 0, "cardiologia")}

	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	_, diag := e.Evaluate([]Allocation{AssignTo(1)})
	assert.Equal(t, 1, diag.Invalids)
	assert.Equal(t, 0, diag.Unallocated)
	assert.Equal(t, 1, diag.SlotPenalty)
	// 专科不匹配但机构存在，仍然计算软成本
	assert.Greater(t, diag.TravelCost, 0.0)
}

func TestEvaluate_UnresolvedFacility(t *testing.T) {
	patients := []*domain.Patient{newPatient(1, 0, 0, "cardiologia")}
	facilities := []*domain.Facility{newFacility(1, 0, 1, 10, "cardiologia")}

	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	fitness, diag := e.Evaluate([]Allocation{AssignTo(999)})
	assert.Equal(t, 1, diag.Invalids)
	assert.Equal(t, 0, diag.Unallocated)
	assert.Equal(t, 0.0, diag.ExpNoShowCost)
	assert.Equal(t, 0.0, diag.TravelCost)
	assert.Equal(t, 0.0, diag.WaitCost)
	assert.InDelta(t, 1.0/(1.0+Zeta), fitness, 1e-15)
}

func TestEvaluate_NormalizedByPatientCount(t *testing.T) {
	patients := []*domain.Patient{
		newPatient(1, 0, 0, "cardiologia"),
		newPatient(2, 0, 0, "cardiologia"),
	}
	facilities := []*domain.Facility{newFacility(1, 0, 1, 15, "cardiologia")}

	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	_, diag := e.Evaluate([]Allocation{AssignTo(1), Unallocated()})
	assert.Equal(t, 1, diag.Unallocated)
	assert.InDelta(t, 0.5, diag.NormPenalty, 1e-15)
	assert.InDelta(t, diag.TravelCost/2, diag.NormTravel, 1e-15)
	assert.InDelta(t, 0.5/2, diag.NormWait, 1e-15)
	assert.InDelta(t, diag.ExpNoShowCost/2, diag.NormNoShow, 1e-15)

	expectedCost := Alpha*diag.NormNoShow + Beta*diag.NormTravel + Gamma*diag.NormWait + Zeta*diag.NormPenalty
	assert.InDelta(t, expectedCost, diag.TotalCost, 1e-9)
	assert.Equal(t, map[int64]int{1: 1}, diag.FacilityLoad)
}

func TestEvaluate_UnknownSpecialtyFallsBack(t *testing.T) {
	patients := []*domain.Patient{newPatient(1, 0, 0, "especialidade nova")}
	facility := newFacility(1, 0, 0, 0, "especialidade nova")
	facility.TransportScore = 0

	e, err := NewEvaluator(patients, []*domain.Facility{facility}, nil)
	require.NoError(t, err)

	_, diag := e.Evaluate([]Allocation{AssignTo(1)})
	assert.InDelta(t, DefaultBaseRate, diag.ExpNoShowCost, 1e-15)
	assert.InDelta(t, DefaultBaseRate, diag.ExpectedNoShows, 1e-15)
}

func TestEvaluate_MoreUnallocatedIsWorse(t *testing.T) {
	patients, facilities := recifeFixture()
	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	genes := []Allocation{AssignTo(1), AssignTo(1), AssignTo(2), AssignTo(3), AssignTo(4), AssignTo(2), AssignTo(3)}
	prev, diag := e.Evaluate(genes)
	require.Equal(t, 0, diag.SlotPenalty)

	for i := range genes {
		genes[i] = Unallocated()
		fitness, diag := e.Evaluate(genes)
		assert.Equal(t, i+1, diag.Unallocated)
		assert.Less(t, fitness, prev)
		prev = fitness
	}
}

func TestEvaluate_FitnessRange(t *testing.T) {
	patients, facilities := recifeFixture()
	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		genes := make([]Allocation, len(patients))
		for i := range genes {
			switch rng.Intn(3) {
			case 0:
				genes[i] = Unallocated()
			default:
				// 包括一个不存在的机构 ID
				genes[i] = AssignTo(int64(rng.Intn(len(facilities) + 1)))
			}
		}

		fitness, diag := e.Evaluate(genes)
		assert.Greater(t, fitness, 0.0)
		assert.LessOrEqual(t, fitness, 1.0)
		assert.GreaterOrEqual(t, diag.TotalCost, 0.0)
		assert.Equal(t, diag.Invalids+diag.Unallocated, diag.SlotPenalty)
	}
}

func TestEvaluate_MissingGenesCountAsUnallocated(t *testing.T) {
	patients, facilities := recifeFixture()
	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	_, diag := e.Evaluate([]Allocation{AssignTo(1)})
	assert.Equal(t, len(patients)-1, diag.Unallocated)
}

func TestNewEvaluator_NormalizesSpecialties(t *testing.T) {
	patients := []*domain.Patient{{ID: 1, Specialty: "Neurologia"}}
	facilities := []*domain.Facility{{ID: 1, Specialties: []domain.Specialty{" NEUROLOGIA"}, TransportScore: 0.5}}

	e, err := NewEvaluator(patients, facilities, nil)
	require.NoError(t, err)

	_, diag := e.Evaluate([]Allocation{AssignTo(1)})
	assert.Equal(t, 0, diag.Invalids)
	assert.Equal(t, 0, diag.Unallocated)
}
