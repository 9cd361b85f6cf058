package allocator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

func uniformChromosome(n int, gene Allocation) *Chromosome {
	genes := make([]Allocation, n)
	for i := range genes {
		genes[i] = gene
	}
	return &Chromosome{genes: genes}
}

func samePatients(n int) []*domain.Patient {
	patients := make([]*domain.Patient, n)
	for i := range patients {
		patients[i] = newPatient(int64(i+1), -8+float64(i)*0.01, -35, "cardiologia")
	}
	return patients
}

func twoCardioFacilities() []*domain.Facility {
	return []*domain.Facility{
		newFacility(1, -8, -35, 5, "cardiologia"),
		newFacility(2, -8.5, -35.2, 1, "cardiologia"),
	}
}

func TestUniformCrossover_RateZeroCopiesParents(t *testing.T) {
	params := DefaultParameters()
	params.CrossoverRate = 0
	a := newTestAllocator(t, params, samePatients(32), twoCardioFacilities(), 3)

	p1 := uniformChromosome(32, AssignTo(1))
	p2 := uniformChromosome(32, AssignTo(2))

	for round := 0; round < 50; round++ {
		c1, c2 := a.uniformCrossover(p1, p2)
		assert.Equal(t, p1.genes, c1.genes)
		assert.Equal(t, p2.genes, c2.genes)

		// 子代不能和父本共享底层数组
		c1.genes[0] = Unallocated()
		assert.True(t, p1.genes[0].IsAllocated())
	}
}

func TestUniformCrossover_RateOneMixesGenes(t *testing.T) {
	params := DefaultParameters()
	params.CrossoverRate = 1
	a := newTestAllocator(t, params, samePatients(64), twoCardioFacilities(), 3)

	p1 := uniformChromosome(64, AssignTo(1))
	p2 := uniformChromosome(64, AssignTo(2))

	for round := 0; round < 20; round++ {
		c1, c2 := a.uniformCrossover(p1, p2)
		require.Len(t, c1.genes, 64)
		require.Len(t, c2.genes, 64)

		fromP1 := 0
		for i := range c1.genes {
			// 每个位置上两个子代互补
			assert.NotEqual(t, c1.genes[i], c2.genes[i])
			if c1.genes[i] == p1.genes[i] {
				fromP1++
			}
		}
		assert.Greater(t, fromP1, 0)
		assert.Less(t, fromP1, 64)
	}
}

func TestMutate_RateZeroLeavesChromosome(t *testing.T) {
	params := DefaultParameters()
	params.MutationRate = 0
	a := newTestAllocator(t, params, samePatients(10), twoCardioFacilities(), 5)

	ch := a.randomInitChromosome()
	before := ch.Genes()
	for round := 0; round < 100; round++ {
		a.mutate(ch)
	}
	assert.Equal(t, before, ch.genes)
}

func TestMutate_RateOneKeepsLengthAndLegalValues(t *testing.T) {
	params := DefaultParameters()
	params.MutationRate = 1
	a := newTestAllocator(t, params, samePatients(10), twoCardioFacilities(), 5)

	ch := a.randomInitChromosome()
	changed := false
	for round := 0; round < 200; round++ {
		before := ch.Genes()
		a.mutate(ch)
		require.Len(t, ch.genes, 10)
		for _, gene := range ch.genes {
			id, ok := gene.FacilityID()
			require.True(t, ok)
			assert.Contains(t, []int64{1, 2}, id)
		}
		if !assert.ObjectsAreEqual(before, ch.genes) {
			changed = true
		}
	}
	assert.True(t, changed)
}

func TestMutate_SingleGene(t *testing.T) {
	params := DefaultParameters()
	params.MutationRate = 1
	a := newTestAllocator(t, params, samePatients(1), twoCardioFacilities(), 5)

	ch := uniformChromosome(1, AssignTo(1))
	for round := 0; round < 100; round++ {
		a.mutate(ch)
		require.Len(t, ch.genes, 1)
		assert.True(t, ch.genes[0].IsAllocated())
	}
}

func TestRepair(t *testing.T) {
	patients := []*domain.Patient{
		newPatient(1, 0, 0, "cardiologia"),
		newPatient(2, 0, 0, "cardiologia"),
		newPatient(3, 0, 0, "ortopedia"),
		newPatient(4, 0, 0, "oncologia"),
		newPatient(5, 0, 0, "ortopedia"),
	}
	facilities := []*domain.Facility{
		newFacility(1, 0, 2, 0, "cardiologia"),
		newFacility(2, 0, 1, 0, "cardiologia", "ortopedia"),
		newFacility(3, 0, 3, 0, "ortopedia"),
	}
	a := newTestAllocator(t, DefaultParameters(), patients, facilities, 1)

	ch := &Chromosome{genes: []Allocation{
		AssignTo(1),   // 合法但不是最近的，保持不变
		AssignTo(999), // 机构不存在，修复为最近的 2
		AssignTo(1),   // 专科不匹配，修复为最近的 2
		AssignTo(2),   // 没有兼容机构，改为未分配
		Unallocated(), // 未分配但存在兼容机构，修复为最近的 2
	}}
	a.repair(ch)

	assert.Equal(t, []Allocation{AssignTo(1), AssignTo(2), AssignTo(2), Unallocated(), AssignTo(2)}, ch.genes)

	_, diag := a.evaluator.Evaluate(ch.genes)
	assert.Equal(t, 0, diag.Invalids)
	assert.Equal(t, 1, diag.Unallocated)
}

func TestRepair_Idempotent(t *testing.T) {
	patients, facilities := recifeFixture()
	patients = append(patients, newPatient(8, -8, -35, "oncologia"))
	a := newTestAllocator(t, DefaultParameters(), patients, facilities, 11)

	for round := 0; round < 100; round++ {
		ch := &Chromosome{genes: make([]Allocation, len(patients))}
		for i := range ch.genes {
			if a.rng.Intn(4) == 0 {
				ch.genes[i] = Unallocated()
			} else {
				ch.genes[i] = AssignTo(int64(a.rng.Intn(6)))
			}
		}

		a.repair(ch)
		once := ch.Genes()
		a.repair(ch)
		assert.Equal(t, once, ch.genes)
	}
}

func TestSelectByTournament(t *testing.T) {
	params := DefaultParameters()
	params.TournamentSize = 5
	a := newTestAllocator(t, params, samePatients(2), twoCardioFacilities(), 8)

	pop := make([]*Chromosome, 5)
	for i := range pop {
		pop[i] = &Chromosome{genes: []Allocation{AssignTo(1), AssignTo(1)}, fitness: float64(i) / 10}
	}

	// 锦标赛规模等于种群大小时，一定选出最优个体
	for round := 0; round < 20; round++ {
		assert.Same(t, pop[4], a.selectByTournament(pop))
	}

	// 锦标赛规模大于种群大小时按种群大小处理
	a.parameters.TournamentSize = 50
	assert.Same(t, pop[4], a.selectByTournament(pop))

	// 锦标赛规模为 1 时返回随机个体
	a.parameters.TournamentSize = 1
	seen := make(map[*Chromosome]bool)
	for round := 0; round < 200; round++ {
		seen[a.selectByTournament(pop)] = true
	}
	assert.Len(t, seen, 5)
}
