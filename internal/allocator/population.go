package allocator

import (
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// CompatibleFacilities 返回所有提供该患者所需专科的机构
func CompatibleFacilities(patient *domain.Patient, facilities []*domain.Facility) []*domain.Facility {
	res := make([]*domain.Facility, 0)
	for _, f := range facilities {
		if f.Offers(patient.Specialty) {
			res = append(res, f)
		}
	}
	return res
}

// 在兼容机构中随机选一个，没有兼容机构则返回未分配
func (a *Allocator) randomCompatible(i int) Allocation {
	compat := a.compatible[i]
	if len(compat) == 0 {
		return Unallocated()
	}
	return AssignTo(compat[a.rng.Intn(len(compat))].ID)
}

// randomInitChromosome 随机初始化一个染色体
func (a *Allocator) randomInitChromosome() *Chromosome {
	genes := make([]Allocation, len(a.patients))
	for i := range a.patients {
		genes[i] = a.randomCompatible(i)
	}
	return &Chromosome{
		genes: genes,
	}
}

func (a *Allocator) initPopulation() []*Chromosome {
	pop := make([]*Chromosome, a.parameters.PopulationSize)
	for i := range pop {
		pop[i] = a.randomInitChromosome()
	}
	return pop
}
