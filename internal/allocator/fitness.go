package allocator

import (
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// 目标函数权重（均按患者人数归一化）
const (
	Alpha = 5.0    // 爽约成本权重
	Beta  = 1.0    // 路程成本权重
	Gamma = 1.0    // 等待成本权重
	Zeta  = 1000.0 // 硬约束违反惩罚权重

	CostMiss   = 1.0  // 一次爽约的抽象成本
	WaitRefDay = 30.0 // 等待时间归一化参考值（天）
)

// Evaluator 负责计算染色体的适应度，本身只读，可以被多个 goroutine 同时使用
type Evaluator struct {
	patients   []*domain.Patient
	facilities map[int64]*domain.Facility
	baseNoShow BaseNoShowTable
}

func NewEvaluator(patients []*domain.Patient, facilities []*domain.Facility, baseNoShow BaseNoShowTable) (*Evaluator, error) {
	// 归一化时需要除以患者人数，因此不允许没有患者
	if len(patients) == 0 {
		return nil, ErrNoPatients
	}

	if baseNoShow == nil {
		baseNoShow = DefaultBaseNoShow()
	}

	patients = normalizePatients(patients)
	facilities = normalizeFacilities(facilities)

	e := &Evaluator{
		patients:   patients,
		facilities: make(map[int64]*domain.Facility, len(facilities)),
		baseNoShow: baseNoShow,
	}
	for _, f := range facilities {
		e.facilities[f.ID] = f
	}

	return e, nil
}

// isValid 判断第 i 个患者被分配到的机构是否存在且提供该患者所需的专科
func (e *Evaluator) isValid(i int, gene Allocation) bool {
	id, ok := gene.FacilityID()
	if !ok {
		return false
	}
	f, exists := e.facilities[id]
	if !exists {
		return false
	}
	return f.Offers(e.patients[i].Specialty)
}

/**
 * 计算染色体的适应度
 * totalCost = Alpha * normNoShow + Beta * normTravel + Gamma * normWait + Zeta * normPenalty
 * fitness = 1 / (1 + totalCost)
 * 其中各项成本都除以患者总人数（包括未分配的患者），使得不同未分配人数的方案之间仍然可以比较
 * genes 的长度应该与患者人数一致，缺少的基因视为未分配
 */
func (e *Evaluator) Evaluate(genes []Allocation) (float64, domain.AllocationDiagnostics) {
	n := len(e.patients)

	// 按机构统计分配人数
	facilityLoad := make(map[int64]int)
	for i := 0; i < n && i < len(genes); i++ {
		if id, ok := genes[i].FacilityID(); ok {
			facilityLoad[id]++
		}
	}

	invalids := 0
	unallocated := 0
	expNoShowCost := 0.0
	expectedNoShows := 0.0
	travelCost := 0.0
	waitCost := 0.0

	for i := 0; i < n; i++ {
		if i >= len(genes) || !genes[i].IsAllocated() {
			unallocated++
			continue
		}

		id, _ := genes[i].FacilityID()
		facility, exists := e.facilities[id]
		if !exists {
			// 引用了不存在的机构，只计入 invalids，不产生软成本
			invalids++
			continue
		}

		patient := e.patients[i]
		if !facility.Offers(patient.Specialty) {
			invalids++
		}

		p, dist := NoShowProbability(e.baseNoShow.Rate(patient.Specialty), patient, facility)
		expNoShowCost += p * CostMiss
		expectedNoShows += p
		travelCost += dist / DistanceRefKm
		waitCost += max(facility.WaitDays, 0) / WaitRefDay
	}

	slotPenalty := invalids + unallocated

	normNoShow := expNoShowCost / float64(n)
	normTravel := travelCost / float64(n)
	normWait := waitCost / float64(n)
	normPenalty := float64(slotPenalty) / float64(n)

	totalCost := Alpha*normNoShow + Beta*normTravel + Gamma*normWait + Zeta*normPenalty
	fitness := 1.0 / (1.0 + totalCost)

	return fitness, domain.AllocationDiagnostics{
		Fitness:         fitness,
		TotalCost:       totalCost,
		ExpNoShowCost:   expNoShowCost,
		ExpectedNoShows: expectedNoShows,
		TravelCost:      travelCost,
		WaitCost:        waitCost,
		NormNoShow:      normNoShow,
		NormTravel:      normTravel,
		NormWait:        normWait,
		NormPenalty:     normPenalty,
		SlotPenalty:     slotPenalty,
		Invalids:        invalids,
		Unallocated:     unallocated,
		FacilityLoad:    facilityLoad,
	}
}
