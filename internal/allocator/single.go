package allocator

import (
	"fmt"
	"math"
	"sort"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// 单个患者查询最多返回的备选机构数量
const MaxAlternatives = 4

type Candidate struct {
	Facility   *domain.Facility `json:"facility"`
	DistanceKm float64          `json:"distanceKm"` // 保留两位小数
	NoShowPct  float64          `json:"noShowPct"`  // 百分比，保留一位小数
	WaitDays   float64          `json:"waitDays"`
	Fitness    float64          `json:"fitness"`
}

type SingleResult struct {
	Best         Candidate                    `json:"best"`
	Alternatives []Candidate                  `json:"alternatives"`
	Diagnostics  domain.AllocationDiagnostics `json:"diagnostics"`
}

func round(x float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(x*pow) / pow
}

func (a *Allocator) candidate(patient *domain.Patient, facility *domain.Facility, fitness float64) Candidate {
	p, dist := NoShowProbability(a.baseNoShow.Rate(patient.Specialty), patient, facility)
	return Candidate{
		Facility:   facility,
		DistanceKm: round(dist, 2),
		NoShowPct:  round(p*100, 1),
		WaitDays:   facility.WaitDays,
		Fitness:    fitness,
	}
}

/**
 * 为单个患者寻找最佳机构
 * 1. 用较小的种群和迭代次数运行遗传算法得到最佳机构
 * 2. 对其余每个兼容机构单独计算适应度，按适应度降序取前 MaxAlternatives 个作为备选
 * 没有兼容机构时返回 ErrNoCompatibleFacility
 * 同一个 ID 出现多次时以最后一条记录为准，返回结果中的机构与参与评估的机构一致
 * ErrUnresolvedFacility 只是防御性检查：算法选出的机构总是来自去重后的机构列表
 */
func AllocateSinglePatient(patient *domain.Patient, facilities []*domain.Facility, parameters Parameters, opts ...Option) (*SingleResult, error) {
	a, err := New(parameters, []*domain.Patient{patient}, facilities, opts...)
	if err != nil {
		return nil, err
	}
	patient = a.patients[0]
	if len(a.compatible[0]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoCompatibleFacility, patient.Specialty)
	}

	res := a.Run()

	facilityID, ok := res.BestChromosome[0].FacilityID()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCompatibleFacility, patient.Specialty)
	}

	// 必须从去重后的机构中查找，保证返回的机构就是算法评估过的那一个
	var chosen *domain.Facility = nil
	for _, f := range a.facilities {
		if f.ID == facilityID {
			chosen = f
			break
		}
	}
	if chosen == nil {
		// 修复之后基因只会指向兼容机构，正常情况下不会走到这里
		return nil, fmt.Errorf("%w: %d", ErrUnresolvedFacility, facilityID)
	}

	// 计算备选机构
	alternatives := make([]Candidate, 0, len(a.compatible[0]))
	for _, f := range a.compatible[0] {
		if f.ID == facilityID {
			continue
		}
		fitness, _ := a.evaluator.Evaluate([]Allocation{AssignTo(f.ID)})
		alternatives = append(alternatives, a.candidate(patient, f, fitness))
	}

	sort.SliceStable(alternatives, func(i, j int) bool {
		return alternatives[i].Fitness > alternatives[j].Fitness
	})
	if len(alternatives) > MaxAlternatives {
		alternatives = alternatives[:MaxAlternatives]
	}

	return &SingleResult{
		Best:         a.candidate(patient, chosen, res.BestFitness),
		Alternatives: alternatives,
		Diagnostics:  res.BestDiagnostics,
	}, nil
}
