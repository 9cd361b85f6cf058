package allocator

import (
	"fmt"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// Allocation: 染色体中的一个基因，表示某个患者的分配决策
// 零值表示未分配，只有通过 AssignTo 构造的值才指向某个机构
type Allocation struct {
	facilityID int64
	assigned   bool
}

func Unallocated() Allocation {
	return Allocation{}
}

func AssignTo(facilityID int64) Allocation {
	return Allocation{facilityID: facilityID, assigned: true}
}

// FacilityID 返回被分配的机构 ID，第二个返回值为 false 时表示未分配
func (a Allocation) FacilityID() (int64, bool) {
	return a.facilityID, a.assigned
}

func (a Allocation) IsAllocated() bool {
	return a.assigned
}

func (a Allocation) String() string {
	if !a.assigned {
		return "-"
	}
	return fmt.Sprintf("%d", a.facilityID)
}

// Chromosome: 一个完整的分配方案，第 i 个基因对应第 i 个患者
type Chromosome struct {
	genes   []Allocation
	fitness float64
}

func (ch *Chromosome) Genes() []Allocation {
	genes := make([]Allocation, len(ch.genes))
	copy(genes, ch.genes)
	return genes
}

func (ch *Chromosome) Fitness() float64 {
	return ch.fitness
}

// clone 深拷贝，保证精英个体不会和上一代共享底层数组
func (ch *Chromosome) clone() *Chromosome {
	genes := make([]Allocation, len(ch.genes))
	copy(genes, ch.genes)
	return &Chromosome{
		genes:   genes,
		fitness: ch.fitness,
	}
}

// 遗传算法参数
type Parameters struct {
	PopulationSize int     // 种群大小
	Generations    int     // 迭代次数
	CrossoverRate  float64 // 交叉概率
	MutationRate   float64 // 变异概率（按染色体计算，而不是按基因）
	Elitism        float64 // 精英比例
	TournamentSize int     // 锦标赛规模
	Seed           int64   // 随机数种子，未通过 WithRand 指定随机源时使用
	Workers        int     // 并行评估适应度的 goroutine 数量，小于等于 1 时顺序评估
}

// 批量分配的默认参数
func DefaultParameters() Parameters {
	return Parameters{
		PopulationSize: 120,
		Generations:    400,
		CrossoverRate:  0.7,
		MutationRate:   0.3,
		Elitism:        0.15,
		TournamentSize: 3,
		Seed:           42,
		Workers:        1,
	}
}

// 单个患者查询的默认参数，种群和迭代次数都更小以降低接口延迟
func SingleParameters() Parameters {
	p := DefaultParameters()
	p.PopulationSize = 50
	p.Generations = 100
	return p
}

func (p Parameters) Validate() error {
	if p.PopulationSize < 1 {
		return fmt.Errorf("%w: 种群大小必须大于 0（当前为 %d）", ErrInvalidParameters, p.PopulationSize)
	}
	if p.Generations < 0 {
		return fmt.Errorf("%w: 迭代次数不能为负数（当前为 %d）", ErrInvalidParameters, p.Generations)
	}
	if p.CrossoverRate < 0 || p.CrossoverRate > 1 {
		return fmt.Errorf("%w: 交叉概率必须在 [0, 1] 之间（当前为 %f）", ErrInvalidParameters, p.CrossoverRate)
	}
	if p.MutationRate < 0 || p.MutationRate > 1 {
		return fmt.Errorf("%w: 变异概率必须在 [0, 1] 之间（当前为 %f）", ErrInvalidParameters, p.MutationRate)
	}
	if p.Elitism < 0 || p.Elitism > 1 {
		return fmt.Errorf("%w: 精英比例必须在 [0, 1] 之间（当前为 %f）", ErrInvalidParameters, p.Elitism)
	}
	if p.TournamentSize < 1 {
		return fmt.Errorf("%w: 锦标赛规模必须大于 0（当前为 %d）", ErrInvalidParameters, p.TournamentSize)
	}
	return nil
}

// Record 转换为保存在分配任务中的参数，Workers 只和运行环境有关所以不保存
func (p Parameters) Record() domain.AllocationRunParameters {
	return domain.AllocationRunParameters{
		PopulationSize: p.PopulationSize,
		Generations:    p.Generations,
		CrossoverRate:  p.CrossoverRate,
		MutationRate:   p.MutationRate,
		Elitism:        p.Elitism,
		TournamentSize: p.TournamentSize,
		Seed:           p.Seed,
	}
}

func ParametersFromRecord(rec domain.AllocationRunParameters, workers int) Parameters {
	return Parameters{
		PopulationSize: rec.PopulationSize,
		Generations:    rec.Generations,
		CrossoverRate:  rec.CrossoverRate,
		MutationRate:   rec.MutationRate,
		Elitism:        rec.Elitism,
		TournamentSize: rec.TournamentSize,
		Seed:           rec.Seed,
		Workers:        workers,
	}
}

// Assignments 把最佳染色体转换为按患者顺序排列的分配结果
func (res *Result) Assignments(patients []*domain.Patient) []domain.AllocationAssignment {
	assignments := make([]domain.AllocationAssignment, len(patients))
	for i, patient := range patients {
		assignments[i].PatientID = patient.ID
		if i >= len(res.BestChromosome) {
			continue
		}
		if id, ok := res.BestChromosome[i].FacilityID(); ok {
			assignments[i].FacilityID = &id
		}
	}
	return assignments
}

// eliteCount 至少保留一个精英，保证每一代的最优适应度不下降
func (p Parameters) eliteCount() int {
	n := max(1, int(p.Elitism*float64(p.PopulationSize)))
	return min(n, p.PopulationSize)
}

type Result struct {
	BestChromosome  []Allocation
	BestFitness     float64
	BestDiagnostics domain.AllocationDiagnostics
	History         []domain.GenerationRecord
}
