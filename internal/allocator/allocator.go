package allocator

import (
	"context"
	"math/rand"
	"slices"
	"sort"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"golang.org/x/sync/errgroup"
)

type Allocator struct {
	parameters Parameters
	patients   []*domain.Patient
	facilities []*domain.Facility
	baseNoShow BaseNoShowTable
	evaluator  *Evaluator
	compatible [][]*domain.Facility // 每个患者的兼容机构
	nearest    []*domain.Facility   // 每个患者距离最近的兼容机构，没有则为 nil
	rng        *rand.Rand           // 只在繁殖阶段使用，评估阶段不会访问
}

type Option func(*Allocator)

// WithRand 指定随机源，未指定时使用 Parameters.Seed 创建
func WithRand(rng *rand.Rand) Option {
	return func(a *Allocator) {
		a.rng = rng
	}
}

// WithBaseNoShow 指定专科爽约基础概率表，未指定时使用 DefaultBaseNoShow
func WithBaseNoShow(table BaseNoShowTable) Option {
	return func(a *Allocator) {
		a.baseNoShow = table
	}
}

// dedupeFacilities 同一个 ID 只保留最后出现的机构，位置沿用第一次出现的位置
func dedupeFacilities(facilities []*domain.Facility) []*domain.Facility {
	res := make([]*domain.Facility, 0, len(facilities))
	position := make(map[int64]int, len(facilities))
	for _, f := range facilities {
		if idx, exists := position[f.ID]; exists {
			res[idx] = f
			continue
		}
		position[f.ID] = len(res)
		res = append(res, f)
	}
	return res
}

// normalizePatients 保证专科名称是规范化的，需要修改时复制一份，不修改调用方的数据
func normalizePatients(patients []*domain.Patient) []*domain.Patient {
	res := patients
	copied := false
	for i, p := range patients {
		sp := domain.NormalizeSpecialty(string(p.Specialty))
		if sp == p.Specialty {
			continue
		}
		if !copied {
			res = slices.Clone(patients)
			copied = true
		}
		cp := *p
		cp.Specialty = sp
		res[i] = &cp
	}
	return res
}

func normalizeFacilities(facilities []*domain.Facility) []*domain.Facility {
	res := facilities
	copied := false
	for i, f := range facilities {
		specialties := make([]string, len(f.Specialties))
		for j, sp := range f.Specialties {
			specialties[j] = string(sp)
		}
		normalized := domain.NormalizeSpecialties(specialties)
		if slices.Equal(normalized, f.Specialties) {
			continue
		}
		if !copied {
			res = slices.Clone(facilities)
			copied = true
		}
		cp := *f
		cp.Specialties = normalized
		res[i] = &cp
	}
	return res
}

func New(parameters Parameters, patients []*domain.Patient, facilities []*domain.Facility, opts ...Option) (*Allocator, error) {
	if err := parameters.Validate(); err != nil {
		return nil, err
	}
	if len(patients) == 0 {
		return nil, ErrNoPatients
	}

	a := &Allocator{
		parameters: parameters,
		patients:   normalizePatients(patients),
		facilities: normalizeFacilities(dedupeFacilities(facilities)),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.rng == nil {
		a.rng = rand.New(rand.NewSource(parameters.Seed))
	}

	evaluator, err := NewEvaluator(a.patients, a.facilities, a.baseNoShow)
	if err != nil {
		return nil, err
	}
	a.evaluator = evaluator
	a.baseNoShow = evaluator.baseNoShow

	// 预先计算每个患者的兼容机构以及最近的兼容机构
	a.compatible = make([][]*domain.Facility, len(a.patients))
	a.nearest = make([]*domain.Facility, len(a.patients))
	for i, patient := range a.patients {
		a.compatible[i] = CompatibleFacilities(patient, a.facilities)

		bestDist := 0.0
		for _, f := range a.compatible[i] {
			d := Distance(patient.Latitude, patient.Longitude, f.Latitude, f.Longitude)
			if a.nearest[i] == nil || d < bestDist {
				a.nearest[i] = f
				bestDist = d
			}
		}
	}

	return a, nil
}

func (a *Allocator) Evaluator() *Evaluator {
	return a.evaluator
}

// evaluatePopulation 计算种群中每个染色体的适应度
// 每个 goroutine 只写自己负责的染色体的 fitness 字段，不会访问随机源
func (a *Allocator) evaluatePopulation(pop []*Chromosome) {
	if a.parameters.Workers <= 1 {
		for _, ch := range pop {
			ch.fitness, _ = a.evaluator.Evaluate(ch.genes)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(a.parameters.Workers)
	for _, ch := range pop {
		ch := ch
		g.Go(func() error {
			ch.fitness, _ = a.evaluator.Evaluate(ch.genes)
			return nil
		})
	}
	_ = g.Wait()
}

// rankByFitness 返回按适应度降序排列的下标，适应度相同时下标小的在前
func rankByFitness(pop []*Chromosome) []int {
	order := make([]int, len(pop))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return pop[order[i]].fitness > pop[order[j]].fitness
	})
	return order
}

func bestIndex(pop []*Chromosome) int {
	best := 0
	for i := 1; i < len(pop); i++ {
		if pop[i].fitness > pop[best].fitness {
			best = i
		}
	}
	return best
}

// Run 执行完整的进化过程，迭代次数固定，不做提前终止
func (a *Allocator) Run() *Result {
	res, _ := a.RunContext(context.Background())
	return res
}

// RunContext 在每一代开始前检查 ctx，被取消时返回 ctx.Err()
func (a *Allocator) RunContext(ctx context.Context) (*Result, error) {
	popSize := a.parameters.PopulationSize
	eliteCount := a.parameters.eliteCount()

	// 生成初始种群
	pop := a.initPopulation()
	history := make([]domain.GenerationRecord, 0, a.parameters.Generations)

	for gen := 0; gen < a.parameters.Generations; gen++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		a.evaluatePopulation(pop)

		// 记录本代最佳适应度
		history = append(history, domain.GenerationRecord{
			Generation:  gen,
			BestFitness: pop[bestIndex(pop)].fitness,
		})

		// 繁殖
		newPop := make([]*Chromosome, 0, popSize)

		// 保留精英，这里需要使用深拷贝，防止后续的变异修改到上一代的个体
		for _, idx := range rankByFitness(pop)[:eliteCount] {
			newPop = append(newPop, pop[idx].clone())
		}

		for len(newPop) < popSize {
			// 选择两个父本
			p1 := a.selectByTournament(pop)
			p2 := a.selectByTournament(pop)

			c1, c2 := a.uniformCrossover(p1, p2)

			a.mutate(c1)
			a.mutate(c2)

			a.repair(c1)
			a.repair(c2)

			newPop = append(newPop, c1)
			if len(newPop) < popSize {
				newPop = append(newPop, c2)
			}
		}

		pop = newPop
	}

	// 返回最终种群中的最优解
	a.evaluatePopulation(pop)
	best := pop[bestIndex(pop)]
	fitness, diagnostics := a.evaluator.Evaluate(best.genes)

	return &Result{
		BestChromosome:  best.Genes(),
		BestFitness:     fitness,
		BestDiagnostics: diagnostics,
		History:         history,
	}, nil
}

// Run 是 New 和 (*Allocator).Run 的简单封装
func Run(parameters Parameters, patients []*domain.Patient, facilities []*domain.Facility, opts ...Option) (*Result, error) {
	a, err := New(parameters, patients, facilities, opts...)
	if err != nil {
		return nil, err
	}
	return a.Run(), nil
}

func RunContext(ctx context.Context, parameters Parameters, patients []*domain.Patient, facilities []*domain.Facility, opts ...Option) (*Result, error) {
	a, err := New(parameters, patients, facilities, opts...)
	if err != nil {
		return nil, err
	}
	return a.RunContext(ctx)
}
