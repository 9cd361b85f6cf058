package allocator

// 锦标赛选择：不放回地随机抽取 k 个个体，返回其中适应度最高的
func (a *Allocator) selectByTournament(pop []*Chromosome) *Chromosome {
	k := min(a.parameters.TournamentSize, len(pop))
	indices := a.rng.Perm(len(pop))[:k]

	best := pop[indices[0]]
	for _, idx := range indices[1:] {
		if pop[idx].fitness > best.fitness {
			best = pop[idx]
		}
	}
	return best
}

// 均匀交叉：每个位置独立地以 1/2 的概率决定子代 1 从哪个父本继承，子代 2 取另一个
// 父本不会被修改，返回的子代总是新的染色体
func (a *Allocator) uniformCrossover(p1 *Chromosome, p2 *Chromosome) (*Chromosome, *Chromosome) {
	if a.rng.Float64() >= a.parameters.CrossoverRate {
		return p1.clone(), p2.clone()
	}

	n := len(p1.genes)
	c1 := &Chromosome{genes: make([]Allocation, n)}
	c2 := &Chromosome{genes: make([]Allocation, n)}

	for i := 0; i < n; i++ {
		if a.rng.Float64() < 0.5 {
			c1.genes[i] = p1.genes[i]
			c2.genes[i] = p2.genes[i]
		} else {
			c1.genes[i] = p2.genes[i]
			c2.genes[i] = p1.genes[i]
		}
	}

	return c1, c2
}

// 变异：以 MutationRate 的概率对整条染色体执行以下三种策略之一
//   - 40% 交换两个患者的分配
//   - 40% 将某个患者重新随机分配到一个兼容机构
//   - 20% 打乱一个长度为 2~5 的连续片段
func (a *Allocator) mutate(ch *Chromosome) {
	if a.rng.Float64() >= a.parameters.MutationRate {
		return
	}

	n := len(ch.genes)
	op := a.rng.Float64()

	switch {
	case op < 0.4:
		if n < 2 {
			return
		}
		i := a.rng.Intn(n)
		j := a.rng.Intn(n - 1)
		if j >= i {
			// 保证 j != i
			j++
		}
		ch.genes[i], ch.genes[j] = ch.genes[j], ch.genes[i]
	case op < 0.8:
		if n < 1 {
			return
		}
		i := a.rng.Intn(n)
		ch.genes[i] = a.randomCompatible(i)
	default:
		if n < 2 {
			return
		}
		start := a.rng.Intn(n - 1)
		end := min(n, start+2+a.rng.Intn(4))
		block := ch.genes[start:end]
		a.rng.Shuffle(len(block), func(i, j int) {
			block[i], block[j] = block[j], block[i]
		})
	}
}

// 修复：把所有非法的分配（机构不存在、专科不匹配或者未分配）替换为距离最近的兼容机构
// 没有兼容机构的患者保持未分配，本来就合法的分配不会被改动
func (a *Allocator) repair(ch *Chromosome) {
	for i, gene := range ch.genes {
		if a.evaluator.isValid(i, gene) {
			continue
		}

		if nearest := a.nearest[i]; nearest != nil {
			ch.genes[i] = AssignTo(nearest.ID)
		} else {
			ch.genes[i] = Unallocated()
		}
	}
}
