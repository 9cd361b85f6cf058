package allocator

import (
	"maps"

	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
)

// 专科不在表中时使用的爽约基础概率
const DefaultBaseRate = 0.3

// BaseNoShowTable: 专科 -> 爽约基础概率
type BaseNoShowTable map[domain.Specialty]float64

func (t BaseNoShowTable) Rate(sp domain.Specialty) float64 {
	if rate, ok := t[sp]; ok {
		return rate
	}
	return DefaultBaseRate
}

var defaultBaseNoShow = BaseNoShowTable{
	// 医学专科
	"cardiologia":             0.05,
	"endocrinologia":          0.40,
	"ortopedia":               0.25,
	"dermatologia":            0.20,
	"alergologia":             0.15,
	"angiologia":              0.10,
	"gastroenterologia":       0.15,
	"geriatria":               0.10,
	"infectologia":            0.08,
	"nefrologia":              0.12,
	"neurologia":              0.18,
	"oftalmologia":            0.22,
	"otorrinolaringologia":    0.20,
	"pneumologia":             0.12,
	"psiquiatria":             0.35,
	"reumatologia":            0.15,
	"urologia":                0.18,
	"colposcopia":             0.20,
	"pediatria":               0.15,
	"endocrinologia infantil": 0.20,
	"neuropediatria":          0.18,
	"psiquiatria infantil":    0.25,
	"cirurgia geral":          0.10,
	"mastologia":              0.12,
	"radiologia":              0.05,
	"anestesiologia":          0.05,

	// 非医学专科（多专业团队）
	"nutrição":            0.15,
	"psicologia":          0.10,
	"fisioterapia":        0.12,
	"fonoaudiologia":      0.15,
	"terapia ocupacional": 0.12,
	"enfermagem":          0.05,
	"serviço social":      0.05,
	"farmácia":            0.05,
	"estomaterapia":       0.08,
	"educação física":     0.10,
	"odontologia":         0.15,
	"psicopedagogia":      0.12,
}

// DefaultBaseNoShow 返回默认表的副本，调用方可以随意修改
func DefaultBaseNoShow() BaseNoShowTable {
	return maps.Clone(defaultBaseNoShow)
}
