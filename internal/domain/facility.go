package domain

import (
	"slices"
	"time"
)

const (
	DefaultTransportScore = 0.5
	DefaultWaitDays       = 0.0
)

// Facility 表示一个可以接诊的医疗机构（UPAE）
type Facility struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Municipality   string      `json:"municipality"`
	Address        string      `json:"address"`
	Latitude       float64     `json:"latitude"`
	Longitude      float64     `json:"longitude"`
	Specialties    []Specialty `json:"specialties"`
	TransportScore float64     `json:"transportScore"` // 取值范围 [0, 1]
	WaitDays       float64     `json:"waitDays"`
	CreatedAt      time.Time   `json:"createdAt"`
	Version        int32       `json:"-"`
}

func (f *Facility) Offers(sp Specialty) bool {
	return slices.Contains(f.Specialties, sp)
}
