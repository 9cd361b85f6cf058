package domain

import "time"

type PatientStatus string

const (
	PatientStatusWaiting   PatientStatus = "waiting"
	PatientStatusAllocated PatientStatus = "allocated"
)

type Patient struct {
	ID         int64         `json:"id"`
	FullName   string        `json:"fullName"`
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Specialty  Specialty     `json:"specialty"`
	Status     PatientStatus `json:"status"`
	FacilityID *int64        `json:"facilityID"` // 为空表示还没有被分配到任何机构
	CreatedAt  time.Time     `json:"createdAt"`
	Version    int32         `json:"-"`
}
