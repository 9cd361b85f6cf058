package domain

import "time"

type AllocationRunStatus string

const (
	AllocationRunStatusPending   AllocationRunStatus = "pending"
	AllocationRunStatusRunning   AllocationRunStatus = "running"
	AllocationRunStatusCompleted AllocationRunStatus = "completed"
	AllocationRunStatusFailed    AllocationRunStatus = "failed"
)

// AllocationDiagnostics 记录一次适应度评估中的各项成本
type AllocationDiagnostics struct {
	Fitness         float64       `json:"fitness"`
	TotalCost       float64       `json:"totalCost"`
	ExpNoShowCost   float64       `json:"expNoShowCost"`
	ExpectedNoShows float64       `json:"expectedNoShows"`
	TravelCost      float64       `json:"travelCost"`
	WaitCost        float64       `json:"waitCost"`
	NormNoShow      float64       `json:"normNoShow"`
	NormTravel      float64       `json:"normTravel"`
	NormWait        float64       `json:"normWait"`
	NormPenalty     float64       `json:"normPenalty"`
	SlotPenalty     int           `json:"slotPenalty"`
	Invalids        int           `json:"invalids"`
	Unallocated     int           `json:"unallocated"`
	FacilityLoad    map[int64]int `json:"facilityLoad"` // 仅供参考，不参与惩罚
}

type GenerationRecord struct {
	Generation  int     `json:"generation"`
	BestFitness float64 `json:"bestFitness"`
}

type AllocationRunParameters struct {
	PopulationSize int     `json:"populationSize"`
	Generations    int     `json:"generations"`
	CrossoverRate  float64 `json:"crossoverRate"`
	MutationRate   float64 `json:"mutationRate"`
	Elitism        float64 `json:"elitism"`
	TournamentSize int     `json:"tournamentSize"`
	Seed           int64   `json:"seed"`
}

type AllocationAssignment struct {
	PatientID  int64  `json:"patientID"`
	FacilityID *int64 `json:"facilityID"` // 为空表示该患者没有可分配的机构
}

type AllocationRun struct {
	ID          int64                   `json:"id"`
	Status      AllocationRunStatus     `json:"status"`
	RequestedBy int64                   `json:"requestedBy"`
	Parameters  AllocationRunParameters `json:"parameters"`
	Assignments []AllocationAssignment  `json:"assignments"`
	Diagnostics *AllocationDiagnostics  `json:"diagnostics"`
	History     []GenerationRecord      `json:"history"`
	Error       string                  `json:"error"`
	CreatedAt   time.Time               `json:"createdAt"`
	FinishedAt  *time.Time              `json:"finishedAt"`
	Version     int32                   `json:"-"`
}

// AllocationJob 是投递到 allocation_queue 中的消息
type AllocationJob struct {
	RunID int64 `json:"runID"`
}
