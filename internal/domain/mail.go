package domain

const (
	MailTypeCreateUser          = "create_user"
	MailTypeAllocationCompleted = "allocation_completed"
)

type MailMessage struct {
	Type string `json:"type"`
	To   string `json:"to"`
	Data any    `json:"data"`
}

type CreateUserMailData struct {
	FullName string `json:"fullName"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type AllocationCompletedMailData struct {
	FullName    string  `json:"fullName"`
	RunID       int64   `json:"runID"`
	Patients    int     `json:"patients"`
	Unallocated int     `json:"unallocated"`
	Invalids    int     `json:"invalids"`
	Fitness     float64 `json:"fitness"`
}
