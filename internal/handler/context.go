package handler

type ContextKey string

var (
	RoleCtxKey       ContextKey = "role"
	SubCtxKey        ContextKey = "sub"
	MyInfoCtx        ContextKey = "myInfo"
	UserInfoCtx      ContextKey = "userInfo"
	FacilityCtx      ContextKey = "facility"
	AllocationRunCtx ContextKey = "allocationRun"
)
