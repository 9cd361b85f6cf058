package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zh_translations "github.com/go-playground/validator/v10/translations/zh"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/config"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/domain"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/metrics"
	"github.com/sysu-ecnc-dev/upae-allocator/backend/internal/repository"
)

type Handler struct {
	validate    *validator.Validate
	config      *config.Config
	repository  *repository.Repository
	translator  ut.Translator
	channel     *amqp.Channel
	redisClient *redis.Client
	metrics     *metrics.AllocationCollector

	Mux *chi.Mux
}

func NewHandler(cfg *config.Config, repo *repository.Repository, ch *amqp.Channel, rdb *redis.Client, collector *metrics.AllocationCollector) (*Handler, error) {
	validate := validator.New(validator.WithRequiredStructEnabled())
	zh := zh.New()
	uni := ut.New(zh, zh)
	trans, _ := uni.GetTranslator("zh")
	if err := zh_translations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, err
	}

	return &Handler{
		validate:    validate,
		config:      cfg,
		repository:  repo,
		translator:  trans,
		channel:     ch,
		redisClient: rdb,
		metrics:     collector,

		Mux: chi.NewRouter(),
	}, nil
}

func (h *Handler) RegisterRoutes() {
	h.Mux.Use(h.logger)
	h.Mux.Use(h.recoverer)

	if gatherer := h.metrics.Gatherer(); gatherer != nil {
		h.Mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// 认证相关
	h.Mux.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})

	// 单个患者的分配查询不需要登录
	h.Mux.Post("/allocations/single", h.AllocateSinglePatient)

	dispatchers := []domain.Role{domain.RoleDispatcher, domain.RoleAdmin}
	admins := []domain.Role{domain.RoleAdmin}

	// 以下 API 必须要在登录后才允许调用
	h.Mux.Group(func(r chi.Router) {
		r.Use(h.auth)
		r.Route("/my-info", func(r chi.Router) {
			r.Use(h.myInfo)
			r.Get("/", h.GetMyInfo)
			r.Patch("/password", h.UpdateMyPassword)
		})

		r.Route("/users", func(r chi.Router) {
			r.With(h.RequiredRole(admins)).Post("/", h.CreateUser)
			r.Get("/", h.GetAllUserInfo)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.userInfo)
				r.Get("/", h.GetUserInfo)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole(admins)).Patch("/", h.UpdateUser)
				r.With(h.preventOperateInitialAdmin).With(h.RequiredRole(admins)).Delete("/", h.DeleteUser)
			})
		})

		r.Route("/facilities", func(r chi.Router) {
			r.With(h.RequiredRole(admins)).Post("/", h.CreateFacility)
			r.Get("/", h.GetAllFacilities)
			r.Route("/{id}", func(r chi.Router) {
				r.Use(h.facility)
				r.Get("/", h.GetFacility)
				r.With(h.RequiredRole(admins)).Patch("/", h.UpdateFacility)
				r.With(h.RequiredRole(admins)).Delete("/", h.DeleteFacility)
			})
		})

		r.Route("/patients", func(r chi.Router) {
			r.With(h.RequiredRole(dispatchers)).Post("/", h.CreatePatient)
			r.Get("/", h.GetWaitingPatients)
		})

		r.Route("/allocation-runs", func(r chi.Router) {
			r.With(h.RequiredRole(dispatchers)).With(h.myInfo).Post("/", h.CreateAllocationRun)
			r.With(h.allocationRun).Get("/{id}", h.GetAllocationRun)
		})
	})
}
