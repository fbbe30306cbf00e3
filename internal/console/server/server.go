package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/console/handler"
	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/infra"
	"github.com/xela07ax/guardplane/internal/infra/auth"
	"github.com/xela07ax/guardplane/internal/ratelimit"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Сервис реализует auth.TokenValidator через embedding BaseValidator
	controlService *service.ControlService

	limiter *ratelimit.Limiter

	authHandler     *handler.AuthHandler       // /auth/token
	ksHandler       *handler.KillSwitchHandler // /v1/killswitch
	approvalHandler *handler.ApprovalHandler   // /v1/approvals (HITL)
	auditHandler    *handler.AuditHandler      // /v1/audit
	rbacHandler     *handler.RBACHandler       // /v1/rbac
	gateHandler     *handler.GateHandler       // /v1/gate — вход автономных подсистем
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	controlService *service.ControlService,
	limiter *ratelimit.Limiter,
	authH *handler.AuthHandler,
	ksH *handler.KillSwitchHandler,
	approvalH *handler.ApprovalHandler,
	auditH *handler.AuditHandler,
	rbacH *handler.RBACHandler,
	gateH *handler.GateHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		controlService:  controlService,
		limiter:         limiter,
		authHandler:     authH,
		ksHandler:       ksH,
		approvalHandler: approvalH,
		auditHandler:    auditH,
		rbacHandler:     rbacH,
		gateHandler:     gateH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Admission Limiter по IP на весь трафик консоли (fail-open внутри)
	r.Use(s.limiter.Middleware(s.cfg.RateLimit.Window, s.cfg.RateLimit.MaxCount, nil))

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин обрезаем жестче: перебор паролей — основная угроза этой ручки
		r.With(s.limiter.Middleware(time.Minute, 10, nil)).
			Post("/auth/token", s.authHandler.Login)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.controlService, s.logger))

		// Emergency Stop (Kill Switch)
		r.Route("/v1/killswitch", func(r chi.Router) {
			r.Get("/status", s.ksHandler.Status)
			r.Get("/trail", s.ksHandler.Trail)
			r.Post("/kill", s.ksHandler.KillAll)     // Глобальный стоп
			r.Post("/resume", s.ksHandler.ResumeAll) // Глобальный запуск
			r.Route("/systems/{name}", func(r chi.Router) {
				r.Post("/kill", s.ksHandler.KillSystem)
				r.Post("/resume", s.ksHandler.ResumeSystem) // Отказ при глобальном стопе
			})
		})

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List)           // Живая очередь PENDING
			r.Get("/history", s.approvalHandler.History) // История из Postgres
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				r.Post("/decide", s.approvalHandler.Decide)
			})
		})

		// Audit Ledger
		r.Get("/v1/audit", s.auditHandler.GetLogs)
		r.Post("/v1/audit/cleanup", s.auditHandler.Cleanup)

		// RBAC (права и счетчики)
		r.Get("/v1/rbac/status", s.rbacHandler.Status)
		r.Post("/v1/rbac/check", s.rbacHandler.Check)

		// Шлюз для удаленных автономных подсистем
		r.Post("/v1/gate/authorize", s.gateHandler.Authorize)
		r.Post("/v1/gate/report", s.gateHandler.Report)
		r.Post("/v1/gate/approvals", s.gateHandler.RequestApproval)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
