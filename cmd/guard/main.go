package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/guardplane/internal/audit"
	"github.com/xela07ax/guardplane/internal/console/handler"
	"github.com/xela07ax/guardplane/internal/console/server"
	"github.com/xela07ax/guardplane/internal/console/service"
	"github.com/xela07ax/guardplane/internal/guard"
	"github.com/xela07ax/guardplane/internal/infra"
	"github.com/xela07ax/guardplane/internal/infra/auth"
	"github.com/xela07ax/guardplane/internal/killswitch"
	"github.com/xela07ax/guardplane/internal/ratelimit"
	"github.com/xela07ax/guardplane/internal/rbac"
	"github.com/xela07ax/guardplane/internal/repository/postgres"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст жизненного цикла фоновых горутин
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура: Redis + Postgres
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, pingCancel := context.WithTimeout(appCtx, 5*time.Second)
	pgRepo, err := postgres.NewRepo(pingCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	pingCancel()
	if err != nil {
		logger.Fatal("postgres unreachable", zap.Error(err))
	}
	defer pgRepo.Close()

	// 3. Audit Ledger: WAL + батч-воркер поверх Postgres
	wal, err := audit.NewWALStore(cfg.Audit.WALDir)
	if err != nil {
		logger.Fatal("wal dir", zap.Error(err))
	}
	ledger, err := audit.NewLedger(pgRepo, wal, logger, audit.Options{
		FlushInterval:   cfg.Audit.FlushInterval,
		FlushThreshold:  cfg.Audit.FlushThreshold,
		RetentionDays:   cfg.Audit.RetentionDays,
		CleanupInterval: cfg.Audit.CleanupInterval,
	})
	if err != nil {
		logger.Fatal("audit ledger", zap.Error(err))
	}
	ledger.Start()

	// 4. Control Plane: рубильник, RBAC, admission limiter
	ks := killswitch.NewSwitch(logger)

	// Мост рубильника между инстансами через Redis Pub/Sub
	bridge := killswitch.NewBridge(ks, rdb, uuid.New().String(), logger)
	go bridge.Listen(appCtx)

	registry := rbac.NewRegistry(cfg.Actors, pgRepo, logger)

	limiter := ratelimit.New(ratelimit.NewRedisWindowStore(rdb), cfg.RateLimit.StoreTimeout, logger)

	// 5. Метрики + шлюз
	promReg := prometheus.NewRegistry()
	metrics := guard.NewMetrics(promReg)
	plane := guard.NewPlane(ks, registry, ledger, metrics, logger)

	limiter.OnDecision = func(outcome string) {
		metrics.AdmissionDecisions.WithLabelValues(outcome).Inc()
	}

	// Насыщенность буфера журнала и здоровье стора лимитера — по запросу scrape
	promReg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "guard_audit_buffer_entries",
		Help: "Entries accepted but not yet flushed to the durable store.",
	}, func() float64 { return float64(ledger.Pending()) }))
	promReg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "guard_ratelimit_store_healthy",
		Help: "Whether the admission limiter store breaker is closed (0/1).",
	}, func() float64 {
		if limiter.StoreHealthy() {
			return 1
		}
		return 0
	}))

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		addr := fmt.Sprintf(":%d", cfg.Server.MetricsPort)
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			logger.Error("metrics server", zap.Error(err))
		}
	}()

	// 6. Консоль оператора
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("auth public key", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("auth private key", zap.Error(err))
	}

	authService := service.NewAuthService(pgRepo, privKey, cfg.Auth.TokenTTL)
	controlService := service.NewControlService(auth.NewBaseValidator(pubKey), ks, registry, ledger, pgRepo, logger)

	consoleSrv := server.NewConsoleServer(
		cfg, logger, controlService, limiter,
		handler.NewAuthHandler(authService, ledger),
		handler.NewKillSwitchHandler(controlService),
		handler.NewApprovalHandler(controlService),
		handler.NewAuditHandler(controlService),
		handler.NewRBACHandler(controlService),
		handler.NewGateHandler(plane),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("console api started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	cancel() // останавливаем мост и фоновые слушатели

	// Журнал гасим последним: дренаж буфера важнее скорости выхода
	ledger.Stop()
}
