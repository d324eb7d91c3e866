package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/ccm-platform/carbon-admin/internal/audit"
	"github.com/ccm-platform/carbon-admin/internal/command"
	"github.com/ccm-platform/carbon-admin/internal/config"
	"github.com/ccm-platform/carbon-admin/internal/http/middleware"
	"github.com/ccm-platform/carbon-admin/internal/metrics"
	"github.com/ccm-platform/carbon-admin/internal/repository"
	"github.com/ccm-platform/carbon-admin/internal/service/admin"
	"github.com/ccm-platform/carbon-admin/internal/service/sync"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(cfg config.Config, mysqlDB, clickhouseDB *sqlx.DB, rds *redis.Client) *Server {
	// repos (MySQL)
	adminsRepo := repository.NewAdminUsersRepository(mysqlDB)
	usersRepo := repository.NewUsersRepository(mysqlDB)
	txsRepo := repository.NewTransactionsRepository(mysqlDB)
	walletTxsRepo := repository.NewWalletTransactionsRepository(mysqlDB)
	listingsRepo := repository.NewListingsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	auditRepo := repository.NewAuditLogRepository(mysqlDB)

	// repos (ClickHouse)
	var chAuditRepo repository.CHAuditRepository
	if clickhouseDB != nil {
		chAuditRepo = repository.NewCHAuditRepository(clickhouseDB)
	}

	// services
	auditSvc := audit.NewService(auditRepo, chAuditRepo)
	emitter := sync.NewEmitter(outboxRepo)
	dispatch := command.NewDispatcher(auditSvc, map[string]command.Client{
		admin.ServiceWallet:  newClient(admin.ServiceWallet, cfg.Services.Wallet),
		admin.ServiceListing: newClient(admin.ServiceListing, cfg.Services.Listing),
	})
	adminSvc := admin.New(mysqlDB, usersRepo, txsRepo, walletTxsRepo, listingsRepo, emitter, auditSvc, dispatch)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(adminsRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		DefaultRPS:     cfg.RateLimit.RPS,
		Burst:          cfg.RateLimit.Burst,
		KeyPrefix:      "rl:admin:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// routes
	v1 := e.Group("/v1", authMW, rlMW)

	v1.GET("/users", listUsersHandler(adminSvc))
	v1.GET("/users/:id", getUserHandler(adminSvc))
	v1.POST("/users/:id/suspend", userStatusHandler(adminSvc, "suspend"))
	v1.POST("/users/:id/activate", userStatusHandler(adminSvc, "activate"))
	v1.POST("/users/:id/lock", userStatusHandler(adminSvc, "lock"))
	v1.POST("/users/:id/unlock", userStatusHandler(adminSvc, "unlock"))
	v1.PATCH("/users/:id/profile", updateUserProfileHandler(adminSvc))
	v1.PATCH("/users/:id/kyc", updateUserKycHandler(adminSvc))

	v1.GET("/transactions", listTransactionsHandler(adminSvc))
	v1.GET("/transactions/:code", getTransactionHandler(adminSvc))
	v1.PUT("/transactions/:code/dispute", setTransactionDisputeHandler(adminSvc))

	v1.GET("/wallet-transactions", listWalletTransactionsHandler(adminSvc))
	v1.GET("/wallet-transactions/:id", getWalletTransactionHandler(adminSvc))
	v1.POST("/wallet-transactions/:id/reverse", reverseWalletTransactionHandler(adminSvc))
	v1.POST("/wallet-transactions/:id/confirm", confirmWalletTransactionHandler(adminSvc))
	v1.POST("/wallets/adjust", adjustWalletHandler(adminSvc))

	v1.GET("/listings", listListingsHandler(adminSvc))
	v1.GET("/listings/:id", getListingHandler(adminSvc))
	v1.POST("/listings/:id/flag", flagListingHandler(adminSvc))
	v1.POST("/listings/:id/unflag", unflagListingHandler(adminSvc))
	v1.POST("/listings/:id/suspend", suspendListingHandler(adminSvc))
	v1.POST("/listings/:id/reinstate", reinstateListingHandler(adminSvc))

	v1.GET("/audit-logs", listAuditLogsHandler(auditSvc))
	if chAuditRepo != nil {
		v1.GET("/reports/audit-logs", auditReportHandler(chAuditRepo))
	}

	v1.GET("/outbox/stats", outboxStatsHandler(outboxRepo))
	v1.POST("/outbox/retry", retryOutboxHandler(outboxRepo),
		middleware.RequireRole(middleware.RoleSuperadmin))

	return &Server{e: e}
}

func newClient(name string, cfg config.ServiceClientConfig) command.Client {
	if !cfg.Enabled || strings.TrimSpace(cfg.BaseURL) == "" {
		return command.NewStubClient(name)
	}
	return command.NewHTTPClient(
		name,
		strings.TrimRight(cfg.BaseURL, "/"),
		cfg.APIKey,
		cfg.TimeoutMs,
		cfg.Breaker.FailThreshold,
		cfg.Breaker.OpenForMs,
	)
}

func (s *Server) Start(addr string) error {
	log.Infof("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
