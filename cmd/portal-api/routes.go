package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/civic-portal-api/api/swagger"
	"github.com/noah-isme/civic-portal-api/internal/handler"
	"github.com/noah-isme/civic-portal-api/internal/middleware"
	"github.com/noah-isme/civic-portal-api/internal/models"
	"github.com/noah-isme/civic-portal-api/pkg/config"
	"github.com/noah-isme/civic-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/civic-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/civic-portal-api/pkg/middleware/requestid"
)

type redisPinger struct{ client *redis.Client }

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func newRouter(cfg *config.Config, logr *zap.Logger, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.DefaultOptions(cfg.CORS.AllowedOrigins)))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.WithResponseMeta())

	checks := map[string]handler.Pinger{"postgres": a.db}
	if a.rdb != nil {
		checks["redis"] = redisPinger{client: a.rdb}
	}
	metricsHandler := handler.NewMetricsHandler(a.metrics, checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authn := middleware.JWT(a.auth)
	verified := middleware.RequireVerified()
	api := r.Group(cfg.APIPrefix)

	authHandler := handler.NewAuthHandler(a.auth)
	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", authn, authHandler.Logout)
	auth.POST("/change-password", authn, authHandler.ChangePassword)
	auth.GET("/me", authn, authHandler.Me)

	metaHandler := handler.NewMetaHandler(a.meta)
	api.GET("/meta/statuses", metaHandler.Statuses)

	userHandler := handler.NewUserHandler(a.userSvc)
	users := api.Group("/users", authn)
	users.GET("", middleware.RequireRoles(models.RoleAdmin), userHandler.List)
	users.GET("/:id", middleware.RBAC(string(models.RoleAdmin), "SELF"), userHandler.Get)
	users.POST("/:id/verification", middleware.RequireRoles(models.RoleAdmin), userHandler.Verify)
	users.POST("/:id/deactivate", middleware.RequireRoles(models.RoleAdmin), userHandler.Deactivate)

	issueHandler := handler.NewIssueHandler(a.issues)
	issues := api.Group("/issues", authn, verified)
	issues.POST("", middleware.RequireRoles(models.RoleVillager, models.RoleVillageIncharge), issueHandler.Create)
	issues.GET("", issueHandler.List)
	issues.GET("/:id", issueHandler.Get)
	issues.GET("/:id/timeline", issueHandler.Timeline)
	issues.POST("/:id/actions/:action", issueHandler.Transition)

	fundHandler := handler.NewFundRequestHandler(a.fundRequests)
	funds := api.Group("/fund-requests", authn, verified)
	funds.POST("", middleware.RequireRoles(models.RolePDO, models.RoleVillageIncharge), fundHandler.Create)
	funds.GET("", fundHandler.List)
	funds.GET("/:id", fundHandler.Get)
	funds.GET("/:id/timeline", fundHandler.Timeline)
	funds.POST("/:id/actions/:action", fundHandler.Transition)

	dashboardHandler := handler.NewDashboardHandler(a.dashboard)
	dashboard := api.Group("/dashboard", authn, verified)
	dashboard.GET("", dashboardHandler.Summary)
	dashboard.GET("/issues/chart.svg", dashboardHandler.IssueChart)

	if a.reports != nil {
		reportHandler := handler.NewReportHandler(a.reports)
		reports := api.Group("/reports", authn, verified)
		reports.POST("", middleware.Audit(a.users, models.AuditActionReportRequest, "report_jobs"), reportHandler.Create)
		reports.GET("/:id", reportHandler.Status)
		// The signed token is the credential here, not the bearer header.
		api.GET("/export/:token", reportHandler.Download)
	}

	if cfg.Realtime.Enabled {
		realtimeHandler := handler.NewRealtimeHandler(a.hub, cfg.Realtime.AllowedOrigins, cfg.Realtime.SendBuffer, logr.Named("realtime"))
		r.GET("/ws", middleware.QueryJWT(a.auth, "token"), realtimeHandler.Subscribe)
	}

	return r
}
