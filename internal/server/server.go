package server

import (
	"context"
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/mngrhq/mngr/internal/audit"
	auditdomain "github.com/mngrhq/mngr/internal/audit/domain"
	"github.com/mngrhq/mngr/internal/clock"
	"github.com/mngrhq/mngr/internal/config"
	"github.com/mngrhq/mngr/internal/creator"
	creatordomain "github.com/mngrhq/mngr/internal/creator/domain"
	"github.com/mngrhq/mngr/internal/deal"
	dealdomain "github.com/mngrhq/mngr/internal/deal/domain"
	"github.com/mngrhq/mngr/internal/identity"
	"github.com/mngrhq/mngr/internal/observability"
	obsmiddleware "github.com/mngrhq/mngr/internal/observability/logger"
	obsmetrics "github.com/mngrhq/mngr/internal/observability/metrics"
	"github.com/mngrhq/mngr/internal/payment"
	"github.com/mngrhq/mngr/internal/payment/intent"
	"github.com/mngrhq/mngr/internal/payment/settlement"
	"github.com/mngrhq/mngr/internal/ratelimit"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	config.Module,
	observability.Module,
	clock.Module,
	audit.Module,
	creator.Module,
	deal.Module,
	payment.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obsmetrics.GinMiddleware(m))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, m *obsmetrics.Metrics) *gin.Engine {
	return NewEngine(obsCfg, m)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine         *gin.Engine
	cfg            config.Config
	db             *gorm.DB
	genID          *snowflake.Node
	auditSvc       auditdomain.Service
	creatorSvc     creatordomain.Service
	dealSvc        dealdomain.Service
	dealRepo       dealdomain.Repository
	intentSvc      intent.Service
	settlementSvc  settlement.Service
	webhookLimiter *ratelimit.WebhookLimiter
}

type ServerParams struct {
	fx.In

	Gin            *gin.Engine
	Cfg            config.Config
	DB             *gorm.DB
	GenID          *snowflake.Node
	AuditSvc       auditdomain.Service
	CreatorSvc     creatordomain.Service
	DealSvc        dealdomain.Service
	DealRepo       dealdomain.Repository
	IntentSvc      intent.Service
	SettlementSvc  settlement.Service
	WebhookLimiter *ratelimit.WebhookLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:         p.Gin,
		cfg:            p.Cfg,
		db:             p.DB,
		genID:          p.GenID,
		auditSvc:       p.AuditSvc,
		creatorSvc:     p.CreatorSvc,
		dealSvc:        p.DealSvc,
		dealRepo:       p.DealRepo,
		intentSvc:      p.IntentSvc,
		settlementSvc:  p.SettlementSvc,
		webhookLimiter: p.WebhookLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerWebhookRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api", identity.GinMiddleware(s.cfg.AuthJWTSecret))

	// -------- Deals --------
	api.POST("/deals", identity.RequireRole(identity.RoleBrand), s.CreateDeal)
	api.GET("/deals", s.ListDeals)
	api.GET("/deals/:id", s.GetDeal)
	api.PUT("/deals/:id/status", s.TransitionDeal)

	// -------- Creator dashboard --------
	crtr := api.Group("/creator", identity.RequireRole(identity.RoleCreator))
	{
		crtr.GET("/deals", s.ListDeals)
		crtr.GET("/stats", s.CreatorStats)
	}

	// -------- Payments --------
	pay := api.Group("/payments")
	{
		connect := pay.Group("/connect", identity.RequireRole(identity.RoleCreator))
		{
			connect.POST("/account", s.ConnectPayoutAccount)
			connect.POST("/onboarding", s.PayoutOnboardingLink)
			connect.GET("/dashboard", s.PayoutDashboardLink)
			connect.GET("/status", s.PayoutAccountStatus)
		}
		pay.POST("/intent/:dealId", identity.RequireRole(identity.RoleBrand), s.CreatePaymentIntent)
		pay.GET("/status/:dealId", s.PaymentIntentStatus)
	}
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin",
		identity.GinMiddleware(s.cfg.AuthJWTSecret),
		identity.RequireRole(identity.RoleAdmin),
	)

	admin.GET("/stats", s.AdminStats)
	admin.GET("/deals", s.AdminListDeals)
	admin.PUT("/deals/:id/status", s.AdminOverrideDealStatus)
	admin.PUT("/creators/:id/tier", s.AdminOverrideCreatorTier)
	admin.GET("/audit", s.AdminListAuditLogs)
}

func (s *Server) registerWebhookRoutes() {
	// unauthenticated; the signature check inside the reconciler is the gate
	s.engine.POST("/api/webhooks/stripe", s.WebhookRateLimit("stripe"), s.HandleStripeWebhook)
}
