package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/newsmint/kiosk/internal/billingevent"
	billingdomain "github.com/newsmint/kiosk/internal/billingevent/domain"
	"github.com/newsmint/kiosk/internal/clock"
	"github.com/newsmint/kiosk/internal/config"
	"github.com/newsmint/kiosk/internal/customer"
	customerdomain "github.com/newsmint/kiosk/internal/customer/domain"
	"github.com/newsmint/kiosk/internal/importer"
	importerdomain "github.com/newsmint/kiosk/internal/importer/domain"
	"github.com/newsmint/kiosk/internal/msisdn"
	"github.com/newsmint/kiosk/internal/observability"
	obsmiddleware "github.com/newsmint/kiosk/internal/observability/logger"
	obsmetrics "github.com/newsmint/kiosk/internal/observability/metrics"
	obstracing "github.com/newsmint/kiosk/internal/observability/tracing"
	"github.com/newsmint/kiosk/internal/ratelimit"
	"github.com/newsmint/kiosk/internal/session"
	sessiondomain "github.com/newsmint/kiosk/internal/session/domain"
	"github.com/newsmint/kiosk/internal/settlement"
	"github.com/newsmint/kiosk/internal/unlock"
	unlockdomain "github.com/newsmint/kiosk/internal/unlock/domain"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	msisdn.Module,
	session.Module,
	billingevent.Module,
	customer.Module,
	unlock.Module,
	importer.Module,
	settlement.Module,
	ratelimit.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", HeaderTenant},
	}))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
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
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	clock           clock.Clock
	sessionSvc      sessiondomain.Service
	billingSvc      billingdomain.Service
	customerSvc     customerdomain.Service
	unlockSvc       unlockdomain.Service
	importSvc       importerdomain.Service
	settlement      settlement.Pipeline
	callbackLimiter *ratelimit.CallbackLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	Clock           clock.Clock
	SessionSvc      sessiondomain.Service
	BillingSvc      billingdomain.Service
	CustomerSvc     customerdomain.Service
	UnlockSvc       unlockdomain.Service
	ImportSvc       importerdomain.Service
	Settlement      settlement.Pipeline
	CallbackLimiter *ratelimit.CallbackLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("server"),
		clock:           p.Clock,
		sessionSvc:      p.SessionSvc,
		billingSvc:      p.BillingSvc,
		customerSvc:     p.CustomerSvc,
		unlockSvc:       p.UnlockSvc,
		importSvc:       p.ImportSvc,
		settlement:      p.Settlement,
		callbackLimiter: p.CallbackLimiter,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	callbacks := s.engine.Group("/callbacks", TenantContext(s.cfg))
	callbacks.POST("/dimoco", s.DimocoCallback)

	api := s.engine.Group("/api/v1", TenantContext(s.cfg))

	sessions := api.Group("/sessions")
	sessions.POST("/track", s.TrackSession)
	sessions.GET("/recent", s.RecentSessions)
	sessions.GET("/:session_id", s.GetSession)
	sessions.POST("/:session_id/identify", s.IdentifySession)
	sessions.POST("/:session_id/portal", s.MarkSessionPortal)
	sessions.POST("/:session_id/purchase", s.MarkSessionPurchase)

	events := api.Group("/billing-events")
	events.POST("", s.CreateBillingEvent)
	events.GET("", s.ListBillingEvents)
	events.GET("/stats", s.BillingEventStats)
	events.GET("/:event_id", s.GetBillingEvent)
	events.PATCH("/:event_id/status", s.UpdateBillingEventStatus)

	imports := api.Group("/imports")
	imports.POST("", s.CreateImport)
	imports.GET("/:ref", s.GetImport)
	imports.POST("/:ref/rows", s.ImportRows)
	imports.POST("/:ref/finalize", s.FinalizeImport)
	imports.POST("/:ref/cancel", s.CancelImport)

	api.GET("/customers/:msisdn", s.GetCustomer)
	api.GET("/landing-pages/:slug/stats", s.LandingPageStats)

	api.GET("/unlocks/access", s.UnlockAccess)
	api.GET("/unlocks", s.ListUnlocks)
}
