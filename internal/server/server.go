package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	bankprofiledomain "github.com/smallbiznis/payrun/internal/bankprofile/domain"
	"github.com/smallbiznis/payrun/internal/config"
	dispatchdomain "github.com/smallbiznis/payrun/internal/dispatch/domain"
	inbounddomain "github.com/smallbiznis/payrun/internal/inbound/domain"
	joblogdomain "github.com/smallbiznis/payrun/internal/joblog/domain"
	paymentrundomain "github.com/smallbiznis/payrun/internal/paymentrun/domain"
	reconciledomain "github.com/smallbiznis/payrun/internal/reconcile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(Tracing())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

type Server struct {
	engine       *gin.Engine
	db           *gorm.DB
	profileSvc   bankprofiledomain.Service
	runRepo      paymentrundomain.Repository
	dispatchSvc  dispatchdomain.Service
	inboundSvc   inbounddomain.Service
	reconcileSvc reconciledomain.Service
	jobLogSvc    joblogdomain.Service
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	DB           *gorm.DB
	ProfileSvc   bankprofiledomain.Service
	RunRepo      paymentrundomain.Repository
	DispatchSvc  dispatchdomain.Service
	InboundSvc   inbounddomain.Service
	ReconcileSvc reconciledomain.Service
	JobLogSvc    joblogdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:       p.Gin,
		db:           p.DB,
		profileSvc:   p.ProfileSvc,
		runRepo:      p.RunRepo,
		dispatchSvc:  p.DispatchSvc,
		inboundSvc:   p.InboundSvc,
		reconcileSvc: p.ReconcileSvc,
		jobLogSvc:    p.JobLogSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	v1 := s.engine.Group("/v1/companies/:company_id")

	v1.PUT("/bank-profiles/:bank_code", s.UpsertBankProfile)
	v1.GET("/bank-profiles", s.ListBankProfiles)
	v1.GET("/bank-profiles/:bank_code", s.GetBankProfile)
	v1.PATCH("/bank-profiles/:bank_code/status", s.SetBankProfileStatus)
	v1.POST("/bank-profiles/:bank_code/fetch", s.FetchAcknowledgments)

	v1.GET("/payment-runs/:run_id", s.GetPaymentRun)
	v1.POST("/payment-runs/:run_id/dispatch", s.DispatchPaymentRun)

	v1.POST("/reconcile", s.Reconcile)
	v1.GET("/job-logs", s.ListJobLogs)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
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
