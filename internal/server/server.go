package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/streamgate/internal/checkout"
	checkoutdomain "github.com/smallbiznis/streamgate/internal/checkout/domain"
	"github.com/smallbiznis/streamgate/internal/config"
	"github.com/smallbiznis/streamgate/internal/device"
	"github.com/smallbiznis/streamgate/internal/observability"
	obsmiddleware "github.com/smallbiznis/streamgate/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/streamgate/internal/observability/metrics"
	obstracing "github.com/smallbiznis/streamgate/internal/observability/tracing"
	"github.com/smallbiznis/streamgate/internal/providers"
	"github.com/smallbiznis/streamgate/internal/provisioning"
	"github.com/smallbiznis/streamgate/internal/ratelimit"
	"github.com/smallbiznis/streamgate/internal/stream"
	streamdomain "github.com/smallbiznis/streamgate/internal/stream/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	device.Module,
	providers.Module,
	ratelimit.Module,
	provisioning.Module,
	stream.Module,
	checkout.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
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
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(cfg config.Config, obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, s *Server, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           s.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
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
	engine           *gin.Engine
	cfg              config.Config
	log              *zap.Logger
	checkoutSvc      checkoutdomain.Service
	streamSvc        streamdomain.Service
	streamKeyLimiter *ratelimit.StreamKeyLimiter
	obsMetrics       *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin              *gin.Engine
	Cfg              config.Config
	Log              *zap.Logger
	CheckoutSvc      checkoutdomain.Service
	StreamSvc        streamdomain.Service
	StreamKeyLimiter *ratelimit.StreamKeyLimiter `optional:"true"`
	ObsMetrics       *obsmetrics.Metrics         `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:           p.Gin,
		cfg:              p.Cfg,
		log:              p.Log.Named("http.server"),
		checkoutSvc:      p.CheckoutSvc,
		streamSvc:        p.StreamSvc,
		streamKeyLimiter: p.StreamKeyLimiter,
		obsMetrics:       p.ObsMetrics,
	}

	svc.registerCheckoutRoutes()
	svc.registerStreamRoutes()
	svc.registerUIRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCheckoutRoutes() {
	s.engine.GET("/publishable-key", s.GetPublishableKey)
	s.engine.GET("/checkout-session", s.GetCheckoutSession)
	s.engine.POST("/create-checkout-session", s.CreateCheckoutSession)
	s.engine.POST("/webhook", s.HandlePaymentWebhook)
	s.engine.GET("/cancel/", s.CancelSubscription)
}

// Stream routes keep their trailing slash; the streaming edge and
// existing clients call them that way.
func (s *Server) registerStreamRoutes() {
	s.engine.POST("/getStreamKey/", s.StreamKeyRateLimit(), s.GetStreamKey)
	s.engine.POST("/publish/", s.Publish)
	s.engine.POST("/resetToken/", s.ResetToken)
}

func (s *Server) registerUIRoutes() {
	s.engine.GET("/", s.servePage("index.html"))
	s.engine.GET("/about", s.servePage("about.html"))
}
