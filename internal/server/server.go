package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/servicepoint/internal/authorization"
	bookingdomain "github.com/smallbiznis/servicepoint/internal/booking/domain"
	catalogdomain "github.com/smallbiznis/servicepoint/internal/catalog/domain"
	"github.com/smallbiznis/servicepoint/internal/config"
	"github.com/smallbiznis/servicepoint/internal/observability"
	obsmiddleware "github.com/smallbiznis/servicepoint/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/servicepoint/internal/observability/metrics"
	obstracing "github.com/smallbiznis/servicepoint/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/servicepoint/internal/payment/domain"
	"github.com/smallbiznis/servicepoint/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
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
	r.Use(httpMetrics.GinMiddleware())
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

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
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
	engine      *gin.Engine
	cfg         config.Config
	authzSvc    authorization.Service
	bookingSvc  bookingdomain.Service
	catalogSvc  catalogdomain.Service
	checkoutSvc paymentdomain.CheckoutService
	statusSvc   paymentdomain.StatusService
	refundSvc   paymentdomain.RefundService
	webhookSvc  paymentdomain.WebhookService
	pollLimiter *ratelimit.StatusPollLimiter
	obsMetrics  *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	AuthzSvc    authorization.Service `optional:"true"`
	BookingSvc  bookingdomain.Service
	CatalogSvc  catalogdomain.Service
	CheckoutSvc paymentdomain.CheckoutService
	StatusSvc   paymentdomain.StatusService
	RefundSvc   paymentdomain.RefundService
	WebhookSvc  paymentdomain.WebhookService
	PollLimiter *ratelimit.StatusPollLimiter `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics          `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		authzSvc:    p.AuthzSvc,
		bookingSvc:  p.BookingSvc,
		catalogSvc:  p.CatalogSvc,
		checkoutSvc: p.CheckoutSvc,
		statusSvc:   p.StatusSvc,
		refundSvc:   p.RefundSvc,
		webhookSvc:  p.WebhookSvc,
		pollLimiter: p.PollLimiter,
		obsMetrics:  p.ObsMetrics,
	}

	svc.registerPaymentRoutes()
	svc.registerBookingRoutes()
	svc.registerCatalogRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")

	// Authenticated by the Stripe-Signature header, not by the gateway.
	payments.POST("/webhook", s.HandlePaymentWebhook)

	payments.POST("/checkout-sessions", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCheckout), s.CreateCheckoutSession)
	payments.GET("/status/:bookingId", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentStatus), s.StatusPollRateLimit(), s.GetPaymentStatus)
	payments.POST("/verify-and-complete", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentVerify), s.VerifyAndComplete)
	payments.POST("/abandon", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentCheckout), s.AbandonCheckout)

	// Browser landings after the hosted checkout page. Both only read.
	payments.GET("/success", s.StatusPollRateLimit(), s.PaymentSuccessLanding)
	payments.GET("/cancel", s.PaymentCancelLanding)
}

func (s *Server) registerBookingRoutes() {
	bookings := s.engine.Group("/api/bookings")

	bookings.POST("", s.authorize(authorization.ObjectBooking, authorization.ActionBookingCreate), s.CreateBooking)
	bookings.GET("", s.authorize(authorization.ObjectBooking, authorization.ActionBookingList), s.ListBookings)
	bookings.GET("/:id", s.authorize(authorization.ObjectBooking, authorization.ActionBookingView), s.GetBookingByID)
	bookings.PATCH("/:id", s.authorize(authorization.ObjectBooking, authorization.ActionBookingReschedule), s.RescheduleBooking)
	bookings.DELETE("/:id", s.authorize(authorization.ObjectBooking, authorization.ActionBookingDelete), s.DeleteBooking)
	bookings.POST("/:id/cancel", s.authorize(authorization.ObjectBooking, authorization.ActionBookingCancel), s.CancelBooking)
	bookings.POST("/:id/start", s.authorize(authorization.ObjectBooking, authorization.ActionBookingStart), s.StartBooking)
	bookings.POST("/:id/finish", s.authorize(authorization.ObjectBooking, authorization.ActionBookingFinish), s.FinishBooking)
	bookings.GET("/:id/receipt", s.authorize(authorization.ObjectBooking, authorization.ActionBookingReceipt), s.GetBookingReceipt)
	bookings.POST("/:id/refund", s.authorize(authorization.ObjectBooking, authorization.ActionBookingRefund), s.RefundBooking)
}

func (s *Server) registerCatalogRoutes() {
	services := s.engine.Group("/api/services")

	services.POST("", s.authorize(authorization.ObjectOffering, authorization.ActionOfferingCreate), s.CreateOffering)
	services.GET("", s.authorize(authorization.ObjectOffering, authorization.ActionOfferingView), s.ListOfferings)
	services.GET("/:id", s.authorize(authorization.ObjectOffering, authorization.ActionOfferingView), s.GetOfferingByID)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
