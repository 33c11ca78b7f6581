// Package server is the /v1 HTTP surface: gin routes shaped like the public
// payments API, API-key auth, idempotency replay, and handlers that call
// into the billing services.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/paymocklabs/paymock/internal/billing/factory"
	"github.com/paymocklabs/paymock/internal/billing/invoice"
	"github.com/paymocklabs/paymock/internal/billing/subscription"
	"github.com/paymocklabs/paymock/internal/clock"
	"github.com/paymocklabs/paymock/internal/config"
	"github.com/paymocklabs/paymock/internal/event"
	"github.com/paymocklabs/paymock/internal/observability"
	"github.com/paymocklabs/paymock/internal/redis"
	"github.com/paymocklabs/paymock/internal/store"
	"github.com/paymocklabs/paymock/pkg/ids"
)

type Server struct {
	log     *zap.Logger
	cfg     config.Config
	live    *config.Live
	engine  *gin.Engine
	store   *store.Store
	factory *factory.Factory
	subs    *subscription.Service
	inv     *invoice.Service
	events  *event.Service
	clock   clock.Clock
	genID   *ids.Generator
	node    *snowflake.Node
	redis   *redis.Client
	metrics *observability.Metrics
}

func NewEngine(log *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(metrics.Middleware())
	return engine
}

type Params struct {
	fx.In

	Log     *zap.Logger
	Config  config.Config
	Live    *config.Live
	Engine  *gin.Engine
	Store   *store.Store
	Factory *factory.Factory
	Subs    *subscription.Service
	Inv     *invoice.Service
	Events  *event.Service
	Clock   clock.Clock
	GenID   *ids.Generator
	Node    *snowflake.Node
	Redis   *redis.Client
	Metrics *observability.Metrics
}

func NewServer(p Params) *Server {
	return &Server{
		log:     p.Log.Named("server"),
		cfg:     p.Config,
		live:    p.Live,
		engine:  p.Engine,
		store:   p.Store,
		factory: p.Factory,
		subs:    p.Subs,
		inv:     p.Inv,
		events:  p.Events,
		clock:   p.Clock,
		genID:   p.GenID,
		node:    p.Node,
		redis:   p.Redis,
		metrics: p.Metrics,
	}
}

func (s *Server) RegisterRoutes() {
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})))
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := s.engine.Group("/v1")
	v1.Use(s.RequestID())
	v1.Use(s.Authenticate())
	v1.Use(s.Idempotency())

	admin := s.RequireAdmin()

	v1.POST("/tokens", s.CreateToken)
	v1.GET("/tokens/:id", s.RetrieveToken)

	v1.POST("/plans", admin, s.CreatePlan)
	v1.GET("/plans/:id", s.RetrievePlan)
	v1.POST("/plans/:id", admin, s.UpdatePlan)
	v1.DELETE("/plans/:id", admin, s.DeletePlan)
	v1.GET("/plans", s.ListPlans)

	v1.POST("/coupons", admin, s.CreateCoupon)
	v1.GET("/coupons/:id", s.RetrieveCoupon)
	v1.POST("/coupons/:id", admin, s.UpdateCoupon)
	v1.DELETE("/coupons/:id", admin, s.DeleteCoupon)
	v1.GET("/coupons", s.ListCoupons)

	v1.POST("/customers", admin, s.CreateCustomer)
	v1.GET("/customers/:id", s.RetrieveCustomer)
	v1.POST("/customers/:id", admin, s.UpdateCustomer)
	v1.DELETE("/customers/:id", admin, s.DeleteCustomer)
	v1.GET("/customers", s.ListCustomers)

	v1.GET("/customers/:id/sources/:card", admin, s.RetrieveCard)
	v1.DELETE("/customers/:id/sources/:card", admin, s.DeleteCard)
	v1.POST("/customers/:id/subscriptions", admin, s.CreateSubscription)
	v1.DELETE("/customers/:id/discount", admin, s.DeleteCustomerDiscount)

	v1.POST("/subscriptions", admin, s.CreateSubscription)
	v1.GET("/subscriptions/:id", s.RetrieveSubscription)
	v1.POST("/subscriptions/:id", admin, s.UpdateSubscription)
	v1.DELETE("/subscriptions/:id", admin, s.CancelSubscription)
	v1.GET("/subscriptions", s.ListSubscriptions)
	v1.DELETE("/subscriptions/:id/discount", admin, s.DeleteSubscriptionDiscount)

	v1.POST("/invoiceitems", admin, s.CreateInvoiceItem)

	v1.GET("/invoices/upcoming", admin, s.UpcomingInvoice)
	v1.POST("/invoices", admin, s.CreateInvoice)
	v1.GET("/invoices/:id", admin, s.RetrieveInvoice)
	v1.POST("/invoices/:id/pay", admin, s.PayInvoice)
	v1.GET("/invoices", admin, s.ListInvoices)

	v1.GET("/charges/:id", admin, s.RetrieveCharge)
	v1.GET("/charges", admin, s.ListCharges)

	v1.GET("/events/:id", s.RetrieveEvent)
	v1.GET("/events", s.ListEvents)
}

// RunHTTP starts the listener under the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, s *Server) {
	srv := &http.Server{
		Addr:    s.cfg.Server.Addr(),
		Handler: s.engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return err
			}
			s.log.Info("listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					s.log.Error("serve", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

var Module = fx.Module("server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(s *Server) { s.RegisterRoutes() }),
	fx.Invoke(RunHTTP),
)
