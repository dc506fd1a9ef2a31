package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/example/storefront/pkg/account"
	"github.com/example/storefront/pkg/admin"
	"github.com/example/storefront/pkg/auth"
	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/metrics"
	"github.com/example/storefront/pkg/order"
	"github.com/example/storefront/pkg/payment"
	"github.com/example/storefront/pkg/repository"
	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Services are the application operations the HTTP API exposes.
type Services struct {
	Auth        *auth.Service
	Accounts    *account.Service
	Admin       *admin.Service
	Pipeline    *order.Pipeline
	Catalog     repository.CatalogStore
	Credentials repository.CredentialSource
	Payments    *payment.Client
	Metrics     *metrics.Metrics
	Uploads     afero.Fs
}

type Gateway struct {
	config   *config.Config
	services Services
	logger   *zap.Logger
	router   *gin.Engine
	limiter  *ipLimiter
	server   *http.Server
}

func NewGateway(cfg *config.Config, services Services, logger *zap.Logger) *Gateway {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(loggerMiddleware(logger))
	if services.Metrics != nil {
		router.Use(metricsMiddleware(services.Metrics))
	}

	g := &Gateway{
		config:   cfg,
		services: services,
		logger:   logger,
		router:   router,
		limiter:  newIPLimiter(cfg.Gateway.RateLimit, cfg.Gateway.RateBurst),
	}
	g.SetupRoutes()

	g.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
		Handler:      g.Handler(),
		ReadTimeout:  cfg.Gateway.ReadTimeout,
		WriteTimeout: cfg.Gateway.WriteTimeout,
	}
	return g
}

func (g *Gateway) SetupRoutes() {
	g.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if g.services.Metrics != nil {
		g.router.GET("/metrics", gin.WrapH(g.services.Metrics.Handler()))
	}
	if g.services.Uploads != nil {
		g.router.StaticFS("/uploads", afero.NewHttpFs(g.services.Uploads))
	}

	api := g.router.Group("/api")
	{
		authRoutes := api.Group("/auth", g.limiter.middleware())
		{
			authRoutes.POST("/signup", g.signup)
			authRoutes.POST("/login", g.login)
		}

		api.GET("/products", g.listProducts)
		api.POST("/products", g.requireAdmin(), g.replaceProducts)
		api.POST("/upload", g.requireAdmin(), g.upload)

		user := api.Group("/user", g.requireUser())
		{
			user.POST("/update", g.updateProfile)
			user.POST("/cart/save", g.saveCart)
			user.POST("/cart/clear", g.clearCart)
			user.GET("/orders", g.userOrders)
		}

		orders := api.Group("/orders", g.optionalAuth())
		{
			orders.POST("/create", g.createGatewayOrder)
			orders.POST("/place", g.limiter.middleware(), g.placeOrder)
		}

		api.GET("/config/razorpay/status", g.paymentAvailability)

		adminRoutes := api.Group("/admin", g.requireAdmin())
		{
			adminRoutes.POST("/config/razorpay", g.saveGatewayKeys)
			adminRoutes.GET("/config/razorpay/status", g.gatewayKeysStatus)
			adminRoutes.GET("/data/:dataset", g.adminData)
			adminRoutes.PUT("/orders/:id/status", g.updateOrderStatus)
		}
	}
}

// Handler is the router wrapped with CORS handling.
func (g *Gateway) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: g.config.Gateway.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(g.router)
}

func (g *Gateway) Start() error {
	g.logger.Info("Gateway starting", zap.String("address", g.server.Addr))
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (g *Gateway) Shutdown(ctx context.Context) error {
	return g.server.Shutdown(ctx)
}
