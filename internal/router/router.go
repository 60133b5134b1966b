package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	promhandler "github.com/supplierportal/notify-api/internal/handler/prometheus"
	"github.com/supplierportal/notify-api/internal/middleware"
	"github.com/supplierportal/notify-api/pkg/auth"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

// Handlers groups the route owners. Nil entries are not mounted.
type Handlers struct {
	Health   Handler
	Tracking Handler

	Templates Handler
	Logs      Handler
	Queue     Handler
	Campaigns Handler
	Services  Handler
	Analytics Handler
	Events    Handler
}

type RouterConfig struct {
	RateLimitEnabled bool
	RateLimit        rate.Limit
	RateBurst        int
	RequestTimeout   time.Duration
	CORSConfig       middleware.CORSConfig
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	metrics  *promhandler.Handler
	handlers Handlers
	config   RouterConfig
}

func NewRouter(authMW *middleware.AuthMiddleware, metrics *promhandler.Handler, handlers Handlers, config RouterConfig) *Router {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	r := &Router{
		engine:   engine,
		auth:     authMW,
		metrics:  metrics,
		handlers: handlers,
		config:   config,
	}

	// ErrorHandler runs before Validation so a rendered field list wins
	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		metrics.Middleware(),
		middleware.ErrorHandler(),
		middleware.Validation(middleware.DefaultValidationConfig()),
		middleware.Timeout(middleware.TimeoutConfig{Duration: config.RequestTimeout}),
		middleware.CORS(config.CORSConfig),
	)
	return r
}

func (r *Router) Setup() {
	root := &r.engine.RouterGroup
	root.GET("/metrics", r.metrics.Handler())
	mount(root, r.handlers.Health)

	// Tracking links are public and hit by mail clients, so they are rate limited per IP.
	public := r.engine.Group("")
	if r.config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		public.Use(limiter.RateLimit())
	}
	mount(public, r.handlers.Tracking)

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	api.Use(r.auth.Authenticate(), r.auth.RequireRole(auth.RoleAdmin, auth.RoleStaff))
	for _, h := range []Handler{
		r.handlers.Templates,
		r.handlers.Logs,
		r.handlers.Queue,
		r.handlers.Campaigns,
		r.handlers.Services,
		r.handlers.Analytics,
		r.handlers.Events,
	} {
		mount(api, h)
	}
}

func mount(rg *gin.RouterGroup, h Handler) {
	if h != nil {
		h.RegisterRoutes(rg)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
