package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/geocoder89/garagehub/internal/auth"
	"github.com/geocoder89/garagehub/internal/cache"
	"github.com/geocoder89/garagehub/internal/config"
	"github.com/geocoder89/garagehub/internal/http/handlers"
	"github.com/geocoder89/garagehub/internal/http/middlewares"
	"github.com/geocoder89/garagehub/internal/observability"
	"github.com/geocoder89/garagehub/internal/payments"
	"github.com/geocoder89/garagehub/internal/repo/memory"
	mongorepo "github.com/geocoder89/garagehub/internal/repo/mongo"
	"github.com/geocoder89/garagehub/internal/uploads"
	"github.com/geocoder89/garagehub/internal/workflow"
)

// UsersRepository is everything the handlers collectively need from the users
// store; both the document-store and in-memory repos satisfy it.
type UsersRepository interface {
	handlers.AuthUsersStore
	handlers.AccountStore
	handlers.GarageStore
	handlers.ServiceStore
	handlers.AdminStore
	handlers.PaymentUsersStore
	handlers.UploadUsersStore
	workflow.ProfileStore
}

// Deps carries the externally owned collaborators into the router.
type Deps struct {
	Cfg      config.Config
	Log      *slog.Logger
	Mongo    *mongo.Database // nil means in-memory repos (dev / tests)
	Client   *mongo.Client
	Cache    cache.Store
	Provider payments.Provider
	Uploader uploads.Uploader
	Registry *prometheus.Registry

	// Repo overrides, used by the integration tests to reach into the store.
	Users  UsersRepository
	Tokens handlers.RefreshTokenStore
}

func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Cfg

	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// middleware

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("garagehub"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))
	r.Use(middlewares.MaxBodyBytes(cfg.MaxBodyBytes, uploads.MaxLicenseFileBytes+(1<<20)))

	registry := deps.Registry

	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	prom := observability.NewProm(registry)
	r.Use(prom.GinHandleMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// health
	ping := func() error {
		if deps.Client == nil {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()

		return deps.Client.Ping(ctx, nil)
	}

	healthHandler := handlers.NewHealthHandler(ping)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/readyz", healthHandler.Readyz)

	// wire up repositories

	var (
		usersRepo UsersRepository = deps.Users
		tokens                    = deps.Tokens
	)

	if usersRepo == nil && deps.Mongo != nil {
		usersRepo = mongorepo.NewUsersRepo(deps.Mongo)
		tokens = mongorepo.NewRefreshTokensRepo(deps.Mongo)
	} else if usersRepo == nil {
		usersRepo = memory.NewUsersRepo()
		tokens = memory.NewRefreshTokensRepo()

		if deps.Log != nil {
			deps.Log.Warn("no document store wired, using in-memory repositories")
		}
	}

	if tokens == nil {
		tokens = memory.NewRefreshTokensRepo()
	}

	cacheStore := deps.Cache

	if cacheStore == nil {
		cacheStore = cache.NewMemory(30 * time.Second)
	}

	provider := deps.Provider

	if provider == nil {
		provider = payments.NewFakeProvider()
	}

	wf := workflow.New(usersRepo)

	jwtManager := auth.NewManager(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLDays)*24*time.Hour,
	)

	authGuard := middlewares.NewAuthMiddleware(jwtManager)

	// wire up handlers

	cookieSecure := cfg.Env != "dev"

	authHandler := handlers.NewAuthHandler(usersRepo, tokens, jwtManager, cookieSecure)
	usersHandler := handlers.NewUsersHandler(usersRepo, tokens)
	garagesHandler := handlers.NewGaragesHandler(usersRepo, cacheStore)
	servicesHandler := handlers.NewServicesHandler(usersRepo)
	adminHandler := handlers.NewAdminHandler(usersRepo, wf, tokens, prom)
	paymentsHandler := handlers.NewPaymentsHandler(usersRepo, provider, wf, prom, cfg.PaymentWebhookSecret, cfg.RegistrationPriceCents)
	uploadsHandler := handlers.NewUploadsHandler(usersRepo, deps.Uploader)

	authLimiter := middlewares.NewRateLimiter(10, time.Minute)
	apiLimiter := middlewares.NewRateLimiter(120, time.Minute)

	// identity; refresh cookie is scoped to this path
	authGroup := r.Group("/auth",
		authLimiter.RateLimiterMiddleware(middlewares.KeyByIP),
		middlewares.RequireJSON(),
	)
	{
		authGroup.POST("/signup", authHandler.SignUp)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// public directory
	r.GET("/garages", garagesHandler.List)
	r.GET("/garages/:id", garagesHandler.Get)
	r.GET("/garages/:id/services", garagesHandler.Services)

	// webhook: verified by signature, never by session; body stays raw
	r.POST("/payments/webhook", paymentsHandler.Webhook)

	api := r.Group("",
		authGuard.RequireAuth(),
		apiLimiter.RateLimiterMiddleware(middlewares.KeyByUserOrIP),
	)
	{
		users := api.Group("/users")
		{
			users.GET("/me", usersHandler.Me)
			users.PUT("/me", middlewares.RequireJSON(), usersHandler.UpdateMe)
			users.DELETE("/me", usersHandler.DeleteMe)
		}

		owner := api.Group("/garage", authGuard.RequireRole("garage_owner"))
		{
			owner.PUT("/profile", middlewares.RequireJSON(), garagesHandler.UpdateProfile)

			services := owner.Group("/services")
			{
				services.GET("", servicesHandler.List)
				services.POST("", middlewares.RequireJSON(), servicesHandler.Add)
				services.GET("/:id", servicesHandler.Get)
				services.PUT("/:id", middlewares.RequireJSON(), servicesHandler.Update)
				services.DELETE("/:id", servicesHandler.SoftDelete)
				services.POST("/:id/restore", servicesHandler.Restore)
				services.DELETE("/:id/permanent", servicesHandler.HardDelete)
			}

			owner.POST("/payments/intent", paymentsHandler.CreateIntent)
			owner.GET("/payments/status", paymentsHandler.Status)

			// multipart, so no JSON content-type requirement
			owner.POST("/uploads/license", uploadsHandler.License)
		}

		admin := api.Group("/admin", authGuard.RequireRole("admin"))
		{
			admin.GET("/pending-garages", adminHandler.PendingGarages)
			admin.GET("/garages", adminHandler.Garages)
			admin.PATCH("/garages/:id/approval", middlewares.RequireJSON(), adminHandler.Decide)
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.GET("/users/:id", adminHandler.GetUser)
			admin.DELETE("/users/:id", adminHandler.DeleteUser)
		}
	}

	// serve stored license documents when uploads live on local disk
	if cfg.UploadDir != "" {
		r.Static("/uploads", cfg.UploadDir)
	}

	return r
}
