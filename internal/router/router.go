// Package router wires handlers and middleware onto an echo instance.
package router

import (
	"context"
	"database/sql"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/recruiting-portal/internal/config"
	"github.com/iliyamo/recruiting-portal/internal/handler"
	"github.com/iliyamo/recruiting-portal/internal/logger"
	"github.com/iliyamo/recruiting-portal/internal/metrics"
	"github.com/iliyamo/recruiting-portal/internal/middleware"
	"github.com/iliyamo/recruiting-portal/internal/model"
	"github.com/iliyamo/recruiting-portal/internal/repository"
)

// Deps is everything New needs to build the API.
type Deps struct {
	Cfg       config.Config
	DB        *sql.DB
	Redis     *redis.Client                 // nil disables cache and rate limiting
	Publisher handler.NotificationPublisher // nil disables notifications
	CacheCfg  config.CacheConfig
	RateCfg   config.RateLimitConfig
	Metrics   *metrics.Manager
	Now       func() time.Time
}

// New builds the complete API.
func New(d Deps) *echo.Echo {
	if d.Metrics == nil {
		d.Metrics = metrics.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(requestLogger())
	e.Use(d.Metrics.Middleware())

	users := repository.NewUserRepo(d.DB)
	tokens := repository.NewTokenRepo(d.DB)
	slots := repository.NewSlotRepo(d.DB)
	signups := repository.NewSignupRepo(d.DB)

	cache := middleware.NewResponseCache(d.CacheCfg, d.Redis)
	purge := func(ctx context.Context) {
		if err := cache.Purge(ctx); err != nil {
			logger.Named("router").Warn(ctx, "cache purge failed", logger.Err(err))
		}
	}
	limiter := middleware.NewRateLimiter(d.RateCfg, d.Redis)
	limiter.OnBlocked = d.Metrics.RateLimited

	pub := handler.NewPublicSlotHandler(slots, signups, users)
	pub.Publisher, pub.Metrics, pub.Now, pub.OnChange = d.Publisher, d.Metrics, d.Now, purge

	mem := handler.NewMemberSlotHandler(slots, signups)
	mem.Publisher, mem.Metrics, mem.Now, mem.OnChange = d.Publisher, d.Metrics, d.Now, purge

	adm := handler.NewAdminInterviewHandler(repository.NewInterviewRepo(d.DB), repository.NewEvaluationRepo(d.DB))
	adm.Metrics = d.Metrics

	RegisterRoutes(e, d.DB, d.Metrics)
	RegisterAuth(e, handler.NewAuthHandler(d.Cfg, users, tokens), d.Cfg.JWTSecret)
	RegisterPublic(e, pub, cache.Middleware(), limiter.Middleware())
	RegisterMember(e, mem, d.Cfg.JWTSecret)
	RegisterAdmin(e, adm, d.Cfg.JWTSecret)
	return e
}

func requestLogger() echo.MiddlewareFunc {
	log := logger.Named("http")
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []logger.Field{
				logger.String("method", v.Method),
				logger.String("uri", v.URI),
				logger.Int("status", v.Status),
				logger.Any("latency", v.Latency),
				logger.String("ip", v.RemoteIP),
			}
			if v.Error != nil {
				log.Error(c.Request().Context(), "request", append(fields, logger.Err(v.Error))...)
				return nil
			}
			log.Info(c.Request().Context(), "request", fields...)
			return nil
		},
	})
}

// RegisterRoutes registers the unauthenticated operational endpoints.
func RegisterRoutes(e *echo.Echo, db *sql.DB, m *metrics.Manager) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

// RegisterAuth registers the session endpoints under /auth and the
// authenticated /me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	e.GET("/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleCandidate, model.RoleMember, model.RoleAdmin),
	)
}

// RegisterPublic registers the anonymous slot listing and signup. The
// listing goes through the response cache, signups through the limiter.
func RegisterPublic(e *echo.Echo, p *handler.PublicSlotHandler, cache, limit echo.MiddlewareFunc) {
	e.GET("/meeting-slots", p.ListSlots, cache)
	e.POST("/meeting-slots/:id/signup", p.Signup, limit)
}

// RegisterMember registers slot management for members. Admins may manage
// slots too.
func RegisterMember(e *echo.Echo, h *handler.MemberSlotHandler, jwtSecret string) {
	g := e.Group(
		"/member",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleMember, model.RoleAdmin),
	)
	g.GET("/meeting-slots", h.ListSlots)
	g.POST("/meeting-slots", h.CreateSlot)
	g.PUT("/meeting-slots/:id", h.UpdateSlot)
	g.DELETE("/meeting-slots/:id", h.DeleteSlot)
	g.PATCH("/meeting-signups/:id/attendance", h.SetAttendance)
}

// RegisterAdmin registers the interview and evaluation endpoints.
func RegisterAdmin(e *echo.Echo, h *handler.AdminInterviewHandler, jwtSecret string) {
	g := e.Group(
		"/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)
	g.POST("/interviews", h.CreateInterview)
	g.GET("/interviews/:id", h.GetInterview)
	g.GET("/interviews/:id/applications", h.ListApplications)
	g.POST("/interviews/:id/applications", h.CreateApplication)
	g.GET("/interviews/:id/evaluations", h.ListEvaluations)
	g.POST("/interviews/:id/evaluations", h.UpsertEvaluation)
}
