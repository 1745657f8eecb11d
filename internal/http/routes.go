package http

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sujalbistaa/confessly/internal/logging"
	"github.com/sujalbistaa/confessly/internal/metrics"
	"github.com/sujalbistaa/confessly/internal/ws"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTimeout   = 30 * time.Minute
)

// Options are the router settings that do not come from the services.
type Options struct {
	CORSOrigin string
	StaticDir  string
	Metrics    *metrics.Metrics
}

// SetupRoutes configures all application routes and middleware. Background
// work started here stops when ctx is done.
func SetupRoutes(ctx context.Context, router *gin.Engine, env *Env, opts Options) {

	// --- Middleware ---

	router.Use(logging.GinLogger(env.Log))
	router.Use(logging.GinRecovery(env.Log))
	router.Use(SecurityHeadersMiddleware())

	corsOrigin := opts.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	router.Use(SessionMiddleware(env.Auth))

	// --- Rate Limiter Setup ---
	limiter := NewIPRateLimiter(rate.Limit(rateLimitRPS), rateLimitBurst)
	go func() {
		ticker := time.NewTicker(limiterSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := limiter.Cleanup(limiterIdleTimeout); n > 0 {
					env.Log.Debug("rate limiter sweep", zap.Int("removed", n), zap.Int("remaining", limiter.Len()))
				}
			}
		}
	}()

	// --- API Routes ---

	api := router.Group("/api")
	{
		api.GET("/confessions", env.GetConfessions)
		api.POST("/confessions", RateLimitMiddleware(limiter), env.CreateConfession)
		api.GET("/confessions/trending", env.GetTrending)
		api.GET("/confessions/most-liked", env.GetMostLiked)
		api.GET("/confessions/most-commented", env.GetMostCommented)
		api.GET("/confessions/:id/likes", env.GetLikes)
		api.POST("/confessions/:id/like", env.ToggleLike)
		api.GET("/confessions/:id/comments", env.GetComments)
		api.POST("/confessions/:id/comments", env.CreateComment)
		api.GET("/tags", env.GetTags)
		api.GET("/nav", env.GetNav)
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/signup", env.SignUp)
		authGroup.POST("/signin", env.SignIn)
		authGroup.POST("/signout", env.SignOut)
		authGroup.GET("/session", env.GetSession)
	}

	admin := api.Group("/admin", RequireAdmin(env.Auth, env.Log))
	{
		admin.GET("/stats", env.GetStats)
		admin.GET("/confessions", env.GetAdminConfessions)
		admin.DELETE("/confessions/:id", env.DeleteConfession)
	}

	// --- WebSocket Route ---

	router.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(env.Hub, c.Writer, c.Request)
	})

	// --- Operational ---

	if opts.Metrics != nil {
		router.GET("/metrics", gin.WrapH(opts.Metrics.Handler()))
	}
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// --- Serve Frontend ---
	// Registered after the API so unknown /api paths still get JSON 404s.
	router.GET("/admin", env.AdminPage(opts.StaticDir))

	index := filepath.Join(opts.StaticDir, "index.html")
	if _, err := os.Stat(index); err != nil {
		env.Log.Warn("frontend not found, serving API only", zap.String("index", index))
		return
	}
	router.StaticFile("/", index)
	router.NoRoute(func(c *gin.Context) {
		p := c.Request.URL.Path
		if c.Request.Method != http.MethodGet || strings.HasPrefix(p, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
			return
		}
		if asset := filepath.Join(opts.StaticDir, filepath.Clean("/"+p)); asset != index {
			if fi, err := os.Stat(asset); err == nil && !fi.IsDir() {
				c.File(asset)
				return
			}
		}
		c.File(index)
	})
}
