package adminserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tm2pc/txmanager/internal/authz/jwt"
	"github.com/tm2pc/txmanager/internal/eventlog"
	"github.com/tm2pc/txmanager/internal/tm2pc"
	"github.com/tm2pc/txmanager/pkg/config"
	"github.com/tm2pc/txmanager/pkg/database"
	"github.com/tm2pc/txmanager/pkg/logger"
	"github.com/tm2pc/txmanager/pkg/metrics"
	"github.com/tm2pc/txmanager/pkg/middleware/auth"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the Gin HTTP surface, the websocket transition stream and
// the GC scheduler around a *tm2pc.TM.
type Server struct {
	router *gin.Engine
	http   *http.Server
	hub    *Hub
	gc     *GCScheduler
	logger logger.Logger
}

// Deps bundles everything Server needs to build its routes, keeping the
// constructor signature from growing with every new middleware.
type Deps struct {
	TM            *tm2pc.TM
	DB            *database.DB
	JWTManager    *jwt.Manager
	Enforcer      auth.PermissionChecker
	ReindexAPIKey auth.APIKeyValidator
	Indexer       *eventlog.Indexer
	Logger        logger.Logger
	Server        config.ServerConfig
	GC            *GCScheduler
}

func NewServer(deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metricsMiddleware())

	hub := NewHub(deps.Logger)
	handlers := NewHandlers(deps.TM, hub)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", func(c *gin.Context) {
		if err := deps.DB.Healthy(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", func(c *gin.Context) {
		if !authorizeWebsocket(c, deps.JWTManager) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing token"})
			return
		}
		if err := hub.ServeWS(c.Writer, c.Request); err != nil && deps.Logger != nil {
			deps.Logger.Warn("adminserver: websocket upgrade failed", "error", err)
		}
	})

	if deps.ReindexAPIKey != nil && deps.Indexer != nil {
		router.POST("/admin/reindex", auth.APIKeyMiddleware(deps.ReindexAPIKey), func(c *gin.Context) {
			if err := deps.Indexer.InitializeIndex(c.Request.Context()); err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"status": "reindex triggered"})
		})
	}

	jwtMW := auth.NewJWTMiddleware(deps.JWTManager, nil)
	casbinMW := auth.NewCasbinMiddleware(deps.Enforcer)

	api := router.Group("/orders")
	api.Use(jwtMW.Handle())
	api.Use(casbinMW.Authorize())
	api.Use(principalMiddleware())
	{
		api.POST("", handlers.CreateOrder)
		api.GET("", handlers.GetOrders)
		api.GET("/:toid", handlers.GetOrder)
		api.GET("/:toid/events", handlers.GetTaskEvents)
		api.POST("/:toid/push", handlers.Push)
		api.POST("/:toid/run", handlers.Run)

		gov := api.Group("/:toid/governance")
		{
			gov.POST("/open", handlers.Open)
			gov.POST("/finish", handlers.Finish)
			gov.POST("/append", handlers.Append)
			gov.PUT("/:ttid", handlers.Update)
			gov.DELETE("/:ttid", handlers.Remove)
			gov.POST("/appendComp", handlers.AppendComp)
			gov.POST("/complete", handlers.Complete)
		}
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", deps.Server.Host, deps.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(deps.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(deps.Server.WriteTimeout) * time.Second,
	}

	return &Server{
		router: router,
		http:   httpServer,
		hub:    hub,
		gc:     deps.GC,
		logger: deps.Logger,
	}
}

// Hub exposes the websocket hub so main can subscribe it to the event bus
// and start its broadcast loop.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Start() error {
	go s.hub.Run()
	if s.logger != nil {
		s.logger.Info("adminserver: starting", "addr", s.http.Addr)
	}
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.gc != nil {
		s.gc.Stop()
	}
	return s.http.Shutdown(ctx)
}

// principalMiddleware attributes governance calls to the authenticated
// operator by carrying their user id on the request context; tm2pc's
// emitGovernance picks it up via tm2pc.WithPrincipal.
func principalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID, ok := auth.GetUserID(c); ok {
			ctx := tm2pc.WithPrincipal(c.Request.Context(), userID)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}

// authorizeWebsocket validates the bearer token carried in the "token"
// query parameter: browsers cannot set an Authorization header on the
// websocket handshake request.
func authorizeWebsocket(c *gin.Context, jwtManager *jwt.Manager) bool {
	token := c.Query("token")
	if token == "" {
		return false
	}
	_, err := jwtManager.ValidateToken(token)
	return err == nil
}

func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := fmt.Sprintf("%d", c.Writer.Status())
		metrics.RecordHTTPRequest("tmd", c.Request.Method, c.FullPath(), status)
		metrics.RecordHTTPDuration("tmd", c.Request.Method, c.FullPath(), time.Since(start).Seconds())
	}
}
