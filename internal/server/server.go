package server

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/agenthands/dsstrack/internal/config"
	"github.com/agenthands/dsstrack/internal/core"
	"github.com/agenthands/dsstrack/internal/logger"
)

type Server struct {
	Service *core.Service
	Config  config.ServerConfig
	Log     *logger.Logger
}

func NewServer(svc *core.Service, cfg config.ServerConfig, log *logger.Logger) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		Service: svc,
		Config:  cfg,
		Log:     log.With("component", "http"),
	}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.Use(cors.New(s.corsConfig()))
	r.MaxMultipartMemory = s.Config.MaxUploadBytes

	r.GET("/health", s.Health)
	r.POST("/upload", s.Upload)
	r.POST("/analyze", s.Analyze)
	r.POST("/review", s.Review)
	r.GET("/session/:id", s.Status)
	r.GET("/session/:id/pending", s.Pending)
	r.DELETE("/session/:id", s.Reset)
	r.GET("/export/:id", s.Export)

	return r
}

func (s *Server) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "X-Requested-With"},
		// The browser needs this to read the report file name.
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(s.Config.AllowedOrigins) == 0 || slices.Contains(s.Config.AllowedOrigins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = s.Config.AllowedOrigins
	}
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.Log.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
