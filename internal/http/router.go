package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/lessonforge/internal/http/handlers"
	httpMW "github.com/yungbote/lessonforge/internal/http/middleware"
	"github.com/yungbote/lessonforge/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	OutlineHandler *httpH.OutlineHandler
	EventsHandler  *httpH.EventsHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.Metrics())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		if cfg.OutlineHandler != nil {
			api.POST("/outlines", cfg.OutlineHandler.Submit)
			api.GET("/outlines", cfg.OutlineHandler.List)
			api.GET("/outlines/:id", cfg.OutlineHandler.Get)
			api.GET("/outlines/:id/status", cfg.OutlineHandler.Status)
			api.GET("/outlines/:id/lessons", cfg.OutlineHandler.Lessons)
			api.POST("/outlines/:id/resume", cfg.OutlineHandler.Resume)
			api.GET("/lessons/:id", cfg.OutlineHandler.Lesson)
		}
		if cfg.EventsHandler != nil {
			api.GET("/outlines/:id/events", cfg.EventsHandler.Stream)
		}
	}
	return r
}
