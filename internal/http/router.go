package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/quizbridge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/quizbridge-backend/internal/http/middleware"
	"github.com/yungbote/quizbridge-backend/internal/observability"
	"github.com/yungbote/quizbridge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string
	Metrics     *observability.Metrics

	HealthHandler   *httpH.HealthHandler
	QuizHandler     *httpH.QuizHandler
	RealtimeHandler *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.AttachRequestContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")
	api.Use(httpMW.RequireUser())
	{
		// Realtime (SSE)
		if cfg.RealtimeHandler != nil {
			api.GET("/quizzes/events", cfg.RealtimeHandler.StatusStream)
		}
		// Quizzes
		if cfg.QuizHandler != nil {
			api.POST("/quizzes", cfg.QuizHandler.CreateQuiz)
			api.GET("/quizzes", cfg.QuizHandler.ListQuizzes)
			api.GET("/quizzes/:id", cfg.QuizHandler.GetQuiz)
			api.GET("/quizzes/:id/questions", cfg.QuizHandler.ListQuestions)
			api.POST("/quizzes/:id/questions/:questionID/approve", cfg.QuizHandler.ApproveQuestion)
			api.POST("/quizzes/:id/extract", cfg.QuizHandler.TriggerExtraction)
			api.POST("/quizzes/:id/generate", cfg.QuizHandler.TriggerGeneration)
			api.POST("/quizzes/:id/export", cfg.QuizHandler.TriggerExport)
		}
	}
	return r
}
