package http

import (
	"net/http"
	"time"

	"quiz-api/internal/app"
	"quiz-api/internal/domain"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services groups the use cases the router exposes.
type Services struct {
	Auth      *app.AuthService
	Questions *app.QuestionService
	Grading   *app.GradingService
	Results   *app.ResultService
	Feed      *app.ResultFeed
}

// NewRouter builds the gin engine with every API route mounted under /api.
func NewRouter(svc Services, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), metricsMiddleware())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(corsOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = corsOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.NoRoute(func(c *gin.Context) {
		fail(c, http.StatusNotFound, "route not found", nil)
	})

	authH := NewAuthHandler(svc.Auth)
	questionH := NewQuestionHandler(svc.Questions)
	resultH := NewResultHandler(svc.Grading, svc.Results)

	requireUser := authenticate(svc.Auth, false)
	adminOnly := requireRole(domain.RoleAdmin)

	api := r.Group("/api")
	{
		authGroup := api.Group("/auth")
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.GET("/me", requireUser, authH.Me)

		questions := api.Group("/questions", requireUser)
		questions.GET("/get_questions", questionH.List)
		questions.GET("/random", questionH.Random)
		questions.GET("/search", questionH.Search)
		questions.POST("", adminOnly, questionH.Create)
		questions.PUT("/:id", adminOnly, questionH.Update)
		questions.DELETE("/:id", adminOnly, questionH.Delete)
		questions.DELETE("", adminOnly, questionH.DeleteAll)

		api.DELETE("/clear-database", requireUser, adminOnly, resultH.ClearDatabase)

		results := api.Group("/results", requireUser)
		results.POST("", resultH.Submit)
		results.GET("/student/:id", resultH.ForStudent)
		results.GET("", adminOnly, resultH.List)
	}

	if svc.Feed != nil {
		wsH := NewWSHandler(svc.Feed)
		r.GET("/ws/results", authenticate(svc.Auth, true), adminOnly, wsH.ServeWS)
	}
	return r
}
