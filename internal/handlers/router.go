package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/altius-academy/activity-service/internal/models"
	"github.com/altius-academy/activity-service/internal/services"
	"github.com/altius-academy/activity-service/internal/utils"
)

const healthCheckTimeout = 3 * time.Second

type HandlerManager struct {
	gradeTaskHandler *GradeTaskHandler
	sessionHandler   *SessionHandler
	authMiddleware   *CasdoorAuthMiddleware
	serviceManager   services.ServiceManager
	logger           utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	authMiddleware *CasdoorAuthMiddleware,
	logger utils.Logger,
) *HandlerManager {
	return &HandlerManager{
		gradeTaskHandler: NewGradeTaskHandler(serviceManager.GradeTask(), logger),
		sessionHandler:   NewSessionHandler(serviceManager.Session(), logger),
		authMiddleware:   authMiddleware,
		serviceManager:   serviceManager,
		logger:           logger,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.health)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		student := v1.Group("/student")
		student.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent))
		{
			student.GET("/grade-tasks/:taskId", hm.gradeTaskHandler.GetTask)
			student.POST("/grade-tasks/:taskId/submit", hm.gradeTaskHandler.SubmitTask)
		}

		teacher := v1.Group("/teacher")
		teacher.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleCoordinator))
		{
			teacher.POST("/grade-tasks", hm.gradeTaskHandler.CreateTask)
			teacher.GET("/grade-tasks/:taskId/submissions", hm.gradeTaskHandler.ListSubmissions)
		}

		sessions := v1.Group("/sessions")
		sessions.Use(hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent))
		{
			sessions.POST("", hm.sessionHandler.StartSession)
			sessions.GET("/:id", hm.sessionHandler.GetSession)
			sessions.POST("/:id/answers", hm.sessionHandler.SubmitAnswer)
			sessions.GET("/:id/review/:index", hm.sessionHandler.ReviewAnswer)
			sessions.POST("/:id/submit", hm.sessionHandler.RetrySubmit)
			sessions.DELETE("/:id", hm.sessionHandler.AbandonSession)
		}
	}
}

func (hm *HandlerManager) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	if err := hm.serviceManager.HealthCheck(ctx); err != nil {
		hm.logger.Warn("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": "activity-service",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"service":         "activity-service",
		"active_sessions": hm.serviceManager.Session().ActiveCount(),
	})
}
