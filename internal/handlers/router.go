package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/edforge/exam-service/internal/config"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/services"
	"github.com/edforge/exam-service/internal/utils"
	"github.com/edforge/exam-service/internal/validator"
)

type HandlerManager struct {
	templateHandler *TemplateHandler
	instanceHandler *InstanceHandler
	authMiddleware  *CasdoorAuthMiddleware
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	validator *validator.Validator,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	authMiddleware := NewCasdoorAuthMiddleware(casdoorConfig, userRepo)

	return &HandlerManager{
		templateHandler: NewTemplateHandler(serviceManager.Template(), serviceManager.Report(), validator, logger),
		instanceHandler: NewInstanceHandler(serviceManager.Instance(), validator, logger),
		authMiddleware:  authMiddleware,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	// API v1 routes with authentication
	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		// Template routes
		templates := v1.Group("/templates")
		{
			// Author operations - Instructors and Admins only
			templates.POST("", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.CreateTemplate)
			templates.PUT("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.UpdateTemplate)
			templates.DELETE("/:id", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.DeleteTemplate)
			templates.POST("/:id/versions", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.CreateNewVersion)
			templates.POST("/:id/publish", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.PublishTemplate)
			templates.POST("/:id/validate", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.ValidateTemplate)
			templates.GET("/:id/report", hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleAdmin), hm.templateHandler.ExportTemplateReport)

			// Read operations - all authenticated users
			templates.GET("", hm.templateHandler.ListTemplates)
			templates.GET("/:id", hm.templateHandler.GetTemplate)
			templates.GET("/:id/history", hm.templateHandler.GetTemplateHistory)
		}

		// Instance routes
		instances := v1.Group("/instances")
		{
			instances.POST("", hm.instanceHandler.CreateInstance)
			instances.GET("", hm.instanceHandler.ListInstances)
			instances.GET("/:id", hm.instanceHandler.GetInstance)

			// Lifecycle operations
			instances.POST("/:id/start", hm.instanceHandler.StartInstance)
			instances.POST("/:id/answers", hm.instanceHandler.SubmitAnswer)
			instances.POST("/:id/sections/:section_id/complete", hm.instanceHandler.CompleteSection)
			instances.POST("/:id/complete", hm.instanceHandler.CompleteInstance)

			// Notes
			instances.POST("/:id/notes", hm.instanceHandler.AddNote)
			instances.POST("/:id/questions/:question_id/notes", hm.instanceHandler.AddQuestionNote)
			instances.GET("/:id/questions/:question_id/notes", hm.instanceHandler.GetQuestionNotes)
		}
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "exam-service",
		})
	})
}
