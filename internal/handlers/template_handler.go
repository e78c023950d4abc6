package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/services"
	"github.com/edforge/exam-service/internal/utils"
	"github.com/edforge/exam-service/internal/validator"
)

type TemplateHandler struct {
	BaseHandler
	templateService services.TemplateService
	reportService   services.ReportService
	validator       *validator.Validator
}

func NewTemplateHandler(
	templateService services.TemplateService,
	reportService services.ReportService,
	validator *validator.Validator,
	logger utils.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		BaseHandler:     NewBaseHandler(logger),
		templateService: templateService,
		reportService:   reportService,
		validator:       validator,
	}
}

// CreateTemplate creates a new exam template
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req services.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	template, err := h.templateService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// GetTemplate retrieves a template with its full section/question tree
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting exam template", "template_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	template, err := h.templateService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// UpdateTemplate updates template metadata
func (h *TemplateHandler) UpdateTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating exam template", "template_id", id)

	var req services.UpdateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	template, err := h.templateService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// DeleteTemplate deletes a template
func (h *TemplateHandler) DeleteTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting exam template", "template_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	if err := h.templateService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListTemplates lists templates with filters
func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	h.LogRequest(c, "Listing exam templates")

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := h.parseTemplateFilters(c)
	templates, err := h.templateService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, templates)
}

// CreateNewVersion deep-copies a template into a new unpublished version
func (h *TemplateHandler) CreateNewVersion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Creating template version", "template_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	template, err := h.templateService.CreateNewVersion(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, template)
}

// PublishTemplate validates and publishes a template
func (h *TemplateHandler) PublishTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Publishing template", "template_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	template, err := h.templateService.Publish(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, template)
}

// ValidateTemplate runs the validation engine without publishing
func (h *TemplateHandler) ValidateTemplate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Validating template", "template_id", id)

	result, err := h.templateService.Validate(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetTemplateHistory returns the version lineage of a template
func (h *TemplateHandler) GetTemplateHistory(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting template history", "template_id", id)

	history, err := h.templateService.GetHistory(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, history)
}

// ExportTemplateReport streams an xlsx report of the template's instances
func (h *TemplateHandler) ExportTemplateReport(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting template report", "template_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	data, filename, err := h.reportService.ExportTemplateResults(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *TemplateHandler) parseTemplateFilters(c *gin.Context) repositories.TemplateFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.TemplateFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if courseIDStr := c.Query("course_id"); courseIDStr != "" {
		if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
			cid := uint(courseID)
			filters.CourseID = &cid
		}
	}

	if creator := c.Query("creator_id"); creator != "" {
		filters.CreatedBy = &creator
	}

	if publishedStr := c.Query("published"); publishedStr != "" {
		published := publishedStr == "true"
		filters.IsPublished = &published
	}

	if search := c.Query("q"); search != "" {
		filters.Search = &search
	}

	return filters
}
