package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/services"
	"github.com/edforge/exam-service/internal/utils"
	"github.com/edforge/exam-service/internal/validator"
)

type InstanceHandler struct {
	BaseHandler
	instanceService services.InstanceService
	validator       *validator.Validator
}

func NewInstanceHandler(
	instanceService services.InstanceService,
	validator *validator.Validator,
	logger utils.Logger,
) *InstanceHandler {
	return &InstanceHandler{
		BaseHandler:     NewBaseHandler(logger),
		instanceService: instanceService,
		validator:       validator,
	}
}

// CreateInstance materializes a new exam instance from a published template
func (h *InstanceHandler) CreateInstance(c *gin.Context) {
	var req services.CreateInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	instance, err := h.instanceService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, instance)
}

// GetInstance retrieves an instance with its full section/question tree
func (h *InstanceHandler) GetInstance(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting exam instance", "instance_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	instance, err := h.instanceService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// ListInstances lists the authenticated user's instances
func (h *InstanceHandler) ListInstances(c *gin.Context) {
	h.LogRequest(c, "Listing exam instances")

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	filters := h.parseInstanceFilters(c)
	instances, err := h.instanceService.GetByUser(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instances)
}

// StartInstance moves a scheduled instance to in progress
func (h *InstanceHandler) StartInstance(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Starting exam instance", "instance_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	instance, err := h.instanceService.Start(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// SubmitAnswer records an answer on a question of an in-progress instance
func (h *InstanceHandler) SubmitAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	h.LogRequest(c, "Submitting answer", "instance_id", id, "question_id", req.QuestionID)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	question, err := h.instanceService.SubmitAnswer(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// CompleteSection marks a section of the instance completed
func (h *InstanceHandler) CompleteSection(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	sectionID := h.parseIDParam(c, "section_id")
	if sectionID == 0 {
		return
	}

	h.LogRequest(c, "Completing section", "instance_id", id, "section_id", sectionID)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	section, err := h.instanceService.CompleteSection(c.Request.Context(), id, sectionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, section)
}

// CompleteInstance marks an in-progress instance completed
func (h *InstanceHandler) CompleteInstance(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Completing exam instance", "instance_id", id)

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	instance, err := h.instanceService.Complete(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// AddNote appends a free-form note to the instance
func (h *InstanceHandler) AddNote(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.AddNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	instance, err := h.instanceService.AddNote(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, instance)
}

// AddQuestionNote appends a note to one question of the instance
func (h *InstanceHandler) AddQuestionNote(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req services.AddQuestionNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err)
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	question, err := h.instanceService.AddQuestionNote(c.Request.Context(), id, questionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// GetQuestionNotes lists the notes on one question of the instance
func (h *InstanceHandler) GetQuestionNotes(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID, ok := h.requireUserID(c)
	if !ok {
		return
	}

	notes, err := h.instanceService.GetQuestionNotes(c.Request.Context(), id, questionID, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"notes": notes})
}

func (h *InstanceHandler) parseInstanceFilters(c *gin.Context) repositories.InstanceFilters {
	page := h.parseIntQuery(c, "page", 1)
	size := h.parseIntQuery(c, "size", 10)

	filters := repositories.InstanceFilters{
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	if status := c.Query("status"); status != "" {
		instanceStatus := models.InstanceStatus(status)
		filters.Status = &instanceStatus
	}

	if instanceType := c.Query("type"); instanceType != "" {
		t := models.InstanceType(instanceType)
		filters.Type = &t
	}

	if courseID := h.parseIntQuery(c, "course_id", 0); courseID > 0 {
		cid := uint(courseID)
		filters.CourseID = &cid
	}

	return filters
}
