package services

import (
	"context"
	"time"

	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

// ===== TEMPLATE DTOs =====

type CreateTemplateRequest struct {
	Name                  string                 `json:"name" validate:"required,max=200"`
	Description           *string                `json:"description" validate:"omitempty,max=2000"`
	CourseID              uint                   `json:"course_id" validate:"required"`
	AvailabilityStartDate time.Time              `json:"availability_start_date" validate:"required"`
	AvailabilityEndDate   time.Time              `json:"availability_end_date" validate:"required"`
	Exclusivity           models.ExamExclusivity `json:"exclusivity" validate:"omitempty,oneof=exam_only practice_only both"`
	Tag                   string                 `json:"tag" validate:"omitempty,max=255"`
	Sections              []CreateSectionRequest `json:"sections" validate:"omitempty,dive"`
}

type CreateSectionRequest struct {
	Title                  string                         `json:"title" validate:"required,max=200"`
	Instructions           *string                        `json:"instructions" validate:"omitempty,max=5000"`
	Position               int                            `json:"position" validate:"required,min=1"`
	TimeLimitSeconds       int                            `json:"time_limit_seconds" validate:"required,min=1"`
	DifficultyDistribution []models.DifficultyRule        `json:"difficulty_distribution" validate:"omitempty,dive"`
	TopicDistribution      []models.TopicRule             `json:"topic_distribution" validate:"omitempty,dive"`
	Questions              []CreateSectionQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

type CreateSectionQuestionRequest struct {
	QuestionTemplateID uint `json:"question_template_id" validate:"required"`
	Position           int  `json:"position" validate:"min=0"`
}

type UpdateTemplateRequest struct {
	Name                  *string                 `json:"name" validate:"omitempty,max=200"`
	Description           *string                 `json:"description" validate:"omitempty,max=2000"`
	AvailabilityStartDate *time.Time              `json:"availability_start_date"`
	AvailabilityEndDate   *time.Time              `json:"availability_end_date"`
	Exclusivity           *models.ExamExclusivity `json:"exclusivity" validate:"omitempty,oneof=exam_only practice_only both"`
	Tag                   *string                 `json:"tag" validate:"omitempty,max=255"`
}

type TemplateResponse struct {
	*models.ExamTemplate
	CanEdit    bool `json:"can_edit"`
	CanPublish bool `json:"can_publish"`
}

type TemplateListResponse struct {
	Templates []*TemplateResponse `json:"templates"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	Size      int                 `json:"size"`
}

// ValidateTemplateResponse is only returned for a valid template; violations
// surface as a TemplateInvalidError instead.
type ValidateTemplateResponse struct {
	IsValid bool `json:"is_valid"`
}

// ===== INSTANCE DTOs =====

type CreateInstanceRequest struct {
	TemplateID uint                `json:"template_id" validate:"required"`
	Type       models.InstanceType `json:"type" validate:"required,oneof=exam practice_exam study_guide"`
	CourseID   uint                `json:"course_id" validate:"required"`
	StartDate  time.Time           `json:"start_date" validate:"required"`
	EndDate    time.Time           `json:"end_date" validate:"required"`
}

type SubmitAnswerRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Answer     any  `json:"answer" validate:"required"`
}

type AddNoteRequest struct {
	SectionID uint   `json:"section_id" validate:"required"`
	Note      string `json:"note" validate:"required,max=5000"`
}

type AddQuestionNoteRequest struct {
	Note string `json:"note" validate:"required,max=5000"`
}

type InstanceResponse struct {
	*models.ExamInstance
	CanStart    bool `json:"can_start"`
	CanComplete bool `json:"can_complete"`
}

type InstanceListResponse struct {
	Instances []*InstanceResponse `json:"instances"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	Size      int                 `json:"size"`
}

// ===== SERVICE INTERFACES =====

type TemplateService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateTemplateRequest, creatorID string) (*TemplateResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*TemplateResponse, error)
	Update(ctx context.Context, id uint, req *UpdateTemplateRequest, userID string) (*TemplateResponse, error)
	Delete(ctx context.Context, id uint, userID string) error
	List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error)

	// Versioning and publishing
	CreateNewVersion(ctx context.Context, templateID uint, userID string) (*TemplateResponse, error)
	Publish(ctx context.Context, templateID uint, userID string) (*TemplateResponse, error)
	GetHistory(ctx context.Context, templateID uint) ([]*models.ExamTemplate, error)

	// Validation without side effects
	Validate(ctx context.Context, templateID uint) (*ValidateTemplateResponse, error)
}

type InstanceService interface {
	// Materialization and reads
	Create(ctx context.Context, req *CreateInstanceRequest, userID string) (*InstanceResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*InstanceResponse, error)
	GetByUser(ctx context.Context, userID string, filters repositories.InstanceFilters) (*InstanceListResponse, error)

	// Progress state machine
	Start(ctx context.Context, instanceID uint, userID string) (*InstanceResponse, error)
	SubmitAnswer(ctx context.Context, instanceID uint, req *SubmitAnswerRequest, userID string) (*models.ExamInstanceQuestion, error)
	CompleteSection(ctx context.Context, instanceID, sectionID uint, userID string) (*models.ExamInstanceSection, error)
	Complete(ctx context.Context, instanceID uint, userID string) (*InstanceResponse, error)

	// Notes
	AddNote(ctx context.Context, instanceID uint, req *AddNoteRequest, userID string) (*InstanceResponse, error)
	AddQuestionNote(ctx context.Context, instanceID, questionID uint, req *AddQuestionNoteRequest, userID string) (*models.ExamInstanceQuestion, error)
	GetQuestionNotes(ctx context.Context, instanceID, questionID uint, userID string) ([]models.QuestionNote, error)
}

type ReportService interface {
	// ExportTemplateResults renders every instance of a template into a
	// spreadsheet and returns the serialized bytes.
	ExportTemplateResults(ctx context.Context, templateID uint, userID string) ([]byte, string, error)
}

// ServiceManager provides access to all services with lifecycle management.
type ServiceManager interface {
	Template() TemplateService
	Instance() InstanceService
	Report() ReportService

	Initialize(ctx context.Context) error
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
