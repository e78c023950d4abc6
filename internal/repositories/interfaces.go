package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/models"
)

// ===== SHARED FILTER STRUCTS =====

type TemplateFilters struct {
	CourseID    *uint      `json:"course_id"`
	CreatedBy   *string    `json:"created_by"`
	IsPublished *bool      `json:"is_published"`
	Search      *string    `json:"search"`
	DateFrom    *time.Time `json:"date_from"`
	DateTo      *time.Time `json:"date_to"`
	Limit       int        `json:"limit"`
	Offset      int        `json:"offset"`
	SortBy      string     `json:"sort_by"`    // "created_at", "name", "version"
	SortOrder   string     `json:"sort_order"` // "asc", "desc"
}

type InstanceFilters struct {
	Status    *models.InstanceStatus `json:"status"`
	Type      *models.InstanceType   `json:"type"`
	UserID    *string                `json:"user_id"`
	CourseID  *uint                  `json:"course_id"`
	DateFrom  *time.Time             `json:"date_from"`
	DateTo    *time.Time             `json:"date_to"`
	Limit     int                    `json:"limit"`
	Offset    int                    `json:"offset"`
	SortBy    string                 `json:"sort_by"`
	SortOrder string                 `json:"sort_order"`
}

type UserFilters struct {
	Query  string
	Limit  int
	Offset int
}

// ===== REPOSITORY INTERFACES =====

// TemplateRepository covers exam templates, their sections and section questions.
type TemplateRepository interface {
	Create(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error)
	// GetByIDWithTree loads the template with sections, section questions and
	// resolved question templates, sections ordered by position.
	GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error)
	Update(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters TemplateFilters) ([]*models.ExamTemplate, int64, error)

	// Version lineage lookups; lineage is walked by id, never by live references.
	GetRoot(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error)
	GetByParentID(ctx context.Context, tx *gorm.DB, parentID uint) ([]*models.ExamTemplate, error)

	CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamTemplateSection) error
	CreateSectionQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamTemplateSectionQuestion) error

	SetPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error
}

// InstanceRepository covers exam instances and their nested sections/questions.
type InstanceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error)
	// GetByIDWithTree loads the instance with sections and questions, ordered by position.
	GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error)
	Update(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error

	GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters InstanceFilters) ([]*models.ExamInstance, int64, error)
	GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters InstanceFilters) ([]*models.ExamInstance, int64, error)

	CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error
	GetSection(ctx context.Context, tx *gorm.DB, instanceID, sectionID uint) (*models.ExamInstanceSection, error)
	UpdateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error

	CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error
	// GetQuestionWithSection loads a question along with its owning section so
	// callers can verify which instance it belongs to.
	GetQuestionWithSection(ctx context.Context, tx *gorm.DB, questionID uint) (*models.ExamInstanceQuestion, error)
	UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error
}

// QuestionTemplateRepository is the read boundary to the external question bank.
type QuestionTemplateRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionTemplate, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuestionTemplate, error)
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// CourseRepository is the read boundary to the course service.
type CourseRepository interface {
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error)
	ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
}

// UserRepository interface for user operations (this service is not the owner of user data)
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*models.User, error)

	ExistsByID(ctx context.Context, id string) (bool, error)
	HasRole(ctx context.Context, id string, role models.UserRole) (bool, error)
}
