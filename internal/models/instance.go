package models

import (
	"time"

	"gorm.io/datatypes"
)

type InstanceType string

const (
	InstanceExam         InstanceType = "exam"
	InstancePracticeExam InstanceType = "practice_exam"
	InstanceStudyGuide   InstanceType = "study_guide"
)

type InstanceStatus string

const (
	InstanceScheduled  InstanceStatus = "scheduled"
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceCompleted  InstanceStatus = "completed"
	InstanceExpired    InstanceStatus = "expired"
)

type SectionStatus string

const (
	SectionNotStarted SectionStatus = "not_started"
	SectionInProgress SectionStatus = "in_progress"
	SectionCompleted  SectionStatus = "completed"
	SectionTimedOut   SectionStatus = "timed_out"
)

type QuestionStatus string

const (
	QuestionUnanswered QuestionStatus = "unanswered"
	QuestionAnswered   QuestionStatus = "answered"
	QuestionFlagged    QuestionStatus = "flagged"
	QuestionSkipped    QuestionStatus = "skipped"
)

// InstanceNote is a free-form note a student attaches to a section of their instance.
type InstanceNote struct {
	SectionID uint      `json:"section_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// QuestionNote is a free-form note attached to a single instance question.
type QuestionNote struct {
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type ExamInstance struct {
	ID     uint           `json:"id" gorm:"primaryKey"`
	Type   InstanceType   `json:"type" gorm:"not null;index" validate:"required,oneof=exam practice_exam study_guide"`
	Status InstanceStatus `json:"status" gorm:"default:scheduled;index"`

	ExamTemplateID uint   `json:"exam_template_id" gorm:"not null;index"`
	UserID         string `json:"user_id" gorm:"not null;index;size:255"`
	CourseID       uint   `json:"course_id" gorm:"not null;index"`

	// Availability window, frozen from the template at creation time
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Notes datatypes.JSONSlice[InstanceNote] `json:"notes" gorm:"type:jsonb"`
	Tag   string                            `json:"tag" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Template ExamTemplate          `json:"template" gorm:"foreignKey:ExamTemplateID"`
	Sections []ExamInstanceSection `json:"sections" gorm:"foreignKey:ExamInstanceID"`
	User     User                  `json:"user" gorm:"foreignKey:UserID"`
}

type ExamInstanceSection struct {
	ID                uint          `json:"id" gorm:"primaryKey"`
	ExamInstanceID    uint          `json:"exam_instance_id" gorm:"not null;index"`
	TemplateSectionID uint          `json:"template_section_id" gorm:"not null;index"`
	Status            SectionStatus `json:"status" gorm:"default:not_started;index"`

	Position         int `json:"position" gorm:"not null"`
	TimeLimitSeconds int `json:"time_limit_seconds" gorm:"not null"`
	TimeSpentSeconds int `json:"time_spent_seconds" gorm:"default:0"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	Tag string `json:"tag" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	TemplateSection ExamTemplateSection    `json:"template_section" gorm:"foreignKey:TemplateSectionID"`
	Questions       []ExamInstanceQuestion `json:"questions" gorm:"foreignKey:SectionID"`
}

type ExamInstanceQuestion struct {
	ID                        uint           `json:"id" gorm:"primaryKey"`
	SectionID                 uint           `json:"section_id" gorm:"not null;index"`
	TemplateSectionQuestionID uint           `json:"template_section_question_id" gorm:"not null;index"`
	Status                    QuestionStatus `json:"status" gorm:"default:unanswered;index"`

	Position int `json:"position" gorm:"default:0"`

	// Opaque answer payload; its shape belongs to the question-type logic, not to us.
	StudentAnswer datatypes.JSON `json:"student_answer" gorm:"type:jsonb"`

	// Grading fields. Scoring is performed by an external grading policy; we only store results.
	IsCorrect bool     `json:"is_correct" gorm:"default:false"`
	Score     *float64 `json:"score"`
	Feedback  *string  `json:"feedback" gorm:"type:text"`

	AnsweredAt *time.Time `json:"answered_at"`

	Notes datatypes.JSONSlice[QuestionNote] `json:"notes" gorm:"type:jsonb"`
	Tag   string                            `json:"tag" gorm:"size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	TemplateQuestion ExamTemplateSectionQuestion `json:"template_question" gorm:"foreignKey:TemplateSectionQuestionID"`
	Section          ExamInstanceSection         `json:"section" gorm:"foreignKey:SectionID"`
}

func (ExamInstance) TableName() string {
	return "exam_instances"
}

func (ExamInstanceSection) TableName() string {
	return "exam_instance_sections"
}

func (ExamInstanceQuestion) TableName() string {
	return "exam_instance_questions"
}
