package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ExamExclusivity string

const (
	ExclusivityExamOnly     ExamExclusivity = "exam_only"
	ExclusivityPracticeOnly ExamExclusivity = "practice_only"
	ExclusivityBoth         ExamExclusivity = "both"
)

// DifficultyRule maps a difficulty level to the percentage of section questions
// that must carry it. Percentages across a section's rules must sum to 100.
type DifficultyRule struct {
	Difficulty DifficultyLevel `json:"difficulty"`
	Percentage int             `json:"percentage"`
}

// TopicRule maps a set of topics to a percentage of section questions. A question
// counts toward a rule when any of its topics is listed.
type TopicRule struct {
	Topics     []string `json:"topics"`
	Percentage int      `json:"percentage"`
}

type ExamTemplate struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=1000"`

	CourseID  uint   `json:"course_id" gorm:"not null;index"`
	CreatedBy string `json:"created_by" gorm:"not null;index;size:255"`

	// Availability window, copied onto instances at creation time
	AvailabilityStartDate time.Time `json:"availability_start_date" gorm:"not null"`
	AvailabilityEndDate   time.Time `json:"availability_end_date" gorm:"not null"`

	// Version lineage: a new version is a new row pointing back at its source.
	Version          int   `json:"version" gorm:"default:1"`
	ParentTemplateID *uint `json:"parent_template_id" gorm:"index"`

	IsPublished bool            `json:"is_published" gorm:"default:false;index"`
	Exclusivity ExamExclusivity `json:"exclusivity" gorm:"default:both" validate:"omitempty,oneof=exam_only practice_only both"`
	Tag         string          `json:"tag" gorm:"size:255"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Sections       []ExamTemplateSection `json:"sections" gorm:"foreignKey:ExamTemplateID"`
	ParentTemplate *ExamTemplate         `json:"parent_template,omitempty" gorm:"foreignKey:ParentTemplateID"`
	Course         Course                `json:"course" gorm:"foreignKey:CourseID"`
	Creator        User                  `json:"creator" gorm:"foreignKey:CreatedBy"`
}

type ExamTemplateSection struct {
	ID             uint    `json:"id" gorm:"primaryKey"`
	ExamTemplateID uint    `json:"exam_template_id" gorm:"not null;index"`
	Title          string  `json:"title" gorm:"not null;size:200" validate:"required,max=200"`
	Instructions   *string `json:"instructions" gorm:"type:text"`

	// 1-based, unique per template
	Position         int `json:"position" gorm:"not null"`
	TimeLimitSeconds int `json:"time_limit_seconds" gorm:"not null" validate:"min=1"`

	// Distribution rules stored as JSONB; nil means no constraint.
	DifficultyDistribution datatypes.JSONSlice[DifficultyRule] `json:"difficulty_distribution" gorm:"type:jsonb"`
	TopicDistribution      datatypes.JSONSlice[TopicRule]      `json:"topic_distribution" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []ExamTemplateSectionQuestion `json:"questions" gorm:"foreignKey:SectionID"`
}

type ExamTemplateSectionQuestion struct {
	ID                 uint `json:"id" gorm:"primaryKey"`
	SectionID          uint `json:"section_id" gorm:"not null;index"`
	QuestionTemplateID uint `json:"question_template_id" gorm:"not null;index"`
	Position           int  `json:"position" gorm:"default:0"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	QuestionTemplate *QuestionTemplate `json:"question_template" gorm:"foreignKey:QuestionTemplateID"`
}

func (ExamTemplate) TableName() string {
	return "exam_templates"
}

func (ExamTemplateSection) TableName() string {
	return "exam_template_sections"
}

func (ExamTemplateSectionQuestion) TableName() string {
	return "exam_template_section_questions"
}
