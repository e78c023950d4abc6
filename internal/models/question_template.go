package models

import (
	"time"

	"gorm.io/datatypes"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

// QuestionTemplate is the read model for the external question-bank service.
// The exam service never authors these; it only resolves them when validating
// distribution rules and when serving a template's question tree.
type QuestionTemplate struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	Text string `json:"text" gorm:"type:text;not null"`

	Difficulty DifficultyLevel             `json:"difficulty" gorm:"default:medium;index"`
	Topics     datatypes.JSONSlice[string] `json:"topics" gorm:"type:jsonb"`
	Content    datatypes.JSON              `json:"content" gorm:"type:jsonb"`

	CreatedBy string    `json:"created_by" gorm:"index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (QuestionTemplate) TableName() string {
	return "question_templates"
}
