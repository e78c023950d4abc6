package models

import "time"

// Course is a thin read model; course management lives in another service.
type Course struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:200"`
	Description *string `json:"description" gorm:"type:text"`

	InstitutionID *uint  `json:"institution_id" gorm:"index"`
	CreatedBy     string `json:"created_by" gorm:"index;size:255"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Course) TableName() string {
	return "courses"
}
