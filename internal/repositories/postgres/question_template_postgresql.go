package postgres

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

// QuestionTemplatePostgreSQL is a read-only view over the question bank tables
// owned by the authoring service. This service never writes them.
type QuestionTemplatePostgreSQL struct {
	db *gorm.DB
}

func NewQuestionTemplatePostgreSQL(db *gorm.DB) repositories.QuestionTemplateRepository {
	return &QuestionTemplatePostgreSQL{db: db}
}

func (q *QuestionTemplatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionTemplate, error) {
	db := q.getDB(tx)
	var question models.QuestionTemplate
	if err := db.WithContext(ctx).First(&question, id).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (q *QuestionTemplatePostgreSQL) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuestionTemplate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	db := q.getDB(tx)
	var questions []*models.QuestionTemplate
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error; err != nil {
		return nil, fmt.Errorf("failed to get question templates: %w", err)
	}
	return questions, nil
}

func (q *QuestionTemplatePostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := q.getDB(tx)
	var count int64
	if err := db.WithContext(ctx).
		Model(&models.QuestionTemplate{}).
		Where("id = ?", id).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (q *QuestionTemplatePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return q.db
}

// CoursePostgreSQL reads course records for existence and reference checks.
type CoursePostgreSQL struct {
	db *gorm.DB
}

func NewCoursePostgreSQL(db *gorm.DB) repositories.CourseRepository {
	return &CoursePostgreSQL{db: db}
}

func (c *CoursePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	db := c.getDB(tx)
	var course models.Course
	if err := db.WithContext(ctx).First(&course, id).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (c *CoursePostgreSQL) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	db := c.getDB(tx)
	var course models.Course
	err := db.WithContext(ctx).Select("id").First(&course, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *CoursePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return c.db
}
