package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/cache"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

type InstancePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewInstancePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.InstanceRepository {
	return &InstancePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (i *InstancePostgreSQL) Create(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Create(instance).Error; err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	cache.InvalidateInstanceCache(ctx, i.cacheManager, instance.ID, instance.UserID)
	return nil
}

// GetByID retrieves an instance by ID with caching. The instance TTL is short
// because attempts mutate while in progress.
func (i *InstancePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error) {
	db := i.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var instance models.ExamInstance

	err := i.cacheManager.Instance.CacheOrExecute(ctx, cacheKey, &instance, cache.InstanceCacheConfig.TTL, func() (interface{}, error) {
		var dbInstance models.ExamInstance
		if err := db.WithContext(ctx).First(&dbInstance, id).Error; err != nil {
			return nil, err
		}
		return &dbInstance, nil
	})
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

func (i *InstancePostgreSQL) GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error) {
	db := i.getDB(tx)
	cacheKey := fmt.Sprintf("tree:%d", id)
	var instance models.ExamInstance

	err := i.cacheManager.Instance.CacheOrExecute(ctx, cacheKey, &instance, cache.InstanceCacheConfig.TTL, func() (interface{}, error) {
		var dbInstance models.ExamInstance
		if err := db.WithContext(ctx).
			Preload("Template").
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("exam_instance_sections.position ASC")
			}).
			Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("exam_instance_questions.position ASC")
			}).
			Preload("Sections.Questions.TemplateQuestion.QuestionTemplate").
			First(&dbInstance, id).Error; err != nil {
			return nil, err
		}
		return &dbInstance, nil
	})
	if err != nil {
		return nil, err
	}

	return &instance, nil
}

func (i *InstancePostgreSQL) Update(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Save(instance).Error; err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	cache.InvalidateInstanceCache(ctx, i.cacheManager, instance.ID, instance.UserID)
	return nil
}

func (i *InstancePostgreSQL) GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.InstanceFilters) ([]*models.ExamInstance, int64, error) {
	db := i.getDB(tx)
	var instances []*models.ExamInstance
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamInstance{}).Where("user_id = ?", userID)
	query = i.helpers.ApplyInstanceFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = i.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Preload("Template").Find(&instances).Error; err != nil {
		return nil, 0, err
	}

	return instances, total, nil
}

func (i *InstancePostgreSQL) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.InstanceFilters) ([]*models.ExamInstance, int64, error) {
	db := i.getDB(tx)
	var instances []*models.ExamInstance
	var total int64

	query := db.WithContext(ctx).Model(&models.ExamInstance{}).Where("exam_template_id = ?", templateID)
	query = i.helpers.ApplyInstanceFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = i.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.
		Preload("Sections", func(db *gorm.DB) *gorm.DB {
			return db.Order("exam_instance_sections.position ASC")
		}).
		Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
			return db.Order("exam_instance_questions.position ASC")
		}).
		Find(&instances).Error; err != nil {
		return nil, 0, err
	}

	return instances, total, nil
}

func (i *InstancePostgreSQL) CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Create(section).Error; err != nil {
		return fmt.Errorf("failed to create instance section: %w", err)
	}
	return nil
}

func (i *InstancePostgreSQL) GetSection(ctx context.Context, tx *gorm.DB, instanceID, sectionID uint) (*models.ExamInstanceSection, error) {
	db := i.getDB(tx)
	var section models.ExamInstanceSection
	if err := db.WithContext(ctx).
		Where("id = ? AND exam_instance_id = ?", sectionID, instanceID).
		First(&section).Error; err != nil {
		return nil, err
	}
	return &section, nil
}

func (i *InstancePostgreSQL) UpdateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Save(section).Error; err != nil {
		return fmt.Errorf("failed to update instance section: %w", err)
	}
	cache.InvalidateInstanceCache(ctx, i.cacheManager, section.ExamInstanceID, "")
	return nil
}

func (i *InstancePostgreSQL) CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create instance question: %w", err)
	}
	return nil
}

// GetQuestionWithSection loads the question together with its owning section so
// callers can verify the question belongs to the expected instance.
func (i *InstancePostgreSQL) GetQuestionWithSection(ctx context.Context, tx *gorm.DB, questionID uint) (*models.ExamInstanceQuestion, error) {
	db := i.getDB(tx)
	var question models.ExamInstanceQuestion
	if err := db.WithContext(ctx).
		Preload("Section").
		First(&question, questionID).Error; err != nil {
		return nil, err
	}
	return &question, nil
}

func (i *InstancePostgreSQL) UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error {
	db := i.getDB(tx)
	if err := db.WithContext(ctx).Save(question).Error; err != nil {
		return fmt.Errorf("failed to update instance question: %w", err)
	}
	if question.Section.ExamInstanceID != 0 {
		cache.InvalidateInstanceCache(ctx, i.cacheManager, question.Section.ExamInstanceID, "")
	}
	return nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (i *InstancePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return i.db
}
