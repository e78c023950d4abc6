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

type TemplatePostgreSQL struct {
	db           *gorm.DB
	helpers      *SharedHelpers
	cacheManager *cache.CacheManager
}

func NewTemplatePostgreSQL(db *gorm.DB, redisClient *redis.Client) repositories.TemplateRepository {
	return &TemplatePostgreSQL{
		db:           db,
		helpers:      NewSharedHelpers(db),
		cacheManager: cache.NewCacheManager(redisClient),
	}
}

func (t *TemplatePostgreSQL) Create(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Create(template).Error; err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, template.ID)
	return nil
}

// GetByID retrieves a template by ID with caching.
func (t *TemplatePostgreSQL) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	db := t.getDB(tx)
	cacheKey := fmt.Sprintf("id:%d", id)
	var template models.ExamTemplate

	err := t.cacheManager.Template.CacheOrExecute(ctx, cacheKey, &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var dbTemplate models.ExamTemplate
		if err := db.WithContext(ctx).First(&dbTemplate, id).Error; err != nil {
			return nil, err
		}
		return &dbTemplate, nil
	})
	if err != nil {
		return nil, err
	}

	return &template, nil
}

// GetByIDWithTree loads the full section/question tree, the most expensive
// template read, behind the cache.
func (t *TemplatePostgreSQL) GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	db := t.getDB(tx)
	cacheKey := fmt.Sprintf("tree:%d", id)
	var template models.ExamTemplate

	err := t.cacheManager.Template.CacheOrExecute(ctx, cacheKey, &template, cache.TemplateCacheConfig.TTL, func() (interface{}, error) {
		var dbTemplate models.ExamTemplate
		if err := db.WithContext(ctx).
			Preload("Sections", func(db *gorm.DB) *gorm.DB {
				return db.Order("exam_template_sections.position ASC")
			}).
			Preload("Sections.Questions", func(db *gorm.DB) *gorm.DB {
				return db.Order("exam_template_section_questions.position ASC")
			}).
			Preload("Sections.Questions.QuestionTemplate").
			First(&dbTemplate, id).Error; err != nil {
			return nil, err
		}
		return &dbTemplate, nil
	})
	if err != nil {
		return nil, err
	}

	return &template, nil
}

func (t *TemplatePostgreSQL) Update(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Save(template).Error; err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, template.ID)
	return nil
}

func (t *TemplatePostgreSQL) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Delete(&models.ExamTemplate{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, id)
	return nil
}

func (t *TemplatePostgreSQL) List(ctx context.Context, tx *gorm.DB, filters repositories.TemplateFilters) ([]*models.ExamTemplate, int64, error) {
	db := t.getDB(tx)
	var templates []*models.ExamTemplate
	var total int64

	// apply filters first, pagination after counting
	query := db.WithContext(ctx).Model(&models.ExamTemplate{})
	query = t.helpers.ApplyTemplateFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = t.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset)

	if err := query.Find(&templates).Error; err != nil {
		return nil, 0, err
	}

	return templates, total, nil
}

// GetRoot walks parent_template_id pointers up to the template with no parent.
func (t *TemplatePostgreSQL) GetRoot(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	db := t.getDB(tx)

	current, err := t.GetByID(ctx, db, id)
	if err != nil {
		return nil, err
	}

	// Walk by id through the store, not by live object references. The visited
	// set guards against a corrupted lineage forming a cycle.
	visited := map[uint]bool{current.ID: true}
	for current.ParentTemplateID != nil {
		parentID := *current.ParentTemplateID
		if visited[parentID] {
			return nil, fmt.Errorf("template lineage contains a cycle at id %d", parentID)
		}
		visited[parentID] = true

		parent, err := t.GetByID(ctx, db, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve parent template %d: %w", parentID, err)
		}
		current = parent
	}

	return current, nil
}

func (t *TemplatePostgreSQL) GetByParentID(ctx context.Context, tx *gorm.DB, parentID uint) ([]*models.ExamTemplate, error) {
	db := t.getDB(tx)
	var templates []*models.ExamTemplate
	if err := db.WithContext(ctx).
		Where("parent_template_id = ?", parentID).
		Order("version ASC").
		Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to get templates by parent: %w", err)
	}
	return templates, nil
}

func (t *TemplatePostgreSQL) CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamTemplateSection) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Create(section).Error; err != nil {
		return fmt.Errorf("failed to create template section: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, section.ExamTemplateID)
	return nil
}

func (t *TemplatePostgreSQL) CreateSectionQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamTemplateSectionQuestion) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create section question: %w", err)
	}
	return nil
}

func (t *TemplatePostgreSQL) SetPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error {
	db := t.getDB(tx)
	if err := db.WithContext(ctx).
		Model(&models.ExamTemplate{}).
		Where("id = ?", id).
		Update("is_published", published).Error; err != nil {
		return fmt.Errorf("failed to update published flag: %w", err)
	}
	cache.InvalidateTemplateCache(ctx, t.cacheManager, id)
	return nil
}

// getDB returns the transaction DB if provided, otherwise returns the default DB
func (t *TemplatePostgreSQL) getDB(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return t.db
}
