package postgres

import (
	"strings"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/repositories"
)

// SharedHelpers contains query-building utilities shared by the PostgreSQL
// repositories: filter application, pagination and sort-column whitelisting.
type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// sortableColumns is the whitelist of columns callers may sort by. Anything
// outside the list silently falls back to created_at.
var sortableColumns = map[string]bool{
	"id":         true,
	"created_at": true,
	"updated_at": true,
	"name":       true,
	"version":    true,
	"status":     true,
	"start_date": true,
	"end_date":   true,
}

func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int) *gorm.DB {
	column := strings.ToLower(strings.TrimSpace(sortBy))
	if !sortableColumns[column] {
		column = "created_at"
	}

	order := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		order = "ASC"
	}

	query = query.Order(column + " " + order)

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	return query.Limit(limit).Offset(offset)
}

func (h *SharedHelpers) ApplyTemplateFilters(query *gorm.DB, filters repositories.TemplateFilters) *gorm.DB {
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	if filters.CreatedBy != nil {
		query = query.Where("created_by = ?", *filters.CreatedBy)
	}
	if filters.IsPublished != nil {
		query = query.Where("is_published = ?", *filters.IsPublished)
	}
	if filters.Search != nil && *filters.Search != "" {
		search := "%" + strings.TrimSpace(*filters.Search) + "%"
		query = query.Where("name ILIKE ?", search)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}

func (h *SharedHelpers) ApplyInstanceFilters(query *gorm.DB, filters repositories.InstanceFilters) *gorm.DB {
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.Type != nil {
		query = query.Where("type = ?", *filters.Type)
	}
	if filters.CourseID != nil {
		query = query.Where("course_id = ?", *filters.CourseID)
	}
	if filters.DateFrom != nil {
		query = query.Where("created_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("created_at <= ?", *filters.DateTo)
	}
	return query
}
