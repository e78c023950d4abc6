package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/events"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/validator"
)

type templateService struct {
	repo           repositories.Repository
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewTemplateService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) TemplateService {
	return &templateService{
		repo:           repo,
		db:             db,
		logger:         logger,
		validator:      v,
		eventPublisher: publisher,
	}
}

// ===== CORE CRUD OPERATIONS =====

func (s *templateService) Create(ctx context.Context, req *CreateTemplateRequest, creatorID string) (*TemplateResponse, error) {
	s.logger.Info("Creating exam template", "name", req.Name, "course_id", req.CourseID, "creator_id", creatorID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	exists, err := s.repo.Course().ExistsByID(ctx, s.db, req.CourseID)
	if err != nil {
		return nil, fmt.Errorf("failed to check course: %w", err)
	}
	if !exists {
		return nil, ErrCourseNotFound
	}

	exclusivity := req.Exclusivity
	if exclusivity == "" {
		exclusivity = models.ExclusivityBoth
	}

	template := &models.ExamTemplate{
		Name:                  req.Name,
		Description:           req.Description,
		CourseID:              req.CourseID,
		CreatedBy:             creatorID,
		AvailabilityStartDate: req.AvailabilityStartDate,
		AvailabilityEndDate:   req.AvailabilityEndDate,
		Version:               1,
		Exclusivity:           exclusivity,
		Tag:                   req.Tag,
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Template().Create(ctx, tx, template); err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}

		for _, sectionReq := range req.Sections {
			section := &models.ExamTemplateSection{
				ExamTemplateID:         template.ID,
				Title:                  sectionReq.Title,
				Instructions:           sectionReq.Instructions,
				Position:               sectionReq.Position,
				TimeLimitSeconds:       sectionReq.TimeLimitSeconds,
				DifficultyDistribution: sectionReq.DifficultyDistribution,
				TopicDistribution:      sectionReq.TopicDistribution,
			}
			if err := s.repo.Template().CreateSection(ctx, tx, section); err != nil {
				return fmt.Errorf("failed to create section: %w", err)
			}

			for _, questionReq := range sectionReq.Questions {
				question := &models.ExamTemplateSectionQuestion{
					SectionID:          section.ID,
					QuestionTemplateID: questionReq.QuestionTemplateID,
					Position:           questionReq.Position,
				}
				if err := s.repo.Template().CreateSectionQuestion(ctx, tx, question); err != nil {
					return fmt.Errorf("failed to create section question: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Exam template created", "template_id", template.ID, "creator_id", creatorID)

	return s.GetByID(ctx, template.ID, creatorID)
}

func (s *templateService) GetByID(ctx context.Context, id uint, userID string) (*TemplateResponse, error) {
	template, err := s.repo.Template().GetByIDWithTree(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return s.buildTemplateResponse(template, userID), nil
}

func (s *templateService) Update(ctx context.Context, id uint, req *UpdateTemplateRequest, userID string) (*TemplateResponse, error) {
	s.logger.Info("Updating exam template", "template_id", id, "user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	template, err := s.repo.Template().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.assertTemplateOwnership(ctx, template, userID, "update"); err != nil {
		return nil, err
	}

	if req.Name != nil {
		template.Name = *req.Name
	}
	if req.Description != nil {
		template.Description = req.Description
	}
	if req.AvailabilityStartDate != nil {
		template.AvailabilityStartDate = *req.AvailabilityStartDate
	}
	if req.AvailabilityEndDate != nil {
		template.AvailabilityEndDate = *req.AvailabilityEndDate
	}
	if req.Exclusivity != nil {
		template.Exclusivity = *req.Exclusivity
	}
	if req.Tag != nil {
		template.Tag = *req.Tag
	}

	if err := s.repo.Template().Update(ctx, s.db, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return s.GetByID(ctx, id, userID)
}

func (s *templateService) Delete(ctx context.Context, id uint, userID string) error {
	s.logger.Info("Deleting exam template", "template_id", id, "user_id", userID)

	template, err := s.repo.Template().GetByID(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return ErrTemplateNotFound
		}
		return fmt.Errorf("failed to get template: %w", err)
	}

	if err := s.assertTemplateOwnership(ctx, template, userID, "delete"); err != nil {
		return err
	}

	if err := s.repo.Template().Delete(ctx, s.db, id); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

func (s *templateService) List(ctx context.Context, filters repositories.TemplateFilters, userID string) (*TemplateListResponse, error) {
	templates, total, err := s.repo.Template().List(ctx, s.db, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	responses := make([]*TemplateResponse, 0, len(templates))
	for _, template := range templates {
		responses = append(responses, s.buildTemplateResponse(template, userID))
	}

	page := 1
	if filters.Limit > 0 {
		page = (filters.Offset / filters.Limit) + 1
	}

	return &TemplateListResponse{
		Templates: responses,
		Total:     total,
		Page:      page,
		Size:      len(responses),
	}, nil
}

// ===== VERSIONING AND PUBLISHING =====

// CreateNewVersion deep-copies the template tree into a fresh unpublished row
// with version+1 and parent_template_id pointing at the source.
func (s *templateService) CreateNewVersion(ctx context.Context, templateID uint, userID string) (*TemplateResponse, error) {
	s.logger.Info("Creating new template version", "template_id", templateID, "user_id", userID)

	source, err := s.repo.Template().GetByIDWithTree(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get source template: %w", err)
	}

	newVersion := &models.ExamTemplate{
		Name:                  source.Name,
		Description:           source.Description,
		CourseID:              source.CourseID,
		CreatedBy:             userID,
		AvailabilityStartDate: source.AvailabilityStartDate,
		AvailabilityEndDate:   source.AvailabilityEndDate,
		Version:               source.Version + 1,
		ParentTemplateID:      &source.ID,
		IsPublished:           false,
		Exclusivity:           source.Exclusivity,
		Tag:                   source.Tag,
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Template().Create(ctx, tx, newVersion); err != nil {
			return fmt.Errorf("failed to create version: %w", err)
		}

		for _, sourceSection := range source.Sections {
			section := &models.ExamTemplateSection{
				ExamTemplateID:         newVersion.ID,
				Title:                  sourceSection.Title,
				Instructions:           sourceSection.Instructions,
				Position:               sourceSection.Position,
				TimeLimitSeconds:       sourceSection.TimeLimitSeconds,
				DifficultyDistribution: sourceSection.DifficultyDistribution,
				TopicDistribution:      sourceSection.TopicDistribution,
			}
			if err := s.repo.Template().CreateSection(ctx, tx, section); err != nil {
				return fmt.Errorf("failed to copy section %d: %w", sourceSection.ID, err)
			}

			for _, sourceQuestion := range sourceSection.Questions {
				question := &models.ExamTemplateSectionQuestion{
					SectionID:          section.ID,
					QuestionTemplateID: sourceQuestion.QuestionTemplateID,
					Position:           sourceQuestion.Position,
				}
				if err := s.repo.Template().CreateSectionQuestion(ctx, tx, question); err != nil {
					return fmt.Errorf("failed to copy question %d: %w", sourceQuestion.ID, err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Template version created",
		"template_id", newVersion.ID,
		"source_id", source.ID,
		"version", newVersion.Version)

	return s.GetByID(ctx, newVersion.ID, userID)
}

// Publish validates the full template tree and flips is_published when every
// rule passes. Validation failures carry the complete violation list.
func (s *templateService) Publish(ctx context.Context, templateID uint, userID string) (*TemplateResponse, error) {
	s.logger.Info("Publishing exam template", "template_id", templateID, "user_id", userID)

	template, err := s.repo.Template().GetByIDWithTree(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	result := validator.ValidateTemplate(template, true)
	if !result.IsValid {
		s.logger.Warn("Template failed publish validation",
			"template_id", templateID,
			"error_count", len(result.Errors))
		return nil, NewTemplateInvalidError(templateID, result.Errors)
	}

	if err := s.repo.Template().SetPublished(ctx, s.db, templateID, true); err != nil {
		return nil, fmt.Errorf("failed to publish template: %w", err)
	}

	s.publishEvent(ctx, events.EventTemplatePublished, map[string]any{
		"template_id": templateID,
		"version":     template.Version,
		"course_id":   template.CourseID,
	})

	s.logger.Info("Exam template published", "template_id", templateID)

	return s.GetByID(ctx, templateID, userID)
}

// GetHistory resolves the root of the version chain and returns the full
// lineage ordered by version.
func (s *templateService) GetHistory(ctx context.Context, templateID uint) ([]*models.ExamTemplate, error) {
	root, err := s.repo.Template().GetRoot(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to resolve version root: %w", err)
	}

	history := []*models.ExamTemplate{root}

	// Collect descendants breadth-first through the parent-id index.
	frontier := []uint{root.ID}
	for len(frontier) > 0 {
		parentID := frontier[0]
		frontier = frontier[1:]

		children, err := s.repo.Template().GetByParentID(ctx, s.db, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load version children: %w", err)
		}
		for _, child := range children {
			history = append(history, child)
			frontier = append(frontier, child.ID)
		}
	}

	sort.Slice(history, func(i, j int) bool {
		return history[i].Version < history[j].Version
	})

	return history, nil
}

// Validate runs the validation engine without mutating anything. An invalid
// template fails with the same TemplateInvalidError that Publish surfaces.
func (s *templateService) Validate(ctx context.Context, templateID uint) (*ValidateTemplateResponse, error) {
	template, err := s.repo.Template().GetByIDWithTree(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	result := validator.ValidateTemplate(template, true)
	if !result.IsValid {
		return nil, NewTemplateInvalidError(templateID, result.Errors)
	}

	return &ValidateTemplateResponse{IsValid: true}, nil
}

// ===== HELPERS =====

func (s *templateService) assertTemplateOwnership(ctx context.Context, template *models.ExamTemplate, userID, action string) error {
	if template.CreatedBy == userID {
		return nil
	}

	// Admins may act on any template.
	isAdmin, err := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
	if err == nil && isAdmin {
		return nil
	}

	return NewPermissionError(userID, template.ID, "template", action, "not owned by user")
}

func (s *templateService) buildTemplateResponse(template *models.ExamTemplate, userID string) *TemplateResponse {
	isOwner := template.CreatedBy == userID
	return &TemplateResponse{
		ExamTemplate: template,
		CanEdit:      isOwner && !template.IsPublished,
		CanPublish:   isOwner && !template.IsPublished,
	}
}

func (s *templateService) publishEvent(ctx context.Context, eventType string, data map[string]any) {
	if s.eventPublisher == nil {
		return
	}
	event := events.NewEvent(eventType, data)
	if err := s.eventPublisher.Publish(ctx, "exam-events", event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", eventType, "error", err)
	}
}
