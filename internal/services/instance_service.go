package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/events"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/validator"
)

type instanceService struct {
	repo           repositories.Repository
	db             *gorm.DB
	logger         *slog.Logger
	validator      *validator.Validator
	eventPublisher events.EventPublisher
}

func NewInstanceService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger, v *validator.Validator, publisher events.EventPublisher) InstanceService {
	return &instanceService{
		repo:           repo,
		db:             db,
		logger:         logger,
		validator:      v,
		eventPublisher: publisher,
	}
}

// ===== MATERIALIZATION =====

// Create materializes an instance tree from a published template: one instance
// row, one section row per template section, one question row per template
// question, all inside a single transaction. NotFound and unpublished checks
// run before the transaction opens so failures there consume no transaction
// resources.
func (s *instanceService) Create(ctx context.Context, req *CreateInstanceRequest, userID string) (*InstanceResponse, error) {
	s.logger.Info("Creating exam instance",
		"template_id", req.TemplateID,
		"type", req.Type,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	template, err := s.repo.Template().GetByIDWithTree(ctx, s.db, req.TemplateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	if !template.IsPublished {
		return nil, ErrTemplateNotPublished
	}

	instance := &models.ExamInstance{
		Type:           req.Type,
		Status:         models.InstanceScheduled,
		ExamTemplateID: template.ID,
		UserID:         userID,
		CourseID:       req.CourseID,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
	}

	err = s.repo.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Instance().Create(ctx, tx, instance); err != nil {
			return fmt.Errorf("failed to create instance: %w", err)
		}

		for _, templateSection := range template.Sections {
			section := &models.ExamInstanceSection{
				ExamInstanceID:    instance.ID,
				TemplateSectionID: templateSection.ID,
				Status:            models.SectionNotStarted,
				Position:          templateSection.Position,
				TimeLimitSeconds:  templateSection.TimeLimitSeconds,
			}
			if err := s.repo.Instance().CreateSection(ctx, tx, section); err != nil {
				return fmt.Errorf("failed to create instance section: %w", err)
			}

			for _, templateQuestion := range templateSection.Questions {
				question := &models.ExamInstanceQuestion{
					SectionID:                 section.ID,
					TemplateSectionQuestionID: templateQuestion.ID,
					Status:                    models.QuestionUnanswered,
					Position:                  templateQuestion.Position,
				}
				if err := s.repo.Instance().CreateQuestion(ctx, tx, question); err != nil {
					return fmt.Errorf("failed to create instance question: %w", err)
				}
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publishEvent(ctx, events.EventInstanceCreated, map[string]any{
		"instance_id": instance.ID,
		"template_id": template.ID,
		"user_id":     userID,
		"type":        req.Type,
	})

	s.logger.Info("Exam instance created", "instance_id", instance.ID, "user_id", userID)

	return s.GetByID(ctx, instance.ID, userID)
}

// ===== READS =====

func (s *instanceService) GetByID(ctx context.Context, id uint, userID string) (*InstanceResponse, error) {
	instance, err := s.repo.Instance().GetByIDWithTree(ctx, s.db, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.assertOwnership(instance, userID, "view"); err != nil {
		return nil, err
	}

	return s.buildInstanceResponse(instance), nil
}

func (s *instanceService) GetByUser(ctx context.Context, userID string, filters repositories.InstanceFilters) (*InstanceListResponse, error) {
	instances, total, err := s.repo.Instance().GetByUser(ctx, s.db, userID, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	responses := make([]*InstanceResponse, 0, len(instances))
	for _, instance := range instances {
		responses = append(responses, s.buildInstanceResponse(instance))
	}

	page := 1
	if filters.Limit > 0 {
		page = (filters.Offset / filters.Limit) + 1
	}

	return &InstanceListResponse{
		Instances: responses,
		Total:     total,
		Page:      page,
		Size:      len(responses),
	}, nil
}

// ===== PROGRESS STATE MACHINE =====

// Start moves a scheduled instance to in_progress. The instance must be inside
// its availability window.
func (s *instanceService) Start(ctx context.Context, instanceID uint, userID string) (*InstanceResponse, error) {
	s.logger.Info("Starting exam instance", "instance_id", instanceID, "user_id", userID)

	instance, err := s.loadOwnedInstance(ctx, instanceID, userID, "start")
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceScheduled {
		return nil, ErrInstanceNotScheduled
	}

	now := time.Now()
	if now.Before(instance.StartDate) || now.After(instance.EndDate) {
		return nil, ErrInstanceNotAvailable
	}

	instance.Status = models.InstanceInProgress
	instance.StartedAt = &now

	if err := s.repo.Instance().Update(ctx, s.db, instance); err != nil {
		return nil, fmt.Errorf("failed to start instance: %w", err)
	}

	s.publishEvent(ctx, events.EventInstanceStarted, map[string]any{
		"instance_id": instanceID,
		"user_id":     userID,
	})

	return s.GetByID(ctx, instanceID, userID)
}

// SubmitAnswer records an opaque answer payload on a question of an in-progress
// instance. Scoring is deferred to an external grading policy.
func (s *instanceService) SubmitAnswer(ctx context.Context, instanceID uint, req *SubmitAnswerRequest, userID string) (*models.ExamInstanceQuestion, error) {
	s.logger.Info("Submitting answer",
		"instance_id", instanceID,
		"question_id", req.QuestionID,
		"user_id", userID)

	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	instance, err := s.loadOwnedInstance(ctx, instanceID, userID, "submit_answer")
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceInProgress {
		return nil, ErrInstanceNotInProgress
	}

	question, err := s.loadInstanceQuestion(ctx, instanceID, req.QuestionID)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req.Answer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answer: %w", err)
	}

	now := time.Now()

	// The first answer in a section starts its clock.
	if question.Section.StartedAt == nil {
		section := question.Section
		section.StartedAt = &now
		section.Status = models.SectionInProgress
		if err := s.repo.Instance().UpdateSection(ctx, s.db, &section); err != nil {
			return nil, fmt.Errorf("failed to start section: %w", err)
		}
		question.Section = section
	}

	question.StudentAnswer = payload
	question.Status = models.QuestionAnswered
	question.AnsweredAt = &now

	if err := s.repo.Instance().UpdateQuestion(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}

	return question, nil
}

// CompleteSection marks a section completed. It deliberately does not require
// the parent instance to be in progress; only already-completed sections are
// rejected.
func (s *instanceService) CompleteSection(ctx context.Context, instanceID, sectionID uint, userID string) (*models.ExamInstanceSection, error) {
	s.logger.Info("Completing section",
		"instance_id", instanceID,
		"section_id", sectionID,
		"user_id", userID)

	if _, err := s.loadOwnedInstance(ctx, instanceID, userID, "complete_section"); err != nil {
		return nil, err
	}

	section, err := s.repo.Instance().GetSection(ctx, s.db, instanceID, sectionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrSectionNotFound
		}
		return nil, fmt.Errorf("failed to get section: %w", err)
	}

	if section.Status == models.SectionCompleted {
		return nil, ErrSectionAlreadyCompleted
	}

	now := time.Now()
	section.Status = models.SectionCompleted
	section.CompletedAt = &now
	if section.StartedAt != nil {
		section.TimeSpentSeconds += int(now.Sub(*section.StartedAt).Seconds())
	}

	if err := s.repo.Instance().UpdateSection(ctx, s.db, section); err != nil {
		return nil, fmt.Errorf("failed to complete section: %w", err)
	}

	return section, nil
}

// Complete marks an in-progress instance completed. It does not verify that
// every section or question is finished first.
func (s *instanceService) Complete(ctx context.Context, instanceID uint, userID string) (*InstanceResponse, error) {
	s.logger.Info("Completing exam instance", "instance_id", instanceID, "user_id", userID)

	instance, err := s.loadOwnedInstance(ctx, instanceID, userID, "complete")
	if err != nil {
		return nil, err
	}

	if instance.Status != models.InstanceInProgress {
		return nil, ErrInstanceNotInProgress
	}

	now := time.Now()
	instance.Status = models.InstanceCompleted
	instance.CompletedAt = &now

	if err := s.repo.Instance().Update(ctx, s.db, instance); err != nil {
		return nil, fmt.Errorf("failed to complete instance: %w", err)
	}

	s.publishEvent(ctx, events.EventInstanceCompleted, map[string]any{
		"instance_id": instanceID,
		"user_id":     userID,
	})

	s.logger.Info("Exam instance completed", "instance_id", instanceID, "user_id", userID)

	return s.GetByID(ctx, instanceID, userID)
}

// ===== NOTES =====

// AddNote appends a free-form note to the instance's note list. No status
// precondition.
func (s *instanceService) AddNote(ctx context.Context, instanceID uint, req *AddNoteRequest, userID string) (*InstanceResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	instance, err := s.loadOwnedInstance(ctx, instanceID, userID, "add_note")
	if err != nil {
		return nil, err
	}

	instance.Notes = append(instance.Notes, models.InstanceNote{
		SectionID: req.SectionID,
		Note:      req.Note,
		CreatedAt: time.Now(),
	})

	if err := s.repo.Instance().Update(ctx, s.db, instance); err != nil {
		return nil, fmt.Errorf("failed to save note: %w", err)
	}

	return s.GetByID(ctx, instanceID, userID)
}

func (s *instanceService) AddQuestionNote(ctx context.Context, instanceID, questionID uint, req *AddQuestionNoteRequest, userID string) (*models.ExamInstanceQuestion, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if _, err := s.loadOwnedInstance(ctx, instanceID, userID, "add_question_note"); err != nil {
		return nil, err
	}

	question, err := s.loadInstanceQuestion(ctx, instanceID, questionID)
	if err != nil {
		return nil, err
	}

	question.Notes = append(question.Notes, models.QuestionNote{
		Note:      req.Note,
		CreatedAt: time.Now(),
	})

	if err := s.repo.Instance().UpdateQuestion(ctx, s.db, question); err != nil {
		return nil, fmt.Errorf("failed to save question note: %w", err)
	}

	return question, nil
}

func (s *instanceService) GetQuestionNotes(ctx context.Context, instanceID, questionID uint, userID string) ([]models.QuestionNote, error) {
	if _, err := s.loadOwnedInstance(ctx, instanceID, userID, "get_question_notes"); err != nil {
		return nil, err
	}

	question, err := s.loadInstanceQuestion(ctx, instanceID, questionID)
	if err != nil {
		return nil, err
	}

	return question.Notes, nil
}
