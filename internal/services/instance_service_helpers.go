package services

import (
	"context"
	"fmt"
	"time"

	"github.com/edforge/exam-service/internal/events"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

// assertOwnership is the single ownership guard every mutating operation runs
// before any state check.
func (s *instanceService) assertOwnership(instance *models.ExamInstance, userID, action string) error {
	if instance.UserID != userID {
		return NewPermissionError(userID, instance.ID, "instance", action, "not authorized to access this exam")
	}
	return nil
}

// loadOwnedInstance loads the instance fresh and enforces ownership before
// anything else. Every state-machine operation starts here.
func (s *instanceService) loadOwnedInstance(ctx context.Context, instanceID uint, userID, action string) (*models.ExamInstance, error) {
	instance, err := s.repo.Instance().GetByID(ctx, s.db, instanceID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	if err := s.assertOwnership(instance, userID, action); err != nil {
		return nil, err
	}

	return instance, nil
}

// loadInstanceQuestion loads the question with its section and verifies the
// section belongs to the expected instance. A question reachable by id but
// hanging off another instance is a BadRequest, not a NotFound.
func (s *instanceService) loadInstanceQuestion(ctx context.Context, instanceID, questionID uint) (*models.ExamInstanceQuestion, error) {
	question, err := s.repo.Instance().GetQuestionWithSection(ctx, s.db, questionID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("failed to get question: %w", err)
	}

	if question.Section.ExamInstanceID != instanceID {
		return nil, ErrQuestionWrongInstance
	}

	return question, nil
}

func (s *instanceService) buildInstanceResponse(instance *models.ExamInstance) *InstanceResponse {
	now := time.Now()
	canStart := instance.Status == models.InstanceScheduled &&
		!now.Before(instance.StartDate) && !now.After(instance.EndDate)

	return &InstanceResponse{
		ExamInstance: instance,
		CanStart:     canStart,
		CanComplete:  instance.Status == models.InstanceInProgress,
	}
}

func (s *instanceService) publishEvent(ctx context.Context, eventType string, data map[string]any) {
	if s.eventPublisher == nil {
		return
	}
	event := events.NewEvent(eventType, data)
	if err := s.eventPublisher.Publish(ctx, "exam-events", event); err != nil {
		s.logger.Error("Failed to publish event", "event_type", eventType, "error", err)
	}
}
