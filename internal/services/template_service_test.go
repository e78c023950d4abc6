package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/edforge/exam-service/internal/events"
	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/validator"
)

func newTemplateServiceForTest(repo *fakeRepository, publisher events.EventPublisher) TemplateService {
	return NewTemplateService(repo, nil, testLogger(), validator.New(), publisher)
}

func seedQuestionTemplates(repo *fakeRepository, difficulties ...models.DifficultyLevel) {
	for i, d := range difficulties {
		id := uint(i + 1)
		repo.questions.store[id] = &models.QuestionTemplate{
			ID:         id,
			Text:       "question",
			Difficulty: d,
		}
	}
}

func createTemplateRequest() *CreateTemplateRequest {
	return &CreateTemplateRequest{
		Name:                  "Midterm",
		CourseID:              1,
		AvailabilityStartDate: time.Now().Add(-time.Hour),
		AvailabilityEndDate:   time.Now().Add(24 * time.Hour),
		Sections: []CreateSectionRequest{
			{
				Title:            "Section A",
				Position:         1,
				TimeLimitSeconds: 1800,
				Questions: []CreateSectionQuestionRequest{
					{QuestionTemplateID: 1, Position: 1},
					{QuestionTemplateID: 2, Position: 2},
				},
			},
		},
	}
}

func TestTemplateService_Create(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	seedQuestionTemplates(repo, models.DifficultyEasy, models.DifficultyMedium)
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	resp, err := service.Create(ctx, createTemplateRequest(), "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if resp.Version != 1 {
		t.Errorf("expected version 1, got %d", resp.Version)
	}
	if resp.IsPublished {
		t.Error("new template must start unpublished")
	}
	if len(resp.Sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(resp.Sections))
	}
	if len(resp.Sections[0].Questions) != 2 {
		t.Errorf("expected 2 questions, got %d", len(resp.Sections[0].Questions))
	}
	if !resp.CanEdit || !resp.CanPublish {
		t.Error("creator should be able to edit and publish an unpublished template")
	}
}

func TestTemplateService_Create_CourseNotFound(t *testing.T) {
	repo := newFakeRepository()
	service := newTemplateServiceForTest(repo, nil)

	_, err := service.Create(context.Background(), createTemplateRequest(), "teacher-1")
	if !errors.Is(err, ErrCourseNotFound) {
		t.Fatalf("expected ErrCourseNotFound, got %v", err)
	}
}

func TestTemplateService_Publish(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	seedQuestionTemplates(repo, models.DifficultyEasy, models.DifficultyMedium)
	publisher := events.NewMockEventPublisher(testLogger())
	service := newTemplateServiceForTest(repo, publisher)
	ctx := context.Background()

	created, err := service.Create(ctx, createTemplateRequest(), "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	published, err := service.Publish(ctx, created.ID, "teacher-1")
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if !published.IsPublished {
		t.Error("template should be published")
	}
	if published.CanEdit || published.CanPublish {
		t.Error("published template must not be editable")
	}

	got := publisher.GetPublishedEvents()
	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Type != events.EventTemplatePublished {
		t.Errorf("expected %s, got %s", events.EventTemplatePublished, got[0].Type)
	}
	if got[0].Source != "exam-service" {
		t.Errorf("expected source exam-service, got %s", got[0].Source)
	}
	if got[0].Version != "1.0" {
		t.Errorf("expected envelope version 1.0, got %s", got[0].Version)
	}
}

func TestTemplateService_Publish_InvalidTemplate(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	publisher := events.NewMockEventPublisher(testLogger())
	service := newTemplateServiceForTest(repo, publisher)
	ctx := context.Background()

	// No sections at all: publish-time validation must reject it
	req := createTemplateRequest()
	req.Sections = nil
	created, err := service.Create(ctx, req, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = service.Publish(ctx, created.ID, "teacher-1")

	var invalidErr *TemplateInvalidError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected TemplateInvalidError, got %v", err)
	}
	if len(invalidErr.Errors) == 0 {
		t.Error("expected violation list to be populated")
	}
	if len(publisher.GetPublishedEvents()) != 0 {
		t.Error("failed publish must not emit events")
	}

	// The template stays unpublished
	after, err := service.GetByID(ctx, created.ID, "teacher-1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if after.IsPublished {
		t.Error("failed publish must not flip is_published")
	}
}

func TestTemplateService_Validate_NoSideEffects(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	req := createTemplateRequest()
	req.Sections = nil
	created, err := service.Create(ctx, req, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	_, err = service.Validate(ctx, created.ID)
	var invalidErr *TemplateInvalidError
	if !errors.As(err, &invalidErr) {
		t.Fatalf("expected TemplateInvalidError, got %v", err)
	}
	if len(invalidErr.Errors) == 0 {
		t.Error("expected violations on the error")
	}

	after, _ := service.GetByID(ctx, created.ID, "teacher-1")
	if after.IsPublished {
		t.Error("Validate must not publish")
	}
}

func TestTemplateService_Validate_ValidTemplate(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	seedQuestionTemplates(repo, models.DifficultyEasy, models.DifficultyMedium)
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	created, err := service.Create(ctx, createTemplateRequest(), "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, err := service.Validate(ctx, created.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !resp.IsValid {
		t.Error("expected valid result")
	}
}

func TestTemplateService_CreateNewVersion(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	seedQuestionTemplates(repo, models.DifficultyEasy, models.DifficultyMedium)
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	source, err := service.Create(ctx, createTemplateRequest(), "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := service.Publish(ctx, source.ID, "teacher-1"); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	v2, err := service.CreateNewVersion(ctx, source.ID, "teacher-1")
	if err != nil {
		t.Fatalf("CreateNewVersion failed: %v", err)
	}

	if v2.ID == source.ID {
		t.Error("new version must be a distinct row")
	}
	if v2.Version != 2 {
		t.Errorf("expected version 2, got %d", v2.Version)
	}
	if v2.ParentTemplateID == nil || *v2.ParentTemplateID != source.ID {
		t.Error("new version must point at its source")
	}
	if v2.IsPublished {
		t.Error("new version must start unpublished")
	}
	if len(v2.Sections) != 1 || len(v2.Sections[0].Questions) != 2 {
		t.Errorf("expected deep-copied tree, got %d sections", len(v2.Sections))
	}

	// The copy is independent of the source
	if v2.Sections[0].ID == source.Sections[0].ID {
		t.Error("copied section must have its own identity")
	}

	// The source stays published and untouched
	sourceAfter, _ := service.GetByID(ctx, source.ID, "teacher-1")
	if !sourceAfter.IsPublished {
		t.Error("source must stay published")
	}
}

func TestTemplateService_GetHistory(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	seedQuestionTemplates(repo, models.DifficultyEasy, models.DifficultyMedium)
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	v1, err := service.Create(ctx, createTemplateRequest(), "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	v2, err := service.CreateNewVersion(ctx, v1.ID, "teacher-1")
	if err != nil {
		t.Fatalf("CreateNewVersion failed: %v", err)
	}
	v3, err := service.CreateNewVersion(ctx, v2.ID, "teacher-1")
	if err != nil {
		t.Fatalf("CreateNewVersion failed: %v", err)
	}

	// History resolves to the same chain from any member
	for _, startID := range []uint{v1.ID, v2.ID, v3.ID} {
		history, err := service.GetHistory(ctx, startID)
		if err != nil {
			t.Fatalf("GetHistory(%d) failed: %v", startID, err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 versions, got %d", len(history))
		}
		for i, template := range history {
			if template.Version != i+1 {
				t.Errorf("expected version %d at index %d, got %d", i+1, i, template.Version)
			}
		}
	}
}

func TestTemplateService_Update_Ownership(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	repo.users.roles["admin-1"] = models.RoleAdmin
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	req := createTemplateRequest()
	req.Sections = nil
	created, err := service.Create(ctx, req, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	name := "Renamed"
	_, err = service.Update(ctx, created.ID, &UpdateTemplateRequest{Name: &name}, "intruder")
	if !IsPermissionError(err) {
		t.Fatalf("expected permission error, got %v", err)
	}

	// Admins may update any template
	updated, err := service.Update(ctx, created.ID, &UpdateTemplateRequest{Name: &name}, "admin-1")
	if err != nil {
		t.Fatalf("admin update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Errorf("expected renamed template, got %q", updated.Name)
	}
}

func TestTemplateService_Delete(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	req := createTemplateRequest()
	req.Sections = nil
	created, err := service.Create(ctx, req, "teacher-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := service.Delete(ctx, created.ID, "teacher-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := service.GetByID(ctx, created.ID, "teacher-1"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound after delete, got %v", err)
	}
	if err := service.Delete(ctx, 999, "teacher-1"); !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound for unknown id, got %v", err)
	}
}

func TestTemplateService_List(t *testing.T) {
	repo := newFakeRepository()
	repo.courses.existing[1] = true
	service := newTemplateServiceForTest(repo, nil)
	ctx := context.Background()

	for _, name := range []string{"Algebra Midterm", "Geometry Final"} {
		req := createTemplateRequest()
		req.Name = name
		req.Sections = nil
		if _, err := service.Create(ctx, req, "teacher-1"); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}

	search := "algebra"
	resp, err := service.List(ctx, repositories.TemplateFilters{Search: &search, Limit: 20}, "teacher-1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 match, got %d", resp.Total)
	}
}
