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

func newInstanceServiceForTest(repo *fakeRepository, publisher events.EventPublisher) InstanceService {
	return NewInstanceService(repo, nil, testLogger(), validator.New(), publisher)
}

// seedPublishedTemplate stores a published two-question template directly in
// the fake repository and returns it.
func seedPublishedTemplate(repo *fakeRepository) *models.ExamTemplate {
	template := &models.ExamTemplate{
		Name:                  "Midterm",
		CourseID:              1,
		CreatedBy:             "teacher-1",
		AvailabilityStartDate: time.Now().Add(-time.Hour),
		AvailabilityEndDate:   time.Now().Add(24 * time.Hour),
		Version:               1,
		IsPublished:           true,
	}
	repo.templates.Create(context.Background(), nil, template)

	section := &models.ExamTemplateSection{
		ExamTemplateID:   template.ID,
		Title:            "Section A",
		Position:         1,
		TimeLimitSeconds: 1800,
	}
	repo.templates.CreateSection(context.Background(), nil, section)
	for pos := 1; pos <= 2; pos++ {
		repo.templates.CreateSectionQuestion(context.Background(), nil, &models.ExamTemplateSectionQuestion{
			SectionID:          section.ID,
			QuestionTemplateID: uint(pos),
			Position:           pos,
		})
	}
	return template
}

func createInstanceRequest(templateID uint) *CreateInstanceRequest {
	return &CreateInstanceRequest{
		TemplateID: templateID,
		Type:       models.InstanceExam,
		CourseID:   1,
		StartDate:  time.Now().Add(-time.Hour),
		EndDate:    time.Now().Add(time.Hour),
	}
}

// setupInstance materializes an instance for student-1 and returns the service,
// repository, publisher and instance.
func setupInstance(t *testing.T) (InstanceService, *fakeRepository, *events.MockEventPublisher, *InstanceResponse) {
	t.Helper()
	repo := newFakeRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	service := newInstanceServiceForTest(repo, publisher)
	template := seedPublishedTemplate(repo)

	instance, err := service.Create(context.Background(), createInstanceRequest(template.ID), "student-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	publisher.ClearEvents()
	return service, repo, publisher, instance
}

func TestInstanceService_Create(t *testing.T) {
	repo := newFakeRepository()
	publisher := events.NewMockEventPublisher(testLogger())
	service := newInstanceServiceForTest(repo, publisher)
	template := seedPublishedTemplate(repo)
	ctx := context.Background()

	resp, err := service.Create(ctx, createInstanceRequest(template.ID), "student-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if resp.Status != models.InstanceScheduled {
		t.Errorf("expected scheduled status, got %s", resp.Status)
	}
	if len(resp.Sections) != 1 {
		t.Fatalf("expected 1 materialized section, got %d", len(resp.Sections))
	}
	section := resp.Sections[0]
	if section.Status != models.SectionNotStarted {
		t.Errorf("expected not_started section, got %s", section.Status)
	}
	if section.TimeLimitSeconds != 1800 {
		t.Errorf("expected time limit copied from template, got %d", section.TimeLimitSeconds)
	}
	if len(section.Questions) != 2 {
		t.Fatalf("expected 2 materialized questions, got %d", len(section.Questions))
	}
	for _, q := range section.Questions {
		if q.Status != models.QuestionUnanswered {
			t.Errorf("expected unanswered question, got %s", q.Status)
		}
	}
	if !resp.CanStart {
		t.Error("instance inside its window should be startable")
	}

	got := publisher.GetPublishedEvents()
	if len(got) != 1 || got[0].Type != events.EventInstanceCreated {
		t.Errorf("expected one %s event, got %v", events.EventInstanceCreated, got)
	}
}

func TestInstanceService_Create_TemplateGuards(t *testing.T) {
	repo := newFakeRepository()
	service := newInstanceServiceForTest(repo, nil)
	ctx := context.Background()

	_, err := service.Create(ctx, createInstanceRequest(42), "student-1")
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}

	template := seedPublishedTemplate(repo)
	template.IsPublished = false

	_, err = service.Create(ctx, createInstanceRequest(template.ID), "student-1")
	if !errors.Is(err, ErrTemplateNotPublished) {
		t.Fatalf("expected ErrTemplateNotPublished, got %v", err)
	}
}

func TestInstanceService_Start(t *testing.T) {
	service, _, publisher, instance := setupInstance(t)
	ctx := context.Background()

	started, err := service.Start(ctx, instance.ID, "student-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if started.Status != models.InstanceInProgress {
		t.Errorf("expected in_progress, got %s", started.Status)
	}
	if started.StartedAt == nil {
		t.Error("StartedAt must be set")
	}
	if !started.CanComplete {
		t.Error("in-progress instance should be completable")
	}

	got := publisher.GetPublishedEvents()
	if len(got) != 1 || got[0].Type != events.EventInstanceStarted {
		t.Errorf("expected one %s event, got %v", events.EventInstanceStarted, got)
	}

	// Starting twice is rejected
	_, err = service.Start(ctx, instance.ID, "student-1")
	if !errors.Is(err, ErrInstanceNotScheduled) {
		t.Fatalf("expected ErrInstanceNotScheduled on second start, got %v", err)
	}
}

func TestInstanceService_Start_OutsideWindow(t *testing.T) {
	service, repo, _, instance := setupInstance(t)
	ctx := context.Background()

	stored := repo.instances.instances[instance.ID]
	stored.StartDate = time.Now().Add(time.Hour)
	stored.EndDate = time.Now().Add(2 * time.Hour)

	_, err := service.Start(ctx, instance.ID, "student-1")
	if !errors.Is(err, ErrInstanceNotAvailable) {
		t.Fatalf("expected ErrInstanceNotAvailable before window, got %v", err)
	}

	stored.StartDate = time.Now().Add(-2 * time.Hour)
	stored.EndDate = time.Now().Add(-time.Hour)

	_, err = service.Start(ctx, instance.ID, "student-1")
	if !errors.Is(err, ErrInstanceNotAvailable) {
		t.Fatalf("expected ErrInstanceNotAvailable after window, got %v", err)
	}
}

func TestInstanceService_Ownership(t *testing.T) {
	service, _, _, instance := setupInstance(t)
	ctx := context.Background()

	if _, err := service.Start(ctx, instance.ID, "someone-else"); !IsPermissionError(err) {
		t.Fatalf("expected permission error for non-owner, got %v", err)
	}
	if _, err := service.GetByID(ctx, instance.ID, "someone-else"); !IsPermissionError(err) {
		t.Fatalf("expected permission error on read, got %v", err)
	}
}

func TestInstanceService_SubmitAnswer(t *testing.T) {
	service, _, _, instance := setupInstance(t)
	ctx := context.Background()
	questionID := instance.Sections[0].Questions[0].ID

	// Answering before the exam starts is rejected
	_, err := service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: questionID, Answer: "B"}, "student-1")
	if !errors.Is(err, ErrInstanceNotInProgress) {
		t.Fatalf("expected ErrInstanceNotInProgress, got %v", err)
	}

	if _, err := service.Start(ctx, instance.ID, "student-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	question, err := service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: questionID, Answer: "B"}, "student-1")
	if err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}
	if question.Status != models.QuestionAnswered {
		t.Errorf("expected answered, got %s", question.Status)
	}
	if question.AnsweredAt == nil {
		t.Error("AnsweredAt must be set")
	}
	if string(question.StudentAnswer) != `"B"` {
		t.Errorf("expected stored answer %q, got %s", `"B"`, question.StudentAnswer)
	}

	// Resubmitting replaces the answer
	question, err = service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: questionID, Answer: "C"}, "student-1")
	if err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if string(question.StudentAnswer) != `"C"` {
		t.Errorf("expected replaced answer, got %s", question.StudentAnswer)
	}
}

func TestInstanceService_SubmitAnswer_StartsSection(t *testing.T) {
	service, repo, _, instance := setupInstance(t)
	ctx := context.Background()
	sectionID := instance.Sections[0].ID
	questionID := instance.Sections[0].Questions[0].ID

	if _, err := service.Start(ctx, instance.ID, "student-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: questionID, Answer: "B"}, "student-1"); err != nil {
		t.Fatalf("SubmitAnswer failed: %v", err)
	}

	section := repo.instances.sections[sectionID]
	if section.Status != models.SectionInProgress {
		t.Errorf("expected section in_progress after first answer, got %s", section.Status)
	}
	if section.StartedAt == nil {
		t.Fatal("expected StartedAt set by the first answer")
	}
	firstStart := *section.StartedAt

	// A second answer does not restart the clock
	if _, err := service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: questionID, Answer: "C"}, "student-1"); err != nil {
		t.Fatalf("resubmit failed: %v", err)
	}
	if !repo.instances.sections[sectionID].StartedAt.Equal(firstStart) {
		t.Error("StartedAt must not change on later answers")
	}

	// Completing the section accumulates time from the recorded start
	completed, err := service.CompleteSection(ctx, instance.ID, sectionID, "student-1")
	if err != nil {
		t.Fatalf("CompleteSection failed: %v", err)
	}
	if completed.TimeSpentSeconds < 0 {
		t.Errorf("unexpected negative time spent: %d", completed.TimeSpentSeconds)
	}
}

func TestInstanceService_SubmitAnswer_WrongInstance(t *testing.T) {
	service, _, _, instance := setupInstance(t)
	ctx := context.Background()

	// A second instance owned by the same student
	other, err := service.Create(ctx, createInstanceRequest(instance.ExamTemplateID), "student-1")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := service.Start(ctx, instance.ID, "student-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	foreignQuestion := other.Sections[0].Questions[0].ID
	_, err = service.SubmitAnswer(ctx, instance.ID, &SubmitAnswerRequest{QuestionID: foreignQuestion, Answer: "B"}, "student-1")
	if !errors.Is(err, ErrQuestionWrongInstance) {
		t.Fatalf("expected ErrQuestionWrongInstance, got %v", err)
	}
	if !IsBadRequest(err) {
		t.Error("cross-instance question must map to a bad request, not not-found")
	}
}

func TestInstanceService_CompleteSection(t *testing.T) {
	service, _, _, instance := setupInstance(t)
	ctx := context.Background()
	sectionID := instance.Sections[0].ID

	// Completing a section does not require the instance to be in progress
	section, err := service.CompleteSection(ctx, instance.ID, sectionID, "student-1")
	if err != nil {
		t.Fatalf("CompleteSection failed: %v", err)
	}
	if section.Status != models.SectionCompleted {
		t.Errorf("expected completed section, got %s", section.Status)
	}
	if section.CompletedAt == nil {
		t.Error("CompletedAt must be set")
	}

	// A second completion is rejected
	_, err = service.CompleteSection(ctx, instance.ID, sectionID, "student-1")
	if !errors.Is(err, ErrSectionAlreadyCompleted) {
		t.Fatalf("expected ErrSectionAlreadyCompleted, got %v", err)
	}

	// Unknown section
	_, err = service.CompleteSection(ctx, instance.ID, 999, "student-1")
	if !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestInstanceService_CompleteSection_TimeSpent(t *testing.T) {
	service, repo, _, instance := setupInstance(t)
	ctx := context.Background()
	sectionID := instance.Sections[0].ID

	startedAt := time.Now().Add(-90 * time.Second)
	stored := repo.instances.sections[sectionID]
	stored.StartedAt = &startedAt
	stored.TimeSpentSeconds = 10

	section, err := service.CompleteSection(ctx, instance.ID, sectionID, "student-1")
	if err != nil {
		t.Fatalf("CompleteSection failed: %v", err)
	}
	if section.TimeSpentSeconds < 100 {
		t.Errorf("expected accumulated time spent >= 100s, got %d", section.TimeSpentSeconds)
	}
}

func TestInstanceService_Complete(t *testing.T) {
	service, _, publisher, instance := setupInstance(t)
	ctx := context.Background()

	// Completing before starting is rejected
	_, err := service.Complete(ctx, instance.ID, "student-1")
	if !errors.Is(err, ErrInstanceNotInProgress) {
		t.Fatalf("expected ErrInstanceNotInProgress, got %v", err)
	}

	if _, err := service.Start(ctx, instance.ID, "student-1"); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	publisher.ClearEvents()

	// No section has been completed; Complete still succeeds
	completed, err := service.Complete(ctx, instance.ID, "student-1")
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if completed.Status != models.InstanceCompleted {
		t.Errorf("expected completed, got %s", completed.Status)
	}
	if completed.CompletedAt == nil {
		t.Error("CompletedAt must be set")
	}

	got := publisher.GetPublishedEvents()
	if len(got) != 1 || got[0].Type != events.EventInstanceCompleted {
		t.Errorf("expected one %s event, got %v", events.EventInstanceCompleted, got)
	}

	// A completed instance cannot be completed again
	_, err = service.Complete(ctx, instance.ID, "student-1")
	if !errors.Is(err, ErrInstanceNotInProgress) {
		t.Fatalf("expected ErrInstanceNotInProgress after completion, got %v", err)
	}
}

func TestInstanceService_Notes(t *testing.T) {
	service, _, _, instance := setupInstance(t)
	ctx := context.Background()
	sectionID := instance.Sections[0].ID
	questionID := instance.Sections[0].Questions[0].ID

	// Instance notes carry no status precondition
	resp, err := service.AddNote(ctx, instance.ID, &AddNoteRequest{SectionID: sectionID, Note: "revisit later"}, "student-1")
	if err != nil {
		t.Fatalf("AddNote failed: %v", err)
	}
	if len(resp.Notes) != 1 || resp.Notes[0].Note != "revisit later" {
		t.Errorf("expected one note, got %v", resp.Notes)
	}

	if _, err := service.AddQuestionNote(ctx, instance.ID, questionID, &AddQuestionNoteRequest{Note: "tricky"}, "student-1"); err != nil {
		t.Fatalf("AddQuestionNote failed: %v", err)
	}
	notes, err := service.GetQuestionNotes(ctx, instance.ID, questionID, "student-1")
	if err != nil {
		t.Fatalf("GetQuestionNotes failed: %v", err)
	}
	if len(notes) != 1 || notes[0].Note != "tricky" {
		t.Errorf("expected one question note, got %v", notes)
	}
}

func TestInstanceService_GetByUser(t *testing.T) {
	service, repo, _, _ := setupInstance(t)
	ctx := context.Background()

	// Another student's instance is excluded
	template := repo.templates.store[1]
	if _, err := service.Create(ctx, createInstanceRequest(template.ID), "student-2"); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	resp, err := service.GetByUser(ctx, "student-1", repositories.InstanceFilters{Limit: 20})
	if err != nil {
		t.Fatalf("GetByUser failed: %v", err)
	}
	if resp.Total != 1 {
		t.Errorf("expected 1 instance for student-1, got %d", resp.Total)
	}
}
