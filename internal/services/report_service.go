package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

type reportService struct {
	repo   repositories.Repository
	db     *gorm.DB
	logger *slog.Logger
}

func NewReportService(repo repositories.Repository, db *gorm.DB, logger *slog.Logger) ReportService {
	return &reportService{
		repo:   repo,
		db:     db,
		logger: logger,
	}
}

// ExportTemplateResults renders one row per instance of the template into an
// xlsx workbook. Only the template owner (or an admin) may export.
func (s *reportService) ExportTemplateResults(ctx context.Context, templateID uint, userID string) ([]byte, string, error) {
	s.logger.Info("Exporting template results", "template_id", templateID, "user_id", userID)

	template, err := s.repo.Template().GetByID(ctx, s.db, templateID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, "", ErrTemplateNotFound
		}
		return nil, "", fmt.Errorf("failed to get template: %w", err)
	}

	if template.CreatedBy != userID {
		isAdmin, roleErr := s.repo.User().HasRole(ctx, userID, models.RoleAdmin)
		if roleErr != nil || !isAdmin {
			return nil, "", NewPermissionError(userID, templateID, "template", "export", "not owned by user")
		}
	}

	instances, _, err := s.repo.Instance().GetByTemplate(ctx, s.db, templateID, repositories.InstanceFilters{
		Limit:     100,
		SortBy:    "created_at",
		SortOrder: "asc",
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to load instances: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Results"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Instance ID", "User ID", "Type", "Status", "Started At", "Completed At", "Answered", "Total Questions", "Score"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	for row, instance := range instances {
		answered, total, score := summarizeInstance(instance)

		values := []any{
			instance.ID,
			instance.UserID,
			string(instance.Type),
			string(instance.Status),
			formatTimePtr(instance.StartedAt),
			formatTimePtr(instance.CompletedAt),
			answered,
			total,
			score,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, value)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to serialize report: %w", err)
	}

	filename := fmt.Sprintf("template_%d_results_%s.xlsx", templateID, time.Now().Format("20060102"))

	s.logger.Info("Template results exported",
		"template_id", templateID,
		"instance_count", len(instances))

	return buf.Bytes(), filename, nil
}

func summarizeInstance(instance *models.ExamInstance) (answered, total int, score float64) {
	for _, section := range instance.Sections {
		for _, question := range section.Questions {
			total++
			if question.Status == models.QuestionAnswered {
				answered++
			}
			if question.Score != nil {
				score += *question.Score
			}
		}
	}
	return answered, total, score
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
