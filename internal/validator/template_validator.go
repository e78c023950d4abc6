package validator

import (
	"fmt"
	"math"
	"sort"

	"github.com/edforge/exam-service/internal/models"
)

// EntityKind identifies which level of the template tree a validation error refers to.
type EntityKind string

const (
	KindTemplate EntityKind = "template"
	KindSection  EntityKind = "section"
	KindQuestion EntityKind = "question"
)

// TemplateValidationError is one violation found in a candidate exam template.
type TemplateValidationError struct {
	Kind     EntityKind `json:"kind"`
	EntityID uint       `json:"entity_id"`
	Message  string     `json:"message"`
}

// TemplateValidationResult carries every violation found; rules are evaluated
// independently and never short-circuit.
type TemplateValidationResult struct {
	IsValid bool                      `json:"is_valid"`
	Errors  []TemplateValidationError `json:"errors"`
}

// ValidateTemplate checks an exam template and its section/question tree against
// the structural and distribution rules. Pure: no I/O, no side effects. Section
// rules run when publishing or when the template has sections loaded.
func ValidateTemplate(template *models.ExamTemplate, isPublishing bool) TemplateValidationResult {
	var errs []TemplateValidationError

	if !template.AvailabilityEndDate.After(template.AvailabilityStartDate) {
		errs = append(errs, TemplateValidationError{
			Kind:     KindTemplate,
			EntityID: template.ID,
			Message:  "End date must be after start date",
		})
	}

	if isPublishing || len(template.Sections) > 0 {
		if len(template.Sections) == 0 {
			errs = append(errs, TemplateValidationError{
				Kind:     KindTemplate,
				EntityID: template.ID,
				Message:  "Template must have at least one section",
			})
		}
		for i := range template.Sections {
			errs = append(errs, validateSection(&template.Sections[i])...)
		}
	}

	return TemplateValidationResult{
		IsValid: len(errs) == 0,
		Errors:  errs,
	}
}

func validateSection(section *models.ExamTemplateSection) []TemplateValidationError {
	var errs []TemplateValidationError

	sectionErr := func(msg string) {
		errs = append(errs, TemplateValidationError{
			Kind:     KindSection,
			EntityID: section.ID,
			Message:  msg,
		})
	}

	if section.TimeLimitSeconds <= 0 {
		sectionErr("Section time limit must be greater than zero")
	}

	if len(section.Questions) == 0 {
		sectionErr("Section must have at least one question")
	}

	if !uniquePositions(section.Questions) {
		sectionErr("Questions must have unique positions")
	}
	if !sequentialPositions(section.Questions) {
		sectionErr("Question positions must be sequential")
	}

	for _, q := range section.Questions {
		if q.QuestionTemplate == nil {
			errs = append(errs, TemplateValidationError{
				Kind:     KindQuestion,
				EntityID: q.ID,
				Message:  "Question template is missing",
			})
		}
	}

	if len(section.DifficultyDistribution) > 0 {
		errs = append(errs, validateDifficultyDistribution(section)...)
	}
	if len(section.TopicDistribution) > 0 {
		errs = append(errs, validateTopicDistribution(section)...)
	}

	return errs
}

func uniquePositions(questions []models.ExamTemplateSectionQuestion) bool {
	seen := make(map[int]bool, len(questions))
	for _, q := range questions {
		if seen[q.Position] {
			return false
		}
		seen[q.Position] = true
	}
	return true
}

// sequentialPositions requires positions, sorted ascending, to be exactly 1..N.
// Evaluated independently of uniqueness so both errors can fire together.
func sequentialPositions(questions []models.ExamTemplateSectionQuestion) bool {
	positions := make([]int, len(questions))
	for i, q := range questions {
		positions[i] = q.Position
	}
	sort.Ints(positions)
	for i, p := range positions {
		if p != i+1 {
			return false
		}
	}
	return true
}

// validateDifficultyDistribution requires rule percentages to sum to exactly 100
// and, for each rule, round(percentage/100 * questionCount) to equal the actual
// number of questions at that difficulty. The expected count is a strict match,
// not a tolerance band.
func validateDifficultyDistribution(section *models.ExamTemplateSection) []TemplateValidationError {
	var errs []TemplateValidationError

	total := 0
	for _, rule := range section.DifficultyDistribution {
		total += rule.Percentage
	}
	if total != 100 {
		errs = append(errs, TemplateValidationError{
			Kind:     KindSection,
			EntityID: section.ID,
			Message:  fmt.Sprintf("Difficulty distribution percentages must sum to 100, got %d", total),
		})
	}

	counts := make(map[models.DifficultyLevel]int)
	for _, q := range section.Questions {
		if q.QuestionTemplate != nil {
			counts[q.QuestionTemplate.Difficulty]++
		}
	}

	questionCount := len(section.Questions)
	for _, rule := range section.DifficultyDistribution {
		expected := int(math.Round(float64(rule.Percentage) / 100 * float64(questionCount)))
		actual := counts[rule.Difficulty]
		if expected != actual {
			errs = append(errs, TemplateValidationError{
				Kind:     KindSection,
				EntityID: section.ID,
				Message: fmt.Sprintf("Difficulty %q expects %d question(s) at %d%%, found %d",
					rule.Difficulty, expected, rule.Percentage, actual),
			})
		}
	}

	return errs
}

// validateTopicDistribution mirrors the difficulty check over topic membership.
// A question counts once per matching rule even when several of its topics match.
func validateTopicDistribution(section *models.ExamTemplateSection) []TemplateValidationError {
	var errs []TemplateValidationError

	total := 0
	for _, rule := range section.TopicDistribution {
		total += rule.Percentage
	}
	if total != 100 {
		errs = append(errs, TemplateValidationError{
			Kind:     KindSection,
			EntityID: section.ID,
			Message:  fmt.Sprintf("Topic distribution percentages must sum to 100, got %d", total),
		})
	}

	questionCount := len(section.Questions)
	for _, rule := range section.TopicDistribution {
		ruleTopics := make(map[string]bool, len(rule.Topics))
		for _, t := range rule.Topics {
			ruleTopics[t] = true
		}

		actual := 0
		for _, q := range section.Questions {
			if q.QuestionTemplate == nil {
				continue
			}
			for _, topic := range q.QuestionTemplate.Topics {
				if ruleTopics[topic] {
					actual++
					break
				}
			}
		}

		expected := int(math.Round(float64(rule.Percentage) / 100 * float64(questionCount)))
		if expected != actual {
			errs = append(errs, TemplateValidationError{
				Kind:     KindSection,
				EntityID: section.ID,
				Message: fmt.Sprintf("Topic rule %v expects %d question(s) at %d%%, found %d",
					rule.Topics, expected, rule.Percentage, actual),
			})
		}
	}

	return errs
}
