package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"strings"

	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/models"
	"github.com/edforge/exam-service/internal/repositories"
)

// fakeRepository is an in-memory Repository implementation for service tests.
// Transactions run fn directly; every store is a plain map.
type fakeRepository struct {
	templates *fakeTemplateRepo
	instances *fakeInstanceRepo
	questions *fakeQuestionTemplateRepo
	courses   *fakeCourseRepo
	users     *fakeUserRepo
}

func newFakeRepository() *fakeRepository {
	questions := &fakeQuestionTemplateRepo{store: map[uint]*models.QuestionTemplate{}}
	return &fakeRepository{
		templates: &fakeTemplateRepo{store: map[uint]*models.ExamTemplate{}, questionTemplates: questions},
		instances: &fakeInstanceRepo{
			instances: map[uint]*models.ExamInstance{},
			sections:  map[uint]*models.ExamInstanceSection{},
			questions: map[uint]*models.ExamInstanceQuestion{},
		},
		questions: questions,
		courses:   &fakeCourseRepo{existing: map[uint]bool{}},
		users:     &fakeUserRepo{roles: map[string]models.UserRole{}},
	}
}

func (r *fakeRepository) Template() repositories.TemplateRepository                 { return r.templates }
func (r *fakeRepository) Instance() repositories.InstanceRepository                 { return r.instances }
func (r *fakeRepository) QuestionTemplate() repositories.QuestionTemplateRepository { return r.questions }
func (r *fakeRepository) Course() repositories.CourseRepository                     { return r.courses }
func (r *fakeRepository) User() repositories.UserRepository                         { return r.users }

func (r *fakeRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (r *fakeRepository) Ping(ctx context.Context) error { return nil }
func (r *fakeRepository) Close() error                   { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ===== TEMPLATE REPO =====

type fakeTemplateRepo struct {
	store             map[uint]*models.ExamTemplate
	questionTemplates *fakeQuestionTemplateRepo
	nextID            uint
	nextSectionID     uint
	nextQuestionID    uint
}

func (f *fakeTemplateRepo) Create(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error {
	f.nextID++
	template.ID = f.nextID
	f.store[template.ID] = template
	return nil
}

func (f *fakeTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	template, ok := f.store[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return template, nil
}

func (f *fakeTemplateRepo) GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	template, err := f.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	// Resolve question templates the way the preload would
	for si := range template.Sections {
		for qi := range template.Sections[si].Questions {
			q := &template.Sections[si].Questions[qi]
			if q.QuestionTemplate == nil {
				q.QuestionTemplate = f.questionTemplates.store[q.QuestionTemplateID]
			}
		}
	}
	return template, nil
}

func (f *fakeTemplateRepo) Update(ctx context.Context, tx *gorm.DB, template *models.ExamTemplate) error {
	if _, ok := f.store[template.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.store[template.ID] = template
	return nil
}

func (f *fakeTemplateRepo) Delete(ctx context.Context, tx *gorm.DB, id uint) error {
	if _, ok := f.store[id]; !ok {
		return gorm.ErrRecordNotFound
	}
	delete(f.store, id)
	return nil
}

func (f *fakeTemplateRepo) List(ctx context.Context, tx *gorm.DB, filters repositories.TemplateFilters) ([]*models.ExamTemplate, int64, error) {
	var out []*models.ExamTemplate
	for _, t := range f.store {
		if filters.CourseID != nil && t.CourseID != *filters.CourseID {
			continue
		}
		if filters.CreatedBy != nil && t.CreatedBy != *filters.CreatedBy {
			continue
		}
		if filters.IsPublished != nil && t.IsPublished != *filters.IsPublished {
			continue
		}
		if filters.Search != nil && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(*filters.Search)) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeTemplateRepo) GetRoot(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamTemplate, error) {
	current, err := f.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for current.ParentTemplateID != nil {
		parent, ok := f.store[*current.ParentTemplateID]
		if !ok {
			break
		}
		current = parent
	}
	return current, nil
}

func (f *fakeTemplateRepo) GetByParentID(ctx context.Context, tx *gorm.DB, parentID uint) ([]*models.ExamTemplate, error) {
	var out []*models.ExamTemplate
	for _, t := range f.store {
		if t.ParentTemplateID != nil && *t.ParentTemplateID == parentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (f *fakeTemplateRepo) CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamTemplateSection) error {
	template, ok := f.store[section.ExamTemplateID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.nextSectionID++
	section.ID = f.nextSectionID
	template.Sections = append(template.Sections, *section)
	return nil
}

func (f *fakeTemplateRepo) CreateSectionQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamTemplateSectionQuestion) error {
	f.nextQuestionID++
	question.ID = f.nextQuestionID
	for _, template := range f.store {
		for si := range template.Sections {
			if template.Sections[si].ID == question.SectionID {
				template.Sections[si].Questions = append(template.Sections[si].Questions, *question)
				return nil
			}
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeTemplateRepo) SetPublished(ctx context.Context, tx *gorm.DB, id uint, published bool) error {
	template, ok := f.store[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	template.IsPublished = published
	return nil
}

// ===== INSTANCE REPO =====

type fakeInstanceRepo struct {
	instances map[uint]*models.ExamInstance
	sections  map[uint]*models.ExamInstanceSection
	questions map[uint]*models.ExamInstanceQuestion

	nextInstanceID uint
	nextSectionID  uint
	nextQuestionID uint
}

func (f *fakeInstanceRepo) Create(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error {
	f.nextInstanceID++
	instance.ID = f.nextInstanceID
	f.instances[instance.ID] = instance
	return nil
}

func (f *fakeInstanceRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error) {
	instance, ok := f.instances[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return instance, nil
}

func (f *fakeInstanceRepo) GetByIDWithTree(ctx context.Context, tx *gorm.DB, id uint) (*models.ExamInstance, error) {
	instance, err := f.GetByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	instance.Sections = nil
	var sectionIDs []uint
	for _, s := range f.sections {
		if s.ExamInstanceID == id {
			sectionIDs = append(sectionIDs, s.ID)
		}
	}
	sort.Slice(sectionIDs, func(i, j int) bool { return sectionIDs[i] < sectionIDs[j] })
	for _, sid := range sectionIDs {
		section := *f.sections[sid]
		section.Questions = nil
		for _, q := range f.questions {
			if q.SectionID == sid {
				section.Questions = append(section.Questions, *q)
			}
		}
		sort.Slice(section.Questions, func(i, j int) bool {
			return section.Questions[i].Position < section.Questions[j].Position
		})
		instance.Sections = append(instance.Sections, section)
	}
	return instance, nil
}

func (f *fakeInstanceRepo) Update(ctx context.Context, tx *gorm.DB, instance *models.ExamInstance) error {
	if _, ok := f.instances[instance.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.instances[instance.ID] = instance
	return nil
}

func (f *fakeInstanceRepo) GetByUser(ctx context.Context, tx *gorm.DB, userID string, filters repositories.InstanceFilters) ([]*models.ExamInstance, int64, error) {
	var out []*models.ExamInstance
	for _, instance := range f.instances {
		if instance.UserID != userID {
			continue
		}
		if filters.Status != nil && instance.Status != *filters.Status {
			continue
		}
		if filters.Type != nil && instance.Type != *filters.Type {
			continue
		}
		out = append(out, instance)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeInstanceRepo) GetByTemplate(ctx context.Context, tx *gorm.DB, templateID uint, filters repositories.InstanceFilters) ([]*models.ExamInstance, int64, error) {
	var out []*models.ExamInstance
	for _, instance := range f.instances {
		if instance.ExamTemplateID == templateID {
			out = append(out, instance)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, int64(len(out)), nil
}

func (f *fakeInstanceRepo) CreateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error {
	f.nextSectionID++
	section.ID = f.nextSectionID
	f.sections[section.ID] = section
	return nil
}

func (f *fakeInstanceRepo) GetSection(ctx context.Context, tx *gorm.DB, instanceID, sectionID uint) (*models.ExamInstanceSection, error) {
	section, ok := f.sections[sectionID]
	if !ok || section.ExamInstanceID != instanceID {
		return nil, gorm.ErrRecordNotFound
	}
	return section, nil
}

func (f *fakeInstanceRepo) UpdateSection(ctx context.Context, tx *gorm.DB, section *models.ExamInstanceSection) error {
	if _, ok := f.sections[section.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.sections[section.ID] = section
	return nil
}

func (f *fakeInstanceRepo) CreateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error {
	f.nextQuestionID++
	question.ID = f.nextQuestionID
	f.questions[question.ID] = question
	return nil
}

func (f *fakeInstanceRepo) GetQuestionWithSection(ctx context.Context, tx *gorm.DB, questionID uint) (*models.ExamInstanceQuestion, error) {
	question, ok := f.questions[questionID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if section, ok := f.sections[question.SectionID]; ok {
		question.Section = *section
	}
	return question, nil
}

func (f *fakeInstanceRepo) UpdateQuestion(ctx context.Context, tx *gorm.DB, question *models.ExamInstanceQuestion) error {
	if _, ok := f.questions[question.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	f.questions[question.ID] = question
	return nil
}

// ===== QUESTION TEMPLATE REPO =====

type fakeQuestionTemplateRepo struct {
	store map[uint]*models.QuestionTemplate
}

func (f *fakeQuestionTemplateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.QuestionTemplate, error) {
	qt, ok := f.store[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return qt, nil
}

func (f *fakeQuestionTemplateRepo) GetByIDs(ctx context.Context, tx *gorm.DB, ids []uint) ([]*models.QuestionTemplate, error) {
	var out []*models.QuestionTemplate
	for _, id := range ids {
		if qt, ok := f.store[id]; ok {
			out = append(out, qt)
		}
	}
	return out, nil
}

func (f *fakeQuestionTemplateRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	_, ok := f.store[id]
	return ok, nil
}

// ===== COURSE REPO =====

type fakeCourseRepo struct {
	existing map[uint]bool
}

func (f *fakeCourseRepo) GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Course, error) {
	if !f.existing[id] {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.Course{ID: id, Name: "Course"}, nil
}

func (f *fakeCourseRepo) ExistsByID(ctx context.Context, tx *gorm.DB, id uint) (bool, error) {
	return f.existing[id], nil
}

// ===== USER REPO =====

type fakeUserRepo struct {
	roles map[string]models.UserRole
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	role, ok := f.roles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.User{ID: id, Role: role}, nil
}

func (f *fakeUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUserRepo) GetByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	var out []*models.User
	for _, id := range ids {
		if user, err := f.GetByID(ctx, id); err == nil {
			out = append(out, user)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, ok := f.roles[id]
	return ok, nil
}

func (f *fakeUserRepo) HasRole(ctx context.Context, id string, role models.UserRole) (bool, error) {
	return f.roles[id] == role, nil
}
