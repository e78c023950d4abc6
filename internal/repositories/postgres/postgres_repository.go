package postgres

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/edforge/exam-service/internal/repositories"
	"github.com/edforge/exam-service/internal/repositories/casdoor"
)

// PostgreSQLRepository bundles the PostgreSQL-backed repositories behind the
// repositories.Repository aggregate.
type PostgreSQLRepository struct {
	db          *gorm.DB
	redisClient *redis.Client

	template         repositories.TemplateRepository
	instance         repositories.InstanceRepository
	questionTemplate repositories.QuestionTemplateRepository
	course           repositories.CourseRepository
	user             repositories.UserRepository
}

func NewPostgreSQLRepository(db *gorm.DB, redisClient *redis.Client, userRepo repositories.UserRepository) repositories.Repository {
	return &PostgreSQLRepository{
		db:               db,
		redisClient:      redisClient,
		template:         NewTemplatePostgreSQL(db, redisClient),
		instance:         NewInstancePostgreSQL(db, redisClient),
		questionTemplate: NewQuestionTemplatePostgreSQL(db),
		course:           NewCoursePostgreSQL(db),
		user:             userRepo,
	}
}

func (r *PostgreSQLRepository) Template() repositories.TemplateRepository {
	return r.template
}

func (r *PostgreSQLRepository) Instance() repositories.InstanceRepository {
	return r.instance
}

func (r *PostgreSQLRepository) QuestionTemplate() repositories.QuestionTemplateRepository {
	return r.questionTemplate
}

func (r *PostgreSQLRepository) Course() repositories.CourseRepository {
	return r.course
}

func (r *PostgreSQLRepository) User() repositories.UserRepository {
	return r.user
}

// WithTransaction runs fn inside a single database transaction. Repositories
// passed to fn accept the transaction handle as the tx argument.
func (r *PostgreSQLRepository) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *PostgreSQLRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *PostgreSQLRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// RepositoryConfig wires the external dependencies of the repository layer.
type RepositoryConfig struct {
	DB            *gorm.DB
	RedisClient   *redis.Client
	CasdoorConfig casdoor.CasdoorConfig
}

// Manager implements repositories.RepositoryManager over the PostgreSQL stack.
type Manager struct {
	repo repositories.Repository
}

func NewRepositoryManager(config RepositoryConfig) repositories.RepositoryManager {
	userRepo := casdoor.NewUserCasdoor(config.CasdoorConfig, config.RedisClient)
	return &Manager{repo: NewPostgreSQLRepository(config.DB, config.RedisClient, userRepo)}
}

func (m *Manager) Initialize() error {
	return m.repo.Ping(context.Background())
}

func (m *Manager) GetRepository() repositories.Repository {
	return m.repo
}

func (m *Manager) HealthCheck(ctx context.Context) error {
	return m.repo.Ping(ctx)
}

func (m *Manager) Shutdown(ctx context.Context) error {
	return m.repo.Close()
}
