package repositories

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

// Repository aggregates every repository interface the services consume.
type Repository interface {
	Template() TemplateRepository
	Instance() InstanceRepository
	QuestionTemplate() QuestionTemplateRepository
	Course() CourseRepository
	User() UserRepository

	// WithTransaction runs fn inside a single database transaction; any error
	// rolls the whole transaction back. fn passes the handle as the tx argument
	// of the repository methods it calls.
	WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryManager interface for managing repository lifecycle
type RepositoryManager interface {
	Initialize() error
	GetRepository() Repository
	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// IsNotFoundError reports whether err means the requested row does not exist.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
