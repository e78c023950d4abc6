package pkg

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edforge/exam-service/internal/config"
	"github.com/edforge/exam-service/internal/models"
)

// InitDatabase opens the PostgreSQL connection, configures the pool and runs
// schema migrations.
func InitDatabase(cfg *config.Config) (*gorm.DB, error) {
	gormLogLevel := logger.Warn
	if cfg.Environment == "development" {
		gormLogLevel = logger.Info
	}

	// User and Course rows are owned by other services; constraints against
	// those tables would reject rows that are valid upstream.
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		Logger:                                   logger.Default.LogMode(gormLogLevel),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}

	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}

func migrate(db *gorm.DB) error {
	slog.Info("Running database migrations")

	return db.AutoMigrate(
		&models.Course{},
		&models.QuestionTemplate{},
		&models.ExamTemplate{},
		&models.ExamTemplateSection{},
		&models.ExamTemplateSectionQuestion{},
		&models.ExamInstance{},
		&models.ExamInstanceSection{},
		&models.ExamInstanceQuestion{},
		&models.User{},
	)
}

// NewRedisClient creates a redis client from the configured URL and verifies
// connectivity.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	return client, nil
}
