// Package db is the remote store of the interview tracker: users, companies,
// questions with their answer documents, and schedules, persisted with GORM
// on Postgres or SQLite.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	e "github.com/gartstein/interviews/internal/interviews/errors"
	rows "github.com/gartstein/interviews/internal/interviews/db/models"
	"github.com/gartstein/interviews/internal/interviews/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db *gorm.DB
}

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// Path is the SQLite database file, ":memory:" for a throwaway store.
	Path string
}

func NewRepository(cfg *Config) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: unknown database driver %q", e.ErrInvalidInput, cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		if err := configureSQLite(db); err != nil {
			return nil, err
		}
	}

	if err := db.AutoMigrate(rows.All()...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db}, nil
}

// configureSQLite pins the pool to one connection so in-memory databases
// survive and the foreign key pragma applies to every statement.
func configureSQLite(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	return nil
}

// ConnectWithRetry opens the repository, retrying with exponential backoff
// until maxElapsed has passed or ctx is done.
func ConnectWithRetry(ctx context.Context, cfg *Config, maxElapsed time.Duration) (*Repository, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxElapsed

	var repo *Repository
	err := backoff.Retry(func() error {
		var err error
		repo, err = NewRepository(cfg)
		if errors.Is(err, e.ErrInvalidInput) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(policy, ctx))
	return repo, err
}

// Ping checks the connection and that the companies table can be read.
func (r *Repository) Ping(ctx context.Context) (int64, error) {
	sqlDB, err := r.db.DB()
	if err != nil {
		return 0, err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return 0, err
	}
	var count int64
	err = r.db.WithContext(ctx).Model(&rows.Company{}).Limit(1).Count(&count).Error
	return count, err
}

func (r *Repository) CreateUser(ctx context.Context, email, passwordHash string) (*models.User, error) {
	row := rows.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
	}
	result := r.db.WithContext(ctx).Create(&row)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, e.ErrDuplicateEmail
		}
		return nil, result.Error
	}
	return toDomainUser(row), nil
}

// GetUserByEmail returns the user and its password hash.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, string, error) {
	var row rows.User
	result := r.db.WithContext(ctx).First(&row, "email = ?", email)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, "", e.ErrNotFound
		}
		return nil, "", result.Error
	}
	return toDomainUser(row), row.PasswordHash, nil
}

func (r *Repository) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row rows.User
	result := r.db.WithContext(ctx).First(&row, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, e.ErrNotFound
		}
		return nil, result.Error
	}
	return toDomainUser(row), nil
}

// ListCompanies returns the user's companies, newest first, with questions
// in display order (unordered questions last) and schedules in creation order.
func (r *Repository) ListCompanies(ctx context.Context, userID string) ([]models.Company, error) {
	var found []rows.Company
	result := r.db.WithContext(ctx).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("sort_order IS NULL, sort_order ASC, created_at ASC")
		}).
		Preload("Schedules", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("created_at ASC")
		}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&found)
	if result.Error != nil {
		return nil, result.Error
	}

	companies := make([]models.Company, 0, len(found))
	for _, row := range found {
		company, err := toDomainCompany(row)
		if err != nil {
			return nil, err
		}
		companies = append(companies, company)
	}
	return companies, nil
}

func (r *Repository) InsertCompany(ctx context.Context, userID string, company models.Company) (string, error) {
	row := toCompanyRow(userID, company)
	row.ID = uuid.NewString()
	if err := r.db.WithContext(ctx).Omit("User", "Questions", "Schedules").Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (r *Repository) UpdateCompany(ctx context.Context, id string, in models.CompanyInput) error {
	result := r.db.WithContext(ctx).Model(&rows.Company{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"name":     in.Name,
			"job_date": optional(in.JobDate),
			"job_link": optional(in.JobLink),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteCompany(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&rows.Company{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) InsertQuestion(ctx context.Context, companyID string, question models.Question) (string, error) {
	row := toQuestionRow(companyID, question)
	row.ID = uuid.NewString()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// DeleteQuestions removes all questions with the given ids in one statement.
func (r *Repository) DeleteQuestions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Where("id IN ?", ids).Delete(&rows.Question{}).Error
}

// SaveAnswers replaces the whole answer document of a question.
func (r *Repository) SaveAnswers(ctx context.Context, questionID string, answers []models.Answer) error {
	result := r.db.WithContext(ctx).Model(&rows.Question{}).
		Where("id = ?", questionID).
		Update("answers", toAnswerRows(answers))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) InsertSchedule(ctx context.Context, companyID string, schedule models.Schedule) (string, error) {
	row := toScheduleRow(companyID, schedule)
	row.ID = uuid.NewString()
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

func (r *Repository) DeleteSchedule(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&rows.Schedule{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
