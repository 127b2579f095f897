package db

import (
	"fmt"

	rows "github.com/gartstein/interviews/internal/interviews/db/models"
	e "github.com/gartstein/interviews/internal/interviews/errors"
	"github.com/gartstein/interviews/internal/interviews/models"
	"gorm.io/datatypes"
)

// toDomainCompany maps a company row and its preloaded children onto the
// domain model. Rows that break a domain invariant are rejected with
// ErrCorruptRow instead of being patched up.
func toDomainCompany(row rows.Company) (models.Company, error) {
	if row.ID == "" {
		return models.Company{}, fmt.Errorf("%w: company without id", e.ErrCorruptRow)
	}
	company := models.Company{
		ID:        row.ID,
		Name:      row.Name,
		JobDate:   deref(row.JobDate),
		JobLink:   deref(row.JobLink),
		Questions: make([]models.Question, 0, len(row.Questions)),
		Schedules: make([]models.Schedule, 0, len(row.Schedules)),
		CreatedAt: row.CreatedAt,
	}
	for _, q := range row.Questions {
		question, err := toDomainQuestion(q)
		if err != nil {
			return models.Company{}, fmt.Errorf("company %s: %w", row.ID, err)
		}
		company.Questions = append(company.Questions, question)
	}
	for _, s := range row.Schedules {
		schedule, err := toDomainSchedule(s)
		if err != nil {
			return models.Company{}, fmt.Errorf("company %s: %w", row.ID, err)
		}
		company.Schedules = append(company.Schedules, schedule)
	}
	return company, nil
}

func toDomainQuestion(row rows.Question) (models.Question, error) {
	question := models.Question{
		ID:         row.ID,
		CompanyID:  row.CompanyID,
		Order:      row.SortOrder,
		Text:       row.Text,
		Answers:    make([]models.Answer, 0, len(row.Answers)),
		Categories: append([]string{}, row.Categories...),
		CreatedAt:  row.CreatedAt,
	}

	switch {
	case row.LimitType == nil && row.LimitCount != nil:
		return models.Question{}, fmt.Errorf("%w: question %s has a limit count without a limit type", e.ErrCorruptRow, row.ID)
	case row.LimitType != nil:
		if row.LimitCount == nil {
			return models.Question{}, fmt.Errorf("%w: question %s has limit type %q without a count", e.ErrCorruptRow, row.ID, *row.LimitType)
		}
		limit := models.LengthLimit{Type: models.LimitType(*row.LimitType), Count: *row.LimitCount}
		if err := limit.Validate(); err != nil {
			return models.Question{}, fmt.Errorf("%w: question %s: %v", e.ErrCorruptRow, row.ID, err)
		}
		question.Limit = &limit
	}

	for i, a := range row.Answers {
		if a.ID == "" {
			return models.Question{}, fmt.Errorf("%w: question %s answer #%d has no id", e.ErrCorruptRow, row.ID, i)
		}
		question.Answers = append(question.Answers, models.Answer{
			ID:        a.ID,
			Content:   a.Content,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		})
	}
	return question, nil
}

func toDomainSchedule(row rows.Schedule) (models.Schedule, error) {
	if row.Date == "" {
		return models.Schedule{}, fmt.Errorf("%w: schedule %s has no date", e.ErrCorruptRow, row.ID)
	}
	return models.Schedule{
		ID:          row.ID,
		CompanyID:   row.CompanyID,
		Title:       row.Title,
		Date:        row.Date,
		Description: row.Description,
		Type:        row.Type,
		CreatedAt:   row.CreatedAt,
	}, nil
}

func toDomainUser(row rows.User) *models.User {
	return &models.User{
		ID:        row.ID,
		Email:     row.Email,
		CreatedAt: row.CreatedAt,
	}
}

func toCompanyRow(userID string, company models.Company) rows.Company {
	return rows.Company{
		UserID:    userID,
		Name:      company.Name,
		JobDate:   optional(company.JobDate),
		JobLink:   optional(company.JobLink),
		CreatedAt: company.CreatedAt,
	}
}

func toQuestionRow(companyID string, question models.Question) rows.Question {
	row := rows.Question{
		CompanyID:  companyID,
		Text:       question.Text,
		Categories: append([]string{}, question.Categories...),
		SortOrder:  question.Order,
		Answers:    toAnswerRows(question.Answers),
		CreatedAt:  question.CreatedAt,
	}
	if question.Limit != nil {
		limitType := string(question.Limit.Type)
		limitCount := question.Limit.Count
		row.LimitType = &limitType
		row.LimitCount = &limitCount
	}
	return row
}

func toAnswerRows(answers []models.Answer) datatypes.JSONSlice[rows.Answer] {
	out := make(datatypes.JSONSlice[rows.Answer], 0, len(answers))
	for _, a := range answers {
		out = append(out, rows.Answer{
			ID:        a.ID,
			Content:   a.Content,
			CreatedAt: a.CreatedAt,
			UpdatedAt: a.UpdatedAt,
		})
	}
	return out
}

func toScheduleRow(companyID string, schedule models.Schedule) rows.Schedule {
	return rows.Schedule{
		CompanyID:   companyID,
		Title:       schedule.Title,
		Date:        schedule.Date,
		Description: schedule.Description,
		Type:        schedule.Type,
		CreatedAt:   schedule.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
