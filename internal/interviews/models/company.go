// Package models defines the core domain models of the interview tracker:
// companies, the questions asked by them, the answers written for those
// questions, and the schedule events attached to a company.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Company is a prospective employer the user is preparing for.
type Company struct {
	// ID is either a temporary client id or the id assigned by the store.
	ID string `json:"id"`
	// Name is the company's display name.
	Name string `json:"name"`
	// JobDate is the job-posting date (YYYY-MM-DD), empty when unknown.
	JobDate string `json:"jobDate,omitempty"`
	// JobLink points at the job posting, empty when unknown.
	JobLink string `json:"jobLink,omitempty"`
	// Questions are kept in display order.
	Questions []Question `json:"questions"`
	// Schedules are kept in insertion order.
	Schedules []Schedule `json:"schedules"`
	// CreatedAt records when the company was registered.
	CreatedAt time.Time `json:"createdAt"`
}

// Question is an interview question asked by a company.
type Question struct {
	ID         string       `json:"id"`
	CompanyID  string       `json:"companyId"`
	Order      *int         `json:"order,omitempty"`
	Text       string       `json:"text"`
	Answers    []Answer     `json:"answers"`
	Categories []string     `json:"categories"`
	Limit      *LengthLimit `json:"limit,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Answer is one written answer to a question. A question may collect
// several answers over time.
type Answer struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CompanyInput carries the user-editable fields of a company.
type CompanyInput struct {
	Name    string `json:"name"`
	JobDate string `json:"jobDate,omitempty"`
	JobLink string `json:"jobLink,omitempty"`
}

// QuestionInput carries the fields used to create a question.
// LimitType is empty when the answer length is unconstrained.
type QuestionInput struct {
	Text       string    `json:"text"`
	Categories []string  `json:"categories,omitempty"`
	Order      *int      `json:"order,omitempty"`
	LimitType  LimitType `json:"limitType,omitempty"`
	LimitCount int       `json:"limitCount,omitempty"`
}

// Validate checks the company fields and returns a descriptive error.
func (in CompanyInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("company name is required")
	}
	if in.JobDate != "" {
		if _, err := time.Parse(DateLayout, in.JobDate); err != nil {
			return fmt.Errorf("job date %q is not a YYYY-MM-DD date", in.JobDate)
		}
	}
	return nil
}

// Validate checks the question text and the length limit invariant.
func (in QuestionInput) Validate() error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("question text is required")
	}
	if in.LimitType == "" {
		if in.LimitCount != 0 {
			return fmt.Errorf("limit count given without a limit type")
		}
		return nil
	}
	return in.Limit().Validate()
}

// Limit returns the length limit described by the input, or nil.
func (in QuestionInput) Limit() *LengthLimit {
	if in.LimitType == "" {
		return nil
	}
	return &LengthLimit{Type: in.LimitType, Count: in.LimitCount}
}

// Answered reports whether at least one answer has been written.
func (q Question) Answered() bool {
	return len(q.Answers) > 0
}

// Label is the short badge shown next to a question: its explicit order when
// set, otherwise its position in the list.
func (q Question) Label(index int) string {
	if q.Order != nil && *q.Order != 0 {
		return fmt.Sprintf("Q%d", *q.Order)
	}
	return fmt.Sprintf("Q%d", index+1)
}

// FindQuestion returns the question with the given id.
func (c Company) FindQuestion(id string) (Question, bool) {
	for _, q := range c.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Clone returns a deep copy that shares no slices with c.
func (c Company) Clone() Company {
	out := c
	out.Questions = make([]Question, len(c.Questions))
	for i, q := range c.Questions {
		out.Questions[i] = q.Clone()
	}
	out.Schedules = append([]Schedule(nil), c.Schedules...)
	if out.Schedules == nil {
		out.Schedules = []Schedule{}
	}
	return out
}

// Clone returns a deep copy of the question.
func (q Question) Clone() Question {
	out := q
	out.Answers = append([]Answer{}, q.Answers...)
	out.Categories = append([]string{}, q.Categories...)
	if q.Order != nil {
		order := *q.Order
		out.Order = &order
	}
	if q.Limit != nil {
		limit := *q.Limit
		out.Limit = &limit
	}
	return out
}
