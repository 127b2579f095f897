// Package search filters the loaded companies by a free-text query.
package search

import (
	"fmt"
	"iter"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/gartstein/interviews/internal/interviews/models"
)

const (
	// DefaultLimit caps the number of results shown for a query.
	DefaultLimit = 10
	// MaxLimit bounds limits supplied by callers.
	MaxLimit = 50
)

type Kind string

const (
	KindCompany  Kind = "company"
	KindQuestion Kind = "question"
	// KindCategory marks a question found through one of its category tags.
	KindCategory Kind = "category"
)

type Result struct {
	Kind       Kind   `json:"kind"`
	ID         string `json:"id"`
	CompanyID  string `json:"companyId"`
	QuestionID string `json:"questionId,omitempty"`
	Title      string `json:"title"`
	Subtitle   string `json:"subtitle"`
	Path       string `json:"path"`
}

// CompanyPath and QuestionPath are the routes results link to.
func CompanyPath(companyID string) string {
	return "/company/" + companyID
}

func QuestionPath(companyID, questionID string) string {
	return fmt.Sprintf("/company/%s/question/%s", companyID, questionID)
}

type matcher struct {
	folder cases.Caser
	needle string
}

func newMatcher(query string) *matcher {
	m := &matcher{folder: cases.Fold()}
	m.needle = m.fold(query)
	return m
}

func (m *matcher) fold(s string) string {
	return m.folder.String(norm.NFC.String(s))
}

func (m *matcher) match(s string) bool {
	return strings.Contains(m.fold(s), m.needle)
}

// Run yields matches in encounter order: for each company its name, then for
// each question its text and its categories. A question matching on both
// text and a category is yielded twice. At most limit results are produced;
// limit <= 0 means no cap. A blank query yields nothing.
func Run(companies []models.Company, query string, limit int) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		if strings.TrimSpace(query) == "" {
			return
		}
		m := newMatcher(query)
		n := 0
		emit := func(r Result) bool {
			n++
			return yield(r) && (limit <= 0 || n < limit)
		}

		for _, c := range companies {
			if m.match(c.Name) {
				if !emit(Result{
					Kind:      KindCompany,
					ID:        c.ID,
					CompanyID: c.ID,
					Title:     c.Name,
					Subtitle:  "Company",
					Path:      CompanyPath(c.ID),
				}) {
					return
				}
			}

			for _, q := range c.Questions {
				if m.match(q.Text) {
					if !emit(Result{
						Kind:       KindQuestion,
						ID:         q.ID,
						CompanyID:  c.ID,
						QuestionID: q.ID,
						Title:      q.Text,
						Subtitle:   c.Name + " • Question",
						Path:       QuestionPath(c.ID, q.ID),
					}) {
						return
					}
				}

				for _, category := range q.Categories {
					if !m.match(category) {
						continue
					}
					if !emit(Result{
						Kind:       KindCategory,
						ID:         q.ID + "_cat",
						CompanyID:  c.ID,
						QuestionID: q.ID,
						Title:      q.Text,
						Subtitle:   c.Name + " • Category match",
						Path:       QuestionPath(c.ID, q.ID),
					}) {
						return
					}
					break
				}
			}
		}
	}
}

// Top collects the first DefaultLimit results.
func Top(companies []models.Company, query string) []Result {
	return Collect(companies, query, DefaultLimit)
}

// Collect gathers the results of Run after passing limit through ClampLimit.
func Collect(companies []models.Company, query string, limit int) []Result {
	limit = ClampLimit(limit)
	results := make([]Result, 0, min(limit, DefaultLimit))
	for r := range Run(companies, query, limit) {
		results = append(results, r)
	}
	return results
}

// ClampLimit maps limit <= 0 to DefaultLimit and caps it at MaxLimit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}
