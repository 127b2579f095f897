package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/gartstein/interviews/internal/interviews/models"
)

func TestWriteExport(t *testing.T) {
	order := 2
	companies := []models.Company{
		{
			Name:    "Acme",
			JobDate: "2026-03-01",
			Questions: []models.Question{
				{
					Text:       "Why Acme?",
					Order:      &order,
					Categories: []string{"motivation"},
					Limit:      &models.LengthLimit{Type: models.LimitChar, Count: 500},
					Answers:    []models.Answer{{Content: "Because."}},
				},
			},
			Schedules: []models.Schedule{{Title: "Coding test", Date: "2026-03-05T14:00", Type: "screening"}},
		},
		{Name: "Globex"},
	}

	var buf bytes.Buffer
	require.NoError(t, writeExport(&buf, "dev@example.com", companies))

	var doc exportDoc
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "dev@example.com", doc.User)
	require.Len(t, doc.Companies, 2)
	assert.Equal(t, exportCompany{
		Name:    "Acme",
		JobDate: "2026-03-01",
		Questions: []exportQuestion{{
			Label:      "Q2",
			Text:       "Why Acme?",
			Categories: []string{"motivation"},
			Limit:      "500 char",
			Answers:    []string{"Because."},
		}},
		Schedules: []exportSchedule{{Title: "Coding test", Date: "2026-03-05T14:00", Type: "screening"}},
	}, doc.Companies[0])
	assert.Equal(t, exportCompany{Name: "Globex"}, doc.Companies[1])
	assert.NotContains(t, buf.String(), "questions: []", "empty collections are omitted")
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "check-db", "tail", "export", "token"}, names)
}
