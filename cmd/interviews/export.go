package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gartstein/interviews/internal/interviews/db"
	"github.com/gartstein/interviews/internal/interviews/models"
)

type exportDoc struct {
	User      string          `yaml:"user"`
	Companies []exportCompany `yaml:"companies"`
}

type exportCompany struct {
	Name      string           `yaml:"name"`
	JobDate   string           `yaml:"jobDate,omitempty"`
	JobLink   string           `yaml:"jobLink,omitempty"`
	Questions []exportQuestion `yaml:"questions,omitempty"`
	Schedules []exportSchedule `yaml:"schedules,omitempty"`
}

type exportQuestion struct {
	Label      string   `yaml:"label"`
	Text       string   `yaml:"text"`
	Categories []string `yaml:"categories,omitempty"`
	Limit      string   `yaml:"limit,omitempty"`
	Answers    []string `yaml:"answers,omitempty"`
}

type exportSchedule struct {
	Title string `yaml:"title"`
	Date  string `yaml:"date"`
	Type  string `yaml:"type"`
}

func NewExportCommand(opts *RootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <email>",
		Short: "Write a user's companies, questions and answers as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := opts.setup()
			if err != nil {
				return err
			}
			defer syncLogger(logger)

			repo, err := db.NewRepository(cfg.Database())
			if err != nil {
				return err
			}
			defer repo.Close()

			email := strings.ToLower(strings.TrimSpace(args[0]))
			user, _, err := repo.GetUserByEmail(cmd.Context(), email)
			if err != nil {
				return fmt.Errorf("look up %s: %w", email, err)
			}
			companies, err := repo.ListCompanies(cmd.Context(), user.ID)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return writeExport(w, user.Email, companies)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "-", "output file, - for stdout")
	return cmd
}

func writeExport(w io.Writer, email string, companies []models.Company) error {
	doc := exportDoc{User: email, Companies: make([]exportCompany, 0, len(companies))}
	for _, c := range companies {
		ec := exportCompany{Name: c.Name, JobDate: c.JobDate, JobLink: c.JobLink}
		for i, q := range c.Questions {
			eq := exportQuestion{Label: q.Label(i), Text: q.Text, Categories: q.Categories}
			if q.Limit != nil {
				eq.Limit = fmt.Sprintf("%d %s", q.Limit.Count, q.Limit.Type)
			}
			for _, a := range q.Answers {
				eq.Answers = append(eq.Answers, a.Content)
			}
			ec.Questions = append(ec.Questions, eq)
		}
		for _, s := range c.Schedules {
			ec.Schedules = append(ec.Schedules, exportSchedule{Title: s.Title, Date: s.Date, Type: s.Type})
		}
		doc.Companies = append(doc.Companies, ec)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	return enc.Close()
}
