package models

import "strings"

// PredefinedCategories are offered as one-click tags when creating a question.
var PredefinedCategories = []string{
	"introduction",
	"strengths-weaknesses",
	"motivation",
	"job-skills",
	"project",
	"conflict",
	"failure",
	"communication",
	"cs",
	"algorithm",
	"personality",
}

// NormalizeCategories trims tags, drops blanks and keeps the first
// occurrence of each tag.
func NormalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}
