package models

import (
	"fmt"
	"unicode/utf8"
)

// LimitType selects how answer length is measured.
type LimitType string

const (
	// LimitChar counts Unicode characters.
	LimitChar LimitType = "char"
	// LimitByte counts UTF-8 encoded bytes.
	LimitByte LimitType = "byte"
)

// LengthLimit bounds the size of the answers written for a question.
type LengthLimit struct {
	Type  LimitType `json:"type"`
	Count int       `json:"count"`
}

// Validate enforces a known limit type with a positive count.
func (l LengthLimit) Validate() error {
	switch l.Type {
	case LimitChar, LimitByte:
	default:
		return fmt.Errorf("unknown limit type %q", l.Type)
	}
	if l.Count <= 0 {
		return fmt.Errorf("limit count must be positive, got %d", l.Count)
	}
	return nil
}

// Measure returns the length of content in the unit of the limit.
func (l LengthLimit) Measure(content string) int {
	if l.Type == LimitByte {
		return len(content)
	}
	return utf8.RuneCountInString(content)
}

// Exceeds reports whether content is over the limit. Content of exactly
// Count units is within the limit.
func (l LengthLimit) Exceeds(content string) bool {
	return l.Count > 0 && l.Measure(content) > l.Count
}

// OverLimit reports whether the answer content breaks the question's limit.
// Questions without a limit never report over-limit content.
func (q Question) OverLimit(content string) bool {
	return q.Limit != nil && q.Limit.Exceeds(content)
}
