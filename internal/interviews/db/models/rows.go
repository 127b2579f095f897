// Package models contains the storage rows of the interview tracker,
// configured to work using GORM as the ORM.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// User is an account row.
type User struct {
	ID           string `gorm:"type:varchar(36);primaryKey"`
	Email        string `gorm:"size:320;uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

// Company is a company row owned by a user. Deleting the company cascades
// to its questions and schedules.
type Company struct {
	ID        string  `gorm:"type:varchar(36);primaryKey"`
	UserID    string  `gorm:"type:varchar(36);not null;index"`
	Name      string  `gorm:"not null"`
	JobDate   *string `gorm:"size:10"`
	JobLink   *string
	CreatedAt time.Time `gorm:"index"`

	User      User       `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Questions []Question `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Schedules []Schedule `gorm:"foreignKey:CompanyID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// Question is a question row. Answers are kept as a single JSON document
// that is replaced as a whole on every write.
type Question struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	CompanyID  string `gorm:"type:varchar(36);not null;index"`
	Text       string `gorm:"not null"`
	Categories datatypes.JSONSlice[string]
	SortOrder  *int
	LimitType  *string `gorm:"size:4"`
	LimitCount *int
	Answers    datatypes.JSONSlice[Answer]
	CreatedAt  time.Time
}

// Answer is one element of Question.Answers.
type Answer struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Schedule is a schedule row.
type Schedule struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	CompanyID   string `gorm:"type:varchar(36);not null;index"`
	Title       string `gorm:"not null"`
	Date        string `gorm:"size:16;not null"`
	Description string
	Type        string `gorm:"size:32"`
	CreatedAt   time.Time
}

// All lists the rows to migrate, parents first.
func All() []interface{} {
	return []interface{}{&User{}, &Company{}, &Question{}, &Schedule{}}
}
