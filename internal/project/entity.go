package project

import "time"

const (
	DefaultID    = "default-project-001"
	DefaultName  = "My First Project"
	DefaultColor = "#4285f4"
)

type Project struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	StartDate   time.Time `yaml:"start_date"`
	EndDate     time.Time `yaml:"end_date,omitempty"` // zero when open ended
	Color       string    `yaml:"color"`
	IsActive    bool      `yaml:"is_active"`
	CreatedAt   time.Time `yaml:"created_at"`
	UpdatedAt   time.Time `yaml:"updated_at"`
}
