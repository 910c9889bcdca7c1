package note

import "time"

// DateLayout is the calendar day a note belongs to, also used in URLs.
const DateLayout = "2006-01-02"

// Note is the free-form journal entry of a project for one day. A project
// holds at most one note per date.
type Note struct {
	ID        string    `yaml:"id"`
	ProjectID string    `yaml:"project_id"`
	Date      time.Time `yaml:"date"`
	Content   string    `yaml:"content"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// ParseDate reads a YYYY-MM-DD date as midnight UTC.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}
