// Package models defines core data structures for corpus records, queries, and search results.
package models

// IDLength is the fixed length of a record ID (the cord_uid shape).
const IDLength = 8

// Field names addressable by filter predicates.
const (
	FieldID          = "id"
	FieldText        = "text"
	FieldPublishedAt = "published_at"
	FieldLanguage    = "language"
	FieldTitle       = "title"
	FieldURL         = "url"
	FieldTopic       = "topic"
	FieldSubtopic    = "subtopic"
)

// Record is one corpus entry. Empty strings mean the source value was missing.
type Record struct {
	ID          string `json:"id" db:"id"`
	Text        string `json:"text" db:"text"`
	PublishedAt string `json:"published_at,omitempty" db:"published_at"`
	Language    string `json:"language,omitempty" db:"language"`
	Title       string `json:"title,omitempty" db:"title"`
	URL         string `json:"url,omitempty" db:"url"`
	Topic       string `json:"topic,omitempty" db:"topic"`
	Subtopic    string `json:"subtopic,omitempty" db:"subtopic"`
}

// ValidID reports whether id has the fixed record ID shape.
func ValidID(id string) bool {
	return id != "" && len(id) == IDLength
}

// Field returns the value of the named field and whether it is present (non-empty).
func (r *Record) Field(name string) (string, bool) {
	var v string
	switch name {
	case FieldID:
		v = r.ID
	case FieldText:
		v = r.Text
	case FieldPublishedAt:
		v = r.PublishedAt
	case FieldLanguage:
		v = r.Language
	case FieldTitle:
		v = r.Title
	case FieldURL:
		v = r.URL
	case FieldTopic:
		v = r.Topic
	case FieldSubtopic:
		v = r.Subtopic
	default:
		return "", false
	}
	return v, v != ""
}
