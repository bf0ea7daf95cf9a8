// Package projects holds the project record and the pure tag filter used by
// the work gallery and the project listing.
package projects

import (
	"encoding/json"
	"fmt"
)

// All is the filter selection that matches every project.
const All = "all"

// Project is one portfolio entry as read from the document store.
type Project struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Tags        []string `json:"tags"`
	Link        string   `json:"link,omitempty"`
}

// Record is the stored shape of a project, keyed externally by its id.
type Record struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Image       string   `json:"image"`
	Tags        []string `json:"tags"`
	Link        string   `json:"link,omitempty"`
}

// Decode turns one stored entry into a Project. Missing or null tags decode
// as an empty list; a value that is not a JSON object is an error.
func Decode(key string, raw json.RawMessage) (Project, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return Project{}, fmt.Errorf("decode project %q: empty value", key)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Project{}, fmt.Errorf("decode project %q: %w", key, err)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return Project{
		ID:          key,
		Title:       rec.Title,
		Description: rec.Description,
		Image:       rec.Image,
		Tags:        tags,
		Link:        rec.Link,
	}, nil
}

// Record returns the storable form of p.
func (p Project) Record() Record {
	return Record{
		Title:       p.Title,
		Description: p.Description,
		Image:       p.Image,
		Tags:        p.Tags,
		Link:        p.Link,
	}
}

// HasTag reports whether p carries tag exactly.
func (p Project) HasTag(tag string) bool {
	for _, t := range p.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Find returns the project with the given id.
func Find(list []Project, id string) (Project, bool) {
	for _, p := range list {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}
