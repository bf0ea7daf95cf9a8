// Package site holds the static page content: the about text, skills,
// experience and education entries. It is read from TOML.
package site

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed content.toml
var defaultContent []byte

// ErrUnknownFormat is returned for a resume format that is not offered.
var ErrUnknownFormat = errors.New("site: unknown resume format")

type Stat struct {
	Title string `toml:"title"`
	Value string `toml:"value"`
}

type Social struct {
	Name string `toml:"name"`
	URL  string `toml:"url"`
}

// Entry is one experience or education item.
type Entry struct {
	Role         string   `toml:"role"`
	Organization string   `toml:"organization"`
	Duration     string   `toml:"duration"`
	Logo         string   `toml:"logo"`
	Description  string   `toml:"description"`
	Bullets      []string `toml:"bullets"`
}

// Content is everything on the page that does not come from the project
// feed.
type Content struct {
	Name       string   `toml:"name"`
	Role       string   `toml:"role"`
	Tagline    string   `toml:"tagline"`
	Email      string   `toml:"email"`
	Phone      string   `toml:"phone"`
	Location   string   `toml:"location"`
	About      []string `toml:"about"`
	Skills     []string `toml:"skills"`
	Stats      []Stat   `toml:"stats"`
	Socials    []Social `toml:"socials"`
	Experience []Entry  `toml:"experience"`
	Education  []Entry  `toml:"education"`
}

// Default returns the built-in content.
func Default() Content {
	c, err := parse(defaultContent)
	if err != nil {
		panic(fmt.Sprintf("site: embedded content: %v", err))
	}
	return c
}

// Load reads content from path. An empty path returns Default.
func Load(path string) (Content, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Content{}, fmt.Errorf("read site content: %w", err)
	}
	c, err := parse(data)
	if err != nil {
		return Content{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func parse(data []byte) (Content, error) {
	var c Content
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Content{}, err
	}
	if strings.TrimSpace(c.Name) == "" {
		return Content{}, errors.New("name is required")
	}
	return c, nil
}

// ResumeName is the download name offered for format, e.g.
// "Zach_Kordas-Potter_Resume.pdf".
func (c Content) ResumeName(format string) string {
	return strings.Join(strings.Fields(c.Name), "_") + "_Resume." + format
}

// ResumeFile resolves the resume for format under dir. Files are stored as
// resume.<format>.
func ResumeFile(dir, format string, formats []string) (string, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if !slices.Contains(formats, format) {
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	path := filepath.Join(dir, "resume."+format)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("resume %s: %w", format, err)
	}
	return path, nil
}
