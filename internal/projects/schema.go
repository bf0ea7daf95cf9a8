package projects

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/xeipuuv/gojsonschema"
)

const recordSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["title"],
  "properties": {
    "title":       {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "image":       {"type": "string"},
    "tags":        {"type": "array", "items": {"type": "string"}},
    "link":        {"type": "string"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(recordSchema)

// ValidateRecord checks a raw record from outside the process, such as an
// import file, before it is written to the store. Reads stay lenient (see
// Decode). Records built with Marshal are already typed and only need
// Validate.
func ValidateRecord(raw json.RawMessage) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("validate project record: %w", err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid project record: %s", strings.Join(msgs, "; "))
}

var validate = validator.New()

// Validate checks a record built from form input.
func (r *Record) Validate() error {
	return validate.Struct(r)
}

// Marshal validates r and returns its stored JSON form.
func (r Record) Marshal() (json.RawMessage, error) {
	if r.Tags == nil {
		r.Tags = []string{}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode project record: %w", err)
	}
	return raw, nil
}
