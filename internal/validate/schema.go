// Package validate checks parsed request bodies against declarative schemas.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/antigravity/summarizer-gateway/internal/apierr"
	"github.com/go-playground/validator/v10"
)

// Shape is the expected form of a field value.
type Shape string

const (
	ShapeString Shape = "string"
	ShapeURL    Shape = "url"
)

// Field describes one expected body field.
type Field struct {
	Name     string
	Required bool
	Shape    Shape
	Sanitize bool
}

// Schema is an ordered list of fields. Fields are checked in order and the
// first failure is reported.
type Schema struct {
	Fields []Field
}

var fieldValidator = validator.New()

// ParseBody decodes a JSON object body.
func ParseBody(raw []byte) (map[string]any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, apierr.New(apierr.MalformedBody, "Request body must be a JSON object")
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil || body == nil {
		return nil, apierr.Wrap(apierr.MalformedBody, "Request body must be a JSON object", err)
	}
	return body, nil
}

// Apply validates body and returns a copy with sanitized fields normalized.
// Fields the schema does not mention pass through untouched.
func (s Schema) Apply(body map[string]any) (map[string]any, error) {
	if body == nil {
		return nil, apierr.New(apierr.MalformedBody, "Request body must be a JSON object")
	}

	out := make(map[string]any, len(body))
	for k, v := range body {
		out[k] = v
	}

	for _, f := range s.Fields {
		raw, present := body[f.Name]
		if !present || raw == nil {
			if f.Required {
				return nil, missing(f)
			}
			continue
		}

		str, ok := raw.(string)
		if !ok {
			return nil, apierr.Field(apierr.InvalidField, f.Name,
				fmt.Sprintf("%s must be a %s", f.Name, f.shape()))
		}
		if f.Sanitize {
			str = Sanitize(str)
			out[f.Name] = str
		}
		if strings.TrimSpace(str) == "" {
			if f.Required {
				return nil, missing(f)
			}
			continue
		}

		if err := checkShape(f, str); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (f Field) shape() Shape {
	if f.Shape == "" {
		return ShapeString
	}
	return f.Shape
}

func missing(f Field) error {
	return apierr.Field(apierr.MissingField, f.Name, fmt.Sprintf("%s is required", f.Name))
}

func checkShape(f Field, value string) error {
	switch f.shape() {
	case ShapeURL:
		if !IsAbsoluteURL(strings.TrimSpace(value)) {
			return apierr.Field(apierr.InvalidField, f.Name,
				fmt.Sprintf("%s must be a valid absolute URL", f.Name))
		}
	}
	return nil
}

// IsAbsoluteURL reports whether s is a URL with both scheme and host.
func IsAbsoluteURL(s string) bool {
	if err := fieldValidator.Var(s, "required,url"); err != nil {
		return false
	}
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Sanitize trims surrounding whitespace and drops control characters.
func Sanitize(s string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s))
}
