// Package funnel holds the domain types of the ad/landing-page coherence
// analysis: the inbound request, the analysis result and its structural
// validation, the prompt sent to providers, and the degraded results used
// when no provider answer is usable.
package funnel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ServiceName is the logical service key used for model lookup, cache keys,
// quota accounting and usage records.
const ServiceName = "funnel_analysis"

const (
	DefaultMinTextLength = 10
	DefaultMaxTextLength = 10_000
)

// Limits bounds the accepted text length, counted in characters.
// The minimum applies to the trimmed text, the maximum to the raw text.
type Limits struct {
	MinLength int
	MaxLength int
}

func (l Limits) withDefaults() Limits {
	if l.MinLength <= 0 {
		l.MinLength = DefaultMinTextLength
	}
	if l.MaxLength <= 0 {
		l.MaxLength = DefaultMaxTextLength
	}
	return l
}

// Request is one analysis request: the ad copy and the landing page copy.
type Request struct {
	AdText          string `json:"adText"`
	LandingPageText string `json:"landingPageText"`
}

// ParseRequest decodes and validates a raw JSON body.
// Every failure is a *ValidationError.
func ParseRequest(body []byte, limits Limits) (Request, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return Request{}, &ValidationError{Message: "request body is empty"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return Request{}, &ValidationError{Message: "invalid JSON body"}
	}

	var req Request
	var err error
	if req.AdText, err = stringField(fields, "adText"); err != nil {
		return Request{}, err
	}
	if req.LandingPageText, err = stringField(fields, "landingPageText"); err != nil {
		return Request{}, err
	}

	if err := req.Validate(limits); err != nil {
		return Request{}, err
	}
	return req, nil
}

func stringField(fields map[string]json.RawMessage, name string) (string, error) {
	raw, ok := fields[name]
	if !ok || string(raw) == "null" {
		return "", &ValidationError{Field: name, Message: "is required"}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", &ValidationError{Field: name, Message: "must be a string"}
	}
	return s, nil
}

// Validate enforces the length limits on both texts.
func (r Request) Validate(limits Limits) error {
	limits = limits.withDefaults()
	if err := checkText("adText", r.AdText, limits); err != nil {
		return err
	}
	return checkText("landingPageText", r.LandingPageText, limits)
}

func checkText(field, text string, limits Limits) error {
	trimmed := utf8.RuneCountInString(strings.TrimSpace(text))
	if trimmed == 0 {
		return &ValidationError{Field: field, Message: "is required"}
	}
	if trimmed < limits.MinLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must have at least %d characters", limits.MinLength),
		}
	}
	if utf8.RuneCountInString(text) > limits.MaxLength {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("must have at most %d characters", limits.MaxLength),
		}
	}
	return nil
}
