package funnel

import (
	"encoding/json"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	MinScore = 0
	MaxScore = 10
)

// Result is the coherence analysis returned to the caller and stored in the
// cache.
type Result struct {
	FunnelCoherenceScore float64  `json:"funnelCoherenceScore"`
	AdDiagnosis          string   `json:"adDiagnosis"`
	LandingPageDiagnosis string   `json:"landingPageDiagnosis"`
	SyncSuggestions      []string `json:"syncSuggestions"`
	OptimizedAd          string   `json:"optimizedAd"`
}

// rawResult keeps presence information so missing fields can be told apart
// from zero values.
type rawResult struct {
	FunnelCoherenceScore *float64 `json:"funnelCoherenceScore"`
	AdDiagnosis          *string  `json:"adDiagnosis"`
	LandingPageDiagnosis *string  `json:"landingPageDiagnosis"`
	SyncSuggestions      []string `json:"syncSuggestions"`
	OptimizedAd          *string  `json:"optimizedAd"`
}

// ParseResult extracts a Result from provider output. The text may be bare
// JSON or JSON wrapped in a markdown code fence. Every failure is a
// *SchemaError.
func ParseResult(text string) (Result, error) {
	payload := extractJSON(text)
	if payload == "" {
		return Result{}, &SchemaError{Reason: "no JSON object in provider output"}
	}

	var raw rawResult
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return Result{}, &SchemaError{Reason: "decode", Err: err}
	}

	switch {
	case raw.FunnelCoherenceScore == nil:
		return Result{}, &SchemaError{Reason: "funnelCoherenceScore is missing"}
	case raw.AdDiagnosis == nil:
		return Result{}, &SchemaError{Reason: "adDiagnosis is missing"}
	case raw.LandingPageDiagnosis == nil:
		return Result{}, &SchemaError{Reason: "landingPageDiagnosis is missing"}
	case raw.SyncSuggestions == nil:
		return Result{}, &SchemaError{Reason: "syncSuggestions is missing"}
	}

	res := Result{
		FunnelCoherenceScore: *raw.FunnelCoherenceScore,
		AdDiagnosis:          *raw.AdDiagnosis,
		LandingPageDiagnosis: *raw.LandingPageDiagnosis,
		SyncSuggestions:      raw.SyncSuggestions,
	}
	if raw.OptimizedAd != nil {
		res.OptimizedAd = *raw.OptimizedAd
	}

	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Validate checks the structural invariants of a Result.
func (r Result) Validate() error {
	score := r.FunnelCoherenceScore
	if math.IsNaN(score) || math.IsInf(score, 0) || score < MinScore || score > MaxScore {
		return &SchemaError{Reason: "funnelCoherenceScore must be between 0 and 10"}
	}
	if strings.TrimSpace(r.AdDiagnosis) == "" {
		return &SchemaError{Reason: "adDiagnosis is empty"}
	}
	if strings.TrimSpace(r.LandingPageDiagnosis) == "" {
		return &SchemaError{Reason: "landingPageDiagnosis is empty"}
	}
	if len(r.SyncSuggestions) == 0 {
		return &SchemaError{Reason: "syncSuggestions is empty"}
	}
	for _, s := range r.SyncSuggestions {
		if strings.TrimSpace(s) == "" {
			return &SchemaError{Reason: "syncSuggestions contains an empty entry"}
		}
	}
	return nil
}

func extractJSON(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

// EstimateTokens approximates a token count as one token per four
// characters, rounded up.
func EstimateTokens(texts ...string) int {
	n := 0
	for _, t := range texts {
		n += utf8.RuneCountInString(t)
	}
	return (n + 3) / 4
}
