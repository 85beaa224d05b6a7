package main

import (
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

var (
	mockScores = []float64{5.4, 6.1, 6.9, 7.3, 7.8, 8.2, 8.7, 9.1}

	mockDiagnoses = []string{
		"The ad promises a discount the landing page only mentions below the fold.",
		"Headline and offer match; the call to action wording differs.",
		"The ad targets beginners while the page speaks to experienced buyers.",
	}

	mockSuggestions = []string{
		"Repeat the ad headline as the landing page H1",
		"Show the discount in the first screen",
		"Use the same call to action on both",
		"Mirror the ad imagery in the hero section",
		"State the shipping terms next to the price",
	}
)

// mockAnalysis returns a funnel analysis as the JSON text a model would
// produce.
func mockAnalysis() string {
	n := 2 + rand.IntN(3)
	suggestions := make([]string, n)
	for i := range suggestions {
		suggestions[i] = mockSuggestions[rand.IntN(len(mockSuggestions))]
	}

	b, _ := json.Marshal(map[string]any{
		"funnelCoherenceScore": mockScores[rand.IntN(len(mockScores))],
		"adDiagnosis":          mockDiagnoses[rand.IntN(len(mockDiagnoses))],
		"landingPageDiagnosis": mockDiagnoses[rand.IntN(len(mockDiagnoses))],
		"syncSuggestions":      suggestions,
		"optimizedAd":          "Limited offer: the same deal you see here, waiting on our page.",
	})
	return string(b)
}

// completionText is the text of one mock completion, shaped by the
// malformed and fenced rates.
func completionText(cfg Config) string {
	switch {
	case roll(cfg.MalformedRate):
		return "I'm sorry, I can't help with that analysis right now."
	case roll(cfg.FencedRate):
		return "```json\n" + mockAnalysis() + "\n```"
	default:
		return mockAnalysis()
	}
}

// approxTokens estimates a token count for usage blocks.
func approxTokens(s string) int {
	return (len(s) + 3) / 4
}

// applyLatency sleeps for the configured latency.
func applyLatency(cfg Config) {
	if cfg.LatencyMS > 0 {
		time.Sleep(time.Duration(cfg.LatencyMS) * time.Millisecond)
	}
}

// shouldError returns true if this request should simulate an error.
func shouldError(cfg Config) bool {
	return roll(cfg.ErrorRate)
}

func roll(rate float64) bool {
	if rate <= 0 {
		return false
	}
	return rand.Float64() < rate
}

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the OpenAI-style error envelope.
func writeError(w http.ResponseWriter, status int, msg, typ string) {
	writeJSON(w, status, map[string]any{"error": map[string]string{
		"message": msg,
		"type":    typ,
		"code":    strings.ToLower(strings.ReplaceAll(typ, " ", "_")),
	}})
}
