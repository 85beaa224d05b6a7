package main

import (
	"net/http"
	"strings"
)

// newGeminiHandler returns an http.Handler that simulates the Gemini
// generateContent API.
func newGeminiHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	// POST /v1beta/models/{model}:generateContent
	mux.HandleFunc("/v1beta/models/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/v1beta/models/")
		model, action, ok := strings.Cut(rest, ":")
		if !ok || action != "generateContent" || r.Method != http.MethodPost {
			writeGeminiError(w, http.StatusNotFound, "unsupported path "+r.URL.Path, "NOT_FOUND")
			return
		}
		if r.URL.Query().Get("key") == "" && r.Header.Get("X-Goog-Api-Key") == "" {
			writeGeminiError(w, http.StatusUnauthorized, "API key not valid", "UNAUTHENTICATED")
			return
		}
		applyLatency(cfg)
		if shouldError(cfg) {
			writeGeminiError(w, http.StatusInternalServerError, "mock internal server error", "INTERNAL")
			return
		}

		content := completionText(cfg)
		writeJSON(w, http.StatusOK, map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]string{{"text": content}},
				},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{
				"promptTokenCount":     200,
				"candidatesTokenCount": approxTokens(content),
				"totalTokenCount":      200 + approxTokens(content),
			},
			"modelVersion": model,
		})
	})

	mux.HandleFunc("/v1beta/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"models": []map[string]any{
				{"name": "models/gemini-1.5-flash", "displayName": "Gemini 1.5 Flash"},
			},
		})
	})

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeGeminiError(w, http.StatusNotFound, "not found", "NOT_FOUND")
	})

	return mux
}

func writeGeminiError(w http.ResponseWriter, status int, msg, grpcStatus string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{"code": status, "message": msg, "status": grpcStatus},
	})
}
