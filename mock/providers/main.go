// Command providers runs lightweight HTTP mock servers that simulate the
// completion APIs the funnel optimizer calls. Every completion is a funnel
// analysis, so the service can be exercised end to end without real
// credentials.
//
// Each provider listens on its own port:
//
//	OpenAI / OpenAI-compat  :19001
//	Anthropic               :19002
//	Gemini                  :19003
//
// Environment overrides (PORT_<PROVIDER>):
//
//	PORT_OPENAI, PORT_ANTHROPIC, PORT_GEMINI
//
// Behaviour flags (via env):
//
//	MOCK_LATENCY_MS: artificial latency added to every response (default 0)
//	MOCK_ERROR_RATE: fraction [0,1] of requests that return HTTP 500 (default 0)
//	MOCK_MALFORMED_RATE: fraction [0,1] of completions that are not analysis JSON (default 0)
//	MOCK_FENCED_RATE: fraction [0,1] of completions wrapped in a markdown fence (default 0)
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds runtime configuration shared across all mock servers.
type Config struct {
	LatencyMS     int
	ErrorRate     float64
	MalformedRate float64
	FencedRate    float64
}

func loadConfig() Config {
	var c Config
	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	c.ErrorRate = rateFromEnv("MOCK_ERROR_RATE")
	c.MalformedRate = rateFromEnv("MOCK_MALFORMED_RATE")
	c.FencedRate = rateFromEnv("MOCK_FENCED_RATE")
	return c
}

func rateFromEnv(key string) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f < 0 || f > 1 {
		return 0
	}
	return f
}

func portFromEnv(key string, defaultPort int) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return strconv.Itoa(defaultPort)
}

func startServer(name, addr string, h http.Handler, log *slog.Logger) *http.Server {
	srv := &http.Server{
		Addr:         addr,
		Handler:      h,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		log.Info("mock provider listening", slog.String("provider", name), slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("provider", name), slog.String("error", err.Error()))
		}
	}()
	return srv
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	log.Info("starting mock providers",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Float64("malformed_rate", cfg.MalformedRate),
		slog.Float64("fenced_rate", cfg.FencedRate),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{
		startServer("openai", ":"+portFromEnv("PORT_OPENAI", 19001), newOpenAIHandler(cfg), log),
		startServer("anthropic", ":"+portFromEnv("PORT_ANTHROPIC", 19002), newAnthropicHandler(cfg), log),
		startServer("gemini", ":"+portFromEnv("PORT_GEMINI", 19003), newGeminiHandler(cfg), log),
	}

	fmt.Println("READY")
	<-ctx.Done()

	log.Info("shutting down mock providers")
	if err := shutdownAll(servers, 5*time.Second); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	log.Info("mock providers stopped")
}

// shutdownAll drains every server concurrently within timeout.
func shutdownAll(servers []*http.Server, timeout time.Duration) error {
	shCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var g errgroup.Group
	for _, srv := range servers {
		g.Go(func() error { return srv.Shutdown(shCtx) })
	}
	return g.Wait()
}
