package usage

import (
	"context"
	"log/slog"
	"strings"
)

// LogSink writes entries as structured log lines. Texts are not logged;
// only their lengths.
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	if log == nil {
		log = slog.Default()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) WriteUsage(ctx context.Context, records []Record) error {
	for _, e := range records {
		s.log.InfoContext(ctx, "usage",
			slog.String("id", e.ID.String()),
			slog.String("user_id", e.UserID),
			slog.String("service", e.Service),
			slog.String("model", e.Model),
			slog.Int("input_tokens", e.InputTokens),
			slog.Int("output_tokens", e.OutputTokens),
			slog.Float64("estimated_cost", e.EstimatedCost),
			slog.Int64("latency_ms", e.LatencyMs),
			slog.Bool("success", e.Success),
			slog.Bool("cached", e.Cached),
			slog.String("tier", e.Tier),
			slog.Time("created_at", e.CreatedAt),
		)
	}
	return nil
}

func (s *LogSink) WriteAudit(ctx context.Context, entries []AuditEntry) error {
	for _, e := range entries {
		s.log.InfoContext(ctx, "funnel_analysis",
			slog.String("id", e.ID.String()),
			slog.String("user_id", e.UserID),
			slog.Int("ad_text_len", len(e.AdText)),
			slog.Int("landing_page_text_len", len(e.LandingPageText)),
			slog.Float64("score", e.Score),
			slog.String("suggestions", strings.Join(e.Suggestions, " | ")),
			slog.Int64("processing_ms", e.ProcessingMs),
			slog.String("tier", e.Tier),
			slog.Time("created_at", e.CreatedAt),
		)
	}
	return nil
}
