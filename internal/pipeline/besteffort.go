package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// bestEffort runs fn and logs, rather than returns, its error or panic.
// Used for stages whose failure must not affect the response.
func bestEffort(ctx context.Context, log *slog.Logger, stage string, fn func(context.Context) error) {
	defer func() {
		if rec := recover(); rec != nil {
			log.ErrorContext(ctx, "best_effort_panic",
				slog.String("stage", stage),
				slog.String("panic", fmt.Sprint(rec)),
			)
		}
	}()
	if err := fn(ctx); err != nil {
		log.WarnContext(ctx, "best_effort_failed",
			slog.String("stage", stage),
			slog.String("error", err.Error()),
		)
	}
}
