package observability

import (
	"context"
	"log/slog"
)

// Audit writes a structured audit line. The durable audit trail lives in the
// security_events table; this is the operator-facing mirror of it.
func Audit(ctx context.Context, event string, attrs ...any) {
	base := []any{"event", event}
	base = append(base, attrs...)
	slog.InfoContext(ctx, "audit", base...)
}
