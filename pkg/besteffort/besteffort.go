// Package besteffort isolates side effects whose failure must never affect
// the caller-visible result of a request (confirmation emails, analytics
// events). Failures are logged and swallowed.
package besteffort

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single best-effort call.
const DefaultTimeout = 10 * time.Second

// Run executes fn with a bounded timeout. An error from fn is logged at Warn
// and otherwise dropped, so one failing integration cannot cascade into an
// apparent request failure.
func Run(ctx context.Context, logger *zap.Logger, name string, fn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		logger.Warn("best-effort side effect failed", zap.String("effect", name), zap.Error(err))
	}
}
