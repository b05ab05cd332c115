package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty DSN disables
// reporting entirely, which is how local development runs.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry drains buffered events before the process exits. Called from
// the runtime's Close so shutdown does not drop pending captures.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
