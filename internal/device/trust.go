package device

import (
	"context"
	"time"
)

// trustCallTimeout bounds each bookkeeping call. The calls are fire-and-
// forget; a slow backend must not keep goroutines alive indefinitely.
const trustCallTimeout = 30 * time.Second

// TrustBackend is the slice of the backend client used for device-trust
// bookkeeping.
type TrustBackend interface {
	ManagePersistentSession(ctx context.Context, accessToken, fingerprint string, persist bool) error
	TrustDevice(ctx context.Context, accessToken, fingerprint, name string) error
}

// Logger is the logging surface the reporter needs.
type Logger interface {
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// TrustReporter performs device-trust bookkeeping after sign-in as an
// explicitly detached background task. Failures are logged and
// discarded: trust bookkeeping must never affect authentication state
// or surface to the user.
type TrustReporter struct {
	backend TrustBackend
	logger  Logger
}

// NewTrustReporter creates a TrustReporter.
func NewTrustReporter(backend TrustBackend, logger Logger) *TrustReporter {
	return &TrustReporter{backend: backend, logger: logger}
}

// ReportSignIn dispatches the post-sign-in bookkeeping calls in a
// detached goroutine and returns immediately. The done channel closes
// when the calls settle; callers other than tests ignore it.
func (t *TrustReporter) ReportSignIn(accessToken string) <-chan struct{} {
	done := make(chan struct{})

	attrs := Collect()
	fingerprint := attrs.Fingerprint()

	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), trustCallTimeout)
		defer cancel()

		if err := t.backend.ManagePersistentSession(ctx, accessToken, fingerprint, true); err != nil {
			t.logger.Warn("persistent session bookkeeping failed", "error", err)
		}
		if err := t.backend.TrustDevice(ctx, accessToken, fingerprint, attrs.Hostname); err != nil {
			t.logger.Warn("device trust bookkeeping failed", "error", err)
		}

		t.logger.Debug("device trust bookkeeping settled")
	}()

	return done
}
