// Package errs implements the error taxonomy from SPEC_FULL.md §8: a small
// set of sentinel tags that every component wraps its failures in, so
// callers can branch on retry/breaker/alert policy with errors.Is instead of
// string matching.
package errs

import "errors"

// Tag is a classification from the error handling design.
type Tag error

var (
	// TransientNetwork covers timeouts and upstream 5xx. Retried with
	// backoff up to 3 attempts; counts toward the circuit breaker.
	TransientNetwork Tag = errors.New("transient: network")

	// TransientThrottled covers HTTP 429 or a local rate-limiter rejection.
	// Sleeps per the adaptive rule; does not count toward the breaker.
	TransientThrottled Tag = errors.New("transient: throttled")

	// PermanentClient covers non-throttle 4xx responses. Logged, not
	// retried, does not count toward the breaker.
	PermanentClient Tag = errors.New("permanent: client")

	// PermanentParse covers malformed upstream payloads. Logged with a
	// sample, not retried, no breaker impact, message dropped.
	PermanentParse Tag = errors.New("permanent: parse")

	// InfrastructureStore covers an unavailable DB/cache/broker. Retried
	// once; if still failing the component self-degrades.
	InfrastructureStore Tag = errors.New("infrastructure: store")

	// InvariantViolation covers a broken system invariant (e.g. activating
	// beyond MAX_ACTIVE_STRATEGIES, an out-of-order state transition).
	// Fatal for the affected operation, surfaced to alerts.
	InvariantViolation Tag = errors.New("invariant: violation")

	// CircuitOpen is raised by a breaker rejecting a call while open.
	CircuitOpen Tag = errors.New("circuit: open")

	// ConfigInvalid is startup-fatal.
	ConfigInvalid Tag = errors.New("config: invalid")
)

// Wrap ties err to a classification tag so errors.Is(wrapped, tag) succeeds
// while preserving err's message via %w-style unwrapping.
func Wrap(tag Tag, err error) error {
	if err == nil {
		return nil
	}
	return &tagged{tag: tag, err: err}
}

type tagged struct {
	tag Tag
	err error
}

func (t *tagged) Error() string { return t.err.Error() }
func (t *tagged) Unwrap() error { return t.err }
func (t *tagged) Is(target error) bool { return target == t.tag }

// Retryable reports whether err's tag permits an automatic retry.
func Retryable(err error) bool {
	return errors.Is(err, TransientNetwork) || errors.Is(err, TransientThrottled) || errors.Is(err, InfrastructureStore)
}

// CountsTowardBreaker reports whether err should increment a collector's
// consecutive-failure counter.
func CountsTowardBreaker(err error) bool {
	return errors.Is(err, TransientNetwork)
}
