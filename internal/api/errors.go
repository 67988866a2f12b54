package api

import (
	"fmt"

	"mastertrade/internal/domain"
)

// errUnknownStrategy and errInvalidTransition back the plain-error return
// path transitionStrategy uses; handlers translate them to HTTP status
// codes themselves rather than writing the response here, the way the
// teacher's SafeError helpers keep response-writing out of business logic
// but still centralize the "don't leak internals" message shape.
func errUnknownStrategy(id string) error {
	return fmt.Errorf("unknown strategy %q", id)
}

func errInvalidTransition(from, to domain.StrategyStatus) error {
	return fmt.Errorf("cannot transition strategy from %s to %s", from, to)
}
