package routing

import "errors"

var (
	// ErrNoPathFound is returned when a path to the target destination
	// does not exist in the graph under the active constraints.
	ErrNoPathFound = errors.New("unable to find a path to destination")

	// ErrCLTVExceeded is returned when the only candidate paths to the
	// destination exceed the sender's total time lock budget.
	ErrCLTVExceeded = errors.New("path total time lock exceeds limit")

	// ErrCandidateBudgetExhausted is returned by a session once it has
	// handed out as many candidate routes as the payment is allowed to
	// attempt.
	ErrCandidateBudgetExhausted = errors.New("candidate route budget " +
		"exhausted")

	// ErrSameNode is returned when the source and destination of a query
	// coincide.
	ErrSameNode = errors.New("source and destination node are the same")

	// ErrMaxHopsExceeded is returned when route construction is handed a
	// path that spans more hops than permitted.
	ErrMaxHopsExceeded = errors.New("potential path has too many hops")
)
