package lifecycle

import "context"

// Severity ranks an alert for presentation
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Alert is a non-blocking user-facing notice raised by the controller.
// Everything except retry exhaustion surfaces this way; exhaustion
// goes through the blocking DecisionFunc instead.
type Alert struct {
	Severity Severity
	Message  string
}

// Decision is the user's answer after refresh retries are exhausted
type Decision int

const (
	// DecisionRetry resets the retry counter and tries again
	DecisionRetry Decision = iota

	// DecisionLogout clears auth and purges the app cache
	DecisionLogout
)

// DecisionFunc presents the blocking retry-or-logout choice. It runs
// on the controller's event loop; implementations block until the
// user answers.
type DecisionFunc func(ctx context.Context) Decision
