package errortypes

// Severity tells whether an error cost a bidder its answer or was only worked around.
type Severity int

const (
	SeverityUnknown Severity = iota

	// SeverityFatal errors lose a bidder's answer for a placement: timeouts, failures and malformed bids.
	SeverityFatal

	// SeverityWarning errors leave the auction running, for example a skipped bidder or a late response.
	SeverityWarning
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "fatal"
	case SeverityWarning:
		return "warning"
	}
	return "unknown"
}

// ReadSeverity returns the severity of err. Errors which don't come from this package count as fatal.
func ReadSeverity(err error) Severity {
	if s, ok := err.(Coder); ok {
		return s.Severity()
	}
	return SeverityFatal
}

// IsWarning returns true if err is labeled with SeverityWarning.
func IsWarning(err error) bool {
	return ReadSeverity(err) == SeverityWarning
}

// WarningOnly returns a new error list with only the warning severity errors.
func WarningOnly(errs []error) []error {
	warnings := make([]error, 0, len(errs))
	for _, err := range errs {
		if IsWarning(err) {
			warnings = append(warnings, err)
		}
	}
	return warnings
}
