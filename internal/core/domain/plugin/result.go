package plugindomain

// Result is the structured outcome of a mutating lifecycle operation.
// Expected conditions (unknown plugin, already active, blocked by
// dependents, unresolved dependencies) travel as entries in Errors or
// Warnings rather than as returned Go errors.
type Result struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`

	// WouldActivate lists the dependencies a dry run determined would be
	// activated. It is only populated when DryRun was requested.
	WouldActivate []string `json:"wouldActivate,omitempty"`
}

// Succeeded builds a successful result, optionally carrying warnings
func Succeeded(warnings ...string) Result {
	return Result{Success: true, Warnings: warnings}
}

// Failed builds a failed result from one or more error messages
func Failed(errors ...string) Result {
	return Result{Success: false, Errors: errors}
}
