package gitsync

import "github.com/papercomputeco/engram/pkg/errkind"

// Result is the structured outcome of a sync operation. Results are
// informational; sync failures never propagate as errors to the caller
// that stored the memory.
type Result struct {
	// Success is true when the operation achieved its goal, including
	// degraded outcomes such as a commit that could not be pushed.
	Success bool `json:"success"`

	// Message is the human-readable outcome description.
	Message string `json:"message"`

	// Operation names the sync operation, e.g. "commit_memory".
	Operation string `json:"operation"`

	// Attempts is how many tries the slowest retried step took.
	Attempts uint `json:"attempts"`

	// ErrorCode is set on failure and on degraded success.
	ErrorCode errkind.Code `json:"error_code,omitempty"`
}

func success(op, msg string, attempts uint) Result {
	return Result{Success: true, Message: msg, Operation: op, Attempts: attempts}
}

func failure(op, msg string, attempts uint, code errkind.Code) Result {
	return Result{Success: false, Message: msg, Operation: op, Attempts: attempts, ErrorCode: code}
}
