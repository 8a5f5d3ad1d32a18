// Package errkind defines the structured error vocabulary shared by the
// storage, search, and sync layers. Every failure that can reach a caller
// carries a stable machine-readable code and a category, assigned at the
// point of failure rather than inferred from message text.
package errkind

import (
	"errors"
	"fmt"
	"time"
)

// Category groups error codes by subsystem.
type Category string

const (
	CategoryValidation      Category = "validation"
	CategoryMemoryOperation Category = "memory_operation"
	CategoryGitSync         Category = "git_sync"
	CategoryConfiguration   Category = "configuration"
	CategoryFileIO          Category = "file_io"
	CategorySystem          Category = "system"
)

// Code is a stable machine-readable error identifier. Codes are part of the
// tool-call contract and must not change between releases.
type Code string

const (
	// Validation codes.
	CodeInvalidMemoryID   Code = "VALIDATION_INVALID_MEMORY_ID"
	CodeInvalidKeywords   Code = "VALIDATION_INVALID_KEYWORDS"
	CodeInvalidTopics     Code = "VALIDATION_INVALID_TOPICS"
	CodeInvalidContent    Code = "VALIDATION_INVALID_CONTENT"
	CodeValidationGeneral Code = "VALIDATION_GENERAL_ERROR"

	// Memory operation codes.
	CodeMemoryNotFound         Code = "MEMORY_NOT_FOUND"
	CodeMemoryPermissionDenied Code = "MEMORY_PERMISSION_DENIED"
	CodeMemoryIOError          Code = "MEMORY_IO_ERROR"
	CodeMemoryWriteError       Code = "MEMORY_WRITE_ERROR"
	CodeMemoryLockTimeout      Code = "MEMORY_LOCK_TIMEOUT"
	CodeMemoryCorrupted        Code = "MEMORY_CORRUPTED"
	CodeMemoryEncodingError    Code = "MEMORY_ENCODING_ERROR"
	CodeMemoryGeneral          Code = "MEMORY_GENERAL_ERROR"

	// Git sync codes.
	CodeGitSyncDisabled      Code = "GIT_SYNC_DISABLED"
	CodeGitInitFailed        Code = "GIT_INIT_FAILED"
	CodeGitCloneFailed       Code = "GIT_CLONE_FAILED"
	CodeGitCommandFailed     Code = "GIT_COMMAND_FAILED"
	CodeGitCommandTimeout    Code = "GIT_COMMAND_TIMEOUT"
	CodeGitMaxRetries        Code = "GIT_COMMAND_MAX_RETRIES_EXCEEDED"
	CodeGitRemoteConfig      Code = "GIT_REMOTE_CONFIG_FAILED"
	CodeGitNoLocalRepo       Code = "NO_LOCAL_REPO"
	CodeGitNoRemoteURL       Code = "NO_REMOTE_URL"
	CodeGitLocalRepoExists   Code = "LOCAL_REPO_EXISTS"
	CodeGitTargetDirNotEmpty Code = "TARGET_DIR_NOT_EMPTY"
	CodeGitRemoteUnreachable Code = "REMOTE_NOT_ACCESSIBLE"
	CodeGitRemoteBranch      Code = "REMOTE_BRANCH_NOT_FOUND"
	CodeGitBranchCheckout    Code = "BRANCH_CHECKOUT_FAILED"
	CodeGitBranchCreation    Code = "BRANCH_CREATION_FAILED"
	CodeGitUpstreamSetup     Code = "UPSTREAM_SETUP_FAILED"
	CodeGitFetchFailed       Code = "FETCH_FAILED"
	CodeGitPullFailed        Code = "PULL_FAILED"
	CodeGitConflictFailed    Code = "CONFLICT_RESOLUTION_FAILED"
	CodeGitMergeCommit       Code = "MERGE_COMMIT_FAILED"
	CodeGitRecoveryFailed    Code = "RECOVERY_FAILED"

	// Configuration codes.
	CodeConfigInvalid Code = "CONFIG_INVALID"
)

// Error is the structured error shape every subsystem returns across the
// tool-call boundary.
type Error struct {
	// Summary is a short human label for the failure class, e.g.
	// "Memory storage failed".
	Summary string `json:"error"`
	// Code identifies the exact failure condition.
	Code Code `json:"error_code"`
	// Message is the detailed human-readable description.
	Message string `json:"message"`
	// Timestamp is the ISO-8601 creation time of this error.
	Timestamp string `json:"timestamp"`
	// Category tags the owning subsystem.
	Category Category `json:"category"`
	// Context carries echo-back details safe to show the caller. Never
	// include raw unsanitized payloads here.
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s [%s]: %s", e.Summary, e.Code, e.Message)
}

// New constructs a structured error stamped with the current time.
func New(category Category, code Code, summary, message string) *Error {
	return &Error{
		Summary:   summary,
		Code:      code,
		Message:   message,
		Timestamp: time.Now().Format(time.RFC3339),
		Category:  category,
	}
}

// Newf is New with a formatted message.
func Newf(category Category, code Code, summary, format string, args ...any) *Error {
	return New(category, code, summary, fmt.Sprintf(format, args...))
}

// WithContext attaches echo-back context and returns the same error for
// chaining.
func (e *Error) WithContext(kv map[string]any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any, len(kv))
	}
	for k, v := range kv {
		e.Context[k] = v
	}
	return e
}

// Validation constructs a validation-category error.
func Validation(code Code, message string) *Error {
	return New(CategoryValidation, code, "Validation error", message)
}

// Memory constructs a memory-operation error.
func Memory(code Code, message string) *Error {
	return New(CategoryMemoryOperation, code, "Memory operation failed", message)
}

// GitSync constructs a git-sync error.
func GitSync(code Code, message string) *Error {
	return New(CategoryGitSync, code, "Git sync failed", message)
}

// IsCode reports whether err is, or wraps, an *Error carrying the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// FromError returns err as an *Error, or wraps it in a generic error of the
// given category when it is not already structured.
func FromError(err error, category Category, code Code, summary string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return New(category, code, summary, err.Error())
}
