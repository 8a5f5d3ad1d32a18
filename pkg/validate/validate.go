// Package validate bounds-checks and sanitizes every external input before
// it reaches the storage or search layers. All functions are pure: their
// only side effect is constructing a structured error.
//
// Each failure carries an explicit error kind chosen at the check site, so
// callers never have to classify failures from message text.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/papercomputeco/engram/pkg/errkind"
)

// Field limits. These are part of the tool-call contract.
const (
	MaxAgentLen   = 50
	MaxUserLen    = 50
	MaxTopics     = 20
	MaxTopicLen   = 30
	MaxContentLen = 100000
	MaxKeywords   = 10
	MaxKeywordLen = 50
	MaxRecallIDs  = 50
)

var (
	memoryIDPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)
	badFilenameChar = regexp.MustCompile(`[<>:"|?*]`)
	filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

	// Windows device names are rejected regardless of host platform so a
	// store directory stays portable across checkouts.
	reservedFilenames = map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
)

// MemoryInput is a validated, sanitized remember payload. The sanitized
// values are what the storage layer persists.
type MemoryInput struct {
	Agent   string
	User    string
	Topics  []string
	Content string
}

// Memory validates and sanitizes the remember payload. Returns the
// sanitized input, or a structured validation error and no side effects.
func Memory(agent, user string, topics []string, content string) (*MemoryInput, *errkind.Error) {
	fail := func(code errkind.Code, detail string) *errkind.Error {
		return errkind.Validation(code, "Input validation failed: "+detail).WithContext(map[string]any{
			"operation":      "validate_memory_input",
			"topics_count":   len(topics),
			"content_length": len(content),
		})
	}

	agent = strings.TrimSpace(agent)
	if agent == "" {
		return nil, fail(errkind.CodeValidationGeneral, "Agent name cannot be empty")
	}
	if utf8.RuneCountInString(agent) > MaxAgentLen {
		return nil, fail(errkind.CodeValidationGeneral, "Agent name must be 50 characters or less")
	}
	sanitizedAgent, err := SanitizeString(agent, "agent name")
	if err != nil {
		return nil, fail(errkind.CodeValidationGeneral, "Agent name validation failed: "+err.Error())
	}

	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fail(errkind.CodeValidationGeneral, "User identifier cannot be empty")
	}
	if utf8.RuneCountInString(user) > MaxUserLen {
		return nil, fail(errkind.CodeValidationGeneral, "User identifier must be 50 characters or less")
	}
	sanitizedUser, err := SanitizeString(user, "user identifier")
	if err != nil {
		return nil, fail(errkind.CodeValidationGeneral, "User identifier validation failed: "+err.Error())
	}

	if len(topics) == 0 {
		return nil, fail(errkind.CodeInvalidTopics, "At least one topic is required")
	}
	if len(topics) > MaxTopics {
		return nil, fail(errkind.CodeInvalidTopics, "Maximum 20 topics allowed")
	}
	sanitizedTopics := make([]string, 0, len(topics))
	for i, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic == "" {
			return nil, fail(errkind.CodeInvalidTopics, fmt.Sprintf("Topic %d cannot be empty", i+1))
		}
		if utf8.RuneCountInString(topic) > MaxTopicLen {
			return nil, fail(errkind.CodeInvalidTopics, fmt.Sprintf("Topic %d must be 30 characters or less", i+1))
		}
		sanitized, err := SanitizeString(topic, fmt.Sprintf("topic %d", i+1))
		if err != nil {
			return nil, fail(errkind.CodeInvalidTopics, fmt.Sprintf("Topic %d validation failed: %s", i+1, err.Error()))
		}
		sanitizedTopics = append(sanitizedTopics, sanitized)
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fail(errkind.CodeInvalidContent, "Content cannot be empty")
	}
	if utf8.RuneCountInString(content) > MaxContentLen {
		return nil, fail(errkind.CodeInvalidContent, "Content must be 100,000 characters or less")
	}
	sanitizedContent, err := SanitizeString(content, "content")
	if err != nil {
		return nil, fail(errkind.CodeInvalidContent, "Content validation failed: "+err.Error())
	}

	return &MemoryInput{
		Agent:   sanitizedAgent,
		User:    sanitizedUser,
		Topics:  sanitizedTopics,
		Content: sanitizedContent,
	}, nil
}

// Keywords validates and sanitizes think keywords, returning the sanitized
// list.
func Keywords(keywords []string) ([]string, *errkind.Error) {
	fail := func(detail string) *errkind.Error {
		return errkind.Validation(errkind.CodeInvalidKeywords, "Input validation failed: "+detail).WithContext(map[string]any{
			"operation":      "validate_search_input",
			"keywords_count": len(keywords),
		})
	}

	if len(keywords) == 0 {
		return nil, fail("At least one keyword is required")
	}
	if len(keywords) > MaxKeywords {
		return nil, fail("Maximum 10 keywords allowed")
	}

	sanitized := make([]string, 0, len(keywords))
	for i, keyword := range keywords {
		keyword = strings.TrimSpace(keyword)
		if keyword == "" {
			return nil, fail(fmt.Sprintf("Keyword %d cannot be empty", i+1))
		}
		if utf8.RuneCountInString(keyword) > MaxKeywordLen {
			return nil, fail(fmt.Sprintf("Keyword %d must be 50 characters or less", i+1))
		}
		clean, err := SanitizeString(keyword, fmt.Sprintf("keyword %d", i+1))
		if err != nil {
			return nil, fail(fmt.Sprintf("Keyword %d validation failed: %s", i+1, err.Error()))
		}
		sanitized = append(sanitized, clean)
	}

	return sanitized, nil
}

// RecallIDs validates recall ids, returning the trimmed list.
func RecallIDs(memoryIDs []string) ([]string, *errkind.Error) {
	fail := func(detail string) *errkind.Error {
		return errkind.Validation(errkind.CodeInvalidMemoryID, "Input validation failed: "+detail).WithContext(map[string]any{
			"operation":        "validate_recall_input",
			"memory_ids_count": len(memoryIDs),
		})
	}

	if len(memoryIDs) == 0 {
		return nil, fail("At least one memory ID is required")
	}
	if len(memoryIDs) > MaxRecallIDs {
		return nil, fail("Maximum 50 memory IDs allowed")
	}

	trimmed := make([]string, 0, len(memoryIDs))
	for i, id := range memoryIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, fail(fmt.Sprintf("Memory ID %d cannot be empty", i+1))
		}
		if !MemoryID(id) {
			return nil, fail(fmt.Sprintf("Memory ID %d has invalid format (must be 8 hexadecimal characters): %s", i+1, id))
		}
		trimmed = append(trimmed, id)
	}

	return trimmed, nil
}

// MemoryID reports whether id matches the 8-character lowercase-hex format.
func MemoryID(id string) bool {
	return memoryIDPattern.MatchString(strings.TrimSpace(id))
}

// FilenameSafe reports whether name is safe for filesystem operations:
// no path traversal, no reserved device names, no disallowed characters,
// and at most 255 characters.
func FilenameSafe(name string) bool {
	if strings.TrimSpace(name) == "" {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	if badFilenameChar.MatchString(name) {
		return false
	}
	base := strings.ToUpper(strings.SplitN(name, ".", 2)[0])
	if reservedFilenames[base] {
		return false
	}
	if len(name) > 255 {
		return false
	}
	return filenamePattern.MatchString(name)
}
