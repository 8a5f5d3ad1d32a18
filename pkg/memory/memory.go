// Package memory defines the memory record and its on-disk document form.
//
// A memory is a single stored text record: an 8-character hex id, a creation
// timestamp, the writing agent, the owning user, an ordered list of topic
// tags, and free-text content. Each memory lives in its own markdown file
// whose body opens with a delimited metadata block followed by the raw
// content.
//
// The codec in this package is deliberately tolerant: Decode never returns
// an error. Malformed documents decode to nil and the caller decides on
// recovery. Ids are the only durable reference to a memory — filenames are
// advisory and may be rewritten by repair tooling.
package memory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// filenameTimeLayout names memory files by local creation time.
const filenameTimeLayout = "20060102_150405"

// Memory is the fundamental unit: one stored text record with metadata.
type Memory struct {
	// ID is an 8-character lowercase hexadecimal identifier, unique within
	// the store. Immutable once assigned.
	ID string `json:"id"`

	// Timestamp is the creation time, set once at write time.
	Timestamp time.Time `json:"timestamp"`

	// Agent identifies the writer.
	Agent string `json:"agent"`

	// User identifies the owning user.
	User string `json:"user"`

	// Topics are short tags used as search boosters and categorization.
	Topics []string `json:"topics"`

	// Content is the free-text body.
	Content string `json:"content"`
}

// NewID generates an 8-character lowercase hex identifier from a random
// UUID. Collision probability is treated as negligible and is not checked.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Filename returns the advisory storage filename for the memory,
// `{YYYYMMDD_HHMMSS}_{id}.md`. The id inside the document is authoritative;
// the filename exists for human browsing and rough chronological sorting.
func (m *Memory) Filename() string {
	return fmt.Sprintf("%s_%s.md", m.Timestamp.Format(filenameTimeLayout), m.ID)
}
