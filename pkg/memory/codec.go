package memory

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// delimiter opens and closes the metadata block.
const delimiter = "---\n"

// timestampLayouts are accepted on decode, most specific first. Encode
// always writes RFC 3339; the bare layouts cover files written by other
// implementations that omit the zone offset.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// Encode renders the memory as a markdown document: a delimited metadata
// block, a blank line, then the raw content.
func Encode(m *Memory) []byte {
	var b strings.Builder
	b.WriteString(delimiter)
	b.WriteString("id: " + m.ID + "\n")
	b.WriteString("timestamp: " + m.Timestamp.Format(time.RFC3339Nano) + "\n")
	b.WriteString("agent: " + m.Agent + "\n")
	b.WriteString("user: " + m.User + "\n")
	b.WriteString("topics: " + encodeTopics(m.Topics) + "\n")
	b.WriteString(delimiter)
	b.WriteString("\n")
	b.WriteString(m.Content)
	return []byte(b.String())
}

// Decode parses a memory document. It requires the document to start with
// the delimiter and to contain the closing delimiter; each metadata line is
// parsed as `key: value` and lines without a colon are ignored. Malformed
// documents decode to nil — this function never fails with an error.
func Decode(data []byte) *Memory {
	doc := string(data)
	if !strings.HasPrefix(doc, delimiter) {
		return nil
	}

	parts := strings.SplitN(doc, delimiter, 3)
	if len(parts) < 3 {
		return nil
	}

	m := &Memory{Content: strings.TrimSpace(parts[2])}

	for _, line := range strings.Split(strings.TrimSpace(parts[1]), "\n") {
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])

		switch key {
		case "id":
			m.ID = value
		case "timestamp":
			m.Timestamp = parseTimestamp(value)
		case "agent":
			m.Agent = value
		case "user":
			m.User = value
		case "topics":
			m.Topics = decodeTopics(value)
		}
	}

	return m
}

// encodeTopics renders topics as a bracketed list of quoted strings,
// e.g. `["python", "testing"]`.
func encodeTopics(topics []string) string {
	quoted := make([]string, len(topics))
	for i, t := range topics {
		quoted[i] = strconv.Quote(t)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// decodeTopics parses a bracketed topic list. Strict structured parsing is
// attempted first; on malformure it falls back to comma-split-and-trim so a
// hand-edited file still yields its topics.
func decodeTopics(value string) []string {
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return nil
	}

	var topics []string
	if err := json.Unmarshal([]byte(value), &topics); err == nil {
		return topics
	}

	inner := value[1 : len(value)-1]
	var out []string
	for _, item := range strings.Split(inner, ",") {
		item = strings.Trim(strings.TrimSpace(item), `"'`)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parseTimestamp tries each accepted layout. Unparseable timestamps decode
// to the zero time rather than failing the whole document; downstream
// recency scoring treats zero as "very old".
func parseTimestamp(value string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
