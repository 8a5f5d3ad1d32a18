package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/engram/pkg/memory"
)

// Recovery repairs corrupted memory files. It restores from the most recent
// backup when one exists, and otherwise rewrites the file as a minimal valid
// memory wrapping whatever content survives, keeping a .corrupted copy of
// the damaged original in the backups directory.
type Recovery struct {
	config Config
	logger *zap.Logger
}

// NewRecovery creates a Recovery over the given store layout.
func NewRecovery(config Config, logger *zap.Logger) *Recovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recovery{config: config, logger: logger}
}

// Repair implements Repairer.
func (r *Recovery) Repair(path string) bool {
	name := filepath.Base(path)
	r.logger.Info("attempting to repair corrupted file", zap.String("file", name))

	if backup, err := RestoreLatest(r.config, path); err == nil {
		r.logger.Info("repaired from backup",
			zap.String("file", name),
			zap.String("backup", filepath.Base(backup)),
		)
		return true
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		r.logger.Error("could not read corrupted file", zap.String("file", name), zap.Error(err))
		return false
	}

	corruptedCopy := filepath.Join(r.config.BackupsDir(), name+".corrupted")
	if err := copyFile(path, corruptedCopy); err != nil {
		r.logger.Error("could not preserve corrupted copy", zap.String("file", name), zap.Error(err))
		return false
	}

	if err := os.WriteFile(path, salvage(string(raw), name), 0o644); err != nil {
		r.logger.Error("could not write salvaged file", zap.String("file", name), zap.Error(err))
		return false
	}

	r.logger.Info("salvaged content from corrupted file", zap.String("file", name))
	return true
}

// salvage builds a minimal valid memory document from whatever is readable
// in a corrupted file. The id is taken from the filename when possible and
// the surviving content body is preserved under a recovery header.
func salvage(raw, filename string) []byte {
	now := time.Now()

	var body strings.Builder
	fmt.Fprintf(&body, "# Recovered Memory File\n\n")
	fmt.Fprintf(&body, "This file was recovered from a corrupted memory file.\n")
	fmt.Fprintf(&body, "Original file: %s\n", filename)
	fmt.Fprintf(&body, "Recovery timestamp: %s\n\n", now.Format(time.RFC3339Nano))
	fmt.Fprintf(&body, "## Original Content (if recoverable):\n\n")

	if remainder := contentAfterFrontmatter(raw); remainder != "" {
		body.WriteString(remainder)
	} else {
		body.WriteString("(No readable content could be recovered)")
	}

	return memory.Encode(&memory.Memory{
		ID:        idFromFilename(filename),
		Timestamp: now,
		Agent:     "unknown",
		User:      "unknown",
		Topics:    []string{"recovered"},
		Content:   body.String(),
	})
}

// contentAfterFrontmatter returns everything past the closing frontmatter
// delimiter, or the whole document when no closed frontmatter block exists.
func contentAfterFrontmatter(raw string) string {
	lines := strings.Split(raw, "\n")

	delimiters := 0
	contentStart := 0
	for i, line := range lines {
		if strings.TrimSpace(line) == "---" {
			delimiters++
			if delimiters == 2 {
				contentStart = i + 1
				break
			}
		}
	}

	return strings.TrimSpace(strings.Join(lines[contentStart:], "\n"))
}

// idFromFilename extracts the memory id from a {timestamp}_{id}.md name,
// falling back to "recovered" when the name does not carry one.
func idFromFilename(filename string) string {
	stem := strings.TrimSuffix(filename, filepath.Ext(filename))
	parts := strings.Split(stem, "_")
	if len(parts) >= 3 {
		return parts[len(parts)-1]
	}
	return "recovered"
}
