package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// backupRetention is how long a backup is kept before cleanup removes it.
	backupRetention = 30 * 24 * time.Hour

	// maxBackupsPerFile caps the backups retained per memory file.
	maxBackupsPerFile = 100

	backupTimeLayout = "20060102_150405"
	backupSuffix     = ".backup"
)

// BackupInfo summarizes the backup set of a store.
type BackupInfo struct {
	Count  int       `json:"backup_count"`
	Oldest time.Time `json:"oldest_backup"`
	Newest time.Time `json:"newest_backup"`
}

// CreateBackup copies path into the backups directory as
// {stem}_{YYYYMMDD_HHMMSS}.backup and returns the backup path.
func CreateBackup(config Config, path string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	name := fmt.Sprintf("%s_%s%s", stem, time.Now().Format(backupTimeLayout), backupSuffix)
	backupPath := filepath.Join(config.BackupsDir(), name)

	if err := copyFile(path, backupPath); err != nil {
		return "", fmt.Errorf("creating backup of %s: %w", filepath.Base(path), err)
	}
	return backupPath, nil
}

// RestoreLatest replaces path with its most recent backup, backing up the
// current contents first when present. It returns the backup path used.
func RestoreLatest(config Config, path string) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	candidates, err := filepath.Glob(filepath.Join(config.BackupsDir(), stem+"_*"+backupSuffix))
	if err != nil || len(candidates) == 0 {
		return "", fmt.Errorf("no backups found for %s", filepath.Base(path))
	}

	latest, latestMod := "", time.Time{}
	for _, candidate := range candidates {
		info, statErr := os.Stat(candidate)
		if statErr != nil {
			continue
		}
		if latest == "" || info.ModTime().After(latestMod) {
			latest, latestMod = candidate, info.ModTime()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no readable backups found for %s", filepath.Base(path))
	}

	if _, statErr := os.Stat(path); statErr == nil {
		if _, backupErr := CreateBackup(config, path); backupErr != nil {
			return "", fmt.Errorf("backing up current file before restore: %w", backupErr)
		}
	}

	if err := copyFile(latest, path); err != nil {
		return "", fmt.Errorf("restoring %s from backup: %w", filepath.Base(path), err)
	}
	return latest, nil
}

// CleanupBackups removes backups past the retention window, then trims each
// file's backup set to the newest maxBackupsPerFile. It reports the number
// of backups removed. Run at startup so the backup directory never grows
// without bound.
func CleanupBackups(config Config, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}

	backups, err := filepath.Glob(filepath.Join(config.BackupsDir(), "*"+backupSuffix))
	if err != nil {
		logger.Warn("listing backups for cleanup", zap.Error(err))
		return 0
	}

	removed := 0
	cutoff := time.Now().Add(-backupRetention)
	remaining := backups[:0]

	for _, backup := range backups {
		info, statErr := os.Stat(backup)
		if statErr != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if os.Remove(backup) == nil {
				removed++
			}
			continue
		}
		remaining = append(remaining, backup)
	}

	for _, group := range groupByStem(remaining) {
		if len(group) <= maxBackupsPerFile {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			return modTime(group[i]).After(modTime(group[j]))
		})
		for _, backup := range group[maxBackupsPerFile:] {
			if os.Remove(backup) == nil {
				removed++
			}
		}
	}

	if removed > 0 {
		logger.Info("cleaned up old backups", zap.Int("removed", removed))
	}
	return removed
}

// Info summarizes the current backup set.
func Info(config Config) (BackupInfo, error) {
	backups, err := filepath.Glob(filepath.Join(config.BackupsDir(), "*"+backupSuffix))
	if err != nil {
		return BackupInfo{}, fmt.Errorf("listing backups: %w", err)
	}

	info := BackupInfo{Count: len(backups)}
	for _, backup := range backups {
		mod := modTime(backup)
		if mod.IsZero() {
			continue
		}
		if info.Oldest.IsZero() || mod.Before(info.Oldest) {
			info.Oldest = mod
		}
		if mod.After(info.Newest) {
			info.Newest = mod
		}
	}
	return info, nil
}

// groupByStem buckets backup paths by the memory file they back up. Backup
// names are {stem}_{YYYYMMDD}_{HHMMSS}.backup, so the stem is everything
// before the last two underscore-separated parts.
func groupByStem(backups []string) map[string][]string {
	groups := make(map[string][]string)
	for _, backup := range backups {
		name := strings.TrimSuffix(filepath.Base(backup), backupSuffix)
		parts := strings.Split(name, "_")
		if len(parts) < 3 {
			continue
		}
		stem := strings.Join(parts[:len(parts)-2], "_")
		groups[stem] = append(groups[stem], backup)
	}
	return groups
}

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
