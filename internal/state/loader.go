package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	backupPrefix = "session_backup_"
	backupExt    = ".json"
	backupLayout = "20060102_150405"

	// maxBackupSuffix bounds the collision search for one timestamp.
	maxBackupSuffix = 100
)

// Snapshot is the result of loading the canonical session file.
type Snapshot struct {
	Path  string
	State *SessionState // nil when no canonical file existed
	Raw   []byte

	BackupPath string
	BackupErr  error // non-nil when the backup copy could not be written
}

// Exists reports whether a prior canonical state was found.
func (s *Snapshot) Exists() bool {
	return s != nil && s.State != nil
}

// Load reads and parses the canonical file without taking a backup.
// A missing file returns (nil, nil, nil).
func Load(path string) (*SessionState, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("read session file: %w", err)
	}

	st, err := Parse(data)
	if err != nil {
		var corrupt *CorruptStateError
		if errors.As(err, &corrupt) {
			corrupt.Path = path
		}
		return nil, nil, err
	}
	return st, data, nil
}

// LoadAndBackup reads the canonical file at path and, when it exists and
// parses, writes a byte-identical copy into backupDir named after now.
// An empty backupDir means the directory of path. The canonical file is
// never modified. Backup failures are returned in Snapshot.BackupErr.
func LoadAndBackup(path, backupDir string, now time.Time) (*Snapshot, error) {
	st, raw, err := Load(path)
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{Path: path, State: st, Raw: raw}
	if st == nil {
		return snap, nil
	}

	if backupDir == "" {
		backupDir = filepath.Dir(path)
	}
	snap.BackupPath, snap.BackupErr = writeBackup(backupDir, raw, now)
	return snap, nil
}

// BackupName returns the file name of a backup taken at now.
func BackupName(now time.Time) string {
	return backupPrefix + now.Format(backupLayout) + backupExt
}

// IsBackupName reports whether name looks like a backup file.
func IsBackupName(name string) bool {
	return strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, backupExt)
}

func writeBackup(dir string, data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create backup dir: %w", err)
	}

	base := strings.TrimSuffix(BackupName(now), backupExt)
	for i := 0; i < maxBackupSuffix; i++ {
		name := base + backupExt
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, backupExt)
		}
		path := filepath.Join(dir, name)

		f, err := openBackup(path)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				continue
			}
			return "", fmt.Errorf("create backup: %w", err)
		}
		if err := fillBackup(f, data); err != nil {
			_ = os.Remove(path)
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free backup name for %s in %s", base, dir)
}

type backupFile interface {
	Write(p []byte) (int, error)
	Sync() error
	Close() error
}

var openBackup = func(path string) (backupFile, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

// fillBackup writes and syncs data, then closes f.
func fillBackup(f backupFile, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write backup: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync backup: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close backup: %w", err)
	}
	return nil
}
