// Package backup implements C5: a timestamped snapshot of every file an
// apply run is about to touch, taken before any write happens.
package backup

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junovhs/applydiff/aerr"
)

// DirPrefix names the backup directory; the full name appends a
// YYYYMMDD_HHMMSS timestamp and a short uuid suffix, so two apply_patch
// calls landing in the same second never collide.
const DirPrefix = ".applydiff_backup_"

// Create makes a new backup directory under root and copies every existing
// file named in relPaths into it, preserving relative layout. A path with
// no corresponding file on disk is silently skipped — a block that creates
// a new file has nothing to back up. Returns the backup directory's
// absolute path.
func Create(root string, relPaths []string) (string, error) {
	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return "", aerr.New(aerr.File, aerr.CodeBackupFailed, "project root is not a directory").WithPath(root)
	}

	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	dir := filepath.Join(root, DirPrefix+time.Now().Format("20060102_150405")+"_"+suffix)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", aerr.Newf(aerr.File, aerr.CodeBackupFailed, "failed to create backup directory: %v", err).WithPath(dir)
	}

	for _, rel := range relPaths {
		src := filepath.Join(root, rel)
		if _, err := os.Stat(src); err != nil {
			continue
		}

		dest := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return "", aerr.Newf(aerr.File, aerr.CodeBackupFailed,
				"failed to create parent directory for backup item: %v", err).WithPath(filepath.Dir(dest))
		}
		if err := copyFile(src, dest); err != nil {
			return "", aerr.Newf(aerr.File, aerr.CodeBackupFailed,
				"failed to copy file to backup directory: %v", err).WithPath(src)
		}
	}

	return dir, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// IsBackupDir reports whether rel (project-relative) names a path inside a
// backup directory, so session indexing and file enumeration can exclude
// it the same way they exclude .applydiff.
func IsBackupDir(rel string) bool {
	first := rel
	if i := strings.IndexByte(rel, filepath.Separator); i >= 0 {
		first = rel[:i]
	}
	return strings.HasPrefix(first, DirPrefix)
}
