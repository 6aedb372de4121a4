package database

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxBackups is how many rotated copies of a database file are kept when a
// fresh database is created over an existing one. The most recent backup
// carries the _1 suffix.
const MaxBackups = 5

// backupVersions rotates numbered backups of the file at path.
//
// For a file "inst.db" with max 5, the rotation produces:
//
//	inst_4.db -> inst_5.db
//	inst_3.db -> inst_4.db
//	...
//	inst.db   -> inst_1.db
//
// Missing intermediate backups are skipped. A missing original file is a
// no-op, not an error.
func backupVersions(path string, max int) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	base, ext := splitExt(path)
	for i := max - 1; i > 0; i-- {
		from := fmt.Sprintf("%s_%d%s", base, i, ext)
		to := fmt.Sprintf("%s_%d%s", base, i+1, ext)
		if _, err := os.Stat(from); err == nil {
			if err := os.Rename(from, to); err != nil {
				return fmt.Errorf("rotating %s: %w", from, err)
			}
		}
	}

	first := fmt.Sprintf("%s_1%s", base, ext)
	if err := os.Rename(path, first); err != nil {
		return fmt.Errorf("rotating %s: %w", path, err)
	}
	return nil
}

// SaveBackup copies the file at path to a sibling file with a _BAK suffix
// (or to outfile when non-empty). The source being absent is a no-op.
func SaveBackup(path, outfile string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if outfile == "" {
		base, ext := splitExt(path)
		outfile = base + "_BAK" + ext
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(outfile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("creating %s: %w", outfile, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying to %s: %w", outfile, err)
	}
	return nil
}

// splitExt splits a path into its base and extension parts, keeping the
// directory in the base.
func splitExt(path string) (base, ext string) {
	ext = filepath.Ext(path)
	base = strings.TrimSuffix(path, ext)
	return base, ext
}
