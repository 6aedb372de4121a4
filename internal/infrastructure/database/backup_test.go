package database

import (
	"os"
	"path/filepath"
	"testing"
)

// writeFile is a fixture helper for backup rotation tests.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// readFile reads a file or fails the test.
func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	return string(data)
}

// TestBackupVersions verifies numbered backup rotation.
func TestBackupVersions(t *testing.T) {
	t.Run("missing original is a no-op", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "inst.db")

		if err := backupVersions(path, MaxBackups); err != nil {
			t.Errorf("backupVersions() error = %v", err)
		}
	})

	t.Run("original becomes _1", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "inst.db")
		writeFile(t, path, "current")

		if err := backupVersions(path, MaxBackups); err != nil {
			t.Fatalf("backupVersions() error = %v", err)
		}

		if got := readFile(t, filepath.Join(tmpDir, "inst_1.db")); got != "current" {
			t.Errorf("inst_1.db = %q, want %q", got, "current")
		}
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Error("original file still present after rotation")
		}
	})

	t.Run("repeated rotation shifts and caps backups", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "inst.db")

		// Rotate seven generations through a cap of five.
		generations := []string{"g1", "g2", "g3", "g4", "g5", "g6", "g7"}
		for _, g := range generations {
			writeFile(t, path, g)
			if err := backupVersions(path, MaxBackups); err != nil {
				t.Fatalf("backupVersions() error = %v", err)
			}
		}

		// Newest backup is _1, oldest surviving is _5.
		want := map[string]string{
			"inst_1.db": "g7",
			"inst_2.db": "g6",
			"inst_3.db": "g5",
			"inst_4.db": "g4",
			"inst_5.db": "g3",
		}
		for name, content := range want {
			if got := readFile(t, filepath.Join(tmpDir, name)); got != content {
				t.Errorf("%s = %q, want %q", name, got, content)
			}
		}

		// The cap discards the oldest generations.
		if _, err := os.Stat(filepath.Join(tmpDir, "inst_6.db")); !os.IsNotExist(err) {
			t.Error("rotation produced a backup beyond the cap")
		}
	})
}

// TestSaveBackup verifies explicit backup copies.
func TestSaveBackup(t *testing.T) {
	t.Run("default outfile gets _BAK suffix", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "inst.db")
		writeFile(t, path, "snapshot")

		if err := SaveBackup(path, ""); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}

		if got := readFile(t, filepath.Join(tmpDir, "inst_BAK.db")); got != "snapshot" {
			t.Errorf("inst_BAK.db = %q, want %q", got, "snapshot")
		}
		// Source must survive a copy.
		if got := readFile(t, path); got != "snapshot" {
			t.Errorf("source = %q after backup, want %q", got, "snapshot")
		}
	})

	t.Run("explicit outfile", func(t *testing.T) {
		tmpDir := t.TempDir()
		path := filepath.Join(tmpDir, "inst.db")
		out := filepath.Join(tmpDir, "copy.db")
		writeFile(t, path, "snapshot")

		if err := SaveBackup(path, out); err != nil {
			t.Fatalf("SaveBackup() error = %v", err)
		}
		if got := readFile(t, out); got != "snapshot" {
			t.Errorf("copy = %q, want %q", got, "snapshot")
		}
	})

	t.Run("missing source is a no-op", func(t *testing.T) {
		tmpDir := t.TempDir()
		if err := SaveBackup(filepath.Join(tmpDir, "absent.db"), ""); err != nil {
			t.Errorf("SaveBackup() error = %v", err)
		}
	})
}

// TestSplitExt verifies path splitting.
func TestSplitExt(t *testing.T) {
	tests := []struct {
		path     string
		wantBase string
		wantExt  string
	}{
		{"inst.db", "inst", ".db"},
		{"/data/inst.db", "/data/inst", ".db"},
		{"noext", "noext", ""},
		{"dir.d/noext", "dir.d/noext", ""},
	}

	for _, tt := range tests {
		base, ext := splitExt(tt.path)
		if base != tt.wantBase || ext != tt.wantExt {
			t.Errorf("splitExt(%q) = (%q, %q), want (%q, %q)",
				tt.path, base, ext, tt.wantBase, tt.wantExt)
		}
	}
}
