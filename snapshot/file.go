package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	extPlain      = ".snap"
	extCompressed = ".snap.xz"
)

// FileName builds the snapshot file name for a run and cursor index.
func FileName(runID string, index int, compress bool) string {
	ext := extPlain
	if compress {
		ext = extCompressed
	}
	return fmt.Sprintf("%s_%010d%s", runID, index, ext)
}

// Save writes the state into dir, creating it when missing, and returns the
// full path.
func Save(dir string, st State, compress bool) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("snapshot: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName(st.RunID, st.Cursor.Index, compress))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("snapshot: create file: %w", err)
	}
	if err := Encode(f, st, compress); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("snapshot: close file: %w", err)
	}
	return path, nil
}

// Load reads one snapshot file.
func Load(path string) (State, error) {
	f, err := os.Open(path)
	if err != nil {
		return State{}, fmt.Errorf("snapshot: open: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// LoadLatest finds the newest snapshot for runID in dir, by cursor index
// embedded in the file name. ok=false when none exists.
func LoadLatest(dir, runID string) (State, bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return State{}, false, nil
		}
		return State{}, false, fmt.Errorf("snapshot: read dir: %w", err)
	}

	prefix := runID + "_"
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) &&
			(strings.HasSuffix(name, extPlain) || strings.HasSuffix(name, extCompressed)) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return State{}, false, nil
	}
	// Zero-padded indexes sort lexically.
	sort.Strings(names)

	st, err := Load(filepath.Join(dir, names[len(names)-1]))
	if err != nil {
		return State{}, false, err
	}
	return st, true, nil
}
