package snapshot

import (
	"context"
	"os"
	"path/filepath"
)

// FileSink writes the document of every committed snapshot to a file. The file is replaced
// atomically, a reader sees either the old or the new document in full.
type FileSink struct {
	path string
}

func NewFileSink(path string) FileSink {
	return FileSink{path: path}
}

func (f FileSink) Path() string {
	return f.path
}

func (f FileSink) Persist(_ context.Context, snap Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	err = os.MkdirAll(dir, 0755)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	err = os.Chmod(tmpPath, 0644)
	if err != nil {
		return err
	}

	return os.Rename(tmpPath, f.path)
}

// LoadFile reads a persisted document back into a snapshot.
func LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	return Unmarshal(data)
}

// Seed commits the persisted document into the store so that a restarted service serves
// the last known data until its first refresh.
func (f FileSink) Seed(store *Store) (Snapshot, error) {
	snap, err := LoadFile(f.path)
	if err != nil {
		return Snapshot{}, err
	}
	err = store.Commit(snap)
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
