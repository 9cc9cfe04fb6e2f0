package authstore

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Legacy layout: the record's fields used to live in separate plain files
// next to the unified one. Migrated into the unified record on first read,
// then removed.
var legacyFiles = []string{"token", "role", "login_id"}

// FileBackend stores the record as a single JSON file. Writes are atomic
// (temp file + rename), and Watch observes external writes via fsnotify,
// giving other processes on the same host eventual visibility of session
// changes.
type FileBackend struct {
	path string
}

// NewFileBackend creates a file backend at the given path, creating parent
// directories as needed. An empty path resolves to DefaultStatePath().
func NewFileBackend(path string) (*FileBackend, error) {
	if path == "" {
		var err error
		if path, err = DefaultStatePath(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &FileBackend{path: path}, nil
}

// DefaultStatePath returns the per-user default record location.
func DefaultStatePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "fittly", "auth.json"), nil
}

// Path returns the record file location.
func (f *FileBackend) Path() string {
	return f.path
}

func (f *FileBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return f.migrateLegacy(ctx)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (f *FileBackend) Save(ctx context.Context, data []byte) error {
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileBackend) Delete(ctx context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// migrateLegacy merges the pre-unification per-field files into a unified
// record, persists it, and deletes the old files. Absence of a legacy token
// means there is nothing to migrate.
func (f *FileBackend) migrateLegacy(ctx context.Context) ([]byte, error) {
	dir := filepath.Dir(f.path)

	token, err := readLegacyValue(filepath.Join(dir, "token"))
	if err != nil || token == "" {
		return nil, ErrNotFound
	}

	role, _ := readLegacyValue(filepath.Join(dir, "role"))
	loginID, _ := readLegacyValue(filepath.Join(dir, "login_id"))

	rec := Record{Token: token, Role: Role(role), LoginID: loginID}.withDecodedExpiry()
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	if err := f.Save(ctx, data); err != nil {
		return nil, err
	}

	for _, name := range legacyFiles {
		_ = os.Remove(filepath.Join(dir, name))
	}
	return data, nil
}

func readLegacyValue(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Watch emits a wake-up whenever the record file changes on disk. The watch
// is placed on the parent directory because editors and atomic renames
// replace the file node itself.
func (f *FileBackend) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	ch := make(chan struct{}, 1)
	base := filepath.Base(f.path)

	go func() {
		defer watcher.Close()
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return ch, nil
}
