// Package workspace manages the in-memory filesystem backing tool execution.
// Each session owns one workspace; its contents are captured into snapshots
// for persistence and rebuilt on session switch.
package workspace

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// File is one snapshot entry.
type File struct {
	Path string
	Data []byte
}

// Workspace wraps the live in-memory filesystem. It is owned by the session
// orchestrator; tools receive it as an explicit dependency rather than a
// package-level global so independent sessions never share state.
type Workspace struct {
	fs afero.Fs
}

func New() *Workspace {
	return NewFromFs(afero.NewMemMapFs())
}

// NewFromFs wraps an existing filesystem. Callers that need snapshot
// behavior beyond the in-memory default (or a failing filesystem in tests)
// compose one the usual afero way and hand it in.
func NewFromFs(fs afero.Fs) *Workspace {
	return &Workspace{fs: fs}
}

// Fs exposes the filesystem for tool execution.
func (w *Workspace) Fs() afero.Fs {
	return w.fs
}

// Reset discards all files, leaving an empty filesystem.
func (w *Workspace) Reset() {
	w.fs = afero.NewMemMapFs()
}

// Snapshot captures every regular file. Individual entries that cannot be
// read are skipped, but a filesystem that cannot be walked at all fails the
// capture so callers never persist a partial view. Paths are normalized and
// sorted so equal filesystems produce equal snapshots.
func (w *Workspace) Snapshot() ([]File, error) {
	var files []File
	err := afero.Walk(w.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if normalize(p) == "/" {
				return err
			}
			return nil
		}
		if info == nil || info.IsDir() {
			return nil
		}
		data, err := afero.ReadFile(w.fs, p)
		if err != nil {
			return nil
		}
		files = append(files, File{Path: normalize(p), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// Restore replaces the filesystem contents with a snapshot.
func (w *Workspace) Restore(files []File) error {
	w.Reset()
	for _, f := range files {
		if err := w.WriteFile(f.Path, f.Data); err != nil {
			return fmt.Errorf("restore %s: %w", f.Path, err)
		}
	}
	return nil
}

// WriteFile writes data, creating parent directories as needed.
func (w *Workspace) WriteFile(name string, data []byte) error {
	name = normalize(name)
	if dir := path.Dir(name); dir != "/" {
		if err := w.fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return afero.WriteFile(w.fs, name, data, 0o644)
}

// ReadFile reads one file's contents.
func (w *Workspace) ReadFile(name string) ([]byte, error) {
	return afero.ReadFile(w.fs, normalize(name))
}

// Remove deletes one file.
func (w *Workspace) Remove(name string) error {
	return w.fs.Remove(normalize(name))
}

// List returns the paths of all regular files, sorted.
func (w *Workspace) List() ([]string, error) {
	snapshot, err := w.Snapshot()
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(snapshot))
	for i, f := range snapshot {
		paths[i] = f.Path
	}
	return paths, nil
}

// normalize roots and cleans a path so snapshots key files consistently.
func normalize(p string) string {
	p = path.Clean("/" + strings.TrimPrefix(p, "/"))
	return p
}
