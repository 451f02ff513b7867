package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	pdferrors "github.com/a3tai/subsidy-form-filler/internal/pdf/errors"
)

// Blobs stores template binaries by template id
type Blobs interface {
	Save(ctx context.Context, id string, data []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
}

// FileBlobs keeps each template as <id>.pdf under a directory
type FileBlobs struct {
	dir string
}

// NewFileBlobs creates the directory when it does not exist yet
func NewFileBlobs(dir string) (*FileBlobs, error) {
	if dir == "" {
		return nil, fmt.Errorf("template directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create template directory: %w", err)
	}
	return &FileBlobs{dir: dir}, nil
}

// Dir returns the configured directory
func (b *FileBlobs) Dir() string { return b.dir }

// Path returns the location of the template with the given id
func (b *FileBlobs) Path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\\x00") || id == "." || id == ".." {
		return "", fmt.Errorf("invalid template id %q", id)
	}
	return b.Resolve(id + ".pdf")
}

// Resolve joins a relative name onto the directory and rejects results
// outside of it, including through symlinks.
func (b *FileBlobs) Resolve(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	name = strings.ReplaceAll(name, "\x00", "")
	if !filepath.IsAbs(name) {
		name = filepath.Join(b.dir, name)
	}
	abs, err := filepath.Abs(name)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	within, err := b.isWithin(abs)
	if err != nil {
		return "", fmt.Errorf("path validation failed: %w", err)
	}
	if !within {
		return "", fmt.Errorf("path is outside template directory: %s", name)
	}
	return abs, nil
}

func (b *FileBlobs) isWithin(path string) (bool, error) {
	absDir, err := filepath.Abs(b.dir)
	if err != nil {
		return false, fmt.Errorf("failed to resolve template directory: %w", err)
	}
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(absDir)

	realPath := cleanPath
	if info, err := os.Lstat(cleanPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		if resolved, err := filepath.EvalSymlinks(cleanPath); err == nil {
			realPath = resolved
		}
	}
	realDir := cleanDir
	if resolved, err := filepath.EvalSymlinks(cleanDir); err == nil {
		realDir = resolved
	}

	under := func(p, dir string) bool {
		return p == dir || strings.HasPrefix(p, strings.TrimSuffix(dir, string(filepath.Separator))+string(filepath.Separator))
	}
	pathOk := under(cleanPath, cleanDir) || under(cleanPath, realDir)
	realOk := under(realPath, cleanDir) || under(realPath, realDir)
	return pathOk && realOk, nil
}

func (b *FileBlobs) Save(_ context.Context, id string, data []byte) error {
	path, err := b.Path(id)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write template %s: %w", id, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to store template %s: %w", id, err)
	}
	return nil
}

func (b *FileBlobs) Load(_ context.Context, id string) ([]byte, error) {
	path, err := b.Path(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("template file %s: %w", id, pdferrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read template %s: %w", id, err)
	}
	return data, nil
}

// MemoryBlobs keeps binaries in memory
type MemoryBlobs struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryBlobs creates an empty in-memory blob store
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{items: make(map[string][]byte)}
}

func (b *MemoryBlobs) Save(_ context.Context, id string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[id] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBlobs) Load(_ context.Context, id string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.items[id]
	if !ok {
		return nil, fmt.Errorf("template file %s: %w", id, pdferrors.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
