package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// DefaultArtifactDir is the directory artifacts are written to.
const DefaultArtifactDir = "generated"

// ArtifactStore persists rendered images as files. Presence of a file is the
// only existence signal; contents are opaque bytes.
type ArtifactStore struct {
	fs  afero.Fs
	dir string
}

// NewArtifactStore creates a store rooted at dir on fs, creating dir if needed.
func NewArtifactStore(fs afero.Fs, dir string) (*ArtifactStore, error) {
	if fs == nil {
		return nil, errors.New("store: filesystem is nil")
	}
	if dir == "" {
		dir = DefaultArtifactDir
	}
	exists, err := afero.DirExists(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("store: stat artifact dir %q: %w", dir, err)
	}
	if !exists {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create artifact dir %q: %w", dir, err)
		}
	}
	return &ArtifactStore{fs: fs, dir: dir}, nil
}

// NewOSArtifactStore creates a store on the local filesystem.
func NewOSArtifactStore(dir string) (*ArtifactStore, error) {
	return NewArtifactStore(afero.NewOsFs(), dir)
}

// Dir returns the root directory.
func (s *ArtifactStore) Dir() string {
	return s.dir
}

// ImagePath returns the path of the full image for a token hash.
func (s *ArtifactStore) ImagePath(tokenHash string) string {
	return filepath.Join(s.dir, tokenHash+".png")
}

// ThumbnailPath returns the path of the thumbnail for a token hash.
func (s *ArtifactStore) ThumbnailPath(tokenHash string) string {
	return filepath.Join(s.dir, "thumb_"+tokenHash+".png")
}

// Exists reports whether a file is present at path.
func (s *ArtifactStore) Exists(_ context.Context, path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("store: stat %q: %w", path, err)
	}
	return ok, nil
}

// Write stores data at path. The bytes go to a temporary file in the same
// directory first and are renamed into place, so readers never observe a
// partially written artifact.
func (s *ArtifactStore) Write(_ context.Context, path string, data []byte) error {
	tmp, err := afero.TempFile(s.fs, filepath.Dir(path), ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("store: create temp for %q: %w", path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("store: write %q: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("store: close %q: %w", path, err)
	}
	if err := s.fs.Rename(tmpName, path); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("store: rename into %q: %w", path, err)
	}
	return nil
}

// Read returns the bytes stored at path.
func (s *ArtifactStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("store: read %q: %w", path, err)
	}
	return data, nil
}

// Ping checks that the artifact directory accepts writes.
func (s *ArtifactStore) Ping(ctx context.Context) error {
	probe := filepath.Join(s.dir, ".probe")
	if err := s.Write(ctx, probe, []byte("ok")); err != nil {
		return err
	}
	return s.fs.Remove(probe)
}
