package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
)

func newTestArtifactStore(t *testing.T) (*ArtifactStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewArtifactStore(fs, "generated")
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	return s, fs
}

func TestArtifactStore_Layout(t *testing.T) {
	s, _ := newTestArtifactStore(t)

	if got, want := s.ImagePath("abc"), filepath.Join("generated", "abc.png"); got != want {
		t.Errorf("ImagePath = %q, want %q", got, want)
	}
	if got, want := s.ThumbnailPath("abc"), filepath.Join("generated", "thumb_abc.png"); got != want {
		t.Errorf("ThumbnailPath = %q, want %q", got, want)
	}
}

func TestArtifactStore_DefaultDir(t *testing.T) {
	s, err := NewArtifactStore(afero.NewMemMapFs(), "")
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	if s.Dir() != DefaultArtifactDir {
		t.Errorf("Dir = %q, want %q", s.Dir(), DefaultArtifactDir)
	}
}

func TestArtifactStore_WriteReadExists(t *testing.T) {
	s, fs := newTestArtifactStore(t)
	ctx := context.Background()
	path := s.ImagePath("abc")

	ok, err := s.Exists(ctx, path)
	if err != nil || ok {
		t.Fatalf("Exists before write = (%v, %v), want (false, nil)", ok, err)
	}

	if err := s.Write(ctx, path, []byte("png-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ok, err = s.Exists(ctx, path)
	if err != nil || !ok {
		t.Fatalf("Exists after write = (%v, %v), want (true, nil)", ok, err)
	}

	data, err := s.Read(ctx, path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(data) != "png-bytes" {
		t.Errorf("Read = %q, want png-bytes", data)
	}

	// No temporary files are left behind.
	entries, err := afero.ReadDir(fs, "generated")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1", len(entries))
	}
}

func TestArtifactStore_Overwrite(t *testing.T) {
	s, _ := newTestArtifactStore(t)
	ctx := context.Background()
	path := s.ThumbnailPath("abc")

	_ = s.Write(ctx, path, []byte("first"))
	if err := s.Write(ctx, path, []byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, _ := s.Read(ctx, path)
	if string(data) != "second" {
		t.Errorf("Read = %q, want second", data)
	}
}

func TestArtifactStore_ReadMissing(t *testing.T) {
	s, _ := newTestArtifactStore(t)

	_, err := s.Read(context.Background(), s.ImagePath("missing"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Read missing error = %v, want ErrNotFound", err)
	}
}

func TestArtifactStore_WriteReadOnly(t *testing.T) {
	base := afero.NewMemMapFs()
	if err := base.MkdirAll("generated", 0o755); err != nil {
		t.Fatal(err)
	}
	s, err := NewArtifactStore(afero.NewReadOnlyFs(base), "generated")
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}

	if err := s.Write(context.Background(), s.ImagePath("abc"), []byte("x")); err == nil {
		t.Error("Write on read-only fs should fail")
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping on read-only fs should fail")
	}
}

func TestArtifactStore_Ping(t *testing.T) {
	s, fs := newTestArtifactStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if ok, _ := afero.Exists(fs, filepath.Join("generated", ".probe")); ok {
		t.Error("probe file should be removed")
	}
}

func TestNewArtifactStore_NilFs(t *testing.T) {
	if _, err := NewArtifactStore(nil, "generated"); err == nil {
		t.Error("expected error for nil fs")
	}
}
