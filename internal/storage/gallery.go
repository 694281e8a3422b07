// Package storage holds reference face images and request scratch files on
// the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	ErrInvalidName  = errors.New("invalid file name")
	ErrFileNotFound = errors.New("gallery file not found")
	ErrFileExists   = errors.New("gallery file already exists")
)

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".webp": true,
	".gif":  true,
	".tif":  true,
	".tiff": true,
}

// GalleryFile describes one reference image.
type GalleryFile struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Gallery is the directory of enrolled reference images.
type Gallery struct {
	dir string
}

// NewGallery creates the directory if needed.
func NewGallery(dir string) (*Gallery, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create gallery dir: %w", err)
	}
	return &Gallery{dir: dir}, nil
}

func (g *Gallery) Dir() string {
	return g.dir
}

// List returns the image files in the gallery sorted by name.
func (g *Gallery) List() ([]GalleryFile, error) {
	entries, err := os.ReadDir(g.dir)
	if err != nil {
		return nil, fmt.Errorf("list gallery: %w", err)
	}

	files := make([]GalleryFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsImageName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		files = append(files, GalleryFile{
			Name:    entry.Name(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (g *Gallery) Read(name string) ([]byte, error) {
	path, err := g.path(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrFileNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Save writes data atomically under name. An existing file is never
// replaced; Save returns ErrFileExists instead.
func (g *Gallery) Save(name string, data []byte) error {
	path, err := g.path(name)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(g.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("save %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	// link fails on an existing target, unlike rename
	if err := os.Link(tmp.Name(), path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %q", ErrFileExists, name)
		}
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// Remove deletes name. A missing file is not an error.
func (g *Gallery) Remove(name string) error {
	path, err := g.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return nil
}

func (g *Gallery) path(name string) (string, error) {
	clean := SanitizeName(name)
	if clean == "" || clean != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(g.dir, clean), nil
}

// IsImageName reports whether name carries a supported image extension.
func IsImageName(name string) bool {
	if strings.HasPrefix(name, ".") {
		return false
	}
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// SanitizeName reduces an uploaded file name to a safe base name.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	return strings.TrimLeft(b.String(), ".")
}
