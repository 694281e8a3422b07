package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGallery_SaveListReadRemove(t *testing.T) {
	dir := t.TempDir()
	g, err := NewGallery(filepath.Join(dir, "faces"))
	require.NoError(t, err)

	require.NoError(t, g.Save("bob_2.png", []byte("bob")))
	require.NoError(t, g.Save("alice_1.jpg", []byte("alice")))
	require.NoError(t, os.WriteFile(filepath.Join(g.Dir(), "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(g.Dir(), "nested.jpg"), 0o755))

	files, err := g.List()
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "alice_1.jpg", files[0].Name)
	assert.Equal(t, "bob_2.png", files[1].Name)
	assert.Equal(t, int64(5), files[0].Size)

	data, err := g.Read("alice_1.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), data)

	require.NoError(t, g.Remove("alice_1.jpg"))
	require.NoError(t, g.Remove("alice_1.jpg"))

	_, err = g.Read("alice_1.jpg")
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestGallery_SaveKeepsExistingFile(t *testing.T) {
	g, err := NewGallery(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, g.Save("ana_a.png", []byte("first")))
	assert.ErrorIs(t, g.Save("ana_a.png", []byte("second")), ErrFileExists)

	data, err := g.Read("ana_a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	entries, err := os.ReadDir(g.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp upload left behind")
}

func TestGallery_RejectsUnsafeNames(t *testing.T) {
	g, err := NewGallery(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"../escape.jpg", "a/b.jpg", "", ".hidden.jpg"} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, g.Save(name, []byte("x")), ErrInvalidName)
			_, err := g.Read(name)
			assert.ErrorIs(t, err, ErrInvalidName)
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"photo.jpg", "photo.jpg"},
		{"my photo (1).png", "my_photo_1.png"},
		{"../../etc/passwd", "passwd"},
		{`C:\Users\me\face.jpg`, "face.jpg"},
		{"..", ""},
		{"...jpg", "jpg"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeName(tt.in))
		})
	}
}

func TestScratch_WriteAndRelease(t *testing.T) {
	s, err := NewScratch(filepath.Join(t.TempDir(), "tmp"))
	require.NoError(t, err)

	path, release, err := s.Write([]byte("frame"), ".jpg")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, ".jpg", filepath.Ext(path))

	other, releaseOther, err := s.Write([]byte("frame"), ".jpg")
	require.NoError(t, err)
	assert.NotEqual(t, path, other)

	release()
	release()
	assert.NoFileExists(t, path)

	removed, err := s.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.NoFileExists(t, other)

	releaseOther()
}
