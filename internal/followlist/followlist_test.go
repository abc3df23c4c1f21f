package followlist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURLs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    []string
	}{
		{
			name:    "URLsAndComments",
			content: "https://mangadex.org/title/u1\n#comment\nhttps://mangadex.org/title/u2\n",
			want:    []string{"https://mangadex.org/title/u1", "https://mangadex.org/title/u2"},
		},
		{
			name:    "BlankLinesIgnored",
			content: "\n\nhttps://mangadex.org/title/u1\n\n",
			want:    []string{"https://mangadex.org/title/u1"},
		},
		{
			name:    "IndentedComment",
			content: "   # still a comment\nhttps://mangadex.org/title/u1",
			want:    []string{"https://mangadex.org/title/u1"},
		},
		{
			name:    "OnlyComments",
			content: "# one\n# two\n",
			want:    nil,
		},
		{
			name:    "Empty",
			content: "",
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseURLs(tt.content))
		})
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	content, err := Read(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "", content)
}

func TestWriteAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Write(dir, "https://mangadex.org/title/u1\n"))

	urls, err := ReadURLs(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://mangadex.org/title/u1"}, urls)
}

func TestAppend(t *testing.T) {
	t.Run("NewFileGetsHeader", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Append(dir, "https://mangadex.org/title/u1"))

		data, err := os.ReadFile(Path(dir))
		require.NoError(t, err)

		lines := strings.Split(string(data), "\n")
		require.GreaterOrEqual(t, len(lines), 3)
		assert.True(t, strings.HasPrefix(lines[0], "#"))
		assert.True(t, strings.HasPrefix(lines[1], "#"))
		assert.Equal(t, "https://mangadex.org/title/u1", lines[2])
	})

	t.Run("EnsuresTrailingLFBeforeAppending", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, Write(dir, "https://mangadex.org/title/u1")) // no trailing LF

		require.NoError(t, Append(dir, "https://mangadex.org/title/u2"))

		urls, err := ReadURLs(dir)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"https://mangadex.org/title/u1",
			"https://mangadex.org/title/u2",
		}, urls)
	})
}

func TestRegistry(t *testing.T) {
	t.Run("DefaultLibraryAlwaysExists", func(t *testing.T) {
		reg, err := LoadRegistry(t.TempDir(), "/data/downloads")
		require.NoError(t, err)

		lib, err := reg.Get(DefaultLibraryID)
		require.NoError(t, err)
		assert.Equal(t, "/data/downloads", lib.Root)
	})

	t.Run("LoadsConfiguredLibraries", func(t *testing.T) {
		dir := t.TempDir()
		content := `[{"id":"manga","name":"Manga","root":"/data/manga"}]`
		require.NoError(t, os.WriteFile(filepath.Join(dir, "libraries.json"), []byte(content), 0644))

		reg, err := LoadRegistry(dir, "/data/downloads")
		require.NoError(t, err)
		assert.Len(t, reg.All(), 2)

		lib, err := reg.Get("manga")
		require.NoError(t, err)
		assert.Equal(t, "/data/manga", lib.Root)
	})

	t.Run("UnknownLibrary", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Get("nope")
		assert.ErrorIs(t, err, ErrUnknownLibrary)
	})
}
