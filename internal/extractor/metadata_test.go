package extractor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"komgadl/internal/mangadex"
)

type stubCatalog struct {
	meta *mangadex.MangaMetadata
}

func (s *stubCatalog) GetManga(ctx context.Context, mangaID string) *mangadex.MangaMetadata {
	return s.meta
}

func TestGetMetadataQuick(t *testing.T) {
	requirePOSIX(t)
	ctx := context.Background()

	t.Run("CatalogURLUsesCatalogClient", func(t *testing.T) {
		d := NewDriver(shCommand("exit 1"), 0, 0, 0)
		catalog := &stubCatalog{meta: &mangadex.MangaMetadata{Title: "From Catalog"}}

		meta, err := d.GetMetadataQuick(ctx,
			"https://mangadex.org/title/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee", catalog)
		require.NoError(t, err)
		assert.Equal(t, "From Catalog", meta.Title)
	})

	t.Run("NonCatalogURLFallsBackToSimulate", func(t *testing.T) {
		script := `cat <<'EOF'
[2, "http://example.com/1", {"manga": "Simulated Title", "lang": "en", "author": "Someone"}]
[2, "http://example.com/2", {"manga_alt": "シミュレート"}]
EOF`
		d := NewDriver(shCommand(script), 0, 0, 0)

		meta, err := d.GetMetadataQuick(ctx, "http://example.com/manga", nil)
		require.NoError(t, err)
		assert.Equal(t, "Simulated Title", meta.Title)
		assert.Equal(t, "Someone", meta.Author)
		assert.Equal(t, "ja", meta.AlternativeTitles["シミュレート"])
	})

	t.Run("NoTitleIsAnError", func(t *testing.T) {
		d := NewDriver(shCommand(`echo '[2, "u", {"other": 1}]'`), 0, 0, 0)
		_, err := d.GetMetadataQuick(ctx, "http://example.com/manga", nil)
		assert.Error(t, err)
	})

	t.Run("SimulateFailureIsAnError", func(t *testing.T) {
		d := NewDriver(shCommand("exit 4"), 0, 0, 0)
		_, err := d.GetMetadataQuick(ctx, "http://example.com/manga", nil)
		assert.Error(t, err)
	})
}

func TestParseSimulateOutput(t *testing.T) {
	t.Run("EnglishEntryWinsOverFirst", func(t *testing.T) {
		output := []byte(`
[2, "u1", {"manga": "日本語タイトル", "lang": "ja"}]
[2, "u2", {"manga": "English Title", "lang": "en"}]
`)
		meta := parseSimulateOutput(output)
		require.NotNil(t, meta)
		assert.Equal(t, "English Title", meta.Title)
	})

	t.Run("FirstEntryWhenNoEnglish", func(t *testing.T) {
		output := []byte(`[2, "u1", {"manga": "日本語タイトル", "lang": "ja"}]`)
		meta := parseSimulateOutput(output)
		require.NotNil(t, meta)
		assert.Equal(t, "日本語タイトル", meta.Title)
	})

	t.Run("GarbageLinesSkipped", func(t *testing.T) {
		output := []byte("not json\n[1]\n[2, \"u\", {\"manga\": \"Title\"}]\n")
		meta := parseSimulateOutput(output)
		require.NotNil(t, meta)
		assert.Equal(t, "Title", meta.Title)
	})

	t.Run("NoTitleReturnsNil", func(t *testing.T) {
		assert.Nil(t, parseSimulateOutput([]byte("")))
	})
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ひらがな", "ja"},
		{"カタカナ", "ja"},
		{"漢字とかな", "ja"},
		{"한국어", "ko"},
		{"中文标题", "zh"},
		{"Plain English", "unknown"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.in), tt.in)
	}
}

func TestWriteConfigFile(t *testing.T) {
	t.Run("GeneratesPlacementAndPostprocessor", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "gallery-dl.conf")
		err := WriteConfigFile(path, ConfigOptions{
			PreferredLanguage: "en",
			Username:          "user",
			Password:          "pass",
		})
		require.NoError(t, err)

		data, err := os.ReadFile(path)
		require.NoError(t, err)

		var cfg map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &cfg))

		ex, ok := cfg["extractor"].(map[string]interface{})
		require.True(t, ok)

		md, ok := ex["mangadex"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "en", md["lang"])
		assert.Equal(t, "user", md["username"])

		pps, ok := ex["postprocessors"].([]interface{})
		require.True(t, ok)
		require.Len(t, pps, 1)
		pp := pps[0].(map[string]interface{})
		assert.Equal(t, "zip", pp["name"])
		assert.Equal(t, "store", pp["compression"])
		assert.Equal(t, "cbz", pp["extension"])
		assert.Equal(t, false, pp["keep-files"])
	})

	t.Run("Deterministic", func(t *testing.T) {
		dir := t.TempDir()
		opts := ConfigOptions{PreferredLanguage: "en"}

		a := filepath.Join(dir, "a.conf")
		b := filepath.Join(dir, "b.conf")
		require.NoError(t, WriteConfigFile(a, opts))
		require.NoError(t, WriteConfigFile(b, opts))

		da, _ := os.ReadFile(a)
		db, _ := os.ReadFile(b)
		assert.Equal(t, da, db)
	})
}

func TestResolveOverride(t *testing.T) {
	cmd, err := Resolve("/opt/custom/gallery-dl")
	require.NoError(t, err)
	assert.Equal(t, "/opt/custom/gallery-dl", cmd.Name)
	assert.Empty(t, cmd.Args)
}
