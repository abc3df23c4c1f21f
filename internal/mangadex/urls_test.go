package mangadex

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMangaID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{
			name: "PlainTitleURL",
			url:  "https://mangadex.org/title/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			want: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		},
		{
			name: "TitleURLWithSlug",
			url:  "https://mangadex.org/title/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee/some-manga-name",
			want: "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		},
		{
			name: "ChapterURLDoesNotMatch",
			url:  "https://mangadex.org/chapter/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			want: "",
		},
		{
			name: "ForeignURL",
			url:  "https://example.com/title/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
			want: "",
		},
		{
			name: "MalformedUUID",
			url:  "https://mangadex.org/title/not-a-uuid",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractMangaID(tt.url))
		})
	}
}

func TestExtractChapterID(t *testing.T) {
	assert.Equal(t,
		"12345678-90ab-cdef-1234-567890abcdef",
		ExtractChapterID("https://mangadex.org/chapter/12345678-90ab-cdef-1234-567890abcdef"))
	assert.Equal(t, "", ExtractChapterID("https://mangadex.org/title/12345678-90ab-cdef-1234-567890abcdef"))
}

func TestIsMangaDexURL(t *testing.T) {
	assert.True(t, IsMangaDexURL("https://mangadex.org/title/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"))
	assert.True(t, IsMangaDexURL("https://mangadex.org/chapter/aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee"))
	assert.False(t, IsMangaDexURL("https://somesite.example/manga/123"))
}
