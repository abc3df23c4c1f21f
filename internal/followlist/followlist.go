package followlist

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the per-library follow list file, rooted at the library
// directory.
const FileName = "follow.txt"

// header written into newly created follow files
const fileHeader = "# URLs followed by the downloader, one per line.\n" +
	"# Lines starting with '#' are ignored.\n"

// Path returns the follow file location for a library root.
func Path(libraryRoot string) string {
	return filepath.Join(libraryRoot, FileName)
}

// Read returns the raw content of the follow file, or "" when it does not
// exist yet.
func Read(libraryRoot string) (string, error) {
	data, err := os.ReadFile(Path(libraryRoot))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read follow list: %w", err)
	}
	return string(data), nil
}

// ParseURLs extracts the followed URLs from follow file content: one URL per
// line, blank lines ignored, lines whose first non-space character is '#'
// are comments.
func ParseURLs(content string) []string {
	var urls []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		urls = append(urls, trimmed)
	}
	return urls
}

// ReadURLs reads and parses the follow file in one step.
func ReadURLs(libraryRoot string) ([]string, error) {
	content, err := Read(libraryRoot)
	if err != nil {
		return nil, err
	}
	return ParseURLs(content), nil
}

// Write replaces the follow file with the given content (read-copy-update at
// the REST boundary: the whole file is overwritten).
func Write(libraryRoot, content string) error {
	if err := os.MkdirAll(libraryRoot, 0755); err != nil {
		return fmt.Errorf("create library directory: %w", err)
	}
	if err := os.WriteFile(Path(libraryRoot), []byte(content), 0644); err != nil {
		return fmt.Errorf("write follow list: %w", err)
	}
	return nil
}

// Append adds a URL to the follow file, creating it with the comment header
// when missing and making sure existing content ends with a LF before the
// new line goes in.
func Append(libraryRoot, url string) error {
	path := Path(libraryRoot)

	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Write(libraryRoot, fileHeader+url+"\n")
	}
	if err != nil {
		return fmt.Errorf("read follow list: %w", err)
	}

	content := string(existing)
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += url + "\n"
	return Write(libraryRoot, content)
}
