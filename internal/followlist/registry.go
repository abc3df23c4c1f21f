package followlist

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Library is one destination the downloader can write into.
type Library struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Root string `json:"root"`
}

// ErrUnknownLibrary is returned for lookups of libraries the registry does
// not know.
var ErrUnknownLibrary = errors.New("unknown library")

// DefaultLibraryID names the implicit library backed by the downloads
// directory.
const DefaultLibraryID = "default"

// Registry resolves library ids to their directories. Libraries are read
// from {configDir}/libraries.json when present; the default downloads
// library always exists.
type Registry struct {
	libraries []Library
}

// LoadRegistry builds the registry from the optional libraries.json next to
// the rest of the configuration.
func LoadRegistry(configDir, downloadsDir string) (*Registry, error) {
	libraries := []Library{{ID: DefaultLibraryID, Name: "Downloads", Root: downloadsDir}}

	path := filepath.Join(configDir, "libraries.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Registry{libraries: libraries}, nil
		}
		return nil, fmt.Errorf("read libraries.json: %w", err)
	}

	var configured []Library
	if err := json.Unmarshal(data, &configured); err != nil {
		return nil, fmt.Errorf("parse libraries.json: %w", err)
	}
	libraries = append(libraries, configured...)

	return &Registry{libraries: libraries}, nil
}

// NewRegistry builds a registry from explicit libraries (used in tests and
// by the embedding application).
func NewRegistry(libraries ...Library) *Registry {
	return &Registry{libraries: libraries}
}

// All returns every known library.
func (r *Registry) All() []Library {
	out := make([]Library, len(r.libraries))
	copy(out, r.libraries)
	return out
}

// Get resolves a library by id.
func (r *Registry) Get(id string) (Library, error) {
	for _, lib := range r.libraries {
		if lib.ID == id {
			return lib, nil
		}
	}
	return Library{}, fmt.Errorf("%w: %s", ErrUnknownLibrary, id)
}
