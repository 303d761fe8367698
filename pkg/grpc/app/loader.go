package app

import (
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// FileLoader loads the contents of a file URL, such as a TLS certificate
type FileLoader interface {
	Load(u *url.URL) ([]byte, error)
}

// FileLoaderFunc adapts a function to a FileLoader
type FileLoaderFunc func(u *url.URL) ([]byte, error)

func (f FileLoaderFunc) Load(u *url.URL) ([]byte, error) {
	return f(u)
}

var (
	loadersMu sync.RWMutex
	loaders   = map[string]FileLoader{
		"":     FileLoaderFunc(loadLocalFile),
		"file": FileLoaderFunc(loadLocalFile),
	}
)

// RegisterFileLoader registers a FileLoader for a URL scheme. Local files are
// supported without registration, and a scheme can only be registered once.
func RegisterFileLoader(scheme string, loader FileLoader) error {
	loadersMu.Lock()
	defer loadersMu.Unlock()

	if _, exists := loaders[scheme]; exists {
		return errors.Errorf("file loader already registered for scheme '%s'", scheme)
	}
	loaders[scheme] = loader
	return nil
}

// LoadFile loads a file with the loader registered for its URL scheme. Plain
// paths are read from the local filesystem.
func LoadFile(fileURL string) ([]byte, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid file url %s", fileURL)
	}

	loadersMu.RLock()
	loader, exists := loaders[u.Scheme]
	loadersMu.RUnlock()
	if !exists {
		return nil, errors.Errorf("no file loader for scheme '%s'", u.Scheme)
	}

	return loader.Load(u)
}

func loadLocalFile(u *url.URL) ([]byte, error) {
	path := u.Path
	if len(u.Host) > 0 {
		// file://relative/path
		path = filepath.Join(u.Host, u.Path)
	}
	if len(path) == 0 {
		path = u.Opaque
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	return b, nil
}
