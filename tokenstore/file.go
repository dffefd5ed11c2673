package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout. Field names match the storage keys.
type fileDocument struct {
	Token        string `yaml:"token,omitempty"`
	RefreshToken string `yaml:"refreshToken,omitempty"`
}

// File is a [Store] that keeps both tokens in a small YAML document, the
// on-disk counterpart of browser local storage. Writes replace the file
// atomically through a temporary sibling and are restricted to the owner.
type File struct {
	path string
	mu   sync.Mutex
}

// NewFile returns a store persisting to path. The parent directory is created
// on first write.
func NewFile(path string) *File {
	return &File{path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load implements [Store]. A missing file is an empty pair.
func (f *File) Load(_ context.Context) (Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: doc.Token, Refresh: doc.RefreshToken}, nil
}

// Save implements [Store].
func (f *File) Save(_ context.Context, pair Pair) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.write(fileDocument{Token: pair.Access, RefreshToken: pair.Refresh})
}

// SetAccess implements [Store].
func (f *File) SetAccess(_ context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	doc, err := f.read()
	if err != nil {
		return err
	}
	doc.Token = token
	return f.write(doc)
}

// Clear implements [Store]. The file is removed.
func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (f *File) read() (fileDocument, error) {
	var doc fileDocument

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return doc, nil
		}
		return doc, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fileDocument{}, fmt.Errorf("%w: corrupt token file: %v", ErrUnavailable, err)
	}
	return doc, nil
}

func (f *File) write(doc fileDocument) error {
	if doc.Token == "" && doc.RefreshToken == "" {
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil
	}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}
