// Package blob stores normalized doodle images on the local filesystem or in
// an S3 compatible bucket.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrNotFound is returned by Open when no image has the given name.
var ErrNotFound = errors.New("image not found")

// ValidName reports whether name is a flat file name that is safe to use as a
// storage key.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && filepath.Base(name) == name
}

// Dir stores images as files in a directory.
type Dir struct {
	root string
}

// NewDir returns a Dir rooted at root, creating the directory if needed.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Save writes data under name. The file appears atomically.
func (d *Dir) Save(_ context.Context, name string, data []byte) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid image name %q", name)
	}
	tmp, err := os.CreateTemp(d.root, ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.root, name)); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Remove deletes name. Removing a missing file is not an error.
func (d *Dir) Remove(_ context.Context, name string) error {
	if !ValidName(name) {
		return fmt.Errorf("invalid image name %q", name)
	}
	if err := os.Remove(filepath.Join(d.root, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove: %w", err)
	}
	return nil
}

// Open returns a reader for name.
func (d *Dir) Open(_ context.Context, name string) (io.ReadCloser, error) {
	if !ValidName(name) {
		return nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(d.root, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	return f, nil
}
