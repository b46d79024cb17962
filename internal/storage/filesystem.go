// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// Filesystem stores objects as files under a root directory. Saves are
// atomic and durable: fsync before rename, so a crash never leaves a
// half-written artifact that a later Exists check would mistake for a
// completed stage.
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem backend rooted at root.
func NewFilesystem(root string) *Filesystem {
	return &Filesystem{root: filepath.Clean(root)}
}

// Path resolves name inside the root, rejecting traversal outside it.
func (f *Filesystem) Path(name string) (string, error) {
	p := filepath.Join(f.root, filepath.FromSlash(name))
	p = filepath.Clean(p)
	if p != f.root && !strings.HasPrefix(p, f.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: name %q escapes root", name)
	}
	return p, nil
}

// Exists reports whether a file is present under name.
func (f *Filesystem) Exists(_ context.Context, name string) (bool, error) {
	p, err := f.Path(name)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Open returns a reader for the file stored under name.
func (f *Filesystem) Open(_ context.Context, name string) (io.ReadCloser, error) {
	p, err := f.Path(name)
	if err != nil {
		return nil, err
	}
	return os.Open(p) // #nosec G304 -- confined by Path
}

// Save writes r to name atomically.
func (f *Filesystem) Save(_ context.Context, name string, r io.Reader) error {
	p, err := f.Path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil { // #nosec G301
		return err
	}
	pending, err := renameio.NewPendingFile(p)
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, r); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", name, err)
	}
	return nil
}
