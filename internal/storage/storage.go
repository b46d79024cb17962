// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package storage provides the bounded storage pools the pipeline runs
// against: a local filesystem working area and remote object containers.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNoLocalPath is returned by Path on backends that are not reachable
// through the local filesystem.
var ErrNoLocalPath = errors.New("storage: backend has no local path")

// Backend is one storage handle. Handles are held exclusively by one scope
// at a time via Pool.
type Backend interface {
	// Exists reports whether an object is stored under name.
	Exists(ctx context.Context, name string) (bool, error)
	// Open returns a reader for the object stored under name.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// Save stores the contents of r under name, replacing any prior object.
	Save(ctx context.Context, name string, r io.Reader) error
}

// Pather is implemented by backends whose objects are directly addressable
// as local filesystem paths.
type Pather interface {
	Path(name string) (string, error)
}

// LocalPath resolves name to a filesystem path if the backend supports it,
// or returns ErrNoLocalPath.
func LocalPath(b Backend, name string) (string, error) {
	if p, ok := b.(Pather); ok {
		return p.Path(name)
	}
	return "", ErrNoLocalPath
}

// Copy streams the object called name from src to dst under the same name.
func Copy(ctx context.Context, dst, src Backend, name string) error {
	r, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return dst.Save(ctx, name, r)
}
