// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFilesystemSaveOpenExists(t *testing.T) {
	fs := NewFilesystem(t.TempDir())
	ctx := context.Background()

	ok, err := fs.Exists(ctx, "archive/2A.mp3")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, fs.Save(ctx, "archive/2A.mp3", strings.NewReader("audio")))

	ok, err = fs.Exists(ctx, "archive/2A.mp3")
	require.NoError(t, err)
	require.True(t, ok)

	r, err := fs.Open(ctx, "archive/2A.mp3")
	require.NoError(t, err)
	defer r.Close()
	raw, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "audio", string(raw))
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	fs := NewFilesystem(t.TempDir())
	for _, name := range []string{"../outside", "archive/../../etc/passwd"} {
		_, err := fs.Path(name)
		require.Error(t, err, "name %q must not escape the root", name)
	}

	// Dotted segments that stay inside the root are fine.
	_, err := fs.Path("archive/../archive/2A.mp3")
	require.NoError(t, err)
}

func TestFilesystemSaveReplacesAtomically(t *testing.T) {
	root := t.TempDir()
	fs := NewFilesystem(root)
	ctx := context.Background()

	require.NoError(t, fs.Save(ctx, "a.mp3", strings.NewReader("one")))
	require.NoError(t, fs.Save(ctx, "a.mp3", strings.NewReader("two")))

	raw, err := os.ReadFile(filepath.Join(root, "a.mp3"))
	require.NoError(t, err)
	require.Equal(t, "two", string(raw))

	// No temp files left behind.
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCopyBetweenBackends(t *testing.T) {
	srcRoot, dstRoot := t.TempDir(), t.TempDir()
	src, dst := NewFilesystem(srcRoot), NewFilesystem(dstRoot)
	ctx := context.Background()

	require.NoError(t, src.Save(ctx, "archive/2A.mp4", strings.NewReader("stitched")))
	require.NoError(t, Copy(ctx, dst, src, "archive/2A.mp4"))

	raw, err := os.ReadFile(filepath.Join(dstRoot, "archive", "2A.mp4"))
	require.NoError(t, err)
	require.Equal(t, "stitched", string(raw))
}

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, func() Backend {
		return NewFilesystem(t.TempDir())
	})
	ctx := context.Background()

	_, release1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	_, release2, err := pool.Acquire(ctx)
	require.NoError(t, err)

	// Saturated: a third acquire blocks until a handle comes back.
	bounded, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, _, err = pool.Acquire(bounded)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release1()
	_, release3, err := pool.Acquire(ctx)
	require.NoError(t, err)
	release3()
	release2()
}

func TestPoolReleaseIsIdempotent(t *testing.T) {
	pool := NewPool(1, func() Backend {
		return NewFilesystem(t.TempDir())
	})
	ctx := context.Background()

	_, release, err := pool.Acquire(ctx)
	require.NoError(t, err)
	release()
	release() // second call must not duplicate the handle

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, r, err := pool.Acquire(ctx)
		if err == nil {
			r()
		}
	}()
	wg.Wait()

	// Exactly one handle in the pool.
	_, r1, err := pool.Acquire(ctx)
	require.NoError(t, err)
	bounded, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, _, err = pool.Acquire(bounded)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	r1()
}

func TestWithReleasesOnError(t *testing.T) {
	pool := NewPool(1, func() Backend {
		return NewFilesystem(t.TempDir())
	})
	ctx := context.Background()

	require.Error(t, pool.With(ctx, func(Backend) error {
		return io.ErrUnexpectedEOF
	}))

	// The handle must be back despite the callback error.
	require.NoError(t, pool.With(ctx, func(Backend) error { return nil }))
}

// opaque is a backend with no filesystem location.
type opaque struct{ Backend }

func TestLocalPath(t *testing.T) {
	fs := NewFilesystem(t.TempDir())
	p, err := LocalPath(fs, "archive/2A.mp3")
	require.NoError(t, err)
	require.NotEmpty(t, p)

	_, err = LocalPath(opaque{Backend: fs}, "archive/2A.mp3")
	require.ErrorIs(t, err, ErrNoLocalPath)
}
