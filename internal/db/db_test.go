// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package db

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitDSN(t *testing.T) {
	cases := []struct {
		conn   string
		driver string
		dsn    string
	}{
		{"postgres://user:pw@localhost/archive", "postgres", "postgres://user:pw@localhost/archive"},
		{"postgresql://localhost/archive", "postgres", "postgresql://localhost/archive"},
		{"sqlite:///var/lib/archive/jobs.db", "sqlite", "/var/lib/archive/jobs.db"},
		{":memory:", "sqlite", ":memory:"},
		{"jobs.db", "sqlite", "jobs.db"},
		{"archive.sqlite", "sqlite", "archive.sqlite"},
	}
	for _, tc := range cases {
		driver, dsn, err := splitDSN(tc.conn)
		require.NoError(t, err, tc.conn)
		require.Equal(t, tc.driver, driver, tc.conn)
		require.Equal(t, tc.dsn, dsn, tc.conn)
	}

	_, _, err := splitDSN("mysql://localhost/archive")
	require.Error(t, err)
}

func TestOpenAndMigrate(t *testing.T) {
	d, err := Open(":memory:")
	require.NoError(t, err)
	defer d.Close()

	require.NoError(t, Migrate(d))
	// Migrations are idempotent.
	require.NoError(t, Migrate(d))

	var types []string
	require.NoError(t, d.Select(&types, `SELECT name FROM chat_archive_types ORDER BY name`))
	require.Equal(t, []string{"STITCHED_AUDIO", "USER_AUDIO", "USER_VIDEO"}, types)

	var exts []string
	require.NoError(t, d.Select(&exts, `SELECT extension FROM mime_types ORDER BY extension`))
	require.Equal(t, []string{".mp3", ".mp4", ".png", ".wav"}, exts)
}
