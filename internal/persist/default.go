// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package persist

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/ManuGH/archivesvc/internal/log"
	"github.com/ManuGH/archivesvc/internal/metrics"
	"github.com/ManuGH/archivesvc/internal/storage"
	"github.com/ManuGH/archivesvc/internal/stream"
)

// Default persists streams by classification: stitched audio goes to the
// public container, everything else to the private one. Uploads happen
// before the database transaction so a failed insert never references a
// missing object.
type Default struct {
	db      *sqlx.DB
	local   *storage.Pool
	public  *storage.Pool
	private *storage.Pool
	logger  zerolog.Logger
}

// NewDefault builds a persister. public or private may be nil, in which
// case uploads to that container are skipped.
func NewDefault(d *sqlx.DB, local, public, private *storage.Pool) *Default {
	return &Default{
		db:      d,
		local:   local,
		public:  public,
		private: private,
		logger:  log.WithComponent("persist"),
	}
}

// Persist implements Persister.
func (p *Default) Persist(ctx context.Context, sessionID int64, streams []stream.Stream) error {
	if err := p.upload(ctx, streams, true); err != nil {
		return err
	}
	if err := p.upload(ctx, streams, false); err != nil {
		return err
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return wrap(err, "begin transaction for session %d", sessionID)
	}
	defer func() { _ = tx.Rollback() }()

	for _, st := range streams {
		if err := p.insertStream(ctx, tx, sessionID, st); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return wrap(err, "commit session %d", sessionID)
	}
	return nil
}

// upload copies the streams of one classification from local storage to
// their container, skipping objects that are already there.
func (p *Default) upload(ctx context.Context, streams []stream.Stream, public bool) error {
	pool := p.private
	class := "private"
	if public {
		pool = p.public
		class = "public"
	}
	if pool == nil {
		return nil
	}

	return pool.With(ctx, func(remote storage.Backend) error {
		return p.local.With(ctx, func(local storage.Backend) error {
			for _, st := range streams {
				if (st.Type == stream.TypeStitchedAudio) != public {
					continue
				}
				exists, err := remote.Exists(ctx, st.Filename)
				if err != nil {
					metrics.UploadsTotal.WithLabelValues(class, "error").Inc()
					return wrap(err, "check %s in %s container", st.Filename, class)
				}
				if exists {
					p.logger.Debug().
						Str(log.FieldPath, st.Filename).
						Str(log.FieldContainer, class).
						Msg("artifact already uploaded, skipping")
					continue
				}

				p.logger.Info().
					Str(log.FieldPath, st.Filename).
					Str(log.FieldContainer, class).
					Msg("uploading artifact")
				if err := storage.Copy(ctx, remote, local, st.Filename); err != nil {
					metrics.UploadsTotal.WithLabelValues(class, "error").Inc()
					return wrap(err, "upload %s to %s container", st.Filename, class)
				}
				metrics.UploadsTotal.WithLabelValues(class, "ok").Inc()

				if st.WaveformFilename != "" && st.Type == stream.TypeStitchedAudio {
					if err := p.uploadWaveform(ctx, remote, local, st.WaveformFilename, class); err != nil {
						return err
					}
				}
			}
			return nil
		})
	})
}

func (p *Default) uploadWaveform(ctx context.Context, remote, local storage.Backend, name, class string) error {
	exists, err := remote.Exists(ctx, name)
	if err != nil {
		return wrap(err, "check %s in %s container", name, class)
	}
	if exists {
		return nil
	}
	onLocal, err := local.Exists(ctx, name)
	if err != nil {
		return wrap(err, "check %s in local storage", name)
	}
	if !onLocal {
		// Rendered directly into the stream pool, nothing to copy.
		return nil
	}
	p.logger.Info().
		Str(log.FieldPath, name).
		Str(log.FieldContainer, class).
		Msg("uploading waveform image")
	if err := storage.Copy(ctx, remote, local, name); err != nil {
		metrics.UploadsTotal.WithLabelValues(class, "error").Inc()
		return wrap(err, "upload %s to %s container", name, class)
	}
	metrics.UploadsTotal.WithLabelValues(class, "ok").Inc()
	return nil
}

// insertStream writes one chat archive row and its user links, rejecting
// a path that is already archived.
func (p *Default) insertStream(ctx context.Context, tx *sqlx.Tx, sessionID int64, st stream.Stream) error {
	typeID, err := p.typeID(ctx, tx, string(st.Type))
	if err != nil {
		return err
	}
	mimeID, err := p.mimeTypeID(ctx, tx, st.Filename)
	if err != nil {
		return err
	}

	var count int
	if err := tx.GetContext(ctx, &count,
		tx.Rebind(`SELECT COUNT(*) FROM chat_archives WHERE path = ?`), st.Filename); err != nil {
		return wrap(err, "check path %s", st.Filename)
	}
	if count != 0 {
		return errorf("archive already exists for path %s", st.Filename)
	}

	var length sql.NullInt64
	if st.LengthMS > 0 {
		length = sql.NullInt64{Int64: st.LengthMS, Valid: true}
	}

	archiveID, err := p.insertArchive(ctx, tx, archiveRow{
		SessionID:  sessionID,
		TypeID:     typeID,
		Path:       st.Filename,
		MimeTypeID: mimeID,
		Public:     st.Type == stream.TypeStitchedAudio,
		Length:     length,
		Offset:     st.OffsetMS,
	})
	if err != nil {
		return err
	}

	for _, userID := range st.Users {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO chat_archive_users (user_id, chat_archive_id) VALUES (?, ?)`),
			userID, archiveID); err != nil {
			return wrap(err, "link user %d to %s", userID, st.Filename)
		}
	}
	return nil
}

type archiveRow struct {
	SessionID  int64
	TypeID     int64
	Path       string
	MimeTypeID int64
	Public     bool
	Length     sql.NullInt64
	Offset     int64
}

// insertArchive returns the new row id. lib/pq has no LastInsertId, so
// postgres takes the RETURNING path.
func (p *Default) insertArchive(ctx context.Context, tx *sqlx.Tx, row archiveRow) (int64, error) {
	const cols = `(session_id, type_id, path, mime_type_id, public, length, "offset")`

	if p.db.DriverName() == "postgres" {
		var id int64
		query := tx.Rebind(`INSERT INTO chat_archives ` + cols + ` VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`)
		if err := tx.GetContext(ctx, &id, query,
			row.SessionID, row.TypeID, row.Path, row.MimeTypeID, row.Public, row.Length, row.Offset); err != nil {
			return 0, wrap(err, "insert archive %s", row.Path)
		}
		return id, nil
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`INSERT INTO chat_archives `+cols+` VALUES (?, ?, ?, ?, ?, ?, ?)`),
		row.SessionID, row.TypeID, row.Path, row.MimeTypeID, row.Public, row.Length, row.Offset)
	if err != nil {
		return 0, wrap(err, "insert archive %s", row.Path)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap(err, "insert archive %s", row.Path)
	}
	return id, nil
}

func (p *Default) typeID(ctx context.Context, tx *sqlx.Tx, name string) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id,
		tx.Rebind(`SELECT id FROM chat_archive_types WHERE name = ?`), name)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errorf("unknown archive type %q", name)
	}
	if err != nil {
		return 0, wrap(err, "look up archive type %q", name)
	}
	return id, nil
}

// mimeTypeID resolves the mime id from the filename extension, dot
// included, as stored in the mime_types table.
func (p *Default) mimeTypeID(ctx context.Context, tx *sqlx.Tx, filename string) (int64, error) {
	ext := filepath.Ext(filename)
	var id int64
	err := tx.GetContext(ctx, &id,
		tx.Rebind(`SELECT id FROM mime_types WHERE extension = ?`), ext)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errorf("no mime type for extension %q", ext)
	}
	if err != nil {
		return 0, wrap(err, "look up mime type for %q", ext)
	}
	return id, nil
}
