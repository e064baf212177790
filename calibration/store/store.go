// Package store keeps a history of calibration runs in a sqlite database.
package store

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	// registers the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/EminentCodfish/GoPro-Calibration-Distortion-Removal/rimage/transform"
)

// ErrNotFound is returned when no calibration matches a query.
var ErrNotFound = errors.New("no calibration found")

//go:embed schema.sql
var schemaSQL string

// Store is a sqlite backed calibration history.
type Store struct {
	db *sql.DB
}

// Entry summarizes one recorded calibration.
type Entry struct {
	ID                    string
	CreatedAt             time.Time
	Width                 int
	Height                int
	MeanReprojectionError float64
	RMSError              float64
	Observations          int
	Source                string
}

// Open opens or creates the database at path. ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open calibration history %q", path)
	}
	// a second connection to ":memory:" would see a different database
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, multierr.Combine(errors.Wrap(err, "cannot initialize calibration history"), db.Close())
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores an artifact along with how many observations produced it and where they came from.
func (s *Store) Record(ctx context.Context, a *transform.CalibrationArtifact, observations int, source string) error {
	var buf bytes.Buffer
	if err := transform.WriteModelJSON(&buf, a); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibrations (id, created_at_ns, width_px, height_px, mean_reprojection_error, rms_error,
			observations, source, artifact)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.CreatedAt.UnixNano(), a.Width, a.Height, a.MeanReprojectionError, a.RMSError,
		observations, source, buf.String())
	if err != nil {
		return errors.Wrapf(err, "failed to record calibration %s", a.ID)
	}
	return nil
}

// Latest returns the most recent calibration for the given resolution.
func (s *Store) Latest(ctx context.Context, width, height int) (*transform.CalibrationArtifact, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT artifact FROM calibrations
		WHERE width_px = ? AND height_px = ?
		ORDER BY created_at_ns DESC, rowid DESC
		LIMIT 1`, width, height).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "for %dx%d", width, height)
	}
	if err != nil {
		return nil, err
	}
	return transform.ReadModelJSON(bytes.NewReader([]byte(payload)))
}

// Get returns the calibration with the given id.
func (s *Store) Get(ctx context.Context, id string) (*transform.CalibrationArtifact, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT artifact FROM calibrations WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "with id %s", id)
	}
	if err != nil {
		return nil, err
	}
	return transform.ReadModelJSON(bytes.NewReader([]byte(payload)))
}

// List returns every recorded calibration, newest first.
func (s *Store) List(ctx context.Context) (entries []Entry, err error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at_ns, width_px, height_px, mean_reprojection_error, rms_error, observations, source
		FROM calibrations
		ORDER BY created_at_ns DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Combine(err, rows.Close())
	}()
	for rows.Next() {
		var e Entry
		var createdNs int64
		if err := rows.Scan(&e.ID, &createdNs, &e.Width, &e.Height, &e.MeanReprojectionError, &e.RMSError,
			&e.Observations, &e.Source); err != nil {
			return nil, err
		}
		e.CreatedAt = time.Unix(0, createdNs).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
