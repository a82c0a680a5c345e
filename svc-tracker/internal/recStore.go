package internal

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	utils "github.com/etesami/manual-lock-tracker/pkg/utils"
)

// TrackEvent is one journaled lock, release or reset.
type TrackEvent struct {
	SessionId string
	FrameId   int64
	Kind      string
	Box       utils.BoundingBox
	Misses    int
	Timestamp time.Time
}

// RecStore is a sqlite journal of sessions and their track events.
type RecStore struct {
	db *sql.DB
}

func OpenRecStore(path string) (*RecStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open record store %s", path)
	}
	// a single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			source            TEXT,
			frame_width       INTEGER,
			frame_height      INTEGER,
			started_at        TIMESTAMP,
			ended_at          TIMESTAMP,
			frames            BIGINT,
			locked_frames     BIGINT,
			locks             BIGINT,
			releases          BIGINT,
			resets            BIGINT,
			mean_iou          DOUBLE,
			stddev_iou        DOUBLE
		);
		CREATE TABLE IF NOT EXISTS track_events (
			session_id        TEXT,
			frame_id          BIGINT,
			kind              TEXT,
			x1                DOUBLE,
			y1                DOUBLE,
			x2                DOUBLE,
			y2                DOUBLE,
			misses            INTEGER,
			timestamp         TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create record store schema")
	}
	return &RecStore{db: db}, nil
}

func (rs *RecStore) StartSession(sessionId, source string, width, height int, startedAt time.Time) error {
	_, err := rs.db.Exec(
		`INSERT INTO sessions (session_id, source, frame_width, frame_height, started_at) VALUES (?, ?, ?, ?, ?)`,
		sessionId, source, width, height, startedAt.UTC(),
	)
	return errors.Wrapf(err, "start session %s", sessionId)
}

func (rs *RecStore) RecordEvent(ev TrackEvent) error {
	_, err := rs.db.Exec(
		`INSERT INTO track_events (session_id, frame_id, kind, x1, y1, x2, y2, misses, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.SessionId, ev.FrameId, ev.Kind, ev.Box.X1, ev.Box.Y1, ev.Box.X2, ev.Box.Y2, ev.Misses, ev.Timestamp.UTC(),
	)
	return errors.Wrapf(err, "record %s event", ev.Kind)
}

func (rs *RecStore) EndSession(s Summary, endedAt time.Time) error {
	_, err := rs.db.Exec(
		`UPDATE sessions SET ended_at = ?, frames = ?, locked_frames = ?, locks = ?, releases = ?, resets = ?, mean_iou = ?, stddev_iou = ? WHERE session_id = ?`,
		endedAt.UTC(), s.Frames, s.LockedFrames, s.Locks, s.Releases, s.Resets, s.MeanIoU, s.StdDevIoU, s.SessionId,
	)
	return errors.Wrapf(err, "end session %s", s.SessionId)
}

// Events returns the journal of one session in insertion order.
func (rs *RecStore) Events(sessionId string) ([]TrackEvent, error) {
	rows, err := rs.db.Query(
		`SELECT session_id, frame_id, kind, x1, y1, x2, y2, misses, timestamp FROM track_events WHERE session_id = ? ORDER BY rowid`,
		sessionId,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query track events")
	}
	defer rows.Close()

	var events []TrackEvent
	for rows.Next() {
		var ev TrackEvent
		if err := rows.Scan(&ev.SessionId, &ev.FrameId, &ev.Kind, &ev.Box.X1, &ev.Box.Y1, &ev.Box.X2, &ev.Box.Y2, &ev.Misses, &ev.Timestamp); err != nil {
			return nil, errors.Wrap(err, "scan track event")
		}
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "iterate track events")
}

// SessionSummary reads back the stored summary of a finished session.
func (rs *RecStore) SessionSummary(sessionId string) (Summary, error) {
	s := Summary{SessionId: sessionId}
	err := rs.db.QueryRow(
		`SELECT frames, locked_frames, locks, releases, resets, mean_iou, stddev_iou FROM sessions WHERE session_id = ?`,
		sessionId,
	).Scan(&s.Frames, &s.LockedFrames, &s.Locks, &s.Releases, &s.Resets, &s.MeanIoU, &s.StdDevIoU)
	return s, errors.Wrapf(err, "read session %s", sessionId)
}

func (rs *RecStore) Close() error {
	return rs.db.Close()
}
