package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/osa030/tunedeck/internal/domain/queue"
)

const (
	listQueue = "queue"
	listBase  = "base"
)

func getSession(db *sql.DB) (*SessionState, error) {
	var (
		state      SessionState
		positionMs int64
		savedAt    int64
	)
	row := db.QueryRow(`SELECT current_index, position_ms, repeat_mode, shuffle, saved_at FROM session_state WHERE id = 1`)
	err := row.Scan(&state.CurrentIndex, &positionMs, &state.Repeat, &state.Shuffle, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state.Position = time.Duration(positionMs) * time.Millisecond
	state.SavedAt = time.UnixMilli(savedAt)

	rows, err := db.Query(`
		SELECT list, entry_key, track_id, title, artist, album, image, uri, duration_ms
		FROM session_entries
		ORDER BY list, position
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			list                 string
			e                    queue.Entry
			artist, album, image sql.NullString
			durationMs           int64
		)
		err := rows.Scan(&list, &e.Key, &e.Track.ID, &e.Track.Title, &artist, &album, &image, &e.Track.URI, &durationMs)
		if err != nil {
			return nil, err
		}
		e.Track.Artist = artist.String
		e.Track.Album = album.String
		e.Track.Image = image.String
		e.Track.Duration = time.Duration(durationMs) * time.Millisecond

		if list == listBase {
			state.Base = append(state.Base, e)
		} else {
			state.Queue = append(state.Queue, e)
		}
	}
	return &state, rows.Err()
}

func saveSession(db *sql.DB, state SessionState) error {
	savedAt := state.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now()
	}

	return withTx(db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`DELETE FROM session_entries`); err != nil {
			return err
		}

		_, err := tx.Exec(`
			INSERT INTO session_state (id, current_index, position_ms, repeat_mode, shuffle, saved_at)
			VALUES (1, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				current_index = excluded.current_index,
				position_ms = excluded.position_ms,
				repeat_mode = excluded.repeat_mode,
				shuffle = excluded.shuffle,
				saved_at = excluded.saved_at
		`, state.CurrentIndex, state.Position.Milliseconds(), state.Repeat, state.Shuffle, savedAt.UnixMilli())
		if err != nil {
			return err
		}

		stmt, err := tx.Prepare(`
			INSERT INTO session_entries (list, position, entry_key, track_id, title, artist, album, image, uri, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		insert := func(list string, entries []queue.Entry) error {
			for i, e := range entries {
				if _, err := stmt.Exec(list, i, e.Key, e.Track.ID, e.Track.Title,
					nullString(e.Track.Artist), nullString(e.Track.Album), nullString(e.Track.Image),
					e.Track.URI, e.Track.Duration.Milliseconds()); err != nil {
					return err
				}
			}
			return nil
		}
		if err := insert(listQueue, state.Queue); err != nil {
			return err
		}
		return insert(listBase, state.Base)
	})
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

