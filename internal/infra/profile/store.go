// Package profile persists the local player profile (remembered name and
// last-used course) and an archive of finished matches in a small sqlite
// database. Remembered identifiers are read once at startup and handed to
// the session as explicit configuration.
package profile

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store handles all local database operations.
type Store struct {
	conn *sql.DB
}

// Profile is the single locally remembered identity row.
type Profile struct {
	PlayerName   string
	LastCourseID string
}

// ArchivedMatch is one finished match, written once on match end.
type ArchivedMatch struct {
	SessionID  string
	MatchID    string
	Player     string
	Winner     string
	Rounds     int
	FinishedAt time.Time
}

// Open creates the database connection and initializes tables.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	if err = createTables(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{conn: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS profile (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			player_name TEXT NOT NULL,
			last_course_id TEXT NOT NULL
		)
	`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS match_archive (
			session_id TEXT PRIMARY KEY,
			match_id TEXT NOT NULL,
			player TEXT NOT NULL,
			winner TEXT NOT NULL,
			rounds INTEGER NOT NULL,
			finished_at INTEGER NOT NULL
		)
	`)
	return err
}

// SaveProfile remembers the player name and course for the next run.
func (s *Store) SaveProfile(playerName, courseID string) error {
	_, err := s.conn.Exec(
		"INSERT OR REPLACE INTO profile (id, player_name, last_course_id) VALUES (1, ?, ?)",
		playerName, courseID,
	)
	return err
}

// LoadProfile returns the remembered identity, or ok=false when none exists.
func (s *Store) LoadProfile() (Profile, bool, error) {
	var p Profile
	err := s.conn.QueryRow(
		"SELECT player_name, last_course_id FROM profile WHERE id = 1",
	).Scan(&p.PlayerName, &p.LastCourseID)
	if err == sql.ErrNoRows {
		return Profile{}, false, nil
	}
	if err != nil {
		return Profile{}, false, err
	}
	return p, true, nil
}

// ArchiveMatch records a finished match. Re-archiving the same session is a
// no-op thanks to the primary key.
func (s *Store) ArchiveMatch(m ArchivedMatch) error {
	_, err := s.conn.Exec(
		"INSERT OR IGNORE INTO match_archive (session_id, match_id, player, winner, rounds, finished_at) VALUES (?, ?, ?, ?, ?, ?)",
		m.SessionID, m.MatchID, m.Player, m.Winner, m.Rounds, m.FinishedAt.Unix(),
	)
	return err
}

// RecentMatches lists the most recently finished matches, newest first.
func (s *Store) RecentMatches(limit int) ([]ArchivedMatch, error) {
	rows, err := s.conn.Query(
		"SELECT session_id, match_id, player, winner, rounds, finished_at FROM match_archive ORDER BY finished_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchivedMatch
	for rows.Next() {
		var m ArchivedMatch
		var ts int64
		if err := rows.Scan(&m.SessionID, &m.MatchID, &m.Player, &m.Winner, &m.Rounds, &ts); err != nil {
			return nil, err
		}
		m.FinishedAt = time.Unix(ts, 0)
		out = append(out, m)
	}
	return out, rows.Err()
}
