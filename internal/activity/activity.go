package activity

import (
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/zerocas99/zenload/internal/media"
)

const schema = `
CREATE TABLE IF NOT EXISTS download_attempts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	url TEXT NOT NULL,
	platform TEXT NOT NULL,
	ts DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS downloads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	url TEXT NOT NULL,
	success INTEGER NOT NULL,
	file_type TEXT,
	file_size INTEGER,
	duration_s REAL,
	error TEXT,
	ts DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS quality_prefs (
	scope TEXT NOT NULL,
	scope_id INTEGER NOT NULL,
	mode TEXT NOT NULL,
	height INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (scope, scope_id)
);
CREATE INDEX IF NOT EXISTS idx_attempts_user ON download_attempts(user_id);
CREATE INDEX IF NOT EXISTS idx_downloads_user ON downloads(user_id);
`

// Attempt is one inbound request, recorded before any work starts.
type Attempt struct {
	UserID   int64
	URL      string
	Platform string
}

// Outcome is one finished download, success or not.
type Outcome struct {
	UserID   int64
	URL      string
	Success  bool
	FileType string
	FileSize int64
	Duration time.Duration
	Error    string
}

// Log is the activity store. Writes are fire-and-forget through a buffered
// channel so the download path never waits on sqlite; overflow drops.
type Log struct {
	db     *sqlx.DB
	events chan any
	done   chan struct{}
}

func Open(path string) (*Log, error) {
	db, err := sqlx.Connect("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	l := &Log{
		db:     db,
		events: make(chan any, 256),
		done:   make(chan struct{}),
	}
	go l.writer()
	return l, nil
}

func (l *Log) writer() {
	defer close(l.done)
	for ev := range l.events {
		var err error
		switch e := ev.(type) {
		case Attempt:
			_, err = l.db.Exec(
				`INSERT INTO download_attempts (user_id, url, platform) VALUES (?, ?, ?)`,
				e.UserID, e.URL, e.Platform)
		case Outcome:
			_, err = l.db.Exec(
				`INSERT INTO downloads (user_id, url, success, file_type, file_size, duration_s, error)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				e.UserID, e.URL, e.Success, e.FileType, e.FileSize, e.Duration.Seconds(), e.Error)
		}
		if err != nil {
			log.Printf("[Activity] Write failed: %v", err)
		}
	}
}

func (l *Log) record(ev any) {
	select {
	case l.events <- ev:
	default:
		// Store is backed up; dropping beats stalling a download.
	}
}

func (l *Log) RecordAttempt(a Attempt) { l.record(a) }
func (l *Log) RecordOutcome(o Outcome) { l.record(o) }

// DefaultQuality resolves the stored preference for a user, falling back to
// the chat's preference, then to ask.
func (l *Log) DefaultQuality(userID, chatID int64) media.Quality {
	if q, ok := l.lookupPref("user", userID); ok {
		return q
	}
	if q, ok := l.lookupPref("chat", chatID); ok {
		return q
	}
	return media.QualityAsk
}

// SetQuality stores a preference row for a user or chat scope.
func (l *Log) SetQuality(scope string, scopeID int64, q media.Quality) error {
	_, err := l.db.Exec(
		`INSERT INTO quality_prefs (scope, scope_id, mode, height) VALUES (?, ?, ?, ?)
		 ON CONFLICT(scope, scope_id) DO UPDATE SET mode = excluded.mode, height = excluded.height`,
		scope, scopeID, q.Mode, q.Height)
	return err
}

func (l *Log) lookupPref(scope string, scopeID int64) (media.Quality, bool) {
	var row struct {
		Mode   string `db:"mode"`
		Height int    `db:"height"`
	}
	err := l.db.Get(&row, `SELECT mode, height FROM quality_prefs WHERE scope = ? AND scope_id = ?`, scope, scopeID)
	if err != nil {
		return media.Quality{}, false
	}
	switch row.Mode {
	case "best":
		return media.QualityBest, true
	case "height":
		return media.QualityHeightOf(row.Height), true
	case "ask":
		return media.QualityAsk, true
	}
	return media.Quality{}, false
}

// Stats summarizes recorded downloads for the ops surface.
type Stats struct {
	TotalAttempts int64 `db:"total_attempts"`
	TotalSuccess  int64 `db:"total_success"`
	TotalFailed   int64 `db:"total_failed"`
}

func (l *Log) Stats() (Stats, error) {
	var s Stats
	err := l.db.Get(&s, `
		SELECT
			(SELECT COUNT(*) FROM download_attempts) AS total_attempts,
			(SELECT COUNT(*) FROM downloads WHERE success = 1) AS total_success,
			(SELECT COUNT(*) FROM downloads WHERE success = 0) AS total_failed`)
	return s, err
}

// Close flushes pending writes and closes the database.
func (l *Log) Close() error {
	close(l.events)
	<-l.done
	return l.db.Close()
}
