package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/shopspring/decimal"

	"github.com/gabework/tradeguard/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const sessionDBName = "sessions.db"

// SQLSessionStore implements domain.SessionStore on a SQLCipher encrypted
// SQLite database. Encryption is not secrecy theatre here: an active lockout
// session must survive a user who knows where the data lives and would edit
// it away mid-flatten.
type SQLSessionStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLSessionStore opens (or creates) the encrypted session database.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewSQLSessionStore(dataDir string, key []byte) (*SQLSessionStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, sessionDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &SQLSessionStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *SQLSessionStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		platform TEXT NOT NULL,
		block_name TEXT NOT NULL,
		breach_raw TEXT NOT NULL DEFAULT '',
		breach_value TEXT,
		lockout_minutes INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		flatten_deadline INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS samples (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		platform TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		value TEXT,
		sampled_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
	CREATE INDEX IF NOT EXISTS idx_samples_platform ON samples(platform, sampled_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Path returns the database file path.
func (s *SQLSessionStore) Path() string {
	return s.dbPath
}

// SaveSession inserts or replaces a session snapshot.
func (s *SQLSessionStore) SaveSession(sess domain.LockoutSession) error {
	var value sql.NullString
	if sess.BreachReading.Parsed != nil {
		value = sql.NullString{String: sess.BreachReading.Parsed.String(), Valid: true}
	}
	var deadline int64
	if !sess.FlattenDeadline.IsZero() {
		deadline = sess.FlattenDeadline.Unix()
	}

	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions
		(id, state, platform, block_name, breach_raw, breach_value, lockout_minutes, started_at, flatten_deadline)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.State), sess.Platform, sess.BlockName,
		sess.BreachReading.RawText, value, sess.LockoutMinutes,
		sess.StartedAt.Unix(), deadline,
	)
	return err
}

// UpdateState records a state transition for an existing session.
func (s *SQLSessionStore) UpdateState(sessionID string, state domain.SequenceState) error {
	result, err := s.db.Exec(`UPDATE sessions SET state = ? WHERE id = ?`,
		string(state), sessionID)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session %q not found", sessionID)
	}
	return nil
}

// ActiveSessions returns sessions whose state is not terminal, oldest first.
func (s *SQLSessionStore) ActiveSessions() ([]domain.LockoutSession, error) {
	rows, err := s.db.Query(`
		SELECT id, state, platform, block_name, breach_raw, breach_value, lockout_minutes, started_at, flatten_deadline
		FROM sessions
		WHERE state NOT IN (?, ?)
		ORDER BY started_at ASC`,
		string(domain.StateLocked), string(domain.StateAborted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

// RecentSessions returns up to limit sessions, newest first.
func (s *SQLSessionStore) RecentSessions(limit int) ([]domain.LockoutSession, error) {
	rows, err := s.db.Query(`
		SELECT id, state, platform, block_name, breach_raw, breach_value, lockout_minutes, started_at, flatten_deadline
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]domain.LockoutSession, error) {
	var sessions []domain.LockoutSession
	for rows.Next() {
		var (
			sess      domain.LockoutSession
			state     string
			value     sql.NullString
			startedAt int64
			deadline  int64
		)
		if err := rows.Scan(&sess.ID, &state, &sess.Platform, &sess.BlockName,
			&sess.BreachReading.RawText, &value, &sess.LockoutMinutes,
			&startedAt, &deadline); err != nil {
			return nil, err
		}
		sess.State = domain.SequenceState(state)
		sess.StartedAt = time.Unix(startedAt, 0)
		if deadline > 0 {
			sess.FlattenDeadline = time.Unix(deadline, 0)
		}
		if value.Valid {
			parsed, err := decimal.NewFromString(value.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt breach value %q: %w", value.String, err)
			}
			sess.BreachReading.Parsed = &parsed
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// RecordSample appends a sample reading for history.
func (s *SQLSessionStore) RecordSample(platform string, r domain.Reading) error {
	var value sql.NullString
	if r.Parsed != nil {
		value = sql.NullString{String: r.Parsed.String(), Valid: true}
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO samples (platform, raw_text, value, sampled_at) VALUES (?, ?, ?, ?)`,
		platform, r.RawText, value, ts.Unix())
	return err
}

// Close releases the database connection.
func (s *SQLSessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ensure SQLSessionStore implements domain.SessionStore.
var _ domain.SessionStore = (*SQLSessionStore)(nil)
