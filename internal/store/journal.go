package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"infobot/internal/domain"
)

// SQLiteJournal implements domain.Journal on a local SQLite file. It is
// what makes delivery at-least-once: a message is recorded before its
// plan runs and stays pending until every action succeeded, so a send
// failure is retried on the next poll cycle instead of being lost.
type SQLiteJournal struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewSQLiteJournal(dbPath string, logger *slog.Logger) (*SQLiteJournal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &SQLiteJournal{db: db, logger: logger}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return j, nil
}

func (j *SQLiteJournal) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT PRIMARY KEY,
		sender       TEXT NOT NULL,
		sender_match TEXT NOT NULL DEFAULT '',
		sender_role  TEXT NOT NULL,
		kind         TEXT NOT NULL,
		content      TEXT,
		received_at  DATETIME NOT NULL,
		processed    INTEGER NOT NULL DEFAULT 0,
		attempts     INTEGER NOT NULL DEFAULT 0,
		processed_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS idx_messages_pending ON messages(processed, received_at);
	CREATE INDEX IF NOT EXISTS idx_messages_role ON messages(sender_role, received_at);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Record stores the message unless it is already known. The reported
// seen flag is how redeliveries from the monitor are deduplicated.
func (j *SQLiteJournal) Record(ctx context.Context, msg domain.IncomingMessage) (bool, error) {
	res, err := j.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO messages (id, sender, sender_match, sender_role, kind, content, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.Sender.DisplayName, msg.Sender.MatchID, string(msg.Sender.Role),
		string(msg.Kind), msg.Content, msg.Timestamp.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("record message: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record message: %w", err)
	}
	return n == 0, nil
}

func (j *SQLiteJournal) MarkProcessed(ctx context.Context, id string) error {
	_, err := j.db.ExecContext(ctx, `
		UPDATE messages SET processed = 1, processed_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// Pending returns unprocessed messages in arrival order and bumps their
// attempt counter so the sweep is visible in `infobot status`.
func (j *SQLiteJournal) Pending(ctx context.Context) ([]domain.IncomingMessage, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, sender, sender_match, sender_role, kind, content, received_at
		FROM messages WHERE processed = 0 ORDER BY received_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer rows.Close()

	var out []domain.IncomingMessage
	for rows.Next() {
		var (
			m    domain.IncomingMessage
			role string
			kind string
		)
		if err := rows.Scan(&m.ID, &m.Sender.DisplayName, &m.Sender.MatchID, &role, &kind, &m.Content, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		m.Sender.Role = domain.Role(role)
		m.Kind = domain.MessageKind(kind)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	if len(out) > 0 {
		if _, err := j.db.ExecContext(ctx,
			`UPDATE messages SET attempts = attempts + 1 WHERE processed = 0`); err != nil {
			j.logger.Warn("cannot bump attempt counter", "err", err)
		}
	}
	return out, nil
}

// PendingCount reports the current journal backlog.
func (j *SQLiteJournal) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE processed = 0`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending: %w", err)
	}
	return n, nil
}

func (j *SQLiteJournal) TeacherCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM messages WHERE sender_role = ? AND received_at > ?`,
		string(domain.RoleTeacher), since.UTC(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count teacher messages: %w", err)
	}
	return n, nil
}

func (j *SQLiteJournal) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx,
		`DELETE FROM messages WHERE received_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	if n > 0 {
		j.logger.Info("journal cleanup", "deleted", n, "before", before.Format(time.DateTime))
	}
	return n, nil
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}
