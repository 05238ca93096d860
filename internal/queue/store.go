package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a message id does not exist.
	ErrNotFound = errors.New("message not found")
	// ErrNotConnected is returned when the store has not been opened.
	ErrNotConnected = errors.New("store not connected")
)

// Store provides durable, lockable storage of messages, logs and blacklist
// entries on top of a relational database. All state transitions for a single
// message are serialized through row locks acquired with GetForUpdate, so the
// store is the only coordination point between delivery workers, which may
// run on separate hosts.
type Store struct {
	driver    string
	dsn       string
	db        *sql.DB
	connected bool
	logger    *slog.Logger
}

// NewStore creates a store for the given database/sql driver ("sqlite3",
// "mysql" or "postgres") and DSN. Call Connect before use.
func NewStore(driver, dsn string) *Store {
	return &Store{
		driver: driver,
		dsn:    dsn,
		logger: slog.Default().With("component", "store", "driver", driver),
	}
}

// Connect opens the database, tunes the pool and initializes the schema.
func (s *Store) Connect() error {
	if s.connected {
		return nil
	}

	dsn := s.dsn
	if s.driver == "sqlite3" {
		// Immediate transactions take the write lock at BEGIN time, which is
		// what GetForUpdate relies on. Foreign keys enable the log cascade.
		dsn = appendSQLiteOptions(dsn)
	}

	db, err := sql.Open(s.driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if s.driver == "sqlite3" {
		// SQLite supports only one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	if err := s.initSchema(); err != nil {
		db.Close()
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	s.connected = true
	s.logger.Info("message store connected")
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if !s.connected {
		return nil
	}
	s.connected = false
	return s.db.Close()
}

// appendSQLiteOptions adds the connection options the store depends on.
func appendSQLiteOptions(dsn string) string {
	opts := "_txlock=immediate&_foreign_keys=on&_busy_timeout=5000"
	if strings.Contains(dsn, "?") {
		return dsn + "&" + opts
	}
	return dsn + "?" + opts
}

func (s *Store) initSchema() error {
	serial := "INTEGER PRIMARY KEY AUTOINCREMENT"
	blob := "BLOB"
	switch s.driver {
	case "postgres":
		serial = "BIGSERIAL PRIMARY KEY"
		blob = "BYTEA"
	case "mysql":
		serial = "BIGINT PRIMARY KEY AUTO_INCREMENT"
		// BLOB caps at 64KB on mysql, far below an ordinary email.
		blob = "LONGBLOB"
	}

	stmts := []string{
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS messages (
				id VARCHAR(36) PRIMARY KEY,
				from_address VARCHAR(254) NOT NULL,
				to_addrs TEXT NOT NULL,
				cc_addrs TEXT NOT NULL,
				bcc_addrs TEXT NOT NULL,
				storage VARCHAR(32) NOT NULL,
				message_data %s,
				status INTEGER NOT NULL,
				date_created TIMESTAMP NOT NULL,
				date_sent TIMESTAMP NULL,
				sent_count INTEGER NOT NULL DEFAULT 0,
				date_enqueued TIMESTAMP NULL,
				enqueued_count INTEGER NOT NULL DEFAULT 0
			)`, blob),
		`CREATE INDEX IF NOT EXISTS idx_messages_status ON messages (status)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_date_created ON messages (date_created)`,
		// The cascade constraint must be table-level: mysql parses an inline
		// column REFERENCES clause and silently ignores it.
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS logs (
				id %s,
				message_id VARCHAR(36) NOT NULL,
				action INTEGER NOT NULL,
				log_text TEXT NOT NULL,
				date TIMESTAMP NOT NULL,
				FOREIGN KEY (message_id) REFERENCES messages(id) ON DELETE CASCADE
			)`, serial),
		`CREATE INDEX IF NOT EXISTS idx_logs_message_id ON logs (message_id)`,
		`CREATE INDEX IF NOT EXISTS idx_logs_date ON logs (date)`,
		`CREATE TABLE IF NOT EXISTS blacklist (
				email VARCHAR(254) PRIMARY KEY,
				date_added TIMESTAMP NOT NULL
			)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(s.rebind(stmt)); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// rebind converts ? placeholders to the $n form postgres expects.
func (s *Store) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// forUpdate returns the row-lock suffix for the current driver. SQLite has no
// FOR UPDATE; the immediate write transaction already holds the database lock.
func (s *Store) forUpdate() string {
	if s.driver == "sqlite3" {
		return ""
	}
	return " FOR UPDATE"
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error. Row locks acquired inside fn are held until it returns.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if !s.connected {
		return ErrNotConnected
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Create inserts a new message in StatusCreated. The payload must already
// have been routed through the content storage backend, which fills in the
// Storage name and, for inline storage, Data.
func (s *Store) Create(ctx context.Context, msg *Message) error {
	if !s.connected {
		return ErrNotConnected
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	msg.Status = StatusCreated
	msg.DateCreated = time.Now().UTC()

	to, cc, bcc, err := marshalAddressing(msg)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO messages
			(id, from_address, to_addrs, cc_addrs, bcc_addrs, storage,
			 message_data, status, date_created, sent_count, enqueued_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`)
	_, err = s.db.ExecContext(ctx, query,
		msg.ID, msg.FromAddress, to, cc, bcc, msg.Storage,
		msg.Data, int(msg.Status), msg.DateCreated)
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	s.logger.Debug("message created", "message_id", msg.ID, "to_count", len(msg.To))
	return nil
}

const messageColumns = `id, from_address, to_addrs, cc_addrs, bcc_addrs,
	storage, message_data, status, date_created, date_sent, sent_count,
	date_enqueued, enqueued_count`

// Get returns a message without locking it.
func (s *Store) Get(ctx context.Context, id string) (*Message, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`), id)
	return scanMessage(row)
}

// GetForUpdate loads a message inside tx and acquires an exclusive row lock
// for the remainder of the transaction. Returns ErrNotFound when no such id
// exists.
func (s *Store) GetForUpdate(ctx context.Context, tx *sql.Tx, id string) (*Message, error) {
	row := tx.QueryRowContext(ctx,
		s.rebind(`SELECT `+messageColumns+` FROM messages WHERE id = ?`+s.forUpdate()), id)
	return scanMessage(row)
}

// AddLog appends an audit record for a message. A persistence error here must
// fail the caller's transaction; logs are never written best-effort.
func (s *Store) AddLog(ctx context.Context, tx *sql.Tx, messageID string, action Status, text string) error {
	_, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO logs (message_id, action, log_text, date) VALUES (?, ?, ?, ?)`),
		messageID, int(action), text, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add log: %w", err)
	}
	return nil
}

// MarkAs transitions a locked message to status inside tx, updating the
// monotonic counters and timestamps, and appends a log row when logText is
// not empty. Status and log always commit or roll back together.
func (s *Store) MarkAs(ctx context.Context, tx *sql.Tx, msg *Message, status Status, logText string) error {
	now := time.Now().UTC()
	msg.Status = status
	switch status {
	case StatusSent:
		msg.SentCount++
		msg.DateSent = now
	case StatusQueued:
		msg.EnqueuedCount++
		msg.DateEnqueued = now
	}

	_, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE messages
		SET status = ?, date_sent = ?, sent_count = ?, date_enqueued = ?, enqueued_count = ?
		WHERE id = ?`),
		int(msg.Status), nullTime(msg.DateSent), msg.SentCount,
		nullTime(msg.DateEnqueued), msg.EnqueuedCount, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update message status: %w", err)
	}

	if logText != "" {
		if err := s.AddLog(ctx, tx, msg.ID, status, logText); err != nil {
			return err
		}
	}
	return nil
}

// SetContent rewrites the content location of a message. Used only by
// storage backend migration; message content is otherwise immutable.
func (s *Store) SetContent(ctx context.Context, msg *Message) error {
	if !s.connected {
		return ErrNotConnected
	}
	_, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE messages SET storage = ?, message_data = ? WHERE id = ?`),
		msg.Storage, msg.Data, msg.ID)
	if err != nil {
		return fmt.Errorf("failed to update message content: %w", err)
	}
	return nil
}

// QueryRetryable returns messages in a failure state (status >= failed) whose
// enqueued_count is below maxRetries. With maxRetries 0 the cap is disabled.
func (s *Store) QueryRetryable(ctx context.Context, maxRetries int) ([]*Message, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE status >= ?`
	args := []interface{}{int(StatusFailed)}
	if maxRetries > 0 {
		query += ` AND enqueued_count < ?`
		args = append(args, maxRetries)
	}
	query += ` ORDER BY date_created`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query retryable messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// QueryStuck returns messages that have sat in StatusQueued since before the
// cutoff. The enqueue hand-off is fire-and-forget, so a trigger submission
// that failed after commit leaves the row queued; the sweep re-submits it.
func (s *Store) QueryStuck(ctx context.Context, olderThan time.Time) ([]*Message, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+messageColumns+` FROM messages
		WHERE status = ? AND date_enqueued < ?
		ORDER BY date_enqueued`),
		int(StatusQueued), olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to query stuck messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// DeleteOlderThan bulk-deletes messages created before now minus days, along
// with their logs. onContent is invoked per message before deletion so the
// storage backend can drop externally stored payloads; a callback error is
// logged and does not stop the purge.
func (s *Store) DeleteOlderThan(ctx context.Context, days int, onContent func(ctx context.Context, msg *Message) error) (int64, time.Time, error) {
	if !s.connected {
		return 0, time.Time{}, ErrNotConnected
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	if onContent != nil {
		rows, err := s.db.QueryContext(ctx,
			s.rebind(`SELECT `+messageColumns+` FROM messages WHERE date_created < ?`), cutoff)
		if err != nil {
			return 0, cutoff, fmt.Errorf("failed to list expired messages: %w", err)
		}
		expired, err := scanMessages(rows)
		rows.Close()
		if err != nil {
			return 0, cutoff, err
		}
		for _, msg := range expired {
			if err := onContent(ctx, msg); err != nil {
				s.logger.Warn("failed to delete message content",
					"message_id", msg.ID, "error", err)
			}
		}
	}

	res, err := s.db.ExecContext(ctx,
		s.rebind(`DELETE FROM messages WHERE date_created < ?`), cutoff)
	if err != nil {
		return 0, cutoff, fmt.Errorf("failed to delete expired messages: %w", err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, cutoff, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("expired messages deleted", "count", count, "cutoff", cutoff)
	return count, cutoff, nil
}

// All returns every stored message, oldest first. Used by storage backend
// migration and the status command; delivery never scans the whole table.
func (s *Store) All(ctx context.Context) ([]*Message, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages ORDER BY date_created`)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountByStatus returns the number of messages per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM messages GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status, count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating count rows: %w", err)
	}
	return counts, nil
}

// Logs returns the audit trail for a message, newest first.
func (s *Store) Logs(ctx context.Context, messageID string) ([]Log, error) {
	if !s.connected {
		return nil, ErrNotConnected
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, message_id, action, log_text, date
		FROM logs WHERE message_id = ? ORDER BY date DESC, id DESC`), messageID)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var logs []Log
	for rows.Next() {
		var l Log
		var action int
		if err := rows.Scan(&l.ID, &l.MessageID, &action, &l.Text, &l.Date); err != nil {
			return nil, fmt.Errorf("failed to scan log row: %w", err)
		}
		l.Action = Status(action)
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log rows: %w", err)
	}
	return logs, nil
}

// AddBlacklist inserts an address into the blacklist. Addresses are stored
// lower-cased; inserting an existing address is a no-op.
func (s *Store) AddBlacklist(ctx context.Context, email string) error {
	if !s.connected {
		return ErrNotConnected
	}
	email = strings.ToLower(strings.TrimSpace(email))
	query := `INSERT INTO blacklist (email, date_added) VALUES (?, ?)`
	switch s.driver {
	case "postgres":
		query += ` ON CONFLICT (email) DO NOTHING`
	case "mysql":
		query = `INSERT IGNORE INTO blacklist (email, date_added) VALUES (?, ?)`
	default:
		query = `INSERT OR IGNORE INTO blacklist (email, date_added) VALUES (?, ?)`
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), email, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to add blacklist entry: %w", err)
	}
	return nil
}

// IsBlacklisted reports whether an address appears on the blacklist.
func (s *Store) IsBlacklisted(ctx context.Context, email string) (bool, error) {
	if !s.connected {
		return false, ErrNotConnected
	}
	return s.isBlacklisted(ctx, s.db, email)
}

// IsBlacklistedTx is IsBlacklisted on an open transaction. Callers holding a
// row lock must use this: the sqlite pool has a single connection, so a
// pool-level query while the transaction owns it would wait forever.
func (s *Store) IsBlacklistedTx(ctx context.Context, tx *sql.Tx, email string) (bool, error) {
	return s.isBlacklisted(ctx, tx, email)
}

// querier abstracts *sql.DB and *sql.Tx for single-row lookups.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *Store) isBlacklisted(ctx context.Context, q querier, email string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var n int
	err := q.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM blacklist WHERE email = ?`), email).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to query blacklist: %w", err)
	}
	return n > 0, nil
}

// nullTime maps the zero time to SQL NULL for nullable timestamp columns.
func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// scanner lets scanMessage work with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row scanner) (*Message, error) {
	var msg Message
	var to, cc, bcc string
	var status int
	var dateSent, dateEnqueued sql.NullTime
	var data []byte

	err := row.Scan(&msg.ID, &msg.FromAddress, &to, &cc, &bcc, &msg.Storage,
		&data, &status, &msg.DateCreated, &dateSent, &msg.SentCount,
		&dateEnqueued, &msg.EnqueuedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan message: %w", err)
	}

	msg.Status = Status(status)
	msg.Data = data
	if dateSent.Valid {
		msg.DateSent = dateSent.Time
	}
	if dateEnqueued.Valid {
		msg.DateEnqueued = dateEnqueued.Time
	}
	for _, pair := range []struct {
		raw string
		dst *[]string
	}{{to, &msg.To}, {cc, &msg.Cc}, {bcc, &msg.Bcc}} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dst); err != nil {
			return nil, fmt.Errorf("failed to decode addressing: %w", err)
		}
	}
	return &msg, nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating message rows: %w", err)
	}
	return out, nil
}

func marshalAddressing(msg *Message) (to, cc, bcc string, err error) {
	enc := func(addrs []string) (string, error) {
		if addrs == nil {
			addrs = []string{}
		}
		b, err := json.Marshal(addrs)
		if err != nil {
			return "", fmt.Errorf("failed to encode addressing: %w", err)
		}
		return string(b), nil
	}
	if to, err = enc(msg.To); err != nil {
		return
	}
	if cc, err = enc(msg.Cc); err != nil {
		return
	}
	bcc, err = enc(msg.Bcc)
	return
}
