package gmailapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teemow/inboxdigest/internal/mailbox"
)

const metaLastScanAt = "last_scan_at"

// Store keeps the last completed scan and local subscription markers in a
// SQLite database.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path and runs migrations.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id               TEXT PRIMARY KEY,
	sender_name      TEXT NOT NULL DEFAULT '',
	sender_address   TEXT NOT NULL,
	subject          TEXT NOT NULL DEFAULT '',
	snippet          TEXT NOT NULL DEFAULT '',
	timestamp_ms     INTEGER NOT NULL,
	labels           TEXT NOT NULL DEFAULT '[]',
	list_unsubscribe TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscription_status (
	address      TEXT PRIMARY KEY,
	status       TEXT NOT NULL,
	last_seen_ms INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL DEFAULT ''
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceMessages swaps the stored message set for msgs and records the
// scan time.
func (s *Store) ReplaceMessages(ctx context.Context, msgs []mailbox.RawMessage, scannedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages"); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (id, sender_name, sender_address, subject, snippet, timestamp_ms, labels, list_unsubscribe)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sender_name      = excluded.sender_name,
			sender_address   = excluded.sender_address,
			subject          = excluded.subject,
			snippet          = excluded.snippet,
			timestamp_ms     = excluded.timestamp_ms,
			labels           = excluded.labels,
			list_unsubscribe = excluded.list_unsubscribe
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range msgs {
		labels, err := json.Marshal(m.Labels)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.SenderName, m.SenderAddress, m.Subject, m.Snippet,
			m.Timestamp.UnixMilli(), string(labels), m.ListUnsubscribe); err != nil {
			return fmt.Errorf("insert message %s: %w", m.ID, err)
		}
	}

	if err := setMeta(ctx, tx, metaLastScanAt, scannedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadMessages returns the stored messages, newest first.
func (s *Store) LoadMessages(ctx context.Context) ([]mailbox.RawMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sender_name, sender_address, subject, snippet, timestamp_ms, labels, list_unsubscribe
		FROM messages ORDER BY timestamp_ms DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []mailbox.RawMessage
	for rows.Next() {
		var (
			m      mailbox.RawMessage
			ts     int64
			labels string
		)
		if err := rows.Scan(&m.ID, &m.SenderName, &m.SenderAddress, &m.Subject, &m.Snippet, &ts, &labels, &m.ListUnsubscribe); err != nil {
			return nil, err
		}
		m.Timestamp = time.UnixMilli(ts).UTC()
		if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
			return nil, fmt.Errorf("decode labels of %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetMessage returns one stored message.
func (s *Store) GetMessage(ctx context.Context, id string) (mailbox.RawMessage, bool, error) {
	var (
		m      mailbox.RawMessage
		ts     int64
		labels string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, sender_name, sender_address, subject, snippet, timestamp_ms, labels, list_unsubscribe
		FROM messages WHERE id = ?`, id).
		Scan(&m.ID, &m.SenderName, &m.SenderAddress, &m.Subject, &m.Snippet, &ts, &labels, &m.ListUnsubscribe)
	if errors.Is(err, sql.ErrNoRows) {
		return mailbox.RawMessage{}, false, nil
	}
	if err != nil {
		return mailbox.RawMessage{}, false, err
	}
	m.Timestamp = time.UnixMilli(ts).UTC()
	if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
		return mailbox.RawMessage{}, false, err
	}
	return m, true, nil
}

// LatestMessageFrom returns the newest stored message from address.
func (s *Store) LatestMessageFrom(ctx context.Context, address string) (mailbox.RawMessage, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM messages WHERE sender_address = ? ORDER BY timestamp_ms DESC, id LIMIT 1",
		strings.ToLower(address)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return mailbox.RawMessage{}, false, nil
	}
	if err != nil {
		return mailbox.RawMessage{}, false, err
	}
	return s.GetMessage(ctx, id)
}

// ModifyLabels applies a label change to a stored message so the cache
// matches the mailbox until the next scan. Unknown IDs are ignored.
func (s *Store) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	m, ok, err := s.GetMessage(ctx, id)
	if err != nil || !ok {
		return err
	}

	drop := make(map[string]bool, len(remove))
	for _, l := range remove {
		drop[l] = true
	}
	labels := make([]string, 0, len(m.Labels)+len(add))
	seen := make(map[string]bool)
	for _, l := range append(m.Labels, add...) {
		if drop[l] || seen[l] {
			continue
		}
		seen[l] = true
		labels = append(labels, l)
	}

	data, err := json.Marshal(labels)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, "UPDATE messages SET labels = ? WHERE id = ?", string(data), id)
	return err
}

// DeleteMessages removes messages from the cache.
func (s *Store) DeleteMessages(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM messages WHERE id = ?")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetSubscriptionStatus records a local status marker for address.
func (s *Store) SetSubscriptionStatus(ctx context.Context, address string, status mailbox.SubscriptionStatus, lastSeen time.Time) error {
	var ms int64
	if !lastSeen.IsZero() {
		ms = lastSeen.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO subscription_status (address, status, last_seen_ms) VALUES (?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET status = excluded.status, last_seen_ms = excluded.last_seen_ms
	`, strings.ToLower(address), string(status), ms)
	return err
}

// LoadSubscriptionStatuses returns all local markers as subscriptions
// carrying only address, status and last-seen time.
func (s *Store) LoadSubscriptionStatuses(ctx context.Context) ([]mailbox.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT address, status, last_seen_ms FROM subscription_status ORDER BY address")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []mailbox.Subscription
	for rows.Next() {
		var (
			sub    mailbox.Subscription
			status string
			ms     int64
		)
		if err := rows.Scan(&sub.Address, &status, &ms); err != nil {
			return nil, err
		}
		sub.Status = mailbox.SubscriptionStatus(status)
		sub.Category = mailbox.CategoryUnknown
		if ms > 0 {
			sub.LastSeen = time.UnixMilli(ms).UTC()
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// LastScanAt returns when the stored snapshot was taken; zero when no scan
// has completed yet.
func (s *Store) LastScanAt(ctx context.Context) (time.Time, error) {
	var val string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", metaLastScanAt).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, val)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func setMeta(ctx context.Context, db execer, key, value string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
