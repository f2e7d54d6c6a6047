package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Repository defines the interface for conversation persistence operations.
type Repository interface {
	RecordInbound(ctx context.Context, id int64, sender string) error
	RecordOutbound(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*Conversation, error)
	List(ctx context.Context) ([]Conversation, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new SQLite-backed conversation repository.
// The conversations table must already exist (see the migrations package).
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// RecordInbound notes a chat message relayed to the broker. The record is
// created on first sight. An empty sender leaves the stored one unchanged.
func (r *SQLiteRepository) RecordInbound(ctx context.Context, id int64, sender string) error {
	const query = `INSERT INTO conversations (id, sender, first_seen, last_seen, inbound_count)
		VALUES (?, ?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			sender = CASE WHEN excluded.sender != '' THEN excluded.sender ELSE conversations.sender END,
			last_seen = excluded.last_seen,
			inbound_count = conversations.inbound_count + 1`

	ts := r.timestamp()
	if _, err := r.db.ExecContext(ctx, query, id, sender, ts, ts); err != nil {
		return fmt.Errorf("recording inbound for conversation %d: %w", id, err)
	}
	return nil
}

// RecordOutbound notes a broker message delivered to the chat.
func (r *SQLiteRepository) RecordOutbound(ctx context.Context, id int64) error {
	const query = `INSERT INTO conversations (id, first_seen, last_seen, outbound_count)
		VALUES (?, ?, ?, 1)
		ON CONFLICT(id) DO UPDATE SET
			last_seen = excluded.last_seen,
			outbound_count = conversations.outbound_count + 1`

	ts := r.timestamp()
	if _, err := r.db.ExecContext(ctx, query, id, ts, ts); err != nil {
		return fmt.Errorf("recording outbound for conversation %d: %w", id, err)
	}
	return nil
}

// Get returns a single conversation by chat id.
func (r *SQLiteRepository) Get(ctx context.Context, id int64) (*Conversation, error) {
	const query = `SELECT id, sender, first_seen, last_seen, inbound_count, outbound_count
		FROM conversations WHERE id = ?`

	c, err := scanConversation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting conversation %d: %w", id, err)
	}
	return c, nil
}

// List returns all conversations, most recently active first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Conversation, error) {
	const query = `SELECT id, sender, first_seen, last_seen, inbound_count, outbound_count
		FROM conversations ORDER BY last_seen DESC, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	defer rows.Close()

	conversations := []Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}
		conversations = append(conversations, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}
	return conversations, nil
}

// Count returns the number of known conversations.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM conversations").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) timestamp() string {
	return r.now().UTC().Format(timeFormat)
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConversation(s scanner) (*Conversation, error) {
	var c Conversation
	var firstSeen, lastSeen string

	if err := s.Scan(&c.ID, &c.Sender, &firstSeen, &lastSeen, &c.InboundCount, &c.OutboundCount); err != nil {
		return nil, err
	}
	c.FirstSeen = parseTime(firstSeen)
	c.LastSeen = parseTime(lastSeen)
	return &c, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
