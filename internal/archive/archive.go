package archive

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/mqtt-cli/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-cli/migrations"
)

const (
	defaultLimit = 50
	maxLimit     = 1000

	// timeLayout is fixed width so received_at sorts as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// ErrDisabled is returned when no archive path is configured.
var ErrDisabled = errors.New("archive: no archive path configured")

// Message is one archived message.
type Message struct {
	ID         string
	ClientID   string
	Host       string
	Topic      string
	Payload    []byte
	QoS        byte
	Retained   bool
	ReceivedAt time.Time
}

// Filter selects archived messages. Empty fields match everything.
type Filter struct {
	ClientID string
	Host     string
	Topic    string
	Limit    int // default 50, max 1000
}

// Repository defines the archive operations.
type Repository interface {
	Record(ctx context.Context, msg *Message) error
	Recent(ctx context.Context, filter Filter) ([]Message, error)
	Count(ctx context.Context) (int, error)
}

// SQLiteRepository is a Repository on the received_messages table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Record inserts msg. ID and ReceivedAt are filled in when empty.
func (r *SQLiteRepository) Record(ctx context.Context, msg *Message) error {
	if msg.ID == "" {
		msg.ID = "msg-" + uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = time.Now().UTC()
	}
	payload := msg.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO received_messages (id, client_id, host, topic, payload, qos, retained, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ClientID, msg.Host, msg.Topic, payload,
		int(msg.QoS), msg.Retained,
		msg.ReceivedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// Recent returns the newest messages matching filter, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, filter Filter) ([]Message, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}

	var (
		conditions []string
		args       []any
	)
	if filter.ClientID != "" {
		conditions = append(conditions, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if filter.Host != "" {
		conditions = append(conditions, "host = ?")
		args = append(args, filter.Host)
	}
	if filter.Topic != "" {
		conditions = append(conditions, "topic = ?")
		args = append(args, filter.Topic)
	}

	query := "SELECT id, client_id, host, topic, payload, qos, retained, received_at FROM received_messages"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY received_at DESC, rowid DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m          Message
			qos        int
			receivedAt string
		)
		if err := rows.Scan(&m.ID, &m.ClientID, &m.Host, &m.Topic, &m.Payload, &qos, &m.Retained, &receivedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.QoS = byte(qos)
		m.ReceivedAt, err = time.Parse(timeLayout, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at %q: %w", receivedAt, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}
	return out, nil
}

// Count returns the number of archived messages.
func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM received_messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// Archive is an opened archive database with its repository.
type Archive struct {
	*SQLiteRepository
	db *database.DB
}

// Open opens the archive at cfg.Path and applies pending migrations.
func Open(ctx context.Context, cfg database.Config) (*Archive, error) {
	if cfg.Path == "" {
		return nil, ErrDisabled
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("archive: %w", err)
	}

	return &Archive{SQLiteRepository: NewSQLiteRepository(db.DB), db: db}, nil
}

// Path returns the archive file path.
func (a *Archive) Path() string {
	return a.db.Path()
}

// Close closes the archive database.
func (a *Archive) Close() error {
	return a.db.Close()
}

// Status summarises an opened archive.
type Status struct {
	Path     string
	Messages int
	Applied  []string
	Pending  []string
}

// Status checks the database and reports its schema versions and size.
func (a *Archive) Status(ctx context.Context) (Status, error) {
	if err := a.db.HealthCheck(ctx); err != nil {
		return Status{}, fmt.Errorf("archive: %w", err)
	}
	ms, err := a.db.MigrationStatus(ctx, migrations.FS)
	if err != nil {
		return Status{}, fmt.Errorf("archive: %w", err)
	}
	n, err := a.Count(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("archive: %w", err)
	}
	return Status{Path: a.db.Path(), Messages: n, Applied: ms.Applied, Pending: ms.Pending}, nil
}

// Reset rolls back every applied migration and re-applies them, leaving
// an empty archive on the current schema.
func (a *Archive) Reset(ctx context.Context) error {
	for {
		ms, err := a.db.MigrationStatus(ctx, migrations.FS)
		if err != nil {
			return fmt.Errorf("archive: %w", err)
		}
		if len(ms.Applied) == 0 {
			break
		}
		if err := a.db.MigrateDown(ctx, migrations.FS); err != nil {
			return fmt.Errorf("archive: %w", err)
		}
	}
	if err := a.db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	return nil
}
