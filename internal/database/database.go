package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"chatsend/internal/constants"
	"chatsend/internal/migrations"
	"chatsend/internal/models"
	"chatsend/internal/retry"
	"chatsend/internal/security"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned by lookups when no record has the requested id.
var ErrNotFound = models.ErrNotFound

// Database is the SQLite-backed local store. All writes go through Batch,
// which applies a set of mutations in a single transaction.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
	backoff   *retry.Backoff
	logger    *logrus.Logger
	now       func() time.Time

	subMu       sync.Mutex
	subscribers map[uint64]chan StatusChange
	nextSubID   uint64
}

func New(cfg models.DatabaseConfig, logger *logrus.Logger) (*Database, error) {
	dbPath := cfg.Path
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	if err := security.ValidateFilePath(dbPath); err != nil {
		return nil, fmt.Errorf("invalid database path: %w", err)
	}

	if logger == nil {
		logger = logrus.New()
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	busyTimeout := cfg.BusyTimeoutMs
	if busyTimeout <= 0 {
		busyTimeout = constants.DefaultDatabaseBusyTimeoutMs
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL&_txlock=immediate", dbPath, busyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = constants.DefaultDatabaseMaxOpenConns
	}
	db.SetMaxOpenConns(maxConns)

	closeWith := func(err error, msg string) error {
		if closeErr := db.Close(); closeErr != nil {
			return fmt.Errorf("%s: %w (close error: %v)", msg, err, closeErr)
		}
		return fmt.Errorf("%s: %w", msg, err)
	}

	if err := db.Ping(); err != nil {
		return nil, closeWith(err, "failed to ping database")
	}

	applied, err := migrations.Apply(context.Background(), db)
	if err != nil {
		return nil, closeWith(err, "failed to initialize schema")
	}
	if len(applied) > 0 {
		logger.WithFields(logrus.Fields{
			"path":     dbPath,
			"versions": applied,
		}).Info("Applied database migrations")
	}

	enc, err := newEncryptor(cfg.EncryptAtRest, cfg.EncryptionKey)
	if err != nil {
		return nil, closeWith(err, "failed to initialize encryptor")
	}

	writeRetries := cfg.WriteRetryLimit
	if writeRetries <= 0 {
		writeRetries = constants.DefaultDatabaseWriteRetries
	}

	return &Database{
		db:          db,
		encryptor:   enc,
		backoff:     newBackoff(writeRetries),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
		subscribers: make(map[uint64]chan StatusChange),
	}, nil
}

func (d *Database) Close() error {
	d.subMu.Lock()
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.subMu.Unlock()
	return d.db.Close()
}

// Ping reports whether the underlying database is reachable.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (d *Database) FindMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := d.scanMessage(d.db.QueryRowContext(ctx, SelectMessageByIDQuery, id))
	if err != nil {
		return nil, lookupError("message", id, err)
	}
	return m, nil
}

func (d *Database) FindThreadMessage(ctx context.Context, id string) (*models.ThreadMessage, error) {
	tm, err := d.scanThreadMessage(d.db.QueryRowContext(ctx, SelectThreadMessageByIDQuery, id))
	if err != nil {
		return nil, lookupError("thread message", id, err)
	}
	return tm, nil
}

func (d *Database) FindThread(ctx context.Context, id string) (*models.Thread, error) {
	t, err := d.scanThread(d.db.QueryRowContext(ctx, SelectThreadByIDQuery, id))
	if err != nil {
		return nil, lookupError("thread", id, err)
	}
	return t, nil
}

func (d *Database) FindUpload(ctx context.Context, id string) (*models.Upload, error) {
	u, err := scanUpload(d.db.QueryRowContext(ctx, SelectUploadByIDQuery, id))
	if err != nil {
		return nil, lookupError("upload", id, err)
	}
	return u, nil
}

func (d *Database) FindSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	var (
		sub       models.Subscription
		draft     sql.NullString
		encrypted bool
	)
	err := d.db.QueryRowContext(ctx, SelectSubscriptionByIDQuery, id).Scan(
		&sub.ID, &sub.Name, &draft, &encrypted, &sub.E2EKeyID,
	)
	if err != nil {
		return nil, lookupError("subscription", id, err)
	}
	sub.Encrypted = encrypted
	if draft.Valid {
		plain, err := d.encryptor.Decrypt(draft.String)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt draft: %w", err)
		}
		sub.DraftMessage = &plain
	}
	return &sub, nil
}

// PendingMessages returns top-level messages whose status is TEMP or ERROR.
// Thread replies are excluded; they are resent from the thread collection.
func (d *Database) PendingMessages(ctx context.Context) ([]*models.Message, error) {
	rows, err := d.db.QueryContext(ctx, SelectPendingMessagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		m, err := d.scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending messages: %w", err)
	}
	return messages, nil
}

// PendingThreadMessages returns every thread reply whose status is TEMP or ERROR.
func (d *Database) PendingThreadMessages(ctx context.Context) ([]*models.ThreadMessage, error) {
	rows, err := d.db.QueryContext(ctx, SelectPendingThreadMessagesQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending thread messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ThreadMessage
	for rows.Next() {
		tm, err := d.scanThreadMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending thread message: %w", err)
		}
		messages = append(messages, tm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending thread messages: %w", err)
	}
	return messages, nil
}

// FailedUploads returns uploads flagged with error.
func (d *Database) FailedUploads(ctx context.Context) ([]*models.Upload, error) {
	rows, err := d.db.QueryContext(ctx, SelectFailedUploadsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query failed uploads: %w", err)
	}
	defer rows.Close()

	var uploads []*models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		uploads = append(uploads, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failed uploads: %w", err)
	}
	return uploads, nil
}

// CountStale returns how many messages and thread replies have been TEMP
// since before the cutoff.
func (d *Database) CountStale(ctx context.Context, cutoff time.Time) (int, error) {
	var count int
	ms := toMillis(cutoff)
	if err := d.db.QueryRowContext(ctx, CountStaleOutboxQuery, ms, ms).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count stale outbox records: %w", err)
	}
	return count, nil
}

func (d *Database) scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m                  models.Message
		ts, updatedAt      int64
		tlm                sql.NullInt64
		status             int
		mentions, channels string
		attachments, e2e   string
		encryptedMsg, tmsg string
	)
	err := row.Scan(
		&m.ID, &m.RoomID, &encryptedMsg, &m.User.ID, &m.User.Username, &m.User.Name,
		&ts, &updatedAt, &status, &m.ThreadID, &tmsg, &m.ThreadShow, &m.ThreadCount, &tlm,
		&mentions, &channels, &m.Type, &e2e, &attachments,
	)
	if err != nil {
		return nil, err
	}

	if m.Msg, err = d.encryptor.Decrypt(encryptedMsg); err != nil {
		return nil, fmt.Errorf("failed to decrypt message body: %w", err)
	}
	if m.ThreadMsg, err = d.encryptor.Decrypt(tmsg); err != nil {
		return nil, fmt.Errorf("failed to decrypt thread body: %w", err)
	}

	m.TS = fromMillis(ts)
	m.UpdatedAt = fromMillis(updatedAt)
	m.Status = models.MessageStatus(status)
	m.ThreadLastMessage = fromNullMillis(tlm)
	m.E2E = models.E2EStatus(e2e)

	if err := decodeJSON(mentions, &m.Mentions); err != nil {
		return nil, err
	}
	if err := decodeJSON(channels, &m.Channels); err != nil {
		return nil, err
	}
	if err := decodeJSON(attachments, &m.Attachments); err != nil {
		return nil, err
	}
	return &m, nil
}

func (d *Database) scanThreadMessage(row rowScanner) (*models.ThreadMessage, error) {
	var (
		tm                 models.ThreadMessage
		ts, updatedAt      int64
		status             int
		mentions, channels string
		encryptedMsg, e2e  string
	)
	err := row.Scan(
		&tm.ID, &tm.RoomID, &tm.ThreadID, &encryptedMsg, &tm.User.ID, &tm.User.Username, &tm.User.Name,
		&ts, &updatedAt, &status, &mentions, &channels, &tm.Type, &e2e,
	)
	if err != nil {
		return nil, err
	}

	if tm.Msg, err = d.encryptor.Decrypt(encryptedMsg); err != nil {
		return nil, fmt.Errorf("failed to decrypt thread message body: %w", err)
	}

	tm.TS = fromMillis(ts)
	tm.UpdatedAt = fromMillis(updatedAt)
	tm.Status = models.MessageStatus(status)
	tm.E2E = models.E2EStatus(e2e)

	if err := decodeJSON(mentions, &tm.Mentions); err != nil {
		return nil, err
	}
	if err := decodeJSON(channels, &tm.Channels); err != nil {
		return nil, err
	}
	return &tm, nil
}

func (d *Database) scanThread(row rowScanner) (*models.Thread, error) {
	var (
		t                 models.Thread
		ts, updatedAt     int64
		tlm               sql.NullInt64
		status            int
		encryptedMsg, e2e string
		attachments       string
	)
	err := row.Scan(
		&t.ID, &t.RoomID, &t.ThreadID, &encryptedMsg, &ts, &updatedAt, &status,
		&t.User.ID, &t.User.Username, &t.User.Name, &t.Type, &e2e, &attachments, &t.ReplyCount, &tlm,
	)
	if err != nil {
		return nil, err
	}

	if t.Msg, err = d.encryptor.Decrypt(encryptedMsg); err != nil {
		return nil, fmt.Errorf("failed to decrypt thread header body: %w", err)
	}

	t.TS = fromMillis(ts)
	t.UpdatedAt = fromMillis(updatedAt)
	t.Status = models.MessageStatus(status)
	t.ThreadLastMessage = fromNullMillis(tlm)
	t.E2E = models.E2EStatus(e2e)

	if err := decodeJSON(attachments, &t.Attachments); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanUpload(row rowScanner) (*models.Upload, error) {
	var (
		u      models.Upload
		ts     int64
		failed bool
	)
	err := row.Scan(
		&u.ID, &u.RoomID, &u.ThreadID, &u.Path, &u.Name, &u.Description,
		&u.Type, &u.Size, &u.Progress, &failed, &ts,
	)
	if err != nil {
		return nil, err
	}
	u.Error = failed
	u.TS = fromMillis(ts)
	return &u, nil
}

func lookupError(collection, id string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", collection, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", collection, id, err)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode column: %w", err)
	}
	if string(data) == "null" {
		return "[]", nil
	}
	return string(data), nil
}

// decodeJSON leaves dst nil for empty arrays so records round-trip unchanged.
func decodeJSON[T any](data string, dst *[]T) error {
	if data == "" || data == "[]" || data == "null" {
		*dst = nil
		return nil
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		return fmt.Errorf("failed to decode column: %w", err)
	}
	return nil
}
