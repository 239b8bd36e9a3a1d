package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatsend/internal/models"

	"github.com/sirupsen/logrus"
)

// Batch applies every mutation inside one transaction. Either all of them
// are committed or none is. Committed status changes are published to
// subscribers after the commit.
func (d *Database) Batch(ctx context.Context, mutations ...models.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	var changes []StatusChange
	err := d.retryableDBOperation(ctx, func() error {
		var err error
		changes, err = d.applyBatch(ctx, mutations)
		return err
	}, "batch")
	if err != nil {
		return err
	}

	d.publish(changes)
	return nil
}

func (d *Database) applyBatch(ctx context.Context, mutations []models.Mutation) ([]StatusChange, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := d.now()
	changes := make([]StatusChange, 0, len(mutations))
	for i := range mutations {
		change, err := d.apply(ctx, tx, &mutations[i], now)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", mutations[i].Kind, mutations[i].ID, err)
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return changes, nil
}

func (d *Database) apply(ctx context.Context, tx *sql.Tx, m *models.Mutation, now time.Time) (*StatusChange, error) {
	at := m.At
	if at.IsZero() {
		at = now
	}

	switch m.Kind {
	case models.CreateMessageKind:
		if m.Message == nil {
			return nil, errMissingRecord
		}
		if err := d.insertMessage(ctx, tx, m.Message); err != nil {
			return nil, err
		}
		return &StatusChange{Collection: CollectionMessages, ID: m.Message.ID, RoomID: m.Message.RoomID, Status: m.Message.Status, At: at}, nil

	case models.CreateThreadMessageKind:
		if m.ThreadMessage == nil {
			return nil, errMissingRecord
		}
		if err := d.insertThreadMessage(ctx, tx, m.ThreadMessage); err != nil {
			return nil, err
		}
		tm := m.ThreadMessage
		return &StatusChange{Collection: CollectionThreadMessages, ID: tm.ID, RoomID: tm.RoomID, ThreadID: tm.ThreadID, Status: tm.Status, At: at}, nil

	case models.CreateThreadKind:
		if m.Thread == nil {
			return nil, errMissingRecord
		}
		return nil, d.insertThread(ctx, tx, m.Thread)

	case models.CreateUploadKind:
		if m.Upload == nil {
			return nil, errMissingRecord
		}
		u := m.Upload
		_, err := tx.ExecContext(ctx, InsertUploadQuery,
			u.ID, u.RoomID, u.ThreadID, u.Path, u.Name, u.Description,
			u.Type, u.Size, u.Progress, u.Error, toMillis(u.TS),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert upload: %w", err)
		}
		return nil, nil

	case models.SaveSubscriptionKind:
		if m.Subscription == nil {
			return nil, errMissingRecord
		}
		s := m.Subscription
		draft, err := d.encryptor.encryptPtr(s.DraftMessage)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt draft: %w", err)
		}
		if _, err := tx.ExecContext(ctx, UpsertSubscriptionQuery, s.ID, s.Name, draft, s.Encrypted, s.E2EKeyID); err != nil {
			return nil, fmt.Errorf("failed to save subscription: %w", err)
		}
		return nil, nil

	case models.BumpThreadKind:
		tlm := toMillis(at)
		if _, err := tx.ExecContext(ctx, BumpMessageThreadQuery, tlm, toMillis(now), m.ID); err != nil {
			return nil, fmt.Errorf("failed to bump thread parent: %w", err)
		}
		if _, err := tx.ExecContext(ctx, BumpThreadHeaderQuery, tlm, toMillis(now), m.ID); err != nil {
			return nil, fmt.Errorf("failed to bump thread header: %w", err)
		}
		return nil, nil

	case models.SetMessageStatusKind:
		if err := d.setStatus(ctx, tx, SelectMessageStatusQuery, UpdateMessageStatusQuery, UpdateMessageStatusWithEchoQuery, m, at); err != nil {
			return nil, err
		}
		return &StatusChange{Collection: CollectionMessages, ID: m.ID, Status: m.Status, At: at}, nil

	case models.SetThreadMessageStatusKind:
		if err := d.setStatus(ctx, tx, SelectThreadMsgStatusQuery, UpdateThreadMsgStatusQuery, UpdateThreadMsgStatusWithEchoQuery, m, at); err != nil {
			return nil, err
		}
		return &StatusChange{Collection: CollectionThreadMessages, ID: m.ID, Status: m.Status, At: at}, nil

	case models.SetUploadErrorKind:
		res, err := tx.ExecContext(ctx, UpdateUploadErrorQuery, m.Error, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to update upload: %w", err)
		}
		if err := requireRow(res); err != nil {
			return nil, err
		}
		return &StatusChange{Collection: CollectionUploads, ID: m.ID, UploadError: m.Error, At: at}, nil

	case models.DeleteUploadKind:
		if _, err := tx.ExecContext(ctx, DeleteUploadQuery, m.ID); err != nil {
			return nil, fmt.Errorf("failed to delete upload: %w", err)
		}
		return nil, nil

	case models.ClearDraftKind:
		if _, err := tx.ExecContext(ctx, ClearSubscriptionDraftQuery, m.ID); err != nil {
			return nil, fmt.Errorf("failed to clear draft: %w", err)
		}
		return nil, nil
	}

	return nil, fmt.Errorf("unsupported mutation kind %d", m.Kind)
}

var errMissingRecord = errors.New("mutation carries no record")

func (d *Database) insertMessage(ctx context.Context, tx *sql.Tx, m *models.Message) error {
	body, err := d.encryptor.Encrypt(m.Msg)
	if err != nil {
		return fmt.Errorf("failed to encrypt message body: %w", err)
	}
	tmsg, err := d.encryptor.Encrypt(m.ThreadMsg)
	if err != nil {
		return fmt.Errorf("failed to encrypt thread body: %w", err)
	}
	mentions, err := encodeJSON(m.Mentions)
	if err != nil {
		return err
	}
	channels, err := encodeJSON(m.Channels)
	if err != nil {
		return err
	}
	attachments, err := encodeJSON(m.Attachments)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, InsertMessageQuery,
		m.ID, m.RoomID, body, m.User.ID, m.User.Username, m.User.Name,
		toMillis(m.TS), toMillis(m.UpdatedAt), int(m.Status),
		m.ThreadID, tmsg, m.ThreadShow, m.ThreadCount, toNullMillis(m.ThreadLastMessage),
		mentions, channels, m.Type, string(m.E2E), attachments,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	return nil
}

func (d *Database) insertThreadMessage(ctx context.Context, tx *sql.Tx, tm *models.ThreadMessage) error {
	body, err := d.encryptor.Encrypt(tm.Msg)
	if err != nil {
		return fmt.Errorf("failed to encrypt thread message body: %w", err)
	}
	mentions, err := encodeJSON(tm.Mentions)
	if err != nil {
		return err
	}
	channels, err := encodeJSON(tm.Channels)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, InsertThreadMessageQuery,
		tm.ID, tm.RoomID, tm.ThreadID, body, tm.User.ID, tm.User.Username, tm.User.Name,
		toMillis(tm.TS), toMillis(tm.UpdatedAt), int(tm.Status),
		mentions, channels, tm.Type, string(tm.E2E),
	)
	if err != nil {
		return fmt.Errorf("failed to insert thread message: %w", err)
	}
	return nil
}

func (d *Database) insertThread(ctx context.Context, tx *sql.Tx, t *models.Thread) error {
	body, err := d.encryptor.Encrypt(t.Msg)
	if err != nil {
		return fmt.Errorf("failed to encrypt thread header body: %w", err)
	}
	attachments, err := encodeJSON(t.Attachments)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, InsertThreadQuery,
		t.ID, t.RoomID, t.ThreadID, body, toMillis(t.TS), toMillis(t.UpdatedAt), int(t.Status),
		t.User.ID, t.User.Username, t.User.Name, t.Type, string(t.E2E), attachments,
		t.ReplyCount, toNullMillis(t.ThreadLastMessage),
	)
	if err != nil {
		return fmt.Errorf("failed to insert thread header: %w", err)
	}
	return nil
}

// setStatus moves a message or thread reply to m.Status, copying the echoed
// mentions and channels when the mutation carries them. Transitions outside
// the delivery table are logged but still applied.
func (d *Database) setStatus(ctx context.Context, tx *sql.Tx, selectQuery, updateQuery, echoQuery string, m *models.Mutation, at time.Time) error {
	var current int
	if err := tx.QueryRowContext(ctx, selectQuery, m.ID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read current status: %w", err)
	}

	from := models.MessageStatus(current)
	if !models.CanTransition(from, m.Status) {
		d.logger.WithFields(logrus.Fields{
			"message_id": m.ID,
			"from":       from.String(),
			"to":         m.Status.String(),
			"operation":  m.Kind.String(),
		}).Warn("Unexpected delivery status transition")
	}

	if m.Echo == nil {
		if _, err := tx.ExecContext(ctx, updateQuery, int(m.Status), toMillis(at), m.ID); err != nil {
			return fmt.Errorf("failed to update status: %w", err)
		}
		return nil
	}

	mentions, err := encodeJSON(m.Echo.Mentions)
	if err != nil {
		return err
	}
	channels, err := encodeJSON(m.Echo.Channels)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, echoQuery, int(m.Status), toMillis(at), mentions, channels, m.ID); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}
	return nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
