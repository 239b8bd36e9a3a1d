package database

const (
	messageColumns = `id, rid, msg, user_id, username, user_name, ts, updated_at, status,
		tmid, tmsg, tshow, tcount, tlm, mentions, channels, t, e2e, attachments`

	threadMessageColumns = `id, subscription_id, rid, msg, user_id, username, user_name,
		ts, updated_at, status, mentions, channels, t, e2e`

	threadColumns = `id, rid, tmid, msg, ts, updated_at, status, user_id, username, user_name,
		t, e2e, attachments, tcount, tlm`

	uploadColumns = `id, rid, tmid, path, name, description, type, size, progress, error, ts`
)

// Lookups
const (
	SelectMessageByIDQuery       = `SELECT ` + messageColumns + ` FROM messages WHERE id = ?`
	SelectThreadMessageByIDQuery = `SELECT ` + threadMessageColumns + ` FROM thread_messages WHERE id = ?`
	SelectThreadByIDQuery        = `SELECT ` + threadColumns + ` FROM threads WHERE id = ?`
	SelectUploadByIDQuery        = `SELECT ` + uploadColumns + ` FROM uploads WHERE id = ?`
	SelectSubscriptionByIDQuery  = `SELECT id, name, draft_message, encrypted, e2e_key_id FROM subscriptions WHERE id = ?`
	SelectMessageStatusQuery     = `SELECT status FROM messages WHERE id = ?`
	SelectThreadMsgStatusQuery   = `SELECT status FROM thread_messages WHERE id = ?`
)

// Outbox queries. Status 1 is TEMP and 2 is ERROR.
const (
	SelectPendingMessagesQuery = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE status IN (1, 2) AND tmid = ''
		ORDER BY ts ASC
	`

	SelectPendingThreadMessagesQuery = `
		SELECT ` + threadMessageColumns + `
		FROM thread_messages
		WHERE status IN (1, 2)
		ORDER BY ts ASC
	`

	SelectFailedUploadsQuery = `
		SELECT ` + uploadColumns + `
		FROM uploads
		WHERE error = 1
		ORDER BY ts ASC
	`

	CountStaleOutboxQuery = `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE status = 1 AND updated_at < ?) +
			(SELECT COUNT(*) FROM thread_messages WHERE status = 1 AND updated_at < ?)
	`
)

// Mutations
const (
	InsertMessageQuery = `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertThreadMessageQuery = `
		INSERT INTO thread_messages (` + threadMessageColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertThreadQuery = `
		INSERT INTO threads (` + threadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	InsertUploadQuery = `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	UpsertSubscriptionQuery = `
		INSERT INTO subscriptions (id, name, draft_message, encrypted, e2e_key_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			draft_message = excluded.draft_message,
			encrypted = excluded.encrypted,
			e2e_key_id = excluded.e2e_key_id
	`

	BumpMessageThreadQuery = `UPDATE messages SET tcount = tcount + 1, tlm = ?, updated_at = ? WHERE id = ?`
	BumpThreadHeaderQuery  = `UPDATE threads SET tcount = tcount + 1, tlm = ?, updated_at = ? WHERE id = ?`

	UpdateMessageStatusQuery           = `UPDATE messages SET status = ?, updated_at = ? WHERE id = ?`
	UpdateMessageStatusWithEchoQuery   = `UPDATE messages SET status = ?, updated_at = ?, mentions = ?, channels = ? WHERE id = ?`
	UpdateThreadMsgStatusQuery         = `UPDATE thread_messages SET status = ?, updated_at = ? WHERE id = ?`
	UpdateThreadMsgStatusWithEchoQuery = `UPDATE thread_messages SET status = ?, updated_at = ?, mentions = ?, channels = ? WHERE id = ?`
	UpdateUploadErrorQuery             = `UPDATE uploads SET error = ? WHERE id = ?`
	DeleteUploadQuery                  = `DELETE FROM uploads WHERE id = ?`
	ClearSubscriptionDraftQuery        = `UPDATE subscriptions SET draft_message = NULL WHERE id = ?`
)
