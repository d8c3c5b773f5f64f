package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/errors"
)

// MaxSearchQueryChars bounds the raw search query.
const MaxSearchQueryChars = 500

// Highlight markers written by snippet(); ops turns them into <b> tags after escaping.
const (
	SnippetOpenMarker  = "[[[B]]]"
	SnippetCloseMarker = "[[[/B]]]"
)

// MessageRow is a stored message with its resolved attachment metadata.
type MessageRow struct {
	chat.Message
	AttachmentMIME *string
	AttachmentKind *string
}

// Participant is a sender and how many messages they wrote.
type Participant struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// MessageFilters narrows ListMessages.
type MessageFilters struct {
	Sender         *string
	AttachmentOnly bool
}

// SearchFilters narrows SearchMessages.
type SearchFilters struct {
	ChatID *string
	Sender *string
}

// SearchResult is one matching message.
type SearchResult struct {
	ChatID   string
	ChatName string
	Message  MessageRow
	Snippet  string
}

const chatColumns = `
	id, name_raw, name_norm, locale, source,
	message_count, notification_count, attachment_count, skipped_count, participant_count,
	first_at, last_at, created_at, updated_at, deleted_at`

const messageColumns = `
	seq, ts, sender, text, attachment, attachment_mime, attachment_kind`

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertChat stores a chat and all of its messages in one transaction.
// A live chat with the same normalized name yields NAME_ALREADY_EXISTS.
func InsertChat(ctx context.Context, db *sql.DB, c *chat.Chat, msgs []MessageRow) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		return insertChatTx(ctx, tx, c, msgs)
	})
}

// ReplaceChat removes oldID (chat and messages) and stores c in its place atomically.
func ReplaceChat(ctx context.Context, db *sql.DB, oldID string, c *chat.Chat, msgs []MessageRow) error {
	return withTx(ctx, db, func(tx *sql.Tx) error {
		if err := deleteChatTx(ctx, tx, oldID); err != nil {
			return err
		}
		return insertChatTx(ctx, tx, c, msgs)
	})
}

func insertChatTx(ctx context.Context, tx *sql.Tx, c *chat.Chat, msgs []MessageRow) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chats (`+chatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		c.ID, c.NameRaw, c.NameNorm, c.Locale, toNullString(c.Source),
		c.MessageCount, c.NotificationCount, c.AttachmentCount, c.SkippedCount, c.ParticipantCount,
		toNullTime(c.FirstAt), toNullTime(c.LastAt), c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return errors.NewNameAlreadyExists(c.NameRaw)
		}
		return errors.NewInternal(err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (chat_id, seq, ts, sender, is_notification, text, attachment, attachment_mime, attachment_kind)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer stmt.Close()

	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return errors.NewCancelled("import")
		}
		_, err := stmt.ExecContext(ctx,
			c.ID, m.Seq, chat.FormatTimestamp(m.Timestamp), m.Sender, m.IsNotification(), m.Text,
			toNullString(m.Attachment), toNullString(m.AttachmentMIME), toNullString(m.AttachmentKind),
		)
		if err != nil {
			return errors.NewInternal(err)
		}
	}
	return nil
}

func deleteChatTx(ctx context.Context, tx *sql.Tx, id string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE chat_id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetChatByID retrieves a chat by its ULID.
// If includeDeleted is false, soft-deleted chats are excluded.
func GetChatByID(ctx context.Context, db *sql.DB, id string, includeDeleted bool) (*chat.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE id = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	}

	c, err := scanChat(db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// GetChatByName retrieves a chat by normalized name.
// With includeDeleted, a live chat is preferred over the most recently updated deleted one.
func GetChatByName(ctx context.Context, db *sql.DB, nameNorm string, includeDeleted bool) (*chat.Chat, error) {
	query := `SELECT ` + chatColumns + ` FROM chats WHERE name_norm = ?`
	if !includeDeleted {
		query += " AND deleted_at IS NULL"
	} else {
		query += " ORDER BY (deleted_at IS NULL) DESC, updated_at DESC LIMIT 1"
	}

	c, err := scanChat(db.QueryRowContext(ctx, query, nameNorm))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(nameNorm)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// ListChats returns chats ordered by most recently updated, plus the total count.
func ListChats(ctx context.Context, db *sql.DB, limit, offset int, includeDeleted bool) ([]chat.Chat, int, error) {
	where := " WHERE deleted_at IS NULL"
	if includeDeleted {
		where = ""
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats`+where).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+chatColumns+` FROM chats`+where+` ORDER BY updated_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var chats []chat.Chat
	for rows.Next() {
		c, err := scanChat(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		chats = append(chats, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return chats, total, nil
}

// ListMessages returns one page of a chat's messages in seq order, plus the filtered total.
func ListMessages(ctx context.Context, db *sql.DB, chatID string, filters MessageFilters, limit, offset int) ([]MessageRow, int, error) {
	where := " WHERE chat_id = ?"
	args := []any{chatID}
	if filters.Sender != nil {
		where += " AND sender = ?"
		args = append(args, *filters.Sender)
	}
	if filters.AttachmentOnly {
		where += " AND attachment IS NOT NULL"
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages`+where+` ORDER BY seq LIMIT ? OFFSET ?`,
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var msgs []MessageRow
	for rows.Next() {
		m, err := ScanMessage(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		msgs = append(msgs, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return msgs, total, nil
}

// Participants lists a chat's authors by message count, notifications excluded.
func Participants(ctx context.Context, db *sql.DB, chatID string) ([]Participant, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sender, COUNT(*) FROM messages
		WHERE chat_id = ? AND is_notification = 0
		GROUP BY sender
		ORDER BY COUNT(*) DESC, sender`, chatID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Participant
	for rows.Next() {
		var p Participant
		if err := rows.Scan(&p.Sender, &p.Count); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// SearchMessages runs a full-text query over message text and sender names.
// Every whitespace-separated term must match. Results are ranked by bm25.
func SearchMessages(ctx context.Context, db *sql.DB, query string, filters SearchFilters, limit, offset int, includeDeleted bool) ([]SearchResult, int, error) {
	match := BuildMatchQuery(query)
	if match == "" {
		return nil, 0, errors.NewInvalidRequest("query is required")
	}

	where := " WHERE messages_fts MATCH ?"
	args := []any{match}
	if !includeDeleted {
		where += " AND c.deleted_at IS NULL"
	}
	if filters.ChatID != nil {
		where += " AND m.chat_id = ?"
		args = append(args, *filters.ChatID)
	}
	if filters.Sender != nil {
		where += " AND m.sender = ?"
		args = append(args, *filters.Sender)
	}

	from := `
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		JOIN chats c ON c.id = m.chat_id`

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT c.id, c.name_raw,
			m.seq, m.ts, m.sender, m.text, m.attachment, m.attachment_mime, m.attachment_kind,
			snippet(messages_fts, 0, '%s', '%s', '...', 24)
		%s%s
		ORDER BY bm25(messages_fts), c.id, m.seq
		LIMIT ? OFFSET ?`, SnippetOpenMarker, SnippetCloseMarker, from, where),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var (
			r                    SearchResult
			ts                   string
			attachment, mime, kd sql.NullString
		)
		if err := rows.Scan(&r.ChatID, &r.ChatName,
			&r.Message.Seq, &ts, &r.Message.Sender, &r.Message.Text, &attachment, &mime, &kd,
			&r.Snippet); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		if r.Message.Timestamp, err = chat.ParseStoredTimestamp(ts); err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		r.Message.Attachment = fromNullString(attachment)
		r.Message.AttachmentMIME = fromNullString(mime)
		r.Message.AttachmentKind = fromNullString(kd)
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return results, total, nil
}

// BuildMatchQuery quotes each term so user input is never parsed as FTS5 syntax.
func BuildMatchQuery(q string) string {
	terms := strings.Fields(q)
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		quoted = append(quoted, `"`+strings.ReplaceAll(t, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}

// SoftDeleteChat marks a chat as deleted by setting deleted_at.
func SoftDeleteChat(ctx context.Context, db *sql.DB, id string) error {
	now := time.Now().Unix()

	result, err := db.ExecContext(ctx, `
		UPDATE chats
		SET deleted_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`, now, now, id)
	if err != nil {
		return errors.NewInternal(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFound(id)
	}
	return nil
}

// PurgeChats permanently removes soft-deleted chats and their messages.
// A non-nil deletedBefore only purges chats deleted before that Unix time.
func PurgeChats(ctx context.Context, db *sql.DB, deletedBefore *int64) (int, error) {
	query := `SELECT id FROM chats WHERE deleted_at IS NOT NULL`
	var args []any
	if deletedBefore != nil {
		query += " AND deleted_at < ?"
		args = append(args, *deletedBefore)
	}

	var purged int
	err := withTx(ctx, db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return errors.NewInternal(err)
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return errors.NewInternal(err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return errors.NewInternal(err)
		}

		for _, id := range ids {
			if err := deleteChatTx(ctx, tx, id); err != nil {
				return err
			}
		}
		purged = len(ids)
		return nil
	})
	return purged, err
}

// StreamMessages returns all messages of a chat in seq order. The caller must
// close the rows and read them with ScanMessage.
func StreamMessages(ctx context.Context, db *sql.DB, chatID string) (*sql.Rows, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? ORDER BY seq`, chatID)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return rows, nil
}

// ScanMessage scans one row selected with the message columns.
func ScanMessage(row rowScanner) (*MessageRow, error) {
	var (
		m                      MessageRow
		ts                     string
		attachment, mime, kind sql.NullString
	)
	if err := row.Scan(&m.Seq, &ts, &m.Sender, &m.Text, &attachment, &mime, &kind); err != nil {
		return nil, err
	}
	t, err := chat.ParseStoredTimestamp(ts)
	if err != nil {
		return nil, err
	}
	m.Timestamp = t
	m.Attachment = fromNullString(attachment)
	m.AttachmentMIME = fromNullString(mime)
	m.AttachmentKind = fromNullString(kind)
	return &m, nil
}

func scanChat(row rowScanner) (*chat.Chat, error) {
	var (
		c               chat.Chat
		source          sql.NullString
		firstAt, lastAt sql.NullString
		deletedAt       sql.NullInt64
	)

	err := row.Scan(
		&c.ID, &c.NameRaw, &c.NameNorm, &c.Locale, &source,
		&c.MessageCount, &c.NotificationCount, &c.AttachmentCount, &c.SkippedCount, &c.ParticipantCount,
		&firstAt, &lastAt, &c.CreatedAt, &c.UpdatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	c.Source = fromNullString(source)
	if c.FirstAt, err = fromNullTime(firstAt); err != nil {
		return nil, err
	}
	if c.LastAt, err = fromNullTime(lastAt); err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Int64
	}
	return &c, nil
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func toNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: chat.FormatTimestamp(*t), Valid: true}
}

func fromNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := chat.ParseStoredTimestamp(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
