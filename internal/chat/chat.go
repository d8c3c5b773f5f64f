package chat

import (
	"regexp"
	"strings"
	"time"
)

// Chat is a stored, named parse of one export.
type Chat struct {
	// ID is a ULID that uniquely identifies this chat
	ID string

	// NameRaw is the name as given by the user or derived from the export file
	NameRaw string

	// NameNorm is the normalized name (lowercased, trimmed, collapsed spaces)
	NameNorm string

	// Locale is the profile the export was parsed with
	Locale string

	// Source is the path the export was imported from (nullable)
	Source *string

	MessageCount      int
	NotificationCount int
	AttachmentCount   int
	SkippedCount      int
	ParticipantCount  int

	// FirstAt and LastAt bound the message timestamps; nil for an empty chat
	FirstAt *time.Time
	LastAt  *time.Time

	CreatedAt int64
	UpdatedAt int64

	// DeletedAt is the Unix timestamp for soft delete (nullable)
	DeletedAt *int64
}

// Summary is the JSON view of a Chat.
type Summary struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Locale            string  `json:"locale"`
	Source            *string `json:"source,omitempty"`
	MessageCount      int     `json:"message_count"`
	NotificationCount int     `json:"notification_count"`
	AttachmentCount   int     `json:"attachment_count"`
	SkippedCount      int     `json:"skipped_count"`
	ParticipantCount  int     `json:"participant_count"`
	FirstAt           *string `json:"first_at,omitempty"`
	LastAt            *string `json:"last_at,omitempty"`
	CreatedAt         int64   `json:"created_at"`
	UpdatedAt         int64   `json:"updated_at"`
	DeletedAt         *int64  `json:"deleted_at,omitempty"`
}

// NewChat builds a Chat from a parse result. ID and timestamps are left to the caller.
func NewChat(name string, source *string, res *Result) *Chat {
	c := &Chat{
		NameRaw:      strings.TrimSpace(name),
		NameNorm:     Normalize(name),
		Locale:       res.Locale,
		Source:       source,
		MessageCount: len(res.Messages),
		SkippedCount: len(res.Skipped),
	}

	senders := make(map[string]struct{})
	for i := range res.Messages {
		m := &res.Messages[i]
		if m.IsNotification() {
			c.NotificationCount++
		} else {
			senders[m.Sender] = struct{}{}
		}
		if m.Attachment != nil {
			c.AttachmentCount++
		}
		if c.FirstAt == nil || m.Timestamp.Before(*c.FirstAt) {
			ts := m.Timestamp
			c.FirstAt = &ts
		}
		if c.LastAt == nil || m.Timestamp.After(*c.LastAt) {
			ts := m.Timestamp
			c.LastAt = &ts
		}
	}
	c.ParticipantCount = len(senders)
	return c
}

// ToSummary converts a Chat for output.
func (c *Chat) ToSummary() Summary {
	s := Summary{
		ID:                c.ID,
		Name:              c.NameRaw,
		Locale:            c.Locale,
		Source:            c.Source,
		MessageCount:      c.MessageCount,
		NotificationCount: c.NotificationCount,
		AttachmentCount:   c.AttachmentCount,
		SkippedCount:      c.SkippedCount,
		ParticipantCount:  c.ParticipantCount,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
		DeletedAt:         c.DeletedAt,
	}
	if c.FirstAt != nil {
		v := FormatTimestamp(*c.FirstAt)
		s.FirstAt = &v
	}
	if c.LastAt != nil {
		v := FormatTimestamp(*c.LastAt)
		s.LastAt = &v
	}
	return s
}

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Normalize trims, lowercases and collapses internal whitespace of a chat name.
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)
	return whitespaceRegex.ReplaceAllString(s, " ")
}
