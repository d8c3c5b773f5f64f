package chat

import "time"

// Message is one assembled record of a parsed export.
type Message struct {
	// Seq is the zero-based position of the message in the export.
	Seq int

	// Timestamp is the naive wall-clock time written in the boundary.
	Timestamp time.Time

	// Sender is the author, or NotificationSender for system messages.
	Sender string

	// Text is the body with the sender prefix removed; line breaks are kept
	// unless continuation lines were joined.
	Text string

	// Attachment is the raw referenced file name (nullable).
	Attachment *string
}

// IsNotification reports whether the message has no identifiable author.
func (m Message) IsNotification() bool {
	return m.Sender == NotificationSender
}

// AttachmentName returns the referenced file name or "".
func (m Message) AttachmentName() string {
	if m.Attachment == nil {
		return ""
	}
	return *m.Attachment
}

// SkippedSegment records a segment dropped because its boundary did not parse.
type SkippedSegment struct {
	Index        int    `json:"index"`
	Offset       int    `json:"offset"`
	RawTimestamp string `json:"raw_timestamp"`
	Reason       string `json:"reason"`
}

// Result is the complete, ordered output of one parse run.
type Result struct {
	Locale   string
	Messages []Message
	Skipped  []SkippedSegment
}

// Empty reports whether the export held no messages at all.
func (r *Result) Empty() bool {
	return len(r.Messages) == 0 && len(r.Skipped) == 0
}
