package render

import (
	"bufio"
	"encoding/json"
	"io"

	"github.com/hpungsan/parley/internal/chat"
)

// SchemaVersion is written in every JSONL header.
const SchemaVersion = "1.0"

// Header is the first line of a JSONL export.
type Header struct {
	ParleyExport  bool   `json:"_parley_export"`
	SchemaVersion string `json:"schema_version"`
	Name          string `json:"name"`
	Locale        string `json:"locale"`
	Source        string `json:"source,omitempty"`
	MessageCount  int    `json:"message_count"`
	ExportedAt    int64  `json:"exported_at"`
}

// Record is one message line of a JSONL export.
type Record struct {
	Seq            int     `json:"seq"`
	Timestamp      string  `json:"timestamp"`
	Sender         string  `json:"sender"`
	IsNotification bool    `json:"is_notification"`
	Text           string  `json:"text"`
	Attachment     *string `json:"attachment"`
	AttachmentMIME string  `json:"attachment_mime,omitempty"`
	AttachmentKind string  `json:"attachment_kind,omitempty"`
}

// NewRecord converts a message. mime and kind describe the resolved attachment, if any.
func NewRecord(m chat.Message, mime, kind string) Record {
	return Record{
		Seq:            m.Seq,
		Timestamp:      chat.FormatTimestamp(m.Timestamp),
		Sender:         m.Sender,
		IsNotification: m.IsNotification(),
		Text:           m.Text,
		Attachment:     m.Attachment,
		AttachmentMIME: mime,
		AttachmentKind: kind,
	}
}

// Message converts a record back into a chat.Message.
func (r Record) Message() (chat.Message, error) {
	ts, err := chat.ParseStoredTimestamp(r.Timestamp)
	if err != nil {
		return chat.Message{}, err
	}
	return chat.Message{
		Seq:        r.Seq,
		Timestamp:  ts,
		Sender:     r.Sender,
		Text:       r.Text,
		Attachment: r.Attachment,
	}, nil
}

// WriteJSONL writes the header line then one record per line.
func WriteJSONL(w io.Writer, exp *Export) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)

	header := Header{
		ParleyExport:  true,
		SchemaVersion: SchemaVersion,
		Name:          exp.Name,
		Locale:        exp.Locale,
		Source:        exp.Source,
		MessageCount:  len(exp.Messages),
		ExportedAt:    exp.ExportedAt.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return err
	}

	for _, m := range exp.Messages {
		var mime, kind string
		if a := exp.attachment(m); a != nil {
			mime, kind = a.MIME, string(a.Kind)
		}
		if err := enc.Encode(NewRecord(m, mime, kind)); err != nil {
			return err
		}
	}
	return bw.Flush()
}
