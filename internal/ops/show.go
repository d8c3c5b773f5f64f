package ops

import (
	"context"
	"database/sql"

	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/render"
)

// ShowInput contains parameters for the Show operation.
type ShowInput struct {
	ID   string
	Name string

	Sender          *string // optional: only messages by this sender
	AttachmentsOnly bool
	Limit           int // default: 50, max: 500
	Offset          int
	IncludeDeleted  bool
}

// ShowOutput contains the result of the Show operation.
type ShowOutput struct {
	Chat         chat.Summary     `json:"chat"`
	Participants []db.Participant `json:"participants"`
	Messages     []render.Record  `json:"messages"`
	Pagination   Pagination       `json:"pagination"`
}

// Show returns a chat's summary, its participants and one page of messages.
func Show(ctx context.Context, database *sql.DB, input ShowInput) (*ShowOutput, error) {
	c, err := resolveChat(ctx, database, input.ID, input.Name, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	limit := clampLimit(input.Limit, DefaultMessageLimit, MaxMessageLimit)
	offset := max(input.Offset, 0)

	participants, err := db.Participants(ctx, database, c.ID)
	if err != nil {
		return nil, err
	}

	filters := db.MessageFilters{
		Sender:         cleanOptionalString(input.Sender),
		AttachmentOnly: input.AttachmentsOnly,
	}
	rows, total, err := db.ListMessages(ctx, database, c.ID, filters, limit, offset)
	if err != nil {
		return nil, err
	}

	return &ShowOutput{
		Chat:         c.ToSummary(),
		Participants: lo.Ternary(participants == nil, []db.Participant{}, participants),
		Messages:     lo.Map(rows, func(r db.MessageRow, _ int) render.Record { return toRecord(r) }),
		Pagination:   newPagination(limit, offset, len(rows), total),
	}, nil
}

func toRecord(r db.MessageRow) render.Record {
	return render.NewRecord(r.Message, lo.FromPtr(r.AttachmentMIME), lo.FromPtr(r.AttachmentKind))
}
