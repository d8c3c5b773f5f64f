package ops

import (
	"context"
	"database/sql"

	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/db"
)

// ListInput contains parameters for the List operation.
type ListInput struct {
	Limit          int // default: 20, max: 100
	Offset         int
	IncludeDeleted bool
}

// ListOutput contains the result of the List operation.
type ListOutput struct {
	Items      []chat.Summary `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Sort       string         `json:"sort"` // "updated_at_desc"
}

// List returns stored chats, most recently updated first.
func List(ctx context.Context, database *sql.DB, input ListInput) (*ListOutput, error) {
	limit := clampLimit(input.Limit, DefaultListLimit, MaxListLimit)
	offset := max(input.Offset, 0)

	chats, total, err := db.ListChats(ctx, database, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	items := lo.Map(chats, func(c chat.Chat, _ int) chat.Summary {
		return c.ToSummary()
	})

	return &ListOutput{
		Items:      items,
		Pagination: newPagination(limit, offset, len(items), total),
		Sort:       "updated_at_desc",
	}, nil
}
