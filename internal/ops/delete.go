package ops

import (
	"context"
	"database/sql"

	"github.com/hpungsan/parley/internal/db"
)

// DeleteInput contains parameters for the Delete operation.
type DeleteInput struct {
	ID   string
	Name string
}

// DeleteOutput contains the result of the Delete operation.
type DeleteOutput struct {
	Deleted bool   `json:"deleted"`
	ID      string `json:"id"`
	Name    string `json:"name"`
}

// Delete soft-deletes a chat. Its messages stay until Purge.
func Delete(ctx context.Context, database *sql.DB, input DeleteInput) (*DeleteOutput, error) {
	c, err := resolveChat(ctx, database, input.ID, input.Name, false)
	if err != nil {
		return nil, err
	}

	if err := db.SoftDeleteChat(ctx, database, c.ID); err != nil {
		return nil, err
	}

	return &DeleteOutput{
		Deleted: true,
		ID:      c.ID,
		Name:    c.NameRaw,
	}, nil
}
