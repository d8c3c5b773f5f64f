package ops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/parley/internal/errors"
)

func TestDelete_ByID(t *testing.T) {
	database, cfg := setupTest(t)
	imp := importText(t, database, cfg, "family", familyExport)

	out, err := Delete(context.Background(), database, DeleteInput{ID: imp.Chat.ID})
	require.NoError(t, err)
	require.True(t, out.Deleted)
	require.Equal(t, imp.Chat.ID, out.ID)
	require.Equal(t, "family", out.Name)

	_, err = Show(context.Background(), database, ShowInput{ID: imp.Chat.ID})
	require.True(t, errors.Is(err, errors.ErrNotFound), "err = %v", err)

	show, err := Show(context.Background(), database, ShowInput{ID: imp.Chat.ID, IncludeDeleted: true})
	require.NoError(t, err)
	require.NotNil(t, show.Chat.DeletedAt)
	require.Equal(t, 4, show.Pagination.Total, "messages kept until purge")
}

func TestDelete_ByName(t *testing.T) {
	database, cfg := setupTest(t)
	imp := importText(t, database, cfg, "Family", familyExport)

	out, err := Delete(context.Background(), database, DeleteInput{Name: "  FAMILY "})
	require.NoError(t, err)
	require.Equal(t, imp.Chat.ID, out.ID)
	require.Equal(t, "Family", out.Name)
}

func TestDelete_NotFound(t *testing.T) {
	database, cfg := setupTest(t)
	imp := importText(t, database, cfg, "family", familyExport)

	_, err := Delete(context.Background(), database, DeleteInput{Name: "missing"})
	require.True(t, errors.Is(err, errors.ErrNotFound), "err = %v", err)

	_, err = Delete(context.Background(), database, DeleteInput{ID: imp.Chat.ID})
	require.NoError(t, err)
	_, err = Delete(context.Background(), database, DeleteInput{ID: imp.Chat.ID})
	require.True(t, errors.Is(err, errors.ErrNotFound), "already deleted: err = %v", err)
}

func TestDelete_InvalidAddress(t *testing.T) {
	database, _ := setupTest(t)

	_, err := Delete(context.Background(), database, DeleteInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)

	_, err = Delete(context.Background(), database, DeleteInput{ID: "x", Name: "y"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)
}

func TestDelete_FreesName(t *testing.T) {
	database, cfg := setupTest(t)
	first := importText(t, database, cfg, "family", familyExport)

	_, err := Delete(context.Background(), database, DeleteInput{Name: "family"})
	require.NoError(t, err)

	second := importText(t, database, cfg, "family", workExport)
	require.NotEqual(t, first.Chat.ID, second.Chat.ID)

	show, err := Show(context.Background(), database, ShowInput{Name: "family"})
	require.NoError(t, err)
	require.Equal(t, second.Chat.ID, show.Chat.ID)
}
