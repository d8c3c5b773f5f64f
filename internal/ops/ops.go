package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit    = 20
	MaxListLimit        = 100
	DefaultMessageLimit = 50
	MaxMessageLimit     = 500
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

func newPagination(limit, offset, count, total int) Pagination {
	return Pagination{
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+count < total,
		Total:   total,
	}
}

// clampLimit applies the default for non-positive limits and caps at max.
func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// Address identifies a chat either by ULID or by name.
type Address struct {
	ByID bool
	ID   string
	Name string // normalized
}

// ValidateAddress requires exactly one of id or name.
func ValidateAddress(id, name string) (*Address, error) {
	id = strings.TrimSpace(id)
	name = strings.TrimSpace(name)

	switch {
	case id != "" && name != "":
		return nil, errors.NewInvalidRequest("specify either id or name, not both")
	case id != "":
		return &Address{ByID: true, ID: id}, nil
	case name == "":
		return nil, errors.NewInvalidRequest("must specify either id or name")
	}

	norm := chat.Normalize(name)
	if norm == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}
	return &Address{Name: norm}, nil
}

// resolveChat loads the chat an address points at.
func resolveChat(ctx context.Context, database *sql.DB, id, name string, includeDeleted bool) (*chat.Chat, error) {
	addr, err := ValidateAddress(id, name)
	if err != nil {
		return nil, err
	}
	if addr.ByID {
		return db.GetChatByID(ctx, database, addr.ID, includeDeleted)
	}
	return db.GetChatByName(ctx, database, addr.Name, includeDeleted)
}

// ExportsDir returns the default export directory, BaseDir/exports.
func ExportsDir(cfg *config.Config) (string, error) {
	if cfg != nil && cfg.BaseDir != "" {
		return filepath.Join(cfg.BaseDir, "exports"), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", errors.NewInternal(fmt.Errorf("failed to get home directory: %w", err))
	}
	return filepath.Join(homeDir, ".parley", "exports"), nil
}

func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func cleanOptionalString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
