package ops

import (
	"context"
	"database/sql"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/errors"
)

// Search limits
const (
	DefaultSearchLimit = 20
	MaxSearchLimit     = 100
	MaxQueryLength     = db.MaxSearchQueryChars
	MaxSnippetChars    = 300
)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query string // required

	// Optional scope: one chat by id or name.
	ChatID   string
	ChatName string

	Sender         *string // optional filter
	Limit          int     // default: 20, max: 100
	Offset         int
	IncludeDeleted bool
}

// SearchResultItem is one matching message.
type SearchResultItem struct {
	ChatID     string  `json:"chat_id"`
	ChatName   string  `json:"chat_name"`
	Seq        int     `json:"seq"`
	Timestamp  string  `json:"timestamp"`
	Sender     string  `json:"sender"`
	Attachment *string `json:"attachment,omitempty"`

	// Snippet is HTML-safe: message text is escaped and only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"` // "relevance"
}

// Search runs a full-text query over stored messages, ranked by relevance.
func Search(ctx context.Context, database *sql.DB, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	var filters db.SearchFilters
	if strings.TrimSpace(input.ChatID) != "" || strings.TrimSpace(input.ChatName) != "" {
		c, err := resolveChat(ctx, database, input.ChatID, input.ChatName, input.IncludeDeleted)
		if err != nil {
			return nil, err
		}
		filters.ChatID = &c.ID
	}
	filters.Sender = cleanOptionalString(input.Sender)

	limit := clampLimit(input.Limit, DefaultSearchLimit, MaxSearchLimit)
	offset := max(input.Offset, 0)

	results, total, err := db.SearchMessages(ctx, database, query, filters, limit, offset, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	items := lo.Map(results, func(r db.SearchResult, _ int) SearchResultItem {
		return SearchResultItem{
			ChatID:     r.ChatID,
			ChatName:   r.ChatName,
			Seq:        r.Message.Seq,
			Timestamp:  chat.FormatTimestamp(r.Message.Timestamp),
			Sender:     r.Message.Sender,
			Attachment: r.Message.Attachment,
			Snippet:    truncateSnippet(escapeSnippetHTML(r.Snippet), MaxSnippetChars),
		}
	})

	return &SearchOutput{
		Items:      items,
		Pagination: newPagination(limit, offset, len(items), total),
		Sort:       "relevance",
	}, nil
}

// truncateSnippet cuts s to about maxChars bytes without splitting a rune,
// a tag or an entity, and closes any <b> left open.
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}
	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	// Prefer a word boundary unless it loses more than half.
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	for range strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>") {
		truncated += "</b>"
	}
	return truncated + "..."
}

// escapeSnippetHTML escapes message text in a snippet and turns the
// highlight markers written by the query into <b> tags.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00PARLEY_B_OPEN\x00"
		closePlaceholder = "\x00PARLEY_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, db.SnippetOpenMarker, openPlaceholder)
	s = strings.ReplaceAll(s, db.SnippetCloseMarker, closePlaceholder)
	s = html.EscapeString(s)
	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")
	return s
}
