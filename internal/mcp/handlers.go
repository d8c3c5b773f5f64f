package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/logging"
	"github.com/hpungsan/parley/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	log *logging.Logger
}

// NewHandlers creates a new Handlers instance. A nil logger discards output.
func NewHandlers(db *sql.DB, cfg *config.Config, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{db: db, cfg: cfg, log: log}
}

// Request types for each tool

// ParseRequest represents the arguments for chat_parse.
type ParseRequest struct {
	Path               string `json:"path" validate:"required"`
	Locale             string `json:"locale,omitempty"`
	ResolveAttachments bool   `json:"resolve_attachments,omitempty"`
	Output             string `json:"output,omitempty"`
	Format             string `json:"format,omitempty" validate:"omitempty,oneof=csv jsonl html table"`
	Decompose          bool   `json:"decompose,omitempty"`
}

// ImportRequest represents the arguments for chat_import.
type ImportRequest struct {
	Path   string `json:"path" validate:"required"`
	Name   string `json:"name,omitempty" validate:"max=200"`
	Locale string `json:"locale,omitempty"`
	Mode   string `json:"mode,omitempty" validate:"omitempty,oneof=error replace rename"`
}

// ListRequest represents the arguments for chat_list.
type ListRequest struct {
	Limit          int  `json:"limit,omitempty" validate:"gte=0"`
	Offset         int  `json:"offset,omitempty" validate:"gte=0"`
	IncludeDeleted bool `json:"include_deleted,omitempty"`
}

// ShowRequest represents the arguments for chat_show.
type ShowRequest struct {
	ID              string  `json:"id,omitempty"`
	Name            string  `json:"name,omitempty"`
	Sender          *string `json:"sender,omitempty"`
	AttachmentsOnly bool    `json:"attachments_only,omitempty"`
	Limit           int     `json:"limit,omitempty" validate:"gte=0"`
	Offset          int     `json:"offset,omitempty" validate:"gte=0"`
	IncludeDeleted  bool    `json:"include_deleted,omitempty"`
}

// SearchRequest represents the arguments for chat_search.
type SearchRequest struct {
	Query          string  `json:"query" validate:"required"`
	ChatID         string  `json:"chat_id,omitempty"`
	ChatName       string  `json:"chat_name,omitempty"`
	Sender         *string `json:"sender,omitempty"`
	Limit          int     `json:"limit,omitempty" validate:"gte=0"`
	Offset         int     `json:"offset,omitempty" validate:"gte=0"`
	IncludeDeleted bool    `json:"include_deleted,omitempty"`
}

// ExportRequest represents the arguments for chat_export.
type ExportRequest struct {
	ID             string `json:"id,omitempty"`
	Name           string `json:"name,omitempty"`
	Path           string `json:"path,omitempty"`
	Format         string `json:"format,omitempty" validate:"omitempty,oneof=csv jsonl html table"`
	Decompose      bool   `json:"decompose,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// DeleteRequest represents the arguments for chat_delete.
type DeleteRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// PurgeRequest represents the arguments for chat_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty" validate:"omitempty,gte=0"`
}

// Handler implementations

// HandleParse handles the chat_parse tool call.
func (h *Handlers) HandleParse(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ParseRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_parse", func() (any, error) {
		return ops.Parse(ctx, h.cfg, ops.ParseInput{
			Path:               input.Path,
			Locale:             input.Locale,
			ResolveAttachments: input.ResolveAttachments,
			Output:             input.Output,
			Format:             input.Format,
			Decompose:          input.Decompose,
		})
	})
}

// HandleImport handles the chat_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_import", func() (any, error) {
		return ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
			Path:   input.Path,
			Name:   input.Name,
			Locale: input.Locale,
			Mode:   ops.ImportMode(input.Mode),
		})
	})
}

// HandleList handles the chat_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_list", func() (any, error) {
		return ops.List(ctx, h.db, ops.ListInput{
			Limit:          input.Limit,
			Offset:         input.Offset,
			IncludeDeleted: input.IncludeDeleted,
		})
	})
}

// HandleShow handles the chat_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ShowRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_show", func() (any, error) {
		return ops.Show(ctx, h.db, ops.ShowInput{
			ID:              input.ID,
			Name:            input.Name,
			Sender:          input.Sender,
			AttachmentsOnly: input.AttachmentsOnly,
			Limit:           input.Limit,
			Offset:          input.Offset,
			IncludeDeleted:  input.IncludeDeleted,
		})
	})
}

// HandleSearch handles the chat_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_search", func() (any, error) {
		return ops.Search(ctx, h.db, ops.SearchInput{
			Query:          input.Query,
			ChatID:         input.ChatID,
			ChatName:       input.ChatName,
			Sender:         input.Sender,
			Limit:          input.Limit,
			Offset:         input.Offset,
			IncludeDeleted: input.IncludeDeleted,
		})
	})
}

// HandleExport handles the chat_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_export", func() (any, error) {
		return ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
			ID:             input.ID,
			Name:           input.Name,
			Path:           input.Path,
			Format:         input.Format,
			Decompose:      input.Decompose,
			IncludeDeleted: input.IncludeDeleted,
		})
	})
}

// HandleDelete handles the chat_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[DeleteRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_delete", func() (any, error) {
		return ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID, Name: input.Name})
	})
}

// HandlePurge handles the chat_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	return h.run("chat_purge", func() (any, error) {
		return ops.Purge(ctx, h.db, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	})
}

// HandleLocales handles the locale_list tool call.
func (h *Handlers) HandleLocales(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.run("locale_list", func() (any, error) {
		return ops.Locales(h.cfg)
	})
}

// run executes one tool call and logs its outcome. Internal errors are logged
// with their cause, which errorResult keeps from the client.
func (h *Handlers) run(tool string, call func() (any, error)) (*mcp.CallToolResult, error) {
	start := time.Now()
	log := h.log.WithField("tool", tool)

	result, err := call()
	if err != nil {
		if pe, ok := errors.As(err); ok && pe.Code != errors.ErrInternal {
			log.Debugw("tool call rejected", "code", pe.Code, "message", pe.Message)
		} else {
			log.WithError(err).Errorw("tool call failed", "elapsed", time.Since(start))
		}
		return errorResult(err), nil
	}

	log.Debugw("tool call done", "elapsed", time.Since(start))
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Internal error details are never exposed; they may hold paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": "an internal error occurred",
		"status":  500,
	}

	if pe, ok := errors.As(err); ok && pe.Code != errors.ErrInternal {
		errorObj["code"] = string(pe.Code)
		errorObj["status"] = pe.Status
		// Keep context added by wrapping, e.g. "line 3: ...".
		if err != error(pe) {
			errorObj["message"] = err.Error()
		} else {
			errorObj["message"] = pe.Message
		}
		if pe.Details != nil {
			errorObj["details"] = pe.Details
		}
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
