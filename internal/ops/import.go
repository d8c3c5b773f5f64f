package ops

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/render"
)

// ImportMode controls name collision behavior during import.
type ImportMode string

const (
	ImportModeError   ImportMode = "error"   // fail with NAME_ALREADY_EXISTS
	ImportModeReplace ImportMode = "replace" // replace the live chat with that name
	ImportModeRename  ImportMode = "rename"  // store as "<name>-2", "<name>-3", ...
)

const (
	maxRenameAttempts = 100
	maxJSONLLineBytes = 16 << 20
)

// ImportInput contains parameters for the Import operation.
type ImportInput struct {
	Path   string     // required: raw export (.txt, folder, .zip) or parley .jsonl export
	Name   string     // optional, default: derived from the export
	Locale string     // optional: force a profile (raw exports only)
	Mode   ImportMode // default: error
}

// ImportOutput contains the result of the Import operation.
type ImportOutput struct {
	Chat               chat.Summary          `json:"chat"`
	ReplacedID         string                `json:"replaced_id,omitempty"`
	Renamed            bool                  `json:"renamed,omitempty"`
	Skipped            []chat.SkippedSegment `json:"skipped,omitempty"`
	MissingAttachments []string              `json:"missing_attachments,omitempty"`
}

// Import parses an export and stores it as a named chat.
func Import(ctx context.Context, database *sql.DB, cfg *config.Config, input ImportInput) (*ImportOutput, error) {
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if input.Mode == "" {
		input.Mode = ImportModeError
	}
	if input.Mode != ImportModeError && input.Mode != ImportModeReplace && input.Mode != ImportModeRename {
		return nil, errors.NewInvalidRequest("mode must be one of: error, replace, rename")
	}

	var (
		name   string
		source *string
		res    *chat.Result
		rows   []db.MessageRow
		out    = &ImportOutput{}
	)

	if strings.EqualFold(filepath.Ext(input.Path), ".jsonl") {
		header, msgs, err := readJSONLFile(cfg, input.Path)
		if err != nil {
			return nil, err
		}
		name = header.Name
		if header.Source != "" {
			source = &header.Source
		}
		rows = msgs
		res = &chat.Result{
			Locale: header.Locale,
			Messages: lo.Map(msgs, func(m db.MessageRow, _ int) chat.Message {
				return m.Message
			}),
		}
	} else {
		p, err := parseExport(ctx, cfg, input.Path, input.Locale, true)
		if err != nil {
			return nil, err
		}
		name = p.name
		source = &p.sourcePath
		res = p.result
		rows = lo.Map(res.Messages, func(m chat.Message, _ int) db.MessageRow {
			row := db.MessageRow{Message: m}
			if a := p.attachments[m.AttachmentName()]; a != nil {
				row.AttachmentMIME = lo.ToPtr(a.MIME)
				row.AttachmentKind = lo.ToPtr(string(a.Kind))
			}
			return row
		})
		out.Skipped = res.Skipped
		out.MissingAttachments = p.missing
	}

	if strings.TrimSpace(input.Name) != "" {
		name = input.Name
	}
	if chat.Normalize(name) == "" {
		return nil, errors.NewInvalidRequest("name must not be empty")
	}

	id, err := generateULID()
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	c := chat.NewChat(name, source, res)
	c.ID = id
	c.CreatedAt = time.Now().Unix()
	c.UpdatedAt = c.CreatedAt

	switch input.Mode {
	case ImportModeError:
		err = db.InsertChat(ctx, database, c, rows)

	case ImportModeReplace:
		existing, getErr := db.GetChatByName(ctx, database, c.NameNorm, false)
		switch {
		case getErr == nil:
			c.CreatedAt = existing.CreatedAt
			err = db.ReplaceChat(ctx, database, existing.ID, c, rows)
			out.ReplacedID = existing.ID
		case errors.Is(getErr, errors.ErrNotFound):
			err = db.InsertChat(ctx, database, c, rows)
		default:
			err = getErr
		}

	case ImportModeRename:
		out.Renamed, err = insertWithUniqueName(ctx, database, c, rows)
	}
	if err != nil {
		return nil, err
	}

	out.Chat = c.ToSummary()
	return out, nil
}

// insertWithUniqueName inserts c, suffixing its name until it no longer collides.
func insertWithUniqueName(ctx context.Context, database *sql.DB, c *chat.Chat, rows []db.MessageRow) (bool, error) {
	base := c.NameRaw
	for i := 1; i <= maxRenameAttempts; i++ {
		if i > 1 {
			c.NameRaw = fmt.Sprintf("%s-%d", base, i)
			c.NameNorm = chat.Normalize(c.NameRaw)
		}
		err := db.InsertChat(ctx, database, c, rows)
		if err == nil {
			return i > 1, nil
		}
		if !errors.Is(err, errors.ErrNameAlreadyExists) {
			return false, err
		}
	}
	return false, errors.NewNameAlreadyExists(base)
}

// readJSONLFile validates and reads a parley JSONL export.
func readJSONLFile(cfg *config.Config, path string) (*render.Header, []db.MessageRow, error) {
	if err := ValidatePath(path, PathCheckRead, cfg, ".jsonl"); err != nil {
		return nil, nil, err
	}
	file, err := openFileNoFollowRead(path)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, nil, err
		}
		return nil, nil, errors.NewInternal(fmt.Errorf("failed to open import file: %w", err))
	}
	defer file.Close()

	return ReadJSONL(file)
}

// ReadJSONL parses a header line followed by one message record per line.
// Blank lines are ignored.
func ReadJSONL(r io.Reader) (*render.Header, []db.MessageRow, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLLineBytes)

	var (
		header *render.Header
		rows   []db.MessageRow
		line   int
	)
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(strings.TrimSpace(string(data))) == 0 {
			continue
		}

		if header == nil {
			var h render.Header
			if err := json.Unmarshal(data, &h); err != nil || !h.ParleyExport {
				return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: not a parley export header", line))
			}
			header = &h
			continue
		}

		var rec render.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: invalid JSON: %v", line, err))
		}
		if strings.TrimSpace(rec.Sender) == "" {
			return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: sender is required", line))
		}
		m, err := rec.Message()
		if err != nil {
			return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: invalid timestamp %q", line, rec.Timestamp))
		}
		m.Seq = len(rows)
		row := db.MessageRow{Message: m}
		if rec.AttachmentMIME != "" {
			row.AttachmentMIME = lo.ToPtr(rec.AttachmentMIME)
		}
		if rec.AttachmentKind != "" {
			row.AttachmentKind = lo.ToPtr(rec.AttachmentKind)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, errors.NewInvalidRequest(fmt.Sprintf("line %d: %v", line+1, err))
	}
	if header == nil {
		return nil, nil, errors.NewInvalidRequest("empty export file")
	}
	return header, rows, nil
}
