package ops

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/media"
	"github.com/hpungsan/parley/internal/render"
)

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	ID   string
	Name string

	Path           string // optional, default: <exports dir>/<name>-<timestamp>.<ext>
	Format         string // csv (default), jsonl, html or table
	Decompose      bool
	IncludeDeleted bool
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Path       string `json:"path,omitempty"`
	Format     string `json:"format"`
	Count      int    `json:"count"`
	ExportedAt int64  `json:"exported_at"`
}

// Export writes a stored chat to a file.
func Export(ctx context.Context, database *sql.DB, cfg *config.Config, input ExportInput) (*ExportOutput, error) {
	format, err := render.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}

	c, err := resolveChat(ctx, database, input.ID, input.Name, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exportPath := input.Path
	if exportPath == "" {
		if exportPath, err = defaultExportPath(cfg, c.NameNorm, format, now); err != nil {
			return nil, err
		}
	}

	// Default paths are validated too; the chat name is user input.
	if err := ValidatePath(exportPath, PathCheckWrite, cfg, render.Extension(format)); err != nil {
		return nil, err
	}

	exp, err := buildExport(ctx, database, c, input.Decompose, now)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(ctx, exportPath, func(w io.Writer) error {
		return render.Write(w, format, exp)
	}); err != nil {
		return nil, err
	}

	return &ExportOutput{
		ID:         c.ID,
		Name:       c.NameRaw,
		Path:       exportPath,
		Format:     string(format),
		Count:      len(exp.Messages),
		ExportedAt: now.Unix(),
	}, nil
}

// Stream renders a stored chat to w instead of a file. input.Path is ignored.
func Stream(ctx context.Context, database *sql.DB, input ExportInput, w io.Writer) (*ExportOutput, error) {
	format, err := render.ParseFormat(input.Format)
	if err != nil {
		return nil, err
	}

	c, err := resolveChat(ctx, database, input.ID, input.Name, input.IncludeDeleted)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	exp, err := buildExport(ctx, database, c, input.Decompose, now)
	if err != nil {
		return nil, err
	}
	if err := render.Write(w, format, exp); err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(err)
	}

	return &ExportOutput{
		ID:         c.ID,
		Name:       c.NameRaw,
		Format:     string(format),
		Count:      len(exp.Messages),
		ExportedAt: now.Unix(),
	}, nil
}

// buildExport loads a chat's messages into a render.Export.
func buildExport(ctx context.Context, database *sql.DB, c *chat.Chat, decompose bool, now time.Time) (*render.Export, error) {
	msgs, attachments, err := loadMessages(ctx, database, c.ID)
	if err != nil {
		return nil, err
	}

	exp := &render.Export{
		Name:        c.NameRaw,
		Locale:      c.Locale,
		ExportedAt:  now,
		Messages:    msgs,
		Attachments: attachments,
		Decompose:   decompose,
	}
	if c.Source != nil {
		exp.Source = *c.Source
	}
	return exp, nil
}

// loadMessages reads every message of a chat, rebuilding the attachment
// metadata stored at import time.
func loadMessages(ctx context.Context, database *sql.DB, chatID string) ([]chat.Message, map[string]*media.Attachment, error) {
	rows, err := db.StreamMessages(ctx, database, chatID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	msgs := []chat.Message{}
	attachments := make(map[string]*media.Attachment)
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, errors.NewCancelled("export")
		}
		m, err := db.ScanMessage(rows)
		if err != nil {
			return nil, nil, errors.NewInternal(err)
		}
		msgs = append(msgs, m.Message)
		if m.Attachment != nil && m.AttachmentMIME != nil {
			a := &media.Attachment{Name: *m.Attachment, MIME: *m.AttachmentMIME}
			if m.AttachmentKind != nil {
				a.Kind = media.Kind(*m.AttachmentKind)
			}
			attachments[a.Name] = a
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, errors.NewInternal(err)
	}
	return msgs, attachments, nil
}

// defaultExportPath builds <exports dir>/<name>-<timestamp><ext>.
func defaultExportPath(cfg *config.Config, name string, format render.Format, now time.Time) (string, error) {
	dir, err := ExportsDir(cfg)
	if err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s-%s%s", SanitizeForFilename(name), now.Format("2006-01-02T150405"), render.Extension(format))
	return filepath.Join(dir, filename), nil
}

// writeFileAtomic writes through a temp file in the same directory and renames
// it into place, so a failed write leaves any existing file untouched.
func writeFileAtomic(ctx context.Context, path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to create output directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(fmt.Errorf("failed to create output file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		if _, ok := errors.As(err); ok {
			return err
		}
		return errors.NewInternal(err)
	}
	if err := bw.Flush(); err != nil {
		return errors.NewInternal(err)
	}
	if err := ctx.Err(); err != nil {
		return errors.NewCancelled("write")
	}

	if err := file.Sync(); err != nil {
		return errors.NewInternal(err)
	}
	// Close before rename (required on Windows).
	if err := file.Close(); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to close output file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination.
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return errors.NewInvalidRequest("output path is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists; the existing file is kept.
	if err := os.Rename(tempPath, path); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(path); statErr == nil {
				return errors.NewInvalidRequest("output destination already exists; overwriting is not supported on Windows")
			}
		}
		return errors.NewInternal(fmt.Errorf("failed to finalize output: %w", err))
	}

	success = true
	return nil
}
