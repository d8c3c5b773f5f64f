package ops

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/media"
	"github.com/hpungsan/parley/internal/render"
	"github.com/hpungsan/parley/internal/source"
)

// AutoOutput as ParseInput.Output writes "<stem>_chat.<ext>" next to the
// transcript: beside a text file or zip, inside an export folder.
const AutoOutput = "auto"

// ParseInput contains parameters for the Parse operation.
type ParseInput struct {
	Path               string // required: .txt file, export folder or .zip
	Locale             string // optional: force a profile instead of detecting
	ResolveAttachments bool

	// Output is a file to write instead of returning messages. AutoOutput
	// picks a path next to the input.
	Output    string
	Format    string // csv (default), jsonl, html or table
	Decompose bool
}

// ParseOutput contains the result of the Parse operation.
type ParseOutput struct {
	Name               string                `json:"name"`
	Locale             string                `json:"locale"`
	MessageCount       int                   `json:"message_count"`
	NotificationCount  int                   `json:"notification_count"`
	AttachmentCount    int                   `json:"attachment_count"`
	Skipped            []chat.SkippedSegment `json:"skipped,omitempty"`
	MissingAttachments []string              `json:"missing_attachments,omitempty"`

	// Output is set when the messages were written to a file.
	Output string `json:"output,omitempty"`
	Format string `json:"format,omitempty"`

	// Messages is set when no output file was requested.
	Messages []render.Record `json:"messages,omitempty"`
}

// parsedExport is an opened, parsed and optionally resolved export.
type parsedExport struct {
	name        string
	sourcePath  string
	outputDir   string // where AutoOutput files go
	result      *chat.Result
	attachments map[string]*media.Attachment
	missing     []string
}

// Parse reads and parses an export without touching the store.
func Parse(ctx context.Context, cfg *config.Config, input ParseInput) (*ParseOutput, error) {
	var format render.Format
	if input.Output != "" {
		var err error
		if format, err = render.ParseFormat(input.Format); err != nil {
			return nil, err
		}
	}

	p, err := parseExport(ctx, cfg, input.Path, input.Locale, input.ResolveAttachments)
	if err != nil {
		return nil, err
	}

	out := &ParseOutput{
		Name:               p.name,
		Locale:             p.result.Locale,
		MessageCount:       len(p.result.Messages),
		Skipped:            p.result.Skipped,
		MissingAttachments: p.missing,
	}
	for _, m := range p.result.Messages {
		if m.IsNotification() {
			out.NotificationCount++
		}
		if m.Attachment != nil {
			out.AttachmentCount++
		}
	}

	if input.Output == "" {
		out.Messages = lo.Map(p.result.Messages, func(m chat.Message, _ int) render.Record {
			var mime, kind string
			if a := p.attachments[m.AttachmentName()]; a != nil {
				mime, kind = a.MIME, string(a.Kind)
			}
			return render.NewRecord(m, mime, kind)
		})
		return out, nil
	}

	outPath := input.Output
	var extraDirs []string
	if outPath == AutoOutput {
		inputDir := p.outputDir
		outPath = filepath.Join(inputDir, SanitizeForFilename(p.name)+"_chat"+render.Extension(format))
		extraDirs = append(extraDirs, inputDir)
	}
	if err := ValidatePath(outPath, PathCheckWrite, cfg, render.Extension(format), extraDirs...); err != nil {
		return nil, err
	}

	exp := &render.Export{
		Name:        p.name,
		Locale:      p.result.Locale,
		Source:      p.sourcePath,
		ExportedAt:  time.Now(),
		Messages:    p.result.Messages,
		Attachments: p.attachments,
		Decompose:   input.Decompose,
	}
	if err := writeFileAtomic(ctx, outPath, func(w io.Writer) error {
		return render.Write(w, format, exp)
	}); err != nil {
		return nil, err
	}

	out.Output = outPath
	out.Format = string(format)
	return out, nil
}

// parseExport opens path, parses the transcript and resolves attachments if asked.
func parseExport(ctx context.Context, cfg *config.Config, path, localeName string, resolve bool) (*parsedExport, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	path = strings.TrimSpace(path)

	src, err := source.Open(path, cfg.MaxInputBytes, cfg.MaxArchiveBytes)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	text, err := src.Read()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("parse")
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	opts := cfg.ParserOptions()
	opts.Locale = strings.TrimSpace(localeName)

	res, err := chat.NewParser(registry, opts).Parse(text)
	if err != nil {
		return nil, err
	}

	p := &parsedExport{
		name:       src.Name(path),
		sourcePath: absOrSame(path),
		outputDir:  filepath.Dir(absOrSame(src.TextPath)),
		result:     res,
	}
	// Extracted archives are removed on Close; write beside the archive.
	if src.Temporary() {
		p.outputDir = filepath.Dir(p.sourcePath)
	}

	if resolve {
		names := lo.Uniq(lo.FilterMap(res.Messages, func(m chat.Message, _ int) (string, bool) {
			return m.AttachmentName(), m.Attachment != nil
		}))
		found, missing, err := media.NewResolver(src.MediaDir).ResolveAll(names)
		if err != nil {
			return nil, err
		}
		// Zip media lives in a temp dir that is gone after Close.
		if src.Temporary() {
			for _, a := range found {
				a.Path = ""
			}
		}
		p.attachments = found
		p.missing = missing
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.NewCancelled("parse")
	}
	return p, nil
}

func absOrSame(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
