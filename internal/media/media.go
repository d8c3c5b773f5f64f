// Package media resolves attachment names found in a transcript to files on
// disk and classifies them by sniffed content type.
package media

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/hpungsan/parley/internal/errors"
)

// Kind is a coarse attachment category.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindSticker  Kind = "sticker"
	KindDocument Kind = "document"
	KindOther    Kind = "other"
)

// Attachment is a resolved attachment file.
type Attachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Size int64  `json:"size"`
	MIME string `json:"mime"`
	Kind Kind   `json:"kind"`
}

// Resolver looks attachment names up below a base directory.
type Resolver struct {
	baseDir string
}

// NewResolver creates a Resolver rooted at baseDir (the export folder).
func NewResolver(baseDir string) *Resolver {
	return &Resolver{baseDir: baseDir}
}

// Resolve stats and sniffs the named file. Names are plain file names; anything
// that would leave baseDir is rejected.
func (r *Resolver) Resolve(name string) (*Attachment, error) {
	name = strings.TrimSpace(name)
	if name == "" || name != filepath.Base(name) || name == ".." {
		return nil, errors.NewInvalidRequest("invalid attachment name: " + name)
	}

	path := filepath.Join(r.baseDir, name)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	if info.IsDir() {
		return nil, errors.NewInvalidRequest("attachment is a directory: " + name)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &Attachment{
		Name: name,
		Path: path,
		Size: info.Size(),
		MIME: mt.String(),
		Kind: KindOf(mt.String(), name),
	}, nil
}

// ResolveAll resolves each distinct name. Names without a file on disk are
// returned in missing rather than failing the batch.
func (r *Resolver) ResolveAll(names []string) (found map[string]*Attachment, missing []string, err error) {
	found = make(map[string]*Attachment, len(names))
	for _, name := range names {
		if _, ok := found[name]; ok {
			continue
		}
		a, err := r.Resolve(name)
		if err != nil {
			if errors.Is(err, errors.ErrFileNotFound) || errors.Is(err, errors.ErrInvalidRequest) {
				missing = append(missing, name)
				continue
			}
			return nil, nil, err
		}
		found[name] = a
	}
	return found, missing, nil
}

// KindOf classifies a MIME type. The export's file naming
// ("00000012-STICKER-...webp") wins over the sniffed type for stickers.
func KindOf(mime, name string) Kind {
	if strings.Contains(strings.ToUpper(name), "STICKER") {
		return KindSticker
	}

	mt, _, _ := strings.Cut(mime, ";")
	mt = strings.TrimSpace(strings.ToLower(mt))
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "audio/"), mt == "application/ogg":
		return KindAudio
	case mt == "application/pdf",
		strings.HasPrefix(mt, "text/"),
		strings.Contains(mt, "officedocument"),
		strings.Contains(mt, "opendocument"),
		mt == "application/msword",
		mt == "application/vnd.ms-excel",
		mt == "application/vnd.ms-powerpoint":
		return KindDocument
	}
	return KindOther
}
