// Package source locates the chat transcript inside whatever the user handed
// over: a bare text file, an unpacked export folder, or the zip archive the
// phone produces when exporting "with media".
package source

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/hpungsan/parley/internal/errors"
)

// ChatFileName is the transcript name inside iOS exports.
const ChatFileName = "_chat.txt"

// Source is an opened export. TextPath is the transcript and MediaDir the
// folder that attachment names are relative to.
type Source struct {
	TextPath string
	MediaDir string
	MaxBytes int64

	tmpDir string
}

// Open resolves path to a Source. maxBytes caps the transcript and
// maxArchiveBytes the total extracted from a zip; values <= 0 disable a check.
// Zip archives are extracted into a temporary directory that Close removes.
func Open(path string, maxBytes, maxArchiveBytes int64) (*Source, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}

	switch {
	case info.IsDir():
		text, err := findTranscript(path)
		if err != nil {
			return nil, err
		}
		return &Source{TextPath: text, MediaDir: path, MaxBytes: maxBytes}, nil

	case strings.EqualFold(filepath.Ext(path), ".zip"):
		return openZip(path, maxBytes, maxArchiveBytes)

	default:
		return &Source{TextPath: path, MediaDir: filepath.Dir(path), MaxBytes: maxBytes}, nil
	}
}

// Read returns the transcript contents, enforcing MaxBytes.
func (s *Source) Read() (string, error) {
	f, err := os.Open(s.TextPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFound(s.TextPath)
		}
		return "", errors.NewInternal(err)
	}
	defer f.Close()

	return ReadAll(f, s.MaxBytes)
}

// Name is the default chat name: the transcript's folder or archive stem for
// "_chat.txt" style exports, the file stem otherwise.
func (s *Source) Name(origPath string) string {
	base := filepath.Base(s.TextPath)
	if base == ChatFileName {
		base = filepath.Base(origPath)
	}
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Temporary reports whether the export was extracted into a directory that Close removes.
func (s *Source) Temporary() bool {
	return s.tmpDir != ""
}

// Close removes any temporary extraction directory. Safe to call twice.
func (s *Source) Close() error {
	if s.tmpDir == "" {
		return nil
	}
	dir := s.tmpDir
	s.tmpDir = ""
	return os.RemoveAll(dir)
}

// ReadAll reads r up to maxBytes. Larger input fails with INPUT_TOO_LARGE.
func ReadAll(r io.Reader, maxBytes int64) (string, error) {
	if maxBytes > 0 {
		r = io.LimitReader(r, maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return "", errors.NewInputTooLarge(maxBytes, int64(len(data)))
	}
	return string(data), nil
}

// findTranscript picks _chat.txt, or the only .txt file in dir.
func findTranscript(dir string) (string, error) {
	chatPath := filepath.Join(dir, ChatFileName)
	if _, err := os.Stat(chatPath); err == nil {
		return chatPath, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.NewInternal(err)
	}
	var candidates []string
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			candidates = append(candidates, filepath.Join(dir, e.Name()))
		}
	}
	switch len(candidates) {
	case 0:
		return "", errors.NewFileNotFound(chatPath)
	case 1:
		return candidates[0], nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("%s holds %d .txt files; pass the transcript path directly", dir, len(candidates)))
	}
}

func openZip(path string, maxBytes, maxArchiveBytes int64) (*Source, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot open zip %s: %v", path, err))
	}
	defer zr.Close()

	tmpDir, err := os.MkdirTemp("", "parley-*")
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	src := &Source{MediaDir: tmpDir, MaxBytes: maxBytes, tmpDir: tmpDir}

	x := &extractor{
		dir:      tmpDir,
		maxText:  maxBytes,
		maxTotal: maxArchiveBytes,
		seen:     make(map[string]string),
	}
	for _, f := range zr.File {
		if err := x.extract(f); err != nil {
			src.Close()
			return nil, err
		}
	}

	text, err := findTranscript(tmpDir)
	if err != nil {
		src.Close()
		return nil, err
	}
	src.TextPath = text
	return src, nil
}

// extractor writes archive members below dir, tracking the bytes written.
// Limits <= 0 are disabled.
type extractor struct {
	dir      string
	maxText  int64
	maxTotal int64
	written  int64
	seen     map[string]string // base name -> member name
}

// extract writes one archive member. Members are flattened to their base
// name: exports are flat, and flattening rules out path traversal. Two members
// that flatten to the same name are rejected.
func (x *extractor) extract(f *zip.File) error {
	if f.FileInfo().IsDir() {
		return nil
	}
	if strings.HasPrefix(f.Name, "__MACOSX/") {
		return nil
	}
	name := filepath.Base(filepath.Clean("/" + f.Name))
	if name == "/" || strings.HasPrefix(name, "._") {
		return nil
	}
	if prev, ok := x.seen[name]; ok {
		return errors.NewInvalidRequest(fmt.Sprintf("zip members %s and %s both extract to %s", prev, f.Name, name))
	}
	x.seen[name] = f.Name

	limit := int64(-1)
	if x.maxTotal > 0 {
		limit = x.maxTotal - x.written
	}
	textMember := name == ChatFileName
	if textMember && x.maxText > 0 {
		if int64(f.UncompressedSize64) > x.maxText {
			return errors.NewInputTooLarge(x.maxText, int64(f.UncompressedSize64))
		}
		if limit < 0 || x.maxText < limit {
			limit = x.maxText
		}
	}

	rc, err := f.Open()
	if err != nil {
		return errors.NewInvalidRequest(fmt.Sprintf("corrupt zip member %s: %v", f.Name, err))
	}
	defer rc.Close()

	out, err := os.OpenFile(filepath.Join(x.dir, name), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.NewInternal(err)
	}

	// The header size is not trusted; the copy is bounded too.
	var r io.Reader = rc
	if limit >= 0 {
		r = io.LimitReader(rc, limit+1)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return errors.NewInvalidRequest(fmt.Sprintf("corrupt zip member %s: %v", f.Name, err))
	}
	if err := out.Close(); err != nil {
		return errors.NewInternal(err)
	}

	if limit >= 0 && n > limit {
		if textMember && x.maxText > 0 && n > x.maxText {
			return errors.NewInputTooLarge(x.maxText, n)
		}
		return errors.NewInputTooLarge(x.maxTotal, x.written+n)
	}
	x.written += n
	return nil
}
