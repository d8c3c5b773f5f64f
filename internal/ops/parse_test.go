package ops

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/errors"
)

func TestParse_TextFile(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.NoError(t, err)

	require.Equal(t, "family", out.Name)
	require.Equal(t, "he", out.Locale)
	require.Equal(t, 4, out.MessageCount)
	require.Equal(t, 1, out.NotificationCount)
	require.Equal(t, 1, out.AttachmentCount)
	require.Empty(t, out.Output)
	require.Len(t, out.Messages, 4)

	require.Equal(t, "Dana", out.Messages[0].Sender)
	require.Equal(t, "2024-03-05T14:02:10", out.Messages[0].Timestamp)
	require.Equal(t, "first line\nsecond line", out.Messages[1].Text)
	require.True(t, out.Messages[2].IsNotification)
	require.Equal(t, chat.NotificationSender, out.Messages[2].Sender)
	require.Equal(t, photoName, *out.Messages[3].Attachment)
	require.Empty(t, out.Messages[3].AttachmentMIME, "attachments not resolved unless asked")
}

func TestParse_ResolvesAttachments(t *testing.T) {
	_, cfg := setupTest(t)
	dir := writeExportDir(t, "Family Group")

	out, err := Parse(context.Background(), cfg, ParseInput{Path: dir, ResolveAttachments: true})
	require.NoError(t, err)

	require.Equal(t, "Family Group", out.Name)
	require.Empty(t, out.MissingAttachments)
	require.Equal(t, "image/jpeg", out.Messages[3].AttachmentMIME)
	require.Equal(t, "image", out.Messages[3].AttachmentKind)
}

func TestParse_MissingAttachmentDoesNotFail(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path, ResolveAttachments: true})
	require.NoError(t, err)
	require.Equal(t, []string{photoName}, out.MissingAttachments)
	require.Equal(t, 4, out.MessageCount)
}

func TestParse_ZipArchive(t *testing.T) {
	_, cfg := setupTest(t)
	zipPath := filepath.Join(t.TempDir(), "WhatsApp Chat - Family.zip")

	writeZip(t, zipPath, map[string][]byte{
		"_chat.txt": []byte(familyExport),
		photoName:   jpegBytes,
	})

	out, err := Parse(context.Background(), cfg, ParseInput{Path: zipPath, ResolveAttachments: true})
	require.NoError(t, err)
	require.Equal(t, "WhatsApp Chat - Family", out.Name)
	require.Equal(t, 4, out.MessageCount)
	require.Equal(t, "image", out.Messages[3].AttachmentKind)
}

func TestParse_AutoOutput(t *testing.T) {
	_, cfg := setupTest(t)
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "family.txt"), []byte(familyExport))

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path, Output: AutoOutput})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "family_chat.csv"), out.Output)
	require.Equal(t, "csv", out.Format)
	require.Nil(t, out.Messages)

	data, err := os.ReadFile(out.Output)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.Equal(t, "timestamp,sender,text,attachment", lines[0])
	require.Equal(t, "2024-03-05T14:02:10,Dana,Hello there,", lines[1])
}

func TestParse_AutoOutputFolderWritesInsideFolder(t *testing.T) {
	_, cfg := setupTest(t)
	dir := writeExportDir(t, "Family Group")

	out, err := Parse(context.Background(), cfg, ParseInput{Path: dir, Output: AutoOutput})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "Family-Group_chat.csv"), out.Output)
	require.FileExists(t, out.Output)
}

func TestParse_AutoOutputZipWritesBesideArchive(t *testing.T) {
	_, cfg := setupTest(t)
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "family.zip")
	writeZip(t, zipPath, map[string][]byte{"_chat.txt": []byte(familyExport)})

	out, err := Parse(context.Background(), cfg, ParseInput{Path: zipPath, Output: AutoOutput})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, "family_chat.csv"), out.Output)
	require.FileExists(t, out.Output)
}

func TestParse_AutoOutputDecomposed(t *testing.T) {
	_, cfg := setupTest(t)
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "family.txt"), []byte(familyExport))

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path, Output: AutoOutput, Decompose: true})
	require.NoError(t, err)

	data, err := os.ReadFile(out.Output)
	require.NoError(t, err)
	lines := strings.Split(string(data), "\n")
	require.True(t, strings.HasSuffix(lines[0], ",date,year,month_num,month,day,day_name,hour,minute"), lines[0])
	require.True(t, strings.HasSuffix(lines[1], ",2024-03-05,2024,3,March,5,Tuesday,14,2"), lines[1])
}

func TestParse_OutputToExportsDir(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))
	outPath := filepath.Join(cfg.BaseDir, "exports", "family.jsonl")

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path, Output: outPath, Format: "jsonl"})
	require.NoError(t, err)
	require.Equal(t, outPath, out.Output)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, strings.SplitN(string(data), "\n", 2)[0], `"_parley_export":true`)
}

func TestParse_OutputRejected(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))

	tests := []struct {
		name   string
		output string
		format string
	}{
		{"outside allowed dirs", filepath.Join(t.TempDir(), "out.csv"), "csv"},
		{"extension mismatch", filepath.Join(cfg.BaseDir, "exports", "out.txt"), "csv"},
		{"unknown format", filepath.Join(cfg.BaseDir, "exports", "out.xml"), "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(context.Background(), cfg, ParseInput{Path: path, Output: tt.output, Format: tt.format})
			require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)
		})
	}
}

func TestParse_LocaleOverride(t *testing.T) {
	_, cfg := setupTest(t)
	noMarks := strings.ReplaceAll(familyExport, "\u200f", "")
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(noMarks))

	_, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrUnsupportedLocale), "err = %v", err)

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path, Locale: "he"})
	require.NoError(t, err)
	require.Equal(t, 4, out.MessageCount)

	_, err = Parse(context.Background(), cfg, ParseInput{Path: path, Locale: "xx"})
	require.True(t, errors.Is(err, errors.ErrUnsupportedLocale), "err = %v", err)
}

func TestParse_MalformedTimestampPolicy(t *testing.T) {
	_, cfg := setupTest(t)
	text := familyExport + "\u200f[31.02.2024, 10:00:00] Dana: impossible date\n"
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(text))

	_, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrMalformedTimestamp), "err = %v", err)

	cfg.MalformedTimestamps = "skip"
	out, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, 4, out.MessageCount)
	require.Len(t, out.Skipped, 1)
	require.Equal(t, "31.02.2024, 10:00:00", out.Skipped[0].RawTimestamp)
}

func TestParse_JoinContinuationLines(t *testing.T) {
	_, cfg := setupTest(t)
	cfg.JoinContinuationLines = true
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.NoError(t, err)
	require.Equal(t, "first line second line", out.Messages[1].Text)
}

func TestParse_EmptyFile(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "empty.txt"), nil)

	out, err := Parse(context.Background(), cfg, ParseInput{Path: path})
	require.NoError(t, err)
	require.Zero(t, out.MessageCount)
	require.Empty(t, out.Messages)
}

func TestParse_Errors(t *testing.T) {
	_, cfg := setupTest(t)
	path := writeFile(t, filepath.Join(t.TempDir(), "family.txt"), []byte(familyExport))

	_, err := Parse(context.Background(), cfg, ParseInput{Path: ""})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "err = %v", err)

	_, err = Parse(context.Background(), cfg, ParseInput{Path: filepath.Join(t.TempDir(), "missing.txt")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound), "err = %v", err)

	small := *cfg
	small.MaxInputBytes = 10
	_, err = Parse(context.Background(), &small, ParseInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrInputTooLarge), "err = %v", err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Parse(ctx, cfg, ParseInput{Path: path})
	require.True(t, errors.Is(err, errors.ErrCancelled), "err = %v", err)
}

func TestParse_ZipArchiveTooLarge(t *testing.T) {
	_, cfg := setupTest(t)
	zipPath := filepath.Join(t.TempDir(), "family.zip")
	writeZip(t, zipPath, map[string][]byte{
		"_chat.txt": []byte(familyExport),
		"big.bin":   make([]byte, 1<<20),
	})

	small := *cfg
	small.MaxArchiveBytes = 64 << 10
	_, err := Parse(context.Background(), &small, ParseInput{Path: zipPath})
	require.True(t, errors.Is(err, errors.ErrInputTooLarge), "err = %v", err)
}

func writeZip(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}
