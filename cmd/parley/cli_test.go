package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/logging"
	"github.com/hpungsan/parley/internal/ops"
)

const sampleExport = "\u200e[3/5/24, 2:02:10 PM] Dana: Quarterly budget review at noon\n" +
	"\u200e[3/5/24, 2:05:00 PM] Avi: \u200e<attached: IMG_0001.jpg>\n" +
	"\u200e[3/5/24, 2:06:00 PM] Dana: budget approved\n"

// setupTestState creates a temporary database and config for testing.
func setupTestState(t *testing.T) *appState {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	cfg := config.DefaultConfig()
	cfg.BaseDir = tmpDir
	return &appState{cfg: cfg, db: database, log: logging.NewNop()}
}

// writeExport writes sampleExport to <tmp>/<name>.txt.
func writeExport(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".txt")
	if err := os.WriteFile(path, []byte(sampleExport), 0600); err != nil {
		t.Fatalf("failed to write export: %v", err)
	}
	return path
}

// runCLI runs args against a fresh app and returns what it wrote to stdout.
func runCLI(t *testing.T, st *appState, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	defer func() { stdout = old }()

	err := newCLIApp(st).Run(append([]string{"parley"}, args...))
	return buf.String(), err
}

// runJSON runs args, fails the test on error and decodes stdout into v.
func runJSON(t *testing.T, st *appState, v any, args ...string) {
	t.Helper()
	out, err := runCLI(t, st, args...)
	if err != nil {
		t.Fatalf("%s failed: %v", args[0], err)
	}
	if err := json.Unmarshal([]byte(out), v); err != nil {
		t.Fatalf("failed to parse output: %v\nOutput: %s", err, out)
	}
}

// TestParseDuration tests the parseDuration helper function.
func TestParseDuration(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    int
		expectError bool
	}{
		{name: "valid days", input: "7d", expected: 7},
		{name: "zero days", input: "0d", expected: 0},
		{name: "large number", input: "365d", expected: 365},
		{name: "missing suffix", input: "7", expectError: true},
		{name: "wrong suffix", input: "7h", expectError: true},
		{name: "negative", input: "-1d", expectError: true},
		{name: "not a number", input: "xd", expectError: true},
		{name: "empty", input: "", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, result)
			}
		})
	}
}

// TestCLIParse tests the parse command.
func TestCLIParse(t *testing.T) {
	st := setupTestState(t)
	path := writeExport(t, "work")

	var output ops.ParseOutput
	runJSON(t, st, &output, "parse", path)

	if output.Name != "work" || output.Locale != "en" {
		t.Errorf("got name=%q locale=%q, want work/en", output.Name, output.Locale)
	}
	if output.MessageCount != 3 || len(output.Messages) != 3 {
		t.Errorf("expected 3 messages, got %d", output.MessageCount)
	}
	if output.AttachmentCount != 1 {
		t.Errorf("expected 1 attachment, got %d", output.AttachmentCount)
	}
}

// TestCLIParse_Format tests parse rendering straight to stdout.
func TestCLIParse_Format(t *testing.T) {
	st := setupTestState(t)
	path := writeExport(t, "work")

	out, err := runCLI(t, st, "parse", "--format=csv", path)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "timestamp,sender,text,attachment" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 4 {
		t.Errorf("expected header + 3 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[2], "2024-03-05T14:05:00,Avi,") || !strings.HasSuffix(lines[2], ",IMG_0001.jpg") {
		t.Errorf("attachment row = %q", lines[2])
	}

	out, err = runCLI(t, st, "parse", "-f", "table", path)
	if err != nil {
		t.Fatalf("parse table failed: %v", err)
	}
	if !strings.Contains(out, "Quarterly budget review at noon") {
		t.Errorf("table output missing message text:\n%s", out)
	}
}

// TestCLIParse_AutoOutput tests parse writing next to its input.
func TestCLIParse_AutoOutput(t *testing.T) {
	st := setupTestState(t)
	path := writeExport(t, "work")

	var output ops.ParseOutput
	runJSON(t, st, &output, "parse", "-o", "auto", "--decompose", path)

	want := filepath.Join(filepath.Dir(path), "work_chat.csv")
	if output.Output != want {
		t.Errorf("output = %q, want %q", output.Output, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(data), ",2024-03-05,2024,3,March,5,Tuesday,14,2") {
		t.Errorf("missing decomposed columns:\n%s", data)
	}
}

// TestCLIImportShow tests import followed by show.
func TestCLIImportShow(t *testing.T) {
	st := setupTestState(t)

	var imported ops.ImportOutput
	runJSON(t, st, &imported, "import", "--name=Work Chat", writeExport(t, "work"))
	if imported.Chat.ID == "" {
		t.Fatal("expected non-empty ID")
	}
	if imported.Chat.Name != "Work Chat" {
		t.Errorf("name = %q, want Work Chat", imported.Chat.Name)
	}

	var byID ops.ShowOutput
	runJSON(t, st, &byID, "show", imported.Chat.ID)
	if len(byID.Messages) != 3 {
		t.Errorf("expected 3 messages, got %d", len(byID.Messages))
	}

	var bySender ops.ShowOutput
	runJSON(t, st, &bySender, "show", "--name=work chat", "--sender=Avi")
	if len(bySender.Messages) != 1 {
		t.Errorf("expected 1 message from Avi, got %d", len(bySender.Messages))
	}

	out, err := runCLI(t, st, "show", "-n", "work chat", "-f", "jsonl")
	if err != nil {
		t.Fatalf("show jsonl failed: %v", err)
	}
	if !strings.HasPrefix(out, `{"_parley_export":true`) {
		t.Errorf("expected JSONL header, got:\n%s", out)
	}
}

// TestCLIImport_Modes tests name collision handling.
func TestCLIImport_Modes(t *testing.T) {
	st := setupTestState(t)
	path := writeExport(t, "work")

	runJSON(t, st, &ops.ImportOutput{}, "import", path)

	if _, err := runCLI(t, st, "import", path); err == nil {
		t.Error("expected NAME_ALREADY_EXISTS error, got nil")
	}

	var renamed ops.ImportOutput
	runJSON(t, st, &renamed, "import", "--mode=rename", path)
	if renamed.Chat.Name != "work-2" || !renamed.Renamed {
		t.Errorf("expected work-2, got %q", renamed.Chat.Name)
	}
}

// TestCLIList tests the list command.
func TestCLIList(t *testing.T) {
	st := setupTestState(t)
	for _, name := range []string{"a", "b", "c"} {
		runJSON(t, st, &ops.ImportOutput{}, "import", writeExport(t, name))
	}

	var output ops.ListOutput
	runJSON(t, st, &output, "list", "--limit=2")
	if len(output.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(output.Items))
	}
	if !output.Pagination.HasMore || output.Pagination.Total != 3 {
		t.Errorf("pagination = %+v, want has_more with total 3", output.Pagination)
	}
}

// TestCLISearch tests the search command.
func TestCLISearch(t *testing.T) {
	st := setupTestState(t)
	runJSON(t, st, &ops.ImportOutput{}, "import", writeExport(t, "work"))
	runJSON(t, st, &ops.ImportOutput{}, "import", writeExport(t, "other"))

	var output ops.SearchOutput
	runJSON(t, st, &output, "search", "budget")
	if output.Pagination.Total != 4 {
		t.Errorf("expected 4 matches, got %d", output.Pagination.Total)
	}

	runJSON(t, st, &output, "search", "--chat=work", "budget", "approved")
	if len(output.Items) != 1 {
		t.Fatalf("expected 1 match, got %d", len(output.Items))
	}
	if !strings.Contains(output.Items[0].Snippet, "<b>approved</b>") {
		t.Errorf("snippet = %q", output.Items[0].Snippet)
	}
}

// TestCLIExportDeletePurge tests the archive lifecycle.
func TestCLIExportDeletePurge(t *testing.T) {
	st := setupTestState(t)
	var imported ops.ImportOutput
	runJSON(t, st, &imported, "import", writeExport(t, "work"))

	var exported ops.ExportOutput
	runJSON(t, st, &exported, "export", "--name=work", "--format=jsonl")
	if filepath.Dir(exported.Path) != filepath.Join(st.cfg.BaseDir, "exports") {
		t.Errorf("export path = %s, want file in exports dir", exported.Path)
	}
	if exported.Count != 3 {
		t.Errorf("export count = %d, want 3", exported.Count)
	}

	var deleted ops.DeleteOutput
	runJSON(t, st, &deleted, "delete", imported.Chat.ID)
	if !deleted.Deleted {
		t.Error("expected deleted=true")
	}

	var purged ops.PurgeOutput
	runJSON(t, st, &purged, "purge", "--older-than=7d")
	if purged.Purged != 0 {
		t.Errorf("expected nothing purged yet, got %d", purged.Purged)
	}
	runJSON(t, st, &purged, "purge")
	if purged.Purged != 1 {
		t.Errorf("expected 1 purged, got %d", purged.Purged)
	}

	// The JSONL export brings the chat back.
	var restored ops.ImportOutput
	runJSON(t, st, &restored, "import", exported.Path)
	if restored.Chat.MessageCount != 3 {
		t.Errorf("restored message count = %d, want 3", restored.Chat.MessageCount)
	}
}

// TestCLILocales tests the locales command.
func TestCLILocales(t *testing.T) {
	st := setupTestState(t)

	var output ops.LocalesOutput
	runJSON(t, st, &output, "locales")
	if len(output.Items) != 2 || output.Items[0].Name != "he" || output.Items[1].Name != "en" {
		t.Errorf("locales = %+v, want he, en", output.Items)
	}
}

// TestCLIHomeFlag tests that --home opens a store in the given directory.
func TestCLIHomeFlag(t *testing.T) {
	home := t.TempDir()
	st := &appState{}

	var imported ops.ImportOutput
	runJSON(t, st, &imported, "--home", home, "import", writeExport(t, "work"))

	if st.db != nil {
		t.Error("expected the app to close the database it opened")
	}
	if _, err := os.Stat(filepath.Join(home, "parley.db")); err != nil {
		t.Errorf("expected database in home dir: %v", err)
	}
}

// TestCLIErrorHandling tests error handling in CLI commands.
func TestCLIErrorHandling(t *testing.T) {
	st := setupTestState(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"show not found", []string{"show", "--name=nonexistent"}, "[NOT_FOUND]"},
		{"delete not found", []string{"delete", "--name=nonexistent"}, "[NOT_FOUND]"},
		{"show without address", []string{"show"}, "[INVALID_REQUEST]"},
		{"parse without path", []string{"parse"}, "[INVALID_REQUEST]"},
		{"parse missing file", []string{"parse", filepath.Join(t.TempDir(), "nope.txt")}, "[FILE_NOT_FOUND]"},
		{"serve bad port", []string{"serve", "--port=70000"}, "[INVALID_REQUEST]"},
		{"search without query", []string{"search"}, "[INVALID_REQUEST]"},
		{"invalid duration format", []string{"purge", "--older-than=invalid"}, "[INVALID_REQUEST]"},
		{"unknown export format", []string{"parse", "--format=pdf", writeExport(t, "work")}, "[INVALID_REQUEST]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCLI(t, st, tt.args...)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.HasPrefix(err.Error(), tt.want) {
				t.Errorf("error = %q, want prefix %q", err.Error(), tt.want)
			}
		})
	}
}

// TestIsCLIMode tests the isCLIMode function.
func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"parley"}, false},
		{"parse command", []string{"parley", "parse"}, true},
		{"search command", []string{"parley", "search"}, true},
		{"locales command", []string{"parley", "locales"}, true},
		{"serve command", []string{"parley", "serve"}, true},
		{"help flag", []string{"parley", "--help"}, true},
		{"version flag", []string{"parley", "--version"}, true},
		{"short help flag", []string{"parley", "-h"}, true},
		{"short version flag", []string{"parley", "-v"}, true},
		{"home flag", []string{"parley", "--home", "/tmp/x", "list"}, true},
		{"home flag with value", []string{"parley", "--home=/tmp/x", "list"}, true},
		{"unknown arg defaults to MCP", []string{"parley", "--unknown"}, false},
		{"unknown command defaults to MCP", []string{"parley", "store"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isCLIMode(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestIsHelpOrVersion tests the isHelpOrVersion function.
func TestIsHelpOrVersion(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected bool
	}{
		{"no args", []string{"parley"}, false},
		{"help flag", []string{"parley", "--help"}, true},
		{"short help flag", []string{"parley", "-h"}, true},
		{"version flag", []string{"parley", "--version"}, true},
		{"short version flag", []string{"parley", "-v"}, true},
		{"help subcommand", []string{"parley", "help"}, true},
		{"parse command is not help", []string{"parley", "parse"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oldArgs := os.Args
			defer func() { os.Args = oldArgs }()

			os.Args = tt.args
			if result := isHelpOrVersion(); result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

// TestResolveHome tests the data directory lookup order.
func TestResolveHome(t *testing.T) {
	flagDir := t.TempDir()
	envDir := t.TempDir()
	t.Setenv("PARLEY_HOME", envDir)

	if got, _ := resolveHome(flagDir); got != flagDir {
		t.Errorf("flag: got %s, want %s", got, flagDir)
	}
	if got, _ := resolveHome(""); got != envDir {
		t.Errorf("env: got %s, want %s", got, envDir)
	}

	home := t.TempDir()
	t.Setenv("PARLEY_HOME", "")
	t.Setenv("HOME", home)
	if got, _ := resolveHome(""); got != filepath.Join(home, ".parley") {
		t.Errorf("default: got %s, want %s", got, filepath.Join(home, ".parley"))
	}
}
