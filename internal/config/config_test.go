package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/errors"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(body), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestLoad_DefaultWhenMissing(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxInputBytes != DefaultMaxInputBytes {
		t.Errorf("MaxInputBytes = %d, want %d", cfg.MaxInputBytes, DefaultMaxInputBytes)
	}
	if cfg.MaxArchiveBytes != DefaultMaxArchiveBytes {
		t.Errorf("MaxArchiveBytes = %d, want %d", cfg.MaxArchiveBytes, DefaultMaxArchiveBytes)
	}
	if cfg.MalformedTimestamps != "fail" {
		t.Errorf("MalformedTimestamps = %q, want fail", cfg.MalformedTimestamps)
	}
}

func TestLoad_OverridesFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"max_input_bytes": 500, "max_archive_bytes": 9000, "malformed_timestamps": "skip", "join_continuation_lines": true}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxInputBytes != 500 {
		t.Errorf("MaxInputBytes = %d, want 500", cfg.MaxInputBytes)
	}
	if cfg.MaxArchiveBytes != 9000 {
		t.Errorf("MaxArchiveBytes = %d, want 9000", cfg.MaxArchiveBytes)
	}

	opts := cfg.ParserOptions()
	if opts.Policy != chat.PolicySkip {
		t.Errorf("Policy = %q, want skip", opts.Policy)
	}
	if !opts.JoinContinuationLines {
		t.Error("JoinContinuationLines = false, want true")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{not json}`)

	_, err := Load(tmpDir)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoad_RejectsUnknownPolicy(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"malformed_timestamps": "guess"}`)

	_, err := Load(tmpDir)
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want INVALID_CONFIG", err)
	}
}

func TestLoad_DisabledTools(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"disabled_tools": ["chat_purge", "chat_delete"]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Fatalf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
	if cfg.DisabledTools[0] != "chat_purge" || cfg.DisabledTools[1] != "chat_delete" {
		t.Errorf("DisabledTools = %v", cfg.DisabledTools)
	}
}

func TestLoad_CustomLocale(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"locales": [{
		"name": "de",
		"boundary": "\\[(\\d{1,2}\\.\\d{1,2}\\.\\d{2}, \\d{1,2}:\\d{2}:\\d{2})\\]",
		"date_layout": "2.1.06, 15:04:05",
		"attachment_marker": "Anhang"
	}]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	p, err := reg.Get("de")
	if err != nil {
		t.Fatalf("Get(de) error = %v", err)
	}
	if p.DirectionalityMark() != 0 {
		t.Errorf("mark = %U, want none", p.DirectionalityMark())
	}
	if len(reg.Profiles()) != 3 {
		t.Errorf("profiles = %d, want 3", len(reg.Profiles()))
	}
}

func TestLoad_LocaleWithMark(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, tmpDir, `{"locales": [{
		"name": "ar",
		"mark": "U+061C",
		"boundary": "\\[(\\d{1,2}/\\d{1,2}/\\d{4}, \\d{1,2}:\\d{2}:\\d{2})\\]",
		"date_layout": "2/1/2006, 15:04:05",
		"attachment_marker": "مرفق"
	}]}`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	reg, err := cfg.Registry()
	if err != nil {
		t.Fatalf("Registry() error = %v", err)
	}
	p, err := reg.Detect("\u061c[05/03/2024, 14:02:10] Dana: hi")
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if p.Name() != "ar" {
		t.Errorf("Detect() = %q, want ar", p.Name())
	}
}

func TestLoad_InvalidLocale(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing boundary", `{"locales": [{"name": "x", "date_layout": "2006", "attachment_marker": "a"}]}`},
		{"two groups", `{"locales": [{"name": "x", "boundary": "(a)(b)", "date_layout": "2006", "attachment_marker": "a"}]}`},
		{"bad regexp", `{"locales": [{"name": "x", "boundary": "([", "date_layout": "2006", "attachment_marker": "a"}]}`},
		{"bad mark", `{"locales": [{"name": "x", "mark": "U+ZZ", "boundary": "(a)", "date_layout": "2006", "attachment_marker": "a"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			writeConfig(t, tmpDir, tt.body)

			_, err := Load(tmpDir)
			if !errors.Is(err, errors.ErrInvalidConfig) {
				t.Fatalf("Load() error = %v, want INVALID_CONFIG", err)
			}
		})
	}
}

func TestLoadWithRepo_BothPresent(t *testing.T) {
	globalDir := t.TempDir()
	repoRoot := t.TempDir()

	writeConfig(t, globalDir, `{"max_input_bytes": 8000, "disabled_tools": ["chat_purge"]}`)
	writeConfig(t, filepath.Join(repoRoot, ".parley"), `{"max_input_bytes": 5000, "disabled_tools": ["chat_delete"]}`)

	cfg, err := LoadWithRepo(globalDir, repoRoot)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxInputBytes != 5000 {
		t.Errorf("MaxInputBytes = %d, want 5000 (repo override)", cfg.MaxInputBytes)
	}
	if len(cfg.DisabledTools) != 2 {
		t.Errorf("DisabledTools length = %d, want 2", len(cfg.DisabledTools))
	}
}

func TestLoadWithRepo_NeitherPresent(t *testing.T) {
	cfg, err := LoadWithRepo(t.TempDir(), t.TempDir())
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}

	if cfg.MaxInputBytes != DefaultMaxInputBytes {
		t.Errorf("MaxInputBytes = %d, want default", cfg.MaxInputBytes)
	}
	if len(cfg.DisabledTools) != 0 {
		t.Errorf("DisabledTools = %v, want empty", cfg.DisabledTools)
	}
}

func TestLoadWithRepo_WalksUpward(t *testing.T) {
	tmpDir := t.TempDir()
	globalDir := t.TempDir()

	writeConfig(t, filepath.Join(tmpDir, ".parley"), `{"disabled_tools": ["chat_purge"]}`)

	subdir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(subdir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}

	cfg, err := LoadWithRepo(globalDir, subdir)
	if err != nil {
		t.Fatalf("LoadWithRepo() error = %v", err)
	}
	if len(cfg.DisabledTools) != 1 || cfg.DisabledTools[0] != "chat_purge" {
		t.Errorf("DisabledTools = %v, want [chat_purge]", cfg.DisabledTools)
	}
}

func TestMerge_ScalarOverride(t *testing.T) {
	base := &Config{MaxInputBytes: 10000, DBMaxOpenConns: 5, LogLevel: "info"}
	overlay := &Config{MaxInputBytes: 5000, LogLevel: "debug"}

	result := Merge(base, overlay)

	if result.MaxInputBytes != 5000 {
		t.Errorf("MaxInputBytes = %d, want 5000 (overlay)", result.MaxInputBytes)
	}
	if result.DBMaxOpenConns != 5 {
		t.Errorf("DBMaxOpenConns = %d, want 5 (base, overlay is zero)", result.DBMaxOpenConns)
	}
	if result.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", result.LogLevel)
	}
}

func TestMerge_BooleanOr(t *testing.T) {
	result := Merge(&Config{AllowUnsafePaths: true}, &Config{JoinContinuationLines: true})

	if !result.AllowUnsafePaths {
		t.Error("AllowUnsafePaths should be true (base OR overlay)")
	}
	if !result.JoinContinuationLines {
		t.Error("JoinContinuationLines should be true (base OR overlay)")
	}
}

func TestMerge_ArrayMergeDedup(t *testing.T) {
	base := &Config{DisabledTools: []string{"chat_purge", " chat_delete "}}
	overlay := &Config{DisabledTools: []string{"chat_delete", "chat_export"}}

	result := Merge(base, overlay)

	want := []string{"chat_purge", "chat_delete", "chat_export"}
	if len(result.DisabledTools) != len(want) {
		t.Fatalf("DisabledTools = %v, want %v", result.DisabledTools, want)
	}
	for i := range want {
		if result.DisabledTools[i] != want[i] {
			t.Errorf("DisabledTools[%d] = %q, want %q", i, result.DisabledTools[i], want[i])
		}
	}
}

func TestMerge_LocalesByName(t *testing.T) {
	base := &Config{Locales: []LocaleConfig{{Name: "de", DateLayout: "a"}, {Name: "fr", DateLayout: "b"}}}
	overlay := &Config{Locales: []LocaleConfig{{Name: "DE", DateLayout: "c"}}}

	result := Merge(base, overlay)

	if len(result.Locales) != 2 {
		t.Fatalf("Locales = %v, want 2 entries", result.Locales)
	}
	if result.Locales[0].DateLayout != "c" {
		t.Errorf("Locales[0].DateLayout = %q, want overlay value", result.Locales[0].DateLayout)
	}
}

func TestFindRepoConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeConfig(t, filepath.Join(tmpDir, ".parley"), `{}`)
	configPath := filepath.Join(tmpDir, ".parley", "config.json")

	if found := FindRepoConfig(tmpDir); found != configPath {
		t.Errorf("FindRepoConfig() = %q, want %q", found, configPath)
	}

	deeper := filepath.Join(tmpDir, "subdir", "deeper")
	if err := os.MkdirAll(deeper, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if found := FindRepoConfig(deeper); found != configPath {
		t.Errorf("FindRepoConfig(deeper) = %q, want %q", found, configPath)
	}

	if found := FindRepoConfig(t.TempDir()); found != "" {
		t.Errorf("FindRepoConfig() = %q, want empty string", found)
	}
}
