package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/hpungsan/parley/internal/chat"
	perrors "github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/locale"
)

// DefaultMaxInputBytes caps the size of a single export read into memory.
const DefaultMaxInputBytes int64 = 64 << 20

// DefaultMaxArchiveBytes caps the total extracted from a zip export, media included.
const DefaultMaxArchiveBytes int64 = 2 << 30

var validate = validator.New()

// LocaleConfig describes an extra locale profile registered on top of the built-ins.
// An entry whose name matches a built-in replaces it.
type LocaleConfig struct {
	Name string `json:"name" validate:"required,max=32"`

	// Mark is the leading directionality mark written as "U+200F".
	// Empty means the profile is never auto-detected and must be forced by name.
	Mark string `json:"mark,omitempty" validate:"omitempty,startswith=U+,max=8"`

	// Boundary is a regular expression with exactly one capture group.
	Boundary string `json:"boundary" validate:"required"`

	// DateLayout is a Go time layout matching the captured timestamp.
	DateLayout string `json:"date_layout" validate:"required"`

	// AttachmentMarker is the localized word inside "<marker: name>".
	AttachmentMarker string `json:"attachment_marker" validate:"required"`
}

// Config holds application configuration.
type Config struct {
	// BaseDir is the directory the config was loaded from (~/.parley by default).
	// Exports default to BaseDir/exports.
	BaseDir string `json:"-"`

	// MalformedTimestamps is "fail" (abort the run) or "skip" (drop and report the segment).
	MalformedTimestamps string `json:"malformed_timestamps,omitempty" validate:"omitempty,oneof=fail skip"`

	// JoinContinuationLines collapses multi-line message texts into one line.
	JoinContinuationLines bool `json:"join_continuation_lines,omitempty"`

	// MaxInputBytes rejects exports larger than this with INPUT_TOO_LARGE.
	MaxInputBytes int64 `json:"max_input_bytes,omitempty" validate:"gte=0"`

	// MaxArchiveBytes stops zip extraction once this many bytes are written.
	MaxArchiveBytes int64 `json:"max_archive_bytes,omitempty" validate:"gte=0"`

	// Locales adds or replaces locale profiles. Order is detection order after the built-ins.
	Locales []LocaleConfig `json:"locales,omitempty" validate:"dive"`

	// AllowedPaths is an allowlist of directories for export output.
	// Paths outside ~/.parley/exports require either being in this list or AllowUnsafePaths=true.
	// Paths should be absolute (relative paths are ignored).
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for export.
	// Symlink and extension checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" validate:"gte=0"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" validate:"gte=0"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	// Unknown tool names are logged as warnings.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of type names to disable entirely.
	// Known types: "chat", "locale". Unknown type names are logged as warnings.
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogLevel is a zap level name ("debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// LogEncoding is "console" or "json".
	LogEncoding string `json:"log_encoding,omitempty" validate:"omitempty,oneof=console json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MalformedTimestamps: string(chat.PolicyFail),
		MaxInputBytes:       DefaultMaxInputBytes,
		MaxArchiveBytes:     DefaultMaxArchiveBytes,
		LogLevel:            "info",
		LogEncoding:         "console",
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.parley.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	cfg.BaseDir = baseDir
	return cfg, nil
}

// LoadWithRepo loads configuration from both global (~/.parley) and repo (.parley) directories.
// Repo config is found by walking upward from startDir to find the nearest .parley/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	cfg := Merge(Merge(DefaultConfig(), global), repo)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.BaseDir = globalDir
	return cfg, nil
}

// FindRepoConfig walks upward from startDir to find the nearest .parley/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".parley", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw returns a zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, perrors.NewInvalidConfig(fmt.Sprintf("%s: %v", configPath, err))
	}

	return cfg, nil
}

func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	cfg = Merge(DefaultConfig(), cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
// Locale entries are merged by name, overlay last.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.BaseDir = firstNonEmpty(overlay.BaseDir, base.BaseDir)
	result.MalformedTimestamps = firstNonEmpty(overlay.MalformedTimestamps, base.MalformedTimestamps)
	result.LogLevel = firstNonEmpty(overlay.LogLevel, base.LogLevel)
	result.LogEncoding = firstNonEmpty(overlay.LogEncoding, base.LogEncoding)

	result.MaxInputBytes = overlay.MaxInputBytes
	if result.MaxInputBytes == 0 {
		result.MaxInputBytes = base.MaxInputBytes
	}

	result.MaxArchiveBytes = overlay.MaxArchiveBytes
	if result.MaxArchiveBytes == 0 {
		result.MaxArchiveBytes = base.MaxArchiveBytes
	}

	result.DBMaxOpenConns = overlay.DBMaxOpenConns
	if result.DBMaxOpenConns == 0 {
		result.DBMaxOpenConns = base.DBMaxOpenConns
	}

	result.DBMaxIdleConns = overlay.DBMaxIdleConns
	if result.DBMaxIdleConns == 0 {
		result.DBMaxIdleConns = base.DBMaxIdleConns
	}

	// Booleans: overlay wins if true, else base
	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths
	result.JoinContinuationLines = base.JoinContinuationLines || overlay.JoinContinuationLines

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)
	result.Locales = mergeLocales(base.Locales, overlay.Locales)

	return result
}

// Validate checks field constraints and compiles every configured locale.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return perrors.NewInvalidConfig(err.Error())
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	return nil
}

// Registry builds the locale registry: built-ins first, then configured profiles.
func (c *Config) Registry() (*locale.Registry, error) {
	reg := locale.DefaultRegistry()
	for _, lc := range c.Locales {
		mark, err := parseMark(lc.Mark)
		if err != nil {
			return nil, perrors.NewInvalidConfig(fmt.Sprintf("locale %q: %v", lc.Name, err))
		}
		p, err := locale.NewProfile(lc.Name, mark, lc.Boundary, lc.DateLayout, lc.AttachmentMarker)
		if err != nil {
			return nil, perrors.NewInvalidConfig(fmt.Sprintf("locale %q: %v", lc.Name, err))
		}
		reg = reg.With(p)
	}
	return reg, nil
}

// ParserOptions maps the parse-related settings onto chat.Options.
func (c *Config) ParserOptions() chat.Options {
	return chat.Options{
		Policy:                chat.TimestampPolicy(c.MalformedTimestamps),
		JoinContinuationLines: c.JoinContinuationLines,
	}
}

// parseMark turns "U+200F" into its rune. Empty means no mark.
func parseMark(s string) (rune, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	hex := strings.TrimPrefix(strings.ToUpper(s), "U+")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid mark %q", s)
	}
	return rune(v), nil
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func mergeLocales(a, b []LocaleConfig) []LocaleConfig {
	var result []LocaleConfig
	index := make(map[string]int)
	for _, lc := range append(append([]LocaleConfig{}, a...), b...) {
		key := strings.ToLower(strings.TrimSpace(lc.Name))
		if i, ok := index[key]; ok {
			result[i] = lc
			continue
		}
		index[key] = len(result)
		result = append(result, lc)
	}
	return result
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
