package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/parley/internal/chat"
	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/db"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/logging"
	"github.com/hpungsan/parley/internal/media"
	"github.com/hpungsan/parley/internal/ops"
	"github.com/hpungsan/parley/internal/render"
	"github.com/hpungsan/parley/internal/web"
)

// stdout is where command results go. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// appState holds what commands share. Config and database are opened on
// first use, so parse and locales never touch the store.
type appState struct {
	cfg *config.Config
	db  *sql.DB
	log *logging.Logger

	ownsDB bool
}

// resolveHome returns the data directory: flag, then PARLEY_HOME, then ~/.parley.
func resolveHome(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv("PARLEY_HOME"); env != "" {
		return filepath.Abs(env)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".parley"), nil
}

// loadConfig loads global and repo config and builds the logger from it.
func (s *appState) loadConfig(home, logLevel string) (*config.Config, error) {
	if s.cfg != nil {
		return s.cfg, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = home
	}
	cfg, err := config.LoadWithRepo(home, cwd)
	if err != nil {
		return nil, err
	}
	if s.log == nil {
		log, err := logging.New(logging.Config{
			Level:    lo.Ternary(logLevel != "", logLevel, cfg.LogLevel),
			Encoding: cfg.LogEncoding,
		})
		if err != nil {
			return nil, errors.NewInvalidConfig(err.Error())
		}
		s.log = log
	}
	s.cfg = cfg
	return cfg, nil
}

// openDB opens the store in the configured base directory.
func (s *appState) openDB() (*sql.DB, error) {
	if s.db != nil {
		return s.db, nil
	}
	database, err := db.Init(s.cfg.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, s.cfg)
	s.log.Debugw("database opened", "dir", s.cfg.BaseDir)
	s.db = database
	s.ownsDB = true
	return database, nil
}

func (s *appState) close() {
	if s.ownsDB && s.db != nil {
		s.db.Close()
		s.db = nil
	}
	if s.log != nil {
		_ = s.log.Sync()
	}
}

// config resolves the config for a command invocation.
func (s *appState) config(c *cli.Context) (*config.Config, error) {
	if s.cfg != nil {
		if s.log == nil {
			s.log = logging.NewNop()
		}
		return s.cfg, nil
	}
	home, err := resolveHome(c.String("home"))
	if err != nil {
		return nil, err
	}
	return s.loadConfig(home, c.String("log-level"))
}

// store resolves config and database for a command invocation.
func (s *appState) store(c *cli.Context) (*sql.DB, *config.Config, error) {
	cfg, err := s.config(c)
	if err != nil {
		return nil, nil, err
	}
	database, err := s.openDB()
	if err != nil {
		return nil, nil, err
	}
	return database, cfg, nil
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(st *appState) *cli.App {
	app := &cli.App{
		Name:    "parley",
		Usage:   "Parse chat exports and keep a searchable archive",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "home", Usage: "Data directory (default: $PARLEY_HOME or ~/.parley)"},
			&cli.StringFlag{Name: "log-level", Usage: "Log level: debug|info|warn|error"},
		},
		Commands: []*cli.Command{
			parseCmd(st),
			importCmd(st),
			listCmd(st),
			showCmd(st),
			searchCmd(st),
			exportCmd(st),
			deleteCmd(st),
			purgeCmd(st),
			localesCmd(st),
			serveCmd(st),
		},
		After: func(_ *cli.Context) error {
			st.close()
			return nil
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

var formatUsage = "Output format: " + strings.Join(lo.Map(render.Formats, func(f render.Format, _ int) string {
	return string(f)
}), "|")

// parseCmd creates the parse command.
func parseCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "parse",
		Usage:     "Parse an export without storing it",
		ArgsUsage: "<path to .txt, folder or .zip>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "locale", Aliases: []string{"l"}, Usage: "Force a locale profile instead of detecting it"},
			&cli.BoolFlag{Name: "resolve-attachments", Aliases: []string{"a"}, Usage: "Look up attachment files"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: `Write to a file ("auto" = next to the input)`},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: formatUsage},
			&cli.BoolFlag{Name: "decompose", Usage: "Add date part columns to CSV output"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one export path is required"))
			}
			cfg, err := st.config(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.ParseInput{
				Path:               c.Args().First(),
				Locale:             c.String("locale"),
				ResolveAttachments: c.Bool("resolve-attachments"),
				Output:             c.String("output"),
				Format:             c.String("format"),
				Decompose:          c.Bool("decompose"),
			}

			output, err := ops.Parse(c.Context, cfg, input)
			if err != nil {
				return outputError(err)
			}
			st.log.Debugw("parsed export", "name", output.Name, "locale", output.Locale, "messages", output.MessageCount)

			if input.Output == "" && input.Format != "" {
				return outputRendered(input.Format, output.Name, output.Locale, output.Messages, input.Decompose)
			}
			return outputJSON(output)
		},
	}
}

// importCmd creates the import command.
func importCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Parse an export (or a parley .jsonl export) and store it",
		ArgsUsage: "<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Chat name (default: derived from the export)"},
			&cli.StringFlag{Name: "locale", Aliases: []string{"l"}, Usage: "Force a locale profile"},
			&cli.StringFlag{Name: "mode", Aliases: []string{"m"}, Value: "error", Usage: "Collision mode: error|replace|rename"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one export path is required"))
			}
			database, cfg, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Import(c.Context, database, cfg, ops.ImportInput{
				Path:   c.Args().First(),
				Name:   c.String("name"),
				Locale: c.String("locale"),
				Mode:   ops.ImportMode(c.String("mode")),
			})
			if err != nil {
				return outputError(err)
			}
			st.log.Infow("chat imported", "id", output.Chat.ID, "name", output.Chat.Name, "messages", output.Chat.MessageCount)

			return outputJSON(output)
		},
	}
}

// listCmd creates the list command.
func listCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List stored chats",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: ops.DefaultListLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip results"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted chats"},
		},
		Action: func(c *cli.Context) error {
			database, _, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.List(c.Context, database, ops.ListInput{
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// showCmd creates the show command.
func showCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a chat and a page of its messages",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Chat name"},
			&cli.StringFlag{Name: "sender", Aliases: []string{"s"}, Usage: "Only messages by this sender"},
			&cli.BoolFlag{Name: "attachments-only", Usage: "Only messages with an attachment"},
			&cli.IntFlag{Name: "limit", Value: ops.DefaultMessageLimit, Usage: "Max messages"},
			&cli.IntFlag{Name: "offset", Usage: "Skip messages"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Allow a soft-deleted chat"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Usage: formatUsage + " (messages only)"},
		},
		Action: func(c *cli.Context) error {
			database, _, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.ShowInput{
				Name:            c.String("name"),
				AttachmentsOnly: c.Bool("attachments-only"),
				Limit:           c.Int("limit"),
				Offset:          c.Int("offset"),
				IncludeDeleted:  c.Bool("include-deleted"),
			}
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			}
			if c.IsSet("sender") {
				input.Sender = lo.ToPtr(c.String("sender"))
			}

			output, err := ops.Show(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			if format := c.String("format"); format != "" {
				return outputRendered(format, output.Chat.Name, output.Chat.Locale, output.Messages, false)
			}
			return outputJSON(output)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Full-text search over stored messages",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "chat", Aliases: []string{"c"}, Usage: "Limit to one chat by name"},
			&cli.StringFlag{Name: "chat-id", Usage: "Limit to one chat by id"},
			&cli.StringFlag{Name: "sender", Aliases: []string{"s"}, Usage: "Only messages by this sender"},
			&cli.IntFlag{Name: "limit", Value: ops.DefaultSearchLimit, Usage: "Max results"},
			&cli.IntFlag{Name: "offset", Usage: "Skip results"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Include soft-deleted chats"},
		},
		Action: func(c *cli.Context) error {
			database, _, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.SearchInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				ChatName:       c.String("chat"),
				ChatID:         c.String("chat-id"),
				Limit:          c.Int("limit"),
				Offset:         c.Int("offset"),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.IsSet("sender") {
				input.Sender = lo.ToPtr(c.String("sender"))
			}

			output, err := ops.Search(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "Write a stored chat to a file",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Chat name"},
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: <home>/exports/<name>-<timestamp>.<ext>)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: string(render.FormatCSV), Usage: formatUsage},
			&cli.BoolFlag{Name: "decompose", Usage: "Add date part columns to CSV output"},
			&cli.BoolFlag{Name: "include-deleted", Usage: "Allow a soft-deleted chat"},
		},
		Action: func(c *cli.Context) error {
			database, cfg, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.ExportInput{
				Name:           c.String("name"),
				Path:           c.String("path"),
				Format:         c.String("format"),
				Decompose:      c.Bool("decompose"),
				IncludeDeleted: c.Bool("include-deleted"),
			}
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			}

			output, err := ops.Export(c.Context, database, cfg, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// deleteCmd creates the delete command.
func deleteCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Soft-delete a chat",
		ArgsUsage: "[id]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Chat name"},
		},
		Action: func(c *cli.Context) error {
			database, _, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			input := ops.DeleteInput{Name: c.String("name")}
			if c.NArg() > 0 {
				input.ID = c.Args().First()
			}

			output, err := ops.Delete(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted chats",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}
			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			database, _, err := st.store(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Purge(c.Context, database, input)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// localesCmd creates the locales command.
func localesCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "locales",
		Usage: "List locale profiles in detection order",
		Action: func(c *cli.Context) error {
			cfg, err := st.config(c)
			if err != nil {
				return outputError(err)
			}

			output, err := ops.Locales(cfg)
			if err != nil {
				return outputError(err)
			}

			return outputJSON(output)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputRendered writes records to stdout in one of the render formats.
func outputRendered(format, name, locale string, records []render.Record, decompose bool) error {
	f, err := render.ParseFormat(format)
	if err != nil {
		return outputError(err)
	}

	exp := &render.Export{
		Name:        name,
		Locale:      locale,
		ExportedAt:  time.Now(),
		Messages:    make([]chat.Message, 0, len(records)),
		Attachments: make(map[string]*media.Attachment),
		Decompose:   decompose,
	}
	for _, r := range records {
		m, err := r.Message()
		if err != nil {
			return outputError(errors.NewInternal(err))
		}
		exp.Messages = append(exp.Messages, m)
		if r.Attachment != nil && r.AttachmentMIME != "" {
			exp.Attachments[*r.Attachment] = &media.Attachment{
				Name: *r.Attachment,
				MIME: r.AttachmentMIME,
				Kind: media.Kind(r.AttachmentKind),
			}
		}
	}

	if err := render.Write(stdout, f, exp); err != nil {
		return outputError(err)
	}
	return nil
}

// outputError formats error for CLI.
func outputError(err error) error {
	if pe, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", pe.Code, pe.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}

// serveCmd creates the serve command.
func serveCmd(st *appState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Browse stored chats in a local web UI",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to listen on"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8765, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			database, cfg, err := st.store(c)
			if err != nil {
				return outputError(err)
			}
			if port := c.Int("port"); port < 0 || port > 65535 {
				return outputError(errors.NewInvalidRequest("port must be between 0 and 65535"))
			}

			srv, err := web.NewServer(database, cfg, st.log, Version, c.String("bind"), c.Int("port"))
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			if err := web.Run(c.Context, srv, st.log); err != nil {
				return outputError(errors.NewInternal(err))
			}
			return nil
		},
	}
}
