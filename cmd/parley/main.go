package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/hpungsan/parley/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"parse": true, "import": true, "list": true, "show": true,
	"search": true, "export": true, "delete": true, "purge": true,
	"locales": true, "serve": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags (--home, --log-level) are only accepted in CLI mode.
	return isHelpOrVersion() || isGlobalFlag(arg)
}

// isGlobalFlag reports whether arg is one of the app-level flags.
func isGlobalFlag(arg string) bool {
	for _, name := range []string{"--home", "--log-level"} {
		if arg == name || strings.HasPrefix(arg, name+"=") {
			return true
		}
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
                   _
   _ __   __ _ _ _| |___ _  _
  | '_ \/ _' | '_| / -_) || |
  | .__/\__,_|_| |_\___|\_, |
  |_|                   |__/

  Chat export parser and archive

  Usage: parley <command> [options]
         parley --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	st := &appState{}

	if isCLIMode() {
		// Ctrl-C cancels long parses and exports and stops serve.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app := newCLIApp(st)
		if err := app.RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'parley --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runServer(st); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runServer serves MCP over stdio using the default data directory.
func runServer(st *appState) error {
	home, err := resolveHome("")
	if err != nil {
		return err
	}
	cfg, err := st.loadConfig(home, "")
	if err != nil {
		return err
	}
	database, err := st.openDB()
	if err != nil {
		return err
	}
	defer st.close()

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		st.log.Warnw("unknown tools in disabled_tools", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		st.log.Warnw("unknown types in disabled_types", "types", unknown)
	}

	return mcp.Run(database, cfg, st.log, Version)
}
