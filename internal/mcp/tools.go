package mcp

import "github.com/mark3labs/mcp-go/mcp"

const addressingNote = " Address a chat by id or by name, not both."

var parseToolDef = mcp.NewTool("chat_parse",
	mcp.WithDescription("Parse a chat export (.txt, unpacked folder or .zip) without storing it. "+
		"Returns the messages, or writes them to output when given."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the export")),
	mcp.WithString("locale", mcp.Description("Force a locale profile instead of detecting it (see locale_list)")),
	mcp.WithBoolean("resolve_attachments", mcp.Description("Look up attachment files and report MIME types and missing files")),
	mcp.WithString("output", mcp.Description(`Write to this file instead of returning messages; "auto" writes next to the input`)),
	mcp.WithString("format", mcp.Description("Output format"), mcp.Enum("csv", "jsonl", "html", "table")),
	mcp.WithBoolean("decompose", mcp.Description("Add date part columns to CSV output")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var importToolDef = mcp.NewTool("chat_import",
	mcp.WithDescription("Parse a chat export, or a parley .jsonl export, and store it as a named chat."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Path to the export")),
	mcp.WithString("name", mcp.Description("Chat name (default: derived from the export)")),
	mcp.WithString("locale", mcp.Description("Force a locale profile (raw exports only)")),
	mcp.WithString("mode", mcp.Description("What to do when the name is taken"), mcp.Enum("error", "replace", "rename")),
)

var listToolDef = mcp.NewTool("chat_list",
	mcp.WithDescription("List stored chats, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Items to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted chats")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var showToolDef = mcp.NewTool("chat_show",
	mcp.WithDescription("Show a chat's summary, participants and a page of messages."+addressingNote),
	mcp.WithString("id", mcp.Description("Chat id")),
	mcp.WithString("name", mcp.Description("Chat name (case-insensitive)")),
	mcp.WithString("sender", mcp.Description("Only messages by this sender")),
	mcp.WithBoolean("attachments_only", mcp.Description("Only messages with an attachment")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 50, max 500)")),
	mcp.WithNumber("offset", mcp.Description("Messages to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Allow a soft-deleted chat")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var searchToolDef = mcp.NewTool("chat_search",
	mcp.WithDescription("Full-text search over stored messages, ranked by relevance. "+
		"Snippets are HTML-escaped with matches in <b> tags."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Words to find; all must match")),
	mcp.WithString("chat_id", mcp.Description("Limit to one chat by id")),
	mcp.WithString("chat_name", mcp.Description("Limit to one chat by name")),
	mcp.WithString("sender", mcp.Description("Only messages by this sender")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100)")),
	mcp.WithNumber("offset", mcp.Description("Results to skip")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted chats")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var exportToolDef = mcp.NewTool("chat_export",
	mcp.WithDescription("Write a stored chat to a file."+addressingNote),
	mcp.WithString("id", mcp.Description("Chat id")),
	mcp.WithString("name", mcp.Description("Chat name")),
	mcp.WithString("path", mcp.Description("Output file (default: exports directory)")),
	mcp.WithString("format", mcp.Description("Output format (default csv)"), mcp.Enum("csv", "jsonl", "html", "table")),
	mcp.WithBoolean("decompose", mcp.Description("Add date part columns to CSV output")),
	mcp.WithBoolean("include_deleted", mcp.Description("Allow a soft-deleted chat")),
)

var deleteToolDef = mcp.NewTool("chat_delete",
	mcp.WithDescription("Soft-delete a chat. Its name becomes free; messages stay until purge."+addressingNote),
	mcp.WithString("id", mcp.Description("Chat id")),
	mcp.WithString("name", mcp.Description("Chat name")),
	mcp.WithDestructiveHintAnnotation(true),
)

var purgeToolDef = mcp.NewTool("chat_purge",
	mcp.WithDescription("Permanently remove soft-deleted chats and their messages."),
	mcp.WithNumber("older_than_days", mcp.Description("Only chats deleted more than N days ago")),
	mcp.WithDestructiveHintAnnotation(true),
)

var localesToolDef = mcp.NewTool("locale_list",
	mcp.WithDescription("List the locale profiles used to detect and parse exports, in detection order."),
	mcp.WithReadOnlyHintAnnotation(true),
)
