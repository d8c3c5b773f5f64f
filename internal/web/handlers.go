package web

import (
	"bytes"
	"database/sql"
	"html/template"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/hpungsan/parley/internal/config"
	"github.com/hpungsan/parley/internal/errors"
	"github.com/hpungsan/parley/internal/locale"
	"github.com/hpungsan/parley/internal/logging"
	"github.com/hpungsan/parley/internal/ops"
	"github.com/hpungsan/parley/internal/render"
)

// Handlers contains HTTP route handlers for the chat browser.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	log      *logging.Logger
	renderer *Renderer
}

var contentTypes = map[render.Format]string{
	render.FormatCSV:   "text/csv; charset=utf-8",
	render.FormatJSONL: "application/x-ndjson",
	render.FormatHTML:  "text/html; charset=utf-8",
	render.FormatTable: "text/plain; charset=utf-8",
}

// HandleList handles GET /chats.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.ListInput{
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: h.renderer.page("Chats", "chats"),
		Items:    result.Items,
		Pager:    newPager(r, result.Pagination, len(result.Items)),
		Deleted:  input.IncludeDeleted,
	})
}

// HandleSearch handles GET /chats/search.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	data := SearchPageData{
		PageData: h.renderer.page("Search", "search"),
		Query:    strings.TrimSpace(q.Get("q")),
		Chat:     strings.TrimSpace(q.Get("chat")),
		Sender:   strings.TrimSpace(q.Get("sender")),
		Deleted:  parseBoolParam(r, "include_deleted"),
	}
	data.HasQuery = data.Query != ""

	if data.HasQuery {
		result, err := ops.Search(r.Context(), h.db, ops.SearchInput{
			Query:          data.Query,
			ChatName:       data.Chat,
			Sender:         ptrString(data.Sender),
			Limit:          parseIntParam(r, "limit", ops.DefaultSearchLimit),
			Offset:         parseIntParam(r, "offset", 0),
			IncludeDeleted: data.Deleted,
		})
		if err != nil {
			h.renderer.renderError(w, r, err)
			return
		}
		data.Items = result.Items
		data.Pagination = result.Pagination
		data.Pager = newPager(r, result.Pagination, len(result.Items))
	}

	if r.Header.Get("HX-Target") == "results" {
		h.renderer.renderBlock(w, http.StatusOK, "search", "search-results", data)
		return
	}
	h.renderer.renderPage(w, r, "search", data)
}

// HandleDetail handles GET /chats/{id}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	sender := strings.TrimSpace(r.URL.Query().Get("sender"))
	input := ops.ShowInput{
		ID:              r.PathValue("id"),
		Sender:          ptrString(sender),
		AttachmentsOnly: parseBoolParam(r, "attachments_only"),
		Limit:           parseIntParam(r, "limit", ops.DefaultMessageLimit),
		Offset:          parseIntParam(r, "offset", 0),
		IncludeDeleted:  parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.Show(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.renderer.renderPage(w, r, "detail", DetailPageData{
		PageData:        h.renderer.page(result.Chat.Name, "chats"),
		Chat:            result.Chat,
		Participants:    result.Participants,
		Messages:        result.Messages,
		Pager:           newPager(r, result.Pagination, len(result.Messages)),
		Sender:          sender,
		AttachmentsOnly: input.AttachmentsOnly,
		Deleted:         input.IncludeDeleted,
		Dir:             h.direction(result.Chat.Locale),
		Formats:         render.Formats,
	})
}

// HandleDownload handles GET /chats/{id}/export, streaming the chat as a file download.
func (h *Handlers) HandleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := render.ParseFormat(q.Get("format"))
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	// Buffer so a failure can still produce an error page.
	var buf bytes.Buffer
	input := ops.ExportInput{
		ID:             r.PathValue("id"),
		Format:         string(format),
		Decompose:      parseBoolParam(r, "decompose"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}
	out, err := ops.Stream(r.Context(), h.db, input, &buf)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	filename := ops.SanitizeForFilename(out.Name) + render.Extension(format)

	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// HandleDelete handles DELETE /chats/{id} and its form fallback.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: r.PathValue("id")})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.log.Infow("chat deleted", "id", result.ID, "name", result.Name)

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", "/chats")
		w.WriteHeader(http.StatusOK)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/chats", http.StatusSeeOther)
}

// HandlePurge handles POST /chats/purge.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest(`confirm parameter must be "true"`))
		return
	}

	var input ops.PurgeInput
	if days := strings.TrimSpace(r.FormValue("older_than_days")); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}
	h.log.Infow("purged deleted chats", "purged", result.Purged)

	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<div class="purge-result">` + template.HTMLEscapeString(result.Message) + `</div>`))
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/chats?include_deleted=true", http.StatusSeeOther)
}

// HandleLocales handles GET /locales.
func (h *Handlers) HandleLocales(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Locales(h.cfg)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "locales", LocalesPageData{
		PageData: h.renderer.page("Locales", "locales"),
		Items:    result.Items,
	})
}

// direction maps a chat's locale to the text direction of its directionality mark.
func (h *Handlers) direction(name string) string {
	reg, err := h.cfg.Registry()
	if err != nil {
		return "auto"
	}
	p, err := reg.Get(name)
	if err != nil {
		return "auto"
	}
	if p.DirectionalityMark() == locale.RightToLeftMark {
		return "rtl"
	}
	return "ltr"
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

// ptrString returns a pointer to s if non-empty, nil otherwise.
func ptrString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
