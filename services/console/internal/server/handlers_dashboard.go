package server

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"librarydesk/internal/util"
	"librarydesk/pkg/crud"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/stats"
	"librarydesk/pkg/storage"
	"librarydesk/services/console/internal/app"
)

// tablePage is the data of the shared dashboard table template.
type tablePage struct {
	Path          string
	View          crud.View
	Searchable    bool
	Search        string
	Covers        bool
	UploadedCover string
	PasswordReset bool
}

// target is the list URL to come back to, keeping the search filter.
func (p tablePage) target() string {
	if p.Search == "" {
		return p.Path
	}
	return p.Path + "?" + url.Values{"search": {p.Search}}.Encode()
}

type tableBuilder[T crud.Row] func(r *http.Request) (*crud.Table[T], tablePage, error)

type tableHandlers[T crud.Row] struct {
	s     *Server
	name  string
	path  string
	build tableBuilder[T]
}

// mountTable registers the list, save, delete and action routes of one resource
// under the dashboard router.
func mountTable[T crud.Row](s *Server, r chi.Router, name string, build tableBuilder[T]) {
	h := tableHandlers[T]{s: s, name: name, path: "/dashboard/" + name, build: build}
	r.Get("/"+name, h.list)
	r.Post("/"+name+"/save", h.save)
	r.Post("/"+name+"/delete", h.delete)
	r.Post("/"+name+"/action", h.action)
}

func (s *Server) buildBooks(r *http.Request) (*crud.Table[domain.Book], tablePage, error) {
	table, err := s.app.BooksTable(r.Context(), currentSession(r))
	return table, tablePage{Covers: s.app.CoversEnabled(), UploadedCover: flashesFrom(r.Context()).Cover}, err
}

func (s *Server) buildCategories(r *http.Request) (*crud.Table[domain.Category], tablePage, error) {
	table, err := s.app.CategoriesTable(r.Context(), currentSession(r))
	return table, tablePage{}, err
}

func (s *Server) buildUsers(r *http.Request) (*crud.Table[domain.User], tablePage, error) {
	search := strings.TrimSpace(r.FormValue("search"))
	table, err := s.app.UsersTable(r.Context(), currentSession(r), search)
	return table, tablePage{Searchable: true, Search: search, PasswordReset: true}, err
}

func (s *Server) buildBorrows(r *http.Request) (*crud.Table[domain.BorrowRecord], tablePage, error) {
	table, err := s.app.BorrowsTable(r.Context(), currentSession(r))
	return table, tablePage{}, err
}

// open builds and loads the table. Load failures stay in the view.
func (h tableHandlers[T]) open(w http.ResponseWriter, r *http.Request) (*crud.Table[T], tablePage, bool) {
	table, extra, err := h.build(r)
	if err != nil {
		h.s.renderError(w, r, statusFor(err), app.Message(err, "Failed to load data"))
		return nil, extra, false
	}
	if err := table.Load(r.Context()); err != nil {
		util.LoggerFromContext(r.Context()).Warn("table_load_failed", slog.String("table", h.name), slog.String("err", err.Error()))
	}
	extra.Path = h.path
	return table, extra, true
}

func (h tableHandlers[T]) show(w http.ResponseWriter, r *http.Request, status int, table *crud.Table[T], extra tablePage) {
	extra.View = table.View()
	h.s.renderPage(w, r, status, "table", page{Title: extra.View.Title, Alert: extra.View.Alert, Data: extra})
}

func (h tableHandlers[T]) list(w http.ResponseWriter, r *http.Request) {
	table, extra, ok := h.open(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	status := http.StatusOK
	switch q.Get("modal") {
	case "create":
		if err := table.OpenCreate(); err != nil {
			status = http.StatusNotFound
		}
	case "edit":
		id, _ := strconv.ParseInt(q.Get("id"), 10, 64)
		if err := table.OpenEdit(id); err != nil {
			status = http.StatusNotFound
		}
	}
	if raw := q.Get("delete"); raw != "" {
		id, _ := strconv.ParseInt(raw, 10, 64)
		if err := table.RequestDelete(id); err != nil {
			status = http.StatusNotFound
		}
	}
	h.show(w, r, status, table, extra)
}

func (h tableHandlers[T]) save(w http.ResponseWriter, r *http.Request) {
	if err := h.s.parseForm(w, r); err != nil {
		h.s.renderError(w, r, http.StatusBadRequest, "Invalid form")
		return
	}
	table, extra, ok := h.open(w, r)
	if !ok {
		return
	}
	values := crud.Values{}
	for key, v := range r.PostForm {
		if key == "id" || key == "search" || len(v) == 0 {
			continue
		}
		values[key] = v[0]
	}

	var err error
	if id, editing := formID(r); editing {
		err = table.OpenEdit(id)
	} else {
		err = table.OpenCreate()
	}
	if err != nil {
		h.s.renderError(w, r, http.StatusNotFound, "Item not found")
		return
	}

	if extra.Covers && r.MultipartForm != nil && len(r.MultipartForm.File["coverFile"]) > 0 && r.MultipartForm.File["coverFile"][0].Size > 0 {
		file, err := r.MultipartForm.File["coverFile"][0].Open()
		if err == nil {
			var coverURL string
			coverURL, err = h.s.app.UploadCover(r.Context(), currentSession(r), file)
			file.Close()
			if err == nil {
				values["coverImage"] = coverURL
			}
		}
		if err != nil {
			extra.View = table.View()
			h.s.renderPage(w, r, http.StatusUnprocessableEntity, "table", page{Title: extra.View.Title, Alert: coverMessage(err), Data: extra})
			return
		}
	}

	if err := table.Submit(r.Context(), values); err != nil {
		h.s.audit(r, "console."+h.name+".save", "fail", "err", err.Error())
		h.show(w, r, http.StatusUnprocessableEntity, table, extra)
		return
	}
	h.s.audit(r, "console."+h.name+".save", "success")
	h.s.redirect(w, r, extra.target(), flash("Saved successfully"))
}

func (h tableHandlers[T]) delete(w http.ResponseWriter, r *http.Request) {
	table, extra, ok := h.open(w, r)
	if !ok {
		return
	}
	id, _ := formID(r)
	if err := table.RequestDelete(id); err != nil {
		if errors.Is(err, crud.ErrNotSupported) {
			h.s.renderError(w, r, http.StatusMethodNotAllowed, "This list does not support deleting")
			return
		}
		h.s.renderError(w, r, http.StatusNotFound, "Item not found")
		return
	}
	if r.FormValue("confirm") != "yes" {
		h.show(w, r, http.StatusOK, table, extra)
		return
	}
	if err := table.ConfirmDelete(r.Context()); err != nil {
		h.s.audit(r, "console."+h.name+".delete", "fail", "id", id, "err", err.Error())
		h.s.redirect(w, r, extra.target(), alert(table.Alert()))
		return
	}
	h.s.audit(r, "console."+h.name+".delete", "success", "id", id)
	h.s.redirect(w, r, extra.target(), flash("Deleted successfully"))
}

func (h tableHandlers[T]) action(w http.ResponseWriter, r *http.Request) {
	table, extra, ok := h.open(w, r)
	if !ok {
		return
	}
	id, _ := formID(r)
	name := r.FormValue("name")
	err := table.RunAction(r.Context(), id, name, r.FormValue("confirm") == "yes", r.FormValue("input"))
	switch {
	case err == nil:
		h.s.audit(r, "console."+h.name+"."+name, "success", "id", id)
		h.s.redirect(w, r, extra.target(), flash("Updated successfully"))
	case errors.Is(err, crud.ErrConfirmationRequired):
		h.show(w, r, http.StatusOK, table, extra)
	case errors.Is(err, crud.ErrRowNotFound), errors.Is(err, crud.ErrNotSupported):
		h.s.redirect(w, r, extra.target(), alert("This action is not available"))
	default:
		h.s.audit(r, "console."+h.name+"."+name, "fail", "id", id, "err", err.Error())
		h.s.redirect(w, r, extra.target(), alert(table.Alert()))
	}
}

// parseForm accepts urlencoded forms and, for cover uploads, multipart bodies.
func (s *Server) parseForm(w http.ResponseWriter, r *http.Request) error {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxCoverBytes+(1<<20))
		return r.ParseMultipartForm(s.maxCoverBytes)
	}
	return r.ParseForm()
}

func coverMessage(err error) string {
	switch {
	case errors.Is(err, storage.ErrCoverTooLarge):
		return "Cover image is too large"
	case errors.Is(err, storage.ErrCoverNotAnImage):
		return "Cover must be a JPEG, PNG, WebP or GIF image"
	case errors.Is(err, storage.ErrCoverEmpty):
		return "Cover image is empty"
	case errors.Is(err, app.ErrCoversDisabled):
		return "Cover uploads are not configured"
	}
	return "Upload failed"
}

func (s *Server) handleCoverUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.parseForm(w, r); err != nil {
		s.redirect(w, r, "/dashboard/books", alert("Cover image is too large"))
		return
	}
	file, _, err := r.FormFile("cover")
	if err != nil {
		s.redirect(w, r, "/dashboard/books", alert("Choose an image to upload"))
		return
	}
	defer file.Close()
	coverURL, err := s.app.UploadCover(r.Context(), currentSession(r), file)
	if err != nil {
		s.audit(r, "console.books.cover", "fail", "err", err.Error())
		s.redirect(w, r, "/dashboard/books", alert(coverMessage(err)))
		return
	}
	s.audit(r, "console.books.cover", "success", "url", coverURL)
	s.redirect(w, r, "/dashboard/books", url.Values{"flash": {"Cover uploaded"}, "cover": {coverURL}})
}

func (s *Server) handleUserPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "User not found")
		return
	}
	if err := s.app.ChangeUserPassword(r.Context(), currentSession(r), id, r.FormValue("password")); err != nil {
		s.audit(r, "console.users.password", "fail", "target_user_id", id, "err", err.Error())
		s.redirect(w, r, "/dashboard/users", alert(app.Message(err, "Failed to change password")))
		return
	}
	s.audit(r, "console.users.password", "success", "target_user_id", id)
	s.redirect(w, r, "/dashboard/users", flash("Password updated"))
}

func rangeFrom(r *http.Request) stats.Range {
	q := r.URL.Query()
	return stats.Range{Start: strings.TrimSpace(q.Get("start")), End: strings.TrimSpace(q.Get("end"))}
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	view, err := s.app.Statistics(r.Context(), currentSession(r), rangeFrom(r))
	if err != nil {
		s.renderError(w, r, statusFor(err), app.Message(err, "Failed to load statistics"))
		return
	}
	s.render(w, r, http.StatusOK, "statistics", "Statistics", struct{ Stats app.Statistics }{view})
}

func (s *Server) handleStatisticsExport(w http.ResponseWriter, r *http.Request) {
	rng := rangeFrom(r)
	report, err := s.app.Report(r.Context(), currentSession(r), rng)
	if err != nil {
		if errors.Is(err, stats.ErrRangeRequired) || errors.Is(err, stats.ErrInvalidRange) {
			back := "/dashboard/statistics?" + url.Values{"start": {rng.Start}, "end": {rng.End}}.Encode()
			msg := stats.RangePrompt
			if errors.Is(err, stats.ErrInvalidRange) {
				msg = "Invalid date range"
			}
			s.redirect(w, r, back, alert(msg))
			return
		}
		s.renderError(w, r, statusFor(err), app.Message(err, "Failed to build report"))
		return
	}

	switch r.URL.Query().Get("format") {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="borrow-report-%s-to-%s.csv"`, report.Start, report.End))
		if err := report.WriteCSV(w); err != nil {
			util.LoggerFromContext(r.Context()).Error("report_export_failed", slog.String("err", err.Error()))
		}
	default:
		var buf bytes.Buffer
		if err := s.report.Execute(&buf, report); err != nil {
			util.LoggerFromContext(r.Context()).Error("render_failed", slog.String("page", "report"), slog.String("err", err.Error()))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = buf.WriteTo(w)
	}
}
