package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"librarydesk/pkg/borrowstate"
	"librarydesk/services/console/internal/app"
)

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func formID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	home, err := s.app.Home(r.Context(), currentSession(r), r.URL.Query().Get("q"))
	if err != nil {
		s.renderError(w, r, statusFor(err), app.Message(err, "Failed to load books"))
		return
	}
	s.render(w, r, http.StatusOK, "home", "Home", home)
}

type bookPage struct {
	Detail        app.BookDetail
	ConfirmReturn bool
	ReturnPrompt  string
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "Book not found")
		return
	}
	detail, err := s.app.BookDetail(r.Context(), currentSession(r), id)
	if err != nil {
		s.renderError(w, r, statusFor(err), app.Message(err, "Book not found"))
		return
	}
	data := bookPage{
		Detail:        detail,
		ConfirmReturn: r.URL.Query().Get("confirm") == "return",
		ReturnPrompt:  borrowstate.ReturnPrompt,
	}
	s.render(w, r, http.StatusOK, "book", detail.Book.Title, data)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "Book not found")
		return
	}
	msg, err := s.app.Borrow(r.Context(), currentSession(r), id)
	target := "/book/" + strconv.FormatInt(id, 10)
	if err != nil {
		s.audit(r, "console.borrow", "fail", "book_id", id, "err", err.Error())
		s.redirect(w, r, target, alert(msg))
		return
	}
	s.redirect(w, r, target, flash(msg))
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "Book not found")
		return
	}
	target := "/book/" + strconv.FormatInt(id, 10)
	msg, err := s.app.Return(r.Context(), currentSession(r), id, r.FormValue("confirm") == "yes")
	switch {
	case err == nil:
		s.redirect(w, r, target, flash(msg))
	case errors.Is(err, borrowstate.ErrConfirmationRequired):
		s.redirect(w, r, target+"?confirm=return", nil)
	default:
		s.redirect(w, r, target, alert(msg))
	}
}

func (s *Server) handleBorrowed(w http.ResponseWriter, r *http.Request) {
	items, err := s.app.Borrowed(r.Context(), currentSession(r))
	if err != nil {
		s.renderError(w, r, statusFor(err), app.Message(err, "Failed to load your borrows"))
		return
	}
	s.render(w, r, http.StatusOK, "borrowed", "Borrowed", struct{ Items []app.BorrowedItem }{items})
}

func (s *Server) handleCategory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.renderError(w, r, http.StatusNotFound, "Category not found")
		return
	}
	cat, err := s.app.Category(r.Context(), currentSession(r), id)
	if err != nil {
		s.renderError(w, r, statusFor(err), app.Message(err, "Failed to load category"))
		return
	}
	s.render(w, r, http.StatusOK, "category", cat.Category.Name, cat)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	var data struct{ ExpiresAt string }
	if exp := currentSession(r).ExpiresAt(); !exp.IsZero() {
		data.ExpiresAt = exp.In(s.app.Location()).Format("2 Jan 2006 15:04")
	}
	s.render(w, r, http.StatusOK, "profile", "Profile", data)
}
