// Package librarytest runs an in-memory library API for console tests.
package librarytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"librarydesk/pkg/domain"
)

type account struct {
	domain.User
	password string
}

type failure struct {
	status  int
	message string
}

// Server is a fake library API. Lists are served enveloped except categories,
// which come back as a bare array.
type Server struct {
	URL string

	mu         sync.Mutex
	nextID     int64
	books      []domain.Book
	categories []domain.Category
	accounts   []account
	borrows    []domain.BorrowRecord
	tokens     map[string]int64
	failures   map[string]failure
	payloads   map[string]map[string]any
	now        func() time.Time
}

// New starts the fake and closes it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		nextID:   100,
		tokens:   map[string]int64{},
		failures: map[string]failure{},
		payloads: map[string]map[string]any{},
		now:      time.Now,
	}
	srv := httptest.NewServer(s.routes())
	t.Cleanup(srv.Close)
	s.URL = srv.URL
	return s
}

// SetNow fixes the clock used for new borrow records.
func (s *Server) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every "METHOD /path" request answer status with message until cleared
// with status 0.
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.failures, key)
		return
	}
	s.failures[key] = failure{status: status, message: message}
}

// Payload returns the last JSON body received for "METHOD /path".
func (s *Server) Payload(method, path string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.payloads[method+" "+path]
}

func (s *Server) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) AddUser(name, email, password string, role domain.UserRole) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := domain.User{ID: s.id(), Name: name, Email: email, Role: role}
	s.accounts = append(s.accounts, account{User: u, password: password})
	return u
}

// Token issues a bearer token for an existing user without a login round trip.
func (s *Server) Token(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issue(userID)
}

func (s *Server) issue(userID int64) string {
	token := fmt.Sprintf("tok-%d-%d", userID, s.id())
	s.tokens[token] = userID
	return token
}

func (s *Server) AddCategory(name, description string) domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := domain.Category{ID: s.id(), Name: name, Description: description}
	s.categories = append(s.categories, c)
	return c
}

func (s *Server) AddBook(b domain.Book) domain.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == 0 {
		b.ID = s.id()
	}
	s.fillCategory(&b)
	s.books = append(s.books, b)
	return b
}

func (s *Server) AddBorrow(rec domain.BorrowRecord) domain.BorrowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = s.id()
	}
	s.borrows = append(s.borrows, rec)
	return rec
}

func (s *Server) Books() []domain.Book {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.books)
}

func (s *Server) Borrows() []domain.BorrowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.borrows)
}

func (s *Server) Users() []domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.User)
	}
	return out
}

// Password returns the stored password of userID.
func (s *Server) Password(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.ID == userID {
			return a.password
		}
	}
	return ""
}

func (s *Server) fillCategory(b *domain.Book) {
	for _, c := range s.categories {
		if c.ID == b.CategoryID {
			b.CategoryName = c.Name
		}
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("POST /auth/register", s.handleRegister)

	mux.HandleFunc("GET /book", s.member(s.handleListBooks))
	mux.HandleFunc("GET /book/{id}", s.member(s.handleGetBook))
	mux.HandleFunc("POST /book", s.staff(s.handleSaveBook))
	mux.HandleFunc("PUT /book/{id}", s.staff(s.handleSaveBook))
	mux.HandleFunc("DELETE /book/{id}", s.staff(s.handleDeleteBook))

	mux.HandleFunc("GET /category", s.member(s.handleListCategories))
	mux.HandleFunc("GET /category/{id}/books", s.member(s.handleCategoryBooks))
	mux.HandleFunc("POST /category", s.staff(s.handleSaveCategory))
	mux.HandleFunc("PUT /category/{id}", s.staff(s.handleSaveCategory))
	mux.HandleFunc("DELETE /category/{id}", s.staff(s.handleDeleteCategory))

	mux.HandleFunc("GET /manage-user", s.staff(s.handleListUsers))
	mux.HandleFunc("POST /manage-user", s.staff(s.handleSaveUser))
	mux.HandleFunc("PUT /manage-user/{id}", s.staff(s.handleSaveUser))
	mux.HandleFunc("DELETE /manage-user/{id}", s.staff(s.handleDeleteUser))
	mux.HandleFunc("PATCH /manage-user/{id}/password", s.staff(s.handlePassword))

	mux.HandleFunc("GET /borrow", s.staff(s.handleListBorrows))
	mux.HandleFunc("GET /borrow/self", s.member(s.handleSelfBorrows))
	mux.HandleFunc("POST /borrow/{id}", s.member(s.handleBorrow))
	mux.HandleFunc("POST /borrow/{id}/{action}", s.staffOrOwner(s.handleBorrowAction))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, failing := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if failing {
			writeJSON(w, f.status, map[string]any{"success": false, "message": f.message})
			return
		}
		mux.ServeHTTP(w, r)
	})
}

type userHandler func(w http.ResponseWriter, r *http.Request, user domain.User)

func (s *Server) caller(r *http.Request) (domain.User, bool) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return domain.User{}, false
	}
	for _, a := range s.accounts {
		if a.ID == id {
			return a.User, true
		}
	}
	return domain.User{}, false
}

func (s *Server) member(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := s.caller(r)
		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Unauthorized"})
			return
		}
		next(w, r, user)
	}
}

func (s *Server) staff(next userHandler) http.HandlerFunc {
	return s.member(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.Role.Staff() {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Forbidden"})
			return
		}
		next(w, r, user)
	})
}

// staffOrOwner lets members return their own loans; approve and reject stay staff only.
func (s *Server) staffOrOwner(next userHandler) http.HandlerFunc {
	return s.member(func(w http.ResponseWriter, r *http.Request, user domain.User) {
		if !user.Role.Staff() && r.PathValue("action") != "return" {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Forbidden"})
			return
		}
		next(w, r, user)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, data any) {
	body := map[string]any{"success": true}
	if data != nil {
		body["data"] = data
	}
	writeJSON(w, http.StatusOK, body)
}

func notFound(w http.ResponseWriter, what string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": what + " not found"})
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id
}

// decode keeps the raw payload for assertions and fills dst from it.
func (s *Server) decode(r *http.Request, dst any) map[string]any {
	var raw map[string]any
	_ = json.NewDecoder(r.Body).Decode(&raw)
	s.mu.Lock()
	s.payloads[r.Method+" "+r.URL.Path] = raw
	s.mu.Unlock()
	if dst != nil {
		data, _ := json.Marshal(raw)
		_ = json.Unmarshal(data, dst)
	}
	return raw
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	s.decode(r, &creds)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, creds.Email) && a.password == creds.Password {
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Login successful", "token": s.issue(a.ID), "user": a.User})
			return
		}
	}
	writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid email or password"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	s.decode(r, &reg)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, reg.Email) {
			writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "Email already registered"})
			return
		}
	}
	u := domain.User{ID: s.id(), Name: reg.Name, Email: reg.Email, Role: domain.RoleMember}
	s.accounts = append(s.accounts, account{User: u, password: reg.Password})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Registered", "token": s.issue(u.ID), "user": u})
}

func (s *Server) handleListBooks(w http.ResponseWriter, _ *http.Request, _ domain.User) {
	books := s.Books()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"data":       books,
		"pagination": domain.Pagination{Page: 1, Limit: 50, Total: len(books), TotalPages: 1},
	})
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := pathID(r)
	for _, b := range s.Books() {
		if b.ID == id {
			writeOK(w, b)
			return
		}
	}
	notFound(w, "Book")
}

func (s *Server) handleSaveBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	var in domain.Book
	s.decode(r, &in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := pathID(r); id != 0 {
		for i := range s.books {
			if s.books[i].ID == id {
				in.ID, in.Available, in.UploadedBy = id, s.books[i].Available, s.books[i].UploadedBy
				s.fillCategory(&in)
				s.books[i] = in
				writeOK(w, in)
				return
			}
		}
		notFound(w, "Book")
		return
	}
	in.ID, in.Available, in.UploadedBy = s.id(), in.Stock, user.ID
	in.CreatedAt = domain.NewTimestamp(s.now())
	s.fillCategory(&in)
	s.books = append([]domain.Book{in}, s.books...)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": in})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.books)
	s.books = slices.DeleteFunc(s.books, func(b domain.Book) bool { return b.ID == id })
	if len(s.books) == n {
		notFound(w, "Book")
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleListCategories(w http.ResponseWriter, _ *http.Request, _ domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		for _, b := range s.books {
			if b.CategoryID == c.ID {
				c.BookCount++
			}
		}
		out = append(out, c)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCategoryBooks(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.categories {
		if c.ID != id {
			continue
		}
		books := []domain.Book{}
		for _, b := range s.books {
			if b.CategoryID == id {
				books = append(books, b)
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "category": c, "data": books})
		return
	}
	notFound(w, "Category")
}

func (s *Server) handleSaveCategory(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var in domain.Category
	s.decode(r, &in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := pathID(r); id != 0 {
		for i := range s.categories {
			if s.categories[i].ID == id {
				in.ID = id
				s.categories[i] = in
				writeOK(w, in)
				return
			}
		}
		notFound(w, "Category")
		return
	}
	in.ID = s.id()
	s.categories = append(s.categories, in)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": in})
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.books {
		if b.CategoryID == id {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Category still has books"})
			return
		}
	}
	s.categories = slices.DeleteFunc(s.categories, func(c domain.Category) bool { return c.ID == id })
	writeOK(w, nil)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ domain.User) {
	q := strings.ToLower(r.URL.Query().Get("search"))
	out := []domain.User{}
	for _, u := range s.Users() {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) || strings.Contains(strings.ToLower(u.Email), q) {
			out = append(out, u)
		}
	}
	writeOK(w, out)
}

func (s *Server) handleSaveUser(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var in struct {
		domain.User
		Password *string `json:"password"`
	}
	s.decode(r, &in)
	s.mu.Lock()
	defer s.mu.Unlock()
	if id := pathID(r); id != 0 {
		for i := range s.accounts {
			if s.accounts[i].ID == id {
				in.ID = id
				s.accounts[i].User = in.User
				if in.Password != nil {
					s.accounts[i].password = *in.Password
				}
				writeOK(w, in.User)
				return
			}
		}
		notFound(w, "User")
		return
	}
	if in.Password == nil || *in.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "Password is required"})
		return
	}
	in.ID = s.id()
	s.accounts = append(s.accounts, account{User: in.User, password: *in.Password})
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": in.User})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request, _ domain.User) {
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts = slices.DeleteFunc(s.accounts, func(a account) bool { return a.ID == id })
	writeOK(w, nil)
}

func (s *Server) handlePassword(w http.ResponseWriter, r *http.Request, _ domain.User) {
	var in struct {
		Password string `json:"password"`
	}
	s.decode(r, &in)
	id := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			s.accounts[i].password = in.Password
			writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Password updated"})
			return
		}
	}
	notFound(w, "User")
}

func (s *Server) handleListBorrows(w http.ResponseWriter, _ *http.Request, _ domain.User) {
	writeOK(w, s.Borrows())
}

func (s *Server) handleSelfBorrows(w http.ResponseWriter, _ *http.Request, user domain.User) {
	out := []domain.BorrowRecord{}
	for _, rec := range s.Borrows() {
		if rec.UserID == user.ID {
			out = append(out, rec)
		}
	}
	writeOK(w, out)
}

func (s *Server) handleBorrow(w http.ResponseWriter, r *http.Request, user domain.User) {
	bookID := pathID(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if !slices.ContainsFunc(s.books, func(b domain.Book) bool { return b.ID == bookID }) {
		notFound(w, "Book")
		return
	}
	for _, rec := range s.borrows {
		if rec.UserID == user.ID && rec.BookID == bookID && rec.Status.Active() {
			writeJSON(w, http.StatusOK, map[string]any{"success": false, "message": "You already borrowed this book"})
			return
		}
	}
	now := s.now()
	rec := domain.BorrowRecord{
		ID:         s.id(),
		UserID:     user.ID,
		BookID:     bookID,
		BorrowDate: domain.NewTimestamp(now),
		DueDate:    domain.NewTimestamp(now.AddDate(0, 0, 14)),
		Status:     domain.BorrowPending,
		CreatedAt:  domain.NewTimestamp(now),
		UpdatedAt:  domain.NewTimestamp(now),
	}
	s.borrows = append(s.borrows, rec)
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "message": "Borrow requested", "data": rec})
}

func (s *Server) handleBorrowAction(w http.ResponseWriter, r *http.Request, user domain.User) {
	var in struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength > 0 {
		s.decode(r, &in)
	}
	id := pathID(r)
	action := r.PathValue("action")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.borrows {
		rec := &s.borrows[i]
		if rec.ID != id {
			continue
		}
		if !user.Role.Staff() && rec.UserID != user.ID {
			writeJSON(w, http.StatusForbidden, map[string]any{"success": false, "message": "Forbidden"})
			return
		}
		want := map[string]domain.BorrowStatus{"approve": domain.BorrowPending, "reject": domain.BorrowPending, "return": domain.BorrowBorrowed}[action]
		if want == "" || rec.Status != want {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": fmt.Sprintf("Cannot %s a %s borrow", action, rec.Status)})
			return
		}
		approver := user.ID
		switch action {
		case "approve":
			rec.Status, rec.ApprovedBy = domain.BorrowBorrowed, &approver
		case "reject":
			reason := in.Reason
			rec.Status, rec.RejectedReason, rec.ProcessedBy = domain.BorrowRejected, &reason, &approver
		case "return":
			rec.Status, rec.ReturnDate = domain.BorrowReturned, domain.NewTimestamp(s.now())
		}
		rec.UpdatedAt = domain.NewTimestamp(s.now())
		writeOK(w, *rec)
		return
	}
	notFound(w, "Borrow")
}
