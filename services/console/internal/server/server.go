package server

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"librarydesk/internal/ratelimit"
	"librarydesk/internal/util"
	"librarydesk/pkg/domain"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
	"librarydesk/services/console/internal/app"
)

//go:embed templates/*.html
var templateFS embed.FS

var pageNames = []string{"login", "register", "home", "book", "borrowed", "category", "profile", "error", "table", "statistics"}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                        *app.App
	CookieName                 string
	CookieSecure               bool
	SessionTTL                 time.Duration
	TrustedProxies             *util.TrustedProxies
	RedisAddr                  string
	RedisPassword              string
	LoginRateLimitPerMinute    int
	RegisterRateLimitPerMinute int
	MaxCoverBytes              int64

	// FlashSecret signs the flash cookie. A random key is used when empty.
	FlashSecret []byte
}

// Server renders the console pages.
type Server struct {
	app             *app.App
	router          chi.Router
	pages           map[string]*template.Template
	report          *template.Template
	cookieName      string
	cookieSecure    bool
	sessionTTL      time.Duration
	trusted         *util.TrustedProxies
	loginLimiter    *ratelimit.FixedWindowLimiter
	registerLimiter *ratelimit.FixedWindowLimiter
	maxCoverBytes   int64
	flashes         *sessions.CookieStore
}

// New constructs the server with routes configured. Rate limiting is enabled per
// endpoint when its limit is positive and needs Redis.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, fmt.Errorf("server: app is required")
	}
	s := &Server{
		app:           cfg.App,
		router:        chi.NewRouter(),
		cookieName:    cfg.CookieName,
		cookieSecure:  cfg.CookieSecure,
		sessionTTL:    cfg.SessionTTL,
		trusted:       cfg.TrustedProxies,
		maxCoverBytes: cfg.MaxCoverBytes,
	}
	if s.cookieName == "" {
		s.cookieName = "librarydesk_session"
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = 24 * time.Hour
	}
	if s.maxCoverBytes <= 0 {
		s.maxCoverBytes = 5 << 20
	}
	s.flashes = newFlashStore(cfg.FlashSecret)

	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		if limit <= 0 {
			return nil, nil
		}
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "librarydesk:console:ratelimit:"+name, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	var err error
	if s.loginLimiter, err = newLimiter("login", cfg.LoginRateLimitPerMinute); err != nil {
		return nil, err
	}
	if s.registerLimiter, err = newLimiter("register", cfg.RegisterRateLimitPerMinute); err != nil {
		return nil, err
	}

	if err := s.loadTemplates(); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.router)))
}

func (s *Server) routes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.loadSession)
	r.Use(s.loadFlashes)

	r.Get("/healthz", s.handleHealth)
	r.Get("/login", s.handleLoginPage)
	r.Post("/login", s.handleLogin)
	r.Get("/register", s.handleRegisterPage)
	r.Post("/register", s.handleRegister)
	r.Post("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireMember)
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/home", http.StatusFound)
		})
		r.Get("/home", s.handleHome)
		r.Route("/book/{id}", func(r chi.Router) {
			r.Get("/", s.handleBook)
			r.Post("/borrow", s.handleBorrow)
			r.Post("/return", s.handleReturn)
		})
		r.Get("/borrowed", s.handleBorrowed)
		r.Get("/category/{id}", s.handleCategory)
		r.Get("/profile", s.handleProfile)

		r.Route("/dashboard", func(r chi.Router) {
			r.Use(s.requireStaff)
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				http.Redirect(w, r, "/dashboard/books", http.StatusFound)
			})
			mountTable(s, r, "books", s.buildBooks)
			mountTable(s, r, "categories", s.buildCategories)
			mountTable(s, r, "borrows", s.buildBorrows)
			r.Post("/books/cover", s.handleCoverUpload)
			r.Group(func(r chi.Router) {
				r.Use(s.requireAdmin)
				mountTable(s, r, "users", s.buildUsers)
				r.Post("/users/{id}/password", s.handleUserPassword)
			})
			r.Get("/statistics", s.handleStatistics)
			r.Get("/statistics/export", s.handleStatisticsExport)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.renderError(w, r, http.StatusNotFound, "Page not found")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) loadTemplates() error {
	funcs := template.FuncMap{
		"cover": s.app.CoverURL,
		"date": func(t domain.Timestamp) string {
			return t.Format("2 Jan 2006", "-")
		},
	}
	s.pages = make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New("layout.html").Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html", "templates/bookcard.html", "templates/daytable.html", "templates/"+name+".html")
		if err != nil {
			return fmt.Errorf("parse %s template: %w", name, err)
		}
		s.pages[name] = t
	}
	report, err := template.New("report.html").Funcs(funcs).ParseFS(templateFS, "templates/report.html", "templates/daytable.html")
	if err != nil {
		return fmt.Errorf("parse report template: %w", err)
	}
	s.report = report
	return nil
}

// page is what every layout render receives.
type page struct {
	Title string
	User  *domain.User
	Staff bool
	Admin bool
	Flash string
	Alert string
	Data  any
}

func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	s.renderPage(w, r, status, name, page{Title: title, Data: data})
}

// renderPage fills the signed-in user and any flash or alert left by the last redirect.
func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, name string, p page) {
	msgs := flashesFrom(r.Context())
	if p.Flash == "" {
		p.Flash = msgs.Flash
	}
	if p.Alert == "" {
		p.Alert = msgs.Alert
	}
	if sess, ok := session.FromContext(r.Context()); ok {
		p.User = &sess.User
		p.Staff = sess.User.Role.Staff()
		p.Admin = sess.User.Role.ManagesUsers()
	}
	var buf bytes.Buffer
	if err := s.pages[name].Execute(&buf, p); err != nil {
		util.LoggerFromContext(r.Context()).Error("render_failed", slog.String("page", name), slog.String("err", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	s.render(w, r, status, "error", http.StatusText(status), msg)
}

// redirect sends a Post/Redirect/Get response. Flash, alert and cover values
// travel in the signed flash cookie; any other params are added to the query.
func (s *Server) redirect(w http.ResponseWriter, r *http.Request, path string, params url.Values) {
	params = s.stashFlashes(w, r, params)
	if len(params) > 0 {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		path += sep + params.Encode()
	}
	http.Redirect(w, r, path, http.StatusSeeOther)
}

func flash(msg string) url.Values { return url.Values{"flash": {msg}} }
func alert(msg string) url.Values { return url.Values{"alert": {msg}} }

// statusFor maps an operation error to the HTTP status of the page shown for it.
func statusFor(err error) int {
	var apiErr *libraryclient.APIError
	switch {
	case errors.Is(err, app.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, app.ErrBookNotFound):
		return http.StatusNotFound
	case app.IsInputError(err):
		return http.StatusBadRequest
	case errors.As(err, &apiErr):
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		if apiErr.Status < 400 {
			return http.StatusBadRequest
		}
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// loadSession resolves the session cookie for every request.
func (s *Server) loadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(s.cookieName)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, ok := s.app.Resolve(r.Context(), cookie.Value)
		if !ok {
			s.clearCookie(w, r)
			next.ServeHTTP(w, r)
			return
		}
		ctx := session.WithSession(r.Context(), sess)
		ctx = util.ContextWithLogger(ctx, util.LoggerFromContext(ctx).With("user_id", sess.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := session.FromContext(r.Context()); !ok {
			s.redirect(w, r, "/login", url.Values{"next": {r.URL.RequestURI()}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if !sess.User.Role.Staff() {
			s.audit(r, "console.dashboard.authorize", "fail", "user_id", sess.User.ID, "reason", "forbidden")
			s.renderError(w, r, http.StatusForbidden, "This area is for library staff only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, _ := session.FromContext(r.Context())
		if !sess.User.Role.ManagesUsers() {
			s.audit(r, "console.users.authorize", "fail", "user_id", sess.User.ID, "reason", "admin_only")
			s.renderError(w, r, http.StatusForbidden, "Account management is for administrators only.")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func currentSession(r *http.Request) session.Session {
	sess, _ := session.FromContext(r.Context())
	return sess
}

func (s *Server) setCookie(w http.ResponseWriter, r *http.Request, key string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    key,
		Path:     "/",
		MaxAge:   int(s.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure || util.IsHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure || util.IsHTTPS(r),
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", util.ClientIP(r, s.trusted),
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)
}

// allowRate counts one attempt for the caller's IP. A nil limiter never limits.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter) bool {
	if limiter == nil {
		return true
	}
	decision := limiter.Allow(r.Context(), r.URL.Path+"|"+util.ClientIP(r, s.trusted))
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", fmt.Sprint(retry))
	s.audit(r, "console.ratelimit", "fail", "retry_after_s", retry)
	return false
}
