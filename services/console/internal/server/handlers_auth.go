package server

import (
	"net/http"
	"net/url"
	"strings"

	"librarydesk/pkg/session"
	"librarydesk/services/console/internal/app"
)

const tooManyAttempts = "Too many attempts. Please try again later."

type loginForm struct {
	Next  string
	Email string
}

type registerForm struct {
	Name  string
	Email string
}

// safeNext keeps post-login redirects on this host.
func safeNext(next string) string {
	next = strings.TrimSpace(next)
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return ""
	}
	return next
}

func landing(sess session.Session, next string) string {
	if next != "" {
		return next
	}
	if sess.User.Role.Staff() {
		return "/dashboard"
	}
	return "/home"
}

func (s *Server) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"))
	if sess, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, landing(sess, next), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "login", "Login", loginForm{Next: next})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form")
		return
	}
	form := loginForm{Next: safeNext(r.PostForm.Get("next")), Email: strings.TrimSpace(r.PostForm.Get("email"))}
	if !s.allowRate(w, r, s.loginLimiter) {
		s.renderPage(w, r, http.StatusTooManyRequests, "login", page{Title: "Login", Alert: tooManyAttempts, Data: form})
		return
	}
	sess, key, err := s.app.Login(r.Context(), form.Email, r.PostForm.Get("password"))
	if err != nil {
		s.audit(r, "console.login", "fail", "email", form.Email)
		status := statusFor(err)
		if status == http.StatusBadRequest || status == http.StatusNotFound {
			status = http.StatusUnauthorized
		}
		s.renderPage(w, r, status, "login", page{Title: "Login", Alert: app.Message(err, "Login failed"), Data: form})
		return
	}
	s.audit(r, "console.login", "success", "user_id", sess.User.ID)
	s.setCookie(w, r, key)
	http.Redirect(w, r, landing(sess, form.Next), http.StatusSeeOther)
}

func (s *Server) handleRegisterPage(w http.ResponseWriter, r *http.Request) {
	if sess, ok := session.FromContext(r.Context()); ok {
		http.Redirect(w, r, landing(sess, ""), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, "register", "Register", registerForm{})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "Invalid form")
		return
	}
	form := registerForm{Name: strings.TrimSpace(r.PostForm.Get("name")), Email: strings.TrimSpace(r.PostForm.Get("email"))}
	if !s.allowRate(w, r, s.registerLimiter) {
		s.renderPage(w, r, http.StatusTooManyRequests, "register", page{Title: "Register", Alert: tooManyAttempts, Data: form})
		return
	}
	sess, key, err := s.app.Register(r.Context(), form.Name, form.Email, r.PostForm.Get("password"))
	if err != nil {
		s.audit(r, "console.register", "fail", "email", form.Email)
		s.renderPage(w, r, statusFor(err), "register", page{Title: "Register", Alert: app.Message(err, "Registration failed"), Data: form})
		return
	}
	s.audit(r, "console.register", "success", "user_id", sess.User.ID)
	s.setCookie(w, r, key)
	http.Redirect(w, r, landing(sess, ""), http.StatusSeeOther)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(s.cookieName); err == nil {
		if err := s.app.Logout(r.Context(), cookie.Value); err != nil {
			s.audit(r, "console.logout", "fail", "err", err.Error())
		} else {
			s.audit(r, "console.logout", "success", "user_id", currentSession(r).User.ID)
		}
	}
	s.clearCookie(w, r)
	s.redirect(w, r, "/login", url.Values{"flash": {"You have been logged out."}})
}
