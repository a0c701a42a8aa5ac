package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"

	"librarydesk/internal/util"
)

const flashCookie = "librarydesk_flash"

// flashKeys are the redirect params carried in the flash cookie instead of the URL.
var flashKeys = []string{"flash", "alert", "cover"}

// flashes holds the one-shot messages left by the previous redirect.
type flashes struct {
	Flash string
	Alert string
	Cover string
}

type flashContextKey struct{}

func newFlashStore(secret []byte) *sessions.CookieStore {
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(secret)
	store.Options.Path = "/"
	store.Options.MaxAge = 300
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

func flashesFrom(ctx context.Context) flashes {
	msgs, _ := ctx.Value(flashContextKey{}).(flashes)
	return msgs
}

// loadFlashes reads and clears the flash cookie. Cookies that fail the
// signature check are dropped without their messages.
func (s *Server) loadFlashes(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie(flashCookie); err != nil {
			next.ServeHTTP(w, r)
			return
		}
		sess, err := s.flashes.New(r, flashCookie)
		var msgs flashes
		if err == nil {
			msgs = flashes{
				Flash: firstFlash(sess, "flash"),
				Alert: firstFlash(sess, "alert"),
				Cover: firstFlash(sess, "cover"),
			}
		} else {
			util.LoggerFromContext(r.Context()).Warn("flash_cookie_rejected", slog.String("err", err.Error()))
		}
		sess.Options.MaxAge = -1
		sess.Options.Secure = s.cookieSecure || util.IsHTTPS(r)
		if err := sess.Save(r, w); err != nil {
			util.LoggerFromContext(r.Context()).Warn("flash_cookie_clear_failed", slog.String("err", err.Error()))
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), flashContextKey{}, msgs)))
	})
}

// stashFlashes writes the flash keys of params to a fresh flash cookie and
// returns the params left for the query string.
func (s *Server) stashFlashes(w http.ResponseWriter, r *http.Request, params url.Values) url.Values {
	if len(params) == 0 {
		return params
	}
	sess := sessions.NewSession(s.flashes, flashCookie)
	opts := *s.flashes.Options
	opts.Secure = s.cookieSecure || util.IsHTTPS(r)
	sess.Options = &opts
	rest := url.Values{}
	for key, vals := range params {
		if !slices.Contains(flashKeys, key) {
			rest[key] = vals
			continue
		}
		for _, v := range vals {
			sess.AddFlash(v, key)
		}
	}
	if len(sess.Values) > 0 {
		if err := sess.Save(r, w); err != nil {
			util.LoggerFromContext(r.Context()).Warn("flash_cookie_save_failed", slog.String("err", err.Error()))
		}
	}
	return rest
}

func firstFlash(sess *sessions.Session, key string) string {
	vals := sess.Flashes(key)
	if len(vals) == 0 {
		return ""
	}
	msg, _ := vals[0].(string)
	return msg
}
