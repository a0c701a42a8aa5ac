package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"librarydesk/internal/util"
	"librarydesk/pkg/borrowstate"
	"librarydesk/pkg/libraryclient"
	"librarydesk/pkg/session"
	"librarydesk/pkg/storage"
)

// Config holds runtime configuration for the console core. Client, Sessions and
// Covers may be injected; otherwise they are built from the remaining fields.
type Config struct {
	APIBaseURL    string
	APITimeout    time.Duration
	SessionStore  string
	SessionSecret string
	SessionTTL    time.Duration
	RedisAddr     string
	RedisPassword string
	Minio         storage.MinioConfig
	MaxCoverBytes int64
	Location      *time.Location

	Client   *libraryclient.Client
	Sessions session.Store
	Covers   *storage.CoverUploader
}

// App is the console core: it signs members in against the library API and
// prepares every page and dashboard screen.
type App struct {
	client   *libraryclient.Client
	sessions session.Store
	desk     *borrowstate.Desk
	covers   *storage.CoverUploader
	loc      *time.Location
}

// New wires the library client, the session store and optional cover storage.
func New(cfg Config) (*App, error) {
	if cfg.SessionTTL == 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	client := cfg.Client
	if client == nil {
		var err error
		client, err = libraryclient.New(libraryclient.Config{BaseURL: cfg.APIBaseURL, Timeout: cfg.APITimeout})
		if err != nil {
			return nil, fmt.Errorf("init library client: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		var err error
		sessions, err = newSessionStore(cfg)
		if err != nil {
			return nil, err
		}
	}

	covers := cfg.Covers
	if covers == nil && cfg.Minio.Endpoint != "" {
		store, err := storage.NewMinioStore(context.Background(), cfg.Minio)
		if err != nil {
			return nil, fmt.Errorf("init cover storage: %w", err)
		}
		covers = storage.NewCoverUploader(store, cfg.MaxCoverBytes)
	}

	return &App{
		client:   client,
		sessions: sessions,
		desk:     borrowstate.NewDesk(client),
		covers:   covers,
		loc:      cfg.Location,
	}, nil
}

func newSessionStore(cfg Config) (session.Store, error) {
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	}
	switch cfg.SessionStore {
	case "", "memory":
		return session.NewMemoryStore(cfg.SessionTTL), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("session store redis requires redisAddr")
		}
		return session.NewRedisStore(rdb, cfg.SessionTTL), nil
	case "jwt":
		var revoker session.Revoker = session.NewMemoryRevoker()
		if rdb != nil {
			revoker = session.NewRedisRevoker(rdb)
		}
		store, err := session.NewJWTStore(cfg.SessionSecret, cfg.SessionTTL, revoker)
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.SessionStore)
	}
}

// CoversEnabled reports whether cover images can be uploaded.
func (a *App) CoversEnabled() bool {
	return a.covers != nil
}

// CoverURL resolves a book's cover reference for display.
func (a *App) CoverURL(ref string) string {
	return a.client.CoverURL(ref)
}

// Location is the timezone report days are cut in.
func (a *App) Location() *time.Location {
	return a.loc
}

// Login signs in against the API and stores the resulting session. The returned
// key goes into the session cookie.
func (a *App) Login(ctx context.Context, email, password string) (session.Session, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return session.Session{}, "", inputError("Email and password are required")
	}
	sess, err := a.client.Login(ctx, libraryclient.Credentials{Email: email, Password: password})
	if err != nil {
		return session.Session{}, "", err
	}
	return a.persist(ctx, sess)
}

// Register creates a member account and signs it in.
func (a *App) Register(ctx context.Context, name, email, password string) (session.Session, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(strings.ToLower(email))
	if name == "" || email == "" || password == "" {
		return session.Session{}, "", inputError("Name, email and password are required")
	}
	sess, err := a.client.Register(ctx, libraryclient.Registration{Name: name, Email: email, Password: password})
	if err != nil {
		return session.Session{}, "", err
	}
	return a.persist(ctx, sess)
}

func (a *App) persist(ctx context.Context, sess session.Session) (session.Session, string, error) {
	key, err := a.sessions.Save(ctx, sess)
	if err != nil {
		return session.Session{}, "", fmt.Errorf("save session: %w", err)
	}
	return sess, key, nil
}

// Resolve loads the session behind a cookie value. Unknown, expired and tampered
// keys all resolve to signed out.
func (a *App) Resolve(ctx context.Context, key string) (session.Session, bool) {
	if strings.TrimSpace(key) == "" {
		return session.Session{}, false
	}
	sess, ok, err := a.sessions.Load(ctx, key)
	if err != nil {
		if !errors.Is(err, session.ErrInvalidCookie) {
			util.LoggerFromContext(ctx).Warn("session_load_failed", slog.String("err", err.Error()))
		}
		return session.Session{}, false
	}
	if !ok || !sess.Authenticated() {
		return session.Session{}, false
	}
	return sess, true
}

// Logout forgets the session; token and profile go together.
func (a *App) Logout(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	return a.sessions.Delete(ctx, key)
}

// UploadCover stores a cover image and returns the URL to save on the book.
func (a *App) UploadCover(ctx context.Context, sess session.Session, r io.Reader) (string, error) {
	if !sess.User.Role.Staff() {
		return "", ErrForbidden
	}
	if a.covers == nil {
		return "", ErrCoversDisabled
	}
	return a.covers.Upload(ctx, r)
}
